package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"facespace/internal/facespace"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a new face space model from the corpus",
	Long: `Train a face space from every enrolled face, persist it as the latest
model snapshot and optionally write the mean face and eigenfaces as PNG.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("eigenfaces", "", "Directory to write mean.png and eigenface-<i>.png into")
}

func runTrain(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	model, err := a.service.Train(ctx)
	if err != nil {
		return err
	}
	printModel(model)

	if dir := mustGetString(cmd, "eigenfaces"); dir != "" {
		if err := writeEigenfaces(model, dir); err != nil {
			return err
		}
		fmt.Printf("Wrote %s to %s\n", english.Plural(model.Components()+1, "image", ""), dir)
	}
	return nil
}

func printModel(m *facespace.Model) {
	fmt.Printf("Model trained %s\n", humanize.Time(m.TrainedAt))
	fmt.Printf("  Samples:      %d\n", m.Samples)
	fmt.Printf("  Components:   %d\n", m.Components())
	fmt.Printf("  Identities:   %s\n", strings.Join(m.ClassLabels, ", "))
	fmt.Printf("  Patch:        %dx%d\n", m.PatchWidth, m.PatchHeight)
	fmt.Printf("  Metric:       %s\n", m.Metric)
	fmt.Printf("  Decision:     %s\n", m.Mode())
	fmt.Printf("  Illumination: %s\n", m.Illumination)
	fmt.Printf("  Thresholds:   face space %s, unknown %s\n",
		formatThreshold(m.FaceSpaceThreshold), formatThreshold(m.UnknownThreshold))
}

func formatThreshold(v float64) string {
	if math.IsInf(v, 1) {
		return "off"
	}
	return humanize.Ftoa(v)
}

func writeEigenfaces(m *facespace.Model, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := imaging.Save(m.MeanImage(), filepath.Join(dir, "mean.png")); err != nil {
		return fmt.Errorf("writing mean face: %w", err)
	}
	for i := 0; i < m.Components(); i++ {
		img, err := m.EigenfaceImage(i)
		if err != nil {
			return err
		}
		if err := imaging.Save(img, filepath.Join(dir, fmt.Sprintf("eigenface-%d.png", i))); err != nil {
			return fmt.Errorf("writing eigenface %d: %w", i, err)
		}
	}
	return nil
}
