package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"facespace/internal/core/models"
	"facespace/internal/core/processor"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Identify the faces in one or more images",
	Long: `Identify faces with the latest trained model. Without --region the
whole image is one face region. --region may be repeated and applies to
every image.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().StringArray("region", nil, "Face region as x,y,w,h")
	recognizeCmd.Flags().Bool("json", false, "Print results as JSON")
}

// parseRegion parses "x,y,w,h".
func parseRegion(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("region %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = n
	}
	return models.Region{X: v[0], Y: v[1], W: v[2], H: v[3]}.Rect(), nil
}

func runRecognize(cmd *cobra.Command, args []string) error {
	var regions []image.Rectangle
	for _, s := range mustGetStringArray(cmd, "region") {
		r, err := parseRegion(s)
		if err != nil {
			return err
		}
		regions = append(regions, r)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.loadModel(ctx, false); err != nil {
		return err
	}

	asJSON := mustGetBool(cmd, "json")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !asJSON {
		fmt.Fprintln(tw, "IMAGE\tREGION\tOUTCOME\tLABEL\tRESIDUAL\tDISTANCE")
	}

	var events []models.RecognitionEvent
	for _, path := range args {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		imgRegions := regions
		if len(imgRegions) == 0 {
			imgRegions = processor.WholeImage(img)
		}

		results, err := a.service.Recognize(ctx, img, imgRegions, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if asJSON {
			events = append(events, models.RecognitionEvent{Source: path, Results: results})
			continue
		}
		for _, r := range results {
			distance := "-"
			if r.Distance != nil {
				distance = strconv.FormatFloat(*r.Distance, 'g', 6, 64)
			}
			fmt.Fprintf(tw, "%s\t%d,%d,%d,%d\t%s\t%s\t%.4g\t%s\n", path,
				r.Region.X, r.Region.Y, r.Region.W, r.Region.H, r.Outcome, r.Label, r.Residual, distance)
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	return tw.Flush()
}
