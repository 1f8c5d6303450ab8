package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize/english"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/webp"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Enroll a directory of face images",
	Long: `Enroll every image below <dir> into the training corpus. Each
sub-directory holds the faces of one identity and its name is the label:

  faces/
    ada/   1.png 2.jpg ...
    grace/ 1.bmp ...

Images are expected to be cropped to the face; the whole image is enrolled.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("train", false, "Train a new model after the import")
	importCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".webp": true,
}

type corpusFile struct {
	label string
	path  string
}

// listCorpus returns the images of every identity directory below root,
// sorted by label and file name.
func listCorpus(root string) ([]corpusFile, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}

	var files []corpusFile
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		images, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading identity directory %s: %w", dir, err)
		}
		for _, img := range images {
			if img.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(img.Name()))] {
				continue
			}
			files = append(files, corpusFile{label: entry.Name(), path: filepath.Join(dir, img.Name())})
		}
	}
	return files, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	files, err := listCorpus(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found below %s", args[0])
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !mustGetBool(cmd, "no-progress") {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Importing faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var created, duplicates, failed int
	for _, f := range files {
		img, err := imaging.Open(f.path, imaging.AutoOrientation(true))
		if err != nil {
			log.WithError(err).Warnf("Skipping %s", f.path)
			failed++
		} else if _, isNew, err := a.service.Enroll(ctx, img, img.Bounds(), f.label, f.path); err != nil {
			log.WithError(err).Warnf("Failed to enroll %s", f.path)
			failed++
		} else if isNew {
			created++
		} else {
			duplicates++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	fmt.Printf("Enrolled %s (%s skipped, %s failed)\n",
		english.Plural(created, "face", ""), english.Plural(duplicates, "duplicate", ""), english.Plural(failed, "image", ""))

	if mustGetBool(cmd, "train") {
		model, err := a.service.Train(ctx)
		if err != nil {
			return err
		}
		printModel(model)
	}
	return nil
}
