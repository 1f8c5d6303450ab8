//go:build gocv

package facespace

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

func init() {
	RegisterPreprocessor("opencv", func(size image.Point) Preprocessor {
		return &OpenCVPreprocessor{Size: size}
	})
}

// OpenCVPreprocessor performs the region normalization with OpenCV.
type OpenCVPreprocessor struct {
	Size image.Point
}

// Normalize implements Preprocessor.
func (p *OpenCVPreprocessor) Normalize(img image.Image, region image.Rectangle) (Patch, error) {
	if err := CheckRegion(img.Bounds(), region); err != nil {
		return Patch{}, err
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return Patch{}, fmt.Errorf("failed to convert image to mat: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	roi := gray.Region(region.Sub(img.Bounds().Min))
	defer roi.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(roi, &resized, p.Size, 0, 0, gocv.InterpolationLinear)

	return PatchFromGray(p.Size.X, p.Size.Y, resized.ToBytes())
}
