package facespace

import (
	"fmt"
	"image"
	"math"
)

// Patch is a normalized grayscale face patch. Pix holds Width*Height
// intensities in row-major order, scaled to [0,1].
type Patch struct {
	Width  int
	Height int
	Pix    []float64
}

// NewPatch allocates a black patch of the given size.
func NewPatch(width, height int) Patch {
	return Patch{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// PatchFromGray builds a patch from an 8-bit buffer of an already normalized
// face, as stored in the training corpus.
func PatchFromGray(width, height int, pix []byte) (Patch, error) {
	if width <= 0 || height <= 0 || len(pix) != width*height {
		return Patch{}, fmt.Errorf("gray buffer of %d bytes does not match %dx%d", len(pix), width, height)
	}
	p := NewPatch(width, height)
	for i, v := range pix {
		p.Pix[i] = float64(v) / 255
	}
	return p, nil
}

// PatchFromImage converts a grayscale image to a patch without resizing.
func PatchFromImage(img *image.Gray) Patch {
	b := img.Bounds()
	p := NewPatch(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range row {
			p.Pix[y*b.Dx()+x] = float64(v) / 255
		}
	}
	return p
}

// Len returns the number of pixels.
func (p Patch) Len() int {
	return len(p.Pix)
}

// Size returns the patch dimensions.
func (p Patch) Size() image.Point {
	return image.Pt(p.Width, p.Height)
}

// Bytes quantizes the patch back to 8-bit intensities.
func (p Patch) Bytes() []byte {
	out := make([]byte, len(p.Pix))
	for i, v := range p.Pix {
		out[i] = quantize(v)
	}
	return out
}

// Gray renders the patch as an 8-bit grayscale image.
func (p Patch) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	copy(img.Pix, p.Bytes())
	return img
}

func quantize(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return byte(math.Round(v * 255))
}
