package facespace

import (
	"fmt"
	"image"
	"math"
)

// MeanImage renders the mean face.
func (m *Model) MeanImage() *image.Gray {
	return Patch{Width: m.PatchWidth, Height: m.PatchHeight, Pix: m.Mean}.Gray()
}

// EigenfaceImage renders basis vector i stretched to the full 8-bit range.
func (m *Model) EigenfaceImage(i int) (*image.Gray, error) {
	if i < 0 || i >= len(m.Basis) {
		return nil, fmt.Errorf("eigenface %d out of range [0,%d)", i, len(m.Basis))
	}
	return stretch(m.PatchWidth, m.PatchHeight, m.Basis[i]), nil
}

func stretch(width, height int, values []float64) *image.Gray {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	p := NewPatch(width, height)
	if span := hi - lo; span > 0 {
		for j, v := range values {
			p.Pix[j] = (v - lo) / span
		}
	}
	return p.Gray()
}
