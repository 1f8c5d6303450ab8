package facespace

import (
	"fmt"
	"strings"
)

// Illumination stage names.
const (
	IlluminationNone   = "none"
	IlluminationCensus = "census"
)

// IlluminationNormalizer is applied to every patch after geometric
// normalization, both during training and recognition.
type IlluminationNormalizer interface {
	Name() string
	Apply(p Patch) Patch
}

// NewIllumination returns the illumination stage registered under name.
// An empty name selects the identity stage.
func NewIllumination(name string) (IlluminationNormalizer, error) {
	switch strings.ToLower(name) {
	case "", IlluminationNone:
		return NoIllumination{}, nil
	case IlluminationCensus:
		return CensusTransform{}, nil
	}
	return nil, fmt.Errorf("unknown illumination normalization %q", name)
}

// NoIllumination leaves patches untouched.
type NoIllumination struct{}

func (NoIllumination) Name() string { return IlluminationNone }

func (NoIllumination) Apply(p Patch) Patch { return p }

// CensusTransform replaces every pixel by an 8-bit code of which of its eight
// neighbours are brighter than itself. Neighbours outside the patch count as
// not brighter.
type CensusTransform struct{}

func (CensusTransform) Name() string { return IlluminationCensus }

func (CensusTransform) Apply(p Patch) Patch {
	out := NewPatch(p.Width, p.Height)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			center := p.Pix[y*p.Width+x]
			var code, bit uint
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < p.Width && ny < p.Height && center < p.Pix[ny*p.Width+nx] {
						code |= 1 << bit
					}
					bit++
				}
			}
			out.Pix[y*p.Width+x] = float64(code) / 255
		}
	}
	return out
}
