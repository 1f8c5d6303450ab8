package facespace

import (
	"image"
	"image/color"
	"math"
	"math/rand"
)

const testSize = 16

// identityPattern returns a smooth base face for identity id.
func identityPattern(id int) []float64 {
	pix := make([]float64, testSize*testSize)
	for y := 0; y < testSize; y++ {
		for x := 0; x < testSize; x++ {
			fx, fy := float64(x)/testSize, float64(y)/testSize
			var v float64
			switch id % 3 {
			case 0:
				v = 0.5 + 0.4*math.Sin(2*math.Pi*fx)
			case 1:
				v = 0.5 + 0.4*math.Cos(2*math.Pi*fy)
			default:
				v = 0.5 + 0.4*math.Sin(2*math.Pi*(fx+fy))
			}
			pix[y*testSize+x] = v
		}
	}
	return pix
}

func noisyPatch(base []float64, rng *rand.Rand, amplitude float64) Patch {
	p := NewPatch(testSize, testSize)
	for i, v := range base {
		p.Pix[i] = math.Min(1, math.Max(0, v+amplitude*(rng.Float64()*2-1)))
	}
	return p
}

// syntheticCorpus returns perClass noisy samples for each label.
func syntheticCorpus(labels []string, perClass int, seed int64) []TrainingSample {
	rng := rand.New(rand.NewSource(seed))
	var samples []TrainingSample
	for id, label := range labels {
		base := identityPattern(id)
		for j := 0; j < perClass; j++ {
			samples = append(samples, TrainingSample{Patch: noisyPatch(base, rng, 0.05), Label: label})
		}
	}
	return samples
}

func grayImage(p Patch) *image.Gray {
	return p.Gray()
}

func uniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func infiniteTrainer() *Trainer {
	t := NewTrainer()
	t.FaceSpaceThreshold = math.Inf(1)
	t.UnknownThreshold = math.Inf(1)
	return t
}
