package facespace

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImagingPreprocessorInvalidRegion(t *testing.T) {
	pre := NewImagingPreprocessor(image.Pt(8, 8))
	img := uniformImage(20, 10, color.White)

	tests := []struct {
		name   string
		region image.Rectangle
	}{
		{"empty", image.Rect(5, 5, 5, 9)},
		{"right edge", image.Rect(15, 0, 21, 10)},
		{"negative origin", image.Rect(-1, 0, 5, 5)},
		{"below", image.Rect(0, 5, 5, 11)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pre.Normalize(img, tt.region)
			assert.ErrorIs(t, err, ErrInvalidRegion)
		})
	}
}

func TestImagingPreprocessorResizesToPatch(t *testing.T) {
	pre := NewImagingPreprocessor(image.Pt(10, 12))
	img := uniformImage(64, 48, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	p, err := pre.Normalize(img, image.Rect(4, 4, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, 10, p.Width)
	assert.Equal(t, 12, p.Height)
	require.Len(t, p.Pix, 120)
	for _, v := range p.Pix {
		assert.InDelta(t, 128.0/255, v, 1.0/255)
	}
}

func TestImagingPreprocessorIdempotent(t *testing.T) {
	samples := syntheticCorpus([]string{"a"}, 1, 3)
	gray := grayImage(samples[0].Patch)
	pre := NewImagingPreprocessor(image.Pt(testSize, testSize))

	p, err := pre.Normalize(gray, gray.Bounds())
	require.NoError(t, err)
	assert.Equal(t, PatchFromImage(gray).Pix, p.Pix)

	again, err := pre.Normalize(p.Gray(), gray.Bounds())
	require.NoError(t, err)
	assert.Equal(t, p.Pix, again.Pix)
}

func TestNewPreprocessor(t *testing.T) {
	pre, err := NewPreprocessor("imaging", DefaultPatchSize)
	require.NoError(t, err)
	assert.IsType(t, &ImagingPreprocessor{}, pre)

	_, err = NewPreprocessor("nope", DefaultPatchSize)
	assert.Error(t, err)

	_, err = NewPreprocessor("imaging", image.Pt(0, 10))
	assert.Error(t, err)

	assert.Contains(t, PreprocessorBackends(), "imaging")
}
