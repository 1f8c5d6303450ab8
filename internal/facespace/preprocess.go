package facespace

import (
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// DefaultPatchSize is the patch size used by the recognizer unless configured otherwise.
var DefaultPatchSize = image.Pt(100, 100)

// Preprocessor turns a face region of an image into a fixed-size grayscale patch.
type Preprocessor interface {
	Normalize(img image.Image, region image.Rectangle) (Patch, error)
}

// PreprocessorFactory creates a preprocessor for a target patch size.
type PreprocessorFactory func(size image.Point) Preprocessor

var (
	backendsMu sync.RWMutex
	backends   = map[string]PreprocessorFactory{
		"imaging": func(size image.Point) Preprocessor { return NewImagingPreprocessor(size) },
	}
)

// RegisterPreprocessor makes a preprocessor backend available by name.
func RegisterPreprocessor(name string, factory PreprocessorFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = factory
}

// NewPreprocessor returns the named backend for the given patch size.
func NewPreprocessor(backend string, size image.Point) (Preprocessor, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid patch size %v", size)
	}
	backendsMu.RLock()
	factory, ok := backends[strings.ToLower(backend)]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown preprocessor backend %q (available: %s)", backend, strings.Join(PreprocessorBackends(), ", "))
	}
	return factory(size), nil
}

// PreprocessorBackends lists the registered backend names.
func PreprocessorBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImagingPreprocessor crops, converts to grayscale and resizes with the
// pure Go imaging library.
type ImagingPreprocessor struct {
	Size   image.Point
	Filter imaging.ResampleFilter
}

// NewImagingPreprocessor returns a preprocessor using bilinear interpolation.
func NewImagingPreprocessor(size image.Point) *ImagingPreprocessor {
	return &ImagingPreprocessor{Size: size, Filter: imaging.Linear}
}

// Normalize implements Preprocessor.
func (p *ImagingPreprocessor) Normalize(img image.Image, region image.Rectangle) (Patch, error) {
	if err := CheckRegion(img.Bounds(), region); err != nil {
		return Patch{}, err
	}

	gray := imaging.Grayscale(imaging.Crop(img, region))
	resized := imaging.Resize(gray, p.Size.X, p.Size.Y, p.Filter)

	patch := NewPatch(p.Size.X, p.Size.Y)
	for y := 0; y < p.Size.Y; y++ {
		for x := 0; x < p.Size.X; x++ {
			patch.Pix[y*p.Size.X+x] = float64(resized.Pix[y*resized.Stride+x*4]) / 255
		}
	}
	return patch, nil
}

// CheckRegion verifies that region is non-empty and lies fully inside bounds.
func CheckRegion(bounds, region image.Rectangle) error {
	if region.Empty() {
		return fmt.Errorf("%w: region %v is empty", ErrInvalidRegion, region)
	}
	if !region.In(bounds) {
		return fmt.Errorf("%w: region %v outside image bounds %v", ErrInvalidRegion, region, bounds)
	}
	return nil
}
