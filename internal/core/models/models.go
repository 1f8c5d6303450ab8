package models

import (
	"image"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrainingFace is one enrolled face, stored as an 8-bit grayscale patch that
// was already cropped and resized to the model patch size.
type TrainingFace struct {
	gorm.Model
	Label       string         `gorm:"index;not null"`
	Width       int            `gorm:"not null"`
	Height      int            `gorm:"not null"`
	Pixels      []byte         `gorm:"not null"`
	ContentHash string         `gorm:"index"` // SHA-256 of Pixels and Label, for deduplication
	Source      string         `gorm:"index"` // file name or upload origin
	Region      datatypes.JSON `gorm:"type:json"`
}

// ModelSnapshot is a persisted trained face space.
type ModelSnapshot struct {
	gorm.Model
	Samples      int
	Components   int
	Classes      int
	Metric       string
	Illumination string
	Decision     string
	Data         datatypes.JSON `gorm:"type:json;not null"`
}

// Recognition is the stored outcome for one face region.
type Recognition struct {
	gorm.Model
	Source     string `gorm:"index"`
	Outcome    string `gorm:"index"` // identified, unknown or rejected
	Label      string `gorm:"index"`
	ClassIndex int
	Residual   float64
	Distance   *float64
	Region     datatypes.JSON `gorm:"type:json"`
}

// LabelCount is the number of training faces per identity.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Statistics summarizes the stored data.
type Statistics struct {
	TrainingFaces int64 `json:"training_faces"`
	Identities    int64 `json:"identities"`
	Snapshots     int64 `json:"snapshots"`
	Recognitions  int64 `json:"recognitions"`
	Identified    int64 `json:"identified"`
	Unknown       int64 `json:"unknown"`
	Rejected      int64 `json:"rejected"`
}

// Region is a face rectangle in image coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the region to an image rectangle. Corners are not swapped,
// so a negative width or height yields an empty rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rectangle{Min: image.Pt(r.X, r.Y), Max: image.Pt(r.X+r.W, r.Y+r.H)}
}

// RegionFromRect converts an image rectangle to a region.
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// RecognitionResult is the public form of one recognition outcome.
type RecognitionResult struct {
	Region     Region   `json:"region"`
	Outcome    string   `json:"outcome"`
	Label      string   `json:"label,omitempty"`
	ClassIndex int      `json:"class_index"`
	Residual   float64  `json:"residual"`
	Distance   *float64 `json:"distance,omitempty"`
}

// RecognitionEvent is published for every recognition call.
type RecognitionEvent struct {
	Source    string              `json:"source"`
	Timestamp time.Time           `json:"timestamp"`
	Results   []RecognitionResult `json:"results"`
}
