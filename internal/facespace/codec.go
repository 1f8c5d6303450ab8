package facespace

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// snapshotVersion is bumped whenever the persisted layout changes.
const snapshotVersion = 1

type snapshot struct {
	Version      int             `json:"version"`
	PatchWidth   int             `json:"patch_width"`
	PatchHeight  int             `json:"patch_height"`
	Samples      int             `json:"samples"`
	Metric       DistanceMetric  `json:"metric"`
	Illumination string          `json:"illumination"`
	TrainedAt    time.Time       `json:"trained_at"`
	Mean         []float64       `json:"mean"`
	Eigenvalues  []float64       `json:"eigenvalues"`
	Basis        [][]float64     `json:"basis"`
	Classes      []snapshotClass `json:"classes"`
}

type snapshotClass struct {
	Label      string    `json:"label"`
	Projection []float64 `json:"projection"`
}

// MarshalModel serializes the learned parts of m. Thresholds and the
// classifier are not included. Labels must be valid UTF-8 to survive the
// JSON round trip.
func MarshalModel(m *Model) ([]byte, error) {
	if m == nil {
		return nil, ErrModelNotTrained
	}
	s := snapshot{
		Version:      snapshotVersion,
		PatchWidth:   m.PatchWidth,
		PatchHeight:  m.PatchHeight,
		Samples:      m.Samples,
		Metric:       m.Metric,
		Illumination: m.Illumination,
		TrainedAt:    m.TrainedAt,
		Mean:         m.Mean,
		Eigenvalues:  m.Eigenvalues,
		Basis:        m.Basis,
		Classes:      make([]snapshotClass, len(m.ClassLabels)),
	}
	for i, label := range m.ClassLabels {
		if !utf8.ValidString(label) {
			return nil, fmt.Errorf("%w: class %d label %q", ErrInvalidLabel, i, label)
		}
		s.Classes[i] = snapshotClass{Label: label, Projection: m.ClassProjections[i]}
	}
	return json.Marshal(s)
}

// UnmarshalModel restores a model written by MarshalModel. The returned model
// has zero thresholds and no classifier; callers apply their configuration.
func UnmarshalModel(data []byte) (*Model, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode model snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported model snapshot version %d", s.Version)
	}

	m := &Model{
		PatchWidth:       s.PatchWidth,
		PatchHeight:      s.PatchHeight,
		Mean:             s.Mean,
		Basis:            s.Basis,
		Eigenvalues:      s.Eigenvalues,
		ClassLabels:      make([]string, len(s.Classes)),
		ClassProjections: make([][]float64, len(s.Classes)),
		Metric:           s.Metric,
		Illumination:     s.Illumination,
		Samples:          s.Samples,
		TrainedAt:        s.TrainedAt,
	}
	for i, c := range s.Classes {
		m.ClassLabels[i] = c.Label
		m.ClassProjections[i] = c.Projection
	}
	if _, err := NewIllumination(m.Illumination); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model snapshot: %w", err)
	}
	return m, nil
}
