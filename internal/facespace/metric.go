package facespace

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// DistanceMetric selects the nearest-class distance.
type DistanceMetric int

const (
	Euclidean DistanceMetric = iota
	Mahalanobis
	MahalanobisCosine
)

// DefaultMetric is used when no metric is configured.
const DefaultMetric = MahalanobisCosine

func (m DistanceMetric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Mahalanobis:
		return "mahalanobis"
	case MahalanobisCosine:
		return "mahalanobis_cosine"
	}
	return fmt.Sprintf("DistanceMetric(%d)", int(m))
}

// ParseMetric parses a metric name. The empty string selects DefaultMetric.
func ParseMetric(s string) (DistanceMetric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultMetric, nil
	case "euclidean":
		return Euclidean, nil
	case "mahalanobis":
		return Mahalanobis, nil
	case "mahalanobis_cosine", "mahalanobis-cosine", "cosine":
		return MahalanobisCosine, nil
	}
	return 0, fmt.Errorf("unknown distance metric %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m DistanceMetric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *DistanceMetric) UnmarshalText(text []byte) error {
	v, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

type distanceFunc func(w, c, eigenvalues []float64) float64

func (m DistanceMetric) distance() distanceFunc {
	switch m {
	case Euclidean:
		return euclideanDistance
	case Mahalanobis:
		return mahalanobisDistance
	default:
		return mahalanobisCosineDistance
	}
}

// Distance returns the distance between weights w and class projection c.
func (m DistanceMetric) Distance(w, c, eigenvalues []float64) float64 {
	return m.distance()(w, c, eigenvalues)
}

func euclideanDistance(w, c, _ []float64) float64 {
	return floats.Distance(w, c, 2)
}

func mahalanobisDistance(w, c, eigenvalues []float64) float64 {
	var sum float64
	for i := range w {
		d := w[i] - c[i]
		sum += d * d / eigenvalues[i]
	}
	return math.Sqrt(sum)
}

// mahalanobisCosineDistance is the negated cosine between w and c in the
// inner product weighted by 1/λ. A zero-length side yields 0.
func mahalanobisCosineDistance(w, c, eigenvalues []float64) float64 {
	var dot, ww, cc float64
	for i := range w {
		dot += w[i] * c[i] / eigenvalues[i]
		ww += w[i] * w[i] / eigenvalues[i]
		cc += c[i] * c[i] / eigenvalues[i]
	}
	if ww == 0 || cc == 0 {
		return 0
	}
	return -dot / (math.Sqrt(ww) * math.Sqrt(cc))
}

// NearestClass returns the index of the class projection closest to w and its
// distance. Ties keep the earlier class. It returns -1 and +Inf when no class
// yields a finite comparable distance.
func NearestClass(w []float64, classes [][]float64, eigenvalues []float64, metric DistanceMetric) (int, float64) {
	return nearestClass(w, classes, eigenvalues, metric.distance())
}

func nearestClass(w []float64, classes [][]float64, eigenvalues []float64, dist distanceFunc) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, c := range classes {
		if d := dist(w, c, eigenvalues); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}
