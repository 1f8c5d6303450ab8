// Package svm implements a small kernel support vector classifier used as an
// alternative identity decision on face space projections.
package svm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"facespace/internal/facespace"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Kernel names.
const (
	KernelRBF    = "rbf"
	KernelLinear = "linear"
)

// Config holds the training parameters.
type Config struct {
	Kernel string
	// C bounds the Lagrange multipliers.
	C float64
	// Gamma is the RBF kernel width.
	Gamma     float64
	Tolerance float64
	// MaxPasses is the number of consecutive sweeps without a multiplier
	// change after which a binary machine is considered converged.
	MaxPasses     int
	MaxIterations int
}

// DefaultConfig returns an RBF configuration.
func DefaultConfig() Config {
	return Config{
		Kernel:        KernelRBF,
		C:             10,
		Gamma:         0.001953125,
		Tolerance:     1e-3,
		MaxPasses:     10,
		MaxIterations: 10000,
	}
}

type kernelFunc func(a, b []float64) float64

func (c Config) kernel() (kernelFunc, error) {
	switch strings.ToLower(c.Kernel) {
	case "", KernelRBF:
		if c.Gamma <= 0 {
			return nil, fmt.Errorf("rbf kernel needs a positive gamma, got %v", c.Gamma)
		}
		gamma := c.Gamma
		return func(a, b []float64) float64 {
			d := floats.Distance(a, b, 2)
			return math.Exp(-gamma * d * d)
		}, nil
	case KernelLinear:
		return floats.Dot, nil
	}
	return nil, fmt.Errorf("unknown kernel %q", c.Kernel)
}

// Trainer trains one-vs-one classifiers.
type Trainer struct {
	cfg Config
}

// NewTrainer returns a trainer for cfg.
func NewTrainer(cfg Config) *Trainer {
	return &Trainer{cfg: cfg}
}

// Train implements facespace.ClassifierTrainer. Labels must be class indices
// starting at 0, and at least two classes must be present.
func (t *Trainer) Train(features [][]float64, labels []int) (facespace.Classifier, error) {
	if len(features) == 0 {
		return nil, errors.New("no training features")
	}
	if len(features) != len(labels) {
		return nil, fmt.Errorf("%d feature rows for %d labels", len(features), len(labels))
	}
	if t.cfg.C <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", t.cfg.C)
	}
	kern, err := t.cfg.kernel()
	if err != nil {
		return nil, err
	}

	dim := len(features[0])
	numClasses := 0
	for i, f := range features {
		if len(f) != dim {
			return nil, fmt.Errorf("feature row %d has %d values, expected %d", i, len(f), dim)
		}
		for _, v := range f {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("feature row %d is not finite", i)
			}
		}
		if labels[i] < 0 {
			return nil, fmt.Errorf("negative label %d", labels[i])
		}
		numClasses = max(numClasses, labels[i]+1)
	}

	byClass := make([][]int, numClasses)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	present := 0
	for _, rows := range byClass {
		if len(rows) > 0 {
			present++
		}
	}
	if present < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", present)
	}

	m := &Machine{numClasses: numClasses, dim: dim, kernel: kern}
	for a := 0; a < numClasses; a++ {
		for b := a + 1; b < numClasses; b++ {
			if len(byClass[a]) == 0 || len(byClass[b]) == 0 {
				continue
			}
			m.pairs = append(m.pairs, t.trainPair(features, byClass[a], byClass[b], a, b, kern))
		}
	}
	log.Debugf("Trained %d binary SVMs for %d classes", len(m.pairs), present)
	return m, nil
}

func (t *Trainer) trainPair(features [][]float64, pos, neg []int, a, b int, kern kernelFunc) binaryMachine {
	x := make([][]float64, 0, len(pos)+len(neg))
	y := make([]float64, 0, len(pos)+len(neg))
	for _, i := range pos {
		x = append(x, features[i])
		y = append(y, 1)
	}
	for _, i := range neg {
		x = append(x, features[i])
		y = append(y, -1)
	}

	alpha, bias := smo(x, y, kern, t.cfg)

	bm := binaryMachine{pos: a, neg: b, bias: bias}
	for i, al := range alpha {
		if al > 0 {
			bm.vectors = append(bm.vectors, x[i])
			bm.coef = append(bm.coef, al*y[i])
		}
	}
	return bm
}

// smo solves the binary dual problem with sequential minimal optimization.
// The second multiplier is the one maximizing |Ei - Ej|, which keeps the
// result deterministic.
func smo(x [][]float64, y []float64, kern kernelFunc, cfg Config) ([]float64, float64) {
	n := len(x)
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			k[i][j] = kern(x[i], x[j])
			k[j][i] = k[i][j]
		}
	}

	alpha := make([]float64, n)
	var b float64
	errAt := func(i int) float64 {
		f := b
		for j, a := range alpha {
			if a != 0 {
				f += a * y[j] * k[j][i]
			}
		}
		return f - y[i]
	}

	c, tol := cfg.C, cfg.Tolerance
	passes, iter := 0, 0
	for passes < cfg.MaxPasses && iter < cfg.MaxIterations {
		changed := 0
		for i := 0; i < n; i++ {
			ei := errAt(i)
			if !((y[i]*ei < -tol && alpha[i] < c) || (y[i]*ei > tol && alpha[i] > 0)) {
				continue
			}

			j, ej := -1, 0.0
			best := -1.0
			for cand := 0; cand < n; cand++ {
				if cand == i {
					continue
				}
				e := errAt(cand)
				if d := math.Abs(ei - e); d > best {
					j, ej, best = cand, e, d
				}
			}
			if j < 0 {
				continue
			}

			ai, aj := alpha[i], alpha[j]
			var lo, hi float64
			if y[i] != y[j] {
				lo, hi = math.Max(0, aj-ai), math.Min(c, c+aj-ai)
			} else {
				lo, hi = math.Max(0, ai+aj-c), math.Min(c, ai+aj)
			}
			if lo == hi {
				continue
			}
			eta := 2*k[i][j] - k[i][i] - k[j][j]
			if eta >= 0 {
				continue
			}

			alpha[j] = math.Min(hi, math.Max(lo, aj-y[j]*(ei-ej)/eta))
			if math.Abs(alpha[j]-aj) < 1e-5 {
				alpha[j] = aj
				continue
			}
			alpha[i] = ai + y[i]*y[j]*(aj-alpha[j])

			b1 := b - ei - y[i]*(alpha[i]-ai)*k[i][i] - y[j]*(alpha[j]-aj)*k[i][j]
			b2 := b - ej - y[i]*(alpha[i]-ai)*k[i][j] - y[j]*(alpha[j]-aj)*k[j][j]
			switch {
			case alpha[i] > 0 && alpha[i] < c:
				b = b1
			case alpha[j] > 0 && alpha[j] < c:
				b = b2
			default:
				b = (b1 + b2) / 2
			}
			changed++
		}
		if changed == 0 {
			passes++
		} else {
			passes = 0
		}
		iter++
	}
	return alpha, b
}

type binaryMachine struct {
	pos, neg int
	vectors  [][]float64
	coef     []float64
	bias     float64
}

func (m *binaryMachine) decision(x []float64, kern kernelFunc) float64 {
	f := m.bias
	for i, v := range m.vectors {
		f += m.coef[i] * kern(v, x)
	}
	return f
}

// Machine is a trained one-vs-one classifier.
type Machine struct {
	numClasses int
	dim        int
	kernel     kernelFunc
	pairs      []binaryMachine
}

// Predict implements facespace.Classifier. Every binary machine votes; ties
// go to the lower class index.
func (m *Machine) Predict(features []float64) (int, error) {
	if len(features) != m.dim {
		return -1, fmt.Errorf("got %d features, expected %d", len(features), m.dim)
	}
	votes := make([]int, m.numClasses)
	for i := range m.pairs {
		p := &m.pairs[i]
		if p.decision(features, m.kernel) >= 0 {
			votes[p.pos]++
		} else {
			votes[p.neg]++
		}
	}
	best := 0
	for c, v := range votes {
		if v > votes[best] {
			best = c
		}
	}
	return best, nil
}

// SupportVectors returns the number of support vectors over all binary machines.
func (m *Machine) SupportVectors() int {
	n := 0
	for _, p := range m.pairs {
		n += len(p.vectors)
	}
	return n
}
