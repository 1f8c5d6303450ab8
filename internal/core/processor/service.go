package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"facespace/config"
	"facespace/internal/classifier/svm"
	"facespace/internal/core/models"
	"facespace/internal/db/repository"
	"facespace/internal/facespace"

	"github.com/dustin/go-humanize/english"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyLabel is returned when a face is enrolled without an identity.
var ErrEmptyLabel = errors.New("empty identity label")

// Publisher is notified after every recognition call.
type Publisher interface {
	PublishRecognition(event models.RecognitionEvent) error
}

// Service ties the face space to the corpus store: it enrols faces, trains
// and swaps models and records recognition outcomes.
type Service struct {
	cfg        *config.Config
	repo       repository.Repository
	store      facespace.Store
	pre        facespace.Preprocessor
	recognizer *facespace.Recognizer
	trainer    *facespace.Trainer

	trainMu    sync.Mutex
	pubMu      sync.RWMutex
	publishers []Publisher
}

// NewService builds the service from configuration.
func NewService(cfg *config.Config, repo repository.Repository) (*Service, error) {
	size := image.Pt(cfg.Model.PatchWidth, cfg.Model.PatchHeight)
	pre, err := facespace.NewPreprocessor(cfg.Model.Preprocessor, size)
	if err != nil {
		return nil, err
	}
	illum, err := facespace.NewIllumination(cfg.Model.Illumination)
	if err != nil {
		return nil, err
	}
	metric, err := facespace.ParseMetric(cfg.Model.Metric)
	if err != nil {
		return nil, err
	}
	mode, err := facespace.ParseDecisionMode(cfg.Model.Decision)
	if err != nil {
		return nil, err
	}

	trainer := &facespace.Trainer{
		Builder:            &facespace.Builder{Provider: facespace.GonumProvider{}, Illumination: illum},
		Mode:               mode,
		Metric:             metric,
		FaceSpaceThreshold: cfg.Model.FaceSpaceThreshold,
		UnknownThreshold:   cfg.Model.UnknownThreshold,
	}
	if mode == facespace.DecisionClassifier {
		trainer.ClassifierTrainer = svm.NewTrainer(svm.Config{
			Kernel:        cfg.Classifier.Kernel,
			C:             cfg.Classifier.C,
			Gamma:         cfg.Classifier.Gamma,
			Tolerance:     cfg.Classifier.Tolerance,
			MaxPasses:     cfg.Classifier.MaxPasses,
			MaxIterations: cfg.Classifier.MaxIterations,
		})
	}

	log.Infof("Face space service: patch %dx%d, preprocessor %s, illumination %s, metric %s, decision %s",
		size.X, size.Y, cfg.Model.Preprocessor, illum.Name(), metric, mode)

	return &Service{
		cfg:        cfg,
		repo:       repo,
		pre:        pre,
		recognizer: facespace.NewRecognizer(pre),
		trainer:    trainer,
	}, nil
}

// AddPublisher registers a recognition event receiver.
func (s *Service) AddPublisher(p Publisher) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publishers = append(s.publishers, p)
}

// Model returns the current model or nil.
func (s *Service) Model() *facespace.Model {
	return s.store.Load()
}

// Repository returns the underlying store.
func (s *Service) Repository() repository.Repository {
	return s.repo
}

// NormalizeLabel trims and NFC-normalizes an identity label so that visually
// identical labels compare equal.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// Enroll normalizes region of img and adds it to the corpus under label. An
// identical face already enrolled under the same label is returned instead
// and created is false.
func (s *Service) Enroll(ctx context.Context, img image.Image, region image.Rectangle, label, source string) (face *models.TrainingFace, created bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	label = NormalizeLabel(label)
	if label == "" {
		return nil, false, ErrEmptyLabel
	}
	if !utf8.ValidString(label) {
		return nil, false, fmt.Errorf("%w: %q", facespace.ErrInvalidLabel, label)
	}

	patch, err := s.pre.Normalize(img, region)
	if err != nil {
		return nil, false, err
	}
	pixels := patch.Bytes()

	sum := sha256.Sum256(append([]byte(label+"\x00"), pixels...))
	hash := hex.EncodeToString(sum[:])
	existing, err := s.repo.FindTrainingFaceByHash(hash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for duplicate face: %w", err)
	}
	if existing != nil {
		log.Debugf("Face for %q from %s already enrolled as %d", label, source, existing.ID)
		return existing, false, nil
	}

	regionJSON, err := json.Marshal(models.RegionFromRect(region))
	if err != nil {
		return nil, false, err
	}
	face = &models.TrainingFace{
		Label:       label,
		Width:       patch.Width,
		Height:      patch.Height,
		Pixels:      pixels,
		ContentHash: hash,
		Source:      source,
		Region:      regionJSON,
	}
	if err := s.repo.SaveTrainingFace(face); err != nil {
		return nil, false, fmt.Errorf("failed to save training face: %w", err)
	}
	log.Infof("Enrolled face %d for %q from %s", face.ID, label, source)
	return face, true, nil
}

// Train builds a model from the whole corpus, persists it and makes it current.
func (s *Service) Train(ctx context.Context) (*facespace.Model, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	faces, err := s.repo.ListTrainingFaces()
	if err != nil {
		return nil, fmt.Errorf("failed to load training corpus: %w", err)
	}

	samples := make([]facespace.TrainingSample, 0, len(faces))
	for _, f := range faces {
		if f.Width != s.cfg.Model.PatchWidth || f.Height != s.cfg.Model.PatchHeight {
			log.Warnf("Skipping training face %d: %dx%d does not match patch size %dx%d",
				f.ID, f.Width, f.Height, s.cfg.Model.PatchWidth, s.cfg.Model.PatchHeight)
			continue
		}
		patch, err := facespace.PatchFromGray(f.Width, f.Height, f.Pixels)
		if err != nil {
			log.WithError(err).Warnf("Skipping corrupt training face %d", f.ID)
			continue
		}
		samples = append(samples, facespace.TrainingSample{Patch: patch, Label: f.Label})
	}
	log.Infof("Training face space on %s", english.Plural(len(samples), "face", ""))

	model, err := s.trainer.Train(samples)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := facespace.MarshalModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	snapshot := &models.ModelSnapshot{
		Samples:      model.Samples,
		Components:   model.Components(),
		Classes:      len(model.ClassLabels),
		Metric:       model.Metric.String(),
		Illumination: model.Illumination,
		Decision:     model.Mode().String(),
		Data:         data,
	}
	if err := s.repo.SaveSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist model snapshot: %w", err)
	}

	s.store.Swap(model)
	log.Infof("Model snapshot %d is now active", snapshot.ID)
	return model, nil
}

// Restore loads the latest persisted model. It reports false if no snapshot exists.
func (s *Service) Restore() (bool, error) {
	snapshot, err := s.repo.LatestSnapshot()
	if err != nil {
		return false, fmt.Errorf("failed to load model snapshot: %w", err)
	}
	if snapshot == nil {
		return false, nil
	}

	model, err := facespace.UnmarshalModel(snapshot.Data)
	if err != nil {
		return false, err
	}
	if model.PatchWidth != s.cfg.Model.PatchWidth || model.PatchHeight != s.cfg.Model.PatchHeight {
		return false, fmt.Errorf("snapshot %d uses %dx%d patches, configured %dx%d",
			snapshot.ID, model.PatchWidth, model.PatchHeight, s.cfg.Model.PatchWidth, s.cfg.Model.PatchHeight)
	}
	model = model.WithThresholds(s.trainer.FaceSpaceThreshold, s.trainer.UnknownThreshold).WithMetric(s.trainer.Metric)

	if s.trainer.Mode == facespace.DecisionClassifier {
		log.Warn("Classifier is not stored in snapshots, using distance decision until the next training")
	}
	s.store.Swap(model)
	log.Infof("Restored model snapshot %d (%s, %s)", snapshot.ID,
		english.Plural(model.Samples, "sample", ""), english.Plural(len(model.ClassLabels), "identity", "identities"))
	return true, nil
}

// Recognize classifies every region of img, records the outcomes and
// notifies publishers. Regions are processed in order and each yields
// exactly one result.
func (s *Service) Recognize(ctx context.Context, img image.Image, regions []image.Rectangle, source string) ([]models.RecognitionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outcomes, err := s.recognizer.Recognize(s.store.Load(), img, regions)
	if err != nil {
		return nil, err
	}

	results := make([]models.RecognitionResult, len(outcomes))
	for i, out := range outcomes {
		results[i] = toResult(regions[i], out)
	}
	if len(results) > 0 {
		s.record(source, results)
	}
	return results, nil
}

// Reconstruct returns the face space approximation of region of img under
// the current model.
func (s *Service) Reconstruct(ctx context.Context, img image.Image, region image.Rectangle) (facespace.Patch, error) {
	if err := ctx.Err(); err != nil {
		return facespace.Patch{}, err
	}
	model := s.store.Load()
	if model == nil {
		return facespace.Patch{}, facespace.ErrModelNotTrained
	}
	patch, err := s.pre.Normalize(img, region)
	if err != nil {
		return facespace.Patch{}, err
	}
	weights, err := s.recognizer.Project(model, patch)
	if err != nil {
		return facespace.Patch{}, err
	}
	return model.Reconstruct(weights), nil
}

func (s *Service) record(source string, results []models.RecognitionResult) {
	rows := make([]models.Recognition, len(results))
	for i, r := range results {
		region, _ := json.Marshal(r.Region)
		rows[i] = models.Recognition{
			Source:     source,
			Outcome:    r.Outcome,
			Label:      r.Label,
			ClassIndex: r.ClassIndex,
			Residual:   r.Residual,
			Distance:   r.Distance,
			Region:     region,
		}
	}
	if err := s.repo.SaveRecognitions(rows); err != nil {
		log.WithError(err).Error("Failed to store recognition history")
	}

	event := models.RecognitionEvent{Source: source, Timestamp: time.Now().UTC(), Results: results}

	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	for _, p := range s.publishers {
		if err := p.PublishRecognition(event); err != nil {
			log.WithError(err).Warn("Failed to publish recognition event")
		}
	}
}

func toResult(region image.Rectangle, out facespace.Outcome) models.RecognitionResult {
	r := models.RecognitionResult{
		Region:     models.RegionFromRect(region),
		Outcome:    out.Kind.String(),
		Label:      out.Label,
		ClassIndex: out.ClassIndex,
		Residual:   out.Residual,
	}
	if !math.IsNaN(out.Distance) && !math.IsInf(out.Distance, 0) {
		d := out.Distance
		r.Distance = &d
	}
	return r
}

// WholeImage returns the single region covering img.
func WholeImage(img image.Image) []image.Rectangle {
	return []image.Rectangle{img.Bounds()}
}
