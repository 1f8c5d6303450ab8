package processor

import (
	"context"
	"image"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"facespace/config"
	"facespace/internal/core/models"
	"facespace/internal/db"
	"facespace/internal/db/repository"
	"facespace/internal/facespace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPatch = 16

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Workers: 2, HistoryLimit: 50},
		Model: config.ModelConfig{
			PatchWidth:         testPatch,
			PatchHeight:        testPatch,
			FaceSpaceThreshold: math.Inf(1),
			UnknownThreshold:   math.Inf(1),
			Metric:             "mahalanobis_cosine",
			Decision:           "distance",
			Illumination:       "none",
			Preprocessor:       "imaging",
		},
		Classifier: config.ClassifierConfig{
			Kernel:        "rbf",
			C:             10,
			Gamma:         0.1,
			Tolerance:     1e-3,
			MaxPasses:     10,
			MaxIterations: 1000,
		},
	}
}

func newTestRepo(t *testing.T) *repository.SQLiteRepository {
	t.Helper()
	conn, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	return repository.NewSQLiteRepository(conn)
}

func newTestService(t *testing.T, cfg *config.Config, repo repository.Repository) *Service {
	t.Helper()
	svc, err := NewService(cfg, repo)
	require.NoError(t, err)
	return svc
}

// faceImage draws a 2x upscaled synthetic face of identity id.
func faceImage(id int, rng *rand.Rand, noise float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 2*testPatch, 2*testPatch))
	for y := 0; y < 2*testPatch; y++ {
		for x := 0; x < 2*testPatch; x++ {
			fx, fy := float64(x)/(2*testPatch), float64(y)/(2*testPatch)
			var v float64
			if id == 0 {
				v = 0.5 + 0.4*math.Sin(2*math.Pi*fx)
			} else {
				v = 0.5 + 0.4*math.Cos(2*math.Pi*fy)
			}
			v += noise * (rng.Float64()*2 - 1)
			img.Pix[y*img.Stride+x] = uint8(math.Round(255 * math.Min(1, math.Max(0, v))))
		}
	}
	return img
}

type corpusImage struct {
	label string
	img   *image.Gray
}

func enrollCorpus(t *testing.T, svc *Service, perClass int) []corpusImage {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	var corpus []corpusImage
	for id, label := range []string{"ada", "grace"} {
		for i := 0; i < perClass; i++ {
			img := faceImage(id, rng, 0.05)
			_, created, err := svc.Enroll(context.Background(), img, img.Bounds(), label, "test")
			require.NoError(t, err)
			require.True(t, created)
			corpus = append(corpus, corpusImage{label: label, img: img})
		}
	}
	return corpus
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RecognitionEvent
}

func (p *recordingPublisher) PublishRecognition(event models.RecognitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestEnroll(t *testing.T) {
	svc := newTestService(t, testConfig(), newTestRepo(t))
	ctx := context.Background()
	img := faceImage(0, rand.New(rand.NewSource(2)), 0.05)

	_, _, err := svc.Enroll(ctx, img, img.Bounds(), "   ", "test")
	assert.ErrorIs(t, err, ErrEmptyLabel)

	for _, label := range []string{"a\xff", "a\xfe"} {
		_, _, err = svc.Enroll(ctx, img, img.Bounds(), label, "test")
		assert.ErrorIs(t, err, facespace.ErrInvalidLabel, label)
	}

	_, _, err = svc.Enroll(ctx, img, image.Rect(0, 0, 100, 100), "ada", "test")
	assert.ErrorIs(t, err, facespace.ErrInvalidRegion)

	face, created, err := svc.Enroll(ctx, img, img.Bounds(), " Amélie ", "test")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Amélie", face.Label)
	assert.Equal(t, testPatch, face.Width)
	assert.Len(t, face.Pixels, testPatch*testPatch)

	again, created, err := svc.Enroll(ctx, img, img.Bounds(), "Ame\u0301lie", "other")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, face.ID, again.ID)

	_, created, err = svc.Enroll(ctx, img, img.Bounds(), "someone else", "test")
	require.NoError(t, err)
	assert.True(t, created, "same pixels under another label are a new sample")
}

func TestTrainRequiresCorpus(t *testing.T) {
	svc := newTestService(t, testConfig(), newTestRepo(t))
	ctx := context.Background()

	_, err := svc.Recognize(ctx, image.NewGray(image.Rect(0, 0, 8, 8)), []image.Rectangle{image.Rect(0, 0, 8, 8)}, "test")
	assert.ErrorIs(t, err, facespace.ErrModelNotTrained)

	img := faceImage(0, rand.New(rand.NewSource(3)), 0.05)
	_, _, err = svc.Enroll(ctx, img, img.Bounds(), "ada", "test")
	require.NoError(t, err)

	_, err = svc.Train(ctx)
	assert.ErrorIs(t, err, facespace.ErrInsufficientData)
	assert.Nil(t, svc.Model())
}

func TestTrainRecognizeAndRecord(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, testConfig(), repo)
	pub := &recordingPublisher{}
	svc.AddPublisher(pub)
	corpus := enrollCorpus(t, svc, 4)

	model, err := svc.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, model.Components())
	assert.Equal(t, []string{"ada", "grace"}, model.ClassLabels)
	assert.Same(t, model, svc.Model())

	for _, c := range corpus {
		results, err := svc.Recognize(context.Background(), c.img, WholeImage(c.img), "cam")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "identified", results[0].Outcome)
		assert.Equal(t, c.label, results[0].Label)
		require.NotNil(t, results[0].Distance)
	}

	assert.Equal(t, len(corpus), pub.count())
	history, err := repo.RecentRecognitions(100)
	require.NoError(t, err)
	assert.Len(t, history, len(corpus))

	snapshot, err := repo.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 8, snapshot.Samples)
	assert.Equal(t, "distance", snapshot.Decision)
}

func TestRecognizeInvalidRegionFailsWholeCall(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, testConfig(), repo)
	corpus := enrollCorpus(t, svc, 3)
	_, err := svc.Train(context.Background())
	require.NoError(t, err)

	img := corpus[0].img
	_, err = svc.Recognize(context.Background(), img, []image.Rectangle{img.Bounds(), image.Rect(-1, 0, 4, 4)}, "cam")
	assert.ErrorIs(t, err, facespace.ErrInvalidRegion)

	history, err := repo.RecentRecognitions(10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRestoreAppliesConfiguredThresholds(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, testConfig(), repo)
	corpus := enrollCorpus(t, svc, 3)
	trained, err := svc.Train(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Model.FaceSpaceThreshold = -1
	restoredSvc := newTestService(t, cfg, repo)
	ok, err := restoredSvc.Restore()
	require.NoError(t, err)
	require.True(t, ok)

	restored := restoredSvc.Model()
	assert.Equal(t, trained.Mean, restored.Mean)
	assert.Equal(t, trained.ClassLabels, restored.ClassLabels)
	assert.Equal(t, -1.0, restored.FaceSpaceThreshold)

	results, err := restoredSvc.Recognize(context.Background(), corpus[0].img, WholeImage(corpus[0].img), "cam")
	require.NoError(t, err)
	assert.Equal(t, "rejected", results[0].Outcome)

	empty := newTestService(t, testConfig(), newTestRepo(t))
	ok, err = empty.Restore()
	require.NoError(t, err)
	assert.False(t, ok)

	other := testConfig()
	other.Model.PatchWidth = 20
	_, err = newTestService(t, other, repo).Restore()
	assert.Error(t, err)
}

func TestClassifierDecision(t *testing.T) {
	cfg := testConfig()
	cfg.Model.Decision = "classifier"
	cfg.Model.UnknownThreshold = math.Inf(-1)
	svc := newTestService(t, cfg, newTestRepo(t))
	corpus := enrollCorpus(t, svc, 4)

	model, err := svc.Train(context.Background())
	require.NoError(t, err)
	require.Equal(t, facespace.DecisionClassifier, model.Mode())

	for _, c := range corpus {
		results, err := svc.Recognize(context.Background(), c.img, WholeImage(c.img), "cam")
		require.NoError(t, err)
		assert.Equal(t, "identified", results[0].Outcome)
		assert.Equal(t, c.label, results[0].Label)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"metric", func(c *config.Config) { c.Model.Metric = "manhattan" }},
		{"illumination", func(c *config.Config) { c.Model.Illumination = "retinex" }},
		{"preprocessor", func(c *config.Config) { c.Model.Preprocessor = "magick" }},
		{"decision", func(c *config.Config) { c.Model.Decision = "vote" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewService(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestReconstruct(t *testing.T) {
	svc := newTestService(t, testConfig(), newTestRepo(t))
	ctx := context.Background()
	query := faceImage(1, rand.New(rand.NewSource(11)), 0.05)

	_, err := svc.Reconstruct(ctx, query, query.Bounds())
	assert.ErrorIs(t, err, facespace.ErrModelNotTrained)

	corpus := enrollCorpus(t, svc, 3)
	_, err = svc.Train(ctx)
	require.NoError(t, err)

	// A training face lies in its own face space.
	recon, err := svc.Reconstruct(ctx, corpus[0].img, corpus[0].img.Bounds())
	require.NoError(t, err)
	assert.Equal(t, testPatch, recon.Width)
	assert.Len(t, recon.Pix, testPatch*testPatch)

	results, err := svc.Recognize(ctx, corpus[0].img, WholeImage(corpus[0].img), "test")
	require.NoError(t, err)
	assert.Less(t, results[0].Residual, 1e-6)

	_, err = svc.Reconstruct(ctx, query, image.Rect(0, 0, 100, 100))
	assert.ErrorIs(t, err, facespace.ErrInvalidRegion)
}
