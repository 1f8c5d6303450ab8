package repository

import (
	"path/filepath"
	"testing"
	"time"

	"facespace/config"
	"facespace/internal/core/models"
	"facespace/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	conn, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	return NewSQLiteRepository(conn)
}

func face(label, hash string) *models.TrainingFace {
	return &models.TrainingFace{Label: label, Width: 2, Height: 1, Pixels: []byte{1, 2}, ContentHash: hash}
}

func TestTrainingFaces(t *testing.T) {
	repo := newTestRepository(t)

	for _, f := range []*models.TrainingFace{face("bob", "h1"), face("alice", "h2"), face("bob", "h3")} {
		require.NoError(t, repo.SaveTrainingFace(f))
		assert.NotZero(t, f.ID)
	}

	faces, err := repo.ListTrainingFaces()
	require.NoError(t, err)
	require.Len(t, faces, 3)
	assert.Equal(t, []string{"bob", "alice", "bob"}, []string{faces[0].Label, faces[1].Label, faces[2].Label})
	assert.Equal(t, []byte{1, 2}, faces[0].Pixels)

	got, err := repo.GetTrainingFace(faces[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Label)

	missing, err := repo.GetTrainingFace(999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byHash, err := repo.FindTrainingFaceByHash("h3")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, faces[2].ID, byHash.ID)

	counts, err := repo.LabelCounts()
	require.NoError(t, err)
	assert.Equal(t, []models.LabelCount{{Label: "alice", Count: 1}, {Label: "bob", Count: 2}}, counts)

	require.NoError(t, repo.DeleteTrainingFace(faces[0].ID))
	assert.ErrorIs(t, repo.DeleteTrainingFace(faces[0].ID), gorm.ErrRecordNotFound)

	byHash, err = repo.FindTrainingFaceByHash("h1")
	require.NoError(t, err)
	assert.Nil(t, byHash, "deleted faces can be enrolled again")

	n, err := repo.DeleteLabel("bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	faces, err = repo.ListTrainingFaces()
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, "alice", faces[0].Label)
}

func TestSnapshots(t *testing.T) {
	repo := newTestRepository(t)

	latest, err := repo.LatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Samples: 4, Data: []byte(`{"version":1}`)}))
	require.NoError(t, repo.SaveSnapshot(&models.ModelSnapshot{Samples: 6, Data: []byte(`{"version":1}`)}))

	latest, err = repo.LatestSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 6, latest.Samples)
	assert.JSONEq(t, `{"version":1}`, string(latest.Data))
}

func TestRecognitions(t *testing.T) {
	repo := newTestRepository(t)
	distance := -0.8

	require.NoError(t, repo.SaveRecognitions(nil))
	require.NoError(t, repo.SaveRecognitions([]models.Recognition{
		{Source: "cam", Outcome: "identified", Label: "bob", Distance: &distance},
		{Source: "cam", Outcome: "unknown"},
		{Source: "cam", Outcome: "rejected"},
	}))

	recent, err := repo.RecentRecognitions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "rejected", recent[0].Outcome)
	assert.Equal(t, "unknown", recent[1].Outcome)

	all, err := repo.RecentRecognitions(10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.NotNil(t, all[2].Distance)
	assert.Equal(t, distance, *all[2].Distance)

	require.NoError(t, repo.SaveTrainingFace(face("bob", "h")))
	stats, err := repo.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, models.Statistics{
		TrainingFaces: 1,
		Identities:    1,
		Recognitions:  3,
		Identified:    1,
		Unknown:       1,
		Rejected:      1,
	}, stats)

	n, err := repo.DeleteRecognitionsBefore(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recent, err = repo.RecentRecognitions(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}
