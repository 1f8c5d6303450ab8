package cleanup

import (
	"path/filepath"
	"testing"
	"time"

	"facespace/config"
	"facespace/internal/core/models"
	"facespace/internal/db"
	"facespace/internal/db/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledService(t *testing.T) {
	s := NewService(nil, 0, time.Hour)
	assert.Nil(t, s)
	s.StartBackgroundCleanup()
	s.StopBackgroundCleanup()
	assert.Zero(t, s.RunCleanupCycle())
}

func TestRunCleanupCycle(t *testing.T) {
	conn, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	repo := repository.NewSQLiteRepository(conn)

	require.NoError(t, repo.SaveRecognitions([]models.Recognition{{Outcome: "unknown"}, {Outcome: "rejected"}}))

	s := NewService(repo, 7, time.Hour)
	require.NotNil(t, s)
	assert.Zero(t, s.RunCleanupCycle(), "fresh history is kept")

	s.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	assert.Equal(t, int64(2), s.RunCleanupCycle())

	remaining, err := repo.RecentRecognitions(10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	s.StartBackgroundCleanup()
	s.StopBackgroundCleanup()
	s.StopBackgroundCleanup()
}
