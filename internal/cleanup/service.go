package cleanup

import (
	"sync"
	"time"

	"facespace/internal/db/repository"

	"github.com/dustin/go-humanize/english"
	log "github.com/sirupsen/logrus"
)

// Service periodically deletes recognition history older than the retention period.
type Service struct {
	repo          repository.Repository
	retentionDays int
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	now           func() time.Time
}

// NewService returns nil when retentionDays <= 0, which disables cleanup.
func NewService(repo repository.Repository, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// StartBackgroundCleanup runs one cycle immediately and then one per interval.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup stops the background routine.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCleanupCycle deletes expired recognitions and returns how many were removed.
func (s *Service) RunCleanupCycle() int64 {
	if s == nil {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	log.Debugf("Cleanup: deleting recognitions older than %s", cutoff.Format(time.RFC3339))

	deleted, err := s.repo.DeleteRecognitionsBefore(cutoff)
	if err != nil {
		log.WithError(err).Error("Cleanup: failed to delete old recognitions")
		return 0
	}
	if deleted > 0 {
		log.Infof("Cleanup: deleted %s", english.Plural(int(deleted), "recognition", ""))
	}
	return deleted
}
