package repository

import (
	"errors"
	"time"

	"facespace/internal/core/models"

	"gorm.io/gorm"
)

// Repository defines the persistence operations of the service.
type Repository interface {
	// Training corpus
	SaveTrainingFace(face *models.TrainingFace) error
	GetTrainingFace(id uint) (*models.TrainingFace, error)
	FindTrainingFaceByHash(hash string) (*models.TrainingFace, error)
	ListTrainingFaces() ([]models.TrainingFace, error)
	DeleteTrainingFace(id uint) error
	DeleteLabel(label string) (int64, error)
	LabelCounts() ([]models.LabelCount, error)

	// Model snapshots
	SaveSnapshot(snapshot *models.ModelSnapshot) error
	LatestSnapshot() (*models.ModelSnapshot, error)

	// Recognition history
	SaveRecognitions(recognitions []models.Recognition) error
	RecentRecognitions(limit int) ([]models.Recognition, error)
	DeleteRecognitionsBefore(cutoff time.Time) (int64, error)

	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implements Repository with gorm.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveTrainingFace inserts or updates a training face.
func (r *SQLiteRepository) SaveTrainingFace(face *models.TrainingFace) error {
	return r.db.Save(face).Error
}

// GetTrainingFace returns the face with id, or nil if it does not exist.
func (r *SQLiteRepository) GetTrainingFace(id uint) (*models.TrainingFace, error) {
	var face models.TrainingFace
	if err := r.db.First(&face, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &face, nil
}

// FindTrainingFaceByHash returns the face with the given content hash, or nil.
func (r *SQLiteRepository) FindTrainingFaceByHash(hash string) (*models.TrainingFace, error) {
	var face models.TrainingFace
	if err := r.db.Where("content_hash = ?", hash).First(&face).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &face, nil
}

// ListTrainingFaces returns the whole corpus in enrolment order.
func (r *SQLiteRepository) ListTrainingFaces() ([]models.TrainingFace, error) {
	var faces []models.TrainingFace
	if err := r.db.Order("id ASC").Find(&faces).Error; err != nil {
		return nil, err
	}
	return faces, nil
}

// DeleteTrainingFace removes a face. Deleting a missing face returns
// gorm.ErrRecordNotFound.
func (r *SQLiteRepository) DeleteTrainingFace(id uint) error {
	result := r.db.Delete(&models.TrainingFace{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteLabel removes all faces of an identity and returns how many were removed.
func (r *SQLiteRepository) DeleteLabel(label string) (int64, error) {
	result := r.db.Where("label = ?", label).Delete(&models.TrainingFace{})
	return result.RowsAffected, result.Error
}

// LabelCounts returns the number of faces per identity, ordered by label.
func (r *SQLiteRepository) LabelCounts() ([]models.LabelCount, error) {
	var counts []models.LabelCount
	err := r.db.Model(&models.TrainingFace{}).
		Select("label, COUNT(*) AS count").
		Group("label").
		Order("label ASC").
		Scan(&counts).Error
	return counts, err
}

// SaveSnapshot stores a trained model.
func (r *SQLiteRepository) SaveSnapshot(snapshot *models.ModelSnapshot) error {
	return r.db.Create(snapshot).Error
}

// LatestSnapshot returns the most recent snapshot, or nil if none exists.
func (r *SQLiteRepository) LatestSnapshot() (*models.ModelSnapshot, error) {
	var snapshot models.ModelSnapshot
	if err := r.db.Order("id DESC").First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// SaveRecognitions stores the outcomes of one recognition call.
func (r *SQLiteRepository) SaveRecognitions(recognitions []models.Recognition) error {
	if len(recognitions) == 0 {
		return nil
	}
	return r.db.Create(&recognitions).Error
}

// RecentRecognitions returns the newest outcomes first.
func (r *SQLiteRepository) RecentRecognitions(limit int) ([]models.Recognition, error) {
	var recognitions []models.Recognition
	if err := r.db.Order("id DESC").Limit(limit).Find(&recognitions).Error; err != nil {
		return nil, err
	}
	return recognitions, nil
}

// DeleteRecognitionsBefore permanently removes outcomes created before cutoff.
func (r *SQLiteRepository) DeleteRecognitionsBefore(cutoff time.Time) (int64, error) {
	result := r.db.Unscoped().Where("created_at < ?", cutoff).Delete(&models.Recognition{})
	return result.RowsAffected, result.Error
}

// GetStatistics counts the stored records.
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics
	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.TrainingFaces, r.db.Model(&models.TrainingFace{})},
		{&stats.Identities, r.db.Model(&models.TrainingFace{}).Distinct("label")},
		{&stats.Snapshots, r.db.Model(&models.ModelSnapshot{})},
		{&stats.Recognitions, r.db.Model(&models.Recognition{})},
		{&stats.Identified, r.db.Model(&models.Recognition{}).Where("outcome = ?", "identified")},
		{&stats.Unknown, r.db.Model(&models.Recognition{}).Where("outcome = ?", "unknown")},
		{&stats.Rejected, r.db.Model(&models.Recognition{}).Where("outcome = ?", "rejected")},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return stats, err
		}
	}
	return stats, nil
}
