package services

import (
	"context"
	"errors"

	"github.com/Conceptual-Machines/melody-api/internal/models"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	// ErrNotFound is returned when a melody does not exist
	ErrNotFound = errors.New("melody not found")
	// ErrStoreUnavailable is returned by history operations when no database is configured
	ErrStoreUnavailable = errors.New("melody history is not configured")
)

// Store persists generated melodies
type Store interface {
	Save(ctx context.Context, record *models.MelodyRecord) error
	Get(ctx context.Context, id string) (*models.MelodyRecord, error)
	List(ctx context.Context, userID string, limit int) ([]models.MelodyRecord, error)
}

// MelodyStore is the gorm-backed Store
type MelodyStore struct {
	db *gorm.DB
}

func NewMelodyStore(db *gorm.DB) *MelodyStore {
	return &MelodyStore{db: db}
}

// Save inserts a record
func (s *MelodyStore) Save(ctx context.Context, record *models.MelodyRecord) error {
	return s.db.WithContext(ctx).Create(record).Error
}

// Get retrieves a record by ID
func (s *MelodyStore) Get(ctx context.Context, id string) (*models.MelodyRecord, error) {
	var record models.MelodyRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List returns the newest records, optionally for one user
func (s *MelodyStore) List(ctx context.Context, userID string, limit int) ([]models.MelodyRecord, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var records []models.MelodyRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
