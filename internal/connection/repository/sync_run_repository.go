package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"unifydata-backend/internal/connection/domain"
)

// SyncRunRepository defines the interface for sync run audit records
type SyncRunRepository interface {
	Create(run *domain.SyncRun) error
	Update(run *domain.SyncRun) error
	FindByConnection(connectionID string, limit int) ([]*domain.SyncRun, error)
	FindInProgress(connectionID string) (*domain.SyncRun, error)
}

type gormSyncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &gormSyncRunRepository{db: db}
}

func (r *gormSyncRunRepository) Create(run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	return r.db.Create(run).Error
}

func (r *gormSyncRunRepository) Update(run *domain.SyncRun) error {
	return r.db.Save(run).Error
}

func (r *gormSyncRunRepository) FindByConnection(connectionID string, limit int) ([]*domain.SyncRun, error) {
	var runs []*domain.SyncRun
	err := r.db.Where("connection_id = ?", connectionID).
		Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (r *gormSyncRunRepository) FindInProgress(connectionID string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := r.db.Where("connection_id = ? AND status = ?", connectionID, domain.RunInProgress).
		First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
