package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"unifydata-backend/internal/connection/domain"
)

// ConnectionRepository defines the interface for connection data access
type ConnectionRepository interface {
	Create(conn *domain.Connection) error
	FindByID(id string) (*domain.Connection, error)
	FindByOrg(orgID string) ([]*domain.Connection, error)
	FindByOrgAndType(orgID, sourceType string) (*domain.Connection, error)
	Update(conn *domain.Connection) error
	Delete(id string) error

	// FindDueForSync returns sources whose next_sync_at has passed. Errored
	// connections stay eligible so a failed run does not strand the source.
	FindDueForSync(now time.Time) ([]*domain.Connection, error)
}

type gormConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

func (r *gormConnectionRepository) Create(conn *domain.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = time.Now()
	return r.db.Create(conn).Error
}

func (r *gormConnectionRepository) FindByID(id string) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.Where("id = ?", id).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *gormConnectionRepository) FindByOrg(orgID string) ([]*domain.Connection, error) {
	var conns []*domain.Connection
	err := r.db.Where("org_id = ?", orgID).Order("created_at ASC").Find(&conns).Error
	return conns, err
}

func (r *gormConnectionRepository) FindByOrgAndType(orgID, sourceType string) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.Where("org_id = ? AND source_type = ?", orgID, sourceType).First(&conn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *gormConnectionRepository) Update(conn *domain.Connection) error {
	conn.UpdatedAt = time.Now()
	return r.db.Save(conn).Error
}

func (r *gormConnectionRepository) Delete(id string) error {
	return r.db.Delete(&domain.Connection{}, "id = ?", id).Error
}

func (r *gormConnectionRepository) FindDueForSync(now time.Time) ([]*domain.Connection, error) {
	var conns []*domain.Connection
	statuses := []domain.ConnectionStatus{domain.StatusConnected, domain.StatusError}
	err := r.db.Where("status IN ? AND next_sync_at <= ?", statuses, now).Find(&conns).Error
	return conns, err
}
