package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"unifydata-backend/internal/document/domain"
)

// DocumentRepository defines the interface for document state access
type DocumentRepository interface {
	Create(doc *domain.Document) error
	Update(doc *domain.Document) error
	FindByID(id string) (*domain.Document, error)
	FindByExternalID(connectionID, externalID string) (*domain.Document, error)
	FindByConnection(connectionID string) ([]*domain.Document, error)
	Delete(id string) error
	DeleteByConnection(connectionID string) error
	CountByOrg(orgID string) (int64, error)
}

type gormDocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &gormDocumentRepository{db: db}
}

func (r *gormDocumentRepository) Create(doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	return r.db.Create(doc).Error
}

func (r *gormDocumentRepository) Update(doc *domain.Document) error {
	doc.UpdatedAt = time.Now()
	return r.db.Save(doc).Error
}

func (r *gormDocumentRepository) FindByID(id string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *gormDocumentRepository) FindByExternalID(connectionID, externalID string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.Where("connection_id = ? AND external_id = ?", connectionID, externalID).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *gormDocumentRepository) FindByConnection(connectionID string) ([]*domain.Document, error) {
	var docs []*domain.Document
	err := r.db.Where("connection_id = ?", connectionID).Find(&docs).Error
	return docs, err
}

func (r *gormDocumentRepository) Delete(id string) error {
	return r.db.Delete(&domain.Document{}, "id = ?", id).Error
}

func (r *gormDocumentRepository) DeleteByConnection(connectionID string) error {
	return r.db.Delete(&domain.Document{}, "connection_id = ?", connectionID).Error
}

func (r *gormDocumentRepository) CountByOrg(orgID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Document{}).Where("org_id = ?", orgID).Count(&count).Error
	return count, err
}
