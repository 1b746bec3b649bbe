package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"unifydata-backend/internal/chat/domain"
)

// ConversationRepository defines the interface for conversation data access
type ConversationRepository interface {
	Create(conv *domain.Conversation) error
	Update(conv *domain.Conversation) error
	FindByID(id string) (*domain.Conversation, error)
	FindByUser(orgID, userID string) ([]*domain.Conversation, error)
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	Create(msg *domain.Message) error
	FindByConversation(conversationID string) ([]*domain.Message, error)

	// FindRecent returns the latest messages of a conversation, oldest
	// first, bounded by limit.
	FindRecent(conversationID string, limit int) ([]*domain.Message, error)
}

type gormConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

func (r *gormConversationRepository) Create(conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()
	return r.db.Create(conv).Error
}

func (r *gormConversationRepository) Update(conv *domain.Conversation) error {
	conv.UpdatedAt = time.Now()
	return r.db.Save(conv).Error
}

func (r *gormConversationRepository) FindByID(id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (r *gormConversationRepository) FindByUser(orgID, userID string) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	err := r.db.Where("org_id = ? AND user_id = ?", orgID, userID).
		Order("updated_at DESC").Find(&convs).Error
	return convs, err
}

type gormMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	return r.db.Create(msg).Error
}

func (r *gormMessageRepository) FindByConversation(conversationID string) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Find(&msgs).Error
	return msgs, err
}

func (r *gormMessageRepository) FindRecent(conversationID string, limit int) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
