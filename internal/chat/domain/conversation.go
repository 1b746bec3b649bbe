package domain

import "time"

// titleLength caps the auto-generated conversation title.
const titleLength = 50

// Conversation is one threaded exchange owned by a tenant user.
type Conversation struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	OrgID     string    `json:"org_id" gorm:"index;not null"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TitleFromQuestion derives a conversation title from its first question.
func TitleFromQuestion(question string) string {
	if len(question) <= titleLength {
		return question
	}
	return question[:titleLength] + "..."
}

// MessageRole is the author of one message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn. Assistant messages carry the retrieval context they
// were grounded on and the token/cost accounting of the exchange.
type Message struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	ConversationID string      `json:"conversation_id" gorm:"index;not null"`
	OrgID          string      `json:"org_id" gorm:"index;not null"`
	Role           MessageRole `json:"role" gorm:"not null"`
	Content        string      `json:"content" gorm:"not null"`

	SourceDocumentIDs []string `json:"source_document_ids,omitempty" gorm:"serializer:json"`

	Model          string  `json:"model,omitempty"`
	InputTokens    int     `json:"input_tokens" gorm:"default:0"`
	OutputTokens   int     `json:"output_tokens" gorm:"default:0"`
	CostUSD        float64 `json:"cost_usd" gorm:"default:0"`
	ResponseTimeMs int64   `json:"response_time_ms" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
}
