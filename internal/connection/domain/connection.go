package domain

import "time"

// ConnectionStatus tracks a data source connection's lifecycle.
type ConnectionStatus string

const (
	StatusPending   ConnectionStatus = "pending"
	StatusConnected ConnectionStatus = "connected"
	StatusSyncing   ConnectionStatus = "syncing"
	StatusError     ConnectionStatus = "error"
)

// Connection is one authorized data source for an organization. Tokens are
// stored encrypted; the plaintext only exists in memory while a request or
// sync run needs it.
type Connection struct {
	ID         string           `json:"id" gorm:"primaryKey"`
	OrgID      string           `json:"org_id" gorm:"index;not null"`
	UserID     string           `json:"user_id" gorm:"index;not null"`
	SourceType string           `json:"source_type" gorm:"index;not null"`
	Status     ConnectionStatus `json:"status" gorm:"default:pending"`

	AccessTokenEnc  string    `json:"-" gorm:"column:access_token_enc"`
	RefreshTokenEnc string    `json:"-" gorm:"column:refresh_token_enc"`
	TokenExpiresAt  time.Time `json:"token_expires_at"`
	Scope           string    `json:"scope,omitempty"`
	InstanceURL     string    `json:"instance_url,omitempty"`
	WorkspaceID     string    `json:"workspace_id,omitempty"`

	AccountEmail string `json:"account_email,omitempty"`
	AccountName  string `json:"account_name,omitempty"`

	SyncFrequencySeconds int        `json:"sync_frequency_seconds" gorm:"default:3600"`
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt           *time.Time `json:"next_sync_at,omitempty"`
	LastSyncStatus       string     `json:"last_sync_status,omitempty"`
	LastSyncError        string     `json:"last_sync_error,omitempty"`

	TotalDocuments  int `json:"total_documents" gorm:"default:0"`
	TotalSyncCount  int `json:"total_sync_count" gorm:"default:0"`
	FailedSyncCount int `json:"failed_sync_count" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
