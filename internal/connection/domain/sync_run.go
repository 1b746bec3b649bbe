package domain

import "time"

// SyncRunStatus is the terminal or in-flight state of one sync run.
type SyncRunStatus string

const (
	RunInProgress SyncRunStatus = "in_progress"
	RunSuccess    SyncRunStatus = "success"
	RunFailed     SyncRunStatus = "failed"
	RunCancelled  SyncRunStatus = "cancelled"
)

// SyncRun is the audit record of one orchestrated sync. Document-level
// failures increment DocumentsFailed without failing the run; only
// infrastructure failures mark the run failed.
type SyncRun struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	ConnectionID string        `json:"connection_id" gorm:"index;not null"`
	OrgID        string        `json:"org_id" gorm:"index;not null"`
	Status       SyncRunStatus `json:"status" gorm:"default:in_progress"`

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`

	DocumentsProcessed int `json:"documents_processed" gorm:"default:0"`
	DocumentsAdded     int `json:"documents_added" gorm:"default:0"`
	DocumentsUpdated   int `json:"documents_updated" gorm:"default:0"`
	DocumentsDeleted   int `json:"documents_deleted" gorm:"default:0"`
	DocumentsFailed    int `json:"documents_failed" gorm:"default:0"`

	ErrorMessage string `json:"error_message,omitempty"`
}
