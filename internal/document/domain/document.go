package domain

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Document tracks one source document's indexed state. Chunk vectors live in
// the vector index under deterministic IDs "<document_id>_<chunk_index>", so
// ChunkCount is enough to reconstruct and delete the full ID set.
type Document struct {
	ID           string `json:"id" gorm:"primaryKey"`
	OrgID        string `json:"org_id" gorm:"index;not null"`
	ConnectionID string `json:"connection_id" gorm:"index;not null"`
	ExternalID   string `json:"external_id" gorm:"index;not null"`
	SourceType   string `json:"source_type" gorm:"not null"`

	Title string `json:"title"`
	URL   string `json:"url,omitempty"`

	// Content is the full normalized text, the body retrieval hands to
	// prompt assembly. Vector metadata only carries a preview snippet.
	Content string `json:"-" gorm:"type:text"`
	Format  string `json:"format"`

	// ContentHash fingerprints the normalized text; an unchanged hash means
	// the document is skipped on re-sync.
	ContentHash string `json:"content_hash" gorm:"not null"`

	// EmbeddingModel records which model produced the stored vectors.
	EmbeddingModel string `json:"embedding_model" gorm:"not null"`
	ChunkCount     int    `json:"chunk_count" gorm:"default:0"`
	WordCount      int    `json:"word_count" gorm:"default:0"`
	CharCount      int    `json:"char_count" gorm:"default:0"`

	// SourceModifiedAt is the provider's last-modified timestamp; an
	// unchanged value skips the document before any extraction work.
	SourceModifiedAt time.Time `json:"source_modified_at"`

	LastSyncedAt time.Time      `json:"last_synced_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// ChunkID returns the deterministic vector ID for one chunk of this document.
func (d *Document) ChunkID(index int) string {
	return ChunkID(d.ID, index)
}

// ChunkIDs returns every vector ID the document currently owns.
func (d *Document) ChunkIDs() []string {
	ids := make([]string, d.ChunkCount)
	for i := range ids {
		ids[i] = d.ChunkID(i)
	}
	return ids
}

// ChunkID builds the vector ID for a document chunk.
func ChunkID(documentID string, index int) string {
	return documentID + "_" + strconv.Itoa(index)
}
