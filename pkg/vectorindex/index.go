// Package vectorindex abstracts the tenant-partitioned vector store. Every
// operation names the tenant explicitly; no call can touch another tenant's
// vectors.
package vectorindex

import "context"

// Record is one chunk vector with its retrieval metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Hit is a query result. Score is a similarity in [0, 1], higher is closer.
type Hit struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

type Index interface {
	// Upsert writes records into the tenant's partition. Re-upserting an
	// existing ID overwrites it, so retries are idempotent.
	Upsert(ctx context.Context, tenantID string, records []Record) error

	// Query returns the topK nearest records in the tenant's partition.
	// A non-empty filter restricts matches to records whose metadata equals
	// every filter entry.
	Query(ctx context.Context, tenantID string, vector []float32, topK int, filter map[string]string) ([]Hit, error)

	// Delete removes the given record IDs.
	Delete(ctx context.Context, tenantID string, ids []string) error

	// DeleteByDocument removes every record belonging to one source document.
	DeleteByDocument(ctx context.Context, tenantID, documentID string) error

	// DropTenant removes the tenant's entire partition.
	DropTenant(ctx context.Context, tenantID string) error
}
