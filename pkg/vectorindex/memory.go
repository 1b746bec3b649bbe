package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force cosine-similarity index. It backs tests and
// single-node development setups; the interface contract matches ChromaIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	tenants map[string]map[string]Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{tenants: make(map[string]map[string]Record)}
}

func (m *MemoryIndex) Upsert(_ context.Context, tenantID string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	partition, ok := m.tenants[tenantID]
	if !ok {
		partition = make(map[string]Record)
		m.tenants[tenantID] = partition
	}
	for _, rec := range records {
		partition[rec.ID] = rec
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, tenantID string, vector []float32, topK int, filter map[string]string) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	partition := m.tenants[tenantID]
	hits := make([]Hit, 0, len(partition))
	for _, rec := range partition {
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		hits = append(hits, Hit{
			ID:       rec.ID,
			Score:    cosineSimilarity(vector, rec.Vector),
			Metadata: rec.Metadata,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) Delete(_ context.Context, tenantID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	partition := m.tenants[tenantID]
	for _, id := range ids {
		delete(partition, id)
	}
	return nil
}

func (m *MemoryIndex) DeleteByDocument(_ context.Context, tenantID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.tenants[tenantID] {
		if rec.Metadata["document_id"] == documentID {
			delete(m.tenants[tenantID], id)
		}
	}
	return nil
}

func (m *MemoryIndex) DropTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, tenantID)
	return nil
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Count reports the number of records in a tenant's partition.
func (m *MemoryIndex) Count(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants[tenantID])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
