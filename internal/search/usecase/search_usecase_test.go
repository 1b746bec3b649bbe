package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	docdomain "unifydata-backend/internal/document/domain"
	"unifydata-backend/pkg/embeddings"
	"unifydata-backend/pkg/vectorindex"
)

type fakeQueryEmbedder struct {
	vector    []float32
	modelName string
}

func (e *fakeQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

func (e *fakeQueryEmbedder) Model() embeddings.ModelSpec {
	name := e.modelName
	if name == "" {
		name = "text-embedding-3-small"
	}
	return embeddings.ModelSpec{Name: name, Dimensions: 2, MaxTokens: 8191}
}

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]*docdomain.Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]*docdomain.Document)}
}

func (r *fakeDocStore) Create(doc *docdomain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *doc
	r.docs[doc.ID] = &clone
	return nil
}

func (r *fakeDocStore) Update(doc *docdomain.Document) error { return r.Create(doc) }

func (r *fakeDocStore) FindByID(id string) (*docdomain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[id]; ok {
		clone := *doc
		return &clone, nil
	}
	return nil, nil
}

func (r *fakeDocStore) FindByExternalID(string, string) (*docdomain.Document, error) {
	return nil, nil
}
func (r *fakeDocStore) FindByConnection(string) ([]*docdomain.Document, error) { return nil, nil }
func (r *fakeDocStore) Delete(string) error                                    { return nil }
func (r *fakeDocStore) DeleteByConnection(string) error                        { return nil }
func (r *fakeDocStore) CountByOrg(string) (int64, error)                       { return 0, nil }

type fakeResyncer struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeResyncer) TriggerResync(_ context.Context, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, connectionID)
}

func (r *fakeResyncer) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type searchFixture struct {
	usecase  SearchUsecase
	index    *vectorindex.MemoryIndex
	docs     *fakeDocStore
	embedder *fakeQueryEmbedder
	resyncer *fakeResyncer
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	f := &searchFixture{
		index:    vectorindex.NewMemoryIndex(),
		docs:     newFakeDocStore(),
		embedder: &fakeQueryEmbedder{vector: []float32{1, 0}},
		resyncer: &fakeResyncer{},
	}
	f.usecase = NewSearchUsecase(f.index, f.embedder, f.docs, f.resyncer)
	return f
}

// seed indexes one single-chunk document with the given vector.
func (f *searchFixture) seed(t *testing.T, docID, connID, sourceType string, vector []float32, extraMeta map[string]string) {
	t.Helper()
	f.docs.Create(&docdomain.Document{
		ID:             docID,
		OrgID:          "org-1",
		ConnectionID:   connID,
		ExternalID:     "ext-" + docID,
		SourceType:     sourceType,
		Title:          "Title " + docID,
		URL:            "https://source/" + docID,
		Content:        "Full body of " + docID,
		EmbeddingModel: "text-embedding-3-small",
		ChunkCount:     1,
	})
	meta := map[string]string{
		"document_id":     docID,
		"chunk_index":     "0",
		"org_id":          "org-1",
		"source_type":     sourceType,
		"title":           "Title " + docID,
		"content":         "Chunk text of " + docID,
		"embedding_model": "text-embedding-3-small",
	}
	for k, v := range extraMeta {
		meta[k] = v
	}
	err := f.index.Upsert(context.Background(), "org-1", []vectorindex.Record{
		{ID: docdomain.ChunkID(docID, 0), Vector: vector, Metadata: meta},
	})
	if err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
}

func TestSearchAppliesMinScore(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "close", "conn-1", "notion", []float32{1, 0}, nil)
	f.seed(t, "far", "conn-1", "notion", []float32{0.6, 0.8}, nil)

	results, err := f.usecase.Search(context.Background(), Request{
		OrgID:    "org-1",
		Query:    "anything",
		MinScore: 0.9,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "close" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Score < 0.9 {
		t.Errorf("score %f below threshold", results[0].Score)
	}
}

func TestSearchDropsDeletedDocuments(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "alive", "conn-1", "notion", []float32{1, 0}, nil)

	// A vector whose document no longer exists in the store.
	f.index.Upsert(context.Background(), "org-1", []vectorindex.Record{
		{ID: "ghost_0", Vector: []float32{1, 0}, Metadata: map[string]string{
			"document_id": "ghost",
			"source_type": "notion",
		}},
	})

	results, err := f.usecase.Search(context.Background(), Request{OrgID: "org-1", Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "alive" {
		t.Fatalf("stale vector surfaced: %+v", results)
	}

	// The orphan vector is cleaned up in the background.
	deadline := time.Now().Add(2 * time.Second)
	for f.index.Count("org-1") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("stale vector not cleaned up, %d records remain", f.index.Count("org-1"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSearchCollapsesChunksPerDocument(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "doc", "conn-1", "notion", []float32{1, 0}, nil)
	f.index.Upsert(context.Background(), "org-1", []vectorindex.Record{
		{ID: docdomain.ChunkID("doc", 1), Vector: []float32{0.9, 0.1}, Metadata: map[string]string{
			"document_id":     "doc",
			"chunk_index":     "1",
			"source_type":     "notion",
			"content":         "Second chunk",
			"embedding_model": "text-embedding-3-small",
		}},
	})

	results, err := f.usecase.Search(context.Background(), Request{OrgID: "org-1", Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result per document, got %d", len(results))
	}
	if results[0].ChunkIndex != "0" {
		t.Errorf("kept chunk %s, want best-scoring chunk 0", results[0].ChunkIndex)
	}
}

func TestSearchFiltersBySourceType(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "slackdoc", "conn-1", "slack", []float32{1, 0}, nil)
	f.seed(t, "notiondoc", "conn-2", "notion", []float32{1, 0}, nil)

	results, err := f.usecase.Search(context.Background(), Request{
		OrgID:      "org-1",
		Query:      "q",
		SourceType: "slack",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].SourceType != "slack" {
		t.Fatalf("source filter leaked: %+v", results)
	}
}

func TestSearchServesBodyFromDocumentRow(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "doc", "conn-1", "notion", []float32{1, 0}, nil)

	// Give the document a body far longer than the metadata snippet.
	body := strings.Repeat("The quarterly revenue discussion continues. ", 40)
	doc, _ := f.docs.FindByID("doc")
	doc.Content = body
	f.docs.Update(doc)

	results, err := f.usecase.Search(context.Background(), Request{OrgID: "org-1", Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != body {
		t.Errorf("content is not the stored body: %d chars, want %d", len(results[0].Content), len(body))
	}
	if results[0].Preview != "Chunk text of doc" {
		t.Errorf("preview = %q, want the indexed snippet", results[0].Preview)
	}
}

func TestSearchSchedulesResyncOnModelMismatch(t *testing.T) {
	f := newSearchFixture(t)
	for i := 0; i < 3; i++ {
		f.seed(t, fmt.Sprintf("doc-%d", i), "conn-old", "notion", []float32{1, 0},
			map[string]string{"embedding_model": "text-embedding-ada-002"})
	}

	results, err := f.usecase.Search(context.Background(), Request{OrgID: "org-1", Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("mismatched-model documents were dropped: %d results", len(results))
	}

	calls := f.resyncer.called()
	if len(calls) != 1 || calls[0] != "conn-old" {
		t.Errorf("expected one resync for conn-old, got %v", calls)
	}
}
