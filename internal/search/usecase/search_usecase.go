package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	docrepo "unifydata-backend/internal/document/repository"
	"unifydata-backend/pkg/embeddings"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/pipelineerr"
	"unifydata-backend/pkg/vectorindex"
)

const (
	defaultLimit = 10
	maxLimit     = 50

	// overfetchFactor pads the index query so the score threshold still
	// leaves enough candidates after filtering.
	overfetchFactor = 2
)

// QueryEmbedder is the slice of the embedding gateway search needs.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() embeddings.ModelSpec
}

// Resyncer schedules a background sync, used when stored vectors were
// produced by a different embedding model than the active one.
type Resyncer interface {
	TriggerResync(ctx context.Context, connectionID string)
}

// Result is one retrieved document with its best-matching chunk.
type Result struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	SourceType string  `json:"source_type"`
	URL        string  `json:"url,omitempty"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
	ChunkIndex string  `json:"chunk_index"`
	Content    string  `json:"content"`
}

// Request carries one semantic search.
type Request struct {
	OrgID      string
	Query      string
	Limit      int
	SourceType string
	MinScore   float64
}

type SearchUsecase interface {
	Search(ctx context.Context, req Request) ([]Result, error)
}

type searchUsecase struct {
	index     vectorindex.Index
	embedder  QueryEmbedder
	documents docrepo.DocumentRepository
	resyncer  Resyncer
	log       *logrus.Entry
}

func NewSearchUsecase(index vectorindex.Index, embedder QueryEmbedder, documents docrepo.DocumentRepository, resyncer Resyncer) SearchUsecase {
	return &searchUsecase{
		index:     index,
		embedder:  embedder,
		documents: documents,
		resyncer:  resyncer,
		log:       logger.For("search"),
	}
}

// Search embeds the query, over-fetches candidates from the tenant's
// partition, applies the score threshold client-side, then re-hydrates each
// surviving document from the relational store. Results collapse to one entry
// per document, keyed by its best-scoring chunk.
func (u *searchUsecase) Search(ctx context.Context, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	vector, err := u.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	var filter map[string]string
	if req.SourceType != "" {
		filter = map[string]string{"source_type": req.SourceType}
	}

	hits, err := u.index.Query(ctx, req.OrgID, vector, limit*overfetchFactor, filter)
	if err != nil {
		return nil, err
	}

	activeModel := u.embedder.Model().Name
	best := make(map[string]Result)
	staleConnections := make(map[string]struct{})

	for _, hit := range hits {
		if hit.Score < req.MinScore {
			continue
		}
		docID := hit.Metadata["document_id"]
		if docID == "" {
			docID = chunkDocumentID(hit.ID)
		}
		if existing, ok := best[docID]; ok && existing.Score >= hit.Score {
			continue
		}

		doc, err := u.documents.FindByID(docID)
		if err != nil {
			return nil, err
		}
		if doc == nil || doc.OrgID != req.OrgID {
			// Stale vector: the document left the system of record. Drop
			// the hit and clean the index up in the background.
			go u.cleanupStaleVector(req.OrgID, docID)
			continue
		}

		if model := hit.Metadata["embedding_model"]; model != "" && model != activeModel {
			staleConnections[doc.ConnectionID] = struct{}{}
		}

		// The full body comes from the document row; metadata only holds
		// the preview snippet.
		content := doc.Content
		if content == "" {
			content = hit.Metadata["content"]
		}
		best[docID] = Result{
			DocumentID: doc.ID,
			Title:      doc.Title,
			SourceType: doc.SourceType,
			URL:        doc.URL,
			Score:      hit.Score,
			Preview:    hit.Metadata["content"],
			ChunkIndex: hit.Metadata["chunk_index"],
			Content:    content,
		}
	}

	u.scheduleResyncs(ctx, staleConnections, activeModel)

	results := make([]Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scheduleResyncs kicks off re-embedding for connections whose vectors came
// from a different model. Serving mixed-model scores silently would corrupt
// the ranking; a resync converges the corpus back to one model.
func (u *searchUsecase) scheduleResyncs(ctx context.Context, connections map[string]struct{}, activeModel string) {
	for connectionID := range connections {
		u.log.WithError(pipelineerr.ErrModelMismatch).WithFields(logrus.Fields{
			"connection_id": connectionID,
			"active_model":  activeModel,
		}).Warn("scheduling re-embed")
		u.resyncer.TriggerResync(ctx, connectionID)
	}
}

func (u *searchUsecase) cleanupStaleVector(orgID, documentID string) {
	if err := u.index.DeleteByDocument(context.Background(), orgID, documentID); err != nil {
		u.log.WithError(err).WithField("document_id", documentID).
			Warn("stale vector cleanup failed")
	}
}

// chunkDocumentID recovers the document ID from a vector ID of the form
// "<document_id>_<chunk_index>".
func chunkDocumentID(vectorID string) string {
	if i := strings.LastIndex(vectorID, "_"); i > 0 {
		return vectorID[:i]
	}
	return vectorID
}
