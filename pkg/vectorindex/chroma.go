package vectorindex

import (
	"context"
	"fmt"
	"sync"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chromaembed "github.com/amikos-tech/chroma-go/pkg/embeddings"

	"unifydata-backend/pkg/pipelineerr"
)

// ChromaIndex keeps one collection per tenant, named docs_<tenantID>, so
// isolation is structural rather than a query-time filter.
type ChromaIndex struct {
	client chroma.Client

	mu          sync.Mutex
	collections map[string]chroma.Collection
}

func NewChromaIndex(baseURL, apiKey, tenant, database string) (*ChromaIndex, error) {
	if baseURL == "" {
		baseURL = chroma.ChromaCloudEndpoint
	}

	opts := []chroma.ClientOption{chroma.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, chroma.WithCloudAPIKey(apiKey))
	}
	if database != "" && tenant != "" {
		opts = append(opts, chroma.WithDatabaseAndTenant(database, tenant))
	} else if tenant != "" {
		opts = append(opts, chroma.WithTenant(tenant))
	}

	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	return &ChromaIndex{
		client:      client,
		collections: make(map[string]chroma.Collection),
	}, nil
}

func collectionName(tenantID string) string {
	return "docs_" + tenantID
}

func (c *ChromaIndex) collectionFor(ctx context.Context, tenantID string) (chroma.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.collections[tenantID]; ok {
		return col, nil
	}
	col, err := c.client.GetOrCreateCollection(ctx, collectionName(tenantID))
	if err != nil {
		return nil, fmt.Errorf("%w: open collection for tenant %s: %v", pipelineerr.ErrIndexUnavailable, tenantID, err)
	}
	c.collections[tenantID] = col
	return col, nil
}

func (c *ChromaIndex) Upsert(ctx context.Context, tenantID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := c.collectionFor(ctx, tenantID)
	if err != nil {
		return err
	}

	ids := make([]chroma.DocumentID, len(records))
	vectors := make([]chromaembed.Embedding, len(records))
	metadatas := make([]chroma.DocumentMetadata, len(records))
	for i, rec := range records {
		ids[i] = chroma.DocumentID(rec.ID)
		vectors[i] = chromaembed.NewEmbeddingFromFloat32(rec.Vector)

		fields := make(map[string]interface{}, len(rec.Metadata))
		for k, v := range rec.Metadata {
			fields[k] = v
		}
		md, err := chroma.NewDocumentMetadataFromMap(fields)
		if err != nil {
			return fmt.Errorf("build metadata for %s: %w", rec.ID, err)
		}
		metadatas[i] = md
	}

	if err := col.Upsert(ctx,
		chroma.WithIDs(ids...),
		chroma.WithEmbeddings(vectors...),
		chroma.WithMetadatas(metadatas...),
	); err != nil {
		return fmt.Errorf("%w: upsert %d records for tenant %s: %v", pipelineerr.ErrIndexUnavailable, len(records), tenantID, err)
	}
	return nil
}

func (c *ChromaIndex) Query(ctx context.Context, tenantID string, vector []float32, topK int, filter map[string]string) ([]Hit, error) {
	col, err := c.collectionFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryEmbeddings(chromaembed.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(topK),
	}
	for k, v := range filter {
		opts = append(opts, chroma.WithWhereQuery(chroma.EqString(k, v)))
	}

	results, err := col.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: query tenant %s: %v", pipelineerr.ErrIndexUnavailable, tenantID, err)
	}
	if results == nil || results.CountGroups() == 0 {
		return nil, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	metadataGroups := results.GetMetadatasGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		hit := Hit{ID: string(id)}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			// Chroma reports distance; similarity is its complement.
			hit.Score = 1 - float64(distanceGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			hit.Metadata = metadataToMap(metadataGroups[0][i])
		}
		// The server applied the filter already; re-check locally so the
		// memory and chroma implementations share one contract.
		if !matchesFilter(hit.Metadata, filter) {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// metadataFields is the fixed schema every record carries.
var metadataFields = []string{
	"document_id", "chunk_index", "org_id", "source_type", "title", "content", "url", "embedding_model",
}

func metadataToMap(md chroma.DocumentMetadata) map[string]string {
	out := make(map[string]string)
	for _, key := range metadataFields {
		if v, ok := md.GetString(key); ok {
			out[key] = v
		}
	}
	return out
}

func (c *ChromaIndex) Delete(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := c.collectionFor(ctx, tenantID)
	if err != nil {
		return err
	}
	docIDs := make([]chroma.DocumentID, len(ids))
	for i, id := range ids {
		docIDs[i] = chroma.DocumentID(id)
	}
	if err := col.Delete(ctx, chroma.WithIDsDelete(docIDs...)); err != nil {
		return fmt.Errorf("%w: delete %d records for tenant %s: %v", pipelineerr.ErrIndexUnavailable, len(ids), tenantID, err)
	}
	return nil
}

func (c *ChromaIndex) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	col, err := c.collectionFor(ctx, tenantID)
	if err != nil {
		return err
	}
	where := chroma.EqString("document_id", documentID)
	if err := col.Delete(ctx, chroma.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("%w: delete document %s for tenant %s: %v", pipelineerr.ErrIndexUnavailable, documentID, tenantID, err)
	}
	return nil
}

func (c *ChromaIndex) DropTenant(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	delete(c.collections, tenantID)
	c.mu.Unlock()

	if err := c.client.DeleteCollection(ctx, collectionName(tenantID)); err != nil {
		return fmt.Errorf("%w: drop tenant %s: %v", pipelineerr.ErrIndexUnavailable, tenantID, err)
	}
	return nil
}
