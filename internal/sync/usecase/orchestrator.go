package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	conndomain "unifydata-backend/internal/connection/domain"
	connrepo "unifydata-backend/internal/connection/repository"
	docdomain "unifydata-backend/internal/document/domain"
	docrepo "unifydata-backend/internal/document/repository"
	"unifydata-backend/pkg/chunker"
	"unifydata-backend/pkg/connectors"
	"unifydata-backend/pkg/embeddings"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/normalizer"
	"unifydata-backend/pkg/pipelineerr"
	"unifydata-backend/pkg/vectorindex"
)

// snippetLength is how much chunk text is kept in vector metadata as the
// result preview. The full document body lives on the Document row.
const snippetLength = 500

// truncateSnippet caps text at snippetLength bytes without cutting a rune.
func truncateSnippet(text string) string {
	if len(text) <= snippetLength {
		return text
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Embedder is the slice of the embedding gateway the orchestrator needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() embeddings.ModelSpec
}

// TokenSource supplies valid access tokens for a connection.
type TokenSource interface {
	ValidToken(ctx context.Context, conn *conndomain.Connection) (*connectors.TokenSet, error)
}

// ConnectorResolver resolves a source type to its connector.
type ConnectorResolver interface {
	Get(sourceType string) (connectors.Connector, error)
}

// Orchestrator drives sync runs end to end: fetch, normalize, chunk, embed,
// index. Document failures are isolated; infrastructure failures abort the
// run. Worker capacity is shared across concurrent runs.
type Orchestrator struct {
	connections connrepo.ConnectionRepository
	runs        connrepo.SyncRunRepository
	documents   docrepo.DocumentRepository
	resolver    ConnectorResolver
	tokens      TokenSource
	index       vectorindex.Index
	embedder    Embedder
	chunker     *chunker.Chunker
	sem         chan struct{}
	log         *logrus.Entry
}

func NewOrchestrator(
	connections connrepo.ConnectionRepository,
	runs connrepo.SyncRunRepository,
	documents docrepo.DocumentRepository,
	resolver ConnectorResolver,
	tokens TokenSource,
	index vectorindex.Index,
	embedder Embedder,
	ch *chunker.Chunker,
	workers int,
) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		connections: connections,
		runs:        runs,
		documents:   documents,
		resolver:    resolver,
		tokens:      tokens,
		index:       index,
		embedder:    embedder,
		chunker:     ch,
		sem:         make(chan struct{}, workers),
		log:         logger.For("sync"),
	}
}

// TriggerSync creates a run record and processes it in the background. A
// connection can only have one run in flight.
func (o *Orchestrator) TriggerSync(ctx context.Context, connectionID string) (*conndomain.SyncRun, error) {
	conn, err := o.connections.FindByID(connectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %s not found", connectionID)
	}

	inflight, err := o.runs.FindInProgress(connectionID)
	if err != nil {
		return nil, fmt.Errorf("check running syncs: %w", err)
	}
	if inflight != nil {
		return nil, fmt.Errorf("sync already in progress for connection %s", connectionID)
	}

	run := &conndomain.SyncRun{
		ConnectionID: conn.ID,
		OrgID:        conn.OrgID,
		Status:       conndomain.RunInProgress,
		StartedAt:    time.Now(),
	}
	if err := o.runs.Create(run); err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}

	conn.Status = conndomain.StatusSyncing
	if err := o.connections.Update(conn); err != nil {
		return nil, fmt.Errorf("mark connection syncing: %w", err)
	}

	go o.execute(context.WithoutCancel(ctx), conn, run)
	return run, nil
}

// TriggerResync requests a best-effort background sync, swallowing the
// conflict error when a run is already in flight. Search uses it to converge
// the corpus after an embedding model change.
func (o *Orchestrator) TriggerResync(ctx context.Context, connectionID string) {
	if _, err := o.TriggerSync(ctx, connectionID); err != nil {
		o.log.WithError(err).WithField("connection_id", connectionID).
			Debug("resync not started")
	}
}

// RunSync executes a sync synchronously. The scheduler and tests use it; the
// HTTP trigger goes through TriggerSync.
func (o *Orchestrator) RunSync(ctx context.Context, conn *conndomain.Connection, run *conndomain.SyncRun) {
	o.execute(ctx, conn, run)
}

type syncStats struct {
	mu        sync.Mutex
	processed int
	added     int
	updated   int
	deleted   int
	failed    int
}

func (s *syncStats) record(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	switch action {
	case "created":
		s.added++
	case "updated":
		s.updated++
	}
}

// fail counts the document as both processed and failed; processed covers
// every fetched item the run attempted.
func (s *syncStats) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.failed++
}

func (s *syncStats) remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted++
}

func (o *Orchestrator) execute(ctx context.Context, conn *conndomain.Connection, run *conndomain.SyncRun) {
	log := o.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"source_type":   conn.SourceType,
		"run_id":        run.ID,
	})
	log.Info("sync started")

	stats := &syncStats{}
	err := o.syncDocuments(ctx, conn, stats, log)
	o.finalize(conn, run, stats, err, log)
}

func (o *Orchestrator) syncDocuments(ctx context.Context, conn *conndomain.Connection, stats *syncStats, log *logrus.Entry) error {
	connector, err := o.resolver.Get(conn.SourceType)
	if err != nil {
		return err
	}
	tokens, err := o.tokens.ValidToken(ctx, conn)
	if err != nil {
		return err
	}

	docs, err := connector.FetchDocuments(ctx, tokens)
	if err != nil {
		return err
	}
	log.WithField("count", len(docs)).Info("documents fetched")

	// A failed index write aborts everything in flight: indexing without
	// the index is meaningless.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for _, src := range docs {
		if ctx.Err() != nil {
			break
		}
		o.sem <- struct{}{}
		wg.Add(1)
		go func(src connectors.SourceDocument) {
			defer wg.Done()
			defer func() { <-o.sem }()

			action, err := o.processDocument(ctx, conn, src)
			if err != nil {
				if errors.Is(err, pipelineerr.ErrIndexUnavailable) || errors.Is(err, context.Canceled) {
					fatalMu.Lock()
					if fatalErr == nil && !errors.Is(err, context.Canceled) {
						fatalErr = err
					}
					fatalMu.Unlock()
					cancel()
					return
				}
				log.WithError(err).WithField("external_id", src.ExternalID).
					Warn("document failed")
				stats.fail()
				return
			}
			stats.record(action)
		}(src)
	}
	wg.Wait()
	if fatalErr != nil {
		return fatalErr
	}

	return o.reconcileDeletions(ctx, conn, docs, stats, log)
}

// reconcileDeletions purges documents the provider no longer returns. The
// fetch is a complete listing, so absence means deletion at the source.
func (o *Orchestrator) reconcileDeletions(ctx context.Context, conn *conndomain.Connection, fetched []connectors.SourceDocument, stats *syncStats, log *logrus.Entry) error {
	present := make(map[string]struct{}, len(fetched))
	for _, src := range fetched {
		present[src.ExternalID] = struct{}{}
	}

	known, err := o.documents.FindByConnection(conn.ID)
	if err != nil {
		return fmt.Errorf("list indexed documents: %w", err)
	}
	for _, doc := range known {
		if _, ok := present[doc.ExternalID]; ok {
			continue
		}
		if err := o.index.DeleteByDocument(ctx, conn.OrgID, doc.ID); err != nil {
			return err
		}
		if err := o.documents.Delete(doc.ID); err != nil {
			return fmt.Errorf("delete document %s: %w", doc.ID, err)
		}
		stats.remove()
		log.WithField("external_id", doc.ExternalID).Info("document removed at source")
	}
	return nil
}

// processDocument runs one document through the pipeline. Returns "created",
// "updated" or "skipped".
func (o *Orchestrator) processDocument(ctx context.Context, conn *conndomain.Connection, src connectors.SourceDocument) (string, error) {
	model := o.embedder.Model().Name

	existing, err := o.documents.FindByExternalID(conn.ID, src.ExternalID)
	if err != nil {
		return "", fmt.Errorf("load document state: %w", err)
	}

	// The provider's last-modified timestamp short-circuits the pipeline
	// before any extraction work. A model change still forces a re-embed.
	if existing != nil && existing.EmbeddingModel == model &&
		!src.ModifiedAt.IsZero() && !src.ModifiedAt.After(existing.SourceModifiedAt) {
		existing.LastSyncedAt = time.Now()
		if err := o.documents.Update(existing); err != nil {
			return "", fmt.Errorf("touch document: %w", err)
		}
		return "skipped", nil
	}

	normalized, err := normalizer.Extract(src.Filename, src.Content)
	if err != nil {
		return "", err
	}
	text := normalized.Text

	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	// Unchanged content embedded with the current model needs no work.
	if existing != nil && existing.ContentHash == hash && existing.EmbeddingModel == model {
		existing.SourceModifiedAt = src.ModifiedAt
		existing.LastSyncedAt = time.Now()
		if err := o.documents.Update(existing); err != nil {
			return "", fmt.Errorf("touch document: %w", err)
		}
		return "skipped", nil
	}

	chunks := o.chunker.Split(text)
	if len(chunks) == 0 {
		return "skipped", nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return "", err
	}

	action := "updated"
	doc := existing
	if doc == nil {
		action = "created"
		doc = &docdomain.Document{
			OrgID:        conn.OrgID,
			ConnectionID: conn.ID,
			ExternalID:   src.ExternalID,
			SourceType:   conn.SourceType,
		}
		if err := o.documents.Create(doc); err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}
	}
	previousCount := 0
	if existing != nil {
		previousCount = existing.ChunkCount
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, ch := range chunks {
		snippet := truncateSnippet(ch.Text)
		records[i] = vectorindex.Record{
			ID:     doc.ChunkID(i),
			Vector: vectors[i],
			Metadata: map[string]string{
				"document_id":     doc.ID,
				"chunk_index":     strconv.Itoa(i),
				"org_id":          conn.OrgID,
				"source_type":     conn.SourceType,
				"title":           src.Title,
				"content":         snippet,
				"url":             src.URL,
				"embedding_model": model,
			},
		}
	}
	if err := o.index.Upsert(ctx, conn.OrgID, records); err != nil {
		return "", err
	}

	// The new chunk set supersedes the old one wholesale; drop IDs beyond
	// the new count so no orphan vectors survive.
	if previousCount > len(chunks) {
		stale := make([]string, 0, previousCount-len(chunks))
		for i := len(chunks); i < previousCount; i++ {
			stale = append(stale, doc.ChunkID(i))
		}
		if err := o.index.Delete(ctx, conn.OrgID, stale); err != nil {
			return "", err
		}
	}

	doc.Title = src.Title
	doc.URL = src.URL
	doc.Content = text
	doc.Format = normalized.Format
	doc.ContentHash = hash
	doc.EmbeddingModel = model
	doc.ChunkCount = len(chunks)
	doc.WordCount = normalized.WordCount
	doc.CharCount = normalized.CharCount
	doc.SourceModifiedAt = src.ModifiedAt
	doc.LastSyncedAt = time.Now()
	if err := o.documents.Update(doc); err != nil {
		return "", fmt.Errorf("persist document state: %w", err)
	}
	return action, nil
}

func (o *Orchestrator) finalize(conn *conndomain.Connection, run *conndomain.SyncRun, stats *syncStats, fatalErr error, log *logrus.Entry) {
	now := time.Now()
	run.CompletedAt = &now
	run.DurationSeconds = int(now.Sub(run.StartedAt).Seconds())
	run.DocumentsProcessed = stats.processed
	run.DocumentsAdded = stats.added
	run.DocumentsUpdated = stats.updated
	run.DocumentsDeleted = stats.deleted
	run.DocumentsFailed = stats.failed

	fresh, err := o.connections.FindByID(conn.ID)
	if err == nil && fresh != nil {
		conn = fresh
	}
	next := now.Add(time.Duration(conn.SyncFrequencySeconds) * time.Second)
	conn.LastSyncAt = &now
	conn.NextSyncAt = &next
	conn.TotalSyncCount++

	if fatalErr != nil {
		run.Status = conndomain.RunFailed
		run.ErrorMessage = fatalErr.Error()
		conn.Status = conndomain.StatusError
		conn.LastSyncStatus = string(conndomain.RunFailed)
		conn.LastSyncError = fatalErr.Error()
		conn.FailedSyncCount++
		log.WithError(fatalErr).Error("sync failed")
	} else {
		run.Status = conndomain.RunSuccess
		conn.Status = conndomain.StatusConnected
		conn.LastSyncStatus = string(conndomain.RunSuccess)
		conn.LastSyncError = ""
		conn.TotalDocuments += stats.added - stats.deleted
		if conn.TotalDocuments < 0 {
			conn.TotalDocuments = 0
		}
		log.WithFields(logrus.Fields{
			"processed": stats.processed,
			"added":     stats.added,
			"updated":   stats.updated,
			"deleted":   stats.deleted,
			"failed":    stats.failed,
		}).Info("sync completed")
	}

	if err := o.runs.Update(run); err != nil {
		log.WithError(err).Error("failed to persist sync run")
	}
	if err := o.connections.Update(conn); err != nil {
		log.WithError(err).Error("failed to persist connection state")
	}
}

// PurgeConnection removes every document and vector a disconnected source
// left behind.
func (o *Orchestrator) PurgeConnection(ctx context.Context, orgID, connectionID string) error {
	docs, err := o.documents.FindByConnection(connectionID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, doc := range docs {
		if err := o.index.DeleteByDocument(ctx, orgID, doc.ID); err != nil {
			return err
		}
	}
	if err := o.documents.DeleteByConnection(connectionID); err != nil {
		return fmt.Errorf("delete document state: %w", err)
	}
	o.log.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"documents":     len(docs),
	}).Info("connection data purged")
	return nil
}
