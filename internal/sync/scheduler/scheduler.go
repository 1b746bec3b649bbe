package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	connrepo "unifydata-backend/internal/connection/repository"
	syncusecase "unifydata-backend/internal/sync/usecase"
	"unifydata-backend/pkg/logger"
)

// SyncScheduler periodically launches sync runs for connections whose
// next_sync_at has passed.
type SyncScheduler struct {
	connections  connrepo.ConnectionRepository
	orchestrator *syncusecase.Orchestrator
	interval     time.Duration
	stopChan     chan struct{}
	log          *logrus.Entry
}

func NewSyncScheduler(connections connrepo.ConnectionRepository, orchestrator *syncusecase.Orchestrator) *SyncScheduler {
	return &SyncScheduler{
		connections:  connections,
		orchestrator: orchestrator,
		interval:     1 * time.Minute,
		stopChan:     make(chan struct{}),
		log:          logger.For("scheduler"),
	}
}

// Start begins the scheduler loop
func (s *SyncScheduler) Start() {
	s.log.WithField("interval", s.interval.String()).Info("sync scheduler started")

	go func() {
		// Run immediately on start
		s.launchDueSyncs()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.launchDueSyncs()
			case <-s.stopChan:
				s.log.Info("sync scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}

func (s *SyncScheduler) launchDueSyncs() {
	due, err := s.connections.FindDueForSync(time.Now())
	if err != nil {
		s.log.WithError(err).Error("failed to find due connections")
		return
	}

	for _, conn := range due {
		if _, err := s.orchestrator.TriggerSync(context.Background(), conn.ID); err != nil {
			// Usually a run already in flight; the next tick retries.
			s.log.WithError(err).WithField("connection_id", conn.ID).
				Debug("scheduled sync not started")
		}
	}
}
