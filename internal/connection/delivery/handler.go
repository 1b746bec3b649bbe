package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"unifydata-backend/internal/connection/domain"
	"unifydata-backend/internal/connection/repository"
	"unifydata-backend/internal/connection/usecase"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/pipelineerr"
)

// SyncLauncher starts a sync run for a connection in the background.
type SyncLauncher interface {
	TriggerSync(ctx context.Context, connectionID string) (*domain.SyncRun, error)
}

// DataPurger removes a connection's documents and vectors after disconnect.
type DataPurger interface {
	PurgeConnection(ctx context.Context, orgID, connectionID string) error
}

type ConnectionHandler struct {
	credentials usecase.CredentialUsecase
	connections repository.ConnectionRepository
	runs        repository.SyncRunRepository
	launcher    SyncLauncher
	purger      DataPurger
	webURL      string
	sourceTypes []string
	log         *logrus.Entry
}

func NewConnectionHandler(
	credentials usecase.CredentialUsecase,
	connections repository.ConnectionRepository,
	runs repository.SyncRunRepository,
	launcher SyncLauncher,
	purger DataPurger,
	webURL string,
	sourceTypes []string,
) *ConnectionHandler {
	return &ConnectionHandler{
		credentials: credentials,
		connections: connections,
		runs:        runs,
		launcher:    launcher,
		purger:      purger,
		webURL:      webURL,
		sourceTypes: sourceTypes,
		log:         logger.For("datasources"),
	}
}

// List handles GET /api/datasources.
func (h *ConnectionHandler) List(c *gin.Context) {
	orgID := c.GetString("orgID")
	conns, err := h.connections.FindByOrg(orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list data sources"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data_sources":    conns,
		"available_types": h.sourceTypes,
	})
}

// Connect handles GET /api/oauth/:provider/connect.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	orgID := c.GetString("orgID")
	userID := c.GetString("userID")
	provider := c.Param("provider")

	authURL, err := h.credentials.BeginAuthorization(c.Request.Context(), orgID, userID, provider)
	if err != nil {
		if errors.Is(err, pipelineerr.ErrConfiguration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("source type %q is not available", provider)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start authorization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

// Callback handles GET /api/oauth/:provider/callback. The browser
// arrives here from the provider, so errors redirect back to the web app
// rather than rendering JSON.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	state := c.Query("state")
	code := c.Query("code")

	redirect := func(status string) {
		c.Redirect(http.StatusFound,
			fmt.Sprintf("%s/data-sources?status=%s&source=%s", h.webURL, status, provider))
	}

	if errParam := c.Query("error"); errParam != "" {
		h.log.WithField("provider", provider).WithField("oauth_error", errParam).
			Warn("authorization denied at provider")
		redirect("error")
		return
	}
	if state == "" || code == "" {
		redirect("error")
		return
	}

	conn, err := h.credentials.CompleteAuthorization(c.Request.Context(), state, code)
	if err != nil {
		h.log.WithError(err).WithField("provider", provider).Error("authorization callback failed")
		redirect("error")
		return
	}

	// First sync starts immediately in the background.
	if _, err := h.launcher.TriggerSync(context.Background(), conn.ID); err != nil {
		h.log.WithError(err).WithField("connection_id", conn.ID).Warn("initial sync did not start")
	}
	redirect("success")
}

// Disconnect handles DELETE /api/datasources/:id.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	orgID := c.GetString("orgID")
	connectionID := c.Param("id")

	conn, err := h.credentials.Disconnect(c.Request.Context(), orgID, connectionID)
	if err != nil {
		if errors.Is(err, pipelineerr.ErrAuthentication) {
			c.JSON(http.StatusNotFound, gin.H{"error": "data source not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect"})
		return
	}

	if err := h.purger.PurgeConnection(c.Request.Context(), orgID, connectionID); err != nil {
		// The connection is already gone; report the purge problem but do
		// not resurrect it.
		h.log.WithError(err).WithField("connection_id", connectionID).
			Error("failed to purge indexed data after disconnect")
	}

	c.JSON(http.StatusOK, gin.H{"disconnected": conn.SourceType})
}

// TriggerSync handles POST /api/datasources/:id/sync.
func (h *ConnectionHandler) TriggerSync(c *gin.Context) {
	orgID := c.GetString("orgID")
	connectionID := c.Param("id")

	conn, err := h.connections.FindByID(connectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load data source"})
		return
	}
	if conn == nil || conn.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "data source not found"})
		return
	}

	run, err := h.launcher.TriggerSync(context.Background(), connectionID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sync_run": run})
}

// ListRuns handles GET /api/datasources/:id/runs.
func (h *ConnectionHandler) ListRuns(c *gin.Context) {
	orgID := c.GetString("orgID")
	connectionID := c.Param("id")

	conn, err := h.connections.FindByID(connectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load data source"})
		return
	}
	if conn == nil || conn.OrgID != orgID {
		c.JSON(http.StatusNotFound, gin.H{"error": "data source not found"})
		return
	}

	runs, err := h.runs.FindByConnection(connectionID, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sync runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sync_runs": runs})
}
