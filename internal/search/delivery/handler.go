package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"unifydata-backend/internal/search/usecase"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/pipelineerr"
)

type SearchHandler struct {
	search usecase.SearchUsecase
	log    *logrus.Entry
}

func NewSearchHandler(search usecase.SearchUsecase) *SearchHandler {
	return &SearchHandler{
		search: search,
		log:    logger.For("search"),
	}
}

type searchRequest struct {
	Query      string  `json:"query" binding:"required"`
	Limit      int     `json:"limit"`
	SourceType string  `json:"source_type"`
	MinScore   float64 `json:"min_score"`
}

// Semantic handles POST /api/search/semantic.
func (h *SearchHandler) Semantic(c *gin.Context) {
	orgID := c.GetString("orgID")

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	results, err := h.search.Search(c.Request.Context(), usecase.Request{
		OrgID:      orgID,
		Query:      req.Query,
		Limit:      req.Limit,
		SourceType: req.SourceType,
		MinScore:   req.MinScore,
	})
	if err != nil {
		h.log.WithError(err).Error("semantic search failed")
		if errors.Is(err, pipelineerr.ErrIndexUnavailable) || errors.Is(err, pipelineerr.ErrTransientProvider) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is temporarily unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}
