package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"unifydata-backend/internal/chat/usecase"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/pipelineerr"
)

type ChatHandler struct {
	chat usecase.ChatUsecase
	log  *logrus.Entry
}

func NewChatHandler(chat usecase.ChatUsecase) *ChatHandler {
	return &ChatHandler{
		chat: chat,
		log:  logger.For("chat"),
	}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// CreateConversation handles POST /api/chat/conversations.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	orgID := c.GetString("orgID")
	userID := c.GetString("userID")

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := h.chat.CreateConversation(c.Request.Context(), orgID, userID, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// ListConversations handles GET /api/chat/conversations.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	orgID := c.GetString("orgID")
	userID := c.GetString("userID")

	convs, err := h.chat.ListConversations(c.Request.Context(), orgID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// ListMessages handles GET /api/chat/conversations/:id/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	orgID := c.GetString("orgID")
	conversationID := c.Param("id")

	msgs, err := h.chat.ListMessages(c.Request.Context(), orgID, conversationID)
	if err != nil {
		if errors.Is(err, pipelineerr.ErrAuthentication) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask handles POST /api/chat/conversations/:id/ask.
func (h *ChatHandler) Ask(c *gin.Context) {
	orgID := c.GetString("orgID")
	userID := c.GetString("userID")
	conversationID := c.Param("id")

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	reply, err := h.chat.Ask(c.Request.Context(), orgID, userID, conversationID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, pipelineerr.ErrAuthentication):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, pipelineerr.ErrTransientProvider), errors.Is(err, pipelineerr.ErrIndexUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "answering is temporarily unavailable"})
		default:
			h.log.WithError(err).Error("ask failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer"})
		}
		return
	}
	c.JSON(http.StatusOK, reply)
}
