package api

import (
	"github.com/gin-gonic/gin"

	authUsecase "unifydata-backend/internal/auth/usecase"
	chatDelivery "unifydata-backend/internal/chat/delivery"
	connDelivery "unifydata-backend/internal/connection/delivery"
	searchDelivery "unifydata-backend/internal/search/delivery"
)

type Handler struct {
	authUsecase       authUsecase.AuthUsecase
	connectionHandler *connDelivery.ConnectionHandler
	searchHandler     *searchDelivery.SearchHandler
	chatHandler       *chatDelivery.ChatHandler
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	connectionHandler *connDelivery.ConnectionHandler,
	searchHandler *searchDelivery.SearchHandler,
	chatHandler *chatDelivery.ChatHandler,
) *Handler {
	return &Handler{
		authUsecase:       authUc,
		connectionHandler: connectionHandler,
		searchHandler:     searchHandler,
		chatHandler:       chatHandler,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.connectionHandler, h.searchHandler, h.chatHandler)

	return r.Run(addr)
}
