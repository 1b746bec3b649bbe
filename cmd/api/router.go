package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	authDelivery "unifydata-backend/internal/auth/delivery"
	authUsecase "unifydata-backend/internal/auth/usecase"
	chatDelivery "unifydata-backend/internal/chat/delivery"
	connDelivery "unifydata-backend/internal/connection/delivery"
	searchDelivery "unifydata-backend/internal/search/delivery"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	connectionHandler *connDelivery.ConnectionHandler,
	searchHandler *searchDelivery.SearchHandler,
	chatHandler *chatDelivery.ChatHandler,
) {
	authHandler := authDelivery.NewAuthHandler(authUc)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/token", authHandler.IssueToken)
		}

		// OAuth flow. The callback is hit by the provider redirect, so it
		// cannot carry a bearer token.
		oauth := api.Group("/oauth")
		{
			oauth.GET("/:provider/connect", authDelivery.AuthMiddleware(authUc), connectionHandler.Connect)
			oauth.GET("/:provider/callback", connectionHandler.Callback)
		}

		// Data source routes (protected)
		datasources := api.Group("/datasources")
		datasources.Use(authDelivery.AuthMiddleware(authUc))
		{
			datasources.GET("", connectionHandler.List)
			datasources.DELETE("/:id", connectionHandler.Disconnect)
			datasources.POST("/:id/sync", connectionHandler.TriggerSync)
			datasources.GET("/:id/runs", connectionHandler.ListRuns)
		}

		// Search routes (protected)
		search := api.Group("/search")
		search.Use(authDelivery.AuthMiddleware(authUc))
		{
			search.POST("/semantic", searchHandler.Semantic)
		}

		// Chat routes (protected)
		chat := api.Group("/chat")
		chat.Use(authDelivery.AuthMiddleware(authUc))
		{
			chat.POST("/conversations", chatHandler.CreateConversation)
			chat.GET("/conversations", chatHandler.ListConversations)
			chat.GET("/conversations/:id/messages", chatHandler.ListMessages)
			chat.POST("/conversations/:id/ask", chatHandler.Ask)
		}
	}
}
