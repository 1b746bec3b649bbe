package main

import (
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	api "unifydata-backend/cmd/api"
	authdomain "unifydata-backend/internal/auth/domain"
	authRepo "unifydata-backend/internal/auth/repository"
	authUsecase "unifydata-backend/internal/auth/usecase"
	chatDelivery "unifydata-backend/internal/chat/delivery"
	chatdomain "unifydata-backend/internal/chat/domain"
	chatRepo "unifydata-backend/internal/chat/repository"
	chatUsecase "unifydata-backend/internal/chat/usecase"
	connDelivery "unifydata-backend/internal/connection/delivery"
	conndomain "unifydata-backend/internal/connection/domain"
	connRepo "unifydata-backend/internal/connection/repository"
	connUsecase "unifydata-backend/internal/connection/usecase"
	docdomain "unifydata-backend/internal/document/domain"
	docRepo "unifydata-backend/internal/document/repository"
	searchDelivery "unifydata-backend/internal/search/delivery"
	searchUsecase "unifydata-backend/internal/search/usecase"
	syncScheduler "unifydata-backend/internal/sync/scheduler"
	syncUsecase "unifydata-backend/internal/sync/usecase"
	"unifydata-backend/pkg/ai"
	"unifydata-backend/pkg/chunker"
	"unifydata-backend/pkg/config"
	"unifydata-backend/pkg/connectors"
	"unifydata-backend/pkg/crypto"
	"unifydata-backend/pkg/database"
	"unifydata-backend/pkg/embeddings"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/oauthstate"
	"unifydata-backend/pkg/vectorindex"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(logrus.InfoLevel)

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.Organization{},
		&authdomain.User{},
		&conndomain.Connection{},
		&conndomain.SyncRun{},
		&docdomain.Document{},
		&chatdomain.Conversation{},
		&chatdomain.Message{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db)
	connectionRepository := connRepo.NewConnectionRepository(db)
	syncRunRepository := connRepo.NewSyncRunRepository(db)
	documentRepository := docRepo.NewDocumentRepository(db)
	conversationRepository := chatRepo.NewConversationRepository(db)
	messageRepository := chatRepo.NewMessageRepository(db)

	// OAuth state lives in Redis so callbacks can land on any instance.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	stateStore := oauthstate.NewRedisStore(redisClient)

	cipher, err := crypto.NewTokenCipher(cfg.EncryptionSecret)
	if err != nil {
		log.Fatal("Failed to initialize token encryption:", err)
	}

	registry := connectors.NewRegistry(cfg)

	// Vector index: Chroma when configured, in-memory otherwise.
	var index vectorindex.Index
	if cfg.ChromaURL != "" || cfg.ChromaAPIKey != "" {
		chromaIndex, err := vectorindex.NewChromaIndex(cfg.ChromaURL, cfg.ChromaAPIKey, cfg.ChromaTenant, cfg.ChromaDatabase)
		if err != nil {
			log.Fatal("Failed to initialize Chroma:", err)
		}
		index = chromaIndex
	} else {
		log.Println("Warning: CHROMA_URL not set, using in-memory vector index (data is lost on restart)")
		index = vectorindex.NewMemoryIndex()
	}

	gateway, err := embeddings.NewGateway(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal("Failed to initialize embedding gateway:", err)
	}

	claude, err := ai.NewClient(cfg.AnthropicAPIKey, cfg.GenerationModel)
	if err != nil {
		log.Fatal("Failed to initialize Anthropic client:", err)
	}

	// Initialize use cases (dependency injection)
	authUc := authUsecase.NewAuthUsecase(userRepository, cfg)
	credentialUc := connUsecase.NewCredentialUsecase(connectionRepository, registry, stateStore, cipher, cfg.DefaultSyncCadence)

	orchestrator := syncUsecase.NewOrchestrator(
		connectionRepository,
		syncRunRepository,
		documentRepository,
		registry,
		credentialUc,
		index,
		gateway,
		chunker.Default(),
		cfg.SyncWorkers,
	)

	searchUc := searchUsecase.NewSearchUsecase(index, gateway, documentRepository, orchestrator)
	chatUc := chatUsecase.NewChatUsecase(conversationRepository, messageRepository, searchUc, claude)

	// Scheduled syncs run in the background for due connections.
	scheduler := syncScheduler.NewSyncScheduler(connectionRepository, orchestrator)
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize HTTP handler
	connectionHandler := connDelivery.NewConnectionHandler(
		credentialUc,
		connectionRepository,
		syncRunRepository,
		orchestrator,
		orchestrator,
		cfg.WebURL,
		registry.Types(),
	)
	handler := api.NewHandler(
		authUc,
		connectionHandler,
		searchDelivery.NewSearchHandler(searchUc),
		chatDelivery.NewChatHandler(chatUc),
	)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
