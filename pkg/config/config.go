package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	WebURL    string
	JWTSecret string
	JWTExpiry time.Duration

	// Master secret used to derive the token-encryption key.
	EncryptionSecret string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChromaURL      string
	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string

	AnthropicAPIKey string
	GenerationModel string

	SalesforceClientID     string
	SalesforceClientSecret string
	SalesforceRedirectURI  string

	SlackClientID     string
	SlackClientSecret string
	SlackRedirectURI  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	NotionClientID     string
	NotionClientSecret string
	NotionRedirectURI  string

	SyncWorkers        int
	DefaultSyncCadence time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtExpiry := 24 * time.Hour
	if exp := os.Getenv("JWT_EXPIRY"); exp != "" {
		if parsed, err := time.ParseDuration(exp); err == nil {
			jwtExpiry = parsed
		}
	}

	cadence := time.Hour
	if c := os.Getenv("SYNC_CADENCE"); c != "" {
		if parsed, err := time.ParseDuration(c); err == nil {
			cadence = parsed
		}
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		WebURL:    getEnv("WEB_URL", "http://localhost:3000"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiry: jwtExpiry,

		EncryptionSecret: getEnv("ENCRYPTION_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=unifydata port=5432 sslmode=disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ChromaURL:      getEnv("CHROMA_URL", ""),
		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		GenerationModel: getEnv("GENERATION_MODEL", "claude-3-5-sonnet-20241022"),

		SalesforceClientID:     getEnv("SALESFORCE_CLIENT_ID", ""),
		SalesforceClientSecret: getEnv("SALESFORCE_CLIENT_SECRET", ""),
		SalesforceRedirectURI:  getEnv("SALESFORCE_REDIRECT_URI", "http://localhost:8080/api/oauth/salesforce/callback"),

		SlackClientID:     getEnv("SLACK_CLIENT_ID", ""),
		SlackClientSecret: getEnv("SLACK_CLIENT_SECRET", ""),
		SlackRedirectURI:  getEnv("SLACK_REDIRECT_URI", "http://localhost:8080/api/oauth/slack/callback"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/oauth/google_drive/callback"),

		NotionClientID:     getEnv("NOTION_CLIENT_ID", ""),
		NotionClientSecret: getEnv("NOTION_CLIENT_SECRET", ""),
		NotionRedirectURI:  getEnv("NOTION_REDIRECT_URI", "http://localhost:8080/api/oauth/notion/callback"),

		SyncWorkers:        getEnvInt("SYNC_WORKERS", 5),
		DefaultSyncCadence: cadence,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
