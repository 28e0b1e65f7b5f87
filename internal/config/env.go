package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	// Source of files: "drive" (Google Drive) or "s3".
	SourceProvider   string
	DriveCredentials string
	AwsAccessKey     string
	AwsSecretKey     string
	AwsRegion        string
	BucketName       string

	// Embeddings: "gemini" or "openai" (any OpenAI-compatible endpoint).
	EmbedProvider    string
	GeminiAPIKey     string
	EmbedModel       string
	EmbedDim         int
	GenModel         string
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	OpenAIEmbedModel string

	// Pipeline tuning.
	WorkerCount     int
	MaxAttempts     int
	RetryBackoff    time.Duration
	EmbedCharLimit  int
	SnippetLength   int
	DownloadTimeout time.Duration
	EmbedTimeout    time.Duration
	StoreTimeout    time.Duration
	TaskTimeout     time.Duration

	Debug bool
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),

		SourceProvider:   getEnv("SOURCE_PROVIDER", "drive"),
		DriveCredentials: getEnv("DRIVE_CREDENTIALS_FILE", "credentials.json"),
		AwsAccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:     getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:        getEnv("AWS_REGION", "us-east-2"),
		BucketName:       getEnv("BUCKET_NAME", ""),

		EmbedProvider:    getEnv("EMBED_PROVIDER", "gemini"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:       getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:         getEnvInt("EMBED_DIM", 768),
		GenModel:         getEnv("GEN_MODEL", "gemini-1.5-flash"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbedModel: getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		MaxAttempts:     getEnvInt("MAX_ATTEMPTS", 3),
		RetryBackoff:    getEnvDuration("RETRY_BACKOFF", 5*time.Second),
		EmbedCharLimit:  getEnvInt("EMBED_CHAR_LIMIT", 5000),
		SnippetLength:   getEnvInt("SNIPPET_LENGTH", 500),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 2*time.Minute),
		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 30*time.Second),
		TaskTimeout:     getEnvDuration("TASK_TIMEOUT", 5*time.Minute),

		Debug: getEnvBool("DEBUG", false),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
