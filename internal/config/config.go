package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DBUrl              string
	JWTSecret          string
	MessageSecretKey   string
	AppEnv             string
	SupabaseURL        string
	SupabaseBucket     string
	SupabaseServiceKey string
	AssistantUserID    int64
	GeminiAPIKey       string
	AssistantModels    []string
	AssistantTimeout   time.Duration
}

// defaultAssistantModels is the ordered fallback chain tried on each
// assistant request until one model produces output.
var defaultAssistantModels = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-flash-latest",
	"gemini-pro-latest",
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	assistantUserID, err := getEnvInt64("ASSISTANT_USER_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid ASSISTANT_USER_ID: %w", err)
	}

	timeoutSeconds, err := getEnvInt64("ASSISTANT_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid ASSISTANT_TIMEOUT_SECONDS: %w", err)
	}
	if timeoutSeconds <= 0 {
		return nil, fmt.Errorf("ASSISTANT_TIMEOUT_SECONDS must be positive")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBUrl:              getEnv("DB_URL", ""),
		JWTSecret:          jwtSecret,
		MessageSecretKey:   getEnv("MESSAGE_SECRET_KEY", "default-secret-key-123"),
		AppEnv:             normalizeEnv(getEnv("APP_ENV", "production")),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		AssistantUserID:    assistantUserID,
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		AssistantModels:    getEnvList("ASSISTANT_MODELS", defaultAssistantModels),
		AssistantTimeout:   time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// AssistantEnabled reports whether the assistant pipeline has everything it
// needs: a seeded assistant account and an API key.
func (c *Config) AssistantEnabled() bool {
	return c != nil && c.AssistantUserID != 0 && c.GeminiAPIKey != ""
}
