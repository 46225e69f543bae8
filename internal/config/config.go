package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultModel is the chat model used for every generation call.
const DefaultModel = "llama-3.1-8b-instant"

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken         string
	GitHubWebhookSecret string
	GitHubRepoOwner     string
	GitHubRepoName      string

	// LinkedIn
	LinkedInAccessToken string
	LinkedInAPIURL      string

	// LLM
	GroqAPIKey string
	LLMAPIURL  string
	LLMModel   string

	// API Server
	APIPort string
	APIHost string

	// Scheduling and publishing
	DailyPostTime     string // HH:MM, UTC
	RequirePostReview bool
	ReviewDir         string
	RelayWebhookURL   string
	ImmediatePost     bool

	// Storage
	DataDir     string
	StorageType string // "sqlite", "postgres" or "none"
	SQLitePath  string
	PostgresURL string

	LogLevel string

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		GitHubToken:         getEnv("GITHUB_TOKEN", ""),
		GitHubWebhookSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),
		GitHubRepoOwner:     getEnv("GITHUB_REPO_OWNER", ""),
		GitHubRepoName:      getEnv("GITHUB_REPO_NAME", ""),
		LinkedInAccessToken: getEnv("LINKEDIN_ACCESS_TOKEN", ""),
		LinkedInAPIURL:      getEnv("LINKEDIN_API_URL", "https://api.linkedin.com"),
		GroqAPIKey:          getEnv("GROQ_API_KEY", ""),
		LLMAPIURL:           getEnv("LLM_API_URL", "https://api.groq.com/openai/v1"),
		LLMModel:            getEnv("LLM_MODEL", DefaultModel),
		APIPort:             getEnv("PORT", "5000"),
		APIHost:             getEnv("API_HOST", "0.0.0.0"),
		DailyPostTime:       getEnv("DAILY_POST_TIME", "18:00"),
		RequirePostReview:   getBool("REQUIRE_POST_REVIEW", true),
		ReviewDir:           getEnv("REVIEW_DIR", "."),
		RelayWebhookURL:     getEnv("PIPEDREAM_WEBHOOK_URL", ""),
		ImmediatePost:       getBool("IMMEDIATE_POST", false),
		DataDir:             getEnv("DATA_DIR", "."),
		StorageType:         getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:          getEnv("SQLITE_PATH", "./posts.db"),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		APIEndpoint:         getEnv("API_ENDPOINT", "http://localhost:5000"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

// UseRelay reports whether posts are forwarded to the relay webhook instead of LinkedIn.
func (c *Config) UseRelay() bool {
	return c.RelayWebhookURL != ""
}

// PostingMethod names the configured delivery channel.
func (c *Config) PostingMethod() string {
	if c.UseRelay() {
		return "relay"
	}
	return "linkedin"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"GITHUB_TOKEN", c.GitHubToken},
		{"GITHUB_WEBHOOK_SECRET", c.GitHubWebhookSecret},
		{"GROQ_API_KEY", c.GroqAPIKey},
	}
	if !c.UseRelay() {
		required = append(required, struct {
			field string
			value string
		}{"LINKEDIN_ACCESS_TOKEN", c.LinkedInAccessToken})
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.field)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Missing: missing,
			Message: "missing required environment variables: " + strings.Join(missing, ", "),
		}
	}

	if _, _, err := ParsePostTime(c.DailyPostTime); err != nil {
		return &ConfigError{Field: "DAILY_POST_TIME", Message: err.Error()}
	}
	switch c.StorageType {
	case "sqlite", "postgres", "none":
	default:
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite', 'postgres' or 'none'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ParsePostTime splits an HH:MM wall-clock value into hour and minute.
func ParsePostTime(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
	// Missing lists every unset required variable; Field is empty then.
	Missing []string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
