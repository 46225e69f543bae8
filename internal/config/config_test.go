package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		GitHubToken:         "gh-token",
		GitHubWebhookSecret: "secret",
		GroqAPIKey:          "groq-key",
		LinkedInAccessToken: "li-token",
		DailyPostTime:       "18:00",
		StorageType:         "sqlite",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantField   string
		wantMissing []string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing github token", mutate: func(c *Config) { c.GitHubToken = "" }, wantMissing: []string{"GITHUB_TOKEN"}},
		{name: "missing webhook secret", mutate: func(c *Config) { c.GitHubWebhookSecret = "" }, wantMissing: []string{"GITHUB_WEBHOOK_SECRET"}},
		{name: "missing groq key", mutate: func(c *Config) { c.GroqAPIKey = "" }, wantMissing: []string{"GROQ_API_KEY"}},
		{name: "missing linkedin token", mutate: func(c *Config) { c.LinkedInAccessToken = "" }, wantMissing: []string{"LINKEDIN_ACCESS_TOKEN"}},
		{
			name: "relay makes linkedin token optional",
			mutate: func(c *Config) {
				c.LinkedInAccessToken = ""
				c.RelayWebhookURL = "https://relay.example.com/hook"
			},
		},
		{name: "bad post time", mutate: func(c *Config) { c.DailyPostTime = "6pm" }, wantField: "DAILY_POST_TIME"},
		{name: "bad storage type", mutate: func(c *Config) { c.StorageType = "mongo" }, wantField: "STORAGE_TYPE"},
		{name: "postgres without url", mutate: func(c *Config) { c.StorageType = "postgres" }, wantField: "POSTGRES_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" && tt.wantMissing == nil {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.wantField, cfgErr.Field)
			assert.Equal(t, tt.wantMissing, cfgErr.Missing)
		})
	}
}

func TestValidateReportsEveryMissingVariable(t *testing.T) {
	cfg := validConfig()
	cfg.GitHubToken = ""
	cfg.GroqAPIKey = ""
	cfg.LinkedInAccessToken = ""

	err := cfg.Validate()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"GITHUB_TOKEN", "GROQ_API_KEY", "LINKEDIN_ACCESS_TOKEN"}, cfgErr.Missing)
	assert.Equal(t, "missing required environment variables: GITHUB_TOKEN, GROQ_API_KEY, LINKEDIN_ACCESS_TOKEN", err.Error())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DAILY_POST_TIME", "")
	t.Setenv("REQUIRE_POST_REVIEW", "")
	t.Setenv("PIPEDREAM_WEBHOOK_URL", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "18:00", cfg.DailyPostTime)
	assert.True(t, cfg.RequirePostReview)
	assert.False(t, cfg.UseRelay())
	assert.Equal(t, "linkedin", cfg.PostingMethod())
	assert.Equal(t, "5000", cfg.APIPort)
	assert.Equal(t, DefaultModel, cfg.LLMModel)
}

func TestLoadRelayAndReviewFlag(t *testing.T) {
	t.Setenv("PIPEDREAM_WEBHOOK_URL", "https://relay.example.com/hook")
	t.Setenv("REQUIRE_POST_REVIEW", "FALSE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.UseRelay())
	assert.Equal(t, "relay", cfg.PostingMethod())
	assert.False(t, cfg.RequirePostReview)
}

func TestParsePostTime(t *testing.T) {
	h, m, err := ParsePostTime("07:45")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 45, m)

	_, _, err = ParsePostTime("25:00")
	assert.Error(t, err)
}
