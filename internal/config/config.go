// Package config provides environment configuration for the bot.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Slack settings
	SlackBotToken string
	SlackAppToken string

	// Linear settings
	LinearAPIKey string
	LinearTeamID string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Health server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Slack
		SlackBotToken: getEnv("SLACK_BOT_TOKEN", ""),
		SlackAppToken: getEnv("SLACK_APP_TOKEN", ""),

		// Linear
		LinearAPIKey: getEnv("LINEAR_API_KEY", ""),
		LinearTeamID: getEnv("LINEAR_TEAM_ID", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Health server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks that the credentials the bot cannot run without are set.
func (c *Config) Validate() error {
	if c.SlackBotToken == "" {
		return errors.New("SLACK_BOT_TOKEN is required")
	}
	if c.SlackAppToken == "" {
		return errors.New("SLACK_APP_TOKEN is required")
	}
	if c.LinearAPIKey == "" {
		return errors.New("LINEAR_API_KEY is required")
	}
	if c.LinearTeamID == "" {
		return errors.New("LINEAR_TEAM_ID is required")
	}
	if c.AnthropicAPIKey == "" && c.OpenAIAPIKey == "" {
		return errors.New("one of ANTHROPIC_API_KEY or OPENAI_API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
