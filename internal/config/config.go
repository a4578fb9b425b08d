// Package config holds the environment-backed runtime configuration.
package config

import "os"

const (
	defaultDatabasePath = "emberchat.db"
	defaultModel        = "llama-3.3-70b-versatile"
)

type Config struct {
	// GroqAPIKey authenticates the generation backend. Required.
	GroqAPIKey string
	// GroqModel selects the backend model.
	GroqModel string
	// DeepgramAPIKey enables the voice subsystem when set.
	DeepgramAPIKey string
	// DatabasePath is the sqlite file holding sessions and settings.
	DatabasePath string
}

// FromEnv reads the configuration from environment variables, applying
// defaults for everything optional.
func FromEnv() *Config {
	cfg := &Config{
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqModel:      os.Getenv("GROQ_MODEL"),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		DatabasePath:   os.Getenv("EMBERCHAT_DB"),
	}
	if cfg.GroqModel == "" {
		cfg.GroqModel = defaultModel
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}
	return cfg
}
