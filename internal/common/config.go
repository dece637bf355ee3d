package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Agent    AgentConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend     string // "mongo", "sqlite" or "memory"
	MongoURI    string
	MongoDB     string
	SQLitePath  string
	DialTimeout time.Duration
}

// OCRConfig holds OCR collaborator configuration
type OCRConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LLMConfig holds inference collaborator configuration
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// AgentConfig holds suggestion-generation thresholds.
type AgentConfig struct {
	ConfidenceThreshold float64
	MaxParallel         int
	MaxFields           int
}

// PipelineConfig holds background processing configuration
type PipelineConfig struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "mongo"),
			MongoURI:    getEnv("MONGODB_URL", "mongodb://localhost:27017"),
			MongoDB:     getEnv("MONGODB_DB", "trf_intake"),
			SQLitePath:  getEnv("SQLITE_PATH", "./trf-intake.db"),
			DialTimeout: getEnvAsDuration("STORE_DIAL_TIMEOUT", 3*time.Second),
		},
		OCR: OCRConfig{
			BaseURL: getEnv("OCR_BASE_URL", ""),
			APIKey:  getEnv("OCR_API_KEY", ""),
			Timeout: getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		},
		Agent: AgentConfig{
			ConfidenceThreshold: getEnvAsFloat64("AGENT_CONFIDENCE_THRESHOLD", 0.6),
			MaxParallel:         getEnvAsInt("AGENT_MAX_PARALLEL", 4),
			MaxFields:           getEnvAsInt("AGENT_MAX_FIELDS", 10),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", 3*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "mongo":
		if c.Store.MongoURI == "" {
			return NewAppError("CONFIG_ERROR", "MONGODB_URL is required for the mongo backend", ErrInvalidInput)
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return NewAppError("CONFIG_ERROR", "SQLITE_PATH is required for the sqlite backend", ErrInvalidInput)
		}
	case "memory":
	default:
		return NewAppError("CONFIG_ERROR", "STORE_BACKEND must be mongo, sqlite or memory", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Agent.ConfidenceThreshold <= 0 || c.Agent.ConfidenceThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "AGENT_CONFIDENCE_THRESHOLD must be in (0,1]", ErrInvalidInput)
	}
	return nil
}
