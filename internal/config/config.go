package config

import (
	"fmt"
	"os"
	"strconv"
)

// Auth modes
const (
	AuthModeNone    = "none"
	AuthModeGateway = "gateway"
	AuthModeJWT     = "jwt"
)

// Config holds the application configuration
type Config struct {
	// Environment
	Environment string
	Port        string

	// Persistence (optional, history endpoints need it)
	DatabaseURL string

	// LLM API Keys
	OpenAIAPIKey string // OpenAI API key for the openai predictor backend
	GeminiAPIKey string // Google Gemini API key for the gemini predictor backend

	// Model assets. Empty paths use the embedded vocabulary and reference corpus.
	MappingPath string
	ModelPath   string

	// Generation defaults
	PredictorBackend string
	PredictorModel   string
	SequenceLength   int
	NumSteps         int
	Temperature      float64
	StepDuration     float64
	MIDITempoBPM     float64

	// Observability
	SentryDSN         string // Sentry DSN for error tracking
	LangfusePublicKey string // Langfuse public key
	LangfuseSecretKey string // Langfuse secret key
	LangfuseHost      string // Langfuse host URL (cloud or self-hosted)
	LangfuseEnabled   bool   // Feature flag for Langfuse

	// Auth mode
	// - "none": No auth (self-hosted, local dev)
	// - "gateway": Trust X-User-* headers from an upstream gateway
	// - "jwt": Validate bearer tokens signed with JWTSecret
	AuthMode  string
	JWTSecret string
}

func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		MappingPath:       getEnv("MAPPING_PATH", ""),
		ModelPath:         getEnv("MODEL_PATH", ""),
		PredictorBackend:  getEnv("PREDICTOR_BACKEND", "transition"),
		PredictorModel:    getEnv("PREDICTOR_MODEL", ""),
		SequenceLength:    getEnvInt("SEQUENCE_LENGTH", 64),
		NumSteps:          getEnvInt("NUM_STEPS", 500),
		Temperature:       getEnvFloat("TEMPERATURE", 0.5),
		StepDuration:      getEnvFloat("STEP_DURATION", 0.25),
		MIDITempoBPM:      getEnvFloat("MIDI_TEMPO_BPM", 120),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:      getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:   getEnv("LANGFUSE_ENABLED", "false") == "true",
		AuthMode:          getEnv("AUTH_MODE", AuthModeNone), // Default to no auth for self-hosted
		JWTSecret:         getEnv("JWT_SECRET", ""),
	}
}

// Validate reports defaults that would make every generation fail
func (c *Config) Validate() error {
	if c.SequenceLength <= 0 {
		return fmt.Errorf("SEQUENCE_LENGTH must be positive, got %d", c.SequenceLength)
	}
	if c.NumSteps <= 0 {
		return fmt.Errorf("NUM_STEPS must be positive, got %d", c.NumSteps)
	}
	if !(c.Temperature > 0) {
		return fmt.Errorf("TEMPERATURE must be positive, got %v", c.Temperature)
	}
	if !(c.StepDuration > 0) {
		return fmt.Errorf("STEP_DURATION must be positive, got %v", c.StepDuration)
	}
	if !(c.MIDITempoBPM > 0) {
		return fmt.Errorf("MIDI_TEMPO_BPM must be positive, got %v", c.MIDITempoBPM)
	}
	switch c.AuthMode {
	case AuthModeNone, AuthModeGateway:
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// IsGatewayMode returns true if running behind an auth gateway
func (c *Config) IsGatewayMode() bool {
	return c.AuthMode == AuthModeGateway
}

// HasDatabase returns true when persistence is configured
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
