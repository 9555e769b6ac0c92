package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the roboplan server.
type Config struct {
	Port      int
	Version   string
	Inference InferenceConfig
	Chat      ChatConfig
	Results   ResultsConfig
	Telemetry TelemetryConfig
}

type InferenceConfig struct {
	Kind     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type ChatConfig struct {
	MaxTurns     int
	ContextPairs int
}

type ResultsConfig struct {
	Dir string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("ROBOPLAN_PORT", 8090),
		Version: envStr("ROBOPLAN_VERSION", "0.2.0"),
		Inference: InferenceConfig{
			Kind:     envStr("ROBOPLAN_BACKEND", "openai"),
			Endpoint: envStr("ROBOPLAN_BACKEND_ENDPOINT", "http://localhost:8000/v1"),
			APIKey:   envStr("ROBOPLAN_BACKEND_API_KEY", ""),
			Model:    envStr("ROBOPLAN_MODEL", "robobrain2"),
			Timeout:  envDuration("ROBOPLAN_BACKEND_TIMEOUT", 120*time.Second),
		},
		Chat: ChatConfig{
			MaxTurns:     envInt("ROBOPLAN_MAX_TURNS", 20),
			ContextPairs: envInt("ROBOPLAN_CONTEXT_PAIRS", 3),
		},
		Results: ResultsConfig{
			Dir: envStr("ROBOPLAN_RESULTS_DIR", "results/planning"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "roboplan"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
