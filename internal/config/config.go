package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by PERSONA_ENV (or .env by default),
// then loads the corresponding .secret sidecar if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("PERSONA_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; env vars may be set directly.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

// DataDir returns the directory holding the local fact documents.
func DataDir() string {
	d := os.Getenv("PERSONA_DATA_DIR")
	if d == "" {
		return "data"
	}
	return d
}

// DeviceID identifies this device in the fact collection document.
// Defaults to the hostname.
func DeviceID() string {
	if id := os.Getenv("PERSONA_DEVICE_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown-device"
	}
	return host
}

// DecayHalfLifeDays returns the confidence half-life in days.
// Defaults to 60.
func DecayHalfLifeDays() float64 {
	d, err := strconv.ParseFloat(os.Getenv("DECAY_HALF_LIFE_DAYS"), 64)
	if err != nil || d <= 0 {
		return 60
	}
	return d
}

// SyncBaseURL returns the base URL of the sync relay. Empty disables sync.
func SyncBaseURL() string {
	return os.Getenv("SYNC_BASE_URL")
}

// SyncUserID returns the user whose facts this device syncs.
func SyncUserID() string {
	u := os.Getenv("SYNC_USER_ID")
	if u == "" {
		return "default"
	}
	return u
}

// SyncInterval returns the background sync cadence.
// Defaults to 5 minutes.
func SyncInterval() time.Duration {
	secs, err := strconv.Atoi(os.Getenv("SYNC_INTERVAL_SECONDS"))
	if err != nil || secs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(secs) * time.Second
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock, none. Defaults to "none".
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "none"
	}
	return p
}

// ClassifierBaseURL returns the remote promotion classifier endpoint.
// Empty means local heuristics only.
func ClassifierBaseURL() string {
	return os.Getenv("CLASSIFIER_BASE_URL")
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
