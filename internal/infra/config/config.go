package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	PushTopic          string
	EmailEndpoint      string
	PublicBaseURL      string
	JWTSecret          string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	S3Endpoint         string
	S3PublicEndpoint   string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	FixturesDir        string
}

// MemoryMode reports whether the process should run against in-process
// storage. Set MONGO_URI to target a real cluster.
func (c Config) MemoryMode() bool {
	return c.MongoURI == ""
}

// Load parses configuration from the current environment. A .env file in the
// working directory is merged in first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "campusmarket"),
		PushTopic:        getEnv("PUSH_TOPIC", "chat.push.v1"),
		EmailEndpoint:    getEnv("EMAIL_ENDPOINT", ""),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3PublicEndpoint: getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "campusmarket-chat"),
		FixturesDir:      getEnv("FIXTURES_DIR", ""),
	}

	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	poll, err := parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboxPollInterval = poll

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	useSSL, err := parseBoolEnv("S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.S3UseSSL = useSSL
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != "dev" && cfg.Env != "local" {
			return Config{}, fmt.Errorf("JWT_SECRET is required")
		}
		cfg.JWTSecret = "dev-secret"
	}
	if !cfg.MemoryMode() && len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required when MONGO_URI is set")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
