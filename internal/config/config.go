package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProtocolREST   = "rest"
	ProtocolAction = "action"
)

type Config struct {
	LogLevel string

	APIBaseURL         string
	APIProtocol        string
	APIActionPath      string
	HTTPTimeoutSeconds int

	BreakerEnabled            bool
	BreakerMinRequests        int
	BreakerFailureRatio       float64
	BreakerOpenTimeoutSeconds int

	MetricsPort string

	NATSURL     string
	NATSSubject string

	CaptureSource string
	ReplayDir     string
	ReplayStrict  bool
	SpoolDir      string

	DevPort             string
	DevPublicURL        string
	DevStoragePath      string
	DevCompleteAfter    int
	DevUploadTTLSeconds int
	DevS3Bucket         string
	DevS3Region         string
	DevS3Endpoint       string
	DevS3AccessKey      string
	DevS3SecretKey      string
	DevRateLimitRPS     float64
	DevRateLimitBurst   int
	DevMaxInFlight      int
	DevPostgresDSN      string

	Defaults Defaults
}

func Load() (Config, error) {
	defaults, err := LoadDefaults(mustEnv("FITTING_DEFAULTS_FILE", ""))
	if err != nil {
		return Config{}, err
	}

	return Config{
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIBaseURL:         mustEnv("API_BASE_URL", "http://localhost:8090"),
		APIProtocol:        strings.ToLower(mustEnv("API_PROTOCOL", ProtocolREST)),
		APIActionPath:      mustEnv("API_ACTION_PATH", "/action"),
		HTTPTimeoutSeconds: mustEnvInt("HTTP_TIMEOUT_SECONDS", 60),

		BreakerEnabled:            mustEnvBool("BREAKER_ENABLED", true),
		BreakerMinRequests:        mustEnvInt("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:       mustEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenTimeoutSeconds: mustEnvInt("BREAKER_OPEN_TIMEOUT_SECONDS", 30),

		MetricsPort: mustEnv("METRICS_PORT", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "fitting.session"),

		CaptureSource: strings.ToLower(mustEnv("CAPTURE_SOURCE", "camera")),
		ReplayDir:     mustEnv("REPLAY_DIR", "./testdata/frames"),
		ReplayStrict:  mustEnvBool("REPLAY_STRICT", false),
		SpoolDir:      mustEnv("SPOOL_DIR", ""),

		DevPort:             mustEnv("DEV_PORT", "8090"),
		DevPublicURL:        mustEnv("DEV_PUBLIC_URL", ""),
		DevStoragePath:      mustEnv("DEV_STORAGE_PATH", "./data/devserver"),
		DevCompleteAfter:    mustEnvInt("DEV_COMPLETE_AFTER_POLLS", 3),
		DevUploadTTLSeconds: mustEnvInt("DEV_UPLOAD_TTL_SECONDS", 900),
		DevS3Bucket:         mustEnv("DEV_S3_BUCKET", ""),
		DevS3Region:         mustEnv("DEV_S3_REGION", "us-east-1"),
		DevS3Endpoint:       mustEnv("DEV_S3_ENDPOINT", ""),
		DevS3AccessKey:      mustEnv("DEV_S3_ACCESS_KEY", ""),
		DevS3SecretKey:      mustEnv("DEV_S3_SECRET_KEY", ""),
		DevRateLimitRPS:     mustEnvFloat("DEV_RATE_LIMIT_RPS", 50),
		DevRateLimitBurst:   mustEnvInt("DEV_RATE_LIMIT_BURST", 100),
		DevMaxInFlight:      mustEnvInt("DEV_MAX_IN_FLIGHT", 32),
		DevPostgresDSN:      mustEnv("DEV_POSTGRES_DSN", ""),

		Defaults: defaults,
	}, nil
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) DevUploadTTL() time.Duration {
	return time.Duration(c.DevUploadTTLSeconds) * time.Second
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
