// Package config provides configuration loading and management for the
// synthesis service. It handles environment variable parsing and provides
// default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// godotenv.Load() does not override already-set variables, preserving
// OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the synthesis service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // PostgreSQL connection string; empty selects the in-memory store
	NATSURL     string // NATS server URL; empty selects the noop publisher
	S3Endpoint  string // S3-compatible storage endpoint
	S3Region    string // S3 region
	S3Bucket    string // S3 bucket for clip/reference/result payloads
	S3AccessKey string // S3 access key
	S3SecretKey string // S3 secret key
	BackendURL  string // Base URL of the backend, used by the CLI gateway client

	// Media limits
	MaxMediaSize     int64    // Maximum upload size in bytes
	AllowedMimeTypes []string // Allowed MIME types for uploads

	// Generation pacing: delay between synthetic progress steps. Zero makes
	// the worker run each session to completion without sleeping.
	GenerationStepDelay time.Duration
}

// Default configuration values used when environment variables are not set
const (
	defaultPort     = "8080"
	defaultS3Region = "us-east-1"
	defaultEnv      = "dev"

	// 2 GiB default: material clips and reference videos are large.
	defaultMaxMediaSize = int64(2) << 30
)

// Load reads environment variables and produces a Config suitable for wiring
// the service. Returns an error if a numeric parameter fails to parse.
func Load() (Config, error) {
	cfg := Config{}

	if env, exists := os.LookupEnv("SYNTH_ENV"); exists {
		cfg.Env = env
	} else {
		cfg.Env = defaultEnv
	}

	if port, exists := os.LookupEnv("SYNTH_PORT"); exists {
		cfg.Port = port
	} else {
		cfg.Port = defaultPort
	}

	if dsn, exists := os.LookupEnv("SYNTH_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}

	if natsURL, exists := os.LookupEnv("SYNTH_NATS_URL"); exists {
		cfg.NATSURL = natsURL
	}

	if s3Endpoint, exists := os.LookupEnv("SYNTH_S3_ENDPOINT"); exists {
		cfg.S3Endpoint = s3Endpoint
	}

	if s3Region, exists := os.LookupEnv("SYNTH_S3_REGION"); exists {
		cfg.S3Region = s3Region
	} else {
		cfg.S3Region = defaultS3Region
	}

	if s3Bucket, exists := os.LookupEnv("SYNTH_S3_BUCKET"); exists {
		cfg.S3Bucket = s3Bucket
	}

	if s3AccessKey, exists := os.LookupEnv("SYNTH_S3_ACCESS_KEY"); exists {
		cfg.S3AccessKey = s3AccessKey
	}

	if s3SecretKey, exists := os.LookupEnv("SYNTH_S3_SECRET_KEY"); exists {
		cfg.S3SecretKey = s3SecretKey
	}

	if backendURL, exists := os.LookupEnv("SYNTH_BACKEND_URL"); exists {
		cfg.BackendURL = backendURL
	} else {
		cfg.BackendURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	if maxMediaSize, exists := os.LookupEnv("SYNTH_MAX_MEDIA_SIZE"); exists {
		size, err := strconv.ParseInt(maxMediaSize, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid SYNTH_MAX_MEDIA_SIZE: %w", err)
		}
		cfg.MaxMediaSize = size
	} else {
		cfg.MaxMediaSize = defaultMaxMediaSize
	}

	if allowedMimeTypes, exists := os.LookupEnv("SYNTH_ALLOWED_MIME_TYPES"); exists {
		cfg.AllowedMimeTypes = strings.Split(allowedMimeTypes, ",")
		for i, mimeType := range cfg.AllowedMimeTypes {
			cfg.AllowedMimeTypes[i] = strings.TrimSpace(mimeType)
		}
	} else {
		cfg.AllowedMimeTypes = []string{"video/mp4", "video/quicktime", "video/webm"}
	}

	if stepDelay, exists := os.LookupEnv("SYNTH_GENERATION_STEP_DELAY_MS"); exists {
		ms, err := strconv.ParseInt(stepDelay, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid SYNTH_GENERATION_STEP_DELAY_MS: %w", err)
		}
		cfg.GenerationStepDelay = time.Duration(ms) * time.Millisecond
	} else {
		cfg.GenerationStepDelay = 500 * time.Millisecond
	}

	return cfg, nil
}
