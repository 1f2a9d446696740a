package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBUrl       string
	Environment string
	LogLevel    string
	// Scanner Configuration
	ClamAVHost             string
	ClamAVPort             string
	ClamAVTimeout          time.Duration
	VirusTotalAPIKey       string
	VirusTotalBaseURL      string
	VirusTotalPollAttempts int
	VirusTotalPollInterval time.Duration
	MaxFileSizeMB          int
	ScanPatterns           []string // empty = built-in list
	QuarantineSuspicious   bool
	// Storage Configuration
	StorageProvider string // s3, wasabi or minio
	S3AccessKeyID   string
	S3SecretKey     string
	S3Region        string
	WasabiEndpoint  string
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOUseSSL     bool
	// Bucket probed by the health check; empty skips the storage probe
	StorageHealthBucket string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	// Rate Limiting Configuration
	RateLimitPerMinute     int // per client IP, every route
	ScanRateLimitPerMinute int // per uploader, scan endpoint
	// Messaging
	NATSURL string
	// HTTP
	CORSAllowedOrigins []string // empty = any origin
	// Security Configuration
	SecurityLogToDB bool
}

func LoadConfig() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBUrl:       getEnv("DATABASE_URL", ""),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		// Scanner Configuration
		ClamAVHost:             strings.TrimSpace(getEnv("CLAMAV_HOST", "")),
		ClamAVPort:             getEnv("CLAMAV_PORT", "3310"),
		ClamAVTimeout:          getEnvDuration("CLAMAV_TIMEOUT", 30*time.Second),
		VirusTotalAPIKey:       strings.TrimSpace(getEnv("VIRUSTOTAL_API_KEY", "")),
		VirusTotalBaseURL:      strings.TrimRight(getEnv("VIRUSTOTAL_BASE_URL", "https://www.virustotal.com/api/v3"), "/"),
		VirusTotalPollAttempts: getEnvInt("VIRUSTOTAL_POLL_ATTEMPTS", 10),
		VirusTotalPollInterval: getEnvDuration("VIRUSTOTAL_POLL_INTERVAL", 15*time.Second),
		MaxFileSizeMB:          getEnvInt("MAX_FILE_SIZE_MB", 100),
		QuarantineSuspicious:   getEnvBool("QUARANTINE_SUSPICIOUS", false),
		// Storage Configuration
		StorageProvider: strings.ToLower(getEnv("STORAGE_PROVIDER", "s3")),
		S3AccessKeyID:   getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		WasabiEndpoint:  getEnv("WASABI_ENDPOINT", ""),
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		// Health
		StorageHealthBucket: getEnv("STORAGE_HEALTH_BUCKET", ""),
		// Redis/Upstash Configuration
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		// Rate Limiting Configuration
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		ScanRateLimitPerMinute: getEnvInt("SCAN_RATE_LIMIT_PER_MINUTE", 20),
		// Messaging
		NATSURL: getEnv("NATS_URL", ""),
		// HTTP
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		// Security Configuration
		SecurityLogToDB: getEnvBool("SECURITY_LOG_TO_DB", true),
	}

	patterns, err := getEnvPatterns("SCAN_PATTERNS")
	if err != nil {
		return nil, err
	}
	cfg.ScanPatterns = patterns

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}

	if cfg.VirusTotalAPIKey == "" && cfg.ClamAVHost == "" {
		log.Println("WARNING: neither VIRUSTOTAL_API_KEY nor CLAMAV_HOST configured. Only basic pattern scanning is available.")
	}

	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Scan rate limiting is disabled.")
	}

	return cfg, nil
}

// ClamAVAddress returns host:port, or "" when no daemon is configured
func (c *Config) ClamAVAddress() string {
	if c.ClamAVHost == "" {
		return ""
	}
	if strings.HasPrefix(c.ClamAVHost, "/") {
		return c.ClamAVHost // unix socket
	}
	return net.JoinHostPort(c.ClamAVHost, c.ClamAVPort)
}

// IsProduction reports whether APP_ENV (or GIN_MODE=release) marks production
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || os.Getenv("GIN_MODE") == "release"
}

// MaxFileSizeBytes returns the size ceiling in bytes
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") or plain seconds ("15")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// getEnvPatterns reads a pattern list. A value starting with "[" is a JSON
// string array, which allows patterns containing commas; anything else is
// comma-separated.
func getEnvPatterns(key string) ([]string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if !strings.HasPrefix(value, "[") {
		return getEnvList(key), nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	var out []string
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
