package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	SessionTTL    string `yaml:"sessionTTL"`

	// Blob storage. Backend "disk" writes under folderPath, "s3" targets a
	// MinIO/S3 bucket.
	StorageBackend string `yaml:"storageBackend"`
	FolderPath     string `yaml:"folderPath"`
	S3Endpoint     string `yaml:"s3Endpoint"`
	S3AccessKey    string `yaml:"s3AccessKey"`
	S3SecretKey    string `yaml:"s3SecretKey"`
	S3Bucket       string `yaml:"s3Bucket"`
	S3UseSSL       bool   `yaml:"s3UseSSL"`

	SignupRateLimitPerMinute  int `yaml:"signupRateLimitPerMinute"`
	ConnectRateLimitPerMinute int `yaml:"connectRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies env
// overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("FOLDER_PATH"); v != "" {
		cfg.FolderPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("FILEVAULT_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("FILEVAULT_S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("FILEVAULT_S3_ACCESS_KEY"); v != "" {
		cfg.S3AccessKey = v
	}
	if v := os.Getenv("FILEVAULT_S3_SECRET_KEY"); v != "" {
		cfg.S3SecretKey = v
	}
	if v := os.Getenv("FILEVAULT_S3_BUCKET"); v != "" {
		cfg.S3Bucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("FILEVAULT_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.S3UseSSL = b
		}
	}
	if v := os.Getenv("FILEVAULT_SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("FILEVAULT_CONNECT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConnectRateLimitPerMinute = n
		}
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "disk"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	switch cfg.StorageBackend {
	case "disk":
		if strings.TrimSpace(cfg.FolderPath) == "" {
			return errors.New("config: folderPath is required for disk storage (set in config.yaml or FOLDER_PATH)")
		}
	case "s3":
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return errors.New("config: s3Endpoint and s3Bucket are required for s3 storage")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (disk or s3)", cfg.StorageBackend)
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.ConnectRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// ParseSessionTTL parses the optional session TTL. Empty means the 24h
// default.
func ParseSessionTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("sessionTTL must be positive")
	}
	return dur, nil
}
