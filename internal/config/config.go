// Package config loads the service configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	DataDir  string `yaml:"dataDir"`

	// Persisted reader state backend: memory, redis, or postgres.
	KVBackend     string `yaml:"kvBackend"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	DatabaseURL   string `yaml:"databaseURL"`

	// Remote content the reader downloads language packs from.
	ContentBaseURL string `yaml:"contentBaseURL"`

	// Blob storage for the pack catalog. Minio wins when configured;
	// otherwise blobs land under dataDir.
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AdminUser         string `yaml:"adminUser"`
	AdminPasswordHash string `yaml:"adminPasswordHash"`
	JWTSecret         string `yaml:"jwtSecret"`

	DownloadRateLimit         int      `yaml:"downloadRateLimit"`
	DownloadRateWindowSeconds int      `yaml:"downloadRateWindowSeconds"`
	TrustedProxies            []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
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
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("RIVERREADER_KV_BACKEND"); v != "" {
		cfg.KVBackend = v
	}
	if v := os.Getenv("RIVERREADER_CONTENT_BASE_URL"); v != "" {
		cfg.ContentBaseURL = v
	}
	if v := os.Getenv("RIVERREADER_ADMIN_USER"); v != "" {
		cfg.AdminUser = v
	}
	if v := os.Getenv("RIVERREADER_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.AdminPasswordHash = v
	}
	if v := os.Getenv("RIVERREADER_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("RIVERREADER_DOWNLOAD_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DownloadRateLimit = n
		}
	}
	if v := os.Getenv("RIVERREADER_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if cfg.KVBackend == "" {
		cfg.KVBackend = "memory"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DataDir == "" {
		return errors.New("config: dataDir is required (set in config.yaml)")
	}
	switch cfg.KVBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis kv backend")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres kv backend")
		}
	default:
		return fmt.Errorf("config: unknown kvBackend %q (memory, redis, postgres)", cfg.KVBackend)
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioAccessKey and minioSecretKey are required with minioEndpoint")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required with minioEndpoint")
		}
	}
	if cfg.AdminUser == "" {
		return errors.New("config: adminUser is required (set in config.yaml)")
	}
	if cfg.AdminPasswordHash == "" {
		return errors.New("config: adminPasswordHash is required (set in config.yaml or RIVERREADER_ADMIN_PASSWORD_HASH)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or RIVERREADER_JWT_SECRET)")
	}
	if cfg.DownloadRateLimit < 0 {
		return errors.New("config: downloadRateLimit must not be negative")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
