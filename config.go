package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once at startup and handed to every collaborator.
type Config struct {
	Server      ServerConfig  `yaml:"server"`
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	RabbitMQURL string        `yaml:"rabbitmq_url"`
	Storage     StorageConfig `yaml:"storage"`
	AI          AIConfig      `yaml:"ai"`
	Log         LogConfig     `yaml:"log"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			MaxUploadBytes: 10 << 20,
			SessionCookie:  "session",
		},
		Storage: StorageConfig{
			Backend: "r2",
			Minio:   MinioConfig{Region: "us-east-1"},
		},
		AI:  AIConfig{Provider: "gemini"},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig layers defaults, the optional YAML file at path, a .env file and
// the process environment, in increasing precedence.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT")
	setList(&cfg.Server.AllowedOrigins, "CORS_ORIGINS")
	setFloat(&cfg.Server.RateLimitRPS, "RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "RATE_LIMIT_BURST")
	setInt64(&cfg.Server.MaxUploadBytes, "MAX_UPLOAD_BYTES")
	setString(&cfg.Server.SessionCookie, "SESSION_COOKIE")

	setString(&cfg.DatabaseURL, "DB_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.RabbitMQURL, "RABBITMQ_URL")

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.R2.AccountID, "R2_ACCOUNT_ID")
	setString(&cfg.Storage.R2.Bucket, "R2_BUCKET")
	setString(&cfg.Storage.R2.AccessKey, "R2_ACCESS_KEY")
	setString(&cfg.Storage.R2.SecretKey, "R2_SECRET_KEY")
	setString(&cfg.Storage.R2.Endpoint, "R2_ENDPOINT")
	setString(&cfg.Storage.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Storage.Minio.Bucket, "MINIO_BUCKET")
	setString(&cfg.Storage.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Storage.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Storage.Minio.Region, "MINIO_REGION")
	setBool(&cfg.Storage.Minio.UseSSL, "MINIO_USE_SSL")

	setString(&cfg.AI.Provider, "AI_PROVIDER")
	setString(&cfg.AI.Model, "AI_MODEL")
	setString(&cfg.AI.GoogleAPIKey, "GOOGLE_API_KEY")
	setString(&cfg.AI.GoogleAPIKey, "GEMINI_API_KEY")
	setString(&cfg.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.BaseURL, "AI_BASE_URL")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File, "LOG_FILE")
}

// Validate reports every missing setting the selected backends need.
func (c Config) Validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require(c.DatabaseURL, "DB_URL")

	switch c.Storage.Backend {
	case "r2":
		if c.Storage.R2.Endpoint == "" {
			require(c.Storage.R2.AccountID, "R2_ACCOUNT_ID")
		}
		require(c.Storage.R2.Bucket, "R2_BUCKET")
		require(c.Storage.R2.AccessKey, "R2_ACCESS_KEY")
		require(c.Storage.R2.SecretKey, "R2_SECRET_KEY")
	case "minio":
		require(c.Storage.Minio.Endpoint, "MINIO_ENDPOINT")
		require(c.Storage.Minio.Bucket, "MINIO_BUCKET")
		require(c.Storage.Minio.AccessKey, "MINIO_ACCESS_KEY")
		require(c.Storage.Minio.SecretKey, "MINIO_SECRET_KEY")
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.AI.Provider {
	case "gemini", "agent":
		require(c.AI.GoogleAPIKey, "GEMINI_API_KEY")
	case "openai":
		require(c.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AI.Provider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
