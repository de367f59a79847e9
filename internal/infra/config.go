package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageCredentialMode identifies which credential strategy the artifact
// store was configured with. Exactly one strategy is active at a time; the
// store never falls back from one to the other.
type StorageCredentialMode string

const (
	StorageModeConnectionSecret StorageCredentialMode = "connection_secret"
	StorageModeAccountKey       StorageCredentialMode = "account_key"
	StorageModeFilesystem       StorageCredentialMode = "filesystem"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	DBMaxConns  int

	ProviderAPIKey     string
	ProviderBaseURL    string
	ProviderRoutesFile string

	StorageMode       StorageCredentialMode
	StorageConnSecret string
	StorageAccount    string
	StorageAccessKey  string
	StorageEndpoint   string
	StoragePath       string
	StorageSigningKey string
	StorageBaseURL    string
	ImageContainer    string
	VideoContainer    string

	DefaultSize         string
	DefaultQualityTier  string
	DefaultOutputFormat string

	PollInterval    time.Duration
	PollIntervalMax time.Duration
	JobTimeout      time.Duration
	MaxTokenTTL     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Storage credential resolution is fail fast: the
// connection secret, the account/key/endpoint triple, and the local
// filesystem path are mutually exclusive strategies.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		ProviderAPIKey:     os.Getenv("PROVIDER_API_KEY"),
		ProviderBaseURL:    getEnv("PROVIDER_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderRoutesFile: os.Getenv("PROVIDER_ROUTES_FILE"),

		StorageConnSecret: os.Getenv("STORAGE_CONN_SECRET"),
		StorageAccount:    os.Getenv("STORAGE_ACCOUNT"),
		StorageAccessKey:  os.Getenv("STORAGE_ACCESS_KEY"),
		StorageEndpoint:   os.Getenv("STORAGE_ENDPOINT"),
		StoragePath:       os.Getenv("STORAGE_PATH"),
		StorageSigningKey: getEnv("STORAGE_SIGNING_KEY", "dev-signing-key"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:8080/files"),
		ImageContainer:    getEnv("IMAGE_CONTAINER", "images"),
		VideoContainer:    getEnv("VIDEO_CONTAINER", "videos"),

		DefaultSize:         getEnv("DEFAULT_SIZE", "1024x1024"),
		DefaultQualityTier:  getEnv("DEFAULT_QUALITY", "standard"),
		DefaultOutputFormat: getEnv("DEFAULT_OUTPUT_FORMAT", "image/png"),

		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollIntervalMax: time.Second * time.Duration(getEnvInt("POLL_INTERVAL_MAX_SECONDS", 60)),
		JobTimeout:      time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 1800)),
		MaxTokenTTL:     time.Second * time.Duration(getEnvInt("MAX_TOKEN_TTL_SECONDS", 86400)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	mode, err := resolveStorageMode(cfg)
	if err != nil {
		return nil, err
	}
	cfg.StorageMode = mode

	if cfg.PollIntervalMax < cfg.PollInterval {
		cfg.PollIntervalMax = cfg.PollInterval
	}

	return cfg, nil
}

func resolveStorageMode(cfg *Config) (StorageCredentialMode, error) {
	hasSecret := strings.TrimSpace(cfg.StorageConnSecret) != ""
	triple := []string{cfg.StorageAccount, cfg.StorageAccessKey, cfg.StorageEndpoint}
	tripleSet := 0
	for _, v := range triple {
		if strings.TrimSpace(v) != "" {
			tripleSet++
		}
	}
	hasPath := strings.TrimSpace(cfg.StoragePath) != ""

	switch {
	case hasSecret && tripleSet > 0:
		return "", fmt.Errorf("storage credentials: connection secret and account/key/endpoint are mutually exclusive")
	case hasSecret:
		return StorageModeConnectionSecret, nil
	case tripleSet == 3:
		return StorageModeAccountKey, nil
	case tripleSet > 0:
		return "", fmt.Errorf("storage credentials: STORAGE_ACCOUNT, STORAGE_ACCESS_KEY and STORAGE_ENDPOINT must all be set")
	case hasPath:
		return StorageModeFilesystem, nil
	default:
		if cfg.AppEnv == "development" {
			cfg.StoragePath = "./storage"
			return StorageModeFilesystem, nil
		}
		return "", fmt.Errorf("storage credentials: no strategy configured")
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
