package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendBolt   = "bolt"
)

// Config captures all runtime configuration. Values come from an optional
// YAML file named by CONFIG_FILE, overridden by environment variables.
type Config struct {
	Port      string `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
	JWTSecret string `yaml:"jwt_secret"`
	DBURL     string `yaml:"db_url"`

	TMDBBaseURL      string `yaml:"tmdb_base_url"`
	TMDBAPIKey       string `yaml:"tmdb_api_key"`
	TMDBAPIToken     string `yaml:"tmdb_api_token"`
	TMDBImageBaseURL string `yaml:"tmdb_image_base_url"`
	TMDBTimeoutSecs  int    `yaml:"tmdb_timeout_secs"`
	TMDBRatePerSec   int    `yaml:"tmdb_rate_per_sec"`

	CacheBackend         string `yaml:"cache_backend"`
	CacheBoltPath        string `yaml:"cache_bolt_path"`
	CacheUpstreamTTLSecs int    `yaml:"cache_upstream_ttl_secs"`
	CacheCatalogTTLSecs  int    `yaml:"cache_catalog_ttl_secs"`
	CacheSweepSecs       int    `yaml:"cache_sweep_secs"`

	APIRatePerSec int `yaml:"api_rate_per_sec"`
	APIRateBurst  int `yaml:"api_rate_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReadTimeoutSecs   int `yaml:"server_read_timeout"`
	WriteTimeoutSecs  int `yaml:"server_write_timeout"`
	IdleTimeoutSecs   int `yaml:"server_idle_timeout"`
	DBMaxConns        int `yaml:"db_max_conns"`
	DBMinConns        int `yaml:"db_min_conns"`
	DBMaxIdleSecs     int `yaml:"db_max_conn_idle_secs"`
	DBMaxLifeSecs     int `yaml:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs int `yaml:"db_conn_timeout_secs"`
	DBStatementCache  int `yaml:"db_statement_cache_capacity"`

	DBMigrationsDir string `yaml:"db_migrations_dir"`
	DBAutoMigrate   bool   `yaml:"db_auto_migrate"`
}

func defaults() Config {
	return Config{
		Port:                 "8080",
		TMDBBaseURL:          "https://api.themoviedb.org/3",
		TMDBImageBaseURL:     "https://image.tmdb.org/t/p/w500",
		TMDBTimeoutSecs:      10,
		TMDBRatePerSec:       4,
		CacheBackend:         CacheBackendMemory,
		CacheBoltPath:        "data/cache.db",
		CacheUpstreamTTLSecs: 3600,
		CacheCatalogTTLSecs:  300,
		CacheSweepSecs:       60,
		APIRatePerSec:        20,
		APIRateBurst:         40,
		LogLevel:             "info",
		LogFormat:            "json",
		ReadTimeoutSecs:      15,
		WriteTimeoutSecs:     15,
		IdleTimeoutSecs:      60,
		DBMaxConns:           20,
		DBMinConns:           2,
		DBMaxIdleSecs:        300,
		DBMaxLifeSecs:        3600,
		DBConnTimeoutSecs:    10,
		DBStatementCache:     256,
		DBMigrationsDir:      "db/migrations",
		DBAutoMigrate:        true,
	}
}

// Load reads configuration, applying defaults and validation.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AuthToken = getEnv("AUTH_TOKEN", cfg.AuthToken)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.DBURL = getEnv("DB_URL", cfg.DBURL)
	cfg.TMDBBaseURL = getEnv("TMDB_BASE_URL", cfg.TMDBBaseURL)
	cfg.TMDBAPIKey = getEnv("TMDB_API_KEY", cfg.TMDBAPIKey)
	cfg.TMDBAPIToken = getEnv("TMDB_API_TOKEN", cfg.TMDBAPIToken)
	cfg.TMDBImageBaseURL = getEnv("TMDB_IMAGE_BASE_URL", cfg.TMDBImageBaseURL)
	cfg.TMDBTimeoutSecs = getEnvInt("TMDB_TIMEOUT_SECS", cfg.TMDBTimeoutSecs)
	cfg.TMDBRatePerSec = getEnvInt("TMDB_RATE_PER_SEC", cfg.TMDBRatePerSec)
	cfg.CacheBackend = strings.ToLower(getEnv("CACHE_BACKEND", cfg.CacheBackend))
	cfg.CacheBoltPath = getEnv("CACHE_BOLT_PATH", cfg.CacheBoltPath)
	cfg.CacheUpstreamTTLSecs = getEnvInt("CACHE_UPSTREAM_TTL_SECS", cfg.CacheUpstreamTTLSecs)
	cfg.CacheCatalogTTLSecs = getEnvInt("CACHE_CATALOG_TTL_SECS", cfg.CacheCatalogTTLSecs)
	cfg.CacheSweepSecs = getEnvInt("CACHE_SWEEP_SECS", cfg.CacheSweepSecs)
	cfg.APIRatePerSec = getEnvInt("API_RATE_PER_SEC", cfg.APIRatePerSec)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", cfg.APIRateBurst)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.ReadTimeoutSecs = getEnvInt("SERVER_READ_TIMEOUT", cfg.ReadTimeoutSecs)
	cfg.WriteTimeoutSecs = getEnvInt("SERVER_WRITE_TIMEOUT", cfg.WriteTimeoutSecs)
	cfg.IdleTimeoutSecs = getEnvInt("SERVER_IDLE_TIMEOUT", cfg.IdleTimeoutSecs)
	cfg.DBMaxConns = getEnvInt("DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = getEnvInt("DB_MIN_CONNS", cfg.DBMinConns)
	cfg.DBMaxIdleSecs = getEnvInt("DB_MAX_CONN_IDLE_SECS", cfg.DBMaxIdleSecs)
	cfg.DBMaxLifeSecs = getEnvInt("DB_MAX_CONN_LIFETIME_SECS", cfg.DBMaxLifeSecs)
	cfg.DBConnTimeoutSecs = getEnvInt("DB_CONN_TIMEOUT_SECS", cfg.DBConnTimeoutSecs)
	cfg.DBStatementCache = getEnvInt("DB_STATEMENT_CACHE_CAPACITY", cfg.DBStatementCache)
	cfg.DBMigrationsDir = getEnv("DB_MIGRATIONS_DIR", cfg.DBMigrationsDir)
	if raw := getEnv("DB_AUTO_MIGRATE", ""); raw != "" {
		auto, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("DB_AUTO_MIGRATE must be a boolean: %w", err)
		}
		cfg.DBAutoMigrate = auto
	}

	if cfg.TMDBAPIToken == "" {
		cfg.TMDBAPIToken = cfg.TMDBAPIKey
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.TMDBAPIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is required")
	}
	if cfg.TMDBTimeoutSecs <= 0 {
		return fmt.Errorf("TMDB_TIMEOUT_SECS must be positive")
	}
	if cfg.TMDBRatePerSec <= 0 {
		return fmt.Errorf("TMDB_RATE_PER_SEC must be positive")
	}
	switch cfg.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendBolt:
		if cfg.CacheBoltPath == "" {
			return fmt.Errorf("CACHE_BOLT_PATH is required for the bolt cache backend")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q", CacheBackendMemory, CacheBackendBolt)
	}
	if cfg.CacheUpstreamTTLSecs <= 0 {
		return fmt.Errorf("CACHE_UPSTREAM_TTL_SECS must be positive")
	}
	if cfg.CacheCatalogTTLSecs <= 0 {
		return fmt.Errorf("CACHE_CATALOG_TTL_SECS must be positive")
	}
	if cfg.CacheSweepSecs <= 0 {
		return fmt.Errorf("CACHE_SWEEP_SECS must be positive")
	}
	if cfg.APIRatePerSec < 0 || cfg.APIRateBurst < 0 {
		return fmt.Errorf("API_RATE_PER_SEC and API_RATE_BURST must be non-negative")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBAutoMigrate && cfg.DBMigrationsDir == "" {
		return fmt.Errorf("DB_MIGRATIONS_DIR is required when DB_AUTO_MIGRATE is on")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("CONFIG_FILE: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("CONFIG_FILE %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
