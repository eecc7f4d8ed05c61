package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	FileStore     FileStoreConfig  `json:"file_store"`
	Redis         RedisConfig      `json:"redis"`
	Citation      CitationConfig   `json:"citation"`
	History       HistoryConfig    `json:"history"`
	RateLimitMs   int              `json:"rate_limit_ms"`
	CORSAllowlist []string         `json:"cors_allowlist"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// Enabled reports whether a database is configured at all. Without one the
// answer history is switched off.
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

// RedisConfig enables the cross-replica result cache. URL takes precedence
// over the discrete fields.
type RedisConfig struct {
	URL       string `json:"url"`
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

func (c RedisConfig) Enabled() bool {
	return c.URL != "" || c.Addr != ""
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CitationConfig struct {
	BlobHostSuffixes []string `json:"blob_host_suffixes"`
	FilePathPrefix   string   `json:"file_path_prefix"`
	TruncateLabels   *bool    `json:"truncate_labels"`
	PartNumbering    string   `json:"part_numbering"`
	CardBatchSize    int      `json:"card_batch_size"`
	MaxAnswerChars   int      `json:"max_answer_chars"`
	CacheSize        int      `json:"cache_size"`
	CacheTTLSeconds  int      `json:"cache_ttl_seconds"`
	MaxStreamBytes   int64    `json:"max_stream_bytes"`
}

type HistoryConfig struct {
	RetentionDays int    `json:"retention_days"`
	CleanupCron   string `json:"cleanup_cron"`
}

const (
	PartNumberingChunk = "chunk"
	PartNumberingFile  = "file"
)

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Enabled() && cfg.Database.DSN == "" {
		if cfg.Database.Port == 0 {
			cfg.Database.Port = 5432
		}
		if cfg.Database.DBName == "" {
			return fmt.Errorf("database.db_name is required")
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.FileStore.Type)) {
	case "", "none":
		cfg.FileStore.Type = ""
	case "local", "s3":
		if cfg.FileStore.Data == nil {
			return fmt.Errorf("file_store.data is required for %s store", cfg.FileStore.Type)
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}

	if cfg.Redis.Enabled() && cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "datachat:citation:"
	}

	c := &cfg.Citation
	if c.FilePathPrefix == "" {
		c.FilePathPrefix = "/api/v1/files"
	}
	if c.TruncateLabels == nil {
		truncate := true
		c.TruncateLabels = &truncate
	}
	switch c.PartNumbering {
	case "":
		c.PartNumbering = PartNumberingChunk
	case PartNumberingChunk, PartNumberingFile:
	default:
		return fmt.Errorf("citation.part_numbering must be chunk or file")
	}
	if c.CardBatchSize <= 0 {
		c.CardBatchSize = 5
	}
	if c.MaxAnswerChars <= 0 {
		c.MaxAnswerChars = 200000
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 2048
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 600
	}
	if c.MaxStreamBytes <= 0 {
		c.MaxStreamBytes = 8 << 20
	}

	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.CleanupCron == "" {
		cfg.History.CleanupCron = "30 3 * * *"
	}
	if cfg.RateLimitMs < 0 {
		cfg.RateLimitMs = 0
	}
	return nil
}
