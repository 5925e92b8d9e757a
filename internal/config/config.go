package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/mimeext"
	"github.com/ytget/twitvid/shortcode"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig     `koanf:"server"`
	Codec    CodecConfig      `koanf:"codec"`
	Resolver ResolverConfig   `koanf:"resolver"`
	Download DownloadConfig   `koanf:"download"`
	Upload   UploadConfig     `koanf:"upload"`
	Storage  StorageConfig    `koanf:"storage"`
	History  HistoryConfig    `koanf:"history"`
	Log      logger.LogConfig `koanf:"log"`
}

type ServerConfig struct {
	Address         string        `koanf:"address"`
	PublicOrigin    string        `koanf:"public_origin"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	BatchLimit      int           `koanf:"batch_limit"`
	BatchWorkers    int           `koanf:"batch_workers"`
}

// CodecConfig holds the short-code key. Changing it invalidates every link
// issued under the previous key.
type CodecConfig struct {
	Key string `koanf:"key"`
}

type ResolverConfig struct {
	Provider     string        `koanf:"provider"`
	Endpoint     string        `koanf:"endpoint"`
	Script       string        `koanf:"script"`
	ScriptEngine string        `koanf:"script_engine"`
	Timeout      time.Duration `koanf:"timeout"`
	Retries      int           `koanf:"retries"`
	UserAgent    string        `koanf:"user_agent"`
	ProxyURL     string        `koanf:"proxy_url"`
	Cache        string        `koanf:"cache"` // memory, badger or none
	CacheDir     string        `koanf:"cache_dir"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

type DownloadConfig struct {
	OutputDir string `koanf:"output_dir"`
	Quality   string `koanf:"quality"`
	RateLimit int64  `koanf:"rate_limit"` // bytes per second, 0 = unlimited
	ChunkSize int64  `koanf:"chunk_size"`
	Retries   int    `koanf:"retries"`
}

type UploadConfig struct {
	MaxFileSize  int64    `koanf:"max_file_size"`
	AllowedTypes []string `koanf:"allowed_types"`
	Attempts     int      `koanf:"attempts"`
}

type StorageConfig struct {
	DatabasePath string `koanf:"database_path"`
	BlobRoot     string `koanf:"blob_root"`
	Bucket       string `koanf:"bucket"`
}

type HistoryConfig struct {
	MaxItems int `koanf:"max_items"`
}

// Known provider names.
const (
	ProviderSparky = "sparky"
	ProviderCyril  = "cyril"
	ProviderScript = "script"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			PublicOrigin:    "http://localhost:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			BatchLimit:      10,
			BatchWorkers:    4,
		},
		Codec: CodecConfig{Key: shortcode.DefaultKey},
		Resolver: ResolverConfig{
			Provider:     ProviderSparky,
			ScriptEngine: "goja",
			Timeout:      30 * time.Second,
			Retries:      2,
			Cache:        "memory",
			CacheDir:     "data/cache",
			CacheTTL:     10 * time.Minute,
		},
		Download: DownloadConfig{
			OutputDir: ".",
			Quality:   "best",
			ChunkSize: 1 << 20,
			Retries:   3,
		},
		Upload: UploadConfig{
			MaxFileSize:  5 << 20,
			AllowedTypes: append([]string(nil), mimeext.ImageTypes...),
			Attempts:     3,
		},
		Storage: StorageConfig{
			DatabasePath: "data/twitvid.db",
			BlobRoot:     "data/blobs",
			Bucket:       "images",
		},
		History: HistoryConfig{MaxItems: 10},
		Log:     *logger.DefaultLogConfig(),
	}
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Address) == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if u, err := url.Parse(c.Server.PublicOrigin); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.public_origin must be an absolute http(s) URL, got %q", c.Server.PublicOrigin))
	}
	if c.Server.BatchLimit < 1 || c.Server.BatchWorkers < 1 {
		errs = append(errs, errors.New("server.batch_limit and server.batch_workers must be positive"))
	}

	if _, err := shortcode.New(c.Codec.Key); err != nil {
		errs = append(errs, fmt.Errorf("codec.key: %w", err))
	}

	switch c.Resolver.Provider {
	case ProviderSparky, ProviderCyril:
	case ProviderScript:
		if c.Resolver.Script == "" {
			errs = append(errs, errors.New("resolver.script is required for the script provider"))
		}
		if c.Resolver.Endpoint == "" {
			errs = append(errs, errors.New("resolver.endpoint is required for the script provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown resolver.provider %q", c.Resolver.Provider))
	}
	switch c.Resolver.ScriptEngine {
	case "", "goja", "otto":
	default:
		errs = append(errs, fmt.Errorf("unknown resolver.script_engine %q", c.Resolver.ScriptEngine))
	}
	switch c.Resolver.Cache {
	case "", "none", "memory":
	case "badger":
		if c.Resolver.CacheDir == "" {
			errs = append(errs, errors.New("resolver.cache_dir is required for the badger cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown resolver.cache %q", c.Resolver.Cache))
	}
	if c.Resolver.Retries < 0 {
		errs = append(errs, errors.New("resolver.retries must be non-negative"))
	}

	if c.Download.RateLimit < 0 {
		errs = append(errs, errors.New("download.rate_limit must be non-negative"))
	}
	if c.Download.ChunkSize <= 0 {
		errs = append(errs, errors.New("download.chunk_size must be positive"))
	}

	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, errors.New("upload.max_file_size must be positive"))
	}
	if len(c.Upload.AllowedTypes) == 0 {
		errs = append(errs, errors.New("upload.allowed_types must not be empty"))
	}
	if c.Upload.Attempts < 1 {
		errs = append(errs, errors.New("upload.attempts must be at least 1"))
	}

	if c.Storage.DatabasePath == "" || c.Storage.BlobRoot == "" || c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.database_path, storage.blob_root and storage.bucket are required"))
	}
	if c.History.MaxItems < 1 {
		errs = append(errs, errors.New("history.max_items must be at least 1"))
	}

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}
