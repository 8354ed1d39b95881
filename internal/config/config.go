package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server-side settings
	DatabaseDSN    string   `env:"DATABASE_URI"`
	DatabaseDriver string   `env:"DATABASE_DRIVER"` // postgres | sqlite
	AuthSecret     string   `env:"AUTH_SECRET"`
	Env            string   `env:"ENV"`
	PublicURL      string   `env:"PUBLIC_URL"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`

	// Transfer limits
	MaxUploadMB        int64         `env:"MAX_UPLOAD_MB"`
	AttemptLimit       int           `env:"ATTEMPT_LIMIT"`
	DownloadLimit      int           `env:"DOWNLOAD_LIMIT"`
	ArtifactTTL        time.Duration `env:"ARTIFACT_TTL"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL"`
	TombstoneRetention time.Duration `env:"TOMBSTONE_RETENTION"`
	ChunkSizeKB        int           `env:"CHUNK_SIZE_KB"`

	// Blob storage
	StorageBackend    string `env:"STORAGE_BACKEND"` // fs | s3
	StorageDir        string `env:"STORAGE_DIR"`
	TempDir           string `env:"TEMP_DIR"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`

	// Key delivery
	Notifier     string   `env:"NOTIFIER"` // log | kafka | redis
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"`
	RedisURL     string   `env:"REDIS_URL"`
	RedisStream  string   `env:"REDIS_STREAM"`

	// Shared settings
	BaseURL     string `env:"BASE_URL"`
	EnableHTTPS bool   `env:"ENABLE_HTTPS"`

	// Client-side settings
	ServerURL string `env:"-"`
	TokenFile string `env:"TOKEN_FILE"`
	Version   bool   `env:"-"` // show client version and exit (flag only)
}

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// flags работают ТОЛЬКО если переменные из env не заданы
	// Server flags
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "строка подключения к БД")
	flag.StringVar(&cfg.DatabaseDriver, "db-driver", cfg.DatabaseDriver, "драйвер БД: postgres или sqlite")
	flag.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "секрет для подписи JWT")
	flag.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "хранилище блобов: fs или s3")
	flag.StringVar(&cfg.StorageDir, "storage-dir", cfg.StorageDir, "каталог блобов для fs")
	flag.StringVar(&cfg.Notifier, "notifier", cfg.Notifier, "доставка ключа: log, kafka или redis")
	flag.Int64Var(&cfg.MaxUploadMB, "max-upload-mb", cfg.MaxUploadMB, "максимальный размер файла, МБ")
	flag.DurationVar(&cfg.ArtifactTTL, "ttl", cfg.ArtifactTTL, "срок жизни артефакта по умолчанию")
	// Shared/client flags
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "address of the SecureDrop server (host:port)")
	flag.BoolVar(&cfg.EnableHTTPS, "https", cfg.EnableHTTPS, "enable HTTPS (client: prefer https scheme for BaseURL)")
	// Client flags
	flag.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "path to auth token file (client)")
	flag.BoolVar(&cfg.Version, "version", cfg.Version, "Show client version and exit")

	flag.Parse()

	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "dev-secret-key"
	}
	if cfg.DatabaseDriver == "" {
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDriver = "sqlite"
		} else {
			cfg.DatabaseDriver = "postgres"
		}
	}
	if cfg.DatabaseDSN == "" && cfg.DatabaseDriver == "sqlite" {
		cfg.DatabaseDSN = "file:securedrop.db?_pragma=busy_timeout(5000)"
	}
	// validate BaseURL: must be in "address:port" (no scheme, no path). Otherwise use default.
	hostPortRe := regexp.MustCompile(`^[A-Za-z0-9\.\-]+:\d{1,5}$`)
	if !hostPortRe.MatchString(cfg.BaseURL) {
		cfg.BaseURL = "localhost:8081"
	}

	if cfg.EnableHTTPS {
		cfg.ServerURL = "https://" + cfg.BaseURL
	} else {
		cfg.ServerURL = "http://" + cfg.BaseURL
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.ServerURL
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 1024
	}
	if cfg.AttemptLimit <= 0 {
		cfg.AttemptLimit = 3
	}
	if cfg.DownloadLimit <= 0 {
		cfg.DownloadLimit = 1
	}
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.TombstoneRetention < 0 {
		cfg.TombstoneRetention = 0
	} else if cfg.TombstoneRetention == 0 {
		cfg.TombstoneRetention = 7 * 24 * time.Hour
	}
	if cfg.ChunkSizeKB <= 0 {
		cfg.ChunkSizeKB = 64
	}

	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "fs"
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "data/blobs"
	}
	if cfg.Notifier == "" {
		cfg.Notifier = "log"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "securedrop.key-delivery"
	}
	if cfg.RedisStream == "" {
		cfg.RedisStream = "securedrop:key-delivery"
	}

	// Fill client defaults if empty
	if cfg.TokenFile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.TokenFile = filepath.Join(dir, "SecureDrop", "auth_token")
		}
	}
}

// MaxUploadBytes: предел размера загрузки в байтах.
func (cfg *Config) MaxUploadBytes() int64 {
	return cfg.MaxUploadMB * 1024 * 1024
}

// Validate проверяет серверные настройки, которые нельзя подставить по умолчанию.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver))
	}
	switch cfg.StorageBackend {
	case "fs":
	case "s3":
		if cfg.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend))
	}
	switch cfg.Notifier {
	case "log":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for kafka notifier"))
		}
	case "redis":
		if cfg.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for redis notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFIER %q", cfg.Notifier))
	}
	if cfg.ChunkSizeKB < 1 || cfg.ChunkSizeKB > 4096 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE_KB must be within [1, 4096], got %d", cfg.ChunkSizeKB))
	}
	return errors.Join(errs...)
}
