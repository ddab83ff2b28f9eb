// Package config собирает настройки сервиса из флагов, переменных окружения и .env.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultStoreTimeout ограничивает одно обращение к хранилищу, если STORE_TIMEOUT не задан.
const DefaultStoreTimeout = 3 * time.Second

type ConfigType struct {
	ServerAddress   string `env:"SERVER_ADDRESS"`
	FileStoragePath string `env:"FILE_STORAGE_PATH"`
	DSN             string `env:"DATABASE_DSN"`
	SQLitePath      string `env:"SQLITE_PATH"`
	RedisURL        string `env:"REDIS_URL"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT"`

	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
	// TrustedProxies - адреса или подсети прокси, чьему X-Forwarded-For можно верить.
	// Пусто - клиентский IP берётся только из адреса соединения.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST"`

	DumpSecret string `env:"DUMP_SECRET"`

	BackupSchedule string `env:"BACKUP_SCHEDULE"`
	BackupDir      string `env:"BACKUP_DIR"`
	BackupS3Bucket string `env:"BACKUP_S3_BUCKET"`
	BackupS3Prefix string `env:"BACKUP_S3_PREFIX"`

	LogLevel string `env:"LOG_LEVEL"`
}

// NewConfig разбирает аргументы командной строки args, затем поверх них
// применяет переменные окружения. Файл envFile (обычно ".env") подгружается
// в окружение до разбора; отсутствие файла ошибкой не считается.
func NewConfig(args []string, envFile string) (*ConfigType, error) {
	config := ConfigType{}

	fset := flag.NewFlagSet("votes", flag.ContinueOnError)
	fset.StringVar(&config.ServerAddress, "a", "localhost:3000", "HTTP server address")
	fset.StringVar(&config.FileStoragePath, "f", "db.json", "JSON file storage path")
	fset.StringVar(&config.DSN, "d", "", "PostgreSQL DSN")
	fset.StringVar(&config.SQLitePath, "s", "", "SQLite database path")
	fset.StringVar(&config.RedisURL, "r", "", "Redis URL")
	fset.DurationVar(&config.StoreTimeout, "t", DefaultStoreTimeout, "Store call timeout")
	fset.StringVar(&config.LogLevel, "l", "info", "Log level (debug, info, warn, error)")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	config.RateLimitBurst = 20
	config.CORSOrigins = []string{"*"}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}

	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}

	return &config, nil
}

// Backend возвращает имя хранилища, выбранного по приоритету:
// PostgreSQL, Redis, SQLite, JSON-файл, память.
func (c *ConfigType) Backend() string {
	switch {
	case c.DSN != "":
		return "postgres"
	case c.RedisURL != "":
		return "redis"
	case c.SQLitePath != "":
		return "sqlite"
	case c.FileStoragePath != "":
		return "file"
	default:
		return "memory"
	}
}
