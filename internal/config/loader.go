package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/room-occupancy/internal/logging"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// DefaultEnvFile is read by Load when present.
const DefaultEnvFile = ".env"

// Config captures environment driven configuration values for the room
// occupancy service.
type Config struct {
	HTTPPort       int
	Store          string
	SQLiteDSN      string
	CacheDir       string
	LogLevel       slog.Level
	LogFormat      string
	WatchInterval  time.Duration
	AllowedOrigins []string
	Location       *time.Location
	ScheduleSeed   string
	CatalogTTL     time.Duration
}

// Load reads an optional .env file and then parses the process environment.
func Load() (Config, error) {
	return LoadFile(DefaultEnvFile)
}

// LoadFile is Load with an explicit env file path. Variables already present in
// the environment take precedence over the file; a missing file is ignored.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return parse()
}

func parse() (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		Store:         StoreSQLite,
		SQLiteDSN:     "file:roomit.db",
		CacheDir:      ".roomit-cache",
		LogLevel:      slog.LevelInfo,
		LogFormat:     "json",
		WatchInterval: time.Second,
		CatalogTTL:    30 * time.Second,
	}

	invalid := make([]string, 0, 4)

	if portValue := env("ROOMIT_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "ROOMIT_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if store := strings.ToLower(env("ROOMIT_STORE")); store != "" {
		switch store {
		case StoreSQLite, StoreMemory:
			cfg.Store = store
		default:
			invalid = append(invalid, "ROOMIT_STORE")
		}
	}

	if dsn := env("ROOMIT_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if dir := env("ROOMIT_CACHE_DIR"); dir != "" {
		cfg.CacheDir = dir
	}

	if levelValue := env("ROOMIT_LOG_LEVEL"); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "ROOMIT_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if format := strings.ToLower(env("ROOMIT_LOG_FORMAT")); format != "" {
		if format != "json" && format != "text" {
			invalid = append(invalid, "ROOMIT_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}

	if intervalValue := env("ROOMIT_WATCH_INTERVAL"); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "ROOMIT_WATCH_INTERVAL")
		} else {
			cfg.WatchInterval = interval
		}
	}

	if origins := env("ROOMIT_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	zone := env("ROOMIT_TIMEZONE")
	if zone == "" {
		zone = "Asia/Manila"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		invalid = append(invalid, "ROOMIT_TIMEZONE")
	} else {
		cfg.Location = loc
	}

	cfg.ScheduleSeed = env("ROOMIT_SCHEDULE_SEED")

	if ttlValue := env("ROOMIT_CATALOG_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ROOMIT_CATALOG_TTL")
		} else {
			cfg.CatalogTTL = ttl
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
