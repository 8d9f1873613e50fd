package config

import (
	"errors"
	"os"
	"strconv"
	"sync"
	"time"
)

type Config struct {
	Env              string
	LogLevel         string
	DBType           string
	DBDSN            string
	SQLitePath       string
	DataDir          string
	AuthServiceURL   string
	LocalToken       string
	DispatchInterval time.Duration
	WindowDays       int
	Timezone         string
}

var (
	cfg  *Config
	once sync.Once
)

func Load() *Config {
	once.Do(func() {
		_ = loadDotEnv()
		cfg = &Config{
			Env:              getEnv("APP_ENV", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			DBType:           getEnv("STORAGE_BACKEND", "file"),
			DBDSN:            getEnv("POSTGRES_DSN", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "data/pilltime.db"),
			DataDir:          getEnv("DATA_DIR", "data"),
			AuthServiceURL:   getEnv("AUTH_SERVICE_URL", ""),
			LocalToken:       getEnv("LOCAL_TOKEN", "MOCK-TOKEN"),
			DispatchInterval: getDuration("DISPATCH_INTERVAL", time.Minute),
			WindowDays:       getInt("GENERATION_WINDOW_DAYS", 7),
			Timezone:         getEnv("APP_TIMEZONE", "UTC"),
		}
		if err := cfg.Validate(); err != nil {
			panic("Invalid config: " + err.Error())
		}
	})
	return cfg
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "postgres":
		if c.DBDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORAGE_BACKEND=sqlite")
		}
	case "file":
		if c.DataDir == "" {
			return errors.New("File storage requires DATA_DIR to be set")
		}
	default:
		return errors.New("STORAGE_BACKEND must be one of: file, sqlite, postgres")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.Env != "development" && c.AuthServiceURL == "" {
		return errors.New("AUTH_SERVICE_URL is required outside development")
	}
	if c.DispatchInterval < time.Second {
		return errors.New("DISPATCH_INTERVAL must be at least 1s")
	}
	if c.WindowDays < 1 {
		return errors.New("GENERATION_WINDOW_DAYS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("APP_TIMEZONE must be a valid IANA zone: " + err.Error())
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		f, err := os.Open(".env")
		if err != nil {
			return err
		}
		defer f.Close()
		var lines []string
		buf := make([]byte, 4096)
		for {
			n, err := f.Read(buf)
			if n > 0 {
				lines = append(lines, string(buf[:n]))
			}
			if err != nil {
				break
			}
		}
		for _, line := range lines {
			for _, l := range splitLines(line) {
				if len(l) == 0 || l[0] == '#' {
					continue
				}
				kv := splitKV(l)
				if len(kv) == 2 {
					os.Setenv(kv[0], kv[1])
				}
			}
		}
	}
	return nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' || c == '\r' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func splitKV(s string) []string {
	for i, c := range s {
		if c == '=' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}
