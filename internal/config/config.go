package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
	JWT      JWTConfig      `yaml:"jwt"`
	AI       AIConfig       `yaml:"ai"`
	Redis    RedisConfig    `yaml:"redis"`
	Backup   BackupConfig   `yaml:"backup"`
	Calendar CalendarConfig `yaml:"calendar"`
	CORS     CORSConfig     `yaml:"cors"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // file, sqlite, mysql, postgres
	Path   string `yaml:"path"`   // snapshot file for the file driver
	DSN    string `yaml:"dsn"`
}

type SyncConfig struct {
	// EchoUpdates makes every event broadcast-all, including project and
	// file-content updates that otherwise skip their origin.
	EchoUpdates       bool `yaml:"echo_updates"`
	ClientBuffer      int  `yaml:"client_buffer"`
	ReconnectAttempts int  `yaml:"reconnect_attempts"`
	ReconnectDelayMS  int  `yaml:"reconnect_delay_ms"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type AIConfig struct {
	Provider    string  `yaml:"provider"` // gemini, openai, azure, anthropic, ollama
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// RateLimit is requests per second per client IP on assistant routes.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// RedisConfig enables write-behind persistence through an asynq queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// DrainTimeoutSec bounds the startup wait for snapshots queued by the
	// previous run.
	DrainTimeoutSec int `yaml:"drain_timeout_sec"`
}

type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec, e.g. "@every 1h"
	Dir      string `yaml:"dir"`
	Keep     int    `yaml:"keep"`
}

type CalendarConfig struct {
	Country   string `yaml:"country"` // holiday calendar code, NONE for weekdays only
	SlotHours []int  `yaml:"slot_hours"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so a partial file keeps the rest.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "3001",
			Mode: "debug",
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "data.json",
		},
		Sync: SyncConfig{
			EchoUpdates:       false,
			ClientBuffer:      256,
			ReconnectAttempts: 5,
			ReconnectDelayMS:  1000,
		},
		JWT: JWTConfig{
			Secret:     "teamsync-secret-key-change-in-production",
			ExpireHour: 24,
		},
		AI: AIConfig{
			Provider:  "gemini",
			Model:     "gemini-2.5-flash",
			RateLimit: 1,
			Burst:     5,
		},
		Redis: RedisConfig{
			Enabled:         false,
			Addr:            "localhost:6379",
			DrainTimeoutSec: 30,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Schedule: "@every 1h",
			Dir:      "backups",
			Keep:     24,
		},
		Calendar: CalendarConfig{
			Country:   "NONE",
			SlotHours: []int{14, 10},
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	// PORT is what most hosting platforms inject.
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if path := os.Getenv("DATA_FILE"); path != "" {
		c.Storage.Path = path
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if echo := os.Getenv("SYNC_ECHO_UPDATES"); echo != "" {
		if v, err := strconv.ParseBool(echo); err == nil {
			c.Sync.EchoUpdates = v
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		c.AI.Provider = provider
	}
	if baseURL := os.Getenv("AI_BASE_URL"); baseURL != "" {
		c.AI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("AI_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}
	if model := os.Getenv("AI_MODEL"); model != "" {
		c.AI.Model = model
	}
	if country := os.Getenv("CALENDAR_COUNTRY"); country != "" {
		c.Calendar.Country = strings.ToUpper(country)
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORS.AllowOrigins = strings.Split(origins, ",")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}
