package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/db"

	"github.com/spf13/viper"
)

const envPrefix = "BATCHREC"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database db.Config
	Storage  StorageConfig
	Audit    AuditConfig
	Log      LogConfig

	// Source is the config file that was read, empty when none was found.
	Source string
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type StorageConfig struct {
	// Type is "postgres" or "memory".
	Type string
}

type AuditConfig struct {
	MaxWriteRetries   int
	DefaultPageSize   int
	MaxPageSize       int
	DiffStrategy      string
	Timezone          string
	LookupConcurrency int
	ExportLimit       int
}

type LogConfig struct {
	Level  string
	Format string
}

// Location resolves the configured timezone.
func (a AuditConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(a.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid audit.timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)

	v.SetDefault("storage.type", "postgres")

	v.SetDefault("audit.max_write_retries", 3)
	v.SetDefault("audit.default_page_size", 20)
	v.SetDefault("audit.max_page_size", 200)
	v.SetDefault("audit.diff_strategy", "name")
	v.SetDefault("audit.timezone", "UTC")
	v.SetDefault("audit.lookup_concurrency", 8)
	v.SetDefault("audit.export_limit", 10000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads config.yaml from configPath when present, then applies
// BATCHREC_* environment overrides (BATCHREC_DATABASE_HOST, BATCHREC_AUDIT_TIMEZONE, ...).
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var source string
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		source = v.ConfigFileUsed()
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
		},
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Storage: StorageConfig{
			Type: strings.ToLower(strings.TrimSpace(v.GetString("storage.type"))),
		},
		Audit: AuditConfig{
			MaxWriteRetries:   v.GetInt("audit.max_write_retries"),
			DefaultPageSize:   v.GetInt("audit.default_page_size"),
			MaxPageSize:       v.GetInt("audit.max_page_size"),
			DiffStrategy:      v.GetString("audit.diff_strategy"),
			Timezone:          v.GetString("audit.timezone"),
			LookupConcurrency: v.GetInt("audit.lookup_concurrency"),
			ExportLimit:       v.GetInt("audit.export_limit"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Source: source,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Type {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid storage.type %q: want postgres or memory", c.Storage.Type)
	}
	if c.Audit.MaxWriteRetries < 1 {
		return fmt.Errorf("audit.max_write_retries must be at least 1")
	}
	if c.Audit.DefaultPageSize < 1 || c.Audit.MaxPageSize < c.Audit.DefaultPageSize {
		return fmt.Errorf("audit page sizes must satisfy 1 <= default_page_size <= max_page_size")
	}
	switch strings.ToLower(c.Audit.DiffStrategy) {
	case "name", "position":
	default:
		return fmt.Errorf("invalid audit.diff_strategy %q: want name or position", c.Audit.DiffStrategy)
	}
	if _, err := c.Audit.Location(); err != nil {
		return err
	}
	return nil
}
