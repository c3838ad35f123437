package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Retention RetentionConfig `yaml:"retention"`
	Import    ImportConfig    `yaml:"import"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RetentionConfig struct {
	// Days keeps summarized heartbeats this long before the sweep purges
	// them. Zero disables purging.
	Days int `yaml:"days"`
}

type ImportConfig struct {
	Workers        int `yaml:"workers"`
	ChunkThreshold int `yaml:"chunk_threshold"`
	ChunkDays      int `yaml:"chunk_days"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "codepulse.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Retention: RetentionConfig{
			Days: 90,
		},
	}

	if path := os.Getenv("CODEPULSE_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("CODEPULSE_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("CODEPULSE_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CODEPULSE_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("CODEPULSE_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("CODEPULSE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if daysStr := os.Getenv("CODEPULSE_RETENTION_DAYS"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CODEPULSE_RETENTION_DAYS: %w", err)
		}
		cfg.Retention.Days = days
	}
	if workersStr := os.Getenv("CODEPULSE_IMPORT_WORKERS"); workersStr != "" {
		workers, err := strconv.Atoi(workersStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CODEPULSE_IMPORT_WORKERS: %w", err)
		}
		cfg.Import.Workers = workers
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
