package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AgentConfig is the local service configuration. Printer and SaaS
// connection settings live in the SQLite store and are edited through the
// web UI; this file only bootstraps the process.
type AgentConfig struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Web      WebConfig      `toml:"web"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

type WebConfig struct {
	HTTPPort int `toml:"http_port"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *AgentConfig {
	return &AgentConfig{
		Database: DatabaseConfig{
			Path: "", // resolved to the platform data dir at startup
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
		Web: WebConfig{
			HTTPPort: 5000,
		},
	}
}

// LoadConfig loads the TOML file at configPath and applies environment
// variable overrides. The file must exist.
func LoadConfig(configPath string) (*AgentConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	if val := os.Getenv("AGENT_DATABASE_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_DIR"); val != "" {
		cfg.Logging.Dir = val
	}
	if val := os.Getenv("WEB_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Web.HTTPPort = port
		}
	}

	return cfg, nil
}

// WriteDefaultConfig writes a default configuration file, creating parent
// directories as needed.
func WriteDefaultConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(DefaultConfig())
}

// dataDir resolves the directory for the database and logs when the
// config leaves them unset.
func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "print-agent")
	}
	return "."
}

// resolvePaths fills in platform defaults for unset paths.
func (c *AgentConfig) resolvePaths() {
	base := dataDir()
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(base, "agent.db")
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(base, "logs")
	}
}
