package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	ListenAddr     string `json:"listen_addr"`
	LogLevel       string `json:"log_level"`
	MaxConnections int    `json:"max_connections"`
	TokenModel     string `json:"token_model"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:     "127.0.0.1:8787",
		LogLevel:       "info",
		MaxConnections: 4,
		TokenModel:     "gpt-4",
	}

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if addr := os.Getenv("CHATFEED_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if level := os.Getenv("CHATFEED_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if model := os.Getenv("CHATFEED_TOKEN_MODEL"); model != "" {
		cfg.TokenModel = model
	}
	if raw := os.Getenv("CHATFEED_MAX_CONNECTIONS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CHATFEED_MAX_CONNECTIONS %q", raw)
		}
		cfg.MaxConnections = n
	}

	return cfg, nil
}

// Save writes the config atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
