package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"api"`
	Channel struct {
		URL               string `yaml:"url"`
		ReconnectAttempts int    `yaml:"reconnect_attempts"`
		ReconnectDelayMS  int    `yaml:"reconnect_delay_ms"`
	} `yaml:"channel"`
	Storage struct {
		TokenDB string `yaml:"token_db"`
	} `yaml:"storage"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	var config Config
	config.API.BaseURL = "http://localhost:8000"
	config.Channel.URL = "ws://localhost:8000"
	config.Channel.ReconnectAttempts = 5
	config.Channel.ReconnectDelayMS = 1000
	config.Storage.TokenDB = "gamesnight.db"
	config.Log.Level = "info"
	return &config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.API.BaseURL = getEnv("GAMESNIGHT_API_URL", config.API.BaseURL)
	config.Channel.URL = getEnv("GAMESNIGHT_WS_URL", config.Channel.URL)
	config.Channel.ReconnectAttempts = getEnvAsInt("GAMESNIGHT_RECONNECT_ATTEMPTS", config.Channel.ReconnectAttempts)
	config.Channel.ReconnectDelayMS = getEnvAsInt("GAMESNIGHT_RECONNECT_DELAY_MS", config.Channel.ReconnectDelayMS)
	config.Storage.TokenDB = getEnv("GAMESNIGHT_TOKEN_DB", config.Storage.TokenDB)
	config.Log.Level = getEnv("GAMESNIGHT_LOG_LEVEL", config.Log.Level)

	return config, nil
}
