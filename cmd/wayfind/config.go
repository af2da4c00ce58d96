package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all wayfind server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	PoolSize   int    `json:"pool_size"`

	LLMBackend string `json:"llm_backend"`
	LLMModel   string `json:"llm_model"`
	OllamaHost string `json:"ollama_host"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	CatalogPath    string  `json:"catalog_path"`
	AlertRule      string  `json:"alert_rule"`
	ScoreThreshold float64 `json:"score_threshold"`
	MaxIterations  int     `json:"max_iterations"`
	FanOut         int     `json:"fan_out"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4800",
		DBPath:     filepath.Join(wayfindDir(), "wayfind.db"),
		LogLevel:   "info",
		PoolSize:   10,
		LLMBackend: "gemini",
		AlertRule:  "total_monthly > 50.0",
	}
}

func wayfindDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wayfind"
	}
	return filepath.Join(home, ".wayfind")
}

func settingsPath() string {
	return filepath.Join(wayfindDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	setString(&cfg.ListenAddr, "WAYFIND_LISTEN_ADDR")
	setString(&cfg.DBPath, "WAYFIND_DB_PATH")
	setString(&cfg.LogLevel, "WAYFIND_LOG_LEVEL")
	setInt(&cfg.PoolSize, "WAYFIND_POOL_SIZE")
	setString(&cfg.LLMBackend, "WAYFIND_LLM_BACKEND")
	setString(&cfg.LLMModel, "WAYFIND_LLM_MODEL")
	setString(&cfg.OllamaHost, "WAYFIND_OLLAMA_HOST")
	setString(&cfg.RedisAddr, "WAYFIND_REDIS_ADDR")
	setString(&cfg.RedisPassword, "WAYFIND_REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "WAYFIND_REDIS_DB")
	setString(&cfg.CatalogPath, "WAYFIND_CATALOG_PATH")
	setString(&cfg.AlertRule, "WAYFIND_ALERT_RULE")
	setFloat(&cfg.ScoreThreshold, "WAYFIND_SCORE_THRESHOLD")
	setInt(&cfg.MaxIterations, "WAYFIND_MAX_ITERATIONS")
	setInt(&cfg.FanOut, "WAYFIND_FAN_OUT")

	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
