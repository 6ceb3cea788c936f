package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	HTTP          struct {
		Listen string `json:"listen"`
	} `json:"http"`
	Cache struct {
		DBPath          string `json:"db_path"`
		RetentionHours  int    `json:"retention_hours"`
		JanitorSchedule string `json:"janitor_schedule"`
	} `json:"cache"`
	Upstream struct {
		CoinGeckoBaseURL string `json:"coingecko_base_url"`
		NewsAPIKey       string `json:"news_api_key"`
		EtherscanAPIKey  string `json:"etherscan_api_key"`
		TimeoutSeconds   int    `json:"timeout_seconds"`
	} `json:"upstream"`
	Telegram struct {
		Token    string `json:"token"`
		AgentURL string `json:"agent_url"`
	} `json:"telegram"`
}

func Load(path string) (*Config, error) {
	dataDir := filepath.Join(os.Getenv("HOME"), ".coinsight")

	cfg := &Config{
		DataDir:       dataDir,
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.HTTP.Listen = ":8000"
	cfg.Cache.DBPath = filepath.Join(dataDir, "cache.db")
	cfg.Cache.RetentionHours = 72
	cfg.Cache.JanitorSchedule = "@hourly"
	cfg.Upstream.CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	cfg.Upstream.TimeoutSeconds = 15
	cfg.Telegram.AgentURL = "http://localhost:8000"

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
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if key := os.Getenv("NEWS_API_KEY"); key != "" {
		cfg.Upstream.NewsAPIKey = key
	}
	if key := os.Getenv("ETHERSCAN_API_KEY"); key != "" {
		cfg.Upstream.EtherscanAPIKey = key
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if agentURL := os.Getenv("AGENT_API_URL"); agentURL != "" {
		cfg.Telegram.AgentURL = agentURL
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	return Save(path, cfg)
}

// Save writes cfg to path atomically, creating the parent directory if
// needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

// ToMap converts cfg into a nested map keyed by the JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeAtomic(path string, data []byte) error {
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

// ListValues flattens the config into dot-separated keys. With mask set,
// secret values are shown as "***" plus their last four characters.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value at the dot-separated key in the config file at
// path. The file is created with defaults if it does not exist.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates the dot-separated key in the config file at path and
// writes the file back atomically. Values parse as bool, then number, then
// string. The file must already exist.
func SetValue(path, key, raw string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	flat := Flatten(m)
	flat[key] = parseValue(raw)

	out, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out = append(out, '\n')
	return writeAtomic(path, out)
}

func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}
