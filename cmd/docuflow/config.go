package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docuflow/docuflow/internal/notify"
)

// Config holds all docuflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr    string            `json:"listen_addr"`
	BaseURL       string            `json:"base_url"`
	DBPath        string            `json:"db_path"`
	LogLevel      string            `json:"log_level"`
	SweepSchedule string            `json:"sweep_schedule"`
	MaxSteps      int               `json:"max_steps"`
	SMTP          notify.SMTPConfig `json:"smtp"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":4180",
		DBPath:        filepath.Join(docuflowDir(), "docuflow.db"),
		LogLevel:      "info",
		SweepSchedule: "* * * * *",
	}
}

func docuflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docuflow"
	}
	return filepath.Join(home, ".docuflow")
}

func settingsPath() string {
	return filepath.Join(docuflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("DOCUFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DOCUFLOW_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DOCUFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DOCUFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOCUFLOW_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("DOCUFLOW_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := os.Getenv("DOCUFLOW_SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("DOCUFLOW_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = n
		}
	}
	if v := os.Getenv("DOCUFLOW_SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("DOCUFLOW_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("DOCUFLOW_SMTP_FROM"); v != "" {
		cfg.SMTP.From = v
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg
}
