package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/eight-presence/internal/presence"
)

const defaultConfigFile = "config.yaml"

type Config struct {
	ConfigFile string              `json:"-" yaml:"-"`
	EnvFile    string              `json:"-" yaml:"-"`
	LogLevel   zerolog.Level       `json:"-" yaml:"-"`
	Location   *time.Location      `json:"-" yaml:"-"`
	Email      string              `json:"-" yaml:"-"`
	Password   string              `json:"-" yaml:"-"`
	Thresholds presence.Thresholds `json:"thresholds" yaml:"thresholds"`

	LogFile  string `json:"log_file" yaml:"log_file"`
	Timezone string `json:"timezone" yaml:"timezone"`

	// vendor API
	APIBaseURL                string `json:"api_base_url" yaml:"api_base_url"`
	Partner                   bool   `json:"partner" yaml:"partner"`
	PollIntervalSeconds       int    `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	RequestTimeoutSeconds     int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	TokenRefreshMarginSeconds int    `json:"token_refresh_margin_seconds" yaml:"token_refresh_margin_seconds"`

	// persistence
	DBPath            string `json:"db_path" yaml:"db_path"`
	SnapshotRetention int    `json:"snapshot_retention" yaml:"snapshot_retention"`
	StateFile         string `json:"state_file" yaml:"state_file"`

	// outage alerts
	OutageThreshold int    `json:"outage_threshold" yaml:"outage_threshold"`
	NtfyURL         string `json:"ntfy_url" yaml:"ntfy_url"`
	NtfyTopic       string `json:"ntfy_topic" yaml:"ntfy_topic"`

	// local API
	APIPort int `json:"api_port" yaml:"api_port"`

	// MQTT publishing, disabled without a broker
	MQTTBroker      string `json:"mqtt_broker" yaml:"mqtt_broker"`
	MQTTUsername    string `json:"mqtt_username" yaml:"mqtt_username"`
	MQTTPassword    string `json:"-" yaml:"-"`
	MQTTTopicPrefix string `json:"mqtt_topic_prefix" yaml:"mqtt_topic_prefix"`

	// datadog
	EnableDatadog bool     `json:"enable_datadog" yaml:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr" yaml:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace" yaml:"dd_namespace"`
	DDTags        []string `json:"dd_tags" yaml:"dd_tags"`
}

// Defaults returns the configuration used for anything the file and
// environment leave unset.
func Defaults() Config {
	return Config{
		Thresholds:                presence.DefaultThresholds,
		Timezone:                  "UTC",
		APIBaseURL:                "https://client-api.8slp.net/v1",
		PollIntervalSeconds:       60,
		RequestTimeoutSeconds:     10,
		TokenRefreshMarginSeconds: 300,
		DBPath:                    "data/eight.db",
		SnapshotRetention:         10000,
		StateFile:                 "data/presence.json",
		OutageThreshold:           5,
		NtfyURL:                   "https://ntfy.sh",
		APIPort:                   8080,
		MQTTTopicPrefix:           "bed/eight",
		DDAgentAddr:               "127.0.0.1:8125",
		DDNamespace:               "eight_presence.",
	}
}

func Load() Config {
	cfg := Defaults()
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", defaultConfigFile, "Path to config file (.json, .yaml or .yml)")
	flag.StringVar(&cfg.EnvFile, "env-file", ".env", "Path to a dotenv file with credentials")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config-file" {
			explicit = true
		}
	})

	// A missing .env is normal when credentials come from the real environment.
	_ = godotenv.Load(cfg.EnvFile)

	if err := cfg.readFile(cfg.ConfigFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			panic("Failed to load config file: " + err.Error())
		}
	}
	cfg.applyEnv()

	cfg.validate()
	return cfg
}

// readFile overlays the file at path onto cfg. The format follows the
// extension; anything other than .yaml/.yml is read as JSON.
func (cfg *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(cfg)
	default:
		err = json.NewDecoder(file).Decode(cfg)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyEnv() {
	cfg.Email = getEnv("EIGHT_EMAIL", cfg.Email)
	cfg.Password = getEnv("EIGHT_PASSWORD", cfg.Password)
	cfg.NtfyTopic = getEnv("NTFY_TOPIC", cfg.NtfyTopic)
	cfg.MQTTUsername = getEnv("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getEnv("MQTT_PASSWORD", cfg.MQTTPassword)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalSeconds) * time.Second
}

func (cfg Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

func (cfg Config) TokenRefreshMargin() time.Duration {
	return time.Duration(cfg.TokenRefreshMarginSeconds) * time.Second
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.Email == "" {
		problems = append(problems, "EIGHT_EMAIL is not set")
	}
	if cfg.Password == "" {
		problems = append(problems, "EIGHT_PASSWORD is not set")
	}
	if cfg.PollIntervalSeconds <= 0 {
		problems = append(problems, "poll_interval_seconds must be positive")
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		problems = append(problems, "request_timeout_seconds must be positive")
	}
	if cfg.OutageThreshold <= 0 {
		problems = append(problems, "outage_threshold must be positive")
	}
	if cfg.SnapshotRetention < 0 {
		problems = append(problems, "snapshot_retention cannot be negative")
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("api_port %d out of range", cfg.APIPort))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", cfg.Timezone))
	}
	cfg.Location = loc

	problems = append(problems, thresholdProblems(cfg.Thresholds)...)

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

func thresholdProblems(th presence.Thresholds) []string {
	var problems []string
	if th.VacantLevel >= th.RisingLevel {
		problems = append(problems, fmt.Sprintf("thresholds.vacant_level (%d) must be below rising_level (%d)", th.VacantLevel, th.RisingLevel))
	}
	if th.RisingLevel > th.OccupiedLevel {
		problems = append(problems, fmt.Sprintf("thresholds.rising_level (%d) must not exceed occupied_level (%d)", th.RisingLevel, th.OccupiedLevel))
	}
	ceilings := []struct {
		name  string
		value int
	}{
		{"falling_ceiling", th.FallingCeiling},
		{"pod_falling_ceiling", th.PodFallingCeiling},
	}
	for _, c := range ceilings {
		if c.value <= th.VacantLevel || c.value > th.OccupiedLevel {
			problems = append(problems, fmt.Sprintf("thresholds.%s (%d) must be within (%d, %d]", c.name, c.value, th.VacantLevel, th.OccupiedLevel))
		}
	}
	if th.EdgeDelta <= 0 {
		problems = append(problems, "thresholds.edge_delta must be positive")
	}
	if th.ExcessOverTarget < 0 {
		problems = append(problems, "thresholds.excess_over_target cannot be negative")
	}
	return problems
}
