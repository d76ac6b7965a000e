package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/eight-presence/internal/presence"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Email = "sleeper@example.com"
	cfg.Password = "hunter2"
	return cfg
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestValidate_DefaultsWithCredentials(t *testing.T) {
	cfg := validConfig()
	assert.NotPanics(t, cfg.validate)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "UTC", cfg.Location.String())
}

func TestValidate_Panics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing email", func(c *Config) { c.Email = "" }},
		{"missing password", func(c *Config) { c.Password = "" }},
		{"zero poll interval", func(c *Config) { c.PollIntervalSeconds = 0 }},
		{"zero outage threshold", func(c *Config) { c.OutageThreshold = 0 }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"port out of range", func(c *Config) { c.APIPort = 70000 }},
		{"vacant above rising", func(c *Config) { c.Thresholds.VacantLevel = 30 }},
		{"rising above occupied", func(c *Config) { c.Thresholds.RisingLevel = 60 }},
		{"falling ceiling above occupied", func(c *Config) { c.Thresholds.FallingCeiling = 51 }},
		{"pod ceiling at vacant", func(c *Config) { c.Thresholds.PodFallingCeiling = 15 }},
		{"zero edge delta", func(c *Config) { c.Thresholds.EdgeDelta = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Panics(t, cfg.validate)
		})
	}
}

func TestReadFile_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"poll_interval_seconds": 30,
		"partner": true,
		"db_path": "/var/lib/eight/eight.db",
		"thresholds": {"occupied_level": 55}
	}`)

	cfg := Defaults()
	require.NoError(t, cfg.readFile(path))

	assert.Equal(t, 30, cfg.PollIntervalSeconds)
	assert.True(t, cfg.Partner)
	assert.Equal(t, "/var/lib/eight/eight.db", cfg.DBPath)
	assert.Equal(t, 55, cfg.Thresholds.OccupiedLevel)
	assert.Equal(t, presence.DefaultThresholds.RisingLevel, cfg.Thresholds.RisingLevel, "unset thresholds keep their defaults")
	assert.Equal(t, 8080, cfg.APIPort)
}

func TestReadFile_YAML(t *testing.T) {
	path := writeFile(t, "config.yml", `
timezone: Europe/London
mqtt_broker: tcp://broker.local:1883
dd_tags:
  - env:home
  - host:bedroom
thresholds:
  vacant_level: 12
  edge_delta: 3
`)

	cfg := Defaults()
	require.NoError(t, cfg.readFile(path))

	assert.Equal(t, "Europe/London", cfg.Timezone)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTTBroker)
	assert.Equal(t, []string{"env:home", "host:bedroom"}, cfg.DDTags)
	assert.Equal(t, 12, cfg.Thresholds.VacantLevel)
	assert.Equal(t, 3, cfg.Thresholds.EdgeDelta)
	assert.Equal(t, presence.DefaultThresholds.OccupiedLevel, cfg.Thresholds.OccupiedLevel)
}

func TestReadFile_Errors(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.readFile(filepath.Join(t.TempDir(), "missing.json")))

	bad := writeFile(t, "config.json", `{"poll_interval_seconds": "soon"}`)
	assert.Error(t, cfg.readFile(bad))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("EIGHT_EMAIL", "env@example.com")
	t.Setenv("EIGHT_PASSWORD", "from-env")
	t.Setenv("NTFY_TOPIC", "")

	cfg := Defaults()
	cfg.NtfyTopic = "from-file"
	cfg.applyEnv()

	assert.Equal(t, "env@example.com", cfg.Email)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, "from-file", cfg.NtfyTopic, "empty variables do not override")
}

func TestDotenvFeedsApplyEnv(t *testing.T) {
	t.Setenv("EIGHT_EMAIL", "")
	t.Setenv("EIGHT_PASSWORD", "")
	path := writeFile(t, ".env", "EIGHT_EMAIL=dotenv@example.com\nEIGHT_PASSWORD=s3cret\n")

	// godotenv never overrides variables already present in the environment.
	os.Unsetenv("EIGHT_EMAIL")
	os.Unsetenv("EIGHT_PASSWORD")
	require.NoError(t, godotenv.Load(path))

	cfg := Defaults()
	cfg.applyEnv()
	assert.Equal(t, "dotenv@example.com", cfg.Email)
	assert.Equal(t, "s3cret", cfg.Password)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLogLevel("debug").String())
	assert.Equal(t, "warn", parseLogLevel("warn").String())
	assert.Equal(t, "error", parseLogLevel("error").String())
	assert.Equal(t, "info", parseLogLevel("verbose").String())
}
