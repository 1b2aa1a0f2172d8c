package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Transport.Timeout() != 30*time.Second {
			t.Errorf("expected 30s timeout, got %v", config.Transport.Timeout())
		}

		if config.Transport.MaxAttempts != 3 {
			t.Errorf("expected 3 attempts, got %d", config.Transport.MaxAttempts)
		}

		if config.Transport.Backoff() != time.Second {
			t.Errorf("expected 1s backoff step, got %v", config.Transport.Backoff())
		}

		if config.Playback.SettleDelayMS != 1000 {
			t.Errorf("expected settle delay 1000ms, got %d", config.Playback.SettleDelayMS)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Storage.Path != DefaultConfig().Storage.Path {
			t.Errorf("created config storage path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[backend]
url = "https://backend.test"

[transport]
timeout_ms = 5000

[storage]
driver = "file"
path = "/custom/session.json"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Backend.URL != "https://backend.test" {
			t.Errorf("expected backend url https://backend.test, got %s", config.Backend.URL)
		}

		if config.Transport.Timeout() != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", config.Transport.Timeout())
		}

		if config.Transport.MaxAttempts != 3 {
			t.Errorf("unset keys should keep defaults, got max_attempts %d", config.Transport.MaxAttempts)
		}

		if config.Storage.Driver != "file" {
			t.Errorf("expected storage driver file, got %s", config.Storage.Driver)
		}
	})

	t.Run("LoadConfig Missing", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Music.ClientID = "saved-client"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}

		if loaded.Music.ClientID != "saved-client" {
			t.Errorf("expected client id saved-client, got %s", loaded.Music.ClientID)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("CADENCE_BACKEND_URL", "https://env.test")
		t.Setenv("CADENCE_TRANSPORT_MAX_ATTEMPTS", "5")
		t.Setenv("CADENCE_SERVER_PORT", "not-a-number")

		config := DefaultConfig()
		config.ApplyEnv()

		if config.Backend.URL != "https://env.test" {
			t.Errorf("expected env backend url, got %s", config.Backend.URL)
		}
		if config.Transport.MaxAttempts != 5 {
			t.Errorf("expected 5 attempts from env, got %d", config.Transport.MaxAttempts)
		}
		if config.Server.Port != 3000 {
			t.Errorf("invalid integer should be ignored, got port %d", config.Server.Port)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*Config)
		}{
			{"missing backend url", func(c *Config) { c.Backend.URL = "" }},
			{"missing music url", func(c *Config) { c.Music.APIURL = "" }},
			{"zero timeout", func(c *Config) { c.Transport.TimeoutMS = 0 }},
			{"zero attempts", func(c *Config) { c.Transport.MaxAttempts = 0 }},
			{"negative backoff", func(c *Config) { c.Transport.BackoffMS = -1 }},
			{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }},
			{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}

		config := DefaultConfig()
		config.Storage.Driver = "memory"
		config.Storage.Path = ""
		if err := config.Validate(); err != nil {
			t.Errorf("memory driver needs no path: %v", err)
		}
	})
}
