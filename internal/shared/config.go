package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio/v2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Transport TransportConfig `toml:"transport"`
	Backend   BackendConfig   `toml:"backend"`
	Music     MusicConfig     `toml:"music"`
	Playback  PlaybackConfig  `toml:"playback"`
	Storage   StorageConfig   `toml:"storage"`
	Server    ServerConfig    `toml:"server"`
}

// LogConfig controls the [log.Logger] level and the TUI log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// TransportConfig contains timeout and retry settings for outbound HTTP calls.
type TransportConfig struct {
	TimeoutMS   int     `toml:"timeout_ms"`
	MaxAttempts int     `toml:"max_attempts"`
	BackoffMS   int     `toml:"backoff_ms"`
	RateLimit   float64 `toml:"rate_limit"`
	RateBurst   int     `toml:"rate_burst"`
}

// Timeout returns the per-attempt timeout.
func (t TransportConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// Backoff returns the backoff step.
func (t TransportConfig) Backoff() time.Duration {
	return time.Duration(t.BackoffMS) * time.Millisecond
}

// BackendConfig contains the auth/data backend endpoint and its public key.
type BackendConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// MusicConfig contains Music Service (Spotify Web API) endpoints and the public OAuth client settings.
//
// The client secret never lives on the device; code exchange and refresh go through the backend.
type MusicConfig struct {
	APIURL      string `toml:"api_url"`
	AuthURL     string `toml:"auth_url"`
	ClientID    string `toml:"client_id"`
	RedirectURI string `toml:"redirect_uri"`
}

// PlaybackConfig tunes device activation.
type PlaybackConfig struct {
	SettleDelayMS     int  `toml:"settle_delay_ms"`
	ConfirmActivation bool `toml:"confirm_activation"`
	MaxSettleWaitMS   int  `toml:"max_settle_wait_ms"`
	StrictOrdering    bool `toml:"strict_ordering"`
}

// StorageConfig selects the persistence backend for session tokens.
type StorageConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the local OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig atomically writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides file values with CADENCE_* environment variables.
//
// Call after [godotenv.Load] so a local .env participates.
func (c *Config) ApplyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.Log.Level, "CADENCE_LOG_LEVEL")
	setString(&c.Backend.URL, "CADENCE_BACKEND_URL")
	setString(&c.Backend.APIKey, "CADENCE_BACKEND_API_KEY")
	setString(&c.Music.APIURL, "CADENCE_MUSIC_API_URL")
	setString(&c.Music.ClientID, "CADENCE_MUSIC_CLIENT_ID")
	setString(&c.Music.RedirectURI, "CADENCE_MUSIC_REDIRECT_URI")
	setString(&c.Storage.Driver, "CADENCE_STORAGE_DRIVER")
	setString(&c.Storage.Path, "CADENCE_STORAGE_PATH")
	setInt(&c.Transport.TimeoutMS, "CADENCE_TRANSPORT_TIMEOUT_MS")
	setInt(&c.Transport.MaxAttempts, "CADENCE_TRANSPORT_MAX_ATTEMPTS")
	setInt(&c.Server.Port, "CADENCE_SERVER_PORT")
}

// Validate reports the first configuration problem that would prevent the client from starting.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: backend.url is required", ErrInvalidConfig)
	}
	if c.Music.APIURL == "" {
		return fmt.Errorf("%w: music.api_url is required", ErrInvalidConfig)
	}
	if c.Transport.TimeoutMS <= 0 {
		return fmt.Errorf("%w: transport.timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.Transport.MaxAttempts <= 0 {
		return fmt.Errorf("%w: transport.max_attempts must be positive", ErrInvalidConfig)
	}
	if c.Transport.BackoffMS < 0 {
		return fmt.Errorf("%w: transport.backoff_ms must not be negative", ErrInvalidConfig)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for driver %q", ErrInvalidConfig, c.Storage.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	return nil
}
