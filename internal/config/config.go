package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvSupabaseURL     = "GYMCHAT_SUPABASE_URL"
	EnvSupabaseAnonKey = "GYMCHAT_SUPABASE_ANON_KEY"
	EnvAccessToken     = "GYMCHAT_ACCESS_TOKEN"
)

// Config represents the global ~/.gymchat/config.toml.
type Config struct {
	DefaultProfile string         `toml:"default_profile"`
	Supabase       SupabaseConfig `toml:"supabase"`
	Network        NetworkConfig  `toml:"network"`
	Queue          QueueConfig    `toml:"queue"`
	Realtime       RealtimeConfig `toml:"realtime"`
	Breaker        BreakerConfig  `toml:"breaker"`
}

type SupabaseConfig struct {
	URL             string   `toml:"url"`
	AnonKey         string   `toml:"anon_key"`
	AccessToken     string   `toml:"access_token"`
	AccessTokenFile string   `toml:"access_token_file"`
	Timeout         Duration `toml:"timeout"`
}

// NetworkConfig configures the connectivity probe. An empty ProbeURL selects
// the event-driven fallback, switched with gymchatctl net.
type NetworkConfig struct {
	ProbeURL      string   `toml:"probe_url"`
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
}

type QueueConfig struct {
	DrainRate     float64 `toml:"drain_rate"`
	RequeueFailed bool    `toml:"requeue_failed"`
}

type RealtimeConfig struct {
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
}

type BreakerConfig struct {
	MaxFailures uint32   `toml:"max_failures"`
	Timeout     Duration `toml:"timeout"`
}

// Duration is a time.Duration written as a string ("15s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDaemon reads the config for the daemon: a missing file yields an empty
// config, then envPath (a .env file, optional) and the process environment
// override it, and defaults fill the rest.
func LoadDaemon(path, envPath string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.ApplyEnv(envPath); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyEnv overrides Supabase settings from envPath and the process
// environment. The process environment wins over the file.
func (c *Config) ApplyEnv(envPath string) error {
	vars := map[string]string{}
	if envPath != "" {
		m, err := godotenv.Read(envPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read env file: %w", err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	for _, k := range []string{EnvSupabaseURL, EnvSupabaseAnonKey, EnvAccessToken} {
		if v, ok := os.LookupEnv(k); ok {
			vars[k] = v
		}
	}

	if v := vars[EnvSupabaseURL]; v != "" {
		c.Supabase.URL = v
	}
	if v := vars[EnvSupabaseAnonKey]; v != "" {
		c.Supabase.AnonKey = v
	}
	if v := vars[EnvAccessToken]; v != "" {
		c.Supabase.AccessToken = v
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Supabase.Timeout.Duration == 0 {
		c.Supabase.Timeout.Duration = 15 * time.Second
	}
	if c.Network.ProbeInterval.Duration == 0 {
		c.Network.ProbeInterval.Duration = 5 * time.Second
	}
	if c.Network.ProbeTimeout.Duration == 0 {
		c.Network.ProbeTimeout.Duration = 3 * time.Second
	}
	if c.Realtime.HeartbeatInterval.Duration == 0 {
		c.Realtime.HeartbeatInterval.Duration = 25 * time.Second
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.Timeout.Duration == 0 {
		c.Breaker.Timeout.Duration = 30 * time.Second
	}
}

// Validate checks the settings the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return errors.New("supabase.url is required")
	}
	if c.Supabase.AnonKey == "" {
		return errors.New("supabase.anon_key is required")
	}
	if c.Queue.DrainRate < 0 {
		return errors.New("queue.drain_rate must not be negative")
	}
	return nil
}

// AccessToken returns the user access token, reading access_token_file when
// no inline token is set.
func (c *Config) AccessToken() (string, error) {
	if c.Supabase.AccessToken != "" {
		return c.Supabase.AccessToken, nil
	}
	if c.Supabase.AccessTokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Supabase.AccessTokenFile)
	if err != nil {
		return "", fmt.Errorf("read access token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
