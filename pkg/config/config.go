package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level process configuration, loaded from TOML.
// Every field is optional; zero values fall back to DefaultConfig()'s
// choices.
type Config struct {
	HTTP         HTTPConfig        `toml:"http"`
	ICEServers   []ICEServer       `toml:"ice_servers"`
	Auth         AuthConfig        `toml:"auth"`
	Log          LogConfig         `toml:"log"`
	StreamInfo   StreamInfoConfig  `toml:"stream_info"`
	RateLimiting RateLimitingConfig `toml:"rate_limiting"`
	Redis        RedisConfig       `toml:"redis"`
	Tracing      TracingConfig     `toml:"tracing"`
}

// TracingConfig controls the OpenTelemetry/Jaeger exporter wired in
// pkg/tracing. Disabled by default: a forwarder running without a
// collector endpoint configured has nowhere to send spans.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	ServiceName string  `toml:"service_name"`
	JaegerURL   string  `toml:"jaeger_url"`
	Environment string  `toml:"environment"`
	SampleRate  float64 `toml:"sample_rate"`
}

// RedisConfig backs the multi-instance forwarder directory: when
// disabled, the ingest process falls back to an in-process map and
// behaves as a single-instance deployment.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// RateLimitingConfig guards the HTTP ingest surface and the WS relay
// against a single noisy client monopolizing a process.
type RateLimitingConfig struct {
	Enabled bool                  `toml:"enabled"`
	HTTP    HTTPRateLimitConfig   `toml:"http"`
	WS      WSRateLimitConfig     `toml:"ws"`
}

type HTTPRateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxConcurrent     int     `toml:"max_concurrent"`
}

// WSRateLimitConfig bounds inbound relay frames per connected session.
type WSRateLimitConfig struct {
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

type HTTPConfig struct {
	Listen string `toml:"listen"`
	CORS   bool   `toml:"cors"`
}

// ICEServer mirrors one entry of the `ice_servers` array. TURN/TURNS
// urls require a non-empty Username/Credential or Validate rejects
// the whole configuration.
type ICEServer struct {
	URLs           []string `toml:"urls"`
	Username       string   `toml:"username"`
	Credential     string   `toml:"credential"`
	CredentialType string   `toml:"credential_type"`
}

type AuthAccount struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type AuthConfig struct {
	Accounts []AuthAccount `toml:"accounts"`
	Tokens   []string      `toml:"tokens"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// StreamInfoConfig carries the forwarder-wide publish/subscribe
// limits. Both PubMax and SubMax must be > 0: PubMax bounds the number
// of concurrently active publish sessions process-wide, SubMax bounds
// subscribers per stream, and PubMax can never exceed SubMax.
type StreamInfoConfig struct {
	PubMax               int  `toml:"pub_max"`
	SubMax               int  `toml:"sub_max"`
	ReforwardCloseSub    bool `toml:"reforward_close_sub"`
	PublishLeaveTimeoutMs int64 `toml:"publish_leave_timeout"`
}

// searchPaths returns the config file search order: the explicit path
// argument first (if non-empty), then the two fixed fallback
// locations.
func searchPaths(explicit string) []string {
	paths := []string{}
	if explicit != "" {
		paths = append(paths, explicit)
	}
	paths = append(paths,
		"./rust-server-for-multiplayer.toml",
		"/etc/rust-server-for-multiplayer/rust-server-for-multiplayer.toml",
	)
	return paths
}

// Load searches configPath (may be empty) then the fixed fallback
// locations, parses the first file found as TOML, applies env
// overrides and defaults, and validates. An unreadable/invalid file at
// an explicitly-given path is fatal; a missing file at a fallback
// location is skipped. No file found at all yields DefaultConfig().
func Load(configPath string) (*Config, error) {
	var data []byte
	var found bool
	for i, p := range searchPaths(configPath) {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			found = true
			break
		}
		if i == 0 && configPath != "" {
			return nil, fmt.Errorf("read config file %s: %w", p, err)
		}
	}

	cfg := DefaultConfig()
	if found {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config toml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.HTTP.Listen = defaultListen()
	cfg.HTTP.CORS = false
	cfg.Log.Level = "info"
	cfg.StreamInfo.PubMax = math.MaxInt32
	cfg.StreamInfo.SubMax = math.MaxInt32
	cfg.StreamInfo.PublishLeaveTimeoutMs = 15000
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.HTTP.MaxConcurrent = 256
	cfg.RateLimiting.WS.MessagesPerSecond = 50
	cfg.RateLimiting.WS.Burst = 100
	cfg.Redis.Enabled = false
	cfg.Redis.Address = "127.0.0.1:6379"
	cfg.Redis.PoolSize = 10
	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "rillnet"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0
	return cfg
}

func defaultListen() string {
	if port := os.Getenv("PORT"); port != "" {
		return "0.0.0.0:" + port
	}
	return "0.0.0.0:7777"
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate checks that pub_max and sub_max are both > 0, pub_max does
// not exceed sub_max, and TURN/TURNS urls carry credentials.
func (c *Config) Validate() error {
	if c.StreamInfo.PubMax == 0 {
		return fmt.Errorf("stream_info.pub_max cannot be equal to 0")
	}
	if c.StreamInfo.SubMax == 0 {
		return fmt.Errorf("stream_info.sub_max cannot be equal to 0")
	}
	if c.StreamInfo.PubMax < 0 {
		return fmt.Errorf("stream_info.pub_max must be >= 0")
	}
	if c.StreamInfo.SubMax < 0 {
		return fmt.Errorf("stream_info.sub_max must be >= 0")
	}
	if c.StreamInfo.PubMax > c.StreamInfo.SubMax {
		return fmt.Errorf("stream_info.pub_max cannot be greater than stream_info.sub_max")
	}
	if c.StreamInfo.PublishLeaveTimeoutMs <= 0 {
		return fmt.Errorf("stream_info.publish_leave_timeout must be > 0")
	}

	for i, ice := range c.ICEServers {
		for _, u := range ice.URLs {
			if isTURN(u) && (ice.Username == "" || ice.Credential == "") {
				return fmt.Errorf("ice_servers[%d]: turn/turns url %q requires username and credential", i, u)
			}
		}
	}

	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must not be empty")
	}

	return nil
}

func isTURN(url string) bool {
	return strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:")
}
