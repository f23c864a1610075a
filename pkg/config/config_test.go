package config

import "testing"

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidate_PubMaxExceedsSubMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StreamInfo.PubMax = 10
	cfg.StreamInfo.SubMax = 5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when pub_max > sub_max")
	}
}

func TestValidate_NegativeLimitsRejected(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative pub_max", func(c *Config) { c.StreamInfo.PubMax = -1 }},
		{"negative sub_max", func(c *Config) { c.StreamInfo.SubMax = -1 }},
		{"zero pub_max", func(c *Config) { c.StreamInfo.PubMax = 0 }},
		{"zero sub_max", func(c *Config) { c.StreamInfo.SubMax = 0 }},
		{"zero leave timeout", func(c *Config) { c.StreamInfo.PublishLeaveTimeoutMs = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %q", tc.name)
			}
		})
	}
}

func TestValidate_TURNWithoutCredentialsRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ICEServers = []ICEServer{{URLs: []string{"turn:turn.example.com:3478"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for turn url without credentials")
	}
}

func TestValidate_TURNWithCredentialsAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ICEServers = []ICEServer{{
		URLs:       []string{"turns:turn.example.com:5349"},
		Username:   "u",
		Credential: "p",
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected turn url with credentials to validate, got: %v", err)
	}
}

func TestValidate_STUNWithoutCredentialsAccepted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ICEServers = []ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected stun url without credentials to validate, got: %v", err)
	}
}

func TestDefaultConfig_ListenFallsBackToPort(t *testing.T) {
	t.Setenv("PORT", "9999")
	cfg := DefaultConfig()
	if cfg.HTTP.Listen != "0.0.0.0:9999" {
		t.Fatalf("expected listen to honor $PORT, got %q", cfg.HTTP.Listen)
	}
}
