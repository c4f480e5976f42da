package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:            8080,
		JetstreamURL:    "wss://jetstream.example/subscribe",
		MaxItems:        1000,
		MaxAge:          time.Hour,
		ReplayWindow:    15 * time.Minute,
		ReplayTolerance: 30 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v for a valid config", err)
	}

	tests := []struct {
		name  string
		mutate func(*Config)
	}{
		{"missing jetstream URL", func(c *Config) { c.JetstreamURL = "" }},
		{"port out of range", func(c *Config) { c.Port = 0 }},
		{"no item bound", func(c *Config) { c.MaxItems = 0 }},
		{"no age bound", func(c *Config) { c.MaxAge = 0 }},
		{"negative replay window", func(c *Config) { c.ReplayWindow = -time.Minute }},
		{"no replay tolerance", func(c *Config) { c.ReplayTolerance = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}
