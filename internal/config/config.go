// Package config loads the gateway's runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig is the gateway's configuration surface.
type GatewayConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `json:"addr" yaml:"addr"`

	// ProgressQueueCapacity bounds the per-observer progress queue.
	// Defaults to 64.
	ProgressQueueCapacity int `json:"progress_queue_capacity" yaml:"progress_queue_capacity"`

	// PingIntervalMs is the cadence at which each open stream writes a
	// `: ping` keep-alive comment, so an idle proxy never times out a slow
	// build. Defaults to 15000 (15s), a typical keep-alive cadence.
	// Disconnects themselves are detected immediately via the request
	// context, not by this poll.
	PingIntervalMs int `json:"ping_interval_ms" yaml:"ping_interval_ms"`

	// AllowedGroups is the exhaustive set of legal dotted-key prefixes.
	// Defaults to {magnafpm, furling, user}.
	AllowedGroups []string `json:"allowed_groups" yaml:"allowed_groups"`
}

// PingInterval returns PingIntervalMs as a Duration.
func (c GatewayConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

// Default returns the documented default configuration.
func Default() GatewayConfig {
	return GatewayConfig{
		Addr:                  ":8080",
		ProgressQueueCapacity: 64,
		PingIntervalMs:        15000,
		AllowedGroups:         []string{"magnafpm", "furling", "user"},
	}
}

// LoadFile reads a YAML config file at path and overlays it onto Default.
// An empty path returns Default unchanged, mirroring the optional-config-
// file shape the engine's run config loader uses.
func LoadFile(path string) (GatewayConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return GatewayConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c GatewayConfig) validate() error {
	if c.ProgressQueueCapacity <= 0 {
		return fmt.Errorf("progress_queue_capacity must be positive, got %d", c.ProgressQueueCapacity)
	}
	if c.PingIntervalMs <= 0 {
		return fmt.Errorf("ping_interval_ms must be positive, got %d", c.PingIntervalMs)
	}
	if len(c.AllowedGroups) == 0 {
		return fmt.Errorf("allowed_groups must not be empty")
	}
	return nil
}
