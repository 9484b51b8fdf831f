// Package config provides configuration loading and management for Crewmesh.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crewmesh/crewmesh/geofence"
)

// Config represents the complete Crewmesh configuration
type Config struct {
	NATS         NATSConfig         `yaml:"nats"`
	Geofence     GeofenceConfig     `yaml:"geofence"`
	Presence     PresenceConfig     `yaml:"presence"`
	Tracking     TrackingConfig     `yaml:"tracking"`
	Engine       EngineConfig       `yaml:"engine"`
	Verification VerificationConfig `yaml:"verification"`
	Roster       RosterConfig       `yaml:"roster"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// NATSConfig configures the NATS connection backing the mesh store
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// GeofenceConfig describes the rectangular event zone
type GeofenceConfig struct {
	// Name labels the zone in logs and snapshots
	Name string `yaml:"name"`
	// CenterLat / CenterLng locate the zone center
	CenterLat float64 `yaml:"center_lat"`
	CenterLng float64 `yaml:"center_lng"`
	// HalfLat / HalfLng are half-widths in degrees
	HalfLat float64 `yaml:"half_lat"`
	HalfLng float64 `yaml:"half_lng"`
}

// PresenceConfig controls the liveness window
type PresenceConfig struct {
	// LivenessWindow is how recently a signal must have arrived for a
	// person to count as online
	LivenessWindow time.Duration `yaml:"liveness_window"`
}

// TrackingConfig controls the local device's signal cadence
type TrackingConfig struct {
	// HeartbeatInterval is the local heartbeat cadence
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// LocationInterval is the local position sampling cadence
	LocationInterval time.Duration `yaml:"location_interval"`
	// Simulate enables simulated telemetry for non-local roster members
	Simulate bool `yaml:"simulate"`
	// SimulateInterval is the simulated telemetry cadence
	SimulateInterval time.Duration `yaml:"simulate_interval"`
}

// EngineConfig tunes the state engine
type EngineConfig struct {
	// FlushInterval is the batched snapshot publication cadence
	FlushInterval time.Duration `yaml:"flush_interval"`
	// HistoryCap bounds per-person location history
	HistoryCap int `yaml:"history_cap"`
}

// VerificationConfig configures the photo verification service
type VerificationConfig struct {
	// Endpoint is the verification service URL (empty = disabled)
	Endpoint string `yaml:"endpoint"`
	// APIKeyEnv names the environment variable holding the credential
	APIKeyEnv string `yaml:"api_key_env"`
	// Throttle is the minimum gap between dispatches
	Throttle time.Duration `yaml:"throttle"`
	// Timeout is the per-request timeout
	Timeout time.Duration `yaml:"timeout"`
}

// RosterConfig locates the roster seed file
type RosterConfig struct {
	// Path is the roster YAML file (empty = no seed)
	Path string `yaml:"path"`
	// Watch enables live reload when the roster file changes
	Watch bool `yaml:"watch"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Geofence: GeofenceConfig{
			Name:      "Event Zone A",
			CenterLat: 18.5194,
			CenterLng: 73.8150,
			HalfLat:   0.005,
			HalfLng:   0.005,
		},
		Presence: PresenceConfig{
			LivenessWindow: 15 * time.Second,
		},
		Tracking: TrackingConfig{
			HeartbeatInterval: 5 * time.Second,
			LocationInterval:  10 * time.Second,
			Simulate:          false,
			SimulateInterval:  5 * time.Second,
		},
		Engine: EngineConfig{
			FlushInterval: 750 * time.Millisecond,
			HistoryCap:    15,
		},
		Verification: VerificationConfig{
			Endpoint:  "",
			APIKeyEnv: "CREWMESH_VERIFY_API_KEY",
			Throttle:  4500 * time.Millisecond,
			Timeout:   30 * time.Second,
		},
		Roster: RosterConfig{
			Path:  "",
			Watch: false,
		},
		Metrics: MetricsConfig{
			Addr: ":9402",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Geofence.HalfLat <= 0 || c.Geofence.HalfLng <= 0 {
		return fmt.Errorf("geofence half-widths must be positive")
	}
	if c.Presence.LivenessWindow <= 0 {
		return fmt.Errorf("presence.liveness_window must be positive")
	}
	if c.Tracking.HeartbeatInterval <= 0 {
		return fmt.Errorf("tracking.heartbeat_interval must be positive")
	}
	// A window shorter than two heartbeat periods flaps people offline on
	// every minor delivery delay.
	if c.Presence.LivenessWindow <= 2*c.Tracking.HeartbeatInterval {
		return fmt.Errorf("presence.liveness_window must exceed twice tracking.heartbeat_interval")
	}
	if c.Engine.FlushInterval <= 0 {
		return fmt.Errorf("engine.flush_interval must be positive")
	}
	if c.Engine.HistoryCap <= 0 {
		return fmt.Errorf("engine.history_cap must be positive")
	}
	if c.Verification.Endpoint != "" && c.Verification.Throttle <= 0 {
		return fmt.Errorf("verification.throttle must be positive")
	}
	return nil
}

// Zone builds the geofence zone from the configuration
func (c *Config) Zone() geofence.Zone {
	return geofence.Zone{
		Name:    c.Geofence.Name,
		Center:  geofence.Point{Lat: c.Geofence.CenterLat, Lng: c.Geofence.CenterLng},
		HalfLat: c.Geofence.HalfLat,
		HalfLng: c.Geofence.HalfLng,
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Geofence
	if other.Geofence.Name != "" {
		c.Geofence.Name = other.Geofence.Name
	}
	if other.Geofence.CenterLat != 0 {
		c.Geofence.CenterLat = other.Geofence.CenterLat
	}
	if other.Geofence.CenterLng != 0 {
		c.Geofence.CenterLng = other.Geofence.CenterLng
	}
	if other.Geofence.HalfLat != 0 {
		c.Geofence.HalfLat = other.Geofence.HalfLat
	}
	if other.Geofence.HalfLng != 0 {
		c.Geofence.HalfLng = other.Geofence.HalfLng
	}

	// Presence
	if other.Presence.LivenessWindow != 0 {
		c.Presence.LivenessWindow = other.Presence.LivenessWindow
	}

	// Tracking
	if other.Tracking.HeartbeatInterval != 0 {
		c.Tracking.HeartbeatInterval = other.Tracking.HeartbeatInterval
	}
	if other.Tracking.LocationInterval != 0 {
		c.Tracking.LocationInterval = other.Tracking.LocationInterval
	}
	if other.Tracking.Simulate {
		c.Tracking.Simulate = true
	}
	if other.Tracking.SimulateInterval != 0 {
		c.Tracking.SimulateInterval = other.Tracking.SimulateInterval
	}

	// Engine
	if other.Engine.FlushInterval != 0 {
		c.Engine.FlushInterval = other.Engine.FlushInterval
	}
	if other.Engine.HistoryCap != 0 {
		c.Engine.HistoryCap = other.Engine.HistoryCap
	}

	// Verification
	if other.Verification.Endpoint != "" {
		c.Verification.Endpoint = other.Verification.Endpoint
	}
	if other.Verification.APIKeyEnv != "" {
		c.Verification.APIKeyEnv = other.Verification.APIKeyEnv
	}
	if other.Verification.Throttle != 0 {
		c.Verification.Throttle = other.Verification.Throttle
	}
	if other.Verification.Timeout != 0 {
		c.Verification.Timeout = other.Verification.Timeout
	}

	// Roster
	if other.Roster.Path != "" {
		c.Roster.Path = other.Roster.Path
	}
	if other.Roster.Watch {
		c.Roster.Watch = true
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
