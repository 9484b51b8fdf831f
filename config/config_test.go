package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crewmesh/crewmesh/geofence"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.NATS.Embedded {
		t.Error("expected embedded NATS by default")
	}
	if cfg.Geofence.CenterLat != 18.5194 || cfg.Geofence.CenterLng != 73.8150 {
		t.Errorf("unexpected default zone center (%f, %f)", cfg.Geofence.CenterLat, cfg.Geofence.CenterLng)
	}
	if cfg.Geofence.HalfLat != 0.005 || cfg.Geofence.HalfLng != 0.005 {
		t.Errorf("unexpected default half-widths (%f, %f)", cfg.Geofence.HalfLat, cfg.Geofence.HalfLng)
	}
	if cfg.Presence.LivenessWindow != 15*time.Second {
		t.Errorf("expected 15s liveness window, got %v", cfg.Presence.LivenessWindow)
	}
	if cfg.Tracking.HeartbeatInterval != 5*time.Second {
		t.Errorf("expected 5s heartbeat interval, got %v", cfg.Tracking.HeartbeatInterval)
	}
	if cfg.Engine.FlushInterval != 750*time.Millisecond {
		t.Errorf("expected 750ms flush interval, got %v", cfg.Engine.FlushInterval)
	}
	if cfg.Engine.HistoryCap != 15 {
		t.Errorf("expected history cap 15, got %d", cfg.Engine.HistoryCap)
	}
	if cfg.Verification.Throttle != 4500*time.Millisecond {
		t.Errorf("expected 4.5s verification throttle, got %v", cfg.Verification.Throttle)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero geofence half-width",
			modify:  func(c *Config) { c.Geofence.HalfLat = 0 },
			wantErr: true,
		},
		{
			name:    "negative liveness window",
			modify:  func(c *Config) { c.Presence.LivenessWindow = -time.Second },
			wantErr: true,
		},
		{
			name: "liveness window not exceeding twice heartbeat",
			modify: func(c *Config) {
				c.Tracking.HeartbeatInterval = 10 * time.Second
				c.Presence.LivenessWindow = 20 * time.Second
			},
			wantErr: true,
		},
		{
			name:    "zero flush interval",
			modify:  func(c *Config) { c.Engine.FlushInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero history cap",
			modify:  func(c *Config) { c.Engine.HistoryCap = 0 },
			wantErr: true,
		},
		{
			name: "verification enabled without throttle",
			modify: func(c *Config) {
				c.Verification.Endpoint = "https://verify.example.com"
				c.Verification.Throttle = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
nats:
  url: "nats://mesh.example.com:4222"
geofence:
  name: "Hall B"
  center_lat: 12.97
  center_lng: 77.59
presence:
  liveness_window: 30s
tracking:
  heartbeat_interval: 10s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.NATS.URL != "nats://mesh.example.com:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Geofence.Name != "Hall B" {
		t.Errorf("zone name = %q", cfg.Geofence.Name)
	}
	if cfg.Presence.LivenessWindow != 30*time.Second {
		t.Errorf("liveness window = %v", cfg.Presence.LivenessWindow)
	}
	// Unset fields keep their defaults.
	if cfg.Engine.FlushInterval != 750*time.Millisecond {
		t.Errorf("flush interval = %v, want default", cfg.Engine.FlushInterval)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	// The loader distinguishes a missing user config from a broken one, so
	// the wrapped error must keep the not-exist sentinel reachable.
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing-file error should satisfy fs.ErrNotExist, got %v", err)
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	loader := NewLoader(nil)
	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}

	path := filepath.Join(home, UserConfigDir, UserConfigFile)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("created config does not load: %v", err)
	}
	if cfg.Presence.LivenessWindow != 15*time.Second {
		t.Errorf("created config should carry defaults, liveness window = %v", cfg.Presence.LivenessWindow)
	}

	// A second call must not overwrite an existing config.
	if err := os.WriteFile(path, []byte("presence:\n  liveness_window: 45s\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loader.EnsureUserConfig(); err != nil {
		t.Fatalf("EnsureUserConfig() on existing config error = %v", err)
	}
	cfg, err = LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Presence.LivenessWindow != 45*time.Second {
		t.Error("EnsureUserConfig overwrote an existing config")
	}
}

func TestMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(&Config{
		NATS:     NATSConfig{URL: "nats://peer:4222"},
		Presence: PresenceConfig{LivenessWindow: 20 * time.Second},
		Tracking: TrackingConfig{Simulate: true},
	})

	if cfg.NATS.URL != "nats://peer:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.NATS.Embedded {
		t.Error("setting a URL should disable embedded NATS")
	}
	if cfg.Presence.LivenessWindow != 20*time.Second {
		t.Errorf("liveness window = %v", cfg.Presence.LivenessWindow)
	}
	if !cfg.Tracking.Simulate {
		t.Error("simulate flag should merge")
	}
	// Untouched sections survive.
	if cfg.Geofence.CenterLat != 18.5194 {
		t.Errorf("zone center lat = %f, want default", cfg.Geofence.CenterLat)
	}

	cfg.Merge(nil) // no-op
	if cfg.NATS.URL != "nats://peer:4222" {
		t.Error("Merge(nil) should not change anything")
	}
}

func TestZone(t *testing.T) {
	cfg := DefaultConfig()
	zone := cfg.Zone()
	if zone.Name != "Event Zone A" {
		t.Errorf("zone name = %q", zone.Name)
	}
	if !zone.Contains(geofence.Point{Lat: 18.5194, Lng: 73.8150}) {
		t.Error("zone should contain its own center")
	}
}
