package signal

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/crewmesh/crewmesh/geofence"
)

const (
	// DefaultSimInterval matches the telemetry cadence of a real device
	// fleet closely enough for rehearsals.
	DefaultSimInterval = 5 * time.Second

	// simJitter spreads simulated positions slightly wider than the zone
	// half-widths so some members wander outside the geofence.
	simJitter = 0.006
)

// Simulator emits jittered telemetry around the zone center for a set of
// roster members, standing in for their real devices during rehearsals.
type Simulator struct {
	pub      TelemetryPublisher
	zone     geofence.Zone
	members  []string
	interval time.Duration
	logger   *slog.Logger
	rng      *rand.Rand

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewSimulator builds a simulated telemetry source for the given members.
// The local user should be excluded by the caller; their device produces
// real signals.
func NewSimulator(pub TelemetryPublisher, zone geofence.Zone, members []string, interval time.Duration, logger *slog.Logger) *Simulator {
	if interval == 0 {
		interval = DefaultSimInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		pub:      pub,
		zone:     zone,
		members:  append([]string(nil), members...),
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins emitting simulated telemetry.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("simulator already running")
	}

	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	go s.loop(subCtx)
	s.logger.Info("telemetry simulation started", "members", len(s.members), "interval", s.interval)
	return nil
}

func (s *Simulator) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Simulator) tick(ctx context.Context) {
	for _, id := range s.members {
		lat := s.zone.Center.Lat + (s.rng.Float64()-0.5)*simJitter
		lng := s.zone.Center.Lng + (s.rng.Float64()-0.5)*simJitter
		if err := s.pub.PublishLocation(ctx, id, lat, lng); err != nil {
			s.logger.Warn("simulated location publish failed", "user_id", id, "error", err)
			continue
		}
		if err := s.pub.PublishHeartbeat(ctx, id); err != nil {
			s.logger.Warn("simulated heartbeat publish failed", "user_id", id, "error", err)
		}
	}
}

// Stop halts the simulation.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}
