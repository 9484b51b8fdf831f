package signal

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/crewmesh/crewmesh/geofence"
)

type countingPublisher struct {
	mu         sync.Mutex
	heartbeats map[string]int
	locations  map[string][]geofence.Point
}

func newCountingPublisher() *countingPublisher {
	return &countingPublisher{
		heartbeats: make(map[string]int),
		locations:  make(map[string][]geofence.Point),
	}
}

func (c *countingPublisher) PublishHeartbeat(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats[userID]++
	return nil
}

func (c *countingPublisher) PublishLocation(_ context.Context, userID string, lat, lng float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[userID] = append(c.locations[userID], geofence.Point{Lat: lat, Lng: lng})
	return nil
}

func (c *countingPublisher) heartbeatCount(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats[userID]
}

func (c *countingPublisher) locationCount(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locations[userID])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestHeartbeaterBeatsAndStops(t *testing.T) {
	pub := newCountingPublisher()
	h := NewHeartbeater(pub, "m1", 10*time.Millisecond, slog.Default())

	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.Start(context.Background()); err == nil {
		t.Error("double start should fail")
	}

	waitFor(t, func() bool { return pub.heartbeatCount("m1") >= 3 })
	h.Stop()
	h.Stop() // idempotent

	count := pub.heartbeatCount("m1")
	time.Sleep(50 * time.Millisecond)
	if pub.heartbeatCount("m1") != count {
		t.Error("heartbeats continued after Stop")
	}
}

func TestLocationSamplerSkipsMissingFix(t *testing.T) {
	pub := newCountingPublisher()
	var haveFix bool
	var mu sync.Mutex

	sampler := func() (float64, float64, bool) {
		mu.Lock()
		defer mu.Unlock()
		return 18.5194, 73.8150, haveFix
	}

	l := NewLocationSampler(pub, "m1", sampler, 10*time.Millisecond, slog.Default())
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	time.Sleep(40 * time.Millisecond)
	if pub.locationCount("m1") != 0 {
		t.Fatal("published positions without a fix")
	}

	mu.Lock()
	haveFix = true
	mu.Unlock()
	waitFor(t, func() bool { return pub.locationCount("m1") >= 1 })
}

func TestSimulatorCoversAllMembers(t *testing.T) {
	pub := newCountingPublisher()
	zone := geofence.Zone{Center: geofence.Point{Lat: 18.5194, Lng: 73.8150}, HalfLat: 0.005, HalfLng: 0.005}
	s := NewSimulator(pub, zone, []string{"m1", "m2", "m3"}, 10*time.Millisecond, slog.Default())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, func() bool {
		return pub.locationCount("m1") > 0 && pub.locationCount("m2") > 0 && pub.locationCount("m3") > 0
	})
	waitFor(t, func() bool { return pub.heartbeatCount("m2") > 0 })

	// Simulated positions stay near the zone center.
	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, pts := range pub.locations {
		for _, p := range pts {
			if p.Lat < 18.5 || p.Lat > 18.54 || p.Lng < 73.8 || p.Lng > 73.83 {
				t.Errorf("simulated point %v wandered out of bounds", p)
			}
		}
	}
}
