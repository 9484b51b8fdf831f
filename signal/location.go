package signal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultLocationInterval rate-limits position publishes. Device position
// is watched continuously but emitted at most once per interval.
const DefaultLocationInterval = 10 * time.Second

// Sampler reads the device's current position. ok is false when no fix is
// available; that sample is skipped, not an error.
type Sampler func() (lat, lng float64, ok bool)

// LocationSampler publishes the local user's position on a fixed cadence.
type LocationSampler struct {
	pub      LocationPublisher
	userID   string
	interval time.Duration
	sample   Sampler
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewLocationSampler builds a location source for userID.
func NewLocationSampler(pub LocationPublisher, userID string, sample Sampler, interval time.Duration, logger *slog.Logger) *LocationSampler {
	if interval == 0 {
		interval = DefaultLocationInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationSampler{pub: pub, userID: userID, interval: interval, sample: sample, logger: logger}
}

// Start begins sampling. An immediate first sample masks the initial
// interval delay.
func (l *LocationSampler) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("location sampler already running")
	}

	subCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true

	go l.loop(subCtx)
	return nil
}

func (l *LocationSampler) loop(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.emit(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.emit(ctx)
		}
	}
}

func (l *LocationSampler) emit(ctx context.Context) {
	lat, lng, ok := l.sample()
	if !ok {
		return
	}
	if err := l.pub.PublishLocation(ctx, l.userID, lat, lng); err != nil {
		l.logger.Warn("location publish failed", "user_id", l.userID, "error", err)
	}
}

// Stop cancels the sampling timer. Signals already published remain in
// the store.
func (l *LocationSampler) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.cancel()
	l.running = false
}
