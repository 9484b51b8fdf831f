package signal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultHeartbeatInterval keeps the liveness window comfortably above
// twice the cadence, tolerating one dropped beat.
const DefaultHeartbeatInterval = 5 * time.Second

// Heartbeater publishes a liveness beat for the local user on a fixed
// cadence.
type Heartbeater struct {
	pub      HeartbeatPublisher
	userID   string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewHeartbeater builds a heartbeat source for userID. A zero interval
// takes DefaultHeartbeatInterval.
func NewHeartbeater(pub HeartbeatPublisher, userID string, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if interval == 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{pub: pub, userID: userID, interval: interval, logger: logger}
}

// Start begins beating. The first beat is sent immediately so peers see
// the user without waiting a full interval.
func (h *Heartbeater) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("heartbeater already running")
	}

	subCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true

	go h.loop(subCtx)
	return nil
}

func (h *Heartbeater) loop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) {
	if err := h.pub.PublishHeartbeat(ctx, h.userID); err != nil {
		h.logger.Warn("heartbeat publish failed", "user_id", h.userID, "error", err)
	}
}

// Stop cancels the beat timer.
func (h *Heartbeater) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.cancel()
	h.running = false
}
