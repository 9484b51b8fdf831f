// Package verify serializes photo-verification calls behind a fixed rate
// budget. The external service allows 15 requests per minute; the queue
// releases one request per throttle interval (default 4.5s for safety
// margin), strictly FIFO with a single call in flight, so arrival bursts
// never translate into budget violations.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Result is the external service's verdict on one image.
type Result struct {
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	IsAuthentic     bool     `json:"is_authentic"`
	WithinZone      bool     `json:"within_zone"`
	Confidence      float64  `json:"confidence"`
	DetectedAddress string   `json:"detected_address,omitempty"`
}

// Outcome resolves a submitted request: exactly one of Result and Err is
// set.
type Outcome struct {
	Result *Result
	Err    error
}

// Client performs one verification call. The queue imposes the rate
// budget; the client has no retry contract of its own.
type Client interface {
	Verify(ctx context.Context, imagePayload []byte) (*Result, error)
}

// DefaultThrottle derives from the 15-requests-per-minute external limit
// with safety margin.
const DefaultThrottle = 4500 * time.Millisecond

type item struct {
	ctx     context.Context
	payload []byte
	out     chan Outcome
}

// Queue is the single-lane throttled dispatcher. A call failure resolves
// that caller's outcome and nothing else; the queue keeps draining.
type Queue struct {
	client   Client
	throttle time.Duration
	logger   *slog.Logger

	mu           sync.Mutex
	pending      []*item
	inFlight     bool
	lastDispatch time.Time
	timerArmed   bool
}

// NewQueue builds a queue over the given client. A zero throttle takes
// DefaultThrottle.
func NewQueue(client Client, throttle time.Duration, logger *slog.Logger) *Queue {
	if throttle == 0 {
		throttle = DefaultThrottle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, throttle: throttle, logger: logger}
}

// Submit appends a request and returns a channel resolving to its outcome.
// The channel is buffered; the caller may abandon it.
func (q *Queue) Submit(ctx context.Context, payload []byte) <-chan Outcome {
	it := &item{ctx: ctx, payload: payload, out: make(chan Outcome, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, it)
	depth := len(q.pending)
	q.mu.Unlock()

	queueDepth.Set(float64(depth))
	q.dispatch()
	return it.out
}

// Depth reports the number of requests not yet dispatched.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// EstimatedWait approximates how long a newly submitted request would sit
// in the queue.
func (q *Queue) EstimatedWait() time.Duration {
	return time.Duration(q.Depth()) * q.throttle
}

// Throttle returns the configured dispatch interval.
func (q *Queue) Throttle() time.Duration {
	return q.throttle
}

// dispatch pops the head if dispatch is legal right now, otherwise arms a
// re-check for the earliest legal instant. Runs after every submit and
// after every completion so the queue drains continuously at the allowed
// rate rather than in bursts.
func (q *Queue) dispatch() {
	q.mu.Lock()

	if q.inFlight || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}

	now := time.Now()
	if wait := q.throttle - now.Sub(q.lastDispatch); wait > 0 {
		if !q.timerArmed {
			q.timerArmed = true
			time.AfterFunc(wait, func() {
				q.mu.Lock()
				q.timerArmed = false
				q.mu.Unlock()
				q.dispatch()
			})
		}
		q.mu.Unlock()
		return
	}

	it := q.pending[0]
	q.pending = q.pending[1:]
	depth := len(q.pending)
	q.inFlight = true
	q.lastDispatch = now
	q.mu.Unlock()

	queueDepth.Set(float64(depth))
	dispatchesTotal.Inc()

	go func() {
		res, err := q.client.Verify(it.ctx, it.payload)
		if err != nil {
			callFailures.Inc()
			q.logger.Warn("verification call failed", "error", err)
		}
		it.out <- Outcome{Result: res, Err: err}

		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
		q.dispatch()
	}()
}
