// Package signal provides the periodic producers that feed the mesh:
// heartbeats, rate-limited location samples, and a simulated telemetry
// source for rehearsal mode. Production and simulated producers share one
// interface so the engine never knows the difference.
package signal

import "context"

// Source is a cancelable periodic producer. Stopping a source cancels its
// timer cleanly; signals already published stay in the store (no
// retraction).
type Source interface {
	Start(ctx context.Context) error
	Stop()
}

// HeartbeatPublisher is the slice of the outbound publisher heartbeat
// sources need.
type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, userID string) error
}

// LocationPublisher is the slice of the outbound publisher location
// sources need.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, userID string, lat, lng float64) error
}

// TelemetryPublisher combines both; the simulator drives location and
// liveness together the way a real device does.
type TelemetryPublisher interface {
	HeartbeatPublisher
	LocationPublisher
}
