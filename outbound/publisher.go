// Package outbound translates local user actions into fire-and-forget
// mesh writes. Each write is also echoed optimistically into the local
// engine so the acting user sees their own mutation before the store
// round-trips it back; the reconciliation path treats the echoed remote
// copy as a no-op.
package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crewmesh/crewmesh/model"
	"github.com/crewmesh/crewmesh/store"
	"github.com/crewmesh/crewmesh/wire"
)

// Applier receives the optimistic local echo. Satisfied by *engine.Engine.
type Applier interface {
	Apply(u store.Update)
}

// Publisher issues one mesh write per user action.
type Publisher struct {
	mesh   store.Mesh
	local  Applier
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher builds a publisher. local may be nil when no optimistic
// echo is wanted (the store delivery will still arrive).
func NewPublisher(mesh store.Mesh, local Applier, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{mesh: mesh, local: local, logger: logger, now: time.Now}
}

func (p *Publisher) put(ctx context.Context, key string, value []byte) error {
	if p.local != nil {
		p.local.Apply(store.Update{Key: key, Value: value})
	}
	if p.mesh == nil {
		return fmt.Errorf("mesh not connected")
	}
	if err := p.mesh.Put(ctx, key, value); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// PublishLocation writes the user's current position.
func (p *Publisher) PublishLocation(ctx context.Context, userID string, lat, lng float64) error {
	key, err := wire.EncodeLocationKey(userID)
	if err != nil {
		return err
	}
	value, err := wire.EncodeValue(wire.LocationSignal{
		UserID:    userID,
		Lat:       lat,
		Lng:       lng,
		EventTime: p.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.put(ctx, key, value)
}

// PublishAttendance marks (userID, session) present. The flat key carries
// the full identity, so concurrent marks from independent peers land on
// the same key without a read-modify-write race.
func (p *Publisher) PublishAttendance(ctx context.Context, userID, session string) error {
	key, err := wire.EncodeAttendanceKey(userID, session)
	if err != nil {
		return err
	}
	value, err := wire.EncodeValue(wire.AttendanceMark{
		UserID:   userID,
		Session:  session,
		MarkedAt: p.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.put(ctx, key, value)
}

// PublishMessage writes a chat message and returns its generated id.
func (p *Publisher) PublishMessage(ctx context.Context, senderID, receiverID, text string) (string, error) {
	id := uuid.NewString()
	key, err := wire.EncodeMessageKey(id)
	if err != nil {
		return "", err
	}
	value, err := wire.EncodeValue(wire.MessagePayload{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  p.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return id, p.put(ctx, key, value)
}

// PublishWorkLog writes a work-log entry and returns its generated id.
func (p *Publisher) PublishWorkLog(ctx context.Context, userID, task string) (string, error) {
	id := uuid.NewString()
	key, err := wire.EncodeWorkLogKey(id)
	if err != nil {
		return "", err
	}
	value, err := wire.EncodeValue(wire.WorkLogPayload{
		ID:        id,
		UserID:    userID,
		Task:      task,
		CreatedAt: p.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return id, p.put(ctx, key, value)
}

// PublishEquipment writes a full equipment record. LastUpdatedAt stamps
// the write for last-write-wins resolution; a zero value takes now.
func (p *Publisher) PublishEquipment(ctx context.Context, rec model.EquipmentRecord) error {
	key, err := wire.EncodeEquipmentKey(rec.ID)
	if err != nil {
		return err
	}
	updated := rec.LastUpdatedAt
	if updated.IsZero() {
		updated = p.now()
	}
	value, err := wire.EncodeValue(wire.EquipmentPayload{
		ID:           rec.ID,
		Name:         rec.Name,
		SerialNumber: rec.SerialNumber,
		AssignedToID: rec.AssignedToID,
		Condition:    rec.Condition,
		UpdatedAt:    updated.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.put(ctx, key, value)
}

// PublishHeartbeat writes a liveness beat for the user.
func (p *Publisher) PublishHeartbeat(ctx context.Context, userID string) error {
	key, err := wire.EncodeHeartbeatKey(userID)
	if err != nil {
		return err
	}
	value, err := wire.EncodeValue(wire.HeartbeatSignal{
		UserID: userID,
		SentAt: p.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.put(ctx, key, value)
}
