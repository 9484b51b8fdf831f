package outbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/crewmesh/crewmesh/model"
	"github.com/crewmesh/crewmesh/store"
	"github.com/crewmesh/crewmesh/wire"
)

type recordingApplier struct {
	updates []store.Update
}

func (r *recordingApplier) Apply(u store.Update) {
	r.updates = append(r.updates, u)
}

func fixedNow(p *Publisher, ms int64) {
	p.now = func() time.Time { return time.UnixMilli(ms) }
}

func TestPublishLocation(t *testing.T) {
	mesh := store.NewFake()
	local := &recordingApplier{}
	p := NewPublisher(mesh, local, slog.Default())
	fixedNow(p, 1000)

	if err := p.PublishLocation(context.Background(), "m1", 18.5194, 73.8150); err != nil {
		t.Fatalf("PublishLocation() error = %v", err)
	}

	puts := mesh.Puts()
	if len(puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(puts))
	}
	if puts[0].Key != "loc.m1" {
		t.Errorf("key = %q, want loc.m1", puts[0].Key)
	}

	var sig wire.LocationSignal
	if err := json.Unmarshal(puts[0].Value, &sig); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if sig.UserID != "m1" || sig.Lat != 18.5194 || sig.EventTime != 1000 {
		t.Errorf("signal = %+v", sig)
	}

	// Optimistic echo carries the same bytes the mesh got.
	if len(local.updates) != 1 || local.updates[0].Key != puts[0].Key {
		t.Errorf("local echo = %+v, want mirror of mesh put", local.updates)
	}
}

func TestPublishAttendanceKeyShape(t *testing.T) {
	mesh := store.NewFake()
	p := NewPublisher(mesh, nil, slog.Default())

	if err := p.PublishAttendance(context.Background(), "m1", "D1S1"); err != nil {
		t.Fatalf("PublishAttendance() error = %v", err)
	}
	if key := mesh.Puts()[0].Key; key != "att.m1.D1S1" {
		t.Errorf("key = %q, want att.m1.D1S1", key)
	}
}

func TestPublishAttendanceRejectsUnsafeSession(t *testing.T) {
	p := NewPublisher(store.NewFake(), nil, slog.Default())
	if err := p.PublishAttendance(context.Background(), "m1", "D1.S1"); err == nil {
		t.Error("delimiter in session key must be rejected at encode time")
	}
}

func TestPublishMessageGeneratesID(t *testing.T) {
	mesh := store.NewFake()
	p := NewPublisher(mesh, nil, slog.Default())

	id, err := p.PublishMessage(context.Background(), "m1", "admin-1", "radio check")
	if err != nil {
		t.Fatalf("PublishMessage() error = %v", err)
	}
	if id == "" {
		t.Fatal("returned id is empty")
	}
	if key := mesh.Puts()[0].Key; !strings.HasPrefix(key, "msg.") || !strings.Contains(key, id) {
		t.Errorf("key = %q, want msg.%s", key, id)
	}

	var payload wire.MessagePayload
	if err := json.Unmarshal(mesh.Puts()[0].Value, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.ID != id || payload.SenderID != "m1" || payload.ReceiverID != "admin-1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestPublishEquipmentStampsZeroTime(t *testing.T) {
	mesh := store.NewFake()
	p := NewPublisher(mesh, nil, slog.Default())
	fixedNow(p, 5000)

	err := p.PublishEquipment(context.Background(), model.EquipmentRecord{
		ID: "eq-1", Name: "Camera A", SerialNumber: "SN01", AssignedToID: "m1", Condition: "Good",
	})
	if err != nil {
		t.Fatalf("PublishEquipment() error = %v", err)
	}

	var payload wire.EquipmentPayload
	if err := json.Unmarshal(mesh.Puts()[0].Value, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UpdatedAt != 5000 {
		t.Errorf("UpdatedAt = %d, want publisher-stamped 5000", payload.UpdatedAt)
	}
}

func TestPublishWithoutMeshStillEchoesLocally(t *testing.T) {
	local := &recordingApplier{}
	p := NewPublisher(nil, local, slog.Default())

	err := p.PublishHeartbeat(context.Background(), "m1")
	if err == nil {
		t.Error("nil mesh should surface an error")
	}
	if len(local.updates) != 1 {
		t.Errorf("local echo missing: %d updates", len(local.updates))
	}
}
