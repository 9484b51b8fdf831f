package stream

import (
	"testing"
	"time"

	"github.com/crewmesh/crewmesh/model"
)

func messageLedger() *Ledger[model.Message] {
	return NewLedger(
		func(m model.Message) string { return m.ID },
		func(m model.Message) time.Time { return m.CreatedAt },
	)
}

func TestAdmitRejectsDuplicates(t *testing.T) {
	l := messageLedger()
	msg := model.Message{ID: "m-1", SenderID: "u1", Text: "hello", CreatedAt: time.UnixMilli(1000)}

	if !l.Admit(msg) {
		t.Fatal("first Admit() = false, want true")
	}
	for i := 0; i < 5; i++ {
		if l.Admit(msg) {
			t.Fatal("re-delivered Admit() = true, want false")
		}
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestAdmitRejectsMissingID(t *testing.T) {
	l := messageLedger()
	if l.Admit(model.Message{Text: "no id", CreatedAt: time.Now()}) {
		t.Error("Admit() accepted a record with an empty id")
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestAscendingOrderUnderOutOfOrderArrival(t *testing.T) {
	l := messageLedger()
	for _, ms := range []int64{3000, 1000, 5000, 2000, 4000} {
		l.Admit(model.Message{ID: time.UnixMilli(ms).String(), CreatedAt: time.UnixMilli(ms)})
	}

	snap := l.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("Len() = %d, want 5", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].CreatedAt.Before(snap[i-1].CreatedAt) {
			t.Errorf("records out of ascending order at %d: %v before %v",
				i, snap[i].CreatedAt, snap[i-1].CreatedAt)
		}
	}
}

func TestDescendingOrder(t *testing.T) {
	l := NewDescendingLedger(
		func(w model.WorkLogEntry) string { return w.ID },
		func(w model.WorkLogEntry) time.Time { return w.CreatedAt },
	)
	for _, ms := range []int64{1000, 4000, 2000, 3000} {
		l.Admit(model.WorkLogEntry{ID: time.UnixMilli(ms).String(), CreatedAt: time.UnixMilli(ms)})
	}

	snap := l.Snapshot()
	for i := 1; i < len(snap); i++ {
		if snap[i].CreatedAt.After(snap[i-1].CreatedAt) {
			t.Errorf("records out of descending order at %d", i)
		}
	}
	if snap[0].CreatedAt != time.UnixMilli(4000) {
		t.Errorf("most recent first: got %v", snap[0].CreatedAt)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := messageLedger()
	l.Admit(model.Message{ID: "m-1", CreatedAt: time.UnixMilli(1)})

	snap := l.Snapshot()
	snap[0].Text = "mutated"

	if l.Snapshot()[0].Text == "mutated" {
		t.Error("Snapshot() shares backing storage with the ledger")
	}
}
