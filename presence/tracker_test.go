package presence

import (
	"testing"
	"time"
)

func TestOnlineWindowBoundary(t *testing.T) {
	tr := NewTracker(15000 * time.Millisecond)
	t0 := time.UnixMilli(0)
	tr.Observe("u1", t0)

	if !tr.Online("u1", t0.Add(14999*time.Millisecond)) {
		t.Error("Online at 14999ms = false, want true")
	}
	if tr.Online("u1", t0.Add(15001*time.Millisecond)) {
		t.Error("Online at 15001ms = true, want false")
	}
	// Exactly at the window edge the silence has lasted the full window.
	if tr.Online("u1", t0.Add(15000*time.Millisecond)) {
		t.Error("Online at exactly 15000ms = true, want false")
	}
}

func TestUnknownUserIsOffline(t *testing.T) {
	tr := NewTracker(15 * time.Second)
	if tr.Online("ghost", time.Now()) {
		t.Error("user with no heartbeat should be offline")
	}
	if _, ok := tr.LastSeen("ghost"); ok {
		t.Error("LastSeen for unknown user should report not found")
	}
}

func TestObserveIsMonotonic(t *testing.T) {
	tr := NewTracker(15 * time.Second)
	later := time.UnixMilli(10000)
	earlier := time.UnixMilli(4000)

	tr.Observe("u1", later)
	tr.Observe("u1", earlier) // duplicate-prone store may replay old beats

	got, ok := tr.LastSeen("u1")
	if !ok {
		t.Fatal("LastSeen not found after Observe")
	}
	if !got.Equal(later) {
		t.Errorf("LastSeen = %v, want %v (stale observation must not regress)", got, later)
	}
}

func TestObserveIgnoresEmptyUser(t *testing.T) {
	tr := NewTracker(time.Second)
	tr.Observe("", time.Now())
	if _, ok := tr.LastSeen(""); ok {
		t.Error("empty user id should not be recorded")
	}
}
