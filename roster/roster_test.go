package roster

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crewmesh/crewmesh/model"
)

const sampleRoster = `
people:
  - id: admin-1
    name: Event Lead
    role: admin
    department: Ops
  - id: m1
    name: Member One
    role: member
    department: Photographers
equipment:
  - id: eq-1
    name: Camera A
    serial_number: SN01
    assigned_to: m1
`

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	seed, err := Load(writeRoster(t, sampleRoster))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(seed.People) != 2 {
		t.Fatalf("people = %d, want 2", len(seed.People))
	}
	admin := seed.People[0]
	if admin.ID != "admin-1" || admin.Role != model.RoleAdmin || admin.Status != model.StatusUnknown {
		t.Errorf("admin = %+v", admin)
	}
	if seed.People[1].Role != model.RoleMember {
		t.Errorf("unrecognized roles default to member, got %q", seed.People[1].Role)
	}

	if len(seed.Equipment) != 1 {
		t.Fatalf("equipment = %d, want 1", len(seed.Equipment))
	}
	if seed.Equipment[0].Condition != "Good" {
		t.Errorf("missing condition should default to Good, got %q", seed.Equipment[0].Condition)
	}
}

func TestLoadRejectsUnsafeIDs(t *testing.T) {
	path := writeRoster(t, `
people:
  - id: "bad.id"
    name: Nope
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted a delimiter-unsafe id")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeRoster(t, sampleRoster)

	w, err := NewWatcher(path, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	updated := sampleRoster + `
  - id: eq-2
    name: Tripod
    serial_number: SN02
    assigned_to: m1
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case seed := <-w.Events():
		if len(seed.Equipment) != 2 {
			t.Errorf("reloaded equipment = %d, want 2", len(seed.Equipment))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event after file change")
	}
}

func TestWatcherKeepsRunningOnBadFile(t *testing.T) {
	path := writeRoster(t, sampleRoster)

	w, err := NewWatcher(path, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// A half-written file must not kill the watcher or emit a seed.
	if err := os.WriteFile(path, []byte("people: ["), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.Events():
		t.Fatal("broken roster produced a seed")
	case <-time.After(600 * time.Millisecond):
	}

	// A subsequent good write still lands.
	if err := os.WriteFile(path, []byte(sampleRoster), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case seed := <-w.Events():
		if len(seed.People) != 2 {
			t.Errorf("people = %d, want 2", len(seed.People))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher stopped reloading after a bad file")
	}
}
