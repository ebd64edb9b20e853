package registry

import (
	"os"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return reg
}

func TestRegister_FirstSessionBecomesDefault(t *testing.T) {
	reg := newTestRegistry(t)
	info := SessionInfo{ID: "abc123", Model: "m", PID: os.Getpid(), CreatedAt: time.Now()}
	if err := reg.Register(info); err != nil {
		t.Fatalf("Register: %v", err)
	}
	def, err := reg.readDefaultLocked()
	if err != nil || def != "abc123" {
		t.Fatalf("def=%q err=%v", def, err)
	}
}

func TestGet_ByExactIDNameAndPrefix(t *testing.T) {
	reg := newTestRegistry(t)
	info := SessionInfo{ID: "session-one", Name: "alice", Model: "m", CreatedAt: time.Now()}
	if err := reg.Register(info); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got, err := reg.Get("session-one"); err != nil || got.ID != "session-one" {
		t.Fatalf("by id: got=%+v err=%v", got, err)
	}
	if got, err := reg.Get("alice"); err != nil || got.ID != "session-one" {
		t.Fatalf("by name: got=%+v err=%v", got, err)
	}
	if got, err := reg.Get("session-o"); err != nil || got.ID != "session-one" {
		t.Fatalf("by prefix: got=%+v err=%v", got, err)
	}
}

func TestGet_AmbiguousPrefix(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Register(SessionInfo{ID: "abc111", Model: "m", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(SessionInfo{ID: "abc222", Model: "m", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get("abc"); err != ErrAmbiguous {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestUnregister_PicksNewDefault(t *testing.T) {
	reg := newTestRegistry(t)
	reg.Register(SessionInfo{ID: "first", Model: "m", CreatedAt: time.Now()})
	reg.Register(SessionInfo{ID: "second", Model: "m", CreatedAt: time.Now()})

	if err := reg.Unregister("first"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	def, err := reg.readDefaultLocked()
	if err != nil || def != "second" {
		t.Fatalf("def=%q err=%v", def, err)
	}

	if err := reg.Unregister("second"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := reg.readDefaultLocked(); !os.IsNotExist(err) {
		t.Fatalf("expected default file removed, got err=%v", err)
	}
}

func TestIsRunning_DeadPIDCleansUp(t *testing.T) {
	reg := newTestRegistry(t)
	// PID unlikely to exist.
	reg.Register(SessionInfo{ID: "dead", Model: "m", PID: 999999, CreatedAt: time.Now()})
	if reg.IsRunning(SessionInfo{ID: "dead", PID: 999999}) {
		t.Fatal("expected dead pid to report not running")
	}
	if _, err := reg.Get("dead"); err != ErrNotFound {
		t.Fatalf("expected cleanup to remove session, got err=%v", err)
	}
}

func TestGenerateAutoName_SkipsTaken(t *testing.T) {
	taken := map[string]bool{"a0": true, "a1": true}
	name := GenerateAutoName(taken)
	if name != "a2" {
		t.Fatalf("got %q, want a2", name)
	}
}

func TestDaemonRecord_RoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	rec := DaemonRecord{PID: 123, Host: "127.0.0.1", Port: 8787, StartedAt: time.Now(), Token: "secret"}
	if err := reg.WriteDaemonRecord(rec); err != nil {
		t.Fatalf("WriteDaemonRecord: %v", err)
	}
	got, err := reg.ReadDaemonRecord()
	if err != nil || got == nil || got.PID != 123 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	reg.RemoveDaemonRecord()
	got2, err := reg.ReadDaemonRecord()
	if err != nil || got2 != nil {
		t.Fatalf("expected nil after removal, got=%+v err=%v", got2, err)
	}
}
