package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestManager_StartAndStopAll(t *testing.T) {
	m := NewManager()
	sender := &fakeSender{}
	s := NewSession("alice", sender, nil, 0, nil)

	ctx := context.Background()
	m.Start(ctx, s)

	if got, ok := m.Get("alice"); !ok || got != s {
		t.Fatalf("expected to get back the registered session")
	}

	done := make(chan error, 1)
	go func() { done <- m.StopAll() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StopAll: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("StopAll never returned")
	}

	if _, ok := m.Get("alice"); ok {
		t.Fatal("expected session to be removed after StopAll")
	}
}

func TestManager_StartTwiceReplacesPriorSession(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	m.Start(ctx, NewSession("alice", &fakeSender{}, nil, 0, nil))
	second := NewSession("alice", &fakeSender{}, nil, 0, nil)
	m.Start(ctx, second)

	got, ok := m.Get("alice")
	if !ok || got != second {
		t.Fatal("expected the second session to replace the first")
	}

	if err := m.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
}
