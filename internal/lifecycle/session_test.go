package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/sharedcontext"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

type fakeSender struct {
	mu      sync.Mutex
	pending int64
	sent    []string
	reply   domain.AgentResponse
	err     error
}

func (f *fakeSender) Send(ctx context.Context, input string, opts worker.SendOptions) (domain.AgentResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, input)
	f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeSender) PendingRequests() int64 {
	return atomic.LoadInt64(&f.pending)
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func TestSession_IdleTimerFiresShutdownWhenNotBusy(t *testing.T) {
	sender := &fakeSender{}
	s := NewSession("alice", sender, nil, 20, nil)

	shutdown := make(chan struct{})
	s.ShutdownFunc = func() { close(shutdown) }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runIdleTimer(ctx) }()

	select {
	case <-shutdown:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("idle timer never fired shutdown")
	}
	<-done
}

func TestSession_IdleTimerDoesNotFireWhenBusy(t *testing.T) {
	sender := &fakeSender{pending: 1}
	s := NewSession("alice", sender, nil, 20, nil)

	shutdown := make(chan struct{})
	s.ShutdownFunc = func() { close(shutdown) }

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runIdleTimer(ctx) }()

	select {
	case <-shutdown:
		t.Fatal("shutdown fired while a turn was in flight")
	case <-time.After(120 * time.Millisecond):
	}
	<-done
}

func TestSession_IntervalWakeupSendsDefaultPromptWhenIdle(t *testing.T) {
	sender := &fakeSender{}
	schedule := &domain.ResolvedSchedule{Type: domain.ScheduleInterval, Ms: 20}
	s := NewSession("alice", sender, nil, 0, schedule)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runIntervalWakeup(ctx) }()

	deadline := time.After(time.Second)
	for sender.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("interval wakeup never sent a prompt")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if sender.lastSent() != defaultWakeupPrompt {
		t.Fatalf("got prompt %q", sender.lastSent())
	}
	<-done
}

func TestSession_IntervalWakeupSkipsWhenBusy(t *testing.T) {
	sender := &fakeSender{pending: 1}
	schedule := &domain.ResolvedSchedule{Type: domain.ScheduleInterval, Ms: 20}
	s := NewSession("alice", sender, nil, 0, schedule)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runIntervalWakeup(ctx) }()
	<-done

	if sender.sentCount() != 0 {
		t.Fatalf("expected no sends while busy, got %d", sender.sentCount())
	}
}

func TestSession_ProcessInbox_SendsLogsAndAcks(t *testing.T) {
	dir := t.TempDir()
	ctxProvider, err := sharedcontext.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ctxProvider.AppendChannel("bob", "hello alice", sharedcontext.AppendOptions{To: "alice"}); err != nil {
		t.Fatalf("AppendChannel: %v", err)
	}

	sender := &fakeSender{reply: domain.AgentResponse{Content: "hi bob"}}
	s := NewSession("alice", sender, ctxProvider, 0, nil)

	s.processInbox(context.Background())

	if sender.sentCount() != 1 {
		t.Fatalf("expected one send, got %d", sender.sentCount())
	}
	if sender.lastSent() != "[bob]: hello alice" {
		t.Fatalf("got prompt %q", sender.lastSent())
	}

	inbox, err := ctxProvider.GetInbox("alice")
	if err != nil {
		t.Fatalf("GetInbox: %v", err)
	}
	if len(inbox) != 0 {
		t.Fatalf("expected inbox to be acked, got %d remaining", len(inbox))
	}

	entries, err := ctxProvider.ReadChannel(sharedcontext.ReadOptions{Admin: true})
	if err != nil {
		t.Fatalf("ReadChannel: %v", err)
	}
	var sawLog, sawReply bool
	for _, e := range entries {
		if e.Kind == sharedcontext.KindLog {
			sawLog = true
		}
		if e.From == "alice" && e.Content == "hi bob" {
			sawReply = true
		}
	}
	if !sawLog {
		t.Fatal("expected a log entry recording the read")
	}
	if !sawReply {
		t.Fatal("expected the assistant reply to be appended to the channel")
	}
}

func TestSession_ProcessInbox_NoMessagesIsNoop(t *testing.T) {
	dir := t.TempDir()
	ctxProvider, err := sharedcontext.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sender := &fakeSender{}
	s := NewSession("alice", sender, ctxProvider, 0, nil)

	s.processInbox(context.Background())

	if sender.sentCount() != 0 {
		t.Fatalf("expected no sends for an empty inbox, got %d", sender.sentCount())
	}
}

func TestCoherenceWarnings_FlagsIntervalLongerThanIdleTimeout(t *testing.T) {
	schedule := &domain.ResolvedSchedule{Type: domain.ScheduleInterval, Ms: 60_000}
	warnings := CoherenceWarnings(30_000, schedule)
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
}

func TestCoherenceWarnings_SilentWhenIntervalFitsWithinIdleTimeout(t *testing.T) {
	schedule := &domain.ResolvedSchedule{Type: domain.ScheduleInterval, Ms: 10_000}
	if warnings := CoherenceWarnings(30_000, schedule); len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}

func TestCoherenceWarnings_SilentForCronSchedule(t *testing.T) {
	schedule := &domain.ResolvedSchedule{Type: domain.ScheduleCron, Expr: "0 9 * * *"}
	if warnings := CoherenceWarnings(1000, schedule); len(warnings) != 0 {
		t.Fatalf("expected no warnings for cron schedules, got %v", warnings)
	}
}
