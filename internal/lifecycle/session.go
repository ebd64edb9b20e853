// Package lifecycle drives one agent session's idle timeout, scheduled
// wakeups, and inbox draining — the goroutines that keep a per-agent
// worker awake and fed between HTTP-triggered turns.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/agentworker/internal/cronengine"
	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/sharedcontext"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

const (
	defaultIdleTimeout  = 30 * time.Minute
	inboxPollInterval   = 2 * time.Second
	defaultWakeupPrompt = "[Scheduled wakeup] You have been idle. Check if there are any pending tasks or updates to process."
)

// Sender is the subset of worker.Handle the session driver needs;
// satisfied by *worker.LocalHandle.
type Sender interface {
	Send(ctx context.Context, input string, opts worker.SendOptions) (domain.AgentResponse, error)
	PendingRequests() int64
}

// Session owns the idle/wakeup/inbox-poll goroutines for one agent.
// ShutdownFunc, if set, is invoked once when the idle timer fires with
// no turn in flight.
type Session struct {
	agent        string
	handle       Sender
	ctx          *sharedcontext.Provider
	idleTimeout  time.Duration // 0 disables
	schedule     *domain.ResolvedSchedule
	ShutdownFunc func()

	idleResetCh     chan struct{}
	intervalResetCh chan struct{}
	queued          atomic.Bool
}

// NewSession constructs a session driver. idleTimeoutMs<0 selects the
// default (30m); 0 disables the idle timer; schedule may be nil (no
// scheduled wakeup).
func NewSession(agent string, handle Sender, ctxProvider *sharedcontext.Provider, idleTimeoutMs int64, schedule *domain.ResolvedSchedule) *Session {
	idle := defaultIdleTimeout
	switch {
	case idleTimeoutMs == 0:
		idle = 0
	case idleTimeoutMs > 0:
		idle = time.Duration(idleTimeoutMs) * time.Millisecond
	}

	return &Session{
		agent:           agent,
		handle:          handle,
		ctx:             ctxProvider,
		idleTimeout:     idle,
		schedule:        schedule,
		idleResetCh:     make(chan struct{}, 1),
		intervalResetCh: make(chan struct{}, 1),
	}
}

// CoherenceWarnings reports the startup warning the spec calls for: an
// interval wakeup longer than a nonzero idle timeout will never fire
// because the session will have shut itself down first.
func CoherenceWarnings(idleTimeoutMs int64, schedule *domain.ResolvedSchedule) []string {
	if idleTimeoutMs <= 0 || schedule == nil || schedule.Type != domain.ScheduleInterval {
		return nil
	}
	if schedule.Ms > idleTimeoutMs {
		return []string{fmt.Sprintf("interval wakeup (%dms) exceeds idle timeout (%dms); the session will shut down before the wakeup can fire", schedule.Ms, idleTimeoutMs)}
	}
	return nil
}

// NoteActivity resets the idle timer and, if the schedule is an
// interval, the interval timer too. Call this on every inbound request
// and every wakeup send.
func (s *Session) NoteActivity() {
	nonBlockingSend(s.idleResetCh)
	if s.schedule != nil && s.schedule.Type == domain.ScheduleInterval {
		nonBlockingSend(s.intervalResetCh)
	}
}

// NoteRequestComplete is called at the end of every request. If the
// inbox was queued while busy and the agent is now idle, it drains the
// inbox immediately.
func (s *Session) NoteRequestComplete(ctx context.Context) {
	if !s.queued.CompareAndSwap(true, false) {
		return
	}
	if s.handle.PendingRequests() != 0 {
		s.queued.Store(true)
		return
	}
	s.processInbox(ctx)
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Run drives the idle timer, the schedule wakeup (interval or cron), and
// the inbox poll loop until ctx is cancelled or the idle timer fires a
// shutdown. It blocks.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runIdleTimer(ctx) })
	g.Go(func() error { return s.runWakeup(ctx) })
	g.Go(func() error { return s.runInboxPoll(ctx) })
	return g.Wait()
}

func (s *Session) runIdleTimer(ctx context.Context) error {
	if s.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	timer := time.NewTimer(s.idleTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.idleResetCh:
			resetTimer(timer, s.idleTimeout)
		case <-timer.C:
			if s.handle.PendingRequests() == 0 {
				slog.Info("lifecycle.idle_shutdown", "agent", s.agent)
				if s.ShutdownFunc != nil {
					s.ShutdownFunc()
				}
				return nil
			}
			resetTimer(timer, s.idleTimeout)
		}
	}
}

func (s *Session) runWakeup(ctx context.Context) error {
	if s.schedule == nil {
		<-ctx.Done()
		return nil
	}
	switch s.schedule.Type {
	case domain.ScheduleInterval:
		return s.runIntervalWakeup(ctx)
	case domain.ScheduleCron:
		return s.runCronWakeup(ctx)
	default:
		<-ctx.Done()
		return nil
	}
}

func (s *Session) wakeupPrompt() string {
	if s.schedule != nil && s.schedule.Prompt != "" {
		return s.schedule.Prompt
	}
	return defaultWakeupPrompt
}

func (s *Session) sendWakeup(ctx context.Context) {
	if _, err := s.handle.Send(ctx, s.wakeupPrompt(), worker.SendOptions{}); err != nil {
		slog.Warn("lifecycle.wakeup_send_failed", "agent", s.agent, "error", err)
	}
	s.NoteActivity()
}

// External activity resets this timer.
func (s *Session) runIntervalWakeup(ctx context.Context) error {
	d := time.Duration(s.schedule.Ms) * time.Millisecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.intervalResetCh:
			resetTimer(timer, d)
		case <-timer.C:
			if s.handle.PendingRequests() > 0 {
				resetTimer(timer, d)
				continue
			}
			s.sendWakeup(ctx)
			resetTimer(timer, d)
		}
	}
}

// Does NOT reset on activity; fires at its next scheduled instant
// regardless of recent traffic, then schedules the next occurrence.
func (s *Session) runCronWakeup(ctx context.Context) error {
	for {
		waitMs, err := cronengine.MsUntilNextCron(s.schedule.Expr, time.Now())
		if err != nil {
			slog.Error("lifecycle.cron_schedule_failed", "agent", s.agent, "expr", s.schedule.Expr, "error", err)
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
			if s.handle.PendingRequests() == 0 {
				s.sendWakeup(ctx)
			}
		}
	}
}

func (s *Session) runInboxPoll(ctx context.Context) error {
	ticker := time.NewTicker(inboxPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.handle.PendingRequests() > 0 {
				s.queued.Store(true)
				continue
			}
			s.queued.Store(false)
			s.processInbox(ctx)
		}
	}
}

// processInbox implements the spec's inbox-drain algorithm: read unacked
// messages, prompt the worker with them, log the read, append the reply,
// and advance the ack cursor past the latest message read.
func (s *Session) processInbox(ctx context.Context) {
	inbox, err := s.ctx.GetInbox(s.agent)
	if err != nil {
		slog.Warn("lifecycle.inbox_read_failed", "agent", s.agent, "error", err)
		return
	}
	if len(inbox) == 0 {
		return
	}

	latestID := inbox[len(inbox)-1].ID
	lines := make([]string, 0, len(inbox))
	var froms []string
	seenFrom := make(map[string]bool)
	for _, e := range inbox {
		lines = append(lines, fmt.Sprintf("[%s]: %s", e.From, e.Content))
		if !seenFrom[e.From] {
			seenFrom[e.From] = true
			froms = append(froms, e.From)
		}
	}
	prompt := strings.Join(lines, "\n\n")

	if _, err := s.ctx.AppendChannel("system", fmt.Sprintf("read %d message(s) from %s", len(inbox), strings.Join(froms, ", ")), sharedcontext.AppendOptions{Kind: sharedcontext.KindLog}); err != nil {
		slog.Warn("lifecycle.inbox_log_failed", "agent", s.agent, "error", err)
	}

	resp, err := s.handle.Send(ctx, prompt, worker.SendOptions{})
	if err != nil {
		slog.Warn("lifecycle.inbox_send_failed", "agent", s.agent, "error", err)
		return
	}
	s.NoteActivity()

	if _, err := s.ctx.AppendChannel(s.agent, resp.Content, sharedcontext.AppendOptions{}); err != nil {
		slog.Warn("lifecycle.inbox_reply_append_failed", "agent", s.agent, "error", err)
	}
	if err := s.ctx.AckInbox(s.agent, latestID); err != nil {
		slog.Warn("lifecycle.inbox_ack_failed", "agent", s.agent, "error", err)
	}
}
