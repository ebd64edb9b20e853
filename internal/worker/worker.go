package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentworker/internal/classify"
	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/retry"
	"github.com/nextlevelbuilder/agentworker/internal/statestore"
	"github.com/nextlevelbuilder/agentworker/internal/telemetry"
)

const (
	defaultMaxTokens = 4096
	defaultMaxSteps  = 200
)

// Handle is the abstract send/sendStream/getState/approve/deny surface
// the daemon HTTP layer and session lifecycle drive; LocalHandle is its
// only in-process implementation (matching the teacher's
// WorkerHandle-as-thin-wrapper convention).
type Handle interface {
	Send(ctx context.Context, input string, opts SendOptions) (domain.AgentResponse, error)
	SendStream(ctx context.Context, input string, opts SendOptions, onChunk func(string)) (domain.AgentResponse, error)
	GetState() domain.SessionState
	Approve(ctx context.Context, approvalID string) (any, error)
	Deny(approvalID, reason string) error
	PendingRequests() int64
}

// SendOptions configures one turn.
type SendOptions struct {
	AutoApprove  *bool // nil = default true
	OnStepFinish func(Step)
}

func (o SendOptions) autoApprove() bool {
	if o.AutoApprove == nil {
		return true
	}
	return *o.AutoApprove
}

var classifyErr = func(err error) *classify.ClassifiedError {
	return classify.FromError(err)
}

type pendingExec struct {
	tool Tool
	args map[string]any
}

// LocalHandle is one agent's turn loop plus its in-memory transcript.
// At most one turn may run at a time; Send/SendStream enforce this by
// holding turnMu for the duration of the turn. mu guards the state and is
// released while the provider runs.
type LocalHandle struct {
	cfg      domain.AgentConfig
	provider Provider
	store    statestore.Store
	tracer   *telemetry.Tracer
	retryCfg retry.Config

	turnMu          sync.Mutex
	mu              sync.Mutex
	state           domain.SessionState
	tools           []Tool
	lastAutoApprove bool
	cachedSignature string
	cachedTools     []Tool
	pendingExecs    map[string]pendingExec

	pendingRequests int64
	pendingMu       sync.Mutex
}

// Config constructs a LocalHandle.
type Config struct {
	Agent    domain.AgentConfig
	Provider Provider
	Store    statestore.Store // nil disables persistence
	Tools    []Tool
	Retry    retry.Config
}

func NewLocalHandle(cfg Config) (*LocalHandle, error) {
	h := &LocalHandle{
		cfg:          cfg.Agent,
		provider:     cfg.Provider,
		store:        cfg.Store,
		tracer:       telemetry.New("agentworker.worker"),
		retryCfg:     cfg.Retry,
		tools:        cfg.Tools,
		pendingExecs: make(map[string]pendingExec),
	}

	if h.store != nil {
		state, err := h.store.Load(cfg.Agent.Name)
		if err != nil {
			return nil, fmt.Errorf("worker: load state for %q: %w", cfg.Agent.Name, err)
		}
		if state != nil {
			h.state = *state
		}
	}
	if h.state.ID == "" {
		h.state = domain.SessionState{ID: uuid.NewString(), CreatedAt: time.Now()}
	}
	return h, nil
}

func (h *LocalHandle) PendingRequests() int64 {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return h.pendingRequests
}

func (h *LocalHandle) beginRequest() {
	h.pendingMu.Lock()
	h.pendingRequests++
	h.pendingMu.Unlock()
}

func (h *LocalHandle) endRequest() {
	h.pendingMu.Lock()
	h.pendingRequests--
	h.pendingMu.Unlock()
}

func (h *LocalHandle) GetState() domain.SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneState(h.state)
}

func cloneState(s domain.SessionState) domain.SessionState {
	out := s
	out.Messages = append([]domain.AgentMessage(nil), s.Messages...)
	out.PendingApprovals = append([]domain.PendingApproval(nil), s.PendingApprovals...)
	return out
}

// Send runs one non-streaming turn.
func (h *LocalHandle) Send(ctx context.Context, input string, opts SendOptions) (domain.AgentResponse, error) {
	return h.turn(ctx, input, opts, nil)
}

// SendStream runs one turn, invoking onChunk as assistant text becomes
// available (a stub Provider delivers the whole reply as a single
// chunk; a token-streaming provider would call onChunk incrementally).
func (h *LocalHandle) SendStream(ctx context.Context, input string, opts SendOptions, onChunk func(string)) (domain.AgentResponse, error) {
	return h.turn(ctx, input, opts, onChunk)
}

func (h *LocalHandle) turn(ctx context.Context, input string, opts SendOptions, onChunk func(string)) (domain.AgentResponse, error) {
	h.beginRequest()
	defer h.endRequest()
	h.turnMu.Lock()
	defer h.turnMu.Unlock()

	ctx, end := h.tracer.Start(ctx, "worker.turn")
	defer end()

	start := time.Now()

	h.mu.Lock()

	// Step 1: append the user turn.
	h.state.Messages = append(h.state.Messages, domain.AgentMessage{
		Role:      domain.RoleUser,
		Content:   input,
		Status:    domain.StatusComplete,
		Timestamp: time.Now(),
	})

	// Step 2 (streaming only): append the in-place responding entry.
	streaming := onChunk != nil
	var assistantIdx int
	if streaming {
		h.state.Messages = append(h.state.Messages, domain.AgentMessage{
			Role:      domain.RoleAssistant,
			Status:    domain.StatusResponding,
			Timestamp: time.Now(),
		})
		assistantIdx = len(h.state.Messages) - 1
	}

	// Step 3: build provider input from complete entries only.
	var messages []Message
	for _, m := range h.state.Messages {
		if m.Status != domain.StatusComplete {
			continue
		}
		messages = append(messages, Message{Role: string(m.Role), Content: m.Content})
	}

	tools := h.wrappedToolsLocked(opts.autoApprove())
	h.mu.Unlock()

	req := StepRequest{
		Model:     h.cfg.Model,
		System:    h.cfg.System,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: defaultMaxTokens,
		MaxSteps:  defaultMaxSteps,
	}

	var steps []Step
	result, err := retry.Do(ctx, h.retryCfg, classifyErr, func() (StepResult, error) {
		steps = nil
		return h.provider.RunSteps(ctx, req, func(s Step) {
			steps = append(steps, s)
			if opts.OnStepFinish != nil {
				opts.OnStepFinish(s)
			}
		})
	})
	if err != nil {
		return domain.AgentResponse{}, err
	}

	if streaming && onChunk != nil {
		onChunk(result.Content)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Step 6/7: finalize the assistant entry.
	if streaming {
		h.state.Messages[assistantIdx].Content = result.Content
		h.state.Messages[assistantIdx].Status = domain.StatusComplete
		h.state.Messages[assistantIdx].Timestamp = time.Now()
	} else {
		h.state.Messages = append(h.state.Messages, domain.AgentMessage{
			Role:      domain.RoleAssistant,
			Content:   result.Content,
			Status:    domain.StatusComplete,
			Timestamp: time.Now(),
		})
	}

	// Step 8: accumulate usage.
	turnUsage := domain.TokenUsage{Input: result.Usage.Input, Output: result.Usage.Output, Total: result.Usage.Total}
	h.state.TotalUsage = h.state.TotalUsage.Add(turnUsage)

	// Step 9: step-cap warning is an operational signal, not an error.
	if result.StepCapHit {
		slog.Warn("worker.turn.step_cap_reached", "agent", h.cfg.Name, "maxSteps", defaultMaxSteps)
	}

	var toolCalls []domain.ToolCall
	for _, s := range steps {
		for _, tc := range s.ToolCalls {
			toolCalls = append(toolCalls, domain.ToolCall{Name: tc.Name, Arguments: tc.Arguments, Result: tc.Result, TimingMs: tc.TimingMs})
		}
	}

	var stillPending []domain.PendingApproval
	for _, pa := range h.state.PendingApprovals {
		if pa.Status == domain.ApprovalPending {
			stillPending = append(stillPending, pa)
		}
	}

	if h.store != nil {
		if err := h.store.Save(h.cfg.Name, cloneState(h.state)); err != nil {
			slog.Warn("worker.turn.persist_failed", "agent", h.cfg.Name, "error", err)
		}
	}

	latency := time.Since(start).Milliseconds()
	return domain.AgentResponse{
		Content:          result.Content,
		ToolCalls:        toolCalls,
		PendingApprovals: stillPending,
		Usage:            turnUsage,
		LatencyMs:        latency,
	}, nil
}

// wrappedToolsLocked returns the approval-wrapped tool set, rebuilding
// the cache whenever the tool set or autoApprove has changed. Must be
// called with h.mu held.
func (h *LocalHandle) wrappedToolsLocked(autoApprove bool) []Tool {
	sig := toolSignature(h.tools, autoApprove)
	if sig == h.cachedSignature && h.cachedTools != nil {
		return h.cachedTools
	}

	wrapped := make([]Tool, len(h.tools))
	for i, t := range h.tools {
		wrapped[i] = h.wrapApproval(t, autoApprove)
	}
	h.cachedSignature = sig
	h.cachedTools = wrapped
	h.lastAutoApprove = autoApprove
	return wrapped
}

func toolSignature(tools []Tool, autoApprove bool) string {
	sig := fmt.Sprintf("auto=%v", autoApprove)
	for _, t := range tools {
		sig += "|" + t.Name
	}
	return sig
}

// wrapApproval replaces t.Execute with one that, when autoApprove is
// false and t.Approve returns true for the call's arguments, records a
// PendingApproval and returns the approval-required sentinel instead of
// running the tool. The provider-facing schema is unchanged.
func (h *LocalHandle) wrapApproval(t Tool, autoApprove bool) Tool {
	if autoApprove || t.Approve == nil {
		return t
	}

	original := t.Execute
	gated := t
	gated.Execute = func(ctx context.Context, args map[string]any) (any, error) {
		if !t.Approve(args) {
			return original(ctx, args)
		}

		h.mu.Lock()
		id := "appr_" + uuid.NewString()
		pa := domain.PendingApproval{
			ID:          id,
			ToolName:    t.Name,
			ToolCallID:  uuid.NewString(),
			Arguments:   args,
			RequestedAt: time.Now(),
			Status:      domain.ApprovalPending,
		}
		h.state.PendingApprovals = append(h.state.PendingApprovals, pa)
		h.pendingExecs[id] = pendingExec{tool: t, args: args}
		h.mu.Unlock()

		return map[string]any{"approvalRequired": true, "approvalId": id}, nil
	}
	return gated
}

var (
	ErrApprovalNotFound = fmt.Errorf("worker: approval not found or already resolved")
)

// Approve runs the real tool for a pending approval and marks it
// approved, returning the tool's result; if the tool returns an error the
// approval is marked denied with that error as its reason. Unknown or
// already-resolved ids are rejected.
func (h *LocalHandle) Approve(ctx context.Context, approvalID string) (any, error) {
	h.mu.Lock()
	entry, ok := h.pendingExecs[approvalID]
	if !ok {
		h.mu.Unlock()
		return nil, ErrApprovalNotFound
	}
	delete(h.pendingExecs, approvalID)
	h.mu.Unlock()

	result, err := entry.tool.Execute(ctx, entry.args)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.state.PendingApprovals {
		if h.state.PendingApprovals[i].ID == approvalID {
			if err != nil {
				h.state.PendingApprovals[i].Status = domain.ApprovalDenied
				h.state.PendingApprovals[i].DenyReason = err.Error()
			} else {
				h.state.PendingApprovals[i].Status = domain.ApprovalApproved
			}
		}
	}
	return result, err
}

// Deny marks a pending approval denied without running the tool.
// Unknown or already-resolved ids are rejected.
func (h *LocalHandle) Deny(approvalID, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pendingExecs[approvalID]; !ok {
		return ErrApprovalNotFound
	}
	delete(h.pendingExecs, approvalID)

	for i := range h.state.PendingApprovals {
		if h.state.PendingApprovals[i].ID == approvalID {
			h.state.PendingApprovals[i].Status = domain.ApprovalDenied
			h.state.PendingApprovals[i].DenyReason = reason
			return nil
		}
	}
	return ErrApprovalNotFound
}
