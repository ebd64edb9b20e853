// Package worker implements the agent turn loop (one agent's
// assemble-transcript/call-provider/run-tools/stream cycle) and the
// worker handle abstraction that wraps it for local in-process use.
package worker

import "context"

// Provider is the external LLM collaborator this package drives. It is
// kept as an interface — not a concrete SDK-backed client — since loading
// model-provider client libraries by name is out of scope here; tests
// exercise the turn algorithm against a stub implementation.
type Provider interface {
	// RunSteps drives one bounded think/act/observe loop: repeatedly call
	// the model with the given messages and tools until it stops calling
	// tools or stepCap is reached, invoking onStep once per completed
	// step. Returns the final assistant text and cumulative usage.
	RunSteps(ctx context.Context, req StepRequest, onStep func(Step)) (StepResult, error)
}

// StepRequest is the input to one RunSteps call.
type StepRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []Tool
	MaxTokens int
	MaxSteps  int
}

// Message is one provider-facing transcript entry (complete entries
// only — a responding entry is never sent to the provider).
type Message struct {
	Role    string
	Content string
}

// Tool is one provider-facing tool schema plus its local executor.
// Execute is replaced by an approval-gating wrapper when a tool carries
// an approval predicate and auto-approve is off; the schema exposed to
// the provider never changes.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Execute     func(ctx context.Context, args map[string]any) (any, error)

	// Approve, if non-nil, gates Execute: when it returns true and
	// auto-approve is off, the call becomes a PendingApproval instead of
	// running immediately.
	Approve func(args map[string]any) bool
}

// Step is one completed provider step: zero or more tool calls and their
// results, plus the usage consumed reaching this step.
type Step struct {
	Number    int
	ToolCalls []StepToolCall
	Usage     Usage
}

// StepToolCall is one tool invocation and its outcome within a Step.
type StepToolCall struct {
	Name      string
	Arguments map[string]any
	Result    any
	TimingMs  int64
}

// Usage is token accounting for one provider call.
type Usage struct {
	Input  int64
	Output int64
	Total  int64
}

// StepResult is what RunSteps returns once the loop stops.
type StepResult struct {
	Content      string
	Steps        []Step
	Usage        Usage
	StepCapHit   bool // true if MaxSteps was reached with tool calls still pending
}
