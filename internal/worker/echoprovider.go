package worker

import (
	"context"
	"fmt"
)

// EchoProvider is an illustrative, test/demo Provider: it runs no tool
// loop and reflects the last user message back, with a token usage
// estimate proportional to message length. It exists so the daemon has
// something to bind an agent to when no concrete SDK-backed provider is
// configured — loading real provider client libraries is out of scope
// here.
type EchoProvider struct {
	Prefix string // defaults to "echo: "
}

func (p *EchoProvider) prefix() string {
	if p.Prefix != "" {
		return p.Prefix
	}
	return "echo: "
}

func (p *EchoProvider) RunSteps(ctx context.Context, req StepRequest, onStep func(Step)) (StepResult, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}

	content := fmt.Sprintf("%s%s", p.prefix(), last)
	usage := Usage{
		Input:  int64(len(last)),
		Output: int64(len(content)),
	}
	usage.Total = usage.Input + usage.Output

	step := Step{Number: 1, Usage: usage}
	if onStep != nil {
		onStep(step)
	}

	return StepResult{
		Content: content,
		Steps:   []Step{step},
		Usage:   usage,
	}, nil
}
