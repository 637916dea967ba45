package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// LLMAdapter wraps a prompt template around the completion client. Each of
// the stock roles (planner, executor, reviewer) is one of these with its own
// system prompt.
type LLMAdapter struct {
	id           string
	systemPrompt string
	template     string
	client       *Client
}

func NewLLMAdapter(id, systemPrompt, template string, client *Client) *LLMAdapter {
	return &LLMAdapter{
		id:           id,
		systemPrompt: systemPrompt,
		template:     template,
		client:       client,
	}
}

// Invoke implements workflow.Adapter. Retried attempts re-send the same
// prompt; completions have no side effects, so the repeated-attempt caveat of
// the adapter contract is trivially satisfied here.
func (a *LLMAdapter) Invoke(ctx context.Context, stepID string, input map[string]string) (string, error) {
	prompt := interpolate(a.template, input)
	out, err := a.client.Complete(ctx, a.systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("agent %s (step %s): %w", a.id, stepID, err)
	}
	return out, nil
}

// interpolate substitutes {{var}} placeholders. Unknown placeholders are left
// in place so missing inputs are visible in the produced prompt.
func interpolate(text string, vars map[string]string) string {
	for k, v := range vars {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	return text
}

const plannerSystemPrompt = `You are a project planning agent. You decompose
objectives into ordered, manageable tasks, prioritize by impact and
dependency, and produce realistic schedules. Respond with a numbered work
plan in markdown.`

const plannerTemplate = `Analyze the following backlog and produce an ordered work plan.

Backlog:
{{backlog}}`

const executorSystemPrompt = `You are an execution agent. You take a work plan
and carry out each task, reporting concretely what was done and what output
was produced. Respond with a markdown execution report.`

const executorTemplate = `Execute the following work plan and report the result of each task.

Plan:
{{planner_result}}`

const reviewerSystemPrompt = `You are a code and quality review agent. You
evaluate completed work, identify bugs, performance problems and standards
violations, and suggest improvements. Respond with a markdown review.`

const reviewerTemplate = `Review the following execution report. Point out problems and suggest improvements.

Report:
{{executor_result}}`

// NewPlanner returns the stock planning adapter.
func NewPlanner(client *Client) *LLMAdapter {
	return NewLLMAdapter(workflow.AgentPlanner, plannerSystemPrompt, plannerTemplate, client)
}

// NewExecutor returns the stock execution adapter.
func NewExecutor(client *Client) *LLMAdapter {
	return NewLLMAdapter(workflow.AgentExecutor, executorSystemPrompt, executorTemplate, client)
}

// NewReviewer returns the stock review adapter.
func NewReviewer(client *Client) *LLMAdapter {
	return NewLLMAdapter(workflow.AgentReviewer, reviewerSystemPrompt, reviewerTemplate, client)
}
