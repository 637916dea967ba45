package workflow

import (
	"context"
	"errors"
	"log"
	"time"
)

// adapterResult carries the outcome of one in-flight adapter call.
type adapterResult struct {
	output string
	err    error
}

// runStep drives one record to a terminal state: invoke, classify, retry with
// exponential backoff, give up after MaxRetries extra attempts.
func (c *Coordinator) runStep(ctx context.Context, ex *execution, def StepDefinition, adapter Adapter, input map[string]string) {
	maxAttempts := def.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ex.markRunning(def.ID, attempt)

		output, err := c.invokeOnce(ctx, def, adapter, input)
		if err == nil {
			ex.markSucceeded(def.ID, output)
			return
		}

		stepErr := classify(ctx, def, err)
		if stepErr.Kind == ErrorKindCancelled {
			// Cancellation is never retried.
			ex.markFailed(def.ID, stepErr)
			return
		}

		if attempt == maxAttempts {
			ex.markFailed(def.ID, stepErr)
			return
		}

		// Attempt failed with retries left: remember the error, back off, go again.
		ex.noteAttemptError(def.ID, stepErr)
		delay := backoffDelay(c.cfg.BackoffBase, c.cfg.BackoffCap, attempt)
		log.Printf("step %s attempt %d/%d failed (%s), retrying in %s", def.ID, attempt, maxAttempts, stepErr.Kind, delay)

		select {
		case <-ctx.Done():
			ex.markFailed(def.ID, &StepError{Kind: ErrorKindCancelled, Message: ctx.Err().Error()})
			return
		case <-time.After(delay):
		}
	}
}

// invokeOnce runs a single adapter attempt under the step's timeout budget.
// The call itself happens in a goroutine with a buffered result channel: if
// the budget expires the call is abandoned and its eventual result, if any,
// is discarded.
func (c *Coordinator) invokeOnce(ctx context.Context, def StepDefinition, adapter Adapter, input map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	resultCh := make(chan adapterResult, 1)
	go func() {
		output, err := adapter.Invoke(attemptCtx, def.ID, input)
		resultCh <- adapterResult{output: output, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.output, res.err
	case <-attemptCtx.Done():
		return "", attemptCtx.Err()
	}
}

// classify maps a raw attempt error onto the error taxonomy. The parent
// context decides between cancellation and a per-attempt timeout.
func classify(ctx context.Context, def StepDefinition, err error) *StepError {
	if ctx.Err() != nil {
		return &StepError{Kind: ErrorKindCancelled, Message: ctx.Err().Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &StepError{
			Kind:    ErrorKindTimeout,
			Message: "adapter call exceeded " + def.Timeout().String(),
		}
	}
	return &StepError{Kind: ErrorKindAdapter, Message: err.Error()}
}

// backoffDelay computes base * 2^attempt, capped at limit.
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if limit <= 0 {
		limit = 30 * time.Second
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}
