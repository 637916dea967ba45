package workflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
)

// Config tunes the coordinator's scheduling and retention behavior.
type Config struct {
	// MaxWorkers bounds how many steps run concurrently across one execution.
	MaxWorkers int
	// HistoryLimit caps how many finished executions are retained (FIFO eviction).
	HistoryLimit int
	// BackoffBase and BackoffCap parameterize the retry delay base*2^attempt.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Coordinator sequences agent invocations for workflow executions: it
// resolves dependency order, dispatches ready steps to adapters under a
// worker limit, applies retry/timeout policy, and aggregates results into
// bounded execution history.
type Coordinator struct {
	cfg      Config
	registry AdapterRegistry
	bus      *Bus
	history  *History
	// sem bounds concurrent adapter calls across all executions, so a burst
	// of runs cannot overwhelm the model-serving backend.
	sem chan struct{}

	mu   sync.Mutex
	live map[string]*execution
	wg   sync.WaitGroup
}

// execution is the mutable aggregate for one run. Its records map is the only
// shared structure; every mutation goes through the methods below under mu.
type execution struct {
	id        string
	name      string
	startedAt time.Time

	cancel context.CancelFunc
	bus    *Bus

	mu         sync.Mutex
	state      ExecutionState
	finishedAt *time.Time
	records    map[string]*ExecutionRecord
	agents     map[string]string // step id -> agent id, for event payloads
	input      map[string]string
}

// New creates a coordinator. The registry is injected by the process entry
// point; there is no ambient adapter singleton.
func New(cfg Config, registry AdapterRegistry) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:      cfg,
		registry: registry,
		bus:      NewBus(),
		history:  NewHistory(cfg.HistoryLimit),
		sem:      make(chan struct{}, cfg.MaxWorkers),
		live:     make(map[string]*execution),
	}
}

// Events exposes the status-notification bus for observers (dashboard, metrics).
func (c *Coordinator) Events() *Bus {
	return c.bus
}

// StartWorkflow validates the definition, creates pending records for every
// step and begins driving them in the background. It returns the new
// execution id, or a *ConfigurationError before any step runs.
func (c *Coordinator) StartWorkflow(def WorkflowDefinition, input map[string]string) (string, error) {
	if err := validateDefinition(def, c.registry); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ex := &execution{
		id:        uuid.New().String(),
		name:      def.Name,
		startedAt: time.Now(),
		cancel:    cancel,
		bus:       c.bus,
		state:     ExecutionRunning,
		records:   make(map[string]*ExecutionRecord, len(def.Steps)),
		agents:    make(map[string]string, len(def.Steps)),
		input:     make(map[string]string, len(input)),
	}
	for k, v := range input {
		ex.input[k] = v
	}
	for _, step := range def.Steps {
		ex.records[step.ID] = &ExecutionRecord{StepID: step.ID, State: StepPending}
		ex.agents[step.ID] = step.AgentID
	}

	c.mu.Lock()
	c.live[ex.id] = ex
	c.mu.Unlock()

	log.Printf("execution %s started: workflow %q, %d steps", ex.id, def.Name, len(def.Steps))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(ctx, ex, def)
	}()

	return ex.id, nil
}

// run is the dispatch loop: mark skips, launch ready steps, wait for a
// completion, repeat until every record is terminal.
func (c *Coordinator) run(ctx context.Context, ex *execution, def WorkflowDefinition) {
	done := make(chan string, len(def.Steps))
	dispatched := make(map[string]bool, len(def.Steps))
	terminal := 0
	inflight := 0

	for terminal < len(def.Steps) {
		progressed := true
		for progressed {
			progressed = false
			for _, step := range def.Steps {
				if dispatched[step.ID] {
					continue
				}
				switch ex.readiness(step) {
				case stepSkip:
					dispatched[step.ID] = true
					ex.markSkipped(step.ID)
					terminal++
					progressed = true
				case stepRun:
					dispatched[step.ID] = true
					inflight++
					progressed = true
					adapter, _ := c.registry.Lookup(step.AgentID)
					go func(sd StepDefinition) {
						c.sem <- struct{}{}
						defer func() { <-c.sem }()
						c.runStep(ctx, ex, sd, adapter, ex.buildInput(sd))
						done <- sd.ID
					}(step)
				}
			}
		}

		if terminal >= len(def.Steps) {
			break
		}
		if inflight == 0 {
			// Unreachable for a validated DAG, kept as a guard against hangs.
			log.Printf("execution %s: no runnable steps and nothing in flight", ex.id)
			break
		}
		<-done
		inflight--
		terminal++
	}

	c.finalize(ex)
}

// stepAction is the dispatch decision for one pending step.
type stepAction int

const (
	stepWait stepAction = iota // dependencies not terminal yet
	stepRun                    // all dependencies succeeded or skipped
	stepSkip                   // at least one dependency failed
)

func (ex *execution) readiness(def StepDefinition) stepAction {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.records[def.ID].State != StepPending {
		return stepWait
	}
	for _, dep := range def.DependsOn {
		state := ex.records[dep].State
		if state == StepFailed {
			return stepSkip
		}
		if !state.Terminal() {
			return stepWait
		}
	}
	return stepRun
}

// buildInput assembles a step's input payload: the execution's initial
// variables plus every succeeded dependency's output, injected under its
// mapped name or "<dep>_result".
func (ex *execution) buildInput(def StepDefinition) map[string]string {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	input := make(map[string]string, len(ex.input)+len(def.DependsOn))
	for k, v := range ex.input {
		input[k] = v
	}
	for _, dep := range def.DependsOn {
		rec := ex.records[dep]
		if rec.State != StepSucceeded {
			continue
		}
		key := dep + "_result"
		if mapped, ok := def.InputMapping[dep]; ok && mapped != "" {
			key = mapped
		}
		input[key] = rec.Output
	}
	return input
}

func (c *Coordinator) finalize(ex *execution) {
	ex.mu.Lock()
	state := ExecutionCompleted
	for _, rec := range ex.records {
		if rec.State == StepFailed {
			state = ExecutionFailed
			break
		}
	}
	now := time.Now()
	ex.state = state
	ex.finishedAt = &now
	snap := ex.snapshotLocked()
	ex.mu.Unlock()

	c.history.Append(snap)

	c.mu.Lock()
	delete(c.live, ex.id)
	c.mu.Unlock()

	log.Printf("execution %s finished: %s in %s", ex.id, state, now.Sub(ex.startedAt).Round(time.Millisecond))
}

// GetExecution returns an immutable snapshot of a live or finished execution.
func (c *Coordinator) GetExecution(id string) (Snapshot, bool) {
	c.mu.Lock()
	ex, ok := c.live[id]
	c.mu.Unlock()
	if ok {
		return ex.snapshot(), true
	}
	return c.history.Find(id)
}

// CancelExecution propagates cancellation to all running records of a live
// execution. Finished executions are immutable history and cannot be cancelled.
func (c *Coordinator) CancelExecution(id string) bool {
	c.mu.Lock()
	ex, ok := c.live[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	log.Printf("execution %s: cancellation requested", id)
	ex.cancel()
	return true
}

// History lists finished executions, newest first.
func (c *Coordinator) History(limit int) []Snapshot {
	return c.history.List(limit)
}

// Shutdown cancels every live execution and waits for their loops to settle
// or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, ex := range c.live {
		ex.cancel()
	}
	c.mu.Unlock()

	settled := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(settled)
	}()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- record transitions (single writer per record, all under ex.mu) ---

func (ex *execution) emit(stepID string, oldState, newState StepState, attempt int) {
	ex.bus.Publish(protocol.StepEvent{
		ExecutionID: ex.id,
		StepID:      stepID,
		AgentID:     ex.agents[stepID],
		OldState:    string(oldState),
		NewState:    string(newState),
		Attempt:     attempt,
		Timestamp:   time.Now(),
	})
}

func (ex *execution) markRunning(stepID string, attempt int) {
	ex.mu.Lock()
	rec := ex.records[stepID]
	old := rec.State
	rec.State = StepRunning
	rec.Attempt = attempt
	if rec.StartedAt == nil {
		now := time.Now()
		rec.StartedAt = &now
	}
	ex.mu.Unlock()
	ex.emit(stepID, old, StepRunning, attempt)
}

func (ex *execution) markSucceeded(stepID, output string) {
	ex.mu.Lock()
	rec := ex.records[stepID]
	old := rec.State
	rec.State = StepSucceeded
	rec.Output = output
	rec.Error = nil
	now := time.Now()
	rec.FinishedAt = &now
	attempt := rec.Attempt
	ex.mu.Unlock()
	ex.emit(stepID, old, StepSucceeded, attempt)
}

func (ex *execution) markFailed(stepID string, stepErr *StepError) {
	ex.mu.Lock()
	rec := ex.records[stepID]
	old := rec.State
	rec.State = StepFailed
	rec.Error = stepErr
	now := time.Now()
	rec.FinishedAt = &now
	attempt := rec.Attempt
	ex.mu.Unlock()
	ex.emit(stepID, old, StepFailed, attempt)
}

func (ex *execution) markSkipped(stepID string) {
	ex.mu.Lock()
	rec := ex.records[stepID]
	old := rec.State
	rec.State = StepSkipped
	now := time.Now()
	rec.FinishedAt = &now
	ex.mu.Unlock()
	ex.emit(stepID, old, StepSkipped, 0)
}

// noteAttemptError records a non-final attempt failure while the step keeps
// retrying. The record stays running; the error is visible to readers.
func (ex *execution) noteAttemptError(stepID string, stepErr *StepError) {
	ex.mu.Lock()
	ex.records[stepID].Error = stepErr
	ex.mu.Unlock()
}

func (ex *execution) snapshot() Snapshot {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.snapshotLocked()
}

func (ex *execution) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        ex.id,
		Name:      ex.name,
		State:     ex.state,
		StartedAt: ex.startedAt,
		Records:   make(map[string]ExecutionRecord, len(ex.records)),
	}
	if ex.finishedAt != nil {
		t := *ex.finishedAt
		snap.FinishedAt = &t
	}
	for id, rec := range ex.records {
		copied := *rec
		if rec.Error != nil {
			e := *rec.Error
			copied.Error = &e
		}
		if rec.StartedAt != nil {
			t := *rec.StartedAt
			copied.StartedAt = &t
		}
		if rec.FinishedAt != nil {
			t := *rec.FinishedAt
			copied.FinishedAt = &t
		}
		snap.Records[id] = copied
	}
	return snap
}
