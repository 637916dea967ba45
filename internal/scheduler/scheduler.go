package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// Runner starts workflow executions. Satisfied by *workflow.Coordinator.
type Runner interface {
	StartWorkflow(def workflow.WorkflowDefinition, input map[string]string) (string, error)
}

// Entry describes one scheduled workflow trigger.
type Entry struct {
	ID       string    `json:"id"`
	Workflow string    `json:"workflow"`
	Spec     string    `json:"spec"`
	Next     time.Time `json:"next"`
}

// Scheduler triggers workflows on cron expressions or fixed intervals.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	cronID   cron.EntryID
	workflow workflow.WorkflowDefinition
	spec     string
}

func New(runner Runner) *Scheduler {
	return &Scheduler{
		runner:  runner,
		cron:    cron.New(),
		entries: make(map[string]scheduledEntry),
	}
}

// ScheduleCron registers a workflow on a standard 5-field cron expression.
func (s *Scheduler) ScheduleCron(id, spec string, def workflow.WorkflowDefinition, input map[string]string) error {
	return s.schedule(id, spec, def, func() (cron.EntryID, error) {
		return s.cron.AddFunc(spec, s.trigger(id, def, input))
	})
}

// ScheduleInterval registers a workflow to run every d.
func (s *Scheduler) ScheduleInterval(id string, d time.Duration, def workflow.WorkflowDefinition, input map[string]string) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	spec := fmt.Sprintf("@every %s", d)
	return s.schedule(id, spec, def, func() (cron.EntryID, error) {
		return s.cron.Schedule(cron.Every(d), cron.FuncJob(s.trigger(id, def, input))), nil
	})
}

func (s *Scheduler) schedule(id, spec string, def workflow.WorkflowDefinition, add func() (cron.EntryID, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("schedule %q already exists", id)
	}
	cronID, err := add()
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entries[id] = scheduledEntry{cronID: cronID, workflow: def, spec: spec}
	log.Printf("scheduled workflow %q (%s)", def.Name, spec)
	return nil
}

func (s *Scheduler) trigger(id string, def workflow.WorkflowDefinition, input map[string]string) func() {
	return func() {
		execID, err := s.runner.StartWorkflow(def, input)
		if err != nil {
			log.Printf("scheduled run %q failed to start: %v", id, err)
			return
		}
		log.Printf("scheduled run %q started execution %s", id, execID)
	}
}

// Cancel removes a schedule. It does not interrupt executions already started.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(entry.cronID)
	delete(s.entries, id)
	return true
}

// Entries lists active schedules with their next fire time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Entry{
			ID:       id,
			Workflow: e.workflow.Name,
			Spec:     e.spec,
			Next:     s.cron.Entry(e.cronID).Next,
		})
	}
	return out
}

// Start begins firing schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for in-flight trigger callbacks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
