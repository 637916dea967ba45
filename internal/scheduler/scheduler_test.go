package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

type recordingRunner struct {
	mu     sync.Mutex
	starts []string
}

func (r *recordingRunner) StartWorkflow(def workflow.WorkflowDefinition, input map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, def.Name)
	return "exec-id", nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts)
}

func testDef() workflow.WorkflowDefinition {
	return workflow.WorkflowDefinition{
		Name:  "nightly",
		Steps: []workflow.StepDefinition{{ID: "only", AgentID: "planner", TimeoutSeconds: 10}},
	}
}

func TestScheduler_IntervalTriggersRuns(t *testing.T) {
	runner := &recordingRunner{}
	s := New(runner)
	if err := s.ScheduleInterval("fast", 20*time.Millisecond, testDef(), nil); err != nil {
		t.Fatalf("ScheduleInterval failed: %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runner.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runner.count() < 2 {
		t.Fatalf("only %d runs triggered", runner.count())
	}
}

func TestScheduler_CancelStopsTriggering(t *testing.T) {
	runner := &recordingRunner{}
	s := New(runner)
	if err := s.ScheduleInterval("fast", 10*time.Millisecond, testDef(), nil); err != nil {
		t.Fatalf("ScheduleInterval failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	if !s.Cancel("fast") {
		t.Fatal("Cancel returned false for existing schedule")
	}
	if s.Cancel("fast") {
		t.Error("Cancel returned true for removed schedule")
	}

	before := runner.count()
	time.Sleep(50 * time.Millisecond)
	if runner.count() != before {
		t.Error("cancelled schedule kept firing")
	}
}

func TestScheduler_RejectsDuplicateAndBadSpecs(t *testing.T) {
	s := New(&recordingRunner{})

	if err := s.ScheduleCron("daily", "0 3 * * *", testDef(), nil); err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
	if err := s.ScheduleCron("daily", "0 4 * * *", testDef(), nil); err == nil {
		t.Error("duplicate schedule id accepted")
	}
	if err := s.ScheduleCron("broken", "not a cron", testDef(), nil); err == nil {
		t.Error("invalid cron spec accepted")
	}
	if err := s.ScheduleInterval("zero", 0, testDef(), nil); err == nil {
		t.Error("non-positive interval accepted")
	}
}

func TestScheduler_EntriesListsSchedules(t *testing.T) {
	s := New(&recordingRunner{})
	s.ScheduleCron("daily", "0 3 * * *", testDef(), nil)
	s.ScheduleInterval("hourly", time.Hour, testDef(), nil)

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Workflow != "nightly" {
			t.Errorf("entry %s workflow = %q", e.ID, e.Workflow)
		}
	}
}
