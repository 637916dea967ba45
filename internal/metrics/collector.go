package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// AgentStats aggregates per-agent step outcomes.
type AgentStats struct {
	Runs        int     `json:"runs"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
	AvgMillis   float64 `json:"avg_latency_ms"`
}

// Summary is the exported metrics snapshot.
type Summary struct {
	Timestamp     time.Time             `json:"timestamp"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	StepsTotal    int                   `json:"steps_total"`
	StepsFailed   int                   `json:"steps_failed"`
	PerAgent      map[string]AgentStats `json:"per_agent"`
}

type stepKey struct {
	executionID string
	stepID      string
}

// Collector derives latency and success-rate figures from the coordinator's
// step event stream. It holds no reference into live executions; everything
// it knows arrives through events.
type Collector struct {
	mu        sync.Mutex
	startedAt time.Time
	starts    map[stepKey]time.Time
	runs      map[string]int
	successes map[string]int
	failures  map[string]int
	latencies map[string]time.Duration // summed, for averages
}

func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
		starts:    make(map[stepKey]time.Time),
		runs:      make(map[string]int),
		successes: make(map[string]int),
		failures:  make(map[string]int),
		latencies: make(map[string]time.Duration),
	}
}

// Consume drains events from ch until it is closed or ctx expires. Run it in
// its own goroutine with a bus subscription.
func (c *Collector) Consume(ctx context.Context, ch <-chan protocol.StepEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(ev)
		}
	}
}

// Observe folds one step event into the aggregates.
func (c *Collector) Observe(ev protocol.StepEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := stepKey{executionID: ev.ExecutionID, stepID: ev.StepID}
	switch workflow.StepState(ev.NewState) {
	case workflow.StepRunning:
		if _, seen := c.starts[key]; !seen {
			c.starts[key] = ev.Timestamp
		}
	case workflow.StepSucceeded, workflow.StepFailed:
		agentID := ev.AgentID
		c.runs[agentID]++
		if workflow.StepState(ev.NewState) == workflow.StepSucceeded {
			c.successes[agentID]++
		} else {
			c.failures[agentID]++
		}
		if start, ok := c.starts[key]; ok {
			c.latencies[agentID] += ev.Timestamp.Sub(start)
			delete(c.starts, key)
		}
	}
}

// Snapshot exports the current aggregates.
func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		PerAgent:      make(map[string]AgentStats, len(c.runs)),
	}
	for agentID, runs := range c.runs {
		stats := AgentStats{
			Runs:      runs,
			Successes: c.successes[agentID],
			Failures:  c.failures[agentID],
		}
		if runs > 0 {
			stats.SuccessRate = float64(stats.Successes) / float64(runs)
			stats.AvgMillis = float64(c.latencies[agentID].Milliseconds()) / float64(runs)
		}
		s.PerAgent[agentID] = stats
		s.StepsTotal += runs
		s.StepsFailed += stats.Failures
	}
	return s
}

// ErrorRate returns the overall fraction of failed steps, 0 when nothing ran.
func (c *Collector) ErrorRate() float64 {
	s := c.Snapshot()
	if s.StepsTotal == 0 {
		return 0
	}
	return float64(s.StepsFailed) / float64(s.StepsTotal)
}
