package monitoring

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
)

// HealthStatus values for individual checks and the aggregate report.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// AlertSeverity levels.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a raised monitoring condition.
type Alert struct {
	ID        string        `json:"id"`
	Severity  AlertSeverity `json:"severity"`
	Component string        `json:"component"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Resolved  bool          `json:"resolved"`
}

// CheckFunc evaluates one health condition.
type CheckFunc func() protocol.CheckResult

// Service runs periodic health checks and dispatches alerts to registered
// handlers. Handlers run on the service goroutine; a slow handler delays the
// next check cycle, keep them quick.
type Service struct {
	interval time.Duration

	mu       sync.Mutex
	checks   map[string]CheckFunc
	last     map[string]protocol.CheckResult
	alerts   []Alert
	open     map[string]string // component -> open alert id
	handlers []func(Alert)
}

func NewService(interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		interval: interval,
		checks:   make(map[string]CheckFunc),
		last:     make(map[string]protocol.CheckResult),
		open:     make(map[string]string),
	}
}

// RegisterCheck adds a named health check.
func (s *Service) RegisterCheck(name string, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = fn
}

// OnAlert registers a delivery handler for raised and resolved alerts.
func (s *Service) OnAlert(fn func(Alert)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
}

// Start begins the periodic check loop. It returns immediately.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunChecks()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunChecks()
			}
		}
	}()
}

// RunChecks evaluates every registered check once, raising an alert for each
// check that turns unhealthy and resolving it when the check recovers.
func (s *Service) RunChecks() {
	s.mu.Lock()
	names := make([]string, 0, len(s.checks))
	fns := make([]CheckFunc, 0, len(s.checks))
	for name, fn := range s.checks {
		names = append(names, name)
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for i, fn := range fns {
		result := fn()
		name := names[i]

		s.mu.Lock()
		prev := s.last[name]
		s.last[name] = result
		s.mu.Unlock()

		if result.Status != StatusHealthy && prev.Status != result.Status {
			severity := SeverityWarning
			if result.Status == StatusUnhealthy {
				severity = SeverityError
			}
			s.Raise(severity, name, result.Message)
		}
		if result.Status == StatusHealthy && prev.Status != "" && prev.Status != StatusHealthy {
			s.resolve(name)
		}
	}
}

// Raise records a new alert for a component and notifies handlers. A second
// raise for the same component replaces the open alert.
func (s *Service) Raise(severity AlertSeverity, component, message string) Alert {
	alert := Alert{
		ID:        uuid.New().String(),
		Severity:  severity,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.open[component] = alert.ID
	handlers := append([]func(Alert){}, s.handlers...)
	s.mu.Unlock()

	log.Printf("alert [%s] %s: %s", severity, component, message)
	for _, h := range handlers {
		h(alert)
	}
	return alert
}

func (s *Service) resolve(component string) {
	s.mu.Lock()
	id, ok := s.open[component]
	var resolved Alert
	if ok {
		delete(s.open, component)
		for i := range s.alerts {
			if s.alerts[i].ID == id {
				s.alerts[i].Resolved = true
				resolved = s.alerts[i]
				break
			}
		}
	}
	handlers := append([]func(Alert){}, s.handlers...)
	s.mu.Unlock()

	if !ok {
		return
	}
	log.Printf("alert resolved: %s", component)
	for _, h := range handlers {
		h(resolved)
	}
}

// Alerts returns the recorded alerts, newest last.
func (s *Service) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert{}, s.alerts...)
}

// Health aggregates the latest check results into a report. The aggregate is
// the worst individual status.
func (s *Service) Health() protocol.HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := protocol.HealthReport{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]protocol.CheckResult, len(s.last)),
	}
	for name, result := range s.last {
		report.Checks[name] = result
		switch result.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// ErrorRateCheck flags a degraded orchestrator when the step failure rate
// crosses threshold.
func ErrorRateCheck(rate func() float64, threshold float64) CheckFunc {
	return func() protocol.CheckResult {
		r := rate()
		if r >= threshold {
			return protocol.CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("step error rate %.0f%% above threshold", r*100),
			}
		}
		return protocol.CheckResult{Status: StatusHealthy}
	}
}

// HistoryPressureCheck warns when history retention is saturated and old
// executions are being evicted.
func HistoryPressureCheck(size func() int, limit int) CheckFunc {
	return func() protocol.CheckResult {
		if limit > 0 && size() >= limit {
			return protocol.CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("history at capacity (%d), oldest runs are being evicted", limit),
			}
		}
		return protocol.CheckResult{Status: StatusHealthy}
	}
}
