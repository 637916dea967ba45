package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/agent"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/config"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/metrics"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/monitoring"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/scheduler"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// captureWriter records every message sent through it.
type captureWriter struct {
	sent []protocol.RPCMessage
}

func (w *captureWriter) Send(msg interface{}) error {
	w.sent = append(w.sent, msg.(protocol.RPCMessage))
	return nil
}

func (w *captureWriter) last(t *testing.T) protocol.RPCMessage {
	t.Helper()
	if len(w.sent) == 0 {
		t.Fatal("no message sent")
	}
	return w.sent[len(w.sent)-1]
}

type echoAdapter struct{}

func (echoAdapter) Invoke(ctx context.Context, stepID string, input map[string]string) (string, error) {
	return "done " + stepID, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	registry := agent.NewRegistry()
	registry.Register(workflow.AgentPlanner, echoAdapter{})
	registry.Register(workflow.AgentExecutor, echoAdapter{})
	registry.Register(workflow.AgentReviewer, echoAdapter{})

	coord := workflow.New(workflow.Config{BackoffBase: time.Millisecond}, registry)
	store, err := config.NewStoreAt(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create settings store: %v", err)
	}
	return NewHandler(coord, registry, metrics.NewCollector(), monitoring.NewService(time.Minute), scheduler.New(coord), store)
}

func request(t *testing.T, msgType string, payload interface{}) protocol.RPCMessage {
	t.Helper()
	return protocol.RPCMessage{
		ID:      1,
		Type:    msgType,
		Payload: protocol.EncodeRPC(payload),
	}
}

func TestHandleMessage_StartAndGetExecution(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "start_workflow", map[string]interface{}{
		"workflow": "standard",
		"input":    map[string]string{"backlog": "ship it"},
	}), w)

	resp := w.last(t)
	if resp.Error != "" {
		t.Fatalf("start_workflow error: %s", resp.Error)
	}
	if resp.Type != "workflow_started" {
		t.Fatalf("response type = %s", resp.Type)
	}
	var started struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(resp.Payload, &started); err != nil {
		t.Fatal(err)
	}

	// Poll until the run finishes to exercise get_execution on both states.
	deadline := time.Now().Add(5 * time.Second)
	for {
		h.HandleMessage(request(t, "get_execution", map[string]string{"execution_id": started.ExecutionID}), w)
		resp = w.last(t)
		if resp.Error != "" {
			t.Fatalf("get_execution error: %s", resp.Error)
		}
		var snap workflow.Snapshot
		if err := json.Unmarshal(resp.Payload, &snap); err != nil {
			t.Fatal(err)
		}
		if snap.State == workflow.ExecutionCompleted {
			if snap.Records[workflow.AgentReviewer].State != workflow.StepSucceeded {
				t.Errorf("reviewer state = %s", snap.Records[workflow.AgentReviewer].State)
			}
			break
		}
		if snap.State == workflow.ExecutionFailed {
			t.Fatalf("execution failed: %+v", snap)
		}
		if time.Now().After(deadline) {
			t.Fatal("execution did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleMessage_GetExecutionUnknownID(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "get_execution", map[string]string{"execution_id": "missing"}), w)
	if w.last(t).Error == "" {
		t.Error("expected error for unknown execution id")
	}
}

func TestHandleMessage_ListAgents(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "list_agents", nil), w)
	resp := w.last(t)
	var payload struct {
		Agents []string `json:"agents"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Agents) != 3 {
		t.Errorf("agents = %v", payload.Agents)
	}
}

func TestHandleMessage_CancelMissingExecution(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "cancel_execution", map[string]string{"execution_id": "nope"}), w)
	resp := w.last(t)
	var payload struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Cancelled {
		t.Error("cancelled a nonexistent execution")
	}
}

func TestHandleMessage_ScheduleLifecycle(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "schedule_workflow", map[string]interface{}{
		"schedule_id": "daily",
		"workflow":    "standard",
		"cron":        "0 3 * * *",
	}), w)
	if resp := w.last(t); resp.Error != "" || resp.Type != "workflow_scheduled" {
		t.Fatalf("schedule response = %+v", resp)
	}

	h.HandleMessage(request(t, "list_schedules", nil), w)
	var listed struct {
		Schedules []scheduler.Entry `json:"schedules"`
	}
	if err := json.Unmarshal(w.last(t).Payload, &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Schedules) != 1 || listed.Schedules[0].ID != "daily" {
		t.Fatalf("schedules = %+v", listed.Schedules)
	}

	h.HandleMessage(request(t, "cancel_schedule", map[string]string{"schedule_id": "daily"}), w)
	var cancelled struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.Unmarshal(w.last(t).Payload, &cancelled); err != nil {
		t.Fatal(err)
	}
	if !cancelled.Cancelled {
		t.Error("cancel_schedule reported false")
	}
}

func TestHandleMessage_ScheduleRequiresTrigger(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "schedule_workflow", map[string]interface{}{
		"schedule_id": "bare",
		"workflow":    "standard",
	}), w)
	if w.last(t).Error == "" {
		t.Error("expected error without cron or interval")
	}
}

func TestHandleMessage_UnknownType(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "bogus_type", nil), w)
	if w.last(t).Error == "" {
		t.Error("expected error for unknown message type")
	}
}

func TestHandleMessage_GetAndUpdateSettings(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "get_settings", nil), w)
	resp := w.last(t)
	if resp.Type != "settings" || resp.Error != "" {
		t.Fatalf("get_settings response = %+v", resp)
	}
	var settings config.Settings
	if err := json.Unmarshal(resp.Payload, &settings); err != nil {
		t.Fatal(err)
	}
	if settings.Orchestrator.MaxWorkers != 5 {
		t.Fatalf("default max_workers = %d", settings.Orchestrator.MaxWorkers)
	}

	settings.Orchestrator.MaxWorkers = 2
	settings.Monitoring.ErrorRateThreshold = 0.25
	h.HandleMessage(request(t, "update_settings", map[string]interface{}{
		"orchestrator": settings.Orchestrator,
		"monitoring":   settings.Monitoring,
	}), w)
	resp = w.last(t)
	if resp.Type != "settings_saved" || resp.Error != "" {
		t.Fatalf("update_settings response = %+v", resp)
	}

	// The store must hold the new values, not just the reply payload.
	got := h.Settings.Get()
	if got.Orchestrator.MaxWorkers != 2 {
		t.Errorf("max_workers after update = %d, want 2", got.Orchestrator.MaxWorkers)
	}
	if got.Monitoring.ErrorRateThreshold != 0.25 {
		t.Errorf("error_rate_threshold after update = %v, want 0.25", got.Monitoring.ErrorRateThreshold)
	}
	// Sections absent from the payload stay untouched.
	if len(got.Providers) == 0 {
		t.Error("providers section wiped by a partial update")
	}
}

func TestHandleMessage_UpdateSettingsInvalidPayload(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(protocol.RPCMessage{
		ID:      1,
		Type:    "update_settings",
		Payload: json.RawMessage("{not json"),
	}, w)
	if w.last(t).Error == "" {
		t.Error("expected error for malformed payload")
	}
}

func TestHandleMessage_ListAlerts(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "list_alerts", nil), w)
	var empty struct {
		Alerts []monitoring.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(w.last(t).Payload, &empty); err != nil {
		t.Fatal(err)
	}
	if len(empty.Alerts) != 0 {
		t.Fatalf("fresh service reported alerts: %+v", empty.Alerts)
	}

	h.Monitor.Raise(monitoring.SeverityWarning, "history", "retention saturated")

	h.HandleMessage(request(t, "list_alerts", nil), w)
	resp := w.last(t)
	if resp.Type != "alert_list" || resp.Error != "" {
		t.Fatalf("list_alerts response = %+v", resp)
	}
	var payload struct {
		Alerts []monitoring.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Alerts) != 1 {
		t.Fatalf("alerts = %+v", payload.Alerts)
	}
	if payload.Alerts[0].Component != "history" || payload.Alerts[0].Resolved {
		t.Errorf("alert = %+v", payload.Alerts[0])
	}
}

func TestHandleMessage_GetHealthAndMetrics(t *testing.T) {
	h := newTestHandler(t)
	w := &captureWriter{}

	h.HandleMessage(request(t, "get_health", nil), w)
	if resp := w.last(t); resp.Type != "health" || resp.Error != "" {
		t.Errorf("health response = %+v", resp)
	}

	h.HandleMessage(request(t, "get_metrics", nil), w)
	resp := w.last(t)
	if resp.Type != "metrics" || resp.Error != "" {
		t.Errorf("metrics response = %+v", resp)
	}
	var summary metrics.Summary
	if err := json.Unmarshal(resp.Payload, &summary); err != nil {
		t.Fatal(err)
	}
}
