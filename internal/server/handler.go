package server

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/agent"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/config"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/metrics"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/monitoring"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/scheduler"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// ResponseWriter interface allows different transports (Stdio, WS) to send responses
type ResponseWriter interface {
	Send(msg interface{}) error
}

// Handler processes RPC messages from connected clients.
type Handler struct {
	Coordinator *workflow.Coordinator
	Registry    *agent.Registry
	Metrics     *metrics.Collector
	Monitor     *monitoring.Service
	Scheduler   *scheduler.Scheduler
	Settings    *config.Store
}

func NewHandler(
	coord *workflow.Coordinator,
	registry *agent.Registry,
	collector *metrics.Collector,
	monitor *monitoring.Service,
	sched *scheduler.Scheduler,
	settings *config.Store,
) *Handler {
	return &Handler{
		Coordinator: coord,
		Registry:    registry,
		Metrics:     collector,
		Monitor:     monitor,
		Scheduler:   sched,
		Settings:    settings,
	}
}

// HandleMessage processes a single RPC message
func (h *Handler) HandleMessage(msg protocol.RPCMessage, writer ResponseWriter) {
	switch msg.Type {
	case "start_workflow":
		h.handleStartWorkflow(msg, writer)

	case "get_execution":
		var payload struct {
			ExecutionID string `json:"execution_id"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid payload: " + err.Error()})
			return
		}
		snap, ok := h.Coordinator.GetExecution(payload.ExecutionID)
		if !ok {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "unknown execution: " + payload.ExecutionID})
			return
		}
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "execution",
			Payload: protocol.EncodeRPC(snap),
		})

	case "cancel_execution":
		var payload struct {
			ExecutionID string `json:"execution_id"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid payload: " + err.Error()})
			return
		}
		cancelled := h.Coordinator.CancelExecution(payload.ExecutionID)
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "execution_cancelled",
			Payload: protocol.EncodeRPC(map[string]interface{}{"cancelled": cancelled}),
		})

	case "list_history":
		var payload struct {
			Limit int `json:"limit"`
		}
		json.Unmarshal(msg.Payload, &payload)
		runs := h.Coordinator.History(payload.Limit)
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "history",
			Payload: protocol.EncodeRPC(map[string]interface{}{"executions": runs}),
		})

	case "get_metrics":
		if h.Metrics == nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "metrics collector not initialized"})
			return
		}
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "metrics",
			Payload: protocol.EncodeRPC(h.Metrics.Snapshot()),
		})

	case "get_health":
		if h.Monitor == nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "monitoring not initialized"})
			return
		}
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "health",
			Payload: protocol.EncodeRPC(h.Monitor.Health()),
		})

	case "list_alerts":
		if h.Monitor == nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "monitoring not initialized"})
			return
		}
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "alert_list",
			Payload: protocol.EncodeRPC(map[string]interface{}{"alerts": h.Monitor.Alerts()}),
		})

	case "get_settings":
		if h.Settings == nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "settings store not initialized"})
			return
		}
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "settings",
			Payload: protocol.EncodeRPC(h.Settings.Get()),
		})

	case "update_settings":
		h.handleUpdateSettings(msg, writer)

	case "list_agents":
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "agent_list",
			Payload: protocol.EncodeRPC(map[string]interface{}{"agents": h.Registry.IDs()}),
		})

	case "schedule_workflow":
		h.handleScheduleWorkflow(msg, writer)

	case "cancel_schedule":
		var payload struct {
			ScheduleID string `json:"schedule_id"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid payload: " + err.Error()})
			return
		}
		if h.Scheduler == nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "scheduler not initialized"})
			return
		}
		removed := h.Scheduler.Cancel(payload.ScheduleID)
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "schedule_cancelled",
			Payload: protocol.EncodeRPC(map[string]interface{}{"cancelled": removed}),
		})

	case "list_schedules":
		if h.Scheduler == nil {
			writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "scheduler not initialized"})
			return
		}
		writer.Send(protocol.RPCMessage{
			ID:      msg.ID,
			Type:    "schedule_list",
			Payload: protocol.EncodeRPC(map[string]interface{}{"schedules": h.Scheduler.Entries()}),
		})

	default:
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "unknown message type: " + msg.Type})
	}
}

// decodeWorkflow resolves the workflow referenced in a payload. An empty or
// "standard" name selects the built-in planner/executor/reviewer pipeline.
func decodeWorkflow(name string, raw json.RawMessage) (workflow.WorkflowDefinition, error) {
	if len(raw) > 0 {
		var def workflow.WorkflowDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return workflow.WorkflowDefinition{}, err
		}
		return def, nil
	}
	if name != "" && name != "standard" {
		return workflow.WorkflowDefinition{}, fmt.Errorf("unknown workflow %q", name)
	}
	return workflow.StandardWorkflow(), nil
}

func (h *Handler) handleStartWorkflow(msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		Workflow   string            `json:"workflow"`
		Definition json.RawMessage   `json:"definition,omitempty"`
		Input      map[string]string `json:"input"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid payload: " + err.Error()})
		return
	}

	def, err := decodeWorkflow(payload.Workflow, payload.Definition)
	if err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid workflow definition: " + err.Error()})
		return
	}

	execID, err := h.Coordinator.StartWorkflow(def, payload.Input)
	if err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: err.Error()})
		return
	}
	log.Printf("started workflow %q as execution %s", def.Name, execID)
	writer.Send(protocol.RPCMessage{
		ID:      msg.ID,
		Type:    "workflow_started",
		Payload: protocol.EncodeRPC(map[string]interface{}{"execution_id": execID}),
	})
}

// handleUpdateSettings persists the sections present in the payload. Provider
// and orchestrator changes take effect on the next daemon start; monitoring
// thresholds are read per check cycle.
func (h *Handler) handleUpdateSettings(msg protocol.RPCMessage, writer ResponseWriter) {
	if h.Settings == nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "settings store not initialized"})
		return
	}

	var payload struct {
		Providers    []agent.ProviderConfig       `json:"providers,omitempty"`
		MCPAgents    []agent.MCPConfig            `json:"mcp_agents,omitempty"`
		Orchestrator *config.OrchestratorSettings `json:"orchestrator,omitempty"`
		Monitoring   *config.MonitoringSettings   `json:"monitoring,omitempty"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid payload: " + err.Error()})
		return
	}

	err := h.Settings.Update(func(s *config.Settings) {
		if payload.Providers != nil {
			s.Providers = payload.Providers
		}
		if payload.MCPAgents != nil {
			s.MCPAgents = payload.MCPAgents
		}
		if payload.Orchestrator != nil {
			s.Orchestrator = *payload.Orchestrator
		}
		if payload.Monitoring != nil {
			s.Monitoring = *payload.Monitoring
		}
	})
	if err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: err.Error()})
		return
	}
	log.Printf("settings updated")
	writer.Send(protocol.RPCMessage{
		ID:      msg.ID,
		Type:    "settings_saved",
		Payload: protocol.EncodeRPC(h.Settings.Get()),
	})
}

func (h *Handler) handleScheduleWorkflow(msg protocol.RPCMessage, writer ResponseWriter) {
	var payload struct {
		ScheduleID      string            `json:"schedule_id"`
		Workflow        string            `json:"workflow"`
		Definition      json.RawMessage   `json:"definition,omitempty"`
		Input           map[string]string `json:"input"`
		Cron            string            `json:"cron,omitempty"`
		IntervalSeconds int               `json:"interval_seconds,omitempty"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid payload: " + err.Error()})
		return
	}
	if h.Scheduler == nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "scheduler not initialized"})
		return
	}

	def, err := decodeWorkflow(payload.Workflow, payload.Definition)
	if err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "Invalid workflow definition: " + err.Error()})
		return
	}

	switch {
	case payload.Cron != "":
		err = h.Scheduler.ScheduleCron(payload.ScheduleID, payload.Cron, def, payload.Input)
	case payload.IntervalSeconds > 0:
		err = h.Scheduler.ScheduleInterval(payload.ScheduleID, time.Duration(payload.IntervalSeconds)*time.Second, def, payload.Input)
	default:
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: "schedule requires cron or interval_seconds"})
		return
	}
	if err != nil {
		writer.Send(protocol.RPCMessage{ID: msg.ID, Error: err.Error()})
		return
	}
	writer.Send(protocol.RPCMessage{
		ID:      msg.ID,
		Type:    "workflow_scheduled",
		Payload: protocol.EncodeRPC(map[string]interface{}{"schedule_id": payload.ScheduleID}),
	})
}
