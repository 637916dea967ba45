package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tears-mysthrala/agents-orchestration-system/cmd/cli/client"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/config"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/monitoring"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

var (
	serverAddr string
	reqTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator-cli",
	Short: "Terminal client for the orchestrator daemon",
}

var runCmd = &cobra.Command{
	Use:   "run [workflow.yaml]",
	Short: "Start a workflow and stream step events until it finishes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := parseInputFlags(cmd)
		if err != nil {
			return err
		}
		payload := map[string]interface{}{"input": input}
		if len(args) == 1 {
			def, err := workflow.LoadDefinition(args[0])
			if err != nil {
				return err
			}
			payload["definition"] = def
		} else {
			payload["workflow"] = "standard"
		}
		return runWorkflow(payload)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished executions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("list_history", map[string]int{"limit": limit}, reqTimeout)
			if err != nil {
				return err
			}
			var payload struct {
				Executions []workflow.Snapshot `json:"executions"`
			}
			if err := json.Unmarshal(resp.Payload, &payload); err != nil {
				return err
			}
			if len(payload.Executions) == 0 {
				fmt.Println("No finished executions.")
				return nil
			}
			for _, snap := range payload.Executions {
				fmt.Printf("%s  %-10s %-9s steps=%d\n", snap.ID, snap.Name, snap.State, len(snap.Records))
			}
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show step results for one execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("get_execution", map[string]string{"execution_id": args[0]}, reqTimeout)
			if err != nil {
				return err
			}
			var snap workflow.Snapshot
			if err := json.Unmarshal(resp.Payload, &snap); err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Cancel a running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("cancel_execution", map[string]string{"execution_id": args[0]}, reqTimeout)
			if err != nil {
				return err
			}
			var payload struct {
				Cancelled bool `json:"cancelled"`
			}
			json.Unmarshal(resp.Payload, &payload)
			if payload.Cancelled {
				fmt.Println("Cancelled.")
			} else {
				fmt.Println("No running execution with that id.")
			}
			return nil
		})
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("list_agents", nil, reqTimeout)
			if err != nil {
				return err
			}
			var payload struct {
				Agents []string `json:"agents"`
			}
			if err := json.Unmarshal(resp.Payload, &payload); err != nil {
				return err
			}
			for _, id := range payload.Agents {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show daemon health report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("get_health", nil, reqTimeout)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		})
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show per-agent run metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("get_metrics", nil, reqTimeout)
			if err != nil {
				return err
			}
			return printJSON(resp.Payload)
		})
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List raised and resolved monitoring alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("list_alerts", nil, reqTimeout)
			if err != nil {
				return err
			}
			var payload struct {
				Alerts []monitoring.Alert `json:"alerts"`
			}
			if err := json.Unmarshal(resp.Payload, &payload); err != nil {
				return err
			}
			if len(payload.Alerts) == 0 {
				fmt.Println("No alerts.")
				return nil
			}
			for _, a := range payload.Alerts {
				marker := " "
				if a.Resolved {
					marker = "resolved"
				}
				fmt.Printf("[%s] %-8s %-16s %s %s\n",
					a.Timestamp.Format("2006-01-02 15:04:05"), a.Severity, a.Component, a.Message, marker)
			}
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show daemon settings, or update them via flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			resp, err := c.Request("get_settings", nil, reqTimeout)
			if err != nil {
				return err
			}

			var settings config.Settings
			if err := json.Unmarshal(resp.Payload, &settings); err != nil {
				return err
			}

			changed := false
			if cmd.Flags().Changed("max-workers") {
				settings.Orchestrator.MaxWorkers, _ = cmd.Flags().GetInt("max-workers")
				changed = true
			}
			if cmd.Flags().Changed("history-limit") {
				settings.Orchestrator.HistoryLimit, _ = cmd.Flags().GetInt("history-limit")
				changed = true
			}
			if cmd.Flags().Changed("error-rate-threshold") {
				settings.Monitoring.ErrorRateThreshold, _ = cmd.Flags().GetFloat64("error-rate-threshold")
				changed = true
			}
			if cmd.Flags().Changed("telegram-token") {
				settings.Monitoring.TelegramToken, _ = cmd.Flags().GetString("telegram-token")
				changed = true
			}
			if cmd.Flags().Changed("telegram-chat-id") {
				settings.Monitoring.TelegramChatID, _ = cmd.Flags().GetInt64("telegram-chat-id")
				changed = true
			}

			if !changed {
				return printJSON(resp.Payload)
			}

			saved, err := c.Request("update_settings", map[string]interface{}{
				"orchestrator": settings.Orchestrator,
				"monitoring":   settings.Monitoring,
			}, reqTimeout)
			if err != nil {
				return err
			}
			return printJSON(saved.Payload)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream step events from all executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(serverAddr)
		done := make(chan struct{})
		c.OnClosed = func() { close(done) }
		c.OnMessage = func(msg protocol.RPCMessage) {
			if msg.Type != "step_event" {
				return
			}
			var ev protocol.StepEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return
			}
			printEvent(ev)
		}
		if err := c.Connect(); err != nil {
			return connectError(err)
		}
		fmt.Println("Watching step events (Ctrl+C to quit)")
		<-done
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "localhost:5555", "Address of the orchestrator daemon")
	rootCmd.PersistentFlags().DurationVar(&reqTimeout, "timeout", 30*time.Second, "Request timeout")

	runCmd.Flags().StringArray("input", nil, "Workflow input as key=value (repeatable)")
	historyCmd.Flags().Int("limit", 20, "Maximum executions to list")
	configCmd.Flags().Int("max-workers", 0, "Concurrent step limit (takes effect on daemon restart)")
	configCmd.Flags().Int("history-limit", 0, "Finished executions retained (takes effect on daemon restart)")
	configCmd.Flags().Float64("error-rate-threshold", 0, "Degraded above this step error rate")
	configCmd.Flags().String("telegram-token", "", "Telegram bot token for alerts")
	configCmd.Flags().Int64("telegram-chat-id", 0, "Telegram chat for alerts")

	rootCmd.AddCommand(runCmd, historyCmd, showCmd, cancelCmd, agentsCmd, healthCmd, metricsCmd, alertsCmd, configCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func parseInputFlags(cmd *cobra.Command) (map[string]string, error) {
	pairs, _ := cmd.Flags().GetStringArray("input")
	input := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", pair)
		}
		input[key] = value
	}
	return input, nil
}

func withClient(fn func(*client.Client) error) error {
	c := client.NewClient(serverAddr)
	if err := c.Connect(); err != nil {
		return connectError(err)
	}
	defer c.Close()
	return fn(c)
}

func connectError(err error) error {
	return fmt.Errorf("failed to connect: %w (is the orchestrator daemon running?)", err)
}

// runWorkflow starts an execution, prints step transitions as they arrive and
// renders the final snapshot when the run reaches a terminal state.
func runWorkflow(payload map[string]interface{}) error {
	c := client.NewClient(serverAddr)

	execDone := make(chan string, 1)
	var execID string

	c.OnMessage = func(msg protocol.RPCMessage) {
		if msg.Type != "step_event" {
			return
		}
		var ev protocol.StepEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return
		}
		if execID != "" && ev.ExecutionID != execID {
			return
		}
		printEvent(ev)
	}

	if err := c.Connect(); err != nil {
		return connectError(err)
	}
	defer c.Close()

	resp, err := c.Request("start_workflow", payload, reqTimeout)
	if err != nil {
		return err
	}
	var started struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(resp.Payload, &started); err != nil {
		return err
	}
	execID = started.ExecutionID
	fmt.Printf("Execution %s started\n", execID)

	// Poll for the terminal state; step events are advisory and may be
	// dropped under pressure.
	go func() {
		for {
			time.Sleep(time.Second)
			resp, err := c.Request("get_execution", map[string]string{"execution_id": execID}, reqTimeout)
			if err != nil {
				continue
			}
			var snap workflow.Snapshot
			if err := json.Unmarshal(resp.Payload, &snap); err != nil {
				continue
			}
			if snap.State == workflow.ExecutionCompleted || snap.State == workflow.ExecutionFailed {
				execDone <- string(snap.State)
				return
			}
		}
	}()

	state := <-execDone

	final, err := c.Request("get_execution", map[string]string{"execution_id": execID}, reqTimeout)
	if err != nil {
		return err
	}
	var snap workflow.Snapshot
	if err := json.Unmarshal(final.Payload, &snap); err != nil {
		return err
	}
	fmt.Printf("\nExecution %s: %s\n", execID, state)
	printSnapshot(snap)
	if snap.State == workflow.ExecutionFailed {
		os.Exit(1)
	}
	return nil
}

func printEvent(ev protocol.StepEvent) {
	execID := ev.ExecutionID
	if len(execID) > 8 {
		execID = execID[:8]
	}
	fmt.Printf("[%s] %s/%s %s -> %s (attempt %d)\n",
		ev.Timestamp.Format("15:04:05"), execID, ev.StepID, ev.OldState, ev.NewState, ev.Attempt)
}

func printSnapshot(snap workflow.Snapshot) {
	fmt.Printf("%s  %s  %s\n", snap.ID, snap.Name, snap.State)

	steps := make([]string, 0, len(snap.Records))
	for id := range snap.Records {
		steps = append(steps, id)
	}
	sort.Slice(steps, func(i, j int) bool {
		a, b := snap.Records[steps[i]], snap.Records[steps[j]]
		switch {
		case a.StartedAt == nil:
			return false
		case b.StartedAt == nil:
			return true
		default:
			return a.StartedAt.Before(*b.StartedAt)
		}
	})

	for _, id := range steps {
		rec := snap.Records[id]
		fmt.Printf("  %-10s %-9s attempts=%d\n", rec.StepID, rec.State, rec.Attempt)
		if rec.Error != nil {
			fmt.Printf("    error: %s\n", rec.Error.Message)
		}
		if rec.Output != "" {
			fmt.Println(renderResult(rec.Output))
		}
	}
}

// renderResult pretty-prints agent output as Markdown when attached to a TTY.
func renderResult(text string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return indent(text)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return indent(text)
	}
	out, err := renderer.Render(text)
	if err != nil {
		return indent(text)
	}
	return strings.TrimRight(out, "\n")
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}

func printJSON(raw json.RawMessage) error {
	var buf map[string]interface{}
	if err := json.Unmarshal(raw, &buf); err != nil {
		return err
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
