package main

import (
	"testing"
	"time"

	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
)

func TestPrintEvent_ToleratesShortExecutionID(t *testing.T) {
	events := []protocol.StepEvent{
		{ExecutionID: "", StepID: "plan", Timestamp: time.Now()},
		{ExecutionID: "abc", StepID: "plan", Timestamp: time.Now()},
		{ExecutionID: "0123456789abcdef", StepID: "execute", OldState: "pending", NewState: "running", Attempt: 1, Timestamp: time.Now()},
	}
	for _, ev := range events {
		printEvent(ev)
	}
}

func TestParseInputFlags(t *testing.T) {
	cmd := runCmd
	cmd.Flags().Set("input", "backlog=ship v2")

	input, err := parseInputFlags(cmd)
	if err != nil {
		t.Fatalf("parseInputFlags failed: %v", err)
	}
	if input["backlog"] != "ship v2" {
		t.Errorf("input = %v", input)
	}
}
