package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPAdapter exposes a single tool on an MCP server as an agent. The server
// process is spawned over stdio at construction time and kept alive for the
// adapter's lifetime.
type MCPAdapter struct {
	name   string
	tool   string
	client *client.Client
}

// MCPConfig describes an MCP-backed agent.
type MCPConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Tool    string   `json:"tool"`
}

// NewMCPAdapter launches the server, initializes the session and verifies the
// tool exists.
func NewMCPAdapter(ctx context.Context, cfg MCPConfig) (*MCPAdapter, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", cfg.Name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client for %s: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "agents-orchestration-system",
		Version: "1.0.0",
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP client for %s: %w", cfg.Name, err)
	}

	ctxTools, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	listed, err := mcpClient.ListTools(ctxTools, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list tools of %s: %w", cfg.Name, err)
	}

	found := false
	for _, t := range listed.Tools {
		if t.Name == cfg.Tool {
			found = true
			break
		}
	}
	if !found {
		mcpClient.Close()
		return nil, fmt.Errorf("MCP server %s does not expose tool %q", cfg.Name, cfg.Tool)
	}

	return &MCPAdapter{name: cfg.Name, tool: cfg.Tool, client: mcpClient}, nil
}

// Invoke implements workflow.Adapter: the step's input map becomes the tool's
// arguments, the tool's text content blocks become the output.
func (a *MCPAdapter) Invoke(ctx context.Context, stepID string, input map[string]string) (string, error) {
	args := make(map[string]interface{}, len(input))
	for k, v := range input {
		args[k] = v
	}

	result, err := a.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      a.tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("mcp tool %s (step %s): %w", a.tool, stepID, err)
	}

	// Round-trip the content through JSON to inspect it generically across
	// content block kinds.
	var sb strings.Builder
	contentBytes, _ := json.Marshal(result.Content)
	var contentList []map[string]interface{}
	_ = json.Unmarshal(contentBytes, &contentList)

	for _, content := range contentList {
		kind, _ := content["type"].(string)
		switch kind {
		case "text":
			if text, ok := content["text"].(string); ok {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		case "image":
			sb.WriteString("[Image returned]\n")
		case "resource":
			sb.WriteString("[Resource returned]\n")
		}
	}

	if result.IsError {
		return "", fmt.Errorf("mcp tool %s reported an error: %s", a.tool, strings.TrimSpace(sb.String()))
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close shuts the underlying server process down.
func (a *MCPAdapter) Close() error {
	return a.client.Close()
}
