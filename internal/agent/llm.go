package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Provider is a single chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ProviderConfig describes one backend endpoint. BaseURL points at an
// OpenAI-compatible /chat/completions API, which covers the Ollama compatibility
// endpoint as well as hosted providers.
type ProviderConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key,omitempty"`
}

// ChatProvider implements Provider over an OpenAI-compatible HTTP API.
type ChatProvider struct {
	cfg        ProviderConfig
	httpClient *http.Client
}

func NewChatProvider(cfg ProviderConfig) *ChatProvider {
	return &ChatProvider{
		cfg: cfg,
		// Per-call deadlines come from the caller's context; this is a hard
		// backstop against leaked connections.
		httpClient: &http.Client{Timeout: 15 * time.Minute},
	}
}

func (p *ChatProvider) Name() string {
	return p.cfg.Name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *ChatProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", p.cfg.Name, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse %s response (status %d): %w", p.cfg.Name, resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s error: %s", p.cfg.Name, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", p.cfg.Name, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.cfg.Name)
	}

	return parsed.Choices[0].Message.Content, nil
}

// Client completes prompts against an ordered list of providers, falling back
// to the next one when a call fails. The first provider is the preferred one.
type Client struct {
	providers []Provider
}

func NewClient(providers ...Provider) *Client {
	return &Client{providers: providers}
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("no providers configured")
	}

	tokens := EstimateTokens(systemPrompt) + EstimateTokens(userPrompt)

	var lastErr error
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if i > 0 {
			log.Printf("falling back to provider %s after error: %v", p.Name(), lastErr)
		}
		out, err := p.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			log.Printf("provider %s completed (~%d prompt tokens)", p.Name(), tokens)
			return out, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
}
