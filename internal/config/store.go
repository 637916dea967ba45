package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/agent"
)

// OrchestratorSettings tunes the workflow coordinator.
type OrchestratorSettings struct {
	MaxWorkers    int `json:"max_workers"`     // Concurrent step limit (default: 5)
	HistoryLimit  int `json:"history_limit"`   // Finished executions retained (default: 50)
	BackoffBaseMS int `json:"backoff_base_ms"` // Retry backoff base in ms (default: 500)
	BackoffCapMS  int `json:"backoff_cap_ms"`  // Retry backoff cap in ms (default: 30000)
}

// MonitoringSettings configures health checks and alert delivery.
type MonitoringSettings struct {
	CheckIntervalSeconds int     `json:"check_interval_seconds"` // How often health checks run (default: 60)
	ErrorRateThreshold   float64 `json:"error_rate_threshold"`   // Degraded above this step error rate (default: 0.5)
	TelegramToken        string  `json:"telegram_token,omitempty"`
	TelegramChatID       int64   `json:"telegram_chat_id,omitempty"`
}

type Settings struct {
	// Providers are tried in order; the first is preferred, the rest are fallbacks.
	Providers    []agent.ProviderConfig `json:"providers"`
	MCPAgents    []agent.MCPConfig      `json:"mcp_agents,omitempty"`
	Orchestrator OrchestratorSettings   `json:"orchestrator"`
	Monitoring   MonitoringSettings     `json:"monitoring"`
}

type Store struct {
	mu       sync.RWMutex
	path     string
	lock     *flock.Flock
	settings *Settings
}

func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}
	return NewStoreAt(filepath.Join(homeDir, ".orchestrator"))
}

// NewStoreAt creates a store rooted at dir, writing defaults if no settings
// file exists yet.
func NewStoreAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	store := &Store{
		path: filepath.Join(dir, "settings.json"),
		lock: flock.New(filepath.Join(dir, "orchestrator.lock")),
		settings: &Settings{
			Providers: []agent.ProviderConfig{
				{
					Name:    "ollama",
					BaseURL: "http://localhost:11434/v1",
					Model:   "llama3.1",
				},
			},
			Orchestrator: OrchestratorSettings{
				MaxWorkers:    5,
				HistoryLimit:  50,
				BackoffBaseMS: 500,
				BackoffCapMS:  30000,
			},
			Monitoring: MonitoringSettings{
				CheckIntervalSeconds: 60,
				ErrorRateThreshold:   0.5,
			},
		},
	}

	if err := store.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		// If file doesn't exist, save default
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default settings: %w", err)
		}
	}

	return store, nil
}

// Acquire takes the process-exclusive daemon lock. It returns false when
// another daemon already holds it.
func (s *Store) Acquire() (bool, error) {
	return s.lock.TryLock()
}

// Release drops the daemon lock.
func (s *Store) Release() error {
	return s.lock.Unlock()
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse settings.json: %w", err)
	}

	s.settings = &settings
	return nil
}

func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(s.path, data, 0644)
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.settings
}

func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(s.settings)
	s.mu.Unlock()
	return s.Save()
}
