package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/agent"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/config"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/metrics"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/monitoring"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/protocol"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/scheduler"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/server"
	"github.com/tears-mysthrala/agents-orchestration-system/internal/workflow"
)

// WsWriter implements server.ResponseWriter for a single WebSocket client
type WsWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *WsWriter) Send(msg interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// BroadcastWriter implements server.ResponseWriter for broadcasting to all clients
type BroadcastWriter struct {
	hub *WsHub
}

func (w *BroadcastWriter) Send(msg interface{}) error {
	w.hub.Broadcast(msg)
	return nil
}

type WsHub struct {
	clients    map[*websocket.Conn]bool
	clientsMu  sync.RWMutex
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func NewWsHub() *WsHub {
	return &WsHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *WsHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			log.Printf("Client connected. Total: %d", len(h.clients))
		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.clientsMu.Unlock()
			log.Printf("Client disconnected. Total: %d", len(h.clients))
		case <-ctx.Done():
			return
		}
	}
}

func (h *WsHub) Broadcast(msg interface{}) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("Error broadcasting to client: %v", err)
			// Don't unregister here to avoid deadlock, let the reader loop handle disconnect
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for local dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	log.SetPrefix("[orchestrator] ")
	log.SetOutput(os.Stderr)

	port := flag.String("port", "5555", "listen port")
	configDir := flag.String("config-dir", "", "settings directory (default ~/.orchestrator)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	var store *config.Store
	var err error
	if *configDir != "" {
		store, err = config.NewStoreAt(*configDir)
	} else {
		store, err = config.NewStore()
	}
	if err != nil {
		log.Fatalf("Failed to initialize settings store: %v", err)
	}

	locked, err := store.Acquire()
	if err != nil {
		log.Fatalf("Failed to acquire daemon lock: %v", err)
	}
	if !locked {
		log.Fatalf("Another orchestrator instance is already running")
	}
	defer store.Release()

	settings := store.Get()

	registry := buildRegistry(ctx, settings)

	coord := workflow.New(workflow.Config{
		MaxWorkers:   settings.Orchestrator.MaxWorkers,
		HistoryLimit: settings.Orchestrator.HistoryLimit,
		BackoffBase:  time.Duration(settings.Orchestrator.BackoffBaseMS) * time.Millisecond,
		BackoffCap:   time.Duration(settings.Orchestrator.BackoffCapMS) * time.Millisecond,
	}, registry)

	collector := metrics.NewCollector()
	metricsCh, cancelMetrics := coord.Events().Subscribe(workflow.DefaultEventBuffer)
	defer cancelMetrics()
	go collector.Consume(ctx, metricsCh)

	monitor := monitoring.NewService(time.Duration(settings.Monitoring.CheckIntervalSeconds) * time.Second)
	monitor.RegisterCheck("error_rate", monitoring.ErrorRateCheck(collector.ErrorRate, settings.Monitoring.ErrorRateThreshold))
	monitor.RegisterCheck("history_pressure", monitoring.HistoryPressureCheck(
		func() int { return len(coord.History(0)) },
		settings.Orchestrator.HistoryLimit,
	))

	notifier, err := monitoring.NewNotifier(settings.Monitoring.TelegramToken, settings.Monitoring.TelegramChatID)
	if err != nil {
		log.Printf("Warning: Failed to create Telegram notifier: %v", err)
	}
	if notifier != nil {
		monitor.OnAlert(notifier.Notify)
	}
	monitor.Start(ctx)

	sched := scheduler.New(coord)
	sched.Start()
	defer sched.Stop()

	wsHub := NewWsHub()
	go wsHub.Run(ctx)

	// Mirror step transitions to every connected client.
	eventCh, cancelEvents := coord.Events().Subscribe(workflow.DefaultEventBuffer)
	defer cancelEvents()
	go func() {
		broadcast := &BroadcastWriter{hub: wsHub}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-eventCh:
				if !ok {
					return
				}
				broadcast.Send(protocol.RPCMessage{
					Type:    "step_event",
					Payload: protocol.EncodeRPC(ev),
				})
			}
		}
	}()

	handler := server.NewHandler(coord, registry, collector, monitor, sched, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}

		wsHub.register <- conn
		wsWriter := &WsWriter{conn: conn}

		go func() {
			defer func() {
				wsHub.unregister <- conn
			}()

			for {
				var msg protocol.RPCMessage
				if err := conn.ReadJSON(&msg); err != nil {
					log.Printf("Read error: %v", err)
					break
				}
				handler.HandleMessage(msg, wsWriter)
			}
		}()
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := monitor.Health()
		w.Header().Set("Content-Type", "application/json")
		if report.Status == monitoring.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(collector.Snapshot())
	})

	log.Printf("Listening on :%s", *port)
	srv := &http.Server{Addr: ":" + *port, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	<-ctx.Done()

	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	srv.Shutdown(ctxShut)
	if err := coord.Shutdown(ctxShut); err != nil {
		log.Printf("Coordinator shutdown: %v", err)
	}
}

// buildRegistry wires the standard role adapters plus any configured MCP
// tool agents. Missing providers leave the registry empty; workflow starts
// will then fail validation with a clear error instead of at call time.
func buildRegistry(ctx context.Context, settings config.Settings) *agent.Registry {
	registry := agent.NewRegistry()

	if len(settings.Providers) > 0 {
		providers := make([]agent.Provider, 0, len(settings.Providers))
		for _, pc := range settings.Providers {
			providers = append(providers, agent.NewChatProvider(pc))
		}
		client := agent.NewClient(providers...)
		registry.Register(workflow.AgentPlanner, agent.NewPlanner(client))
		registry.Register(workflow.AgentExecutor, agent.NewExecutor(client))
		registry.Register(workflow.AgentReviewer, agent.NewReviewer(client))
	} else {
		log.Println("Warning: no LLM providers configured, role agents unavailable")
	}

	for _, mc := range settings.MCPAgents {
		adapter, err := agent.NewMCPAdapter(ctx, mc)
		if err != nil {
			log.Printf("Warning: Failed to start MCP agent %q: %v", mc.Name, err)
			continue
		}
		registry.Register(mc.Name, adapter)
	}
	return registry
}
