package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/focus_streamer/internal/config"
	"github.com/relabs-tech/focus_streamer/internal/emitter"
	"github.com/relabs-tech/focus_streamer/internal/transport"
)

const wsWriteTimeout = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Hub fans metric messages out to websocket clients. A client that cannot
// keep up is dropped.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]bool)}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// Broadcast sends payload as a text frame to every client.
func (h *Hub) Broadcast(payload []byte) {
	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = c.Close()
			h.remove(c)
		}
	}
}

// ServeWS upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.add(conn)
	defer func() {
		h.remove(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Monitor keeps the latest message of each type seen on the metrics topic.
type Monitor struct {
	mu     sync.RWMutex
	latest map[string]json.RawMessage
	hub    *Hub
	logger *zap.Logger
}

func NewMonitor(hub *Hub, logger *zap.Logger) *Monitor {
	return &Monitor{latest: make(map[string]json.RawMessage), hub: hub, logger: logger}
}

// Ingest records one metrics payload and forwards it to websocket clients.
func (m *Monitor) Ingest(payload []byte) {
	var env emitter.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type == "" {
		m.logger.Debug("ignoring metrics payload", zap.ByteString("payload", payload))
		return
	}
	msg := make(json.RawMessage, len(payload))
	copy(msg, payload)

	m.mu.Lock()
	m.latest[env.Type] = msg
	m.mu.Unlock()

	m.hub.Broadcast(msg)
}

// Handler serves the JSON API and the websocket stream.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/concentration", m.serveType(emitter.TypeConcentration))
	mux.HandleFunc("/api/baseline", m.serveType(emitter.TypeBaselineReady))
	mux.HandleFunc("/api/status", m.serveStatus)
	mux.HandleFunc("/ws", m.hub.ServeWS)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

func (m *Monitor) serveType(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		msg, ok := m.latest[kind]
		m.mu.RUnlock()

		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(msg)
	}
}

func (m *Monitor) serveStatus(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	status := make(map[string]json.RawMessage, len(m.latest))
	for k, v := range m.latest {
		status[k] = v
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"clients": m.hub.Len(),
		"latest":  status,
	}); err != nil {
		m.logger.Warn("status encode failed", zap.Error(err))
	}
}

// RunWeb subscribes to the metrics topic and serves the live monitor.
func RunWeb(cfg *config.Config, logger *zap.Logger) error {
	client, err := transport.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-web")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	mon := NewMonitor(NewHub(), logger)
	token := client.Subscribe(cfg.TopicMetrics, 0, func(_ mqtt.Client, msg mqtt.Message) {
		mon.Ingest(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.TopicMetrics, err)
	}
	logger.Info("subscribed to metrics", zap.String("topic", cfg.TopicMetrics))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           mon.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("web server listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("web server stopped")
	return nil
}
