package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/taktrelay/internal/config"
	"github.com/Tyrowin/taktrelay/internal/metrics"
	"github.com/Tyrowin/taktrelay/internal/registry"
)

// HubConfig carries the collaborators and per-connection limits of a Hub.
type HubConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	MaxMessageSize int64
	RateLimit      config.RateLimitConfig
}

type connectionLimits struct {
	MaxMessageSize int64
	RateLimit      config.RateLimitConfig
}

// Hub owns the lifecycle of every open connection. It starts a client's pumps
// when the client attaches and, when the client goes away, removes its
// registry entry exactly once.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client

	registry   *registry.Registry
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	limits     connectionLimits

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub that removes closed sessions from reg and hands
// inbound frames to dispatcher.
func NewHub(reg *registry.Registry, dispatcher Dispatcher, cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = config.Default().MaxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		registry:   reg,
		dispatcher: dispatcher,
		metrics:    cfg.Metrics,
		logger:     logger,
		limits: connectionLimits{
			MaxMessageSize: maxSize,
			RateLimit:      cfg.RateLimit,
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run processes attach and detach events until Shutdown is called. It should
// run in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}
			h.attach(client)

		case client := <-h.unregister:
			h.detach(client)
		}
	}
}

// Attach hands a freshly upgraded client to the hub. It reports false when
// the hub is shutting down, in which case the caller still owns the
// connection.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) attach(client *Client) {
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.ConnectionOpened()
	client.logger.Info("client connected", "total", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// release is called by a client's read pump when its connection ends. Once
// the run loop has stopped the client is detached directly.
func (h *Hub) release(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.detach(client)
	}
}

// detach forgets client, removes any identifier bound to its session, and
// closes its send buffer. Only the first call for a client has any effect;
// it reports whether this call was that one.
func (h *Hub) detach(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	identifier := client.session.Identifier()
	removed := h.registry.RemoveBySession(client.session)
	client.markClosed()
	h.metrics.ConnectionClosed()

	attrs := []any{"total", clientCount}
	if removed {
		attrs = append(attrs, "client_id", identifier)
	}
	client.logger.Info("client disconnected", attrs...)
	return true
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// shutdownClients closes every attached connection. Each read pump then
// fails and detaches its client.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn != nil {
			client.closeConnection()
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for every client goroutine to finish, or
// until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
