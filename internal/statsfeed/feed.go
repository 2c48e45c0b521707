// Package statsfeed serves a read-only websocket feed of the boss's roster
// and performance aggregates for debug overlays.
package statsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lawnchairsociety/bossmind/internal/allocator"
	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
)

// Frame is one published snapshot.
type Frame struct {
	Time   time.Time                `json:"time"`
	Tick   uint64                   `json:"tick"`
	Active string                   `json:"active"`
	State  string                   `json:"state"`
	Roster []allocator.Snapshot     `json:"roster"`
	Stats  map[string]perflog.Stats `json:"stats"`
	Recent []perflog.Entry          `json:"recent"`
}

// Feed fans frames out to connected overlays.
type Feed struct {
	cfg     config.StatsFeedConfig
	limiter *ConnLimiter
	rate    *rate.Limiter

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  []byte

	srv *http.Server
}

// New creates a feed. Publishing is throttled to cfg.BroadcastsPerSecond.
func New(cfg config.StatsFeedConfig) *Feed {
	limit := rate.Inf
	if cfg.BroadcastsPerSecond > 0 {
		limit = rate.Limit(cfg.BroadcastsPerSecond)
	}
	return &Feed{
		cfg:     cfg,
		limiter: NewConnLimiter(cfg),
		rate:    rate.NewLimiter(limit, 1),
		clients: make(map[*client]struct{}),
	}
}

// Publish broadcasts a frame unless the broadcast rate is exhausted.
// Reports whether the frame was sent.
func (f *Feed) Publish(frame Frame) bool {
	if !f.rate.Allow() {
		return false
	}

	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Failed to encode stats frame", "error", err)
		return false
	}

	// Enqueue under the lock so a concurrent disconnect cannot close a
	// send queue mid-broadcast. enqueue never blocks.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = data
	for c := range f.clients {
		if !c.enqueue(data) {
			logger.Debug("Stats frame dropped for slow client", "client_ip", c.ip)
		}
	}
	return true
}

// Clients returns the number of connected overlays.
func (f *Feed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Handler serves the websocket at /ws and the latest frame as JSON at /stats.
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWebSocketUpgrade)
	mux.HandleFunc("/stats", f.handleLatest)
	return mux
}

// Start listens on the configured address until Shutdown.
func (f *Feed) Start() error {
	f.srv = &http.Server{
		Addr:              f.cfg.Address,
		Handler:           f.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("Stats feed listening", "address", f.cfg.Address)
	if err := f.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and disconnects every overlay.
func (f *Feed) Shutdown(ctx context.Context) error {
	var err error
	if f.srv != nil {
		err = f.srv.Shutdown(ctx)
	}
	f.mu.Lock()
	for c := range f.clients {
		close(c.send)
		delete(f.clients, c)
	}
	f.mu.Unlock()
	return err
}

func (f *Feed) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	f.mu.RLock()
	latest := f.latest
	f.mu.RUnlock()
	if latest == nil {
		http.Error(w, "no frame published yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(latest)
}

func (f *Feed) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	clientIP := realIP(r)

	if !f.limiter.TryAcquire(clientIP) {
		logger.Warning("Stats feed connection rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", clientIP)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  512,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := f.cfg.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("Stats feed connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Stats feed upgrade failed", "error", err)
		f.limiter.Release(clientIP)
		return
	}

	c := newClient(conn, clientIP)
	f.mu.Lock()
	f.clients[c] = struct{}{}
	if f.latest != nil {
		c.enqueue(f.latest)
	}
	f.mu.Unlock()
	logger.Debug("Stats overlay connected", "client_ip", clientIP)

	go c.writePump()
	go func() {
		c.readPump()
		f.remove(c)
	}()
}

func (f *Feed) remove(c *client) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	f.limiter.Release(c.ip)
	logger.Debug("Stats overlay disconnected", "client_ip", c.ip)
}
