package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cerebro-dash/apiserver/internal/health"
	"github.com/cerebro-dash/apiserver/internal/mq"
	"github.com/cerebro-dash/apiserver/internal/relay"
	"github.com/cerebro-dash/apiserver/internal/services"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// LiveStatsSource reads bot activity counters.
type LiveStatsSource interface {
	LiveStats(ctx context.Context) (types.LiveStats, error)
}

// MonitorHandler serves the health report, bot activity and the live event
// stream.
type MonitorHandler struct {
	health   *health.Aggregator
	stats    LiveStatsSource
	relay    *relay.Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewMonitorHandler(aggregator *health.Aggregator, stats LiveStatsSource, rl *relay.Relay, logger *slog.Logger) *MonitorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorHandler{
		health: aggregator,
		stats:  stats,
		relay:  rl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Access is gated by the JWT, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// MonitorRouter registers the monitor routes. The stream route must not sit
// behind a request timeout.
func MonitorRouter(
	r chi.Router,
	aggregator *health.Aggregator,
	stats LiveStatsSource,
	rl *relay.Relay,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewMonitorHandler(aggregator, stats, rl, logger)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}
	r.Get("/health", handler.Health)
	r.Get("/stats", handler.Stats)
	r.Get("/ws", handler.Stream)
}

func (h *MonitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Snapshot(r.Context()))
}

func (h *MonitorHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusNotImplemented, mq.ErrLiveStatsUnsupported.Error())
		return
	}
	stats, err := h.stats.LiveStats(r.Context())
	if err != nil {
		if !errors.Is(err, mq.ErrLiveStatsUnsupported) {
			err = fmt.Errorf("%w: %w", services.ErrUpstreamUnavailable, err)
		}
		writeServiceError(w, r, h.logger, err, "failed to read live stats")
		return
	}
	if stats.Stats == nil {
		stats.Stats = map[string]string{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// Stream upgrades to a websocket and relays bus events until either side
// goes away.
func (h *MonitorHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go h.readPump(conn, cancel)

	sink := &wsSink{conn: conn}
	done := make(chan struct{})
	defer close(done)
	go h.pingPump(sink, done, cancel)

	err = h.relay.Attach(ctx, sink)
	switch {
	case err == nil:
		sink.close(websocket.CloseNormalClosure, "")
	case errors.Is(err, relay.ErrSlowConsumer):
		h.logger.WarnContext(ctx, "closing slow websocket client", "remote", r.RemoteAddr)
		sink.close(websocket.CloseTryAgainLater, "too slow")
	default:
		h.logger.WarnContext(ctx, "websocket stream ended", "remote", r.RemoteAddr, "error", err)
		sink.close(websocket.CloseInternalServerErr, "stream failed")
	}
}

// readPump consumes control frames and cancels the stream once the client
// disconnects or stops answering pings.
func (h *MonitorHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *MonitorHandler) pingPump(sink *wsSink, done <-chan struct{}, cancel context.CancelFunc) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				cancel()
				return
			}
		}
	}
}

// wsSink serializes writes to one connection. gorilla allows a single
// concurrent writer.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(_ context.Context, event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(event)
}

func (s *wsSink) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *wsSink) close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
