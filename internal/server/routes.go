package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/skillsage/signaling/internal/config"
	"github.com/skillsage/signaling/internal/signaling"
)

// NewRouter wires the HTTP surface: the websocket endpoint, a health
// check and the Prometheus metrics endpoint.
func NewRouter(hub *signaling.Hub, cfg *config.Config, gatherer prometheus.Gatherer, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", ServeWs(hub, cfg, logger))
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// ServeWs returns an http.HandlerFunc that upgrades websocket requests
// and hands the connection to the hub. Each connection gets a fresh
// uuid as its id; ids are never reused across reconnects.
func ServeWs(hub *signaling.Hub, cfg *config.Config, logger *zap.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (the Go SDK) send no Origin.
				return true
			}
			return cfg.AllowsOrigin(origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &signaling.Client{
			ID:     uuid.NewString(),
			Hub:    hub,
			Conn:   conn,
			Send:   make(chan *signaling.Message, 256),
			Logger: logger,
		}

		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
