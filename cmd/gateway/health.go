package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rickgao/deriv-gateway/internal/channel"
	"github.com/rickgao/deriv-gateway/internal/market"
	"github.com/rickgao/deriv-gateway/internal/router"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type channelStats interface {
	Stats() channel.Stats
}

type routerStats interface {
	Stats() router.Stats
}

// healthHandler serves liveness and debug endpoints. registry may be nil when
// the watch list is static.
type healthHandler struct {
	db       pinger
	channel  channelStats
	registry market.Registry
	router   routerStats
	logger   *slog.Logger
}

func (h *healthHandler) routes(metricsPath string, collectors ...prometheus.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		reg.MustRegister(c)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/debug/channel", h.debugChannel)
	mux.HandleFunc("/debug/catalog", h.debugCatalog)
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	// Database
	if err := h.db.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["database"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["database"] = "connected"
	}

	// Request channel
	st := h.channel.Stats()
	switch st.State {
	case channel.StateOpen:
		health.Components["channel"] = "open"
	case channel.StateReconnecting, channel.StateConnecting:
		health.Components["channel"] = st.State.String()
		if health.Status == "healthy" {
			health.Status = "degraded"
		}
	default:
		health.Status = "unhealthy"
		health.Components["channel"] = st.State.String()
	}

	// Catalog
	if h.registry != nil {
		open := len(h.registry.OpenSymbols())
		health.Components["catalog"] = map[string]int{"open_symbols": open}
		if open == 0 && health.Status == "healthy" {
			health.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		h.logger.Debug("write health response", "error", err)
	}
}

func (h *healthHandler) debugChannel(w http.ResponseWriter, r *http.Request) {
	st := h.channel.Stats()
	rs := h.router.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"state":                 st.State.String(),
		"sent":                  st.Sent,
		"received":              st.Received,
		"dropped":               st.Dropped,
		"timeouts":              st.Timeouts,
		"reconnects":            st.Reconnects,
		"pending_requests":      st.PendingRequests,
		"pending_subscriptions": st.PendingSubscriptions,
		"last_req_id":           st.LastID,
		"tick_buffer":           rs.TickBuffer,
		"contract_buffer":       rs.ContractBuffer,
	})
}

func (h *healthHandler) debugCatalog(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		http.Error(w, "catalog disabled, poller uses a static symbol list", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"stats":        h.registry.Stats(),
		"open_symbols": h.registry.OpenSymbols(),
		"trade_types":  h.registry.TradeTypes(),
	})
}
