package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rickgao/deriv-gateway/internal/channel"
	"github.com/rickgao/deriv-gateway/internal/market"
	"github.com/rickgao/deriv-gateway/internal/poller"
	"github.com/rickgao/deriv-gateway/internal/router"
	"github.com/rickgao/deriv-gateway/internal/writer"
)

// gather registers c on a fresh registry and returns metric values keyed by
// family name and label values joined with ",".
func gather(t *testing.T, c prometheus.Collector) map[string]map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	out := make(map[string]map[string]float64)
	for _, mf := range families {
		values := make(map[string]float64)
		for _, m := range mf.GetMetric() {
			key := ""
			for i, lp := range m.GetLabel() {
				if i > 0 {
					key += ","
				}
				key += lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
		out[mf.GetName()] = values
	}
	return out
}

func TestCollector_AllSources(t *testing.T) {
	c := NewCollector(Sources{
		Channel: func() channel.Stats {
			return channel.Stats{
				State:           channel.StateOpen,
				Sent:            10,
				Received:        12,
				Timeouts:        1,
				Reconnects:      2,
				PendingRequests: 3,
			}
		},
		Router: func() router.Stats {
			return router.Stats{
				TicksRouted:    5,
				TicksDuplicate: 1,
				TickBuffer:     router.BufferStats{Count: 4, Capacity: 1000},
			}
		},
		Writers: map[string]func() writer.WriterMetrics{
			"ticks":     func() writer.WriterMetrics { return writer.WriterMetrics{Inserts: 7, Conflicts: 2, Flushes: 1} },
			"contracts": func() writer.WriterMetrics { return writer.WriterMetrics{Errors: 1} },
		},
		Poller: func() poller.Stats { return poller.Stats{Cycles: 3, Fetched: 9} },
		Registry: func() market.Stats {
			return market.Stats{Symbols: 20, OpenSymbols: 15, Refreshes: 4, LastSyncAt: 1_700_000_000_000_000}
		},
	})

	got := gather(t, c)

	checks := []struct {
		family string
		labels string
		want   float64
	}{
		{"deriv_gateway_channel_state", "open", 1},
		{"deriv_gateway_channel_state", "reconnecting", 0},
		{"deriv_gateway_channel_messages_total", "sent", 10},
		{"deriv_gateway_channel_messages_total", "received", 12},
		{"deriv_gateway_channel_reconnects_total", "", 2},
		{"deriv_gateway_channel_pending", "request", 3},
		{"deriv_gateway_router_routed_total", "tick", 5},
		{"deriv_gateway_router_duplicate_ticks_total", "", 1},
		{"deriv_gateway_router_buffer_items", "tick", 4},
		{"deriv_gateway_router_buffer_capacity", "tick", 1000},
		{"deriv_gateway_writer_rows_total", "ticks,inserted", 7},
		{"deriv_gateway_writer_rows_total", "ticks,conflict", 2},
		{"deriv_gateway_writer_errors_total", "contracts", 1},
		{"deriv_gateway_poller_ticks_total", "", 9},
		{"deriv_gateway_catalog_entries", "open_symbols", 15},
		{"deriv_gateway_catalog_syncs_total", "ok", 4},
		{"deriv_gateway_catalog_last_sync_unix", "", 1_700_000_000},
	}
	for _, tc := range checks {
		values, ok := got[tc.family]
		if !ok {
			t.Errorf("missing family %s", tc.family)
			continue
		}
		if v, ok := values[tc.labels]; !ok || v != tc.want {
			t.Errorf("%s{%s} = %v (present=%v), want %v", tc.family, tc.labels, v, ok, tc.want)
		}
	}
}

func TestCollector_NilSourcesSkipped(t *testing.T) {
	c := NewCollector(Sources{
		Poller: func() poller.Stats { return poller.Stats{Cycles: 1} },
	})

	got := gather(t, c)

	if len(got) != 3 {
		t.Errorf("families = %d, want 3 poller families", len(got))
	}
	if _, ok := got["deriv_gateway_channel_state"]; ok {
		t.Error("channel metrics emitted without a channel source")
	}
}
