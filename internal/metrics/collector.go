package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rickgao/deriv-gateway/internal/channel"
	"github.com/rickgao/deriv-gateway/internal/market"
	"github.com/rickgao/deriv-gateway/internal/poller"
	"github.com/rickgao/deriv-gateway/internal/router"
	"github.com/rickgao/deriv-gateway/internal/writer"
)

const namespace = "deriv_gateway"

// Sources supplies stats snapshots. Nil sources are skipped.
type Sources struct {
	Channel  func() channel.Stats
	Router   func() router.Stats
	Writers  map[string]func() writer.WriterMetrics // Keyed by table name
	Poller   func() poller.Stats
	Registry func() market.Stats
}

// Collector implements prometheus.Collector over Sources.
type Collector struct {
	src Sources

	channelState    *prometheus.Desc
	channelMessages *prometheus.Desc
	channelDropped  *prometheus.Desc
	channelTimeouts *prometheus.Desc
	reconnects      *prometheus.Desc
	pending         *prometheus.Desc

	routed      *prometheus.Desc
	duplicates  *prometheus.Desc
	rejected    *prometheus.Desc
	bufferDepth *prometheus.Desc
	bufferCap   *prometheus.Desc
	bufferDrops *prometheus.Desc
	resizes     *prometheus.Desc

	writerRows    *prometheus.Desc
	writerErrors  *prometheus.Desc
	writerFlushes *prometheus.Desc

	pollCycles  *prometheus.Desc
	pollFetched *prometheus.Desc
	pollErrors  *prometheus.Desc

	catalogSize     *prometheus.Desc
	catalogSyncs    *prometheus.Desc
	catalogLastSync *prometheus.Desc
}

// NewCollector creates a Collector reading from src.
func NewCollector(src Sources) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		src: src,

		channelState:    desc("channel", "state", "1 for the current connection state", "state"),
		channelMessages: desc("channel", "messages_total", "Messages sent and received", "direction"),
		channelDropped:  desc("channel", "dropped_total", "Inbound messages that were unparseable or uncorrelated"),
		channelTimeouts: desc("channel", "timeouts_total", "Requests and subscriptions that timed out"),
		reconnects:      desc("channel", "reconnects_total", "Successful reconnections"),
		pending:         desc("channel", "pending", "In-flight correlated requests", "kind"),

		routed:      desc("router", "routed_total", "Records queued for writing", "kind"),
		duplicates:  desc("router", "duplicate_ticks_total", "Ticks skipped because the epoch was already routed"),
		rejected:    desc("router", "rejected_total", "Records rejected as invalid or because a buffer was full"),
		bufferDepth: desc("router", "buffer_items", "Items waiting in a buffer", "kind"),
		bufferCap:   desc("router", "buffer_capacity", "Current buffer capacity", "kind"),
		bufferDrops: desc("router", "buffer_dropped_total", "Items dropped at the buffer ceiling", "kind"),
		resizes:     desc("router", "buffer_resizes_total", "Buffer growth events", "kind"),

		writerRows:    desc("writer", "rows_total", "Rows written by result", "table", "result"),
		writerErrors:  desc("writer", "errors_total", "Failed batch statements", "table"),
		writerFlushes: desc("writer", "flushes_total", "Batch flushes", "table"),

		pollCycles:  desc("poller", "cycles_total", "Completed poll cycles"),
		pollFetched: desc("poller", "ticks_total", "Ticks taken"),
		pollErrors:  desc("poller", "errors_total", "Failed tick requests"),

		catalogSize:     desc("catalog", "entries", "Cached catalog entries", "catalog"),
		catalogSyncs:    desc("catalog", "syncs_total", "Catalog refreshes by result", "result"),
		catalogLastSync: desc("catalog", "last_sync_unix", "Unix time of the last successful catalog sync"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.channelState, c.channelMessages, c.channelDropped, c.channelTimeouts, c.reconnects, c.pending,
		c.routed, c.duplicates, c.rejected, c.bufferDepth, c.bufferCap, c.bufferDrops, c.resizes,
		c.writerRows, c.writerErrors, c.writerFlushes,
		c.pollCycles, c.pollFetched, c.pollErrors,
		c.catalogSize, c.catalogSyncs, c.catalogLastSync,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.src.Channel != nil {
		c.collectChannel(ch, c.src.Channel())
	}
	if c.src.Router != nil {
		c.collectRouter(ch, c.src.Router())
	}
	if len(c.src.Writers) > 0 {
		tables := make([]string, 0, len(c.src.Writers))
		for table := range c.src.Writers {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			c.collectWriter(ch, table, c.src.Writers[table]())
		}
	}
	if c.src.Poller != nil {
		st := c.src.Poller()
		ch <- counter(c.pollCycles, st.Cycles)
		ch <- counter(c.pollFetched, st.Fetched)
		ch <- counter(c.pollErrors, st.Errors)
	}
	if c.src.Registry != nil {
		c.collectCatalog(ch, c.src.Registry())
	}
}

func (c *Collector) collectChannel(ch chan<- prometheus.Metric, st channel.Stats) {
	for s := channel.StateIdle; s <= channel.StateClosed; s++ {
		var v float64
		if s == st.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.channelState, prometheus.GaugeValue, v, s.String())
	}
	ch <- counter(c.channelMessages, st.Sent, "sent")
	ch <- counter(c.channelMessages, st.Received, "received")
	ch <- counter(c.channelDropped, st.Dropped)
	ch <- counter(c.channelTimeouts, st.Timeouts)
	ch <- counter(c.reconnects, st.Reconnects)
	ch <- gauge(c.pending, float64(st.PendingRequests), "request")
	ch <- gauge(c.pending, float64(st.PendingSubscriptions), "subscription")
}

func (c *Collector) collectRouter(ch chan<- prometheus.Metric, st router.Stats) {
	ch <- counter(c.routed, st.TicksRouted, "tick")
	ch <- counter(c.routed, st.ContractsRouted, "contract")
	ch <- counter(c.duplicates, st.TicksDuplicate)
	ch <- counter(c.rejected, st.Rejected)
	for kind, b := range map[string]router.BufferStats{"tick": st.TickBuffer, "contract": st.ContractBuffer} {
		ch <- gauge(c.bufferDepth, float64(b.Count), kind)
		ch <- gauge(c.bufferCap, float64(b.Capacity), kind)
		ch <- counter(c.bufferDrops, b.Dropped, kind)
		ch <- counter(c.resizes, int64(b.ResizeCount), kind)
	}
}

func (c *Collector) collectWriter(ch chan<- prometheus.Metric, table string, st writer.WriterMetrics) {
	ch <- counter(c.writerRows, st.Inserts, table, "inserted")
	ch <- counter(c.writerRows, st.Conflicts, table, "conflict")
	ch <- counter(c.writerErrors, st.Errors, table)
	ch <- counter(c.writerFlushes, st.Flushes, table)
}

func (c *Collector) collectCatalog(ch chan<- prometheus.Metric, st market.Stats) {
	ch <- gauge(c.catalogSize, float64(st.Symbols), "symbols")
	ch <- gauge(c.catalogSize, float64(st.OpenSymbols), "open_symbols")
	ch <- gauge(c.catalogSize, float64(st.TradeTypes), "trade_types")
	ch <- counter(c.catalogSyncs, st.Refreshes, "ok")
	ch <- counter(c.catalogSyncs, st.Failures, "failed")
	ch <- gauge(c.catalogLastSync, float64(st.LastSyncAt)/1e6)
}

func counter(d *prometheus.Desc, v int64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
}

func gauge(d *prometheus.Desc, v float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
}
