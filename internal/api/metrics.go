package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/webmixer/internal/mixer"
)

// metricsNamespace prefixes every exported series.
const metricsNamespace = "webmixer"

// statusTimeout bounds the engine round trip made on each scrape.
const statusTimeout = 2 * time.Second

// metrics exposes the engine counters and HTTP request metrics on a
// private registry, so several servers can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	wsClients prometheus.Gauge
}

func newMetrics(reg *prometheus.Registry, engine *mixer.Engine, version string) *metrics {
	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "WebSocket clients currently admitted.",
		}),
	}

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	reg.MustRegister(
		m.requests,
		m.durations,
		m.wsClients,
		info,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newEngineCollector(engine),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *metrics) wsConnected() {
	m.wsClients.Inc()
}

func (m *metrics) wsDisconnected() {
	m.wsClients.Dec()
}

// engineCollector turns mixer.Stats and mixer.Status into series at
// scrape time.
type engineCollector struct {
	engine *mixer.Engine

	messages *prometheus.Desc
	counters map[string]*prometheus.Desc
	ready    *prometheus.Desc
	phase    *prometheus.Desc
	cached   *prometheus.Desc
	clients  *prometheus.Desc
	priming  *prometheus.Desc
}

func newEngineCollector(engine *mixer.Engine) *engineCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "engine", name), help, labels, nil)
	}
	return &engineCollector{
		engine:   engine,
		messages: desc("messages_total", "Messages received, by origin.", "origin"),
		counters: map[string]*prometheus.Desc{
			"duplicates":       desc("duplicates_total", "Messages dropped as repeats of the cached value."),
			"suppressed":       desc("suppressed_total", "Messages suppressed by a plugin."),
			"queries_answered": desc("queries_answered_total", "Queries answered from the cache."),
			"broadcasts":       desc("broadcasts_total", "Broadcast passes."),
			"udp_sends":        desc("udp_sends_total", "Datagrams sent to the desk and endpoints."),
			"client_sends":     desc("client_sends_total", "Frames queued to WebSocket clients."),
			"send_errors":      desc("send_errors_total", "Failed sends to any destination."),
			"rejected":         desc("rejected_total", "Clients refused before the desk was ready."),
			"malformed":        desc("malformed_total", "Malformed client frames dropped."),
			"session_resets":   desc("session_resets_total", "Desk session changes."),
		},
		ready:   desc("ready", "1 when the desk initialisation has finished."),
		phase:   desc("phase", "Current initialisation phase.", "phase"),
		cached:  desc("cached_entries", "Entries in the state cache."),
		clients: desc("registered_clients", "Clients in the broadcast registry."),
		priming: desc("priming", "1 while background send level priming runs."),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messages
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.ready
	ch <- c.phase
	ch <- c.cached
	ch <- c.clients
	ch <- c.priming
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.engine.Stats()
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(st.DeskMessages), string(mixer.OriginDesk))
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(st.ClientMessages), string(mixer.OriginClient))
	ch <- prometheus.MustNewConstMetric(c.messages, prometheus.CounterValue, float64(st.Injected), string(mixer.OriginSystem))

	for name, v := range map[string]uint64{
		"duplicates":       st.Duplicates,
		"suppressed":       st.Suppressed,
		"queries_answered": st.QueriesAnswered,
		"broadcasts":       st.Broadcasts,
		"udp_sends":        st.UDPSends,
		"client_sends":     st.ClientSends,
		"send_errors":      st.SendErrors,
		"rejected":         st.Rejected,
		"malformed":        st.Malformed,
		"session_resets":   st.SessionResets,
	} {
		ch <- prometheus.MustNewConstMetric(c.counters[name], prometheus.CounterValue, float64(v))
	}

	// Loop state is only reported while the engine is running.
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	status, err := c.engine.Status(ctx)
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, boolGauge(status.Ready))
	ch <- prometheus.MustNewConstMetric(c.phase, prometheus.GaugeValue, 1, status.Phase)
	ch <- prometheus.MustNewConstMetric(c.cached, prometheus.GaugeValue, float64(status.Cached))
	ch <- prometheus.MustNewConstMetric(c.clients, prometheus.GaugeValue, float64(status.Clients))
	ch <- prometheus.MustNewConstMetric(c.priming, prometheus.GaugeValue, boolGauge(status.Priming))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
