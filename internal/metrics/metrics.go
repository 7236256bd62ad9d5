package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Metrics collector for replay server operations
type Collector struct {
	logger zerolog.Logger

	rpcDuration  *prometheus.HistogramVec
	httpDuration *prometheus.HistogramVec
	evictions    prometheus.Counter
}

func NewCollector(logger zerolog.Logger, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		logger: logger,
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartridge",
			Subsystem: "replay",
			Name:      "rpc_duration_seconds",
			Help:      "Latency of replay gRPC calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartridge",
			Subsystem: "replay",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of admin HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartridge",
			Subsystem: "replay",
			Name:      "eviction_events_total",
			Help:      "Capacity enforcement passes that evicted transitions",
		}),
	}

	for _, collector := range []prometheus.Collector{c.rpcDuration, c.httpDuration, c.evictions} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Track gRPC request metrics
func (c *Collector) RPCRequest(method, code string, duration time.Duration) {
	c.rpcDuration.WithLabelValues(method, code).Observe(duration.Seconds())
	c.logger.Debug().
		Str("metric", "rpc_request").
		Str("method", method).
		Str("code", code).
		Dur("duration", duration).
		Msg("RPC request metric")
}

// Track API request metrics
func (c *Collector) APIRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(statusCode)).Observe(duration.Seconds())
	c.logger.Debug().
		Str("metric", "api_request").
		Str("method", method).
		Str("route", route).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("API request metric")
}

// Track capacity evictions
func (c *Collector) Eviction(count int) {
	c.evictions.Inc()
	c.logger.Debug().
		Str("metric", "eviction").
		Int("count", count).
		Msg("Eviction metric")
}
