package prioritized

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Defaults follow the distributed prioritized replay paper.
const (
	DefaultAlpha = 0.6
	DefaultBeta  = 0.4
)

// Option configures a Buffer.
type Option func(*options)

type options struct {
	seed     int64
	alpha    float32
	beta     float32
	prefetch int

	logger zerolog.Logger

	registerer  prometheus.Registerer
	metricsName string

	onEvict func(n int)
}

// WithSeed seeds the buffer's random source.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithAlpha sets the priority exponent.
func WithAlpha(alpha float32) Option {
	return func(o *options) {
		o.alpha = alpha
	}
}

// WithBeta sets the importance-sampling exponent.
func WithBeta(beta float32) Option {
	return func(o *options) {
		o.beta = beta
	}
}

// WithPrefetch sets how many draws are computed ahead of Sample calls.
// Zero disables prefetching.
func WithPrefetch(depth int) Option {
	return func(o *options) {
		o.prefetch = depth
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers the buffer's Prometheus collectors with reg, labelled
// with name. A nil registerer leaves metrics disabled.
func WithMetrics(reg prometheus.Registerer, name string) Option {
	return func(o *options) {
		o.registerer = reg
		o.metricsName = name
	}
}

// WithEvictCallback is invoked, outside every buffer lock, with the number of
// items dropped each time the buffer enforces its capacity or is trimmed.
func WithEvictCallback(fn func(n int)) Option {
	return func(o *options) {
		o.onEvict = fn
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		alpha:  DefaultAlpha,
		beta:   DefaultBeta,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}
