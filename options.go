package transactor

import (
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/transactor-go/internal/codec"
	"github.com/wagiedev/transactor-go/internal/config"
)

// Options holds the transactor configuration assembled from Option values.
type Options = config.Options

// Codec frames messages on the wire.
type Codec = codec.Codec

// JSONCodec returns the newline-delimited JSON codec. This is the default.
func JSONCodec() Codec {
	return codec.JSON()
}

// CBORCodec returns the CBOR codec, where frames are concatenated CBOR items.
func CBORCodec() Codec {
	return codec.CBOR()
}

// CodecByName returns the codec called name ("json" or "cbor").
func CodecByName(name string) (Codec, bool) {
	return codec.ByName(name)
}

// Option configures a transactor using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a new Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCodec sets the wire codec. Both peers must use the same one.
func WithCodec(c Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithAnomalyHandler registers a callback for messages the loop rejects and
// for responses whose id has no pending request.
//
// The callback runs on the background loop and must not block. The error is
// either a *RejectedError or wraps ErrUnknownID.
func WithAnomalyHandler(fn func(error)) Option {
	return func(o *Options) {
		o.OnAnomaly = fn
	}
}

// WithRequestSchema validates every inbound request body against schema
// before the handler sees it. Requests that fail are rejected as anomalies
// and never answered.
func WithRequestSchema(schema *jsonschema.Schema) Option {
	return func(o *Options) {
		o.RequestSchema = schema
	}
}

// ===== Metrics =====

// WithRegisterer registers the transactor's Prometheus metrics with reg.
// Transactors sharing one reg need distinct WithMetricsLabels, otherwise
// registration panics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

// WithMetricsLabels adds constant labels to every metric. Use it to tell
// several transactors apart in one registry.
func WithMetricsLabels(labels prometheus.Labels) Option {
	return func(o *Options) {
		o.MetricsLabels = labels
	}
}

// ===== Peer Process =====

// WithCwd sets the working directory of a peer started by StartProcess.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithEnv adds environment variables for a peer started by StartProcess.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithStderr sets a callback for each stderr line of a peer started by
// StartProcess.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}
