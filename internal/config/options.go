// Package config provides configuration types for the transactor.
package config

import (
	"io"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wagiedev/transactor-go/internal/codec"
)

// Options configures a transactor.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Codec frames messages on both streams.
	// If nil, newline-delimited JSON is used.
	Codec codec.Codec

	// OnAnomaly is called from the background loop for every rejected frame
	// and every response whose id has no pending request. It must not block.
	OnAnomaly func(error)

	// Registerer receives the transactor's Prometheus metrics.
	// If nil, metrics are kept but not registered anywhere.
	Registerer prometheus.Registerer

	// MetricsLabels are constant labels added to every metric, for telling
	// several transactors apart in one registry.
	MetricsLabels prometheus.Labels

	// RequestSchema, if set, validates the body of every inbound request
	// before the handler sees it. Requests that fail validation are rejected.
	RequestSchema *jsonschema.Schema

	// Cwd sets the working directory of a spawned peer process.
	Cwd string

	// Env provides additional environment variables for a spawned peer process.
	Env map[string]string

	// Stderr is called with each line a spawned peer process writes to stderr.
	Stderr func(string)
}

// Defaults fills unset fields with their default values and returns o.
func (o *Options) Defaults() *Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.Codec == nil {
		o.Codec = codec.JSON()
	}

	if o.OnAnomaly == nil {
		o.OnAnomaly = func(error) {}
	}

	return o
}
