// Package transport holds the collaborator surface the resilience core
// drives: session reconnect, capability probes, TCP reachability, and
// session-data reload. Wire encoding of the backend protocols lives
// behind these interfaces.
package transport

import (
	"context"

	"github.com/duongvq/homelink/internal/core/domain"
)

// Session is one established communication path to a backend
// interface. Implementations classify their errors at the boundary;
// callers never re-inspect them.
type Session interface {
	// Reconnect re-establishes the full session.
	Reconnect(ctx context.Context) error

	// Probe performs a cheap capability check against the backend.
	Probe(ctx context.Context) error

	// Reload refreshes session metadata after a reconnect. A returned
	// error counts as a stage failure.
	Reload(ctx context.Context) error

	// Close tears the session down.
	Close() error
}

// Endpoint locates a backend interface on the network.
type Endpoint struct {
	Interface domain.InterfaceID
	Host      string
	Port      int
	// Target is the dial string for the RPC layer, e.g. "host:port".
	Target string
}
