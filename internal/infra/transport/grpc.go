package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/duongvq/homelink/internal/resilience/classify"
)

// ReloadFunc refreshes session metadata after a reconnect. Supplied by
// the domain layer; nil means the interface has nothing to reload.
type ReloadFunc func(ctx context.Context) error

// GRPCSession implements Session over a gRPC channel. The capability
// probe uses the standard health service, so probe failures arrive as
// status-code-bearing errors the classifier understands.
type GRPCSession struct {
	endpoint Endpoint
	timeout  time.Duration
	reload   ReloadFunc
	log      *slog.Logger

	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewGRPCSession creates a session without dialing. The first
// Reconnect establishes the channel; connection validation owns that
// call.
func NewGRPCSession(endpoint Endpoint, timeout time.Duration, reload ReloadFunc, log *slog.Logger) *GRPCSession {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GRPCSession{
		endpoint: endpoint,
		timeout:  timeout,
		reload:   reload,
		log:      log,
	}
}

// Reconnect tears down any existing channel and dials a fresh one.
// Errors are classified at this boundary.
func (s *GRPCSession) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	target := s.endpoint.Target
	var opts []grpc.DialOption
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return classify.Wrap(fmt.Errorf("dial %s: %w", target, err))
	}

	// NewClient is lazy; force the handshake so a dead backend fails
	// here instead of on the first request.
	checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	health := healthpb.NewHealthClient(conn)
	if _, err := health.Check(checkCtx, &healthpb.HealthCheckRequest{}); err != nil {
		_ = conn.Close()
		return classify.Wrap(fmt.Errorf("handshake with %s: %w", target, err))
	}

	s.conn = conn
	s.log.Debug("Session established", "interface", s.endpoint.Interface, "target", target)
	return nil
}

// Probe runs the health check as the cheap capability probe.
func (s *GRPCSession) Probe(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return classify.Wrap(fmt.Errorf("probe %s: no active channel", s.endpoint.Interface))
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	health := healthpb.NewHealthClient(conn)
	if _, err := health.Check(probeCtx, &healthpb.HealthCheckRequest{}); err != nil {
		return classify.Wrap(fmt.Errorf("probe %s: %w", s.endpoint.Interface, err))
	}
	return nil
}

// Reload invokes the configured metadata reload hook.
func (s *GRPCSession) Reload(ctx context.Context) error {
	if s.reload == nil {
		return nil
	}
	if err := s.reload(ctx); err != nil {
		return classify.Wrap(fmt.Errorf("reload %s: %w", s.endpoint.Interface, err))
	}
	return nil
}

// Close tears the channel down.
func (s *GRPCSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
