// Package connection implements the Connection Supervisor (spec.md 4.1): a
// single logical connection to the JetStream cluster, exposing a lazily
// refreshed context with cached, rate-limited health checks.
package connection

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syncbridge/eventbridge/internal/bridgeerrors"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// State is one of the Connection Supervisor's state machine values.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var allowedSchemes = map[string]bool{
	"nats":     true,
	"nats+tls": true,
	"tls":      true,
}

const (
	healthCacheTTL   = 30 * time.Second
	healthMinGapSecs = 5 * time.Second
)

// Supervisor owns the NATS connection and JetStream context for the bridge
// process. It is concurrency-safe: Connect is single-flight and Connected
// rate-limits uncached probes, matching spec.md 4.1.
type Supervisor struct {
	urls   []string
	opts   []nats.Option
	logger *logger.Logger

	mu             sync.Mutex
	state          State
	nc             *nats.Conn
	js             nats.JetStreamContext
	disconnectedAt time.Time
	lastReason     string
	connecting     bool

	healthMu       sync.Mutex
	healthCachedAt time.Time
	healthCachedOK bool
	lastProbeAt    time.Time
}

// New validates the given NATS URLs and returns a disconnected Supervisor.
func New(urls []string, log *logger.Logger, opts ...nats.Option) (*Supervisor, error) {
	if len(urls) == 0 {
		return nil, bridgeerrors.NewMissingConfigurationError("nats_urls")
	}
	for _, u := range urls {
		if err := validateURL(u); err != nil {
			return nil, err
		}
	}
	return &Supervisor{
		urls:   urls,
		opts:   opts,
		logger: log,
		state:  StateDisconnected,
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return bridgeerrors.NewConnectionError("invalid NATS URL: "+err.Error(), map[string]any{"url": raw})
	}
	if !allowedSchemes[u.Scheme] {
		return bridgeerrors.NewConnectionError("unsupported scheme: "+u.Scheme, map[string]any{"url": raw})
	}
	if u.Hostname() == "" {
		return bridgeerrors.NewConnectionError("host is required", map[string]any{"url": raw})
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return bridgeerrors.NewConnectionError("port must be between 1 and 65535", map[string]any{"url": raw})
		}
	}
	return nil
}

// Connect establishes the connection if not already connected. It is
// idempotent and safe to call from multiple goroutines concurrently: only
// one physical connection attempt runs at a time.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.connecting {
		s.mu.Unlock()
		// Another goroutine is already dialing; wait for it to finish by
		// polling state briefly rather than blocking forever on a channel
		// nobody closes on failure.
		for i := 0; i < 100; i++ {
			time.Sleep(10 * time.Millisecond)
			s.mu.Lock()
			state := s.state
			connecting := s.connecting
			s.mu.Unlock()
			if !connecting {
				if state == StateConnected {
					return nil
				}
				return bridgeerrors.NewConnectionError("concurrent connect attempt failed", nil)
			}
		}
		return bridgeerrors.NewConnectionError("timed out waiting for concurrent connect", nil)
	}
	s.connecting = true
	s.state = StateConnecting
	s.mu.Unlock()

	nc, js, err := s.dial()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting = false
	if err != nil {
		s.state = StateFailed
		s.lastReason = err.Error()
		return err
	}
	s.nc = nc
	s.js = js
	s.state = StateConnected
	return nil
}

func (s *Supervisor) dial() (*nats.Conn, nats.JetStreamContext, error) {
	opts := append([]nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.onDisconnect(err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.onReconnect(nc)
		}),
	}, s.opts...)

	// nats.go takes a single comma-delimited server string for failover
	// across a cluster; joining here, rather than dialing s.urls[0] alone,
	// is what lets the client fail over to the rest of Config.NatsURLs.
	servers := strings.Join(s.urls, ",")
	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, nil, bridgeerrors.NewConnectionError(err.Error(), map[string]any{"url": servers})
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, bridgeerrors.NewConnectionError(err.Error(), nil)
	}

	// account_info has no responders when JetStream is disabled on this
	// account; that maps directly to the spec's "JetStream not enabled".
	if _, err := js.AccountInfo(); err != nil {
		nc.Close()
		return nil, nil, bridgeerrors.NewConnectionError("JetStream not enabled: "+err.Error(), nil)
	}

	if s.logger != nil {
		s.logger.WithFields(map[string]any{"url": s.urls[0]}).Info("connected to NATS JetStream")
	}
	return nc, js, nil
}

func (s *Supervisor) onDisconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReconnecting
	s.disconnectedAt = time.Now()
	if err != nil {
		s.lastReason = err.Error()
	}
	if s.logger != nil {
		s.logger.WithFields(map[string]any{"reason": s.lastReason}).Warn("NATS disconnected")
	}
}

func (s *Supervisor) onReconnect(nc *nats.Conn) {
	js, err := nc.JetStream()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.lastReason = err.Error()
		return
	}
	s.js = js
	s.state = StateConnected
	if s.logger != nil {
		s.logger.WithFields(map[string]any{"url": nc.ConnectedUrl()}).Info("NATS reconnected")
	}
}

// JetStream returns the current JetStream context, or ConnectionNotEstablished
// if Connect has never succeeded.
func (s *Supervisor) JetStream() (nats.JetStreamContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.js == nil {
		return nil, &bridgeerrors.ConnectionNotEstablished{}
	}
	return s.js, nil
}

// Conn returns the underlying NATS connection, for components (e.g. the
// outbox publisher) that need raw connection access such as RTT checks.
func (s *Supervisor) Conn() (*nats.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		return nil, &bridgeerrors.ConnectionNotEstablished{}
	}
	return s.nc, nil
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the connection is healthy, caching a positive
// result for healthCacheTTL and rate-limiting uncached probes to one every
// healthMinGapSecs, per spec.md 4.1.
func (s *Supervisor) Connected() (bool, error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	now := time.Now()
	if s.healthCachedOK && now.Sub(s.healthCachedAt) < healthCacheTTL {
		return true, nil
	}
	if !s.lastProbeAt.IsZero() && now.Sub(s.lastProbeAt) < healthMinGapSecs {
		return false, bridgeerrors.NewHealthCheckFailedError("health check rate limit exceeded")
	}
	s.lastProbeAt = now

	s.mu.Lock()
	nc := s.nc
	state := s.state
	s.mu.Unlock()

	ok := state == StateConnected && nc != nil && nc.IsConnected()
	if ok {
		s.healthCachedOK = true
		s.healthCachedAt = now
		return true, nil
	}
	s.healthCachedOK = false
	return false, bridgeerrors.NewHealthCheckFailedError("not connected")
}

// Disconnect idempotently closes the connection and resets state.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil {
		s.nc.Close()
	}
	s.nc = nil
	s.js = nil
	s.state = StateDisconnected
}
