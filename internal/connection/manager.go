// Package connection owns the adapter connection lifecycle: a state machine
// from Disconnected through Connecting and Negotiating to Ready, with
// exponential-backoff reconnection. The polling scheduler drives it from a
// single goroutine; no other component opens or writes to the adapter.
package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/config"
	"obd-go-gateway/internal/elm"
	"obd-go-gateway/internal/transport"
)

// State is the adapter connection lifecycle state. Exactly one instance
// exists per process; the Manager is its only writer.
type State int32

const (
	Disconnected State = iota
	Connecting
	Negotiating
	Ready
	Degraded
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Negotiating:
		return "negotiating"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// Manager holds the transport and protocol client for one adapter and walks
// the connection state machine. All mutating methods must be called from the
// owning scheduler goroutine; State and LastError are safe from anywhere.
type Manager struct {
	cfg config.AdapterConfig
	log *logrus.Logger

	state   atomic.Int32
	lastErr atomic.Value // string
	noProto atomic.Bool

	conn   transport.Conn
	client *elm.Client

	backoff     time.Duration
	nextAttempt time.Time

	// OnStateChange, when set, observes every transition (metrics hook).
	OnStateChange func(State)
}

func NewManager(cfg config.AdapterConfig, log *logrus.Logger) *Manager {
	m := &Manager{cfg: cfg, log: log}
	m.lastErr.Store("")
	return m
}

func (m *Manager) State() State { return State(m.state.Load()) }

// LastError describes the most recent connection failure, empty while
// healthy. Frames surface it as error_details.
func (m *Manager) LastError() string { return m.lastErr.Load().(string) }

// NoProtocol reports whether the last failure was the adapter answering but
// failing to establish a vehicle bus protocol, as opposed to the transport
// being unreachable.
func (m *Manager) NoProtocol() bool { return m.noProto.Load() }

// Client returns the protocol client; only valid while Ready or Degraded.
func (m *Manager) Client() *elm.Client { return m.client }

// NextAttempt is the earliest time a reconnect may be tried. Zero means an
// attempt may run immediately.
func (m *Manager) NextAttempt() time.Time { return m.nextAttempt }

// Attempt performs one full connection attempt: open the transport, run the
// handshake, confirm a protocol. On success the manager is Ready and the
// backoff resets; on failure the transport is closed and the next attempt is
// scheduled with exponentially increasing delay.
func (m *Manager) Attempt(ctx context.Context) error {
	m.setState(Connecting)

	conn, err := transport.Dial(m.cfg)
	if err != nil {
		m.fail(err, Disconnected)
		return err
	}
	m.conn = conn
	m.client = elm.NewClient(conn, m.cfg.Timeout(), m.log)

	m.setState(Negotiating)
	if err := m.client.Initialize(ctx, m.cfg.Protocol); err != nil {
		conn.Close()
		m.conn = nil
		m.client = nil
		// A handshake mismatch is fatal for this attempt but not for the
		// process: the adapter may recover on its next reset.
		if errors.Is(err, elm.ErrProtocolMismatch) {
			m.fail(err, Failed)
			m.setState(Disconnected)
		} else {
			m.fail(err, Disconnected)
		}
		return err
	}

	m.backoff = 0
	m.nextAttempt = time.Time{}
	m.lastErr.Store("")
	m.noProto.Store(false)
	m.setState(Ready)
	return nil
}

// Drop tears the connection down after a transport-level error and schedules
// a reconnect.
func (m *Manager) Drop(err error) {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.client = nil
	}
	m.fail(err, Disconnected)
}

// MarkDegraded records a transient query failure: the transport stays open
// and queries retry in place next cycle.
func (m *Manager) MarkDegraded() {
	if m.State() == Ready {
		m.setState(Degraded)
	}
}

// MarkReady restores Ready after a clean cycle in Degraded.
func (m *Manager) MarkReady() {
	if m.State() == Degraded {
		m.setState(Ready)
	}
}

// Close releases the transport on shutdown. Closing the connection also
// unblocks any pending read.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.client = nil
	}
	m.setState(Disconnected)
}

func (m *Manager) fail(err error, s State) {
	m.lastErr.Store(err.Error())
	m.noProto.Store(errors.Is(err, elm.ErrNoProtocol))
	m.scheduleRetry()
	m.setState(s)
}

func (m *Manager) scheduleRetry() {
	if m.backoff == 0 {
		m.backoff = backoffBase
	} else {
		m.backoff *= 2
		if m.backoff > backoffCap {
			m.backoff = backoffCap
		}
	}
	m.nextAttempt = time.Now().Add(m.backoff)
	m.log.WithFields(logrus.Fields{
		"backoff": m.backoff,
		"error":   m.LastError(),
	}).Warn("adapter connection failed, retry scheduled")
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.log.WithFields(logrus.Fields{"from": old.String(), "to": s.String()}).Info("connection state")
		if m.OnStateChange != nil {
			m.OnStateChange(s)
		}
	}
}
