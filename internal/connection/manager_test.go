package connection

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-go-gateway/internal/config"
)

// elmServer is a minimal scripted ELM327 emulator over TCP: one reply per
// CR-terminated command, unknown commands answered with "?".
type elmServer struct {
	ln      net.Listener
	replies map[string]string
}

func newELMServer(t *testing.T, replies map[string]string) *elmServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &elmServer{ln: ln, replies: replies}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *elmServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *elmServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *elmServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, "\r")
		reply, ok := s.replies[cmd]
		if !ok {
			reply = "?\r\r>"
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func emulatorReplies() map[string]string {
	return map[string]string{
		"ATZ":   "ATZ\r\rELM327 v1.5\r\r>",
		"ATE0":  "ATE0\rOK\r\r>",
		"ATL0":  "OK\r\r>",
		"ATH0":  "OK\r\r>",
		"ATS0":  "OK\r\r>",
		"ATSP0": "OK\r\r>",
		"0100":  "SEARCHING...\r4100BE3FA813\r\r>",
		"ATDPN": "A6\r\r>",
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func adapterConfig(port int) config.AdapterConfig {
	return config.AdapterConfig{Host: "127.0.0.1", Port: port, TimeoutMs: 1000, Protocol: "auto"}
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestAttemptRefusedSchedulesBackoff(t *testing.T) {
	m := NewManager(adapterConfig(closedPort(t)), testLogger())

	err := m.Attempt(context.Background())
	require.Error(t, err)
	assert.Equal(t, Disconnected, m.State())
	assert.NotEmpty(t, m.LastError())
	assert.False(t, m.NoProtocol())
	assert.True(t, m.NextAttempt().After(time.Now()))
	assert.Equal(t, 1*time.Second, m.backoff)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	m := NewManager(adapterConfig(closedPort(t)), testLogger())

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		require.Error(t, m.Attempt(context.Background()))
		assert.Equal(t, w*time.Second, m.backoff, "attempt %d", i+1)
	}
}

func TestAttemptSuccess(t *testing.T) {
	srv := newELMServer(t, emulatorReplies())
	m := NewManager(adapterConfig(srv.port()), testLogger())

	require.NoError(t, m.Attempt(context.Background()))
	assert.Equal(t, Ready, m.State())
	assert.Empty(t, m.LastError())
	assert.True(t, m.NextAttempt().IsZero())
	require.NotNil(t, m.Client())
	assert.Equal(t, "6", m.Client().ProtocolID())

	m.Close()
	assert.Equal(t, Disconnected, m.State())
	assert.Nil(t, m.Client())
}

func TestBackoffResetsAfterSuccess(t *testing.T) {
	srv := newELMServer(t, emulatorReplies())
	m := NewManager(adapterConfig(closedPort(t)), testLogger())

	require.Error(t, m.Attempt(context.Background()))
	require.Error(t, m.Attempt(context.Background()))
	assert.Equal(t, 2*time.Second, m.backoff)

	m.cfg = adapterConfig(srv.port())
	require.NoError(t, m.Attempt(context.Background()))
	assert.Equal(t, time.Duration(0), m.backoff)
}

func TestAttemptNoVehicleProtocol(t *testing.T) {
	replies := emulatorReplies()
	replies["0100"] = "SEARCHING...\rUNABLE TO CONNECT\r\r>"
	srv := newELMServer(t, replies)
	m := NewManager(adapterConfig(srv.port()), testLogger())

	require.Error(t, m.Attempt(context.Background()))
	assert.Equal(t, Disconnected, m.State())
	assert.True(t, m.NoProtocol())
}

func TestAttemptNotAnELM(t *testing.T) {
	// A server that talks, but not ELM327 text framing.
	replies := map[string]string{"ATZ": "HTTP/1.1 400 Bad Request\r\r>"}
	srv := newELMServer(t, replies)
	m := NewManager(adapterConfig(srv.port()), testLogger())

	var seen []State
	m.OnStateChange = func(s State) { seen = append(seen, s) }

	require.Error(t, m.Attempt(context.Background()))
	assert.Equal(t, Disconnected, m.State())
	assert.Contains(t, seen, Failed)
}

func TestDegradedTransitions(t *testing.T) {
	srv := newELMServer(t, emulatorReplies())
	m := NewManager(adapterConfig(srv.port()), testLogger())
	require.NoError(t, m.Attempt(context.Background()))

	m.MarkDegraded()
	assert.Equal(t, Degraded, m.State())
	m.MarkDegraded()
	assert.Equal(t, Degraded, m.State())
	m.MarkReady()
	assert.Equal(t, Ready, m.State())

	// MarkDegraded is a no-op unless Ready.
	m.Drop(context.DeadlineExceeded)
	assert.Equal(t, Disconnected, m.State())
	m.MarkDegraded()
	assert.Equal(t, Disconnected, m.State())
}
