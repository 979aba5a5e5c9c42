// Package elm implements the ELM327 request/response protocol over an
// already-open transport: plain-text commands terminated by CR, replies
// terminated by the '>' prompt. Reconnection is the connection manager's
// job, never this layer's.
package elm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/transport"
)

var (
	// ErrTimeout means no prompt arrived within the configured window.
	ErrTimeout = errors.New("elm: reply timeout")
	// ErrTransportClosed means the channel errored mid-exchange.
	ErrTransportClosed = errors.New("elm: transport closed")
	// ErrProtocolMismatch means the adapter's replies do not look like
	// ELM327 text framing. Fatal for this connection attempt.
	ErrProtocolMismatch = errors.New("elm: protocol mismatch")
	// ErrNoProtocol means the adapter is alive but could not establish a
	// bus protocol with the vehicle.
	ErrNoProtocol = errors.New("elm: no vehicle protocol")
	// ErrNoData means the vehicle returned no data for a query.
	ErrNoData = errors.New("elm: no data")
)

const (
	prompt       = '>'
	readChunkGap = 100 * time.Millisecond
	resetSettle  = 500 * time.Millisecond
)

// Client issues textual command/response exchanges with an ELM327 adapter.
type Client struct {
	conn       transport.Conn
	timeout    time.Duration
	log        *logrus.Logger
	protocolID string
}

func NewClient(conn transport.Conn, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{conn: conn, timeout: timeout, log: log}
}

// ProtocolID returns the bus protocol number reported by ATDPN, empty until
// Initialize succeeds.
func (c *Client) ProtocolID() string { return c.protocolID }

// Send writes one command and reads until the prompt marker or the timeout
// elapses. The reply is returned with echo, prompt and blank lines stripped,
// remaining lines joined by '\n'.
func (c *Client) Send(ctx context.Context, cmd string) (string, error) {
	if _, err := c.conn.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	raw, err := c.readUntilPrompt(ctx)
	if err != nil {
		return "", err
	}

	reply := clean(raw, cmd)
	c.log.WithFields(logrus.Fields{"cmd": cmd, "reply": reply}).Debug("elm exchange")
	return reply, nil
}

// Query issues a diagnostic request and maps adapter-level "nothing to
// report" replies onto ErrNoData so one unsupported sensor never aborts a
// polling cycle.
func (c *Client) Query(ctx context.Context, cmd string) (string, error) {
	reply, err := c.Send(ctx, cmd)
	if err != nil {
		return "", err
	}
	if isNoData(reply) {
		return "", ErrNoData
	}
	return reply, nil
}

// Initialize runs the handshake: reset, disable echo/linefeeds/headers/
// spaces, select the protocol and verify the vehicle answers a mode 01
// probe. protocol is "auto" or an explicit ELM protocol number.
func (c *Client) Initialize(ctx context.Context, protocol string) error {
	banner, err := c.Send(ctx, "ATZ")
	if err != nil {
		return err
	}
	if !printable(banner) || !strings.Contains(banner, "ELM327") {
		return fmt.Errorf("%w: unexpected reset banner %q", ErrProtocolMismatch, banner)
	}
	// The chip needs a moment after reset before it accepts commands.
	select {
	case <-time.After(resetSettle):
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, cmd := range []string{"ATE0", "ATL0", "ATH0", "ATS0"} {
		reply, err := c.Send(ctx, cmd)
		if err != nil {
			return err
		}
		// ATE0 still echoes once before echo turns off.
		if !strings.Contains(reply, "OK") {
			return fmt.Errorf("%w: %s answered %q", ErrProtocolMismatch, cmd, reply)
		}
	}

	sp := "ATSP0"
	if protocol != "" && protocol != "auto" {
		sp = "ATSP" + protocol
	}
	if _, err := c.Send(ctx, sp); err != nil {
		return err
	}

	probe, err := c.Send(ctx, "0100")
	if err != nil {
		return err
	}
	if isNoData(probe) || !strings.Contains(strings.ReplaceAll(probe, " ", ""), "4100") {
		return fmt.Errorf("%w: probe answered %q", ErrNoProtocol, probe)
	}

	dpn, err := c.Send(ctx, "ATDPN")
	if err != nil {
		return err
	}
	dpn = strings.TrimPrefix(strings.TrimSpace(dpn), "A")
	if dpn == "" || dpn == "0" {
		return fmt.Errorf("%w: ATDPN reported %q", ErrNoProtocol, dpn)
	}
	c.protocolID = dpn

	c.log.WithField("protocol", dpn).Info("ELM327 handshake complete")
	return nil
}

func (c *Client) readUntilPrompt(ctx context.Context) (string, error) {
	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetReadTimeout(readChunkGap); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	var buf []byte
	chunk := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if i := strings.IndexByte(string(buf), prompt); i >= 0 {
				return string(buf[:i]), nil
			}
		}
		if err != nil && !transport.IsTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		// Serial reads time out with n == 0 and a nil error; TCP reads
		// surface a timeout error. Both just mean "keep waiting".
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}
	}
}

// clean strips the command echo, SEARCHING banners, carriage returns and
// blank lines from a raw reply.
func clean(raw, cmd string) string {
	raw = strings.ReplaceAll(raw, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == cmd || strings.HasPrefix(line, "SEARCHING") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func isNoData(reply string) bool {
	for _, marker := range []string{"NO DATA", "UNABLE TO CONNECT", "CAN ERROR", "BUS ERROR", "STOPPED", "?"} {
		if strings.Contains(reply, marker) {
			return true
		}
	}
	return reply == ""
}

func printable(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' {
			continue
		}
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
