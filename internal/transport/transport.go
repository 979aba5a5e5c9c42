// Package transport abstracts the raw byte channel to the diagnostic
// adapter. It knows nothing about the command language; the protocol client
// layers request/response semantics on top.
package transport

import (
	"fmt"
	"net"
	"time"

	"go.bug.st/serial"

	"obd-go-gateway/internal/config"
)

// Conn is a bidirectional byte channel to the adapter. SetReadTimeout bounds
// each subsequent Read; a timed-out Read returns either a timeout error or
// zero bytes depending on the underlying channel, callers must handle both.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(d time.Duration) error
	Close() error
}

// Dial opens the transport described by the adapter configuration: serial
// when a device path is set, TCP otherwise.
func Dial(cfg config.AdapterConfig) (Conn, error) {
	if cfg.Device != "" {
		return dialSerial(cfg)
	}
	return dialTCP(cfg)
}

func dialTCP(cfg config.AdapterConfig) (Conn, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	c, err := net.DialTimeout("tcp", addr, cfg.Timeout())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &tcpConn{conn: c}, nil
}

func dialSerial(cfg config.AdapterConfig) (Conn, error) {
	mode := &serial.Mode{BaudRate: cfg.Baud}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &serialConn{port: port}, nil
}

type tcpConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (c *tcpConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Read(p)
}

func (c *tcpConn) Write(p []byte) (int, error) { return c.conn.Write(p) }

func (c *tcpConn) SetReadTimeout(d time.Duration) error {
	c.timeout = d
	return nil
}

func (c *tcpConn) Close() error { return c.conn.Close() }

type serialConn struct {
	port serial.Port
}

func (c *serialConn) Read(p []byte) (int, error)  { return c.port.Read(p) }
func (c *serialConn) Write(p []byte) (int, error) { return c.port.Write(p) }

func (c *serialConn) SetReadTimeout(d time.Duration) error {
	return c.port.SetReadTimeout(d)
}

func (c *serialConn) Close() error { return c.port.Close() }

// IsTimeout reports whether err is a transport-level read timeout rather
// than a broken channel.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
