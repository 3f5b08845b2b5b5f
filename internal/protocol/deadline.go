package protocol

import (
	"io"
	"net"
	"time"
)

// IdleConn wraps conn so that every Read and Write first pushes the matching
// deadline idle into the future. A transfer then only fails when the peer
// stops making progress, however long the whole exchange takes. A
// non-positive idle returns conn unchanged.
func IdleConn(conn net.Conn, idle time.Duration) io.ReadWriter {
	if idle <= 0 {
		return conn
	}
	return &idleConn{conn: conn, idle: idle}
}

type idleConn struct {
	conn net.Conn
	idle time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.idle)); err != nil {
		return 0, err
	}
	return c.conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.idle)); err != nil {
		return 0, err
	}
	return c.conn.Write(p)
}
