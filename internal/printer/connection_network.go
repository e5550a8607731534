package printer

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultDialTimeout bounds the TCP connect to a network printer
const DefaultDialTimeout = 5 * time.Second

// NetworkConnection represents a network printer connection (raw TCP, usually port 9100)
type NetworkConnection struct {
	conn net.Conn
	mu   sync.Mutex
}

// ConnectNetwork connects to a network printer
func ConnectNetwork(ctx context.Context, host string, port int, timeout time.Duration) (*NetworkConnection, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to network printer %s", address)
	}

	return &NetworkConnection{conn: conn}, nil
}

// Write sends data to the network printer
func (c *NetworkConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.Write(data)
}

// Close closes the network connection
func (c *NetworkConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
