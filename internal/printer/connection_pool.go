package printer

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Connection is an open byte stream to a printer
type Connection interface {
	Write(data []byte) (int, error)
	Close() error
}

// Dialer opens a connection to a printer
type Dialer func(ctx context.Context, p *Printer) (Connection, error)

// ConnectionPool manages connections to printers
type ConnectionPool struct {
	connections map[string]Connection
	mu          sync.RWMutex
	dial        Dialer
	logger      zerolog.Logger
}

// NewConnectionPool creates a pool that dials real devices
func NewConnectionPool(dialTimeout time.Duration, logger zerolog.Logger) *ConnectionPool {
	p := &ConnectionPool{
		connections: make(map[string]Connection),
		logger:      logger,
	}
	p.dial = p.deviceDialer(dialTimeout)
	return p
}

// SetDialer replaces the function used to open connections
func (p *ConnectionPool) SetDialer(d Dialer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dial = d
}

func (p *ConnectionPool) deviceDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, printer *Printer) (Connection, error) {
		switch printer.Type {
		case TypeUSB:
			conn, err := ConnectUSB(printer.VID, printer.PID)
			if err == nil {
				return conn, nil
			}
			// macOS often exposes USB printers as serial ports instead
			if runtime.GOOS == "darwin" {
				for _, port := range usbSerialPorts() {
					if serialConn, serialErr := ConnectSerial(port, DefaultBaud); serialErr == nil {
						p.logger.Debug().Str("printer", printer.ID).Str("port", port).Msg("usb fallback to serial")
						return serialConn, nil
					}
				}
			}
			return nil, err
		case TypeSerial:
			return ConnectSerial(printer.Device, DefaultBaud)
		case TypeNetwork:
			return ConnectNetwork(ctx, printer.Host, printer.Port, timeout)
		default:
			return nil, errors.Errorf("unsupported printer type: %s", printer.Type)
		}
	}
}

// Connect establishes a connection to a printer unless one is open
func (p *ConnectionPool) Connect(ctx context.Context, printer *Printer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.connections[printer.ID]; exists {
		return nil
	}

	conn, err := p.dial(ctx, printer)
	if err != nil {
		return err
	}

	p.connections[printer.ID] = conn
	p.logger.Info().Str("printer", printer.ID).Str("type", printer.Type).Msg("printer connected")
	return nil
}

// Send writes an encoded receipt to a connected printer
func (p *ConnectionPool) Send(printerID string, data []byte) error {
	p.mu.RLock()
	conn, exists := p.connections[printerID]
	p.mu.RUnlock()

	if !exists {
		return errors.Errorf("printer not connected: %s", printerID)
	}

	n, err := conn.Write(data)
	if err != nil {
		return errors.Wrapf(err, "failed to write to printer %s", printerID)
	}
	if n != len(data) {
		return errors.Errorf("short write to printer %s: %d of %d bytes", printerID, n, len(data))
	}
	return nil
}

// Disconnect closes a printer connection
func (p *ConnectionPool) Disconnect(printerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, exists := p.connections[printerID]
	if !exists {
		return nil
	}

	delete(p.connections, printerID)
	return conn.Close()
}

// DisconnectAll closes all connections
func (p *ConnectionPool) DisconnectAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, conn := range p.connections {
		if err := conn.Close(); err != nil {
			p.logger.Warn().Err(err).Str("printer", id).Msg("close failed")
		}
		delete(p.connections, id)
	}
}

// IsConnected checks if a printer is connected
func (p *ConnectionPool) IsConnected(printerID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, exists := p.connections[printerID]
	return exists
}

// usbSerialPorts lists serial ports that may belong to a USB printer
func usbSerialPorts() []string {
	var ports []string

	switch runtime.GOOS {
	case "darwin":
		for _, port := range append(glob("/dev/cu.*"), glob("/dev/tty.*")...) {
			if !skipMacPort(port) {
				ports = append(ports, port)
			}
		}
	case "linux":
		ports = append(glob("/dev/ttyUSB*"), glob("/dev/ttyACM*")...)
	}

	return ports
}

var macSkipPatterns = []string{"Bluetooth", "Modem", "SPP", "DialIn", "Callout", "KeySerial", "debug-console"}

func skipMacPort(port string) bool {
	for _, pattern := range macSkipPatterns {
		if strings.Contains(port, pattern) {
			return true
		}
	}
	return false
}

func glob(pattern string) []string {
	matches, _ := filepath.Glob(pattern)
	return matches
}
