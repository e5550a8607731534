// Package printer delivers interpreted receipts to physical printers:
// ESC/POS encoding, device detection and connections, and a print queue
package printer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/registry"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
)

// Printer types
const (
	TypeUSB     = "usb"
	TypeSerial  = "serial"
	TypeNetwork = "network"
)

// Printer represents a detected or manually added printer
type Printer struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // usb, serial, network
	Description string `json:"description"`
	Device      string `json:"device,omitempty"`
	VID         uint16 `json:"vid,omitempty"`
	PID         uint16 `json:"pid,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Name        string `json:"name,omitempty"`        // Custom user-set name
	PaperWidth  string `json:"paper_width,omitempty"` // empty until configured
}

// DisplayName returns the custom name, or the description when unset
func (p *Printer) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Description
}

type detector func() ([]*Printer, error)

// Manager handles printer detection and management
type Manager struct {
	registry *registry.Registry
	printers map[string]*Printer
	network  map[string]*Printer // manually added, kept across scans
	mu       sync.RWMutex
	logger   zerolog.Logger

	detectors map[string]detector
}

// NewManager creates a printer manager backed by reg
func NewManager(reg *registry.Registry, logger zerolog.Logger) *Manager {
	m := &Manager{
		registry: reg,
		printers: make(map[string]*Printer),
		network:  make(map[string]*Printer),
		logger:   logger,
	}
	m.detectors = map[string]detector{
		TypeUSB:    m.detectUSB,
		TypeSerial: m.detectSerial,
	}
	m.restoreNetworkPrinters()
	return m
}

// restoreNetworkPrinters re-adds network printers remembered by the registry
func (m *Manager) restoreNetworkPrinters() {
	for _, entry := range m.registry.GetAll() {
		if entry.Type != TypeNetwork {
			continue
		}
		p := &Printer{
			ID:          entry.ID,
			Type:        TypeNetwork,
			Description: entry.Description,
			Host:        entry.Host,
			Port:        entry.Port,
			Name:        entry.Name,
			PaperWidth:  entry.PaperWidth,
		}
		m.network[p.ID] = p
		m.printers[p.ID] = p
	}
}

// DetectPrinters scans for local printers. Network printers added by hand
// stay in the list.
func (m *Manager) DetectPrinters() ([]*Printer, error) {
	var found []*Printer
	for kind, detect := range m.detectors {
		printers, err := detect()
		if err != nil {
			m.logger.Warn().Err(err).Str("kind", kind).Msg("printer detection failed")
			continue
		}
		found = append(found, printers...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.printers = make(map[string]*Printer, len(found)+len(m.network))
	for _, p := range found {
		m.printers[p.ID] = p
	}
	for id, p := range m.network {
		m.printers[id] = p
	}

	return m.sortedLocked(), nil
}

// GetPrinter returns a printer by ID
func (m *Manager) GetPrinter(id string) *Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.printers[id]
}

// GetAllPrinters returns all known printers ordered by ID
func (m *Manager) GetAllPrinters() []*Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []*Printer {
	result := make([]*Printer, 0, len(m.printers))
	for _, p := range m.printers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// SetPrinterName sets a custom name for a printer
func (m *Manager) SetPrinterName(id string, name string) bool {
	if !m.registry.SetPrinterName(id, name) {
		return false
	}

	m.mu.Lock()
	if printer, exists := m.printers[id]; exists {
		printer.Name = name
	}
	m.mu.Unlock()

	return true
}

// SetPaperWidth records the paper a printer is loaded with. An empty width
// falls back to the server default.
func (m *Manager) SetPaperWidth(id string, width string) error {
	if width != "" && !layout.ValidPaperWidth(width) {
		return errors.Errorf("invalid paper width %q (must be 58mm, 80mm or 112mm)", width)
	}
	if !m.registry.SetPaperWidth(id, width) {
		return errors.Errorf("printer not found: %s", id)
	}

	m.mu.Lock()
	if printer, exists := m.printers[id]; exists {
		printer.PaperWidth = width
	}
	m.mu.Unlock()

	return nil
}

// AddNetworkPrinter manually adds a network printer and returns its ID
func (m *Manager) AddNetworkPrinter(host string, port int, description string) string {
	if description == "" {
		description = fmt.Sprintf("Network: %s:%d", host, port)
	}

	id := m.registry.GetPrinterID(registry.PrinterInfo{
		Type:        TypeNetwork,
		Host:        host,
		Port:        port,
		Description: description,
	})

	printer := &Printer{
		ID:          id,
		Type:        TypeNetwork,
		Description: description,
		Host:        host,
		Port:        port,
		Name:        m.registry.GetPrinterName(id),
		PaperWidth:  m.registry.GetPaperWidth(id),
	}

	m.mu.Lock()
	m.network[id] = printer
	m.printers[id] = printer
	m.mu.Unlock()

	m.logger.Info().Str("printer", id).Str("host", host).Int("port", port).Msg("network printer added")
	return id
}
