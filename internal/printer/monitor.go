package printer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Monitor periodically rescans printers and reports arrivals and departures
type Monitor struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger
	previous map[string]*Printer

	onAdded   func(*Printer)
	onRemoved func(*Printer)
}

// NewMonitor creates a new printer monitor
func NewMonitor(manager *Manager, interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{
		manager:  manager,
		interval: interval,
		logger:   logger,
		previous: make(map[string]*Printer),
	}
}

// OnPrinterAdded sets a callback for when a printer appears
func (m *Monitor) OnPrinterAdded(callback func(*Printer)) {
	m.onAdded = callback
}

// OnPrinterRemoved sets a callback for when a printer disappears
func (m *Monitor) OnPrinterRemoved(callback func(*Printer)) {
	m.onRemoved = callback
}

// Run scans immediately and then every interval until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	m.checkChanges()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkChanges()
		}
	}
}

func (m *Monitor) checkChanges() {
	current, err := m.manager.DetectPrinters()
	if err != nil {
		m.logger.Warn().Err(err).Msg("printer detection failed")
		return
	}

	currentMap := make(map[string]*Printer, len(current))
	for _, p := range current {
		currentMap[p.ID] = p
	}

	for id, printer := range currentMap {
		if _, exists := m.previous[id]; !exists {
			m.logger.Info().Str("printer", id).Str("description", printer.Description).Msg("printer added")
			if m.onAdded != nil {
				m.onAdded(printer)
			}
		}
	}

	for id, printer := range m.previous {
		if _, exists := currentMap[id]; !exists {
			m.logger.Info().Str("printer", id).Str("description", printer.Description).Msg("printer removed")
			if m.onRemoved != nil {
				m.onRemoved(printer)
			}
		}
	}

	m.previous = currentMap
}
