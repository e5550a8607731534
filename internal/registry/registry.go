// Package registry remembers printers across restarts: a stable ID per
// device identity, the name an operator gave it and the paper it is
// loaded with
package registry

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Registry manages printer identities and custom names
type Registry struct {
	filePath string
	data     map[string]*PrinterEntry
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// PrinterEntry stores persistent information about a printer
type PrinterEntry struct {
	ID          string `json:"id"`
	IdentityKey string `json:"identity_key"`
	Type        string `json:"type"` // usb, serial, network
	VID         uint16 `json:"vid,omitempty"`
	PID         uint16 `json:"pid,omitempty"`
	Device      string `json:"device,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Description string `json:"description"`
	Name        string `json:"name,omitempty"`        // Custom user-set name
	PaperWidth  string `json:"paper_width,omitempty"` // 58mm, 80mm, 112mm; empty uses the server default
}

// PrinterInfo represents basic printer information for detection
type PrinterInfo struct {
	Type        string
	Description string
	Device      string
	VID         uint16
	PID         uint16
	Host        string
	Port        int
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger reports persistence failures to l
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New loads the registry at filePath. A missing file is an empty registry;
// it is created on the first save.
func New(filePath string, opts ...Option) (*Registry, error) {
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*PrinterEntry),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "failed to load registry")
	}

	return r, nil
}

// GetPrinterID gets or creates a persistent ID for a printer
func (r *Registry) GetPrinterID(info PrinterInfo) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	identityKey := generateIdentityKey(info)
	if entry, exists := r.data[identityKey]; exists {
		return entry.ID
	}

	entry := &PrinterEntry{
		ID:          uuid.New().String(),
		IdentityKey: identityKey,
		Type:        info.Type,
		VID:         info.VID,
		PID:         info.PID,
		Device:      info.Device,
		Host:        info.Host,
		Port:        info.Port,
		Description: info.Description,
	}
	r.data[identityKey] = entry
	r.persistLocked()

	return entry.ID
}

// GetPrinterName gets the custom name for a printer, or empty string if not set
func (r *Registry) GetPrinterName(printerID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.findLocked(printerID); entry != nil {
		return entry.Name
	}
	return ""
}

// SetPrinterName sets a custom name for a printer
func (r *Registry) SetPrinterName(printerID string, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.findLocked(printerID)
	if entry == nil {
		return false
	}
	entry.Name = name
	r.persistLocked()
	return true
}

// GetPaperWidth returns the paper width recorded for a printer, or the
// empty string when unknown
func (r *Registry) GetPaperWidth(printerID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry := r.findLocked(printerID); entry != nil {
		return entry.PaperWidth
	}
	return ""
}

// SetPaperWidth records the paper a printer is loaded with. The caller
// validates the width; empty clears it.
func (r *Registry) SetPaperWidth(printerID string, width string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.findLocked(printerID)
	if entry == nil {
		return false
	}
	entry.PaperWidth = width
	r.persistLocked()
	return true
}

// GetPrinterInfo returns a copy of the stored entry for a printer
func (r *Registry) GetPrinterInfo(printerID string) *PrinterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := r.findLocked(printerID)
	if entry == nil {
		return nil
	}
	entryCopy := *entry
	return &entryCopy
}

// RemovePrinter removes a printer from the registry
func (r *Registry) RemovePrinter(printerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.findLocked(printerID)
	if entry == nil {
		return false
	}
	delete(r.data, entry.IdentityKey)
	r.persistLocked()
	return true
}

// GetAll returns copies of all registered printers keyed by identity
func (r *Registry) GetAll() map[string]*PrinterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*PrinterEntry, len(r.data))
	for k, v := range r.data {
		entryCopy := *v
		result[k] = &entryCopy
	}
	return result
}

func (r *Registry) findLocked(printerID string) *PrinterEntry {
	for _, entry := range r.data {
		if entry.ID == printerID {
			return entry
		}
	}
	return nil
}

// persistLocked saves and logs failures; the in-memory state stays
// authoritative and the next change retries the write
func (r *Registry) persistLocked() {
	if err := r.save(); err != nil {
		r.logger.Warn().Err(err).Str("path", r.filePath).Msg("failed to save printer registry")
	}
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return errors.WithStack(err)
	}

	loaded := make(map[string]*PrinterEntry)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return errors.Wrapf(err, "decode %s", r.filePath)
	}
	r.data = loaded
	return nil
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode registry")
	}

	if dir := filepath.Dir(r.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create registry directory")
		}
	}
	return errors.Wrap(os.WriteFile(r.filePath, data, 0o644), "write registry")
}

// generateIdentityKey creates a unique key for a printer based on its characteristics
func generateIdentityKey(info PrinterInfo) string {
	switch info.Type {
	case "usb":
		if info.VID != 0 && info.PID != 0 {
			return fmt.Sprintf("usb:%04X:%04X", info.VID, info.PID)
		}
	case "serial":
		if info.Device != "" {
			return fmt.Sprintf("serial:%s", info.Device)
		}
	case "network":
		if info.Host != "" {
			return fmt.Sprintf("network:%s:%d", info.Host, info.Port)
		}
	}

	hash := md5.Sum([]byte(info.Description))
	return fmt.Sprintf("hash:%x", hash)
}
