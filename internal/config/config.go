// Package config loads server and CLI settings from a YAML file with
// environment overrides
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/thereceipt/receipt-interpreter/pkg/layout"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Printer PrinterConfig `yaml:"printer"`
	Log     LogConfig     `yaml:"log"`
	Receipt ReceiptConfig `yaml:"receipt"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port int `yaml:"port"`
}

// PrinterConfig configures device access and the print queue
type PrinterConfig struct {
	RegistryPath    string        `yaml:"registry_path"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	Raster          bool          `yaml:"raster"` // print as bitmap instead of native commands
}

// LogConfig configures zerolog
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ReceiptConfig holds interpretation defaults
type ReceiptConfig struct {
	DividerWidth int    `yaml:"divider_width"` // 0 follows the paper width
	PaperWidth   string `yaml:"paper_width"`   // for layouts and printers without one
	Timezone     string `yaml:"timezone"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 12212},
		Printer: PrinterConfig{
			RegistryPath:    defaultRegistryPath(),
			MaxRetries:      3,
			RetryDelay:      time.Second,
			MonitorInterval: 2 * time.Second,
			DialTimeout:     5 * time.Second,
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Receipt: ReceiptConfig{PaperWidth: layout.Paper80},
	}
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "printer_registry.json"
	}
	return filepath.Join(home, ".receipt-interpreter", "printer_registry.json")
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "SERVER_PORT %q", v)
		}
		c.Server.Port = port
	}
	c.Printer.RegistryPath = getEnv("RECEIPT_REGISTRY", c.Printer.RegistryPath)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Printer.MaxRetries < 1 {
		return errors.Errorf("printer.max_retries must be at least 1, got %d", c.Printer.MaxRetries)
	}
	if c.Receipt.DividerWidth < 0 {
		return errors.Errorf("receipt.divider_width must not be negative, got %d", c.Receipt.DividerWidth)
	}
	if !layout.ValidPaperWidth(c.Receipt.PaperWidth) {
		return errors.Errorf("receipt.paper_width must be 58mm, 80mm or 112mm, got %q", c.Receipt.PaperWidth)
	}
	if c.Receipt.Timezone != "" {
		if _, err := time.LoadLocation(c.Receipt.Timezone); err != nil {
			return errors.Wrap(err, "receipt.timezone")
		}
	}
	return nil
}

// Location returns the configured timezone, or local time
func (c *Config) Location() *time.Location {
	if c.Receipt.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Receipt.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
