package printer

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"github.com/thereceipt/receipt-interpreter/internal/registry"
)

// detectUSB lists USB devices of the printer class
func (m *Manager) detectUSB() ([]*Printer, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := ctx.OpenDevices(isPrinterClass)
	if err != nil && len(devices) == 0 {
		return nil, errors.Wrap(err, "failed to enumerate USB devices")
	}

	var printers []*Printer
	for _, dev := range devices {
		desc := dev.Desc

		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		description := fmt.Sprintf("USB: %04X:%04X", desc.Vendor, desc.Product)
		if manufacturer != "" || product != "" {
			description = fmt.Sprintf("USB: %s %s (%04X:%04X)",
				manufacturer, product, desc.Vendor, desc.Product)
		}

		id := m.registry.GetPrinterID(registry.PrinterInfo{
			Type:        TypeUSB,
			VID:         uint16(desc.Vendor),
			PID:         uint16(desc.Product),
			Description: description,
		})

		printers = append(printers, &Printer{
			ID:          id,
			Type:        TypeUSB,
			Description: description,
			VID:         uint16(desc.Vendor),
			PID:         uint16(desc.Product),
			Name:        m.registry.GetPrinterName(id),
			PaperWidth:  m.registry.GetPaperWidth(id),
		})
		dev.Close()
	}

	return printers, nil
}

// isPrinterClass matches class 7 on the device or any interface
func isPrinterClass(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassPrinter {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// detectSerial lists serial ports that can be opened
func (m *Manager) detectSerial() ([]*Printer, error) {
	var printers []*Printer

	for _, portPath := range serialCandidates() {
		// Open briefly to check the port exists
		port, err := serial.OpenPort(&serial.Config{Name: portPath, Baud: DefaultBaud})
		if err != nil {
			continue
		}
		port.Close()

		description := fmt.Sprintf("Serial: %s", filepath.Base(portPath))
		id := m.registry.GetPrinterID(registry.PrinterInfo{
			Type:        TypeSerial,
			Device:      portPath,
			Description: description,
		})

		printers = append(printers, &Printer{
			ID:          id,
			Type:        TypeSerial,
			Description: description,
			Device:      portPath,
			Name:        m.registry.GetPrinterName(id),
			PaperWidth:  m.registry.GetPaperWidth(id),
		})
	}

	return printers, nil
}

func serialCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return usbSerialPorts()
	case "linux":
		return append(usbSerialPorts(), glob("/dev/ttyS*")...)
	case "windows":
		ports := make([]string, 0, 256)
		for i := 1; i <= 256; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	default:
		return nil
	}
}
