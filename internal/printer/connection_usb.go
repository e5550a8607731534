package printer

import (
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// USBConnection represents a USB printer connection
type USBConnection struct {
	ctx      *gousb.Context
	device   *gousb.Device
	config   *gousb.Config
	iface    *gousb.Interface
	endpoint *gousb.OutEndpoint
	done     func()
	mu       sync.Mutex
}

// ConnectUSB opens the first bulk OUT endpoint of the device. It fails when
// libusb is unavailable.
func ConnectUSB(vid, pid uint16) (*USBConnection, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, errors.Wrap(err, "failed to open USB device")
	}
	if dev == nil {
		ctx.Close()
		return nil, errors.Errorf("device not found: %04X:%04X", vid, pid)
	}

	// Most printers work with interface 0, alt setting 0. Some need the
	// kernel driver detached first.
	iface, done, err := dev.DefaultInterface()
	if err != nil {
		_ = dev.SetAutoDetach(true)
		iface, done, err = dev.DefaultInterface()
	}
	if err == nil {
		if ep := outEndpoint(iface); ep != nil {
			return &USBConnection{ctx: ctx, device: dev, iface: iface, endpoint: ep, done: done}, nil
		}
		done()
	}

	// Fall back to enumerating every configuration and interface
	var lastErr error
	for _, cfgDesc := range dev.Desc.Configs {
		cfg, err := dev.Config(cfgDesc.Number)
		if err != nil {
			lastErr = errors.Wrapf(err, "failed to set config %d", cfgDesc.Number)
			continue
		}

		for _, ifaceDesc := range cfgDesc.Interfaces {
			iface, err := cfg.Interface(ifaceDesc.Number, 0)
			if err != nil {
				lastErr = errors.Wrapf(err, "failed to claim interface %d", ifaceDesc.Number)
				continue
			}
			if ep := outEndpoint(iface); ep != nil {
				return &USBConnection{ctx: ctx, device: dev, config: cfg, iface: iface, endpoint: ep}, nil
			}
			iface.Close()
		}
		cfg.Close()
	}

	dev.Close()
	ctx.Close()

	if lastErr != nil {
		return nil, errors.Wrap(lastErr, "failed to connect to USB printer")
	}
	return nil, errors.Errorf("no suitable interface/endpoint found for USB printer %04X:%04X", vid, pid)
}

func outEndpoint(iface *gousb.Interface) *gousb.OutEndpoint {
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction != gousb.EndpointDirectionOut {
			continue
		}
		if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
			return ep
		}
	}
	return nil
}

// Write sends data to the USB printer
func (c *USBConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.endpoint.Write(data)
}

// Close releases the interface, device and libusb context
func (c *USBConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		c.done()
	} else {
		if c.iface != nil {
			c.iface.Close()
		}
		if c.config != nil {
			c.config.Close()
		}
	}

	var err error
	if c.device != nil {
		err = c.device.Close()
	}
	if c.ctx != nil {
		c.ctx.Close()
	}
	return err
}
