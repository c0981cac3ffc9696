// Package directory holds the in-memory DeviceDirectory — the single
// source of truth for discovered devices during a run — plus optional
// write-behind mirrors (SQLite for restart resilience, Redis for
// cross-process sharing).
package directory

import (
	"sync"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

// Mirror is a write-behind persistence target the Directory notifies after
// every update. A mirror must never block or fail the in-memory update —
// errors are logged by the caller, not propagated.
type Mirror interface {
	Save(d dev.Device) error
	LoadAll() ([]dev.Device, error)
}

// Directory is the in-memory device registry. It is written only by the
// Discoverer and read by ModelResolver, DeviceAccessor, and the admin API.
type Directory struct {
	mu       sync.RWMutex
	devices  map[string]dev.Device
	mirrors  []Mirror
	fallback *RedisMirror
}

// New returns an empty Directory, optionally write-behind mirrored.
func New(mirrors ...Mirror) *Directory {
	return &Directory{devices: make(map[string]dev.Device), mirrors: mirrors}
}

// WithRedisFallback attaches a shared Redis view consulted by GetDevice
// only when the local map has never seen the device during this run —
// the local map is always preferred when both have an entry.
func (d *Directory) WithRedisFallback(m *RedisMirror) *Directory {
	d.fallback = m
	return d
}

// LoadFromMirrors seeds the in-memory map from the first mirror that
// returns a non-empty device set, used at start-up to survive a restart
// without waiting for fresh discovery traffic.
func (d *Directory) LoadFromMirrors() error {
	for _, m := range d.mirrors {
		devices, err := m.LoadAll()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			continue
		}
		d.mu.Lock()
		for _, dv := range devices {
			d.devices[dv.Name] = dv
		}
		d.mu.Unlock()
		return nil
	}
	return nil
}

// UpdateDevices replaces (idempotent overwrite) the directory entries for
// the given devices and write-behinds each to every mirror.
func (d *Directory) UpdateDevices(devices []dev.Device) []error {
	d.mu.Lock()
	for _, dv := range devices {
		d.devices[dv.Name] = dv
	}
	d.mu.Unlock()

	var errs []error
	for _, m := range d.mirrors {
		for _, dv := range devices {
			if err := m.Save(dv); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

// GetDevice returns the device registered under name, if any. When the
// local map has never seen name and a Redis fallback is configured, it
// consults the shared cross-process view before reporting a miss.
func (d *Directory) GetDevice(name string) (dev.Device, bool) {
	d.mu.RLock()
	dv, ok := d.devices[name]
	d.mu.RUnlock()
	if ok || d.fallback == nil {
		return dv, ok
	}
	shared, ok, err := d.fallback.Get(name)
	if err != nil || !ok {
		return dev.Device{}, false
	}
	return shared, true
}

// GetDevices returns a snapshot of every known device.
func (d *Directory) GetDevices() []dev.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]dev.Device, 0, len(d.devices))
	for _, dv := range d.devices {
		out = append(out, dv)
	}
	return out
}

// GetDeviceNames returns every known device name.
func (d *Directory) GetDeviceNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.devices))
	for name := range d.devices {
		out = append(out, name)
	}
	return out
}
