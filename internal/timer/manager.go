// Package timer provides a process-wide, cancel-then-replace one-shot timer
// registry keyed by device name, used to schedule the accessor's deferred
// and pulsed switch power changes.
package timer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager is thread-safe and intended to be constructed once and shared.
type Manager struct {
	mu       sync.Mutex
	registry map[string]*time.Timer
	log      *zap.Logger
}

// NewManager builds an empty Manager. A nil logger falls back to a no-op
// logger.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{registry: make(map[string]*time.Timer), log: log}
}

// CreateTimer cancels any existing timer for deviceName (best-effort — a
// timer that has already fired is simply replaced) and schedules task to
// run after countdown. Cancellation racing a timer's fire is acknowledged:
// debounce is best-effort, not hard exclusion.
func (m *Manager) CreateTimer(deviceName string, countdown time.Duration, task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.registry[deviceName]; ok {
		if !previous.Stop() {
			m.log.Debug("timer for device already fired, replacing", zap.String("device", deviceName))
		} else {
			m.log.Debug("replacing previous timer", zap.String("device", deviceName))
		}
	}
	m.registry[deviceName] = time.AfterFunc(countdown, task)
}

// IsTimerActive reports whether an entry exists for deviceName. It does not
// distinguish a pending timer from one that has already fired; callers
// treat it as best-effort.
func (m *Manager) IsTimerActive(deviceName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registry[deviceName]
	return ok
}
