// Package scheduler runs the periodic staleness sweep: every tick, any
// device the directory hasn't heard from inside the configured window gets
// a fresh get-state request.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/access"
	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
)

// LastSeenTracker is satisfied by whatever records when a device was last
// heard from — kept as a narrow interface so the sweep doesn't need to
// know where that bookkeeping lives.
type LastSeenTracker interface {
	LastSeenAt(deviceName string) (time.Time, bool)
}

// Tracker is the default LastSeenTracker: a thread-safe map the pipeline's
// consumer fan-out calls Touch on for every STATE/AVAIL message it
// forwards.
type Tracker struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]time.Time)}
}

// Touch records deviceName as seen right now.
func (t *Tracker) Touch(deviceName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[deviceName] = time.Now()
}

// LastSeenAt implements LastSeenTracker.
func (t *Tracker) LastSeenAt(deviceName string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.seen[deviceName]
	return ts, ok
}

// Sweep owns the cron job and its staleness window, reconfigurable live
// via SetStalenessWindow.
type Sweep struct {
	mu       sync.RWMutex
	window   time.Duration
	cron     *cron.Cron
	entryID  cron.EntryID
	dir      *directory.Directory
	tracker  LastSeenTracker
	accessor *access.Accessor
	log      *zap.Logger
}

// New builds a Sweep using cronSpec (a 6-field, seconds-first expression)
// and an initial staleness window. Call Start to begin running it.
func New(cronSpec string, window time.Duration, dir *directory.Directory, tracker LastSeenTracker, accessor *access.Accessor, log *zap.Logger) (*Sweep, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweep{
		window:   window,
		cron:     cron.New(cron.WithSeconds()),
		dir:      dir,
		tracker:  tracker,
		accessor: accessor,
		log:      log,
	}
	entryID, err := s.cron.AddFunc(cronSpec, s.runOnce)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", cronSpec, err)
	}
	s.entryID = entryID
	return s, nil
}

// Start begins the cron scheduler's background goroutine.
func (s *Sweep) Start() { s.cron.Start() }

// Stop cancels pending runs and waits for any in-flight run to finish.
func (s *Sweep) Stop() { <-s.cron.Stop().Done() }

// SetStalenessWindow hot-swaps the window, the one scheduler setting
// internal/config's fsnotify watcher is allowed to change live.
func (s *Sweep) SetStalenessWindow(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = window
}

func (s *Sweep) stalenessWindow() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// runOnce is the cron job body: scan every known device, skip the ones
// seen recently, trigger a get-state for the rest.
func (s *Sweep) runOnce() {
	window := s.stalenessWindow()
	now := time.Now()

	for _, d := range s.dir.GetDevices() {
		lastSeen, known := s.tracker.LastSeenAt(d.Name)
		if known && now.Sub(lastSeen) < window {
			continue
		}
		s.triggerGetState(d)
	}
}

func (s *Sweep) triggerGetState(d dev.Device) {
	if err := s.accessor.GetState(d.Name, d.Protocol, d.Model); err != nil {
		s.log.Warn("staleness sweep get-state failed", zap.String("device", d.Name), zap.Error(err))
	}
}
