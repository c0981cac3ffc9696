package scheduler

import (
	"testing"
	"time"

	"github.com/slassabe/iot2mqtt/internal/access"
	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/encode"
	"github.com/slassabe/iot2mqtt/internal/mqttx"
	"github.com/slassabe/iot2mqtt/internal/timer"
	"github.com/slassabe/iot2mqtt/internal/topic"
)

func newTestSweep(t *testing.T, window time.Duration) (*Sweep, *mqttx.FakeClient, *Tracker) {
	t.Helper()
	dir := directory.New()
	dir.UpdateDevices([]dev.Device{{Name: "plug1", Protocol: dev.ProtocolZ2M, Model: dev.ModelSnMini}})

	cmdRegistry, err := topic.NewDefaultCommandRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client := mqttx.NewFakeClient()
	accessor := access.New(client, cmdRegistry, encode.NewDefaultRegistry(nil), timer.NewManager(nil), dir, nil)
	tracker := NewTracker()

	s, err := New("@every 1h", window, dir, tracker, accessor, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s, client, tracker
}

func TestRunOnceTriggersGetStateForNeverSeenDevice(t *testing.T) {
	s, client, _ := newTestSweep(t, time.Minute)
	s.runOnce()
	if len(client.Published()) != 1 {
		t.Fatalf("expected one publish for an unseen device, got %+v", client.Published())
	}
}

func TestRunOnceSkipsRecentlySeenDevice(t *testing.T) {
	s, client, tracker := newTestSweep(t, time.Hour)
	tracker.Touch("plug1")
	s.runOnce()
	if len(client.Published()) != 0 {
		t.Fatalf("expected no publish for a recently seen device, got %+v", client.Published())
	}
}

func TestRunOnceTriggersForStaleDevice(t *testing.T) {
	s, client, tracker := newTestSweep(t, time.Millisecond)
	tracker.Touch("plug1")
	time.Sleep(5 * time.Millisecond)
	s.runOnce()
	if len(client.Published()) != 1 {
		t.Fatalf("expected one publish for a stale device, got %+v", client.Published())
	}
}

func TestSetStalenessWindowAffectsNextRun(t *testing.T) {
	s, client, tracker := newTestSweep(t, time.Hour)
	tracker.Touch("plug1")
	s.SetStalenessWindow(time.Nanosecond)
	time.Sleep(time.Millisecond)
	s.runOnce()
	if len(client.Published()) != 1 {
		t.Fatalf("expected the narrowed window to mark the device stale, got %+v", client.Published())
	}
}
