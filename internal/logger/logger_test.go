package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitBuildsUsableLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogDir = dir
	if err := Init(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Info("hello")
	if err := Sync(); err != nil {
		t.Logf("sync returned %v (expected on some stdout targets)", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "iot2mqtt.log")); err != nil {
		t.Fatalf("expected a rotated log file to exist: %v", err)
	}
}

func TestSetLevelRejectsUnknownLevel(t *testing.T) {
	if err := SetLevel("not-a-level"); err == nil {
		t.Fatal("expected an error for an invalid level")
	}
}

func TestSetLevelAcceptsKnownLevel(t *testing.T) {
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SetLevel("info"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetBroadcasterReceivesLogEntries(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogDir = dir
	if err := Init(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	received := make(chan string, 1)
	SetBroadcaster(func(level, message string, fields map[string]interface{}) {
		select {
		case received <- message:
		default:
		}
	})
	defer SetBroadcaster(nil)

	Get().Info("broadcast me")
	select {
	case msg := <-received:
		if msg != "broadcast me" {
			t.Fatalf("unexpected message: %s", msg)
		}
	default:
		t.Fatal("expected the broadcaster to receive the log entry synchronously")
	}
}
