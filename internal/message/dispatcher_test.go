package message

import (
	"testing"
	"time"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

func newTestMessage(mt MessageType, device string) Message {
	return New(dev.ProtocolZ2M, device, mt, Item{Data: map[string]interface{}{}})
}

func TestDispatcherRoutesToMatchingRule(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)
	called := make(chan string, 1)

	rules := []Rule{
		{
			When: IsTypeAvailability,
			Handler: func(m Message) (Message, error) {
				called <- "avail"
				return m, nil
			},
		},
	}
	d := NewDispatcher("test", in, out, rules)
	defer d.ForceStop()

	in <- newTestMessage(TypeAvail, "plug-1")

	select {
	case which := <-called:
		if which != "avail" {
			t.Fatalf("expected avail handler, got %s", which)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was never called")
	}

	select {
	case m := <-out:
		if m.DeviceName != "plug-1" {
			t.Fatalf("expected forwarded message for plug-1, got %s", m.DeviceName)
		}
	case <-time.After(time.Second):
		t.Fatal("expected forwarded message on output")
	}
}

func TestDispatcherFallsBackToDefaultHandler(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)

	d := NewDispatcher("test", in, out, nil, WithDefaultHandler(func(m Message) (Message, error) {
		return m, nil
	}))
	defer d.ForceStop()

	in <- newTestMessage(TypeState, "sensor-1")

	select {
	case m := <-out:
		if m.DeviceName != "sensor-1" {
			t.Fatalf("expected default handler to forward sensor-1, got %s", m.DeviceName)
		}
	case <-time.After(time.Second):
		t.Fatal("expected default handler to forward the message")
	}
}

func TestDispatcherDropsOnErrDrop(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)

	d := NewDispatcher("test", in, out, nil, WithDefaultHandler(func(m Message) (Message, error) {
		return Message{}, ErrDrop
	}))
	defer d.ForceStop()

	in <- newTestMessage(TypeState, "sensor-1")

	select {
	case m := <-out:
		t.Fatalf("expected nothing forwarded, got %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherDropsOnDecodingError(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)

	d := NewDispatcher("test", in, out, nil, WithDefaultHandler(func(m Message) (Message, error) {
		return Message{}, &testDecodingError{"bad shape"}
	}))
	defer d.ForceStop()

	in <- newTestMessage(TypeState, "sensor-1")

	select {
	case m := <-out:
		t.Fatalf("expected nothing forwarded, got %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

type testDecodingError struct{ reason string }

func (e *testDecodingError) Error() string { return e.reason }

func TestDispatcherRecoversFromPanickingHandler(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)

	d := NewDispatcher("test", in, out, nil, WithDefaultHandler(func(m Message) (Message, error) {
		panic("boom")
	}))
	defer d.ForceStop()

	in <- newTestMessage(TypeState, "sensor-1")
	in <- newTestMessage(TypeAvail, "sensor-2")

	// The dispatcher must still be alive to process the second message
	// after recovering from the first handler's panic — prove it by
	// asserting the goroutine is still responsive via StopGracefully
	// completing promptly.
	done := make(chan struct{})
	go func() {
		d.StopGracefully()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop gracefully after a panicking handler")
	}
}

func TestDispatcherStopGracefullyDrainsQueuedMessages(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)

	d := NewDispatcher("test", in, out, nil, WithDefaultHandler(func(m Message) (Message, error) {
		return m, nil
	}))

	in <- newTestMessage(TypeState, "a")
	in <- newTestMessage(TypeState, "b")
	time.Sleep(50 * time.Millisecond) // let the first message drain before requesting stop
	in <- newTestMessage(TypeState, "c")

	d.StopGracefully()

	close(out)
	var names []string
	for m := range out {
		names = append(names, m.DeviceName)
	}
	if len(names) != 3 {
		t.Fatalf("expected all 3 queued messages to be forwarded before graceful stop, got %v", names)
	}
}

func TestDispatcherOnlyFirstMatchingRuleFires(t *testing.T) {
	in := make(chan Message, 4)
	out := make(chan Message, 4)
	var fired []string

	rules := []Rule{
		{When: func(Message) bool { return true }, Handler: func(m Message) (Message, error) {
			fired = append(fired, "first")
			return m, nil
		}},
		{When: func(Message) bool { return true }, Handler: func(m Message) (Message, error) {
			fired = append(fired, "second")
			return m, nil
		}},
	}
	d := NewDispatcher("test", in, out, rules)

	in <- newTestMessage(TypeState, "a")
	d.StopGracefully()

	if len(fired) != 1 || fired[0] != "first" {
		t.Fatalf("expected only the first matching rule to fire, got %v", fired)
	}
}
