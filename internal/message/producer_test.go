package message

import (
	"errors"
	"testing"
	"time"

	"github.com/slassabe/iot2mqtt/internal/dev"
)

func TestProducerPutSucceedsWhenChannelHasRoom(t *testing.T) {
	ch := make(chan Message, 1)
	p := NewProducer(ch)

	m := New(dev.ProtocolTasmota, "plug-1", TypeState, Item{Data: "x"})
	if err := p.Put(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProducerPutTimesOutWhenChannelFull(t *testing.T) {
	ch := make(chan Message) // unbuffered, nobody reading
	p := NewProducer(ch).WithTimeout(10 * time.Millisecond)

	m := New(dev.ProtocolTasmota, "plug-1", TypeState, Item{Data: "x"})
	err := p.Put(m)
	if !errors.Is(err, ErrPutTimeout) {
		t.Fatalf("expected ErrPutTimeout, got %v", err)
	}
}
