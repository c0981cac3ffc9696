package telemetry

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/slassabe/iot2mqtt/internal/dev"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

type fakeWriter struct {
	points  []*write.Point
	flushed bool
}

func (f *fakeWriter) WritePoint(p *write.Point) { f.points = append(f.points, p) }
func (f *fakeWriter) Flush()                    { f.flushed = true }

func TestConsumeStateMessageWritesAPoint(t *testing.T) {
	fw := &fakeWriter{}
	s := &Sink{writeAPI: fw}

	now := time.Now()
	sw := state.Switch{LastSeen: &now, Power: state.PowerOn}
	m := message.Message{
		DeviceName:  "plug1",
		Protocol:    dev.ProtocolZ2M,
		MessageType: message.TypeState,
		Refined:     sw,
	}

	s.Consume(m)
	if len(fw.points) != 1 {
		t.Fatalf("expected one point, got %d", len(fw.points))
	}
}

func TestConsumeAvailabilityMessageWritesAPoint(t *testing.T) {
	fw := &fakeWriter{}
	s := &Sink{writeAPI: fw}

	m := message.Message{
		DeviceName:  "plug1",
		Protocol:    dev.ProtocolTasmota,
		MessageType: message.TypeAvail,
		Refined:     state.Online,
	}

	s.Consume(m)
	if len(fw.points) != 1 {
		t.Fatalf("expected one point, got %d", len(fw.points))
	}
}

func TestConsumeDiscoveryMessageIsSkipped(t *testing.T) {
	fw := &fakeWriter{}
	s := &Sink{writeAPI: fw}

	m := message.Message{
		DeviceName:  "plug1",
		Protocol:    dev.ProtocolZ2M,
		MessageType: message.TypeDisco,
		Refined:     state.Registry{DeviceNames: []string{"plug1"}},
	}

	s.Consume(m)
	if len(fw.points) != 0 {
		t.Fatalf("expected no points for a discovery message, got %d", len(fw.points))
	}
}

func TestConsumeMessageWithoutRefinedPayloadIsSkipped(t *testing.T) {
	fw := &fakeWriter{}
	s := &Sink{writeAPI: fw}

	m := message.Message{DeviceName: "plug1", Protocol: dev.ProtocolZ2M, MessageType: message.TypeState}
	s.Consume(m)
	if len(fw.points) != 0 {
		t.Fatalf("expected no points, got %d", len(fw.points))
	}
}

func TestPointWriterFlushIsObservable(t *testing.T) {
	fw := &fakeWriter{}
	fw.Flush()
	if !fw.flushed {
		t.Fatal("expected the writer to have been flushed")
	}
}
