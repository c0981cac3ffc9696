package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestObserveProcessedIncrementsLabeledCounter(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.ObserveProcessed("normalize", "z2m")
	reg.ObserveProcessed("normalize", "z2m")

	got := counterValue(t, reg.MessagesProcessed.WithLabelValues("normalize", "z2m"))
	if got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
}

func TestSetDevicesTrackedReflectsLatestValue(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.SetDevicesTracked(5)
	reg.SetDevicesTracked(7)

	if got := counterValue(t, reg.DevicesTracked); got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
}

func TestSetQueueDepthPerStage(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.SetQueueDepth("discovery", 12)

	if got := counterValue(t, reg.QueueDepth.WithLabelValues("discovery")); got != 12 {
		t.Fatalf("expected 12, got %v", got)
	}
}
