// Package telemetry writes every refined STATE and AVAIL message to
// InfluxDB as a time-series point, tagged by device/protocol/model so
// dashboards can slice by any of the three.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/encode"
	"github.com/slassabe/iot2mqtt/internal/message"
	"github.com/slassabe/iot2mqtt/internal/state"
)

// Config holds the InfluxDB connection the sink writes through.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// pointWriter is the slice of influxdb2's api.WriteAPI that Consume/Close
// actually need, narrowed so tests can inject a recorder instead of
// dialing a real InfluxDB instance.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink is a pipeline consumer: every message it receives is written as one
// InfluxDB point, never blocking the fan-out that feeds it.
type Sink struct {
	client   influxdb2.Client
	writeAPI pointWriter
	bucket   string
	log      *zap.Logger
}

// NewSink dials InfluxDB and verifies connectivity with a bounded health
// check before returning, mirroring the teacher's InfluxDB node Init.
func NewSink(ctx context.Context, cfg Config, log *zap.Logger) (*Sink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	health, err := client.Health(healthCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetry: influxdb health check: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("telemetry: influxdb unhealthy: %s", health.Status)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.Warn("telemetry write error", zap.Error(err))
		}
	}()

	return &Sink{client: client, writeAPI: writeAPI, bucket: cfg.Bucket, log: log}, nil
}

// Consume converts a refined STATE or AVAIL message into a point and
// queues it on the non-blocking async write API. DISCO messages and
// messages without a refined payload are skipped — there is nothing
// numeric or tag-worthy to record.
func (s *Sink) Consume(m message.Message) {
	if m.Refined == nil {
		return
	}

	tags := map[string]string{
		"device":   m.DeviceName,
		"protocol": string(m.Protocol),
	}
	if m.Model != nil {
		tags["model"] = string(*m.Model)
	}

	var measurement string
	var fields map[string]interface{}

	switch m.MessageType {
	case message.TypeState:
		ds, ok := m.Refined.(state.DeviceState)
		if !ok {
			return
		}
		measurement = "device_state"
		fields = encode.Dump(ds)
	case message.TypeAvail:
		avail, ok := m.Refined.(state.Availability)
		if !ok {
			return
		}
		measurement = "device_availability"
		fields = map[string]interface{}{"online": avail.IsOnline}
	default:
		return
	}
	if len(fields) == 0 {
		return
	}

	point := influxdb2.NewPoint(measurement, tags, fields, time.Now())
	s.writeAPI.WritePoint(point)
}

// Close flushes pending writes and releases the client.
func (s *Sink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
