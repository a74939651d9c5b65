package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/deepdist/tabular/core/metrics"
	"github.com/deepdist/tabular/infra/logger"
)

// InfluxSink writes training history to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails, so training never blocks on a dashboard.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordEpoch writes the epoch result as one measurement point.
func (s *InfluxSink) RecordEpoch(ev coremetrics.EpochResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("training_epoch").
		AddTag("run_id", ev.RunID).
		AddTag("model", ev.Model).
		AddTag("phase", ev.Phase).
		AddField("epoch", ev.Epoch).
		AddField("loss", ev.Loss).
		AddField("duration_ms", float64(ev.Duration.Milliseconds())).
		SetTime(ev.Time)
	for term, v := range ev.Terms {
		p.AddField("term_"+term, v)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRun writes a run lifecycle marker.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("training_run").
		AddTag("run_id", ev.RunID).
		AddTag("model", ev.Model).
		AddTag("status", ev.Status).
		AddField("epochs", ev.Epochs).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTermWeights writes the aggregator weights of one step.
func (s *InfluxSink) RecordTermWeights(ev coremetrics.TermWeightEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("term_weights").
		AddTag("run_id", ev.RunID).
		SetTime(ev.Time)
	for term, w := range ev.Weights {
		p.AddField(term, w)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and shuts down the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
