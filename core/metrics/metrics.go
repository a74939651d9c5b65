// Package metrics defines the training observability contract: sinks receive
// per-epoch results, loss-term breakdowns and run lifecycle events.
package metrics

import "time"

// EpochResult is one finished pass over a split.
type EpochResult struct {
	RunID    string
	Model    string
	Epoch    int
	Phase    string
	Loss     float64
	Terms    map[string]float64
	Duration time.Duration
	Time     time.Time
}

// Sink records epoch results for observability purposes.
type Sink interface {
	RecordEpoch(ev EpochResult) error
}

// RunEvent marks a run starting or finishing.
type RunEvent struct {
	RunID  string
	Model  string
	Status string
	Epochs int
	Time   time.Time
}

// RunRecorder is implemented by sinks that track run lifecycles.
type RunRecorder interface {
	RecordRun(ev RunEvent) error
}

// TermWeightEvent carries the aggregator weights of one training step.
type TermWeightEvent struct {
	RunID   string
	Weights map[string]float64
	Time    time.Time
}

// TermWeightRecorder is implemented by sinks that track aggregator weights.
type TermWeightRecorder interface {
	RecordTermWeights(ev TermWeightEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordEpoch(EpochResult) error           { return nil }
func (NopSink) RecordRun(RunEvent) error                { return nil }
func (NopSink) RecordTermWeights(TermWeightEvent) error { return nil }
