package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordEpoch forwards the result to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordEpoch(ev EpochResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordEpoch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun forwards run lifecycle events to sinks that support them.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RunRecorder); ok {
			if err := rec.RecordRun(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTermWeights forwards aggregator weights to sinks that support them.
func (m *MultiSink) RecordTermWeights(ev TermWeightEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TermWeightRecorder); ok {
			if err := rec.RecordTermWeights(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
