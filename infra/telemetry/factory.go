package telemetry

import (
	"github.com/deepdist/tabular/core/factory"
	coremetrics "github.com/deepdist/tabular/core/metrics"
)

// init registers the MQTT publisher as a metrics sink.
func init() {
	_ = coremetrics.RegisterSink("mqtt", func(conf map[string]any) (coremetrics.Sink, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}
