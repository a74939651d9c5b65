// Package telemetry streams training progress over MQTT so external
// dashboards can follow long runs live.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremetrics "github.com/deepdist/tabular/core/metrics"
	"github.com/deepdist/tabular/infra/logger"
)

// Config defines the connection parameters of the Paho MQTT publisher.
type Config struct {
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Topic     string `json:"topic"`
	QoS       byte   `json:"qos"`
	Retained  bool   `json:"retained"`
	TimeoutMS int    `json:"timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "tabular-trainer"
	}
	if c.Topic == "" {
		c.Topic = "tabular/training"
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("telemetry: broker is required")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher sends JSON epoch events to one MQTT topic. It satisfies the
// metrics sink contract, so it plugs into the same fan-out as the other
// observers.
type Publisher struct {
	cli     pahoClient
	cfg     Config
	timeout time.Duration
	log     logger.Logger
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New("telemetry")

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected to %s", cfg.Broker) }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Broker, token.Error())
	}
	return &Publisher{
		cli:     c,
		cfg:     cfg,
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		log:     log,
	}, nil
}

type epochPayload struct {
	RunID      string             `json:"run_id"`
	Model      string             `json:"model"`
	Epoch      int                `json:"epoch"`
	Phase      string             `json:"phase"`
	Loss       float64            `json:"loss"`
	Terms      map[string]float64 `json:"terms,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	Time       time.Time          `json:"time"`
}

// RecordEpoch publishes one epoch result.
func (p *Publisher) RecordEpoch(ev coremetrics.EpochResult) error {
	payload, err := json.Marshal(epochPayload{
		RunID:      ev.RunID,
		Model:      ev.Model,
		Epoch:      ev.Epoch,
		Phase:      ev.Phase,
		Loss:       ev.Loss,
		Terms:      ev.Terms,
		DurationMS: ev.Duration.Milliseconds(),
		Time:       ev.Time,
	})
	if err != nil {
		return err
	}
	return p.publish(p.cfg.Topic+"/epoch", payload)
}

// RecordRun publishes a run lifecycle marker.
func (p *Publisher) RecordRun(ev coremetrics.RunEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.publish(p.cfg.Topic+"/run", payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.cli.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("telemetry: publish to %s timed out", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
