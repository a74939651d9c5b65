package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremetrics "github.com/deepdist/tabular/core/metrics"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	topics   []string
	payloads [][]byte
}

func (f *fakeClient) IsConnected() bool     { return true }
func (f *fakeClient) Connect() paho.Token   { return &fakeToken{} }
func (f *fakeClient) Disconnect(uint)       {}
func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return &fakeToken{}
}

func newFakePublisher(t *testing.T) (*Publisher, *fakeClient) {
	t.Helper()
	fake := &fakeClient{}
	orig := newMQTTClient
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return fake }
	t.Cleanup(func() { newMQTTClient = orig })

	pub, err := NewPublisher(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return pub, fake
}

func TestPublisherSendsEpochPayload(t *testing.T) {
	pub, fake := newFakePublisher(t)

	err := pub.RecordEpoch(coremetrics.EpochResult{
		RunID:    "run-7",
		Model:    "ddr",
		Epoch:    3,
		Phase:    "train",
		Loss:     0.25,
		Terms:    map[string]float64{"median": 0.2},
		Duration: time.Second,
	})
	if err != nil {
		t.Fatalf("record epoch: %v", err)
	}

	if len(fake.topics) != 1 || fake.topics[0] != "tabular/training/epoch" {
		t.Fatalf("topics = %v", fake.topics)
	}
	var got epochPayload
	if err := json.Unmarshal(fake.payloads[0], &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.RunID != "run-7" || got.Epoch != 3 || got.Loss != 0.25 || got.DurationMS != 1000 {
		t.Fatalf("payload %+v", got)
	}
}

func TestPublisherRequiresBroker(t *testing.T) {
	if _, err := NewPublisher(Config{}); err == nil {
		t.Fatalf("expected error without broker")
	}
}
