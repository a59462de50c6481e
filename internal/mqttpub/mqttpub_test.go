package mqttpub

import (
	"encoding/json"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records published messages; the embedded interface panics on
// anything the publisher should never call.
type fakeClient struct {
	mqtt.Client
	topics   []string
	payloads [][]byte
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return &mqtt.DummyToken{}
}

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	p.PublishInference(map[string]any{"x": 1})
	p.PublishTelemetry("L", nil)
	p.Close()
}

func TestPublishInference(t *testing.T) {
	fake := &fakeClient{}
	p := &Publisher{client: fake}

	p.PublishInference(map[string]any{"rep_id": 3, "fi_l": 0.25})

	require.Len(t, fake.topics, 1)
	assert.Equal(t, TopicInference, fake.topics[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(fake.payloads[0], &got))
	assert.Equal(t, 0.25, got["fi_l"])
}

func TestPublishTelemetrySideTopic(t *testing.T) {
	fake := &fakeClient{}
	p := &Publisher{client: fake}

	p.PublishTelemetry("R", map[string]any{"rep_id": 1})

	require.Len(t, fake.topics, 1)
	assert.Equal(t, "fusion/imu/R", fake.topics[0])
}

func TestPublishSkipsUnencodable(t *testing.T) {
	fake := &fakeClient{}
	p := &Publisher{client: fake}

	p.PublishInference(make(chan int))
	assert.Empty(t, fake.topics)
}
