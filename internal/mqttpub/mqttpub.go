// Package mqttpub optionally mirrors fusion results to an MQTT broker so a
// dashboard can watch a session live. A nil Publisher is a no-op, so the
// engine publishes unconditionally and the flag decides at startup.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// TopicInference carries one message per fused inference cycle.
	TopicInference = "fusion/pred"
	// TopicTelemetryPrefix is completed with the side ("fusion/imu/L").
	TopicTelemetryPrefix = "fusion/imu/"

	connectTimeout = 5 * time.Second
)

// Publisher mirrors rows to the broker at QoS 0. Dropped messages are
// acceptable; the TSV logs remain the durable record.
type Publisher struct {
	client mqtt.Client
}

// Connect dials the broker. An unreachable broker is an error here, not
// later: the caller decides whether live publishing is required.
func Connect(broker, clientID string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	}
	opts.OnConnect = func(mqtt.Client) {
		log.Printf("mqtt: connected to %s", broker)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttpub: connect %s: %w", broker, token.Error())
	}
	return &Publisher{client: client}, nil
}

// PublishInference sends one fused inference cycle as JSON.
func (p *Publisher) PublishInference(v any) {
	p.publish(TopicInference, v)
}

// PublishTelemetry sends one telemetry row as JSON on the side's topic.
func (p *Publisher) PublishTelemetry(side string, v any) {
	p.publish(TopicTelemetryPrefix+side, v)
}

func (p *Publisher) publish(topic string, v any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: encode %s: %v", topic, err)
		return
	}
	// Fire and forget. QoS 0 without waiting keeps the hop loop off the
	// network path.
	p.client.Publish(topic, 0, false, payload)
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
}
