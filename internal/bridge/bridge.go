// Package bridge moves telemetry between the MQTT broker and the streams.
package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/stream"
)

// Content types recorded in entry metadata.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/octet-stream"
)

const (
	subscribeQoS = 1
	commandQoS   = 2
	mqttTimeout  = 10 * time.Second
)

// Publisher appends messages to a stream.
type Publisher interface {
	Publish(ctx context.Context, streamKey string, msg events.Message, metadata map[string]any) (string, error)
}

// Bridge subscribes to the telemetry topics and republishes every message
// on the stream derived from its topic.
type Bridge struct {
	streams    Publisher
	topics     []string
	partitions int
	now        func() time.Time

	mu     sync.RWMutex
	client mqtt.Client
}

func New(streams Publisher, gpsPartitions int) *Bridge {
	return &Bridge{
		streams:    streams,
		topics:     events.Topics,
		partitions: gpsPartitions,
		now:        time.Now,
	}
}

// Attach sets the client used to unsubscribe and to publish commands.
func (b *Bridge) Attach(client mqtt.Client) {
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
}

func (b *Bridge) mqttClient() mqtt.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// OnConnect subscribes to every topic. It is installed as the client's
// connect handler so subscriptions come back after a reconnect.
func (b *Bridge) OnConnect(client mqtt.Client) {
	filters := make(map[string]byte, len(b.topics))
	for _, topic := range b.topics {
		filters[topic] = subscribeQoS
	}
	token := client.SubscribeMultiple(filters, b.onMessage)
	if !token.WaitTimeout(mqttTimeout) {
		logrus.WithField("topics", b.topics).Error("[MQTT] subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		logrus.WithError(err).WithField("topics", b.topics).Error("[MQTT] subscribe failed")
		return
	}
	logrus.WithField("topics", b.topics).Info("[MQTT] subscribed")
}

func (b *Bridge) onMessage(_ mqtt.Client, m mqtt.Message) {
	if _, err := b.HandleMessage(context.Background(), m.Topic(), m.Payload()); err != nil {
		logrus.WithError(err).WithField("topic", m.Topic()).Error("[MQTT] failed to republish message")
	}
}

// HandleMessage republishes one inbound message and returns the entry id.
// GPS readings that match the reading schema are published as typed
// readings on their fleet's partition; everything else is published as
// opaque telemetry.
func (b *Bridge) HandleMessage(ctx context.Context, topic string, payload []byte) (string, error) {
	metrics.BridgeReceived.Add(1)

	tel, contentType := Normalize(payload)
	var msg events.Message = tel
	streamKey := events.StreamKeyForTopic(topic)
	if topic == events.TopicGPS {
		if reading, ok := decodeReading(payload); ok {
			msg = reading
			streamKey = events.GPSStreamFor(reading.FleetNo, b.partitions)
		}
	}

	id, err := b.streams.Publish(ctx, streamKey, msg, map[string]any{
		stream.MetaTopic:       topic,
		stream.MetaContentType: contentType,
		stream.MetaTimestamp:   b.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	metrics.BridgePublished.Add(1)
	return id, nil
}

// Normalize decodes a JSON payload into telemetry fields. Anything that is
// not JSON, or whose keys cannot be stored as stream fields, is kept byte
// for byte as base64.
func Normalize(payload []byte) (events.Telemetry, string) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		obj, ok := v.(map[string]any)
		if !ok {
			obj = map[string]any{"value": v}
		}
		if err := stream.Flatten("payload", obj, map[string]string{}); err == nil {
			return events.Telemetry{Fields: obj}, ContentTypeJSON
		}
	}
	return events.Telemetry{Binary: true, Fields: map[string]any{
		"encoding": "base64",
		"data":     base64.StdEncoding.EncodeToString(payload),
	}}, ContentTypeBinary
}

func decodeReading(payload []byte) (events.GPSReading, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var r events.GPSReading
	if err := dec.Decode(&r); err != nil {
		return r, false
	}
	return r, r.Validate() == nil
}

// PublishCommand broadcasts a command frame to devices.
func (b *Bridge) PublishCommand(payload []byte) error {
	client := b.mqttClient()
	if client == nil {
		return fmt.Errorf("mqtt client not attached")
	}
	token := client.Publish(events.TopicCmdBroadcast, commandQoS, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish to %s timed out", events.TopicCmdBroadcast)
	}
	return token.Error()
}

// Close unsubscribes from every topic and disconnects.
func (b *Bridge) Close() {
	client := b.mqttClient()
	if client == nil {
		return
	}
	if client.IsConnected() {
		token := client.Unsubscribe(b.topics...)
		if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
			logrus.WithError(token.Error()).Warn("[MQTT] unsubscribe failed")
		}
	}
	client.Disconnect(250)
	logrus.Info("[MQTT] disconnected")
}
