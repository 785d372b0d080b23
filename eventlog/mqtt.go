package eventlog

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttConnectTimeout = 5 * time.Second

// DefaultMQTTTags are the low-rate status events published by default
var DefaultMQTTTags = []Tag{TagMode, TagSynced, TagBuffer, TagError, TagReset, TagRotation}

// Publisher is the subset of mqtt.Client used to publish events
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes status events to an MQTT broker under prefix/<tag>. Publishing does not wait
// for acknowledgement.
type MQTT struct {
	client Publisher
	prefix string
	tags   map[Tag]bool
}

var _ Logger = &MQTT{}

// NewMQTT creates an MQTT logger using an existing client. If no tags are given,
// DefaultMQTTTags are published.
func NewMQTT(client Publisher, prefix string, tags ...Tag) *MQTT {
	if len(tags) == 0 {
		tags = DefaultMQTTTags
	}
	m := &MQTT{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		tags:   map[Tag]bool{},
	}
	for _, t := range tags {
		m.tags[t] = true
	}
	return m
}

// DialMQTT connects to broker and returns an MQTT logger publishing under prefix
func DialMQTT(broker, clientID, prefix string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(2 * time.Second)
	opts.SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %q", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("error connecting to MQTT broker %q: %w", broker, err)
	}

	return NewMQTT(c, prefix), nil
}

// Log implements Logger.
func (m *MQTT) Log(tag Tag, payload string) {
	if !m.tags[tag] {
		return
	}
	retained := tag == TagMode || tag == TagSynced
	m.client.Publish(m.Topic(tag), 0, retained, payload)
}

// Topic returns the topic an event with tag is published to
func (m *MQTT) Topic(tag Tag) string {
	return m.prefix + "/" + strings.ToLower(string(tag))
}

// Close disconnects from the broker
func (m *MQTT) Close() error {
	if c, ok := m.client.(mqtt.Client); ok {
		c.Disconnect(250)
	}
	return nil
}
