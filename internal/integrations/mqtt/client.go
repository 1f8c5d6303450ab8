package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"facespace/config"
	"facespace/internal/core/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client publishes recognition events to an MQTT broker.
type Client struct {
	config config.MQTTConfig
	client mqtt.Client
	mu     sync.RWMutex
}

// NewClient creates a client for cfg. Start connects it.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// RecognitionTopic returns the topic recognition events are published on.
func (c *Client) RecognitionTopic() string {
	return strings.TrimSuffix(c.config.TopicPrefix, "/") + "/recognition"
}

// Start connects to the broker. It does nothing if MQTT is disabled.
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("Connected to MQTT broker at %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	client := mqtt.NewClient(opts)
	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
	}
	c.client = nil
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// Publish sends payload to topic with the configured retain flag. Non-byte
// payloads are encoded as JSON.
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.publish(topic, payload, c.config.Retain)
}

// PublishRetain sends payload to topic as a retained message.
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.publish(topic, payload, true)
}

func (c *Client) publish(topic string, payload interface{}, retain bool) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal MQTT payload: %w", err)
		}
	}

	token := client.Publish(topic, byte(c.config.QoS), retain, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	return token.Error()
}

// PublishRecognition publishes event on the recognition topic. Events are
// dropped silently while MQTT is disabled.
func (c *Client) PublishRecognition(event models.RecognitionEvent) error {
	if !c.config.Enabled {
		return nil
	}
	return c.Publish(c.RecognitionTopic(), event)
}
