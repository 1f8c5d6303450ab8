package homeassistant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"facespace/config"
	"facespace/internal/core/models"

	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
)

// ComponentSensor is the discovery component type of all published entities.
const ComponentSensor = "sensor"

// NodeID groups the entities of this service below the discovery prefix.
const NodeID = "facespace"

// MQTTPublisher is the subset of the MQTT client used for discovery.
type MQTTPublisher interface {
	Publish(topic string, payload interface{}) error
	PublishRetain(topic string, payload interface{}) error
}

// SensorConfig is the MQTT discovery configuration of one sensor.
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device groups the sensors in Home Assistant.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// SightingState is the state published for every face region. Its source
// is the sensor value, everything else becomes an attribute.
type SightingState struct {
	Source    string        `json:"source"`
	Outcome   string        `json:"outcome"`
	Label     string        `json:"label,omitempty"`
	Residual  float64       `json:"residual"`
	Distance  *float64      `json:"distance,omitempty"`
	Region    models.Region `json:"region"`
	Timestamp string        `json:"timestamp"`
}

// DiscoveryManager registers one sensor per identity plus one for faces
// that were not identified, and publishes their state for every
// recognition event.
type DiscoveryManager struct {
	client          MQTTPublisher
	discoveryPrefix string
	topicPrefix     string
	device          *Device

	mu         sync.Mutex
	registered map[string]bool
}

// NewDiscoveryManager creates a manager publishing through client.
func NewDiscoveryManager(client MQTTPublisher, cfg config.MQTTConfig, version string) *DiscoveryManager {
	return &DiscoveryManager{
		client:          client,
		discoveryPrefix: strings.TrimSuffix(cfg.DiscoveryPrefix, "/"),
		topicPrefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		device: &Device{
			Identifiers:  []string{NodeID},
			Name:         "Facespace",
			Manufacturer: "facespace",
			Model:        "Eigenface recognizer",
			SWVersion:    version,
		},
		registered: make(map[string]bool),
	}
}

// Slug converts a label into a topic and unique ID segment. Labels without
// any sluggable characters map to a short hash of the label.
func Slug(label string) string {
	if s := strings.ReplaceAll(slug.Make(label), "-", "_"); s != "" {
		return s
	}
	sum := sha256.Sum256([]byte(label))
	return "id_" + hex.EncodeToString(sum[:4])
}

// AvailabilityTopic is the retained online/offline topic.
func (dm *DiscoveryManager) AvailabilityTopic() string {
	return dm.topicPrefix + "/status"
}

// IdentityTopic is the state topic of label.
func (dm *DiscoveryManager) IdentityTopic(label string) string {
	return fmt.Sprintf("%s/identity/%s", dm.topicPrefix, Slug(label))
}

// UnknownTopic is the state topic for faces that were not identified.
func (dm *DiscoveryManager) UnknownTopic() string {
	return dm.topicPrefix + "/unknown"
}

// PublishAvailability publishes the retained service status.
func (dm *DiscoveryManager) PublishAvailability(online bool) error {
	status := "offline"
	if online {
		status = "online"
	}
	return dm.client.PublishRetain(dm.AvailabilityTopic(), status)
}

// RegisterIdentities publishes discovery configs for labels and the
// unknown sensor. Labels already registered are skipped.
func (dm *DiscoveryManager) RegisterIdentities(labels []string) error {
	var firstErr error
	for _, label := range append([]string{""}, labels...) {
		if err := dm.register(label); err != nil {
			log.Errorf("Failed to register Home Assistant sensor for %q: %v", label, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// register publishes the discovery config of label; the empty label is the
// unknown sensor.
func (dm *DiscoveryManager) register(label string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.registered[label] {
		return nil
	}

	name, id, stateTopic := "Facespace unknown", "unknown", dm.UnknownTopic()
	if label != "" {
		name, id, stateTopic = "Facespace "+label, Slug(label), dm.IdentityTopic(label)
	}
	sensor := SensorConfig{
		Name:                name,
		UniqueID:            NodeID + "_" + id,
		StateTopic:          stateTopic,
		JSONAttributesTopic: stateTopic,
		ValueTemplate:       "{{ value_json.source }}",
		Icon:                "mdi:face-recognition",
		AvailabilityTopic:   dm.AvailabilityTopic(),
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              dm.device,
	}
	topic := fmt.Sprintf("%s/%s/%s/%s/config", dm.discoveryPrefix, ComponentSensor, NodeID, id)

	log.Infof("Registering Home Assistant sensor %s", sensor.UniqueID)
	if err := dm.client.PublishRetain(topic, sensor); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}
	dm.registered[label] = true
	return nil
}

// PublishRecognition publishes one state per region: identified faces on
// their identity topic, all others on the unknown topic.
func (dm *DiscoveryManager) PublishRecognition(event models.RecognitionEvent) error {
	var firstErr error
	for _, r := range event.Results {
		label, topic := "", dm.UnknownTopic()
		if r.Outcome == "identified" && r.Label != "" {
			label, topic = r.Label, dm.IdentityTopic(r.Label)
		}
		if err := dm.register(label); err != nil && firstErr == nil {
			firstErr = err
		}

		state := SightingState{
			Source:    event.Source,
			Outcome:   r.Outcome,
			Label:     r.Label,
			Residual:  r.Residual,
			Distance:  r.Distance,
			Region:    r.Region,
			Timestamp: event.Timestamp.Format(time.RFC3339),
		}
		if err := dm.client.Publish(topic, state); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to publish state on %s: %w", topic, err)
		}
	}
	return firstErr
}
