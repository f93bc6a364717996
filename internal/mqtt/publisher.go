// Package mqtt mirrors the prayer schedule to Home Assistant through MQTT
// discovery sensors and accepts azan play commands on a command topic.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
)

const (
	qos            = 1
	publishTimeout = 10 * time.Second
	disconnectWait = 250 // milliseconds

	payloadOnline  = "online"
	payloadOffline = "offline"
)

var icons = map[prayertime.Prayer]string{
	prayertime.Fajr:    "mdi:weather-sunset-up",
	prayertime.Syuruk:  "mdi:weather-sunny",
	prayertime.Dhuhr:   "mdi:weather-sunny",
	prayertime.Asr:     "mdi:weather-partly-cloudy",
	prayertime.Maghrib: "mdi:weather-sunset-down",
	prayertime.Isha:    "mdi:moon-waning-crescent",
}

// Client is the part of paho.Client the publisher uses
type Client interface {
	Connect() paho.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// PlayHandler is called with the payload of a play command
type PlayHandler func(prayer string)

// Device groups the sensors in Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// SensorConfig is a Home Assistant MQTT discovery payload
type SensorConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	ObjectID            string `json:"object_id"`
	StateTopic          string `json:"state_topic"`
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
	AvailabilityTopic   string `json:"availability_topic"`
	DeviceClass         string `json:"device_class,omitempty"`
	Icon                string `json:"icon"`
	Device              Device `json:"device"`
}

// Attributes are published with the next_prayer sensor
type Attributes struct {
	Zone             string            `json:"zone"`
	HijriDate        string            `json:"hijri_date"`
	NextPrayer       string            `json:"next_prayer"`
	NextPrayerTime   string            `json:"next_prayer_time"`
	TimeToNextPrayer string            `json:"time_to_next_prayer"`
	PrayerTimes      map[string]string `json:"prayer_times"`
	UpdatedAt        string            `json:"updated_at"`
}

// Publisher publishes retained discovery configs once per connection and a
// state message per snapshot.
type Publisher struct {
	client          Client
	zone            string
	discoveryPrefix string
	topicPrefix     string
	logger          *zap.Logger

	mu         sync.Mutex
	discovered bool
	onPlay     PlayHandler
}

// ClientID returns the configured id with a random suffix so two instances
// never fight over one broker session.
func ClientID(base string) string {
	if base == "" {
		base = "solatsync"
	}
	return base + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Connect creates a paho client for cfg and connects it. The broker's last
// will marks the sensors unavailable when the service goes away.
func Connect(cfg config.MQTTConfig, zone string, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		zone:            strings.ToLower(zone),
		discoveryPrefix: cfg.DiscoveryPrefix,
		topicPrefix:     cfg.TopicPrefix,
		logger:          logger.Named("mqtt"),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(ClientID(cfg.ClientID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(publishTimeout).
		SetWill(p.availabilityTopic(), payloadOffline, qos, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) { p.handleConnect() }
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		p.logger.Warn("MQTT connection lost", zap.Error(err))
	}

	p.client = paho.NewClient(opts)
	if token := p.client.Connect(); !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = fmt.Errorf("timed out after %s", publishTimeout)
		}
		p.client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	p.logger.Info("Connected to MQTT broker",
		zap.String("broker", cfg.Broker),
		zap.String("discovery_prefix", cfg.DiscoveryPrefix))
	return p, nil
}

// NewPublisher wraps an already connected client
func NewPublisher(client Client, zone, discoveryPrefix, topicPrefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:          client,
		zone:            strings.ToLower(zone),
		discoveryPrefix: discoveryPrefix,
		topicPrefix:     topicPrefix,
		logger:          logger.Named("mqtt"),
	}
}

// handleConnect runs on every (re)connect: discovery is republished with
// the next snapshot and the command subscription restored.
func (p *Publisher) handleConnect() {
	p.mu.Lock()
	p.discovered = false
	handler := p.onPlay
	p.mu.Unlock()

	if err := p.publish(p.availabilityTopic(), true, payloadOnline); err != nil {
		p.logger.Warn("Failed to publish availability", zap.Error(err))
	}
	if handler != nil {
		if err := p.subscribePlay(handler); err != nil {
			p.logger.Warn("Failed to subscribe to play commands", zap.Error(err))
		}
	}
}

// OnPlay subscribes handler to {topic_prefix}/{zone}/azan/play. The payload
// is the prayer name.
func (p *Publisher) OnPlay(handler PlayHandler) error {
	p.mu.Lock()
	p.onPlay = handler
	p.mu.Unlock()

	if !p.client.IsConnected() {
		return nil
	}
	return p.subscribePlay(handler)
}

func (p *Publisher) subscribePlay(handler PlayHandler) error {
	topic := p.PlayTopic()
	token := p.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		prayer := strings.TrimSpace(string(msg.Payload()))
		p.logger.Info("Play command received",
			zap.String("topic", msg.Topic()),
			zap.String("prayer", prayer))
		handler(prayer)
	})
	return wait(token, "subscribe "+topic)
}

// PlayTopic is the command topic for one-off azan playback
func (p *Publisher) PlayTopic() string {
	return fmt.Sprintf("%s/%s/azan/play", p.topicPrefix, p.zone)
}

func (p *Publisher) availabilityTopic() string {
	return fmt.Sprintf("%s/%s/availability", p.topicPrefix, p.zone)
}

func (p *Publisher) stateTopic(name string) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, p.zone, name)
}

func (p *Publisher) configTopic(name string) string {
	return fmt.Sprintf("%s/sensor/solatsync_%s_%s/config", p.discoveryPrefix, p.zone, name)
}

func (p *Publisher) device() Device {
	zone := strings.ToUpper(p.zone)
	return Device{
		Identifiers:  []string{"solatsync_" + p.zone},
		Name:         "Waktu Solat " + zone,
		Manufacturer: "solatsync",
		Model:        "Waktu Solat Malaysia",
	}
}

// DiscoveryConfigs returns the discovery payloads keyed by config topic
func (p *Publisher) DiscoveryConfigs() map[string]SensorConfig {
	configs := make(map[string]SensorConfig, len(prayertime.AllPrayers)+1)
	for _, prayer := range prayertime.AllPrayers {
		id := fmt.Sprintf("solatsync_%s_%s", p.zone, prayer)
		configs[p.configTopic(string(prayer))] = SensorConfig{
			Name:              prayer.MalayName(),
			UniqueID:          id,
			ObjectID:          id,
			StateTopic:        p.stateTopic(string(prayer)),
			AvailabilityTopic: p.availabilityTopic(),
			DeviceClass:       "timestamp",
			Icon:              icons[prayer],
			Device:            p.device(),
		}
	}

	id := fmt.Sprintf("solatsync_%s_next_prayer", p.zone)
	configs[p.configTopic("next_prayer")] = SensorConfig{
		Name:                "Waktu Solat Seterusnya",
		UniqueID:            id,
		ObjectID:            id,
		StateTopic:          p.stateTopic("next_prayer"),
		JSONAttributesTopic: p.stateTopic("attributes"),
		AvailabilityTopic:   p.availabilityTopic(),
		Icon:                "mdi:clock-alert",
		Device:              p.device(),
	}
	return configs
}

// PublishSnapshot publishes discovery if needed, then every sensor state.
// A snapshot that is not ready is ignored.
func (p *Publisher) PublishSnapshot(snap prayertime.Snapshot) error {
	if !snap.Ready() {
		return nil
	}

	p.mu.Lock()
	discovered := p.discovered
	p.mu.Unlock()

	var errs error
	if !discovered {
		for topic, cfg := range p.DiscoveryConfigs() {
			errs = multierr.Append(errs, p.publishJSON(topic, cfg))
		}
		if errs != nil {
			return fmt.Errorf("publishing discovery: %w", errs)
		}
		p.mu.Lock()
		p.discovered = true
		p.mu.Unlock()
		p.logger.Info("Published MQTT discovery configs", zap.String("zone", p.zone))
	}

	daily, next := snap.Daily, snap.Next
	for _, prayer := range prayertime.AllPrayers {
		t, ok := daily.Time(prayer)
		if !ok {
			continue
		}
		errs = multierr.Append(errs, p.publish(p.stateTopic(string(prayer)), true, t.Format(time.RFC3339)))
	}

	times := make(map[string]string)
	for prayer, hhmm := range daily.Formatted() {
		times[string(prayer)] = hhmm
	}
	errs = multierr.Append(errs, p.publish(p.stateTopic("next_prayer"), true, next.Prayer.MalayName()))
	errs = multierr.Append(errs, p.publishJSON(p.stateTopic("attributes"), Attributes{
		Zone:             daily.Zone,
		HijriDate:        daily.Hijri,
		NextPrayer:       next.Prayer.MalayName(),
		NextPrayerTime:   next.Time.Format(time.RFC3339),
		TimeToNextPrayer: next.RemainingText,
		PrayerTimes:      times,
		UpdatedAt:        snap.UpdatedAt.Format(time.RFC3339),
	}))

	if errs != nil {
		return fmt.Errorf("publishing prayer times: %w", errs)
	}
	p.logger.Debug("Published prayer times",
		zap.String("zone", p.zone),
		zap.String("next_prayer", string(next.Prayer)))
	return nil
}

// Close marks the sensors offline and disconnects
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		if err := p.publish(p.availabilityTopic(), true, payloadOffline); err != nil {
			p.logger.Debug("Failed to publish offline status", zap.Error(err))
		}
	}
	p.client.Disconnect(disconnectWait)
	p.logger.Info("Disconnected from MQTT broker")
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", topic, err)
	}
	return p.publish(topic, true, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload interface{}) error {
	return wait(p.client.Publish(topic, qos, retained, payload), "publish "+topic)
}

func wait(token paho.Token, what string) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s: timed out", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
