package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/prayertime"
)

var myt = time.FixedZone("MYT", 8*60*60)

// doneToken is a paho.Token that has already completed
type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	messages     []published
	handlers     map[string]paho.MessageHandler
	failTopic    string
	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true, handlers: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) Connect() paho.Token { return &doneToken{} }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if topic == c.failTopic {
		return &doneToken{err: errors.New("not authorized")}
	}

	var body string
	switch v := payload.(type) {
	case string:
		body = v
	case []byte:
		body = string(v)
	}
	c.messages = append(c.messages, published{topic: topic, retained: retained, payload: body})
	return &doneToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return &doneToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	handler := c.handlers[topic]
	c.mu.Unlock()
	handler(nil, &fakeMessage{topic: topic, payload: []byte(payload)})
}

func (c *fakeClient) byTopic() map[string]published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]published)
	for _, m := range c.messages {
		out[m.topic] = m
	}
	return out
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func testSnapshot() prayertime.Snapshot {
	at := func(hh, mm int) time.Time { return time.Date(2025, 6, 10, hh, mm, 0, 0, myt) }
	now := at(12, 0)
	return prayertime.Snapshot{
		Daily: &prayertime.DailyPrayerTimes{
			Zone: "SGR01",
			Date: at(0, 0),
			Times: map[prayertime.Prayer]time.Time{
				prayertime.Fajr:    at(5, 45),
				prayertime.Syuruk:  at(7, 5),
				prayertime.Dhuhr:   at(13, 5),
				prayertime.Asr:     at(16, 25),
				prayertime.Maghrib: at(19, 20),
				prayertime.Isha:    at(20, 35),
			},
			Hijri: "1446-12-14",
		},
		Next: &prayertime.NextPrayerInfo{
			Prayer:        prayertime.Dhuhr,
			Time:          at(13, 5),
			Remaining:     65 * time.Minute,
			RemainingText: "1:05:00",
		},
		UpdatedAt:   now,
		LastAttempt: now,
	}
}

func TestPublisher_PublishesDiscoveryAndState(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	require.NoError(t, p.PublishSnapshot(testSnapshot()))

	msgs := client.byTopic()

	cfgMsg, ok := msgs["homeassistant/sensor/solatsync_sgr01_fajr/config"]
	require.True(t, ok)
	assert.True(t, cfgMsg.retained)

	var cfg SensorConfig
	require.NoError(t, json.Unmarshal([]byte(cfgMsg.payload), &cfg))
	assert.Equal(t, "Subuh", cfg.Name)
	assert.Equal(t, "timestamp", cfg.DeviceClass)
	assert.Equal(t, "mdi:weather-sunset-up", cfg.Icon)
	assert.Equal(t, "solatsync/sgr01/fajr", cfg.StateTopic)
	assert.Equal(t, "solatsync/sgr01/availability", cfg.AvailabilityTopic)
	assert.Equal(t, []string{"solatsync_sgr01"}, cfg.Device.Identifiers)

	var isyak SensorConfig
	require.NoError(t, json.Unmarshal([]byte(msgs["homeassistant/sensor/solatsync_sgr01_isha/config"].payload), &isyak))
	assert.Equal(t, "Isyak", isyak.Name)
	assert.Equal(t, "mdi:moon-waning-crescent", isyak.Icon)

	var next SensorConfig
	require.NoError(t, json.Unmarshal([]byte(msgs["homeassistant/sensor/solatsync_sgr01_next_prayer/config"].payload), &next))
	assert.Equal(t, "mdi:clock-alert", next.Icon)
	assert.Empty(t, next.DeviceClass)
	assert.Equal(t, "solatsync/sgr01/attributes", next.JSONAttributesTopic)

	assert.Equal(t, "2025-06-10T05:45:00+08:00", msgs["solatsync/sgr01/fajr"].payload)
	assert.Equal(t, "2025-06-10T20:35:00+08:00", msgs["solatsync/sgr01/isha"].payload)
	assert.Equal(t, "Zohor", msgs["solatsync/sgr01/next_prayer"].payload)

	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(msgs["solatsync/sgr01/attributes"].payload), &attrs))
	assert.Equal(t, "SGR01", attrs.Zone)
	assert.Equal(t, "1446-12-14", attrs.HijriDate)
	assert.Equal(t, "Zohor", attrs.NextPrayer)
	assert.Equal(t, "2025-06-10T13:05:00+08:00", attrs.NextPrayerTime)
	assert.Equal(t, "1:05:00", attrs.TimeToNextPrayer)
	assert.Equal(t, "13:05", attrs.PrayerTimes["dhuhr"])
	assert.Len(t, attrs.PrayerTimes, 6)
}

func TestPublisher_DiscoveryOncePerConnection(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	require.NoError(t, p.PublishSnapshot(testSnapshot()))
	first := client.count()
	// 7 configs, 6 prayer states, next_prayer and attributes
	assert.Equal(t, 15, first)

	require.NoError(t, p.PublishSnapshot(testSnapshot()))
	assert.Equal(t, first+8, client.count())

	// A reconnect republishes availability and discovery
	p.handleConnect()
	assert.Equal(t, "online", client.byTopic()["solatsync/sgr01/availability"].payload)
	before := client.count()
	require.NoError(t, p.PublishSnapshot(testSnapshot()))
	assert.Equal(t, before+15, client.count())
}

func TestPublisher_NotReadySnapshotIgnored(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	require.NoError(t, p.PublishSnapshot(prayertime.Snapshot{LastError: "upstream down"}))
	assert.Zero(t, client.count())
}

func TestPublisher_PublishErrorsAreReturned(t *testing.T) {
	client := newFakeClient()
	client.failTopic = "solatsync/sgr01/asr"
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	err := p.PublishSnapshot(testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solatsync/sgr01/asr")
	assert.Contains(t, err.Error(), "not authorized")

	// Other states were still published
	assert.Equal(t, "Zohor", client.byTopic()["solatsync/sgr01/next_prayer"].payload)
}

func TestPublisher_DiscoveryFailureRetried(t *testing.T) {
	client := newFakeClient()
	client.failTopic = "homeassistant/sensor/solatsync_sgr01_maghrib/config"
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	err := p.PublishSnapshot(testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing discovery")
	_, ok := client.byTopic()["solatsync/sgr01/next_prayer"]
	assert.False(t, ok, "states wait for discovery")

	client.mu.Lock()
	client.failTopic = ""
	client.mu.Unlock()

	require.NoError(t, p.PublishSnapshot(testSnapshot()))
	_, ok = client.byTopic()["homeassistant/sensor/solatsync_sgr01_maghrib/config"]
	assert.True(t, ok)
}

func TestPublisher_PlayCommand(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	var got []string
	require.NoError(t, p.OnPlay(func(prayer string) { got = append(got, prayer) }))
	assert.Equal(t, "solatsync/sgr01/azan/play", p.PlayTopic())

	client.deliver("solatsync/sgr01/azan/play", " maghrib\n")
	assert.Equal(t, []string{"maghrib"}, got)
}

func TestPublisher_Close(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, "SGR01", "homeassistant", "solatsync", zap.NewNop())

	p.Close()

	assert.True(t, client.disconnected)
	msg := client.byTopic()["solatsync/sgr01/availability"]
	assert.Equal(t, "offline", msg.payload)
	assert.True(t, msg.retained)
}

func TestClientID(t *testing.T) {
	a := ClientID("solatsync")
	b := ClientID("solatsync")

	assert.Regexp(t, `^solatsync-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^solatsync-`, ClientID(""))
}
