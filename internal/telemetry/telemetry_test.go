package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfbot-project/lfbot/internal/config"
	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/util"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func newTestHandler(pub Publisher, bus *events.EventBus) *MQTTHandler {
	return &MQTTHandler{
		eventBus: bus,
		pub:      pub,
		metadata: hostMetadata(util.SystemInfo{Hostname: "host-1"}, "test"),
	}
}

func TestMQTTForwardsEventsByTopic(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	pub := &fakePublisher{connected: true}
	h := newTestHandler(pub, bus)
	h.subscribeEvents()

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventAuthorized,
		Epoch:   "e1",
		Payload: events.SessionPayload{RibbonID: "r1", Username: "lfbot"},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventJoinCommand,
		Payload: events.JoinCommandPayload{UserID: "u1", Accepted: true},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventFriendAccepted,
		Payload: events.SocialPayload{UserID: "u9"},
	}))

	sent := pub.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, TopicSession, sent[0].topic)
	assert.Equal(t, TopicRoom, sent[1].topic)
	assert.Equal(t, TopicSocial, sent[2].topic)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(sent[0].payload, &msg))
	assert.Equal(t, "host-1", msg["hostname"])
	assert.Equal(t, "test", msg["app_version"])
	assert.NotEmpty(t, msg["timestamp"])

	inner := msg["payload"].(map[string]interface{})
	assert.Equal(t, string(events.EventAuthorized), inner["event"])
	assert.Equal(t, "e1", inner["epoch"])
}

func TestMQTTSkipsWhenDisconnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	h := newTestHandler(pub, events.NewEventBus())

	h.PublishShutdown()
	assert.Empty(t, pub.sent())

	pub.connected = true
	h.PublishShutdown()
	require.Len(t, pub.sent(), 1)
	assert.Equal(t, TopicAdmin, pub.sent()[0].topic)
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.DefaultConfig(), events.NewEventBus(), "test")
	assert.Error(t, err)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.FrameReceived("room.chat")
	m.FrameReceived("room.chat")
	m.FrameSent("ping")
	m.MessageDropped("stale")
	m.DecodeFailed()
	m.Reconnecting("migrate")
	m.HeartbeatSent()
	m.SetConnected(true)

	assert.Equal(t, 2.0, counterValue(t, m.framesReceived.WithLabelValues("room.chat")))
	assert.Equal(t, 1.0, counterValue(t, m.framesSent.WithLabelValues("ping")))
	assert.Equal(t, 1.0, counterValue(t, m.dropped.WithLabelValues("stale")))
	assert.Equal(t, 1.0, counterValue(t, m.decodeErrors))
	assert.Equal(t, 1.0, counterValue(t, m.reconnects.WithLabelValues("migrate")))
	assert.Equal(t, 1.0, counterValue(t, m.heartbeats))
	assert.Equal(t, 1.0, gaugeValue(t, m.connected))

	m.SetConnected(false)
	assert.Equal(t, 0.0, gaugeValue(t, m.connected))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.FrameReceived("session")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `lfbot_ribbon_frames_received_total{command="session"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
