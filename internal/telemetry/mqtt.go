// Package telemetry publishes ribbon activity to MQTT and exposes it as
// Prometheus metrics.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/config"
	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/util"
)

// MQTT topics
const (
	TopicSession = "lfbot/session"
	TopicRoom    = "lfbot/room"
	TopicSocial  = "lfbot/social"
	TopicAdmin   = "lfbot/admin"
)

// Publisher is the subset of mqtt.Client the handler uses.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTHandler forwards ribbon events to an MQTT broker.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	pub      Publisher

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus, version string) (*MQTTHandler, error) {
	mqttCfg := cfg.GetApplicationData().MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	handler := &MQTTHandler{
		cfg:      mqttCfg,
		eventBus: eventBus,
		metadata: hostMetadata(sysInfo, version),
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(fmt.Sprintf("%s-%s", mqttCfg.ClientID, sysInfo.Hostname))
	} else {
		opts.SetClientID(fmt.Sprintf("lfbot-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	handler.pub = handler.client

	return handler, nil
}

func buildTLSConfig(mqttCfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	// mTLS: load client certificate
	if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if mqttCfg.CAFile != "" {
		pem, err := os.ReadFile(mqttCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", mqttCfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

func hostMetadata(info util.SystemInfo, version string) map[string]interface{} {
	return map[string]interface{}{
		"hostname":    info.Hostname,
		"platform":    info.Platform,
		"cpu_model":   info.CPUModel,
		"cpu_cores":   info.CPUCores,
		"memory_mb":   info.TotalMemory,
		"app_version": version,
	}
}

// Start connects to the MQTT broker and forwards events until ctx is done.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.SubscribeAll([]events.EventType{
		events.EventConnected,
		events.EventSessionEstablished,
		events.EventAuthorized,
		events.EventMigrating,
		events.EventMigrated,
		events.EventDisconnected,
		events.EventKicked,
	}, "mqtt.session", h.forward(TopicSession))

	h.eventBus.SubscribeAll([]events.EventType{
		events.EventRoomUpdated,
		events.EventRoomLeft,
		events.EventJoinCommand,
	}, "mqtt.room", h.forward(TopicRoom))

	h.eventBus.SubscribeAll([]events.EventType{
		events.EventInviteAccepted,
		events.EventDMReplied,
		events.EventFriendAccepted,
	}, "mqtt.social", h.forward(TopicSocial))
}

// forward returns a handler publishing events to topic.
func (h *MQTTHandler) forward(topic string) events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		h.publish(topic, map[string]interface{}{
			"event":   event.Type,
			"epoch":   event.Epoch,
			"payload": event.Payload,
		})
		return nil
	}
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.pub.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.pub.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}

	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

// PublishShutdown sends a shutdown message to the MQTT broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{
		"event":     events.EventShutdown,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
