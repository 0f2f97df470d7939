// Package telemetry publishes agent lifecycle events to an MQTT broker so a
// fleet operator can watch session hosts without polling each one.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/lifeline-project/lifeline/events"
	"github.com/lifeline-project/lifeline/internal/health"
	"github.com/lifeline-project/lifeline/internal/logging"
)

const (
	topicState       = "session_host/state"
	topicMaintenance = "session_host/maintenance"
	topicHeartbeat   = "session_host/heartbeat"
)

// Config holds the MQTT connection settings.
type Config struct {
	BrokerURL string
	Port      int
	UseTLS    bool
	CertFile  string
	KeyFile   string
}

// Publisher bridges the agent event bus to MQTT topics.
type Publisher struct {
	cfg      Config
	bus      *events.Bus
	serverID string
	client   mqtt.Client
	sysInfo  health.SystemInfo
	logger   zerolog.Logger
}

// NewPublisher builds a publisher for the given host. The connection is not
// opened until Start.
func NewPublisher(cfg Config, bus *events.Bus, serverID string) *Publisher {
	return &Publisher{
		cfg:      cfg,
		bus:      bus,
		serverID: serverID,
		sysInfo:  health.GetSystemInfo(),
		logger:   logging.Component("telemetry"),
	}
}

// Start connects to the broker, subscribes to the agent event bus, and
// blocks until ctx is cancelled. A broker that cannot be reached at startup
// is an error; connection drops after that are retried by the client.
func (p *Publisher) Start(ctx context.Context) error {
	scheme := "tcp"
	if p.cfg.UseTLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, p.cfg.BrokerURL, p.cfg.Port)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("lifeline-" + p.serverID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			p.logger.Info().Str("broker", broker).Msg("connected to broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.logger.Warn().Err(err).Msg("broker connection lost")
		})

	if p.cfg.UseTLS {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if p.cfg.CertFile != "" && p.cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(p.cfg.CertFile, p.cfg.KeyFile)
			if err != nil {
				return fmt.Errorf("load telemetry client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsCfg)
	}

	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker %s: %w", broker, token.Error())
	}

	p.bus.Subscribe(events.EventStateChanged, "telemetry.state", p.onState)
	p.bus.Subscribe(events.EventOperationReceived, "telemetry.operation", p.onState)
	p.bus.Subscribe(events.EventMaintenanceScheduled, "telemetry.maintenance", p.onMaintenance)
	p.bus.Subscribe(events.EventHeartbeatFailed, "telemetry.heartbeat", p.onHeartbeatFailure)

	<-ctx.Done()
	p.client.Disconnect(5000)
	return nil
}

func (p *Publisher) onState(_ context.Context, event events.Event) error {
	return p.publish(topicState, event)
}

func (p *Publisher) onMaintenance(_ context.Context, event events.Event) error {
	return p.publish(topicMaintenance, event)
}

func (p *Publisher) onHeartbeatFailure(_ context.Context, event events.Event) error {
	return p.publish(topicHeartbeat, event)
}

func (p *Publisher) publish(topic string, event events.Event) error {
	if p.client == nil || !p.client.IsConnected() {
		return nil
	}

	message := map[string]any{
		"server_id": p.serverID,
		"hostname":  p.sysInfo.Hostname,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"type":      string(event.Type),
		"payload":   event.Payload,
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal telemetry message: %w", err)
	}

	token := p.client.Publish(topic, 1, false, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
		}
	}()
	return nil
}
