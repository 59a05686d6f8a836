// Package transport connects the monitor to robots over MQTT.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"robotops/internal/config"
	"robotops/internal/logging"
	"robotops/internal/monitor"
	"robotops/internal/teleop"
)

const (
	// Move commands repeat every tick, so a lost one is replaced by the next.
	qosMove     byte = 0
	qosDiscrete byte = 1
	qosEvents   byte = 1

	disconnectQuiesce = 250 // ms
)

// broker is the part of mqtt.Client the transport uses.
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTClient publishes teleop commands and subscribes to robot events.
type MQTTClient struct {
	client broker
	prefix string
	log    *slog.Logger
}

// NewMQTTClient connects to cfg.Broker.
func NewMQTTClient(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTClient, error) {
	log := logging.OrDefault(logger)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Info("mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return newMQTTClient(client, cfg.TopicPrefix, log), nil
}

func newMQTTClient(b broker, prefix string, log *slog.Logger) *MQTTClient {
	return &MQTTClient{client: b, prefix: strings.TrimSuffix(prefix, "/"), log: log}
}

// CommandTopic is where commands for robotID are published.
func (c *MQTTClient) CommandTopic(robotID string) string {
	return c.prefix + "/" + robotID + "/commands"
}

// EventTopic is the wildcard subscription covering every robot's events.
func (c *MQTTClient) EventTopic() string {
	return c.prefix + "/+/events"
}

// Send publishes cmd as JSON. It implements teleop.Transport.
func (c *MQTTClient) Send(ctx context.Context, cmd teleop.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	qos := qosDiscrete
	if cmd.Kind == teleop.KindMove {
		qos = qosMove
	}
	topic := c.CommandTopic(cmd.RobotID)
	if err := wait(ctx, c.client.Publish(topic, qos, false, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// SubscribeEvents decodes every robot event and hands it to ing. Events
// without a robot id take it from the topic. Rejected events are logged.
func (c *MQTTClient) SubscribeEvents(ctx context.Context, ing monitor.Ingester) error {
	topic := c.EventTopic()
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		c.handle(ctx, ing, msg.Topic(), msg.Payload())
	}
	if err := wait(ctx, c.client.Subscribe(topic, qosEvents, handler)); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	c.log.Info("mqtt subscribed", "topic", topic)
	return nil
}

func (c *MQTTClient) handle(ctx context.Context, ing monitor.Ingester, topic string, payload []byte) {
	var ev monitor.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn("mqtt event decode failed", "topic", topic, "err", err)
		return
	}
	if ev.RobotID == "" {
		ev.RobotID = robotFromTopic(c.prefix, topic)
	}
	if err := ing.Ingest(ctx, ev); err != nil {
		c.log.Warn("mqtt event rejected", "topic", topic, "event_id", ev.ID, "err", err)
	}
}

// Close disconnects from the broker.
func (c *MQTTClient) Close() {
	c.client.Disconnect(disconnectQuiesce)
}

func robotFromTopic(prefix, topic string) string {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogTransport writes commands to the log instead of a robot. It is the
// egress for local runs without a broker.
type LogTransport struct {
	log *slog.Logger
}

// NewLogTransport returns a LogTransport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{log: logging.OrDefault(logger)}
}

// Send logs cmd.
func (t *LogTransport) Send(ctx context.Context, cmd teleop.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.log.Info("teleop command",
		"robot_id", cmd.RobotID,
		"kind", cmd.Kind,
		"direction", cmd.Direction,
		"enabled", cmd.Enabled,
		"seq", cmd.Seq,
		"issued_at", cmd.IssuedAt,
	)
	return nil
}
