package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"robotops/internal/alerts"
	"robotops/internal/config"
	"robotops/internal/fleet"
	"robotops/internal/teleop"
)

// KafkaWriter exports telemetry, alerts and commands to Kafka topics, keyed by
// robot id so each robot's records stay ordered within a partition.
type KafkaWriter struct {
	producer       sarama.SyncProducer
	telemetryTopic string
	alertTopic     string
	commandTopic   string
}

// NewKafkaWriter creates a synchronous producer for cfg.Brokers.
func NewKafkaWriter(cfg config.KafkaConfig) (*KafkaWriter, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newKafkaWriter(producer, cfg), nil
}

func newKafkaWriter(p sarama.SyncProducer, cfg config.KafkaConfig) *KafkaWriter {
	return &KafkaWriter{
		producer:       p,
		telemetryTopic: cfg.TelemetryTopic,
		alertTopic:     cfg.AlertTopic,
		commandTopic:   cfg.CommandTopic,
	}
}

func (k *KafkaWriter) message(topic, key string, v any) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}, nil
}

func (k *KafkaWriter) send(topic, key string, v any) error {
	msg, err := k.message(topic, key, v)
	if err != nil {
		return err
	}
	_, _, err = k.producer.SendMessage(msg)
	return err
}

// Write publishes a telemetry row.
func (k *KafkaWriter) Write(row fleet.TelemetryRow) error {
	return k.send(k.telemetryTopic, row.RobotID, row)
}

// WriteBatch publishes telemetry rows in one request.
func (k *KafkaWriter) WriteBatch(rows []fleet.TelemetryRow) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(rows))
	for _, r := range rows {
		msg, err := k.message(k.telemetryTopic, r.RobotID, r)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	return k.producer.SendMessages(msgs)
}

// WriteAlert publishes an alert.
func (k *KafkaWriter) WriteAlert(a alerts.Alert) error {
	return k.send(k.alertTopic, a.RobotID, a)
}

// WriteCommand publishes a teleop command.
func (k *KafkaWriter) WriteCommand(c teleop.Command) error {
	return k.send(k.commandTopic, c.RobotID, c)
}

// Close flushes and closes the producer.
func (k *KafkaWriter) Close() error {
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
