// Package kafka publishes domain events to Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

const (
	defaultWriteTimeout = 10 * time.Second
	dialTimeout         = 5 * time.Second
)

var errNoBrokers = errors.New("kafka brokers are required")

// Message is one record. Records sharing a Key land on the same partition,
// so events of one bag stay ordered.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is a synchronous producer acknowledged by all in-sync replicas.
type Writer struct {
	writer  messageWriter
	brokers []string
}

func NewWriter(cfg config.KafkaConfig, logg *logger.Logger) (*Writer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: defaultWriteTimeout,
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", strings.Join(brokers, ",")), "kafka writer initialized")
	}
	return &Writer{writer: w, brokers: brokers}, nil
}

// WriteMessage blocks until the brokers acknowledge msg.
func (w *Writer) WriteMessage(ctx context.Context, msg Message) error {
	if w == nil || w.writer == nil {
		return errors.New("kafka writer not initialized")
	}
	if strings.TrimSpace(msg.Topic) == "" {
		return errors.New("kafka topic is required")
	}
	record := kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  time.Now().UTC(),
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := w.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (w *Writer) Ping(ctx context.Context) error {
	if w == nil {
		return errors.New("kafka writer not initialized")
	}
	dialer := &kafka.Dialer{Timeout: dialTimeout}
	var lastErr error
	for _, broker := range w.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (w *Writer) Close() error {
	if w == nil || w.writer == nil {
		return nil
	}
	return w.writer.Close()
}
