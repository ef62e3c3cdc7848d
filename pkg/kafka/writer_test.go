package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	r.msgs = append(r.msgs, msgs...)
	return r.err
}

func (r *recordingWriter) Close() error { return nil }

func TestNewWriterRequiresBrokers(t *testing.T) {
	_, err := NewWriter(config.KafkaConfig{Brokers: []string{" ", ""}}, nil)
	assert.ErrorIs(t, err, errNoBrokers)

	w, err := NewWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, w.brokers)
}

func TestWriteMessageCarriesKeyAndHeaders(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec}

	err := w.WriteMessage(context.Background(), Message{
		Topic:   "bag-events",
		Key:     "bag-1",
		Value:   []byte(`{"ok":true}`),
		Headers: map[string]string{"event_type": "bag_status_changed"},
	})
	require.NoError(t, err)
	require.Len(t, rec.msgs, 1)
	msg := rec.msgs[0]
	assert.Equal(t, "bag-events", msg.Topic)
	assert.Equal(t, []byte("bag-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("bag_status_changed"), msg.Headers[0].Value)
}

func TestWriteMessageErrors(t *testing.T) {
	w := &Writer{writer: &recordingWriter{err: errors.New("leader not available")}}
	assert.Error(t, w.WriteMessage(context.Background(), Message{Topic: "bag-events"}))
	assert.Error(t, w.WriteMessage(context.Background(), Message{}))
}
