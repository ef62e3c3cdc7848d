package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/bagflow-backend/pkg/kafka"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/registry"
)

// outboundMessage is one resolved outbox row ready for a broker.
type outboundMessage struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// sink ships messages to a broker and blocks until they are acknowledged.
type sink interface {
	Name() string
	Ping(ctx context.Context) error
	Publish(ctx context.Context, msg outboundMessage) error
}

type kafkaWriter interface {
	Ping(ctx context.Context) error
	WriteMessage(ctx context.Context, msg kafka.Message) error
}

type kafkaSink struct {
	writer kafkaWriter
}

func newKafkaSink(writer kafkaWriter) *kafkaSink {
	return &kafkaSink{writer: writer}
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) Ping(ctx context.Context) error {
	return s.writer.Ping(ctx)
}

func (s *kafkaSink) Publish(ctx context.Context, msg outboundMessage) error {
	return s.writer.WriteMessage(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Data,
		Headers: msg.Attributes,
	})
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// pubSubSink keeps one publisher per topic; Pub/Sub publishers batch
// internally and are meant to be reused.
type pubSubSink struct {
	client     pubSubClient
	factory    publisherFactory
	mu         sync.Mutex
	publishers map[string]publisher
}

func newPubSubSink(client pubSubClient, factory publisherFactory) *pubSubSink {
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPubPublisher(client.Publisher(topic))
		}
	}
	return &pubSubSink{client: client, factory: factory, publishers: map[string]publisher{}}
}

func (s *pubSubSink) Name() string { return "pubsub" }

func (s *pubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubSubSink) Publish(ctx context.Context, msg outboundMessage) error {
	pub := s.publisher(msg.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", msg.Topic))
	}
	attrs := make(map[string]string, len(msg.Attributes))
	for k, v := range msg.Attributes {
		attrs[k] = v
	}
	result := pub.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: attrs})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", msg.Topic))
	}
	_, err := result.Get(ctx)
	return err
}

func (s *pubSubSink) publisher(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.factory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

func newGCPPubPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
