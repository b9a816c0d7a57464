package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// delivery is the outcome of one publish attempt, settled later inside the batch tx.
type delivery struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	err     error
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	// ResumePublish reopens an ordering key after a failed publish paused it.
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// deliver resolves the event's topic and publishes it keyed by order id. Anything the
// registry rejects, and any failure on the final allowed attempt, is dead-lettered.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic

	err = s.publish(ctx, topic, orderMessage(event, resolved.Envelope))
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		return delivery{verdict: verdictPublished, topic: topic}
	case errors.As(err, &nonRetry):
		return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, topic: topic, err: err}
	case event.AttemptCount+1 >= s.maxAttempts:
		return delivery{
			verdict: verdictDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			topic:   topic,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
		}
	}
	return delivery{verdict: verdictRetry, topic: topic, err: err}
}

func (s *Service) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publishers.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// the key stays paused until resumed; the retry on the next batch needs it open
		pub.ResumePublish(msg.OrderingKey)
		return err
	}
	return nil
}

// orderMessage carries the stored envelope untouched. The ordering key is the order id so
// order_created always precedes that order's status changes on the subscription.
func orderMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	orderID := event.AggregateID.String()
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"event_version":  strconv.Itoa(envelope.Version),
		"aggregate_type": string(event.AggregateType),
		"order_id":       orderID,
	}
	if !envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderID,
		Attributes:  attrs,
	}
}

// publisherCache keeps one publisher per topic for the life of the process.
type publisherCache struct {
	mu      sync.Mutex
	factory publisherFactory
	byTopic map[string]publisher
}

func newPublisherCache(factory publisherFactory) *publisherCache {
	return &publisherCache{factory: factory, byTopic: map[string]publisher{}}
}

func (c *publisherCache) get(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.byTopic[topic]; ok {
		return pub
	}
	pub := c.factory(topic)
	if pub != nil {
		c.byTopic[topic] = pub
	}
	return pub
}

func (c *publisherCache) stopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, pub := range c.byTopic {
		if stopper, ok := pub.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(c.byTopic, topic)
	}
}

func orderedTopicPublisher(client topicClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
