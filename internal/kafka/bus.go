package kafka

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"go.uber.org/zap"
)

// Bus owns one async producer per topic and publishes envelopes as JSON.
type Bus struct {
	producers map[string]*Producer
}

func NewBus(brokers []string, topics []string, buf int, log *zap.Logger) *Bus {
	b := &Bus{producers: make(map[string]*Producer, len(topics))}
	for _, t := range topics {
		b.producers[t] = NewProducer(brokers, t, buf, log)
	}
	return b
}

func (b *Bus) Start(ctx context.Context) {
	for _, p := range b.producers {
		p.Start(ctx)
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, key []byte, env orders.Envelope) error {
	p, ok := b.producers[topic]
	if !ok {
		return fmt.Errorf("no producer for topic %q", topic)
	}
	return p.Publish(ctx, key, MustMarshal(env), envelopeHeaders(env)...)
}

func (b *Bus) WaitClosed() {
	for _, p := range b.producers {
		p.WaitClosed()
	}
}
