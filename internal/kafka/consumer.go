package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the part of *kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	workers int
	retries int
	backoff time.Duration
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if log == nil {
		log = zap.NewNop()
	}
	return newConsumer(r, workers, log.With(zap.String("topic", topic)))
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, retries: 5, backoff: 500 * time.Millisecond, log: log}
}

// Start fetches until ctx is done. Each partition is pinned to one worker so
// its offsets are handled and committed in order. A message that still fails
// after all retries stops the consumer with its offset uncommitted; the group
// redelivers it after a restart.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if err := c.process(runCtx, h, m); err != nil {
					stop(err)
					return
				}
			}
		}(lanes[i])
	}

	fetchErr := c.dispatch(runCtx, lanes)
	for _, l := range lanes {
		close(l)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if fetchErr != nil {
		return fetchErr
	}
	if cause := context.Cause(runCtx); cause != nil {
		c.log.Error("consumer stopped, message left uncommitted", zap.Error(cause))
		return cause
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, lanes []chan kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%len(lanes)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) error {
	if err := c.handle(ctx, h, m); err != nil {
		return fmt.Errorf("partition %d offset %d: %w", m.Partition, m.Offset, err)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit partition %d offset %d: %w", m.Partition, m.Offset, err)
	}
	return nil
}

// handle retries h with linear backoff.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	var err error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		c.log.Warn("handler failed",
			zap.Int("attempt", attempt), zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset), zap.Error(err))
		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}
