// Package kafka replays exchange feeds from a Kafka topic, for feeds
// that are captured upstream instead of read from the exchange.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"aggregator/infra/feed"
)

// Reader is the part of *kafka.Reader the source uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config describes one Kafka-backed feed.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	Logger  *log.Logger
}

// Source feeds every record value on a topic to one handler.
type Source struct {
	reader Reader
	topic  string
	logger *log.Logger
}

func NewSource(cfg Config) *Source {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  250 * time.Millisecond,
	})
	return NewSourceWithReader(r, cfg.Topic, cfg.Logger)
}

func NewSourceWithReader(r Reader, topic string, logger *log.Logger) *Source {
	if logger == nil {
		logger = log.Default()
	}
	return &Source{reader: r, topic: topic, logger: logger}
}

// Run reads until ctx is done. The reader reconnects to brokers on its
// own, so only context cancellation or a closed reader end the loop.
func (s *Source) Run(ctx context.Context, h feed.Handler) error {
	defer s.reader.Close()

	if err := h.OnConnect(ctx, nil); err != nil {
		return fmt.Errorf("kafka %s: on connect: %w", s.topic, err)
	}

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("kafka %s: read: %w", s.topic, err)
		}
		if err := h.OnMessage(ctx, msg.Value); err != nil {
			return err
		}
	}
}
