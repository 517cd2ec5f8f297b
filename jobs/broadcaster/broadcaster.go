package broadcaster

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"aggregator/api/pb"
	"aggregator/domain/book"
	"aggregator/service"
)

const defaultInterval = 250 * time.Millisecond

// Broadcaster publishes the merged book to a Kafka topic whenever the
// store changes, at most once per interval.
type Broadcaster struct {
	agg      *service.Aggregator
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	logger   *log.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	agg *service.Aggregator,
	brokers []string,
	topic string,
	interval time.Duration,
	logger *log.Logger,
) (*Broadcaster, error) {

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(agg, producer, topic, interval, logger), nil
}

// NewWithProducer wires an existing producer.
func NewWithProducer(
	agg *service.Aggregator,
	producer sarama.SyncProducer,
	topic string,
	interval time.Duration,
	logger *log.Logger,
) *Broadcaster {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		agg:      agg,
		producer: producer,
		topic:    topic,
		interval: interval,
		logger:   logger,
	}
}

// ------------------------------------------------
// RUN LOOP
// ------------------------------------------------

// Run blocks until ctx is done. A failed send is retried on the next
// tick with whatever the book looks like then.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Printf("[broadcaster] started topic=%s interval=%s", b.topic, b.interval)

	changes, stop := b.agg.Store().Watch()
	defer stop()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var (
		published book.Summary
		sentAny   bool
		dirty     = true
	)
	for {
		select {
		case <-ctx.Done():
			b.logger.Println("[broadcaster] stopped")
			return
		case <-changes:
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			sum, version := b.agg.MergedVersion()
			if sentAny && sum.Equal(published) {
				dirty = false
				continue
			}
			if err := b.publishOnce(sum, version); err != nil {
				b.logger.Printf("[broadcaster] publish version=%d failed: %v", version, err)
				continue
			}
			published, sentAny, dirty = sum, true, false
		}
	}
}

func (b *Broadcaster) publishOnce(sum book.Summary, version uint64) error {
	value, err := pb.FromBook(sum).MarshalWire()
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{{
			Key:   []byte("version"),
			Value: []byte(strconv.FormatUint(version, 10)),
		}},
	}
	_, _, err = b.producer.SendMessage(msg)
	return err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
