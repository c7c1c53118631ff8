package broadcaster

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"memlab/infra/store"
)

// Publisher delivers one encoded report. It must not return before the
// broker has acknowledged the write.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// Outbox is the part of the report store the broadcaster drives.
type Outbox interface {
	ScanPending(fn func(store.Entry) error) error
	MarkSent(id uint64) error
	MarkAcked(id uint64) error
}

type Broadcaster struct {
	outbox   Outbox
	pub      Publisher
	interval time.Duration
	log      *zap.Logger

	wg sync.WaitGroup
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(outbox Outbox, pub Publisher, interval time.Duration, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		outbox:   outbox,
		pub:      pub,
		interval: interval,
		log:      log.Named("broadcaster"),
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start runs Run in its own goroutine. Wait blocks until it has returned.
func (b *Broadcaster) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Run(ctx)
	}()
}

func (b *Broadcaster) Wait() { b.wg.Wait() }

// Run drains the outbox every interval until ctx is done, then makes one
// last pass so reports recorded just before shutdown still go out.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("started", zap.Duration("interval", b.interval))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*b.interval)
			if _, err := b.DrainOnce(flush); err != nil {
				b.log.Warn("final drain", zap.Error(err))
			}
			cancel()
			b.log.Info("stopped")
			return
		case <-ticker.C:
			if _, err := b.DrainOnce(ctx); err != nil {
				b.log.Warn("drain", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// DrainOnce publishes every report not yet acknowledged. An entry is marked
// SENT before the publish and ACKED after it, so a crash in between leaves
// it SENT and the next pass sends it again. Publish failures are left for
// the next pass; store failures abort the pass.
func (b *Broadcaster) DrainOnce(ctx context.Context) (int, error) {
	acked := 0
	err := b.outbox.ScanPending(func(e store.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.State == store.StateNew {
			if err := b.outbox.MarkSent(e.ID); err != nil {
				return errors.Wrapf(err, "broadcaster: mark %d sent", e.ID)
			}
		}

		key := []byte(strconv.FormatUint(e.ID, 10))
		if err := b.pub.Publish(ctx, key, e.Payload); err != nil {
			b.log.Debug("publish failed, will retry", zap.Uint64("id", e.ID), zap.Error(err))
			return nil
		}

		if err := b.outbox.MarkAcked(e.ID); err != nil {
			return errors.Wrapf(err, "broadcaster: mark %d acked", e.ID)
		}
		acked++
		return nil
	})
	if acked > 0 {
		b.log.Debug("drained", zap.Int("acked", acked))
	}
	return acked, err
}

// ------------------------------------------------
// SARAMA
// ------------------------------------------------

type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaPublisher dials brokers with a producer that waits for every
// in-sync replica.
func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "broadcaster: sarama producer")
	}
	return WrapSyncProducer(producer, topic), nil
}

func WrapSyncProducer(p sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: p, topic: topic}
}

func (p *SaramaPublisher) Publish(_ context.Context, key, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
