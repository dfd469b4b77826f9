package broadcaster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchbook/infra/metrics"
	exitwal "matchbook/infra/wal/exit"
)

// Publisher delivers one encoded trade event to the downstream feed.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// Outbox is the part of the exit WAL the broadcaster drives.
type Outbox interface {
	ScanByState(state exitwal.ExitState, fn func(seq uint64, rec exitwal.ExitRecord) error) error
	UpdateState(seq uint64, state exitwal.ExitState, retries uint32) error
	Requeue() (int, error)
	PurgeAcked() (int, error)
}

type Config struct {
	Interval   time.Duration
	MaxRetries uint32
	// Key derives the message key from the trade sequence number.
	Key func(seq uint64) []byte
}

// Broadcaster drains NEW trade events from the outbox to a Publisher.
// The service writes events in sequence order and they leave in that
// order; a failed event is retried on a later pass and marked FAILED once
// MaxRetries is reached.
type Broadcaster struct {
	outbox    Outbox
	publisher Publisher
	cfg       Config
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	outbox Outbox,
	publisher Publisher,
	cfg Config,
	m *metrics.Metrics,
	log *zap.Logger,
) *Broadcaster {
	return &Broadcaster{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run requeues events interrupted by a previous shutdown, then drains the
// outbox every Interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	if n, err := b.outbox.Requeue(); err != nil {
		b.log.Error("broadcaster: requeue failed", zap.Error(err))
	} else if n > 0 {
		b.log.Info("broadcaster: requeued in-flight events", zap.Int("count", n))
	}

	b.log.Info("broadcaster: started", zap.Duration("interval", b.cfg.Interval))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster: stopped")
			return
		case <-ticker.C:
			b.Drain(ctx)
		}
	}
}

// Drain makes one pass over the outbox and returns the number of events
// published.
func (b *Broadcaster) Drain(ctx context.Context) int {
	published := 0
	err := b.outbox.ScanByState(exitwal.StateNew, func(seq uint64, rec exitwal.ExitRecord) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if b.deliver(ctx, seq, rec) {
			published++
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		b.log.Error("broadcaster: scan failed", zap.Error(err))
	}

	if _, err := b.outbox.PurgeAcked(); err != nil {
		b.log.Error("broadcaster: purge failed", zap.Error(err))
	}
	return published
}

func (b *Broadcaster) deliver(ctx context.Context, seq uint64, rec exitwal.ExitRecord) bool {
	// 1️⃣ Mark SENT so a crash before the ack is requeued on restart
	if err := b.outbox.UpdateState(seq, exitwal.StateSent, rec.Retries); err != nil {
		b.log.Error("broadcaster: mark sent failed", zap.Uint64("seq", seq), zap.Error(err))
		return false
	}

	// 2️⃣ Publish
	if err := b.publisher.Publish(ctx, b.cfg.Key(seq), rec.Payload); err != nil {
		b.metrics.FeedPublishFails.Inc()
		b.retryLater(seq, rec.Retries+1, err)
		return false
	}

	// 3️⃣ Mark ACKED
	if err := b.outbox.UpdateState(seq, exitwal.StateAcked, rec.Retries); err != nil {
		b.log.Error("broadcaster: mark acked failed", zap.Uint64("seq", seq), zap.Error(err))
		return false
	}
	b.metrics.FeedPublished.Inc()
	return true
}

func (b *Broadcaster) retryLater(seq uint64, retries uint32, cause error) {
	state := exitwal.StateNew
	if retries >= b.cfg.MaxRetries {
		state = exitwal.StateFailed
	}
	if err := b.outbox.UpdateState(seq, state, retries); err != nil {
		b.log.Error("broadcaster: mark retry failed", zap.Uint64("seq", seq), zap.Error(err))
		return
	}

	log := b.log.Warn
	if state == exitwal.StateFailed {
		log = b.log.Error
	}
	log("broadcaster: publish failed",
		zap.Uint64("seq", seq),
		zap.Uint32("retries", retries),
		zap.Stringer("state", state),
		zap.Error(cause),
	)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
