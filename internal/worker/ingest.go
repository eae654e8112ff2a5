package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/smoradi/quotameter/internal/kafka"
	"github.com/smoradi/quotameter/internal/metrics"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/smoradi/quotameter/internal/repository"
	"go.uber.org/zap"
)

// Consumer is the slice of the Kafka consumer the ingestor needs. Satisfied by
// *kafka.Consumer.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Ingestor mirrors settled usage records from Kafka into ClickHouse:
// - fetches usage envelopes from the usage.settled topic,
// - batches inserts by size/time,
// - commits offsets only after a successful flush (at-least-once; the
//   ClickHouse table dedupes on id).
type Ingestor struct {
	Consumer  Consumer
	Usage     repository.CHUsageRepository
	BatchSize int
	BatchWait time.Duration
	Log       *zap.Logger
}

func NewIngestor(consumer Consumer, usage repository.CHUsageRepository, batchSize int, batchWait time.Duration, log *zap.Logger) *Ingestor {
	if batchSize <= 0 {
		batchSize = 200
	}
	if batchWait <= 0 {
		batchWait = 300 * time.Millisecond
	}
	return &Ingestor{
		Consumer:  consumer,
		Usage:     usage,
		BatchSize: batchSize,
		BatchWait: batchWait,
		Log:       log,
	}
}

// Run consumes until ctx is cancelled.
func (w *Ingestor) Run(ctx context.Context) error {
	msgCh := make(chan kafka.Message, w.BatchSize*2)

	// Fetcher goroutine. Run waits for it on the way out, so the send must
	// also watch ctx or a full channel would strand it after shutdown.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(msgCh)
		for {
			m, err := w.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Error("kafka fetch failed", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	defer wg.Wait()

	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	var (
		batch   []model.UsageEnvelope
		pending []kafka.Message
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if len(batch) > 0 {
			if err := w.Usage.InsertBatch(ctx, batch); err != nil {
				// keep the batch; offsets stay uncommitted so a restart replays
				w.Log.Error("clickhouse insert failed", zap.Error(err), zap.Int("batch", len(batch)))
				return
			}
			metrics.UsageIngestedTotal.Add(float64(len(batch)))
		}
		if err := w.Consumer.Commit(ctx, pending...); err != nil {
			w.Log.Error("kafka commit failed", zap.Error(err))
		}
		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case <-tick.C:
			flush()
		case m, ok := <-msgCh:
			if !ok {
				flush()
				return ctx.Err()
			}
			var env model.UsageEnvelope
			if err := json.Unmarshal(m.Value, &env); err != nil || env.ID == "" {
				// poison message: skip the insert, commit with the batch so
				// earlier uncommitted offsets are never skipped over
				w.Log.Warn("bad usage envelope", zap.Error(err))
				pending = append(pending, m)
				continue
			}
			batch = append(batch, env)
			pending = append(pending, m)
			if len(batch) >= w.BatchSize {
				flush()
			}
		}
	}
}
