package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smoradi/quotameter/internal/kafka"
	"github.com/smoradi/quotameter/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConsumer serves a fixed message list, then blocks until ctx is done.
type fakeConsumer struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	next    int
	commits []kafka.Message
	endless bool // keep producing the first message forever
}

func (f *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.endless && len(f.msgs) > 0 {
		m := f.msgs[0]
		f.mu.Unlock()
		return m, nil
	}
	if f.next < len(f.msgs) {
		m := f.msgs[f.next]
		f.next++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeConsumer) Commit(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeConsumer) committed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

type fakeUsage struct {
	mu         sync.Mutex
	inserted   []model.UsageEnvelope
	failInsert bool
}

func (f *fakeUsage) InsertBatch(_ context.Context, recs []model.UsageEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return errors.New("clickhouse down")
	}
	f.inserted = append(f.inserted, recs...)
	return nil
}

func (f *fakeUsage) ListByTenant(context.Context, int64, string, string, int, int) ([]model.UsageRecord, error) {
	return nil, nil
}

func (f *fakeUsage) GlobalTotals(context.Context, time.Time, time.Time) (model.UsageTotals, error) {
	return model.UsageTotals{}, nil
}

func (f *fakeUsage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func envMsg(t *testing.T, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(model.UsageEnvelope{
		ID:          id,
		TenantID:    1,
		Feature:     "chat",
		Model:       "gpt-4",
		InputTokens: 100,
		CostMicros:  3_000,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestIngestorMirrorsAndCommits(t *testing.T) {
	consumer := &fakeConsumer{msgs: []kafka.Message{
		envMsg(t, "a"), envMsg(t, "b"), envMsg(t, "c"),
	}}
	usage := &fakeUsage{}
	w := NewIngestor(consumer, usage, 2, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Equal(t, 3, usage.count())
	require.Equal(t, 3, consumer.committed())
}

// Poison messages are committed alongside the batch but never inserted, so the
// stream keeps moving without skipping uncommitted earlier offsets.
func TestIngestorPoisonCommittedNotInserted(t *testing.T) {
	consumer := &fakeConsumer{msgs: []kafka.Message{
		envMsg(t, "a"),
		{Value: []byte("not json")},
		envMsg(t, "b"),
	}}
	usage := &fakeUsage{}
	w := NewIngestor(consumer, usage, 10, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	require.Equal(t, 2, usage.count())
	require.Equal(t, 3, consumer.committed())
}

// A failed insert leaves offsets uncommitted so a restart replays the batch.
func TestIngestorFailedInsertCommitsNothing(t *testing.T) {
	consumer := &fakeConsumer{msgs: []kafka.Message{envMsg(t, "a"), envMsg(t, "b")}}
	usage := &fakeUsage{failInsert: true}
	w := NewIngestor(consumer, usage, 2, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	require.Equal(t, 0, usage.count())
	require.Equal(t, 0, consumer.committed())
}

// Shutdown while the fetcher is mid-send must not strand it on a full channel;
// Run waits for the fetcher, so a stuck send would hang this test.
func TestIngestorShutdownUnblocksFetcher(t *testing.T) {
	consumer := &fakeConsumer{msgs: []kafka.Message{envMsg(t, "a")}, endless: true}
	usage := &fakeUsage{}
	w := NewIngestor(consumer, usage, 1, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
