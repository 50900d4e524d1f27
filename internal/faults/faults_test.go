package faults

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sigslot/internal/signal"
	"github.com/mattjoyce/sigslot/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "faults.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleFault(name string, at time.Time) signal.Fault {
	return signal.Fault{
		Signal:     signal.SignalID(1<<32 | 1),
		SignalName: name,
		Receiver:   signal.ReceiverID(1<<32 | 2),
		Strategy:   signal.StrategyReceiverQueue,
		Err:        fmt.Errorf("emit %s: %w", name, signal.ErrQueueFull),
		At:         at,
	}
}

func TestStoreRecordListCount(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		id, err := s.Record(ctx, sampleFault(fmt.Sprintf("sig%d", i), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "sig2", recs[0].SignalName, "newest first")
	assert.Equal(t, "sig1", recs[1].SignalName)
	assert.Equal(t, signal.ErrQueueFull.Error(), recs[0].Kind)
	assert.Equal(t, "receiver_queue", recs[0].Strategy)
	assert.Equal(t, base.Add(2*time.Second), recs[0].OccurredAt)
	assert.NotEmpty(t, recs[0].ReceiverID)
}

func TestStoreFreeFunctionFaultHasNoReceiver(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	f := sampleFault("free", time.Now())
	f.Receiver = 0
	_, err := s.Record(ctx, f)
	require.NoError(t, err)

	recs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].ReceiverID)
}

func TestStorePrune(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()

	_, err := s.Record(ctx, sampleFault("old", time.Now().Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = s.Record(ctx, sampleFault("new", time.Now()))
	require.NoError(t, err)

	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].SignalName)
}

func TestStoreOrdersWithinOneSecond(t *testing.T) {
	s := NewStore(openTestDB(t))
	ctx := context.Background()
	whole := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	_, err := s.Record(ctx, sampleFault("later", whole.Add(500*time.Millisecond)))
	require.NoError(t, err)
	_, err = s.Record(ctx, sampleFault("earlier", whole))
	require.NoError(t, err)

	recs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "later", recs[0].SignalName)
	assert.Equal(t, whole.Add(500*time.Millisecond), recs[0].OccurredAt)
	assert.Equal(t, "earlier", recs[1].SignalName)

	n, err := s.pruneBefore(ctx, whole.Add(250*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err = s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "later", recs[0].SignalName)
}

func TestRecorderPersistsAndFlushesOnStop(t *testing.T) {
	s := NewStore(openTestDB(t))
	r := NewRecorder(s, 16, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 5; i++ {
		r.DispatchFault(sampleFault("live", time.Now()))
	}
	assert.Eventually(t, func() bool { return r.Stats().Recorded == 5 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// After stop, faults are counted as dropped.
	r.DispatchFault(sampleFault("late", time.Now()))
	assert.Equal(t, uint64(1), r.Stats().Dropped)

	assert.ErrorIs(t, r.Run(context.Background()), ErrRecorderClosed)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	s := NewStore(openTestDB(t))
	r := NewRecorder(s, 2, testLogger())

	for i := 0; i < 5; i++ {
		r.DispatchFault(sampleFault("burst", time.Now()))
	}
	st := r.Stats()
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, uint64(3), st.Dropped)

	// A cancelled run still flushes the buffered faults.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, uint64(2), r.Stats().Recorded)
}

func TestRecorderPrunesOnSchedule(t *testing.T) {
	s := NewStore(openTestDB(t))
	_, err := s.Record(context.Background(), sampleFault("ancient", time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	r := NewRecorder(s, 4, testLogger(), WithRetention(time.Minute, 10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	assert.Eventually(t, func() bool {
		n, err := s.Count(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorderWithEngine(t *testing.T) {
	s := NewStore(openTestDB(t))
	r := NewRecorder(s, 16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	caps := signal.DefaultCapacities()
	sc, err := signal.NewContext(caps, signal.WithFaultSink(r), signal.WithLogger(testLogger()))
	require.NoError(t, err)

	obj, err := sc.NewObject("full", signal.WithQueue(1))
	require.NoError(t, err)
	sig, err := signal.New[int](sc, "readings")
	require.NoError(t, err)
	require.NoError(t, signal.ConnectMethod(sig, obj, func(*signal.Object, int) {}, signal.ModeObjectQueue))

	require.NoError(t, sig.Emit(ctx, 1))
	assert.ErrorIs(t, sig.Emit(ctx, 2), signal.ErrQueueFull)

	assert.Eventually(t, func() bool { return r.Stats().Recorded == 1 }, 2*time.Second, 10*time.Millisecond)
	recs, err := s.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "readings", recs[0].SignalName)
	assert.Equal(t, signal.ErrQueueFull.Error(), recs[0].Kind)
}
