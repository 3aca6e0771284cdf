package rotation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/pkg/secretstore"
)

// stubRotator returns canned values and records every Rotate call.
type stubRotator struct {
	err   error
	delay time.Duration

	mu       sync.Mutex
	calls    []string
	inFlight int32
	maxSeen  int32
}

func (r *stubRotator) Kind() Kind { return KindPassword }

func (r *stubRotator) Rotate(ctx context.Context, key string) (string, error) {
	n := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, n) {
			break
		}
	}

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, key)
	count := len(r.calls)
	r.mu.Unlock()

	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("value-%s-%d", key, count), nil
}

func (r *stubRotator) callKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type engineFixture struct {
	engine *Engine
	store  *secretstore.MemoryStore
	clock  time.Time
}

func newEngineFixture(t *testing.T, cfg EngineConfig) *engineFixture {
	t.Helper()
	store := secretstore.NewMemoryStore("test-store")
	publisher := secretstore.NewPublisher(testLogger(), store)
	engine := NewEngine(publisher, testLogger(), audit.NewLog(), cfg)

	f := &engineFixture{
		engine: engine,
		store:  store,
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	engine.now = func() time.Time { return f.clock }
	return f
}

func TestEngineRegisterDuplicate(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), &stubRotator{}))

	err := f.engine.Register(NewPolicy("vault", time.Minute, []string{"other"}), &stubRotator{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault")
}

func TestEngineRotatesDueKeysAndPublishes(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	rot := &stubRotator{}
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token", "unseal"}), rot))

	report := f.engine.RunCycle(context.Background(), false)

	require.Len(t, report.Records, 2)
	for _, rec := range report.Records {
		assert.Equal(t, OutcomeRotated, rec.Outcome)
		assert.Contains(t, rec.Detail, "test-store: ok")
	}
	assert.Equal(t, []string{"token", "unseal"}, rot.callKeys())

	published, err := f.store.Get(context.Background(), "vault", "token")
	require.NoError(t, err)
	assert.Equal(t, "value-token-1", published)
}

func TestEngineSkipsInsideInterval(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	rot := &stubRotator{}
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), rot))

	first := f.engine.RunCycle(context.Background(), false)
	require.Len(t, first.Records, 1)
	assert.Equal(t, OutcomeRotated, first.Records[0].Outcome)

	f.clock = f.clock.Add(30 * time.Minute)
	second := f.engine.RunCycle(context.Background(), false)
	require.Len(t, second.Records, 1)
	assert.Equal(t, OutcomeSkipped, second.Records[0].Outcome)
	assert.Contains(t, second.Records[0].Detail, "not due until")

	f.clock = f.clock.Add(30 * time.Minute)
	third := f.engine.RunCycle(context.Background(), false)
	assert.Equal(t, OutcomeRotated, third.Records[0].Outcome)

	assert.Len(t, rot.callKeys(), 2)
}

func TestEngineFailureDoesNotAffectOtherServices(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	failing := &stubRotator{err: &Error{Kind: ErrUpstreamRejected, Key: "password", Err: assert.AnError}}
	healthy := &stubRotator{}
	require.NoError(t, f.engine.Register(NewPolicy("db", time.Hour, []string{"password"}), failing))
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), healthy))

	report := f.engine.RunCycle(context.Background(), false)

	counts := report.PerService()
	assert.Equal(t, Counts{Failed: 1}, counts["db"])
	assert.Equal(t, Counts{Rotated: 1}, counts["vault"])

	// The failed key stays due for the next cycle.
	f.clock = f.clock.Add(time.Minute)
	again := f.engine.RunCycle(context.Background(), false)
	assert.Equal(t, Counts{Failed: 1}, again.PerService()["db"])
	assert.Equal(t, Counts{Skipped: 1}, again.PerService()["vault"])
}

func TestEngineDryRun(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	rot := &stubRotator{}
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), rot))

	report := f.engine.RunCycle(context.Background(), true)

	assert.True(t, report.DryRun)
	require.Len(t, report.Records, 1)
	assert.Equal(t, OutcomeSkipped, report.Records[0].Outcome)
	assert.Equal(t, "due (dry-run)", report.Records[0].Detail)
	assert.Empty(t, rot.callKeys(), "dry-run never calls the rotator")

	_, err := f.store.Get(context.Background(), "vault", "token")
	assert.ErrorIs(t, err, secretstore.ErrNotFound)

	// Schedule state is untouched, so a real run still rotates.
	real := f.engine.RunCycle(context.Background(), false)
	assert.Equal(t, OutcomeRotated, real.Records[0].Outcome)
}

func TestEngineInterrupted(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	rot := &stubRotator{}
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), rot))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.engine.RunCycle(ctx, false)

	require.Len(t, report.Records, 1)
	assert.Equal(t, OutcomeFailed, report.Records[0].Outcome)
	assert.Equal(t, "interrupted", report.Records[0].Detail)
	assert.Empty(t, rot.callKeys())
}

func TestEngineSequentialWithinService(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{MaxParallel: 8})
	rot := &stubRotator{delay: 10 * time.Millisecond}
	require.NoError(t, f.engine.Register(NewPolicy("db", time.Hour, []string{"a", "b", "c", "d"}), rot))

	report := f.engine.RunCycle(context.Background(), false)

	require.Len(t, report.Records, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, rot.callKeys())
	assert.Equal(t, int32(1), atomic.LoadInt32(&rot.maxSeen), "keys of one service never rotate concurrently")
}

func TestEngineBoundedParallelism(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{MaxParallel: 2})
	rot := &stubRotator{delay: 20 * time.Millisecond}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("svc-%d", i)
		require.NoError(t, f.engine.Register(NewPolicy(name, time.Hour, []string{"key"}), rot))
	}

	report := f.engine.RunCycle(context.Background(), false)

	assert.Len(t, report.Records, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&rot.maxSeen), int32(2))
}

func TestEngineStatePersistence(t *testing.T) {
	statePath := t.TempDir() + "/schedule.json"

	f := newEngineFixture(t, EngineConfig{})
	require.NoError(t, f.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), &stubRotator{}))
	require.NoError(t, f.engine.SetStateStore(NewStateStore(statePath)))

	report := f.engine.RunCycle(context.Background(), false)
	require.Equal(t, OutcomeRotated, report.Records[0].Outcome)

	// A fresh engine restores the schedule and skips inside the interval.
	g := newEngineFixture(t, EngineConfig{})
	g.clock = f.clock.Add(30 * time.Minute)
	rot := &stubRotator{}
	require.NoError(t, g.engine.Register(NewPolicy("vault", time.Hour, []string{"token"}), rot))
	require.NoError(t, g.engine.SetStateStore(NewStateStore(statePath)))

	restored := g.engine.RunCycle(context.Background(), false)
	assert.Equal(t, OutcomeSkipped, restored.Records[0].Outcome)
	assert.Empty(t, rot.callKeys())
}
