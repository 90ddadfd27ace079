package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAtThresholdAndBacksOffExponentially(t *testing.T) {
	b := New(Params{
		FailureThreshold:   2,
		BaseCooldown:       time.Minute,
		MaxCooldown:        8 * time.Minute,
		PenaltyPerFailure:  1000,
		OpenCircuitPenalty: 1_000_000,
	})
	now := time.Now()

	b.RecordFailure("p:m", now) // 1st failure, below threshold
	require.False(t, b.IsOpen("p:m", now))

	b.RecordFailure("p:m", now) // 2nd (== threshold): opens with base cooldown
	require.True(t, b.IsOpen("p:m", now))
	e, ok := b.Entry("p:m")
	require.True(t, ok)
	require.WithinDuration(t, now.Add(time.Minute), *e.OpenUntil, time.Millisecond)

	b.RecordFailure("p:m", now) // 3rd (k=1): base*2
	e, _ = b.Entry("p:m")
	require.WithinDuration(t, now.Add(2*time.Minute), *e.OpenUntil, time.Millisecond)

	b.RecordFailure("p:m", now) // 4th (k=2): base*4
	e, _ = b.Entry("p:m")
	require.WithinDuration(t, now.Add(4*time.Minute), *e.OpenUntil, time.Millisecond)

	b.RecordFailure("p:m", now) // 5th (k=3): base*8 == max, capped
	e, _ = b.Entry("p:m")
	require.WithinDuration(t, now.Add(8*time.Minute), *e.OpenUntil, time.Millisecond)

	b.RecordSuccess("p:m")
	require.False(t, b.IsOpen("p:m", now))
	_, ok = b.Entry("p:m")
	require.False(t, ok)
}

func TestBreaker_Penalty(t *testing.T) {
	b := New(DefaultParams())
	now := time.Now()

	require.Equal(t, int64(0), b.GetPenalty("fresh:model", now))

	b.RecordFailure("flaky:model", now)
	require.Equal(t, int64(1000), b.GetPenalty("flaky:model", now))

	b.RecordFailure("flaky:model", now)
	require.Equal(t, int64(1_000_000), b.GetPenalty("flaky:model", now))
}

func TestBreaker_SnapshotRestoreRoundtrip(t *testing.T) {
	b := New(DefaultParams())
	now := time.Now()
	b.RecordFailure("a:b", now)
	b.RecordFailure("a:b", now)

	snap := b.Snapshot()

	b2 := New(DefaultParams())
	b2.Restore(snap)
	require.True(t, b2.IsOpen("a:b", now))
}

func TestBreaker_RestoreDiscardsWrongVersion(t *testing.T) {
	b := New(DefaultParams())
	b.Restore(Snapshot{Version: 2, Entries: map[string]Entry{"a:b": {ConsecutiveFailures: 99}}})
	_, ok := b.Entry("a:b")
	require.False(t, ok)
}
