package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	cutoff int64
	calls  int
	err    error
}

func (f *fakePurger) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 2, f.err
}

func TestTurnRetentionJob(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakePurger{}
	j := NewTurnRetentionJob(purger, 48*time.Hour)
	j.now = func() time.Time { return now }

	require.Equal(t, "turn_retention", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, 1, purger.calls)
	require.Equal(t, now.Add(-48*time.Hour).Unix(), purger.cutoff)
}

func TestTurnRetentionJob_DefaultAgeAndErrors(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakePurger{err: errors.New("db down")}
	j := NewTurnRetentionJob(purger, 0)
	j.now = func() time.Time { return now }

	require.Error(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), purger.cutoff)

	require.NoError(t, NewTurnRetentionJob(nil, time.Hour).Run(context.Background()))
}
