package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// TurnPurger deletes turns created before a unix timestamp.
type TurnPurger interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

// TurnRetentionJob drops stored turns older than the retention window.
type TurnRetentionJob struct {
	turns  TurnPurger
	maxAge time.Duration
	now    func() time.Time
}

func NewTurnRetentionJob(turns TurnPurger, maxAge time.Duration) *TurnRetentionJob {
	return &TurnRetentionJob{turns: turns, maxAge: maxAge, now: time.Now}
}

func (j *TurnRetentionJob) Name() string {
	return "turn_retention"
}

func (j *TurnRetentionJob) Run(ctx context.Context) error {
	if j.turns == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	cutoff := j.now().Add(-maxAge).Unix()
	deleted, err := j.turns.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("expired turns removed", zap.Int64("count", deleted), zap.Int64("cutoff", cutoff))
	}
	return nil
}
