// Package usage tracks what the workshop actually spends: fast daily
// counters in Redis and a durable per-completion ledger in Postgres. Both
// backends are optional; with neither configured the trackers are no-ops.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// SpendTracker accumulates estimated spend per model per UTC day in Redis.
// Amounts are stored as integer micro-dollars; workshop model prices go well
// below a cent per call.
type SpendTracker struct {
	rdb *redis.Client
}

// NewSpendTracker creates a spend tracker. If rdb is nil, recording is a
// no-op and reads return zero.
func NewSpendTracker(rdb *redis.Client) *SpendTracker {
	return &SpendTracker{rdb: rdb}
}

func dailySpendKey(model string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("promptlab:spend:daily:%s:%s", model, day)
}

// RecordSpend adds an estimated cost to the model's daily counter.
func (s *SpendTracker) RecordSpend(ctx context.Context, model string, cost decimal.Decimal) error {
	if s.rdb == nil || !cost.IsPositive() {
		return nil
	}
	micros := cost.Shift(6).IntPart()
	if micros <= 0 {
		return nil
	}

	key := dailySpendKey(model)
	pipe := s.rdb.Pipeline()
	pipe.IncrBy(ctx, key, micros)
	// Expire at end of day UTC + 1 hour buffer
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// DailySpend returns today's accumulated estimate for a model in USD.
// Redis errors fail soft: the tracker is advisory, not billing.
func (s *SpendTracker) DailySpend(ctx context.Context, model string) (decimal.Decimal, error) {
	if s.rdb == nil {
		return decimal.Zero, nil
	}
	micros, err := s.rdb.Get(ctx, dailySpendKey(model)).Int64()
	if err != nil {
		// redis.Nil means no spend yet; anything else degrades to zero.
		return decimal.Zero, nil
	}
	return decimal.NewFromInt(micros).Shift(-6), nil
}
