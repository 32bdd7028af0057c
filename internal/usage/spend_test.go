package usage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSpendTracker_NilRedis_NoOp(t *testing.T) {
	s := NewSpendTracker(nil)
	err := s.RecordSpend(context.Background(), "GPT-4o", decimal.RequireFromString("0.06"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSpendTracker_NilRedis_ZeroRead(t *testing.T) {
	s := NewSpendTracker(nil)
	spend, err := s.DailySpend(context.Background(), "GPT-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !spend.IsZero() {
		t.Errorf("expected zero spend, got %s", spend)
	}
}

func TestSpendTracker_NilRedis_NegativeCost(t *testing.T) {
	s := NewSpendTracker(nil)
	if err := s.RecordSpend(context.Background(), "GPT-4o", decimal.Zero); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedger_NilPool_NoOp(t *testing.T) {
	l := NewLedger(nil)
	cost := decimal.RequireFromString("0.001")
	err := l.Record(context.Background(), Entry{
		Model:            "Phi-4",
		View:             "main",
		PromptTokens:     100,
		CompletionTokens: 50,
		CostUSD:          &cost,
		DurationMs:       420,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := l.Summary(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != nil {
		t.Errorf("expected nil summary without a database, got %v", summary)
	}
}
