package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Entry is one completed inference call as the ledger records it.
type Entry struct {
	Model            string
	View             string
	PromptTokens     int
	CompletionTokens int
	// CostUSD is nil when the model had no pricing at the time of the call.
	CostUSD    *decimal.Decimal
	DurationMs int64
}

// ModelUsage is the aggregated ledger view the admin endpoint serves.
type ModelUsage struct {
	Model            string           `json:"model"`
	Completions      int64            `json:"completions"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	CostUSD          *decimal.Decimal `json:"cost_usd,omitempty"`
}

// Ledger persists per-completion usage rows in Postgres. A nil pool makes
// every method a no-op so the service runs without a database.
type Ledger struct {
	db *pgxpool.Pool
}

func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

// Record inserts one completion row. Fire-and-forget semantics belong to the
// caller; errors here are worth logging but never block a response.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l.db == nil {
		return nil
	}
	var costMicros *int64
	if e.CostUSD != nil {
		m := e.CostUSD.Shift(6).IntPart()
		costMicros = &m
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO completions (model, view, prompt_tokens, completion_tokens, cost_usd_micros, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Model, e.View, e.PromptTokens, e.CompletionTokens, costMicros, e.DurationMs)
	if err != nil {
		return fmt.Errorf("insert completion row: %w", err)
	}
	return nil
}

// Summary aggregates the ledger per model since the given time.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]ModelUsage, error) {
	if l.db == nil {
		return nil, nil
	}
	rows, err := l.db.Query(ctx, `
		SELECT model,
		       COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       SUM(cost_usd_micros)
		FROM completions
		WHERE created_at >= $1
		GROUP BY model
		ORDER BY model
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var mu ModelUsage
		var costMicros *int64
		if err := rows.Scan(&mu.Model, &mu.Completions, &mu.PromptTokens, &mu.CompletionTokens, &costMicros); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if costMicros != nil {
			c := decimal.NewFromInt(*costMicros).Shift(-6)
			mu.CostUSD = &c
		}
		out = append(out, mu)
	}
	return out, rows.Err()
}
