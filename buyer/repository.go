package buyer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"credpulse/agents"
)

var (
	// ErrNotFound signals an unknown buyer.
	ErrNotFound = errors.New("buyer: not found")
)

// PGRepository reads buyer payment behavior for the supply-chain agent. It
// implements agents.BuyerHistoryProvider.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed buyer repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// PaymentHistory returns the buyer's payment cycle stats. Null columns fall
// back to conservative defaults so a sparsely-filled row still scores.
func (r *PGRepository) PaymentHistory(ctx context.Context, buyerID string) (agents.BuyerHistory, error) {
	const query = `
		SELECT id, name,
		       COALESCE(avg_payment_days, 30),
		       COALESCE(on_time_rate, 0.85),
		       COALESCE(total_invoices, 0),
		       COALESCE(risk_score, 700)
		FROM buyers
		WHERE id = $1
	`

	var hist agents.BuyerHistory
	err := r.pool.QueryRow(ctx, query, buyerID).Scan(
		&hist.BuyerID,
		&hist.BuyerName,
		&hist.AvgPaymentDays,
		&hist.OnTimeRate,
		&hist.TotalInvoices,
		&hist.RiskScore,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agents.BuyerHistory{}, ErrNotFound
		}
		return agents.BuyerHistory{}, fmt.Errorf("buyer: payment history: %w", err)
	}
	return hist, nil
}
