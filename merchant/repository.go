package merchant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"credpulse/agents"
)

var (
	// ErrNotFound signals an unknown merchant or one without financial data.
	ErrNotFound = errors.New("merchant: not found")
)

// PGRepository reads the alternative credit data sources for a merchant. It
// implements agents.MerchantFinancialsProvider.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed merchant repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Financials returns the merchant's cashflow, GST and UPI snapshot.
func (r *PGRepository) Financials(ctx context.Context, merchantID string) (agents.MerchantFinancials, error) {
	const query = `
		SELECT monthly_inflow, monthly_outflow, avg_balance, consistency_score,
		       gst_filed_on_time, gst_consecutive_months,
		       upi_monthly_txns, upi_avg_value, upi_trend
		FROM merchant_financials
		WHERE merchant_id = $1
	`

	var fin agents.MerchantFinancials
	err := r.pool.QueryRow(ctx, query, merchantID).Scan(
		&fin.MonthlyInflow,
		&fin.MonthlyOutflow,
		&fin.AvgBalance,
		&fin.ConsistencyScore,
		&fin.GSTFiledOnTime,
		&fin.GSTConsecutiveMonths,
		&fin.UPIMonthlyTxns,
		&fin.UPIAvgValue,
		&fin.UPITrend,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agents.MerchantFinancials{}, ErrNotFound
		}
		return agents.MerchantFinancials{}, fmt.Errorf("merchant: financials: %w", err)
	}
	return fin, nil
}
