package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the invoice does not exist for the merchant.
	ErrNotFound = errors.New("invoice: not found")
)

// Repository defines the invoice data access the engine needs: resolving a
// case's amount and date, and flagging approved invoices.
type Repository interface {
	GetForMerchant(ctx context.Context, merchantID, invoiceID string) (Invoice, error)
	MarkFinanceable(ctx context.Context, merchantID, invoiceID string, rate float64) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed invoice repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetForMerchant resolves an invoice scoped to its owning merchant. A wrong
// merchant id behaves like a missing invoice.
func (r *PGRepository) GetForMerchant(ctx context.Context, merchantID, invoiceID string) (Invoice, error) {
	const query = `
		SELECT id, merchant_id, buyer_id, invoice_number, amount, status, irn, recommended_rate, invoice_date, created_at, updated_at
		FROM invoices
		WHERE id = $1 AND merchant_id = $2
	`

	var inv Invoice
	err := r.pool.QueryRow(ctx, query, invoiceID, merchantID).Scan(
		&inv.ID,
		&inv.MerchantID,
		&inv.BuyerID,
		&inv.InvoiceNumber,
		&inv.Amount,
		&inv.Status,
		&inv.IRN,
		&inv.RecommendedRate,
		&inv.InvoiceDate,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, fmt.Errorf("invoice: get for merchant: %w", err)
	}
	return inv, nil
}

// MarkFinanceable records that a run approved the invoice, along with the
// recommended annual rate.
func (r *PGRepository) MarkFinanceable(ctx context.Context, merchantID, invoiceID string, rate float64) error {
	const query = `
		UPDATE invoices
		SET status = $3, recommended_rate = $4, updated_at = now()
		WHERE id = $1 AND merchant_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, invoiceID, merchantID, StatusFinanceable, rate)
	if err != nil {
		return fmt.Errorf("invoice: mark financeable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
