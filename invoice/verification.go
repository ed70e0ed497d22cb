package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"credpulse/agents"
)

// RegistryVerifier answers IRP verification lookups from the stored IRN.
// An invoice without a registered IRN verifies negative, not as an error.
type RegistryVerifier struct {
	pool *pgxpool.Pool
}

func NewRegistryVerifier(pool *pgxpool.Pool) *RegistryVerifier {
	return &RegistryVerifier{pool: pool}
}

// Verify implements agents.InvoiceVerifier.
func (v *RegistryVerifier) Verify(ctx context.Context, invoiceID string) (agents.Verification, error) {
	const query = `
		SELECT irn, buyer_gstin
		FROM invoice_verifications
		WHERE invoice_id = $1
	`

	var (
		irn   string
		gstin *string
	)
	err := v.pool.QueryRow(ctx, query, invoiceID).Scan(&irn, &gstin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agents.Verification{Verified: false}, nil
		}
		return agents.Verification{}, fmt.Errorf("invoice: verify: %w", err)
	}

	ver := agents.Verification{IRN: irn, Verified: irn != ""}
	if gstin != nil {
		ver.BuyerGSTIN = *gstin
	}
	return ver, nil
}

// PGTradeDocuments answers purchase-order matches from the trade documents
// table. A missing row means the invoice has no matched PO.
type PGTradeDocuments struct {
	pool *pgxpool.Pool
}

func NewTradeDocuments(pool *pgxpool.Pool) *PGTradeDocuments {
	return &PGTradeDocuments{pool: pool}
}

// PurchaseOrder implements agents.TradeDocumentProvider.
func (t *PGTradeDocuments) PurchaseOrder(ctx context.Context, invoiceID string) (agents.PurchaseOrder, error) {
	const query = `
		SELECT po_number, matched, delivery_confirmed
		FROM purchase_orders
		WHERE invoice_id = $1
	`

	var po agents.PurchaseOrder
	err := t.pool.QueryRow(ctx, query, invoiceID).Scan(&po.PONumber, &po.Matched, &po.DeliveryConfirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agents.PurchaseOrder{}, nil
		}
		return agents.PurchaseOrder{}, fmt.Errorf("invoice: purchase order: %w", err)
	}
	return po, nil
}
