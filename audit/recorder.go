package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"credpulse/session"
)

// PGRecorder persists terminal session transitions into audit_events for
// compliance review. It implements orchestrator.Recorder; callers treat it as
// fire-and-forget.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewRecorder creates a PostgreSQL-backed audit recorder.
func NewRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// RecordDecision appends one immutable audit event for the session.
func (r *PGRecorder) RecordDecision(ctx context.Context, snap session.Snapshot) error {
	payload := map[string]any{
		"state": string(snap.State),
	}

	statuses := make(map[string]string, len(snap.Results))
	for _, res := range snap.Results {
		statuses[string(res.Agent)] = string(res.Status)
	}
	payload["agent_statuses"] = statuses

	if snap.Final != nil {
		payload["decision"] = string(snap.Final.Decision)
		payload["confidence"] = snap.Final.Confidence
	}
	if snap.Offer != nil {
		payload["offer_amount"] = snap.Offer.Amount
		payload["offer_rate"] = snap.Offer.Rate
		payload["tenor_days"] = snap.Offer.TenorDays
	}
	if snap.Failure != nil {
		payload["failure"] = snap.Failure.Error()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload: %w", err)
	}

	const query = `
		INSERT INTO audit_events (session_id, event_type, merchant_id, buyer_id, invoice_id, payload)
		VALUES ($1, 'DECISION_RECORDED', $2, $3, $4, $5::jsonb)
	`

	if _, err := r.pool.Exec(ctx, query,
		snap.ID,
		snap.Key.MerchantID,
		snap.Key.BuyerID,
		snap.Key.InvoiceID,
		raw,
	); err != nil {
		return fmt.Errorf("audit: record decision: %w", err)
	}
	return nil
}
