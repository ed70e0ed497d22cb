package agents

import (
	"context"
	"fmt"
)

// TradeDocumentProvider is a read-only lookup matching an invoice against its
// purchase order and delivery confirmation.
type TradeDocumentProvider interface {
	PurchaseOrder(ctx context.Context, invoiceID string) (PurchaseOrder, error)
}

// PurchaseOrder is the trade-document match for one invoice.
type PurchaseOrder struct {
	PONumber          string
	Matched           bool
	DeliveryConfirmed bool
}

// DefaultTenorDays is recommended when no buyer payment cycle is known.
const DefaultTenorDays = 30

// FactoringAgent checks the factoring workflow prerequisites (PO match,
// delivery confirmation) and recommends a tenor aligned with the buyer's
// observed payment cycle.
type FactoringAgent struct {
	docs TradeDocumentProvider
}

func NewFactoringAgent(docs TradeDocumentProvider) *FactoringAgent {
	return &FactoringAgent{docs: docs}
}

func (a *FactoringAgent) Name() Name { return NameFactoring }

func (a *FactoringAgent) Run(ctx context.Context, c Case) (AgentResult, error) {
	po, err := a.docs.PurchaseOrder(ctx, c.InvoiceID)
	if err != nil {
		return AgentResult{}, fmt.Errorf("factoring: purchase order: %w", err)
	}

	approve := po.Matched && po.DeliveryConfirmed

	tenor := DefaultTenorDays
	if c.History != nil && c.History.AvgPaymentDays > 0 {
		tenor = recommendTenor(c.History.AvgPaymentDays)
	}

	confidence := 0.75
	if approve {
		confidence = 0.90
	}

	var reasoning string
	if approve {
		reasoning = fmt.Sprintf(
			"invoice %s matches %s with delivery confirmed; recommending %d-day tenor",
			c.InvoiceID, po.PONumber, tenor,
		)
	} else {
		reasoning = fmt.Sprintf(
			"invoice %s fails factoring prerequisites: po_matched=%t, delivery_confirmed=%t",
			c.InvoiceID, po.Matched, po.DeliveryConfirmed,
		)
	}

	return AgentResult{
		Approve:    approve,
		Confidence: confidence,
		Reasoning:  reasoning,
		Factoring: &FactoringFacts{
			TenorDays:         tenor,
			PONumber:          po.PONumber,
			POMatched:         po.Matched,
			DeliveryConfirmed: po.DeliveryConfirmed,
		},
	}, nil
}

// recommendTenor rounds the buyer's average payment cycle up to the nearest
// offered tenor bucket.
func recommendTenor(avgPaymentDays int) int {
	for _, bucket := range []int{30, 45, 60, 90} {
		if avgPaymentDays <= bucket {
			return bucket
		}
	}
	return 90
}
