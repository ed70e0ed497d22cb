package agents

import (
	"context"
	"fmt"
)

// BuyerHistoryProvider is a read-only lookup of a buyer's payment behavior.
type BuyerHistoryProvider interface {
	PaymentHistory(ctx context.Context, buyerID string) (BuyerHistory, error)
}

// InvoiceVerifier checks an invoice against the e-invoice registry (IRP).
type InvoiceVerifier interface {
	Verify(ctx context.Context, invoiceID string) (Verification, error)
}

// Verification is the registry's answer for one invoice.
type Verification struct {
	IRN        string
	Verified   bool
	BuyerGSTIN string
}

const (
	minOnTimeRate  = 0.70
	minBuyerScore  = 550
	lowRiskScore   = 750
	mediumRiskCut  = 600
	minRateAnnual  = 2.0
	maxRateAnnual  = 5.0
	deepHistoryMin = 20
)

// SupplyChainAgent scores the buyer-supplier relationship: is this invoice
// financeable given the buyer's payment record and registry verification?
type SupplyChainAgent struct {
	history  BuyerHistoryProvider
	verifier InvoiceVerifier
}

func NewSupplyChainAgent(history BuyerHistoryProvider, verifier InvoiceVerifier) *SupplyChainAgent {
	return &SupplyChainAgent{history: history, verifier: verifier}
}

func (a *SupplyChainAgent) Name() Name { return NameSupplyChain }

func (a *SupplyChainAgent) Run(ctx context.Context, c Case) (AgentResult, error) {
	hist := c.History
	if hist == nil {
		h, err := a.history.PaymentHistory(ctx, c.BuyerID)
		if err != nil {
			return AgentResult{}, fmt.Errorf("supply chain: buyer history: %w", err)
		}
		hist = &h
	}

	ver, err := a.verifier.Verify(ctx, c.InvoiceID)
	if err != nil {
		return AgentResult{}, fmt.Errorf("supply chain: verify invoice: %w", err)
	}

	approve := ver.Verified && hist.OnTimeRate >= minOnTimeRate && hist.RiskScore >= minBuyerScore

	// Riskier buyers price toward the top of the allowed annual band.
	rate := minRateAnnual + (maxRateAnnual-minRateAnnual)*(1.0-float64(hist.RiskScore)/1000.0)
	if rate < minRateAnnual {
		rate = minRateAnnual
	}
	if rate > maxRateAnnual {
		rate = maxRateAnnual
	}

	riskLevel := "high"
	switch {
	case hist.RiskScore >= lowRiskScore:
		riskLevel = "low"
	case hist.RiskScore >= mediumRiskCut:
		riskLevel = "medium"
	}

	confidence := 0.55 + 0.35*hist.OnTimeRate
	if hist.TotalInvoices >= deepHistoryMin {
		confidence += 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	var reasoning string
	if approve {
		reasoning = fmt.Sprintf(
			"invoice %s verified (IRN %s); buyer pays on time %.0f%% of cycles over %d invoices, risk score %d (%s risk); recommending %.2f%% annual",
			c.InvoiceID, ver.IRN, hist.OnTimeRate*100, hist.TotalInvoices, hist.RiskScore, riskLevel, rate,
		)
	} else {
		reasoning = fmt.Sprintf(
			"invoice %s not financeable: verified=%t, on-time rate %.0f%%, buyer risk score %d (%s risk)",
			c.InvoiceID, ver.Verified, hist.OnTimeRate*100, hist.RiskScore, riskLevel,
		)
	}

	return AgentResult{
		Approve:    approve,
		Confidence: confidence,
		Reasoning:  reasoning,
		SupplyChain: &SupplyChainFacts{
			RecommendedRate: rate,
			RiskLevel:       riskLevel,
			Verified:        ver.Verified,
			IRN:             ver.IRN,
		},
	}, nil
}
