package decision

import (
	"errors"

	"credpulse/agents"
)

var (
	// ErrNotApproved signals pricing was requested for a non-approved decision.
	ErrNotApproved = errors.New("decision: offer requires an approved decision")
	// ErrMissingCreditScore signals the credit-scoring agent did not respond,
	// so no tier can be derived and no offer produced.
	ErrMissingCreditScore = errors.New("decision: credit score unavailable")
)

// Offer is the financing proposal derived from an approved decision. All
// fields are deterministic functions of the decision and agent results.
type Offer struct {
	Amount        float64
	Rate          float64
	TenorDays     int
	Tier          string
	AdvanceRate   float64
	Discount      float64
	ProcessingFee float64
	NetAmount     float64
	Breakdown     RateBreakdown
}

// RateBreakdown itemizes how the annual rate was composed.
type RateBreakdown struct {
	BaseRate        float64
	RiskAdjustment  float64
	TenorAdjustment float64
}

// tierBreakpoint maps a credit-score floor onto pricing terms. Breakpoints
// are checked in descending score order; advance rates are non-increasing and
// risk premiums non-decreasing as scores fall, which keeps pricing monotonic
// in the score tier.
type tierBreakpoint struct {
	MinScore    int
	Tier        string
	AdvanceRate float64
	RiskPremium float64
}

// Pricer derives offer terms from the credit tier and the factoring agent's
// tenor recommendation. Pure: same inputs, same offer.
type Pricer struct {
	baseRate     float64
	feeRate      float64
	defaultTenor int
	tiers        []tierBreakpoint
}

// NewPricer builds a pricer with the default terms: 2.5% annual base rate,
// 1% processing fee, 30-day default tenor and four score tiers.
func NewPricer() *Pricer {
	return &Pricer{
		baseRate:     2.5,
		feeRate:      0.01,
		defaultTenor: agents.DefaultTenorDays,
		tiers: []tierBreakpoint{
			{MinScore: 800, Tier: "excellent", AdvanceRate: 0.90, RiskPremium: 0.0},
			{MinScore: 700, Tier: "good", AdvanceRate: 0.85, RiskPremium: 0.5},
			{MinScore: 600, Tier: "fair", AdvanceRate: 0.80, RiskPremium: 1.0},
			{MinScore: 0, Tier: "watch", AdvanceRate: 0.70, RiskPremium: 1.5},
		},
	}
}

// Price derives the offer for an approved case. It refuses when the decision
// is not APPROVED or when the credit-scoring agent produced no score; the
// orchestrator then reports a degraded session without an offer.
func (p *Pricer) Price(c agents.Case, fin Final, results []agents.AgentResult) (Offer, error) {
	if fin.Decision != OutcomeApproved {
		return Offer{}, ErrNotApproved
	}

	var credit *agents.CreditScoringFacts
	var factoring *agents.FactoringFacts
	for _, res := range results {
		if !res.OK() {
			continue
		}
		switch res.Agent {
		case agents.NameCreditScoring:
			credit = res.CreditScoring
		case agents.NameFactoring:
			factoring = res.Factoring
		}
	}
	if credit == nil {
		return Offer{}, ErrMissingCreditScore
	}

	tier := p.tierFor(credit.Score)

	tenor := p.defaultTenor
	if factoring != nil && factoring.TenorDays > 0 {
		tenor = factoring.TenorDays
	}

	amount := c.InvoiceAmount * tier.AdvanceRate
	if amount > c.InvoiceAmount {
		amount = c.InvoiceAmount
	}

	tenorAdjustment := float64(tenor) / 30.0 * 0.5
	rate := p.baseRate + tier.RiskPremium + tenorAdjustment

	dailyRate := rate / 365.0 / 100.0
	discount := amount * dailyRate * float64(tenor)
	fee := amount * p.feeRate

	return Offer{
		Amount:        amount,
		Rate:          rate,
		TenorDays:     tenor,
		Tier:          tier.Tier,
		AdvanceRate:   tier.AdvanceRate,
		Discount:      discount,
		ProcessingFee: fee,
		NetAmount:     amount - discount - fee,
		Breakdown: RateBreakdown{
			BaseRate:        p.baseRate,
			RiskAdjustment:  tier.RiskPremium,
			TenorAdjustment: tenorAdjustment,
		},
	}, nil
}

func (p *Pricer) tierFor(score int) tierBreakpoint {
	for _, tier := range p.tiers {
		if score >= tier.MinScore {
			return tier
		}
	}
	return p.tiers[len(p.tiers)-1]
}
