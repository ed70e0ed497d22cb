package agents

import (
	"context"
	"fmt"
)

// MerchantFinancialsProvider is a read-only lookup of alternative credit data
// for a merchant: cashflow, GST compliance and UPI velocity.
type MerchantFinancialsProvider interface {
	Financials(ctx context.Context, merchantID string) (MerchantFinancials, error)
}

// MerchantFinancials bundles the data sources the credit model consumes.
type MerchantFinancials struct {
	MonthlyInflow    float64
	MonthlyOutflow   float64
	AvgBalance       float64
	ConsistencyScore float64

	GSTFiledOnTime       bool
	GSTConsecutiveMonths int

	UPIMonthlyTxns int
	UPIAvgValue    float64
	UPITrend       string
}

const approvalScore = 600

// CreditScoringAgent computes an alternative credit score on a 0-1000 scale
// from merchant cashflow, GST filing discipline and UPI activity.
type CreditScoringAgent struct {
	financials MerchantFinancialsProvider
}

func NewCreditScoringAgent(financials MerchantFinancialsProvider) *CreditScoringAgent {
	return &CreditScoringAgent{financials: financials}
}

func (a *CreditScoringAgent) Name() Name { return NameCreditScoring }

func (a *CreditScoringAgent) Run(ctx context.Context, c Case) (AgentResult, error) {
	fin, err := a.financials.Financials(ctx, c.MerchantID)
	if err != nil {
		return AgentResult{}, fmt.Errorf("credit scoring: merchant financials: %w", err)
	}

	score := scoreFinancials(fin)
	tier := scoreTier(score)
	approve := score >= approvalScore

	confidence := 0.60 + 0.35*fin.ConsistencyScore
	if confidence > 0.95 {
		confidence = 0.95
	}

	limit := fin.MonthlyInflow * 0.4
	if fin.AvgBalance*2 < limit {
		limit = fin.AvgBalance * 2
	}

	reasoning := fmt.Sprintf(
		"merchant %s scored %d/1000 (%s): net cashflow %.0f/month at %.0f%% consistency, GST on-time for %d months, %d UPI txns/month (%s)",
		c.MerchantID, score, tier, fin.MonthlyInflow-fin.MonthlyOutflow, fin.ConsistencyScore*100,
		fin.GSTConsecutiveMonths, fin.UPIMonthlyTxns, fin.UPITrend,
	)

	return AgentResult{
		Approve:    approve,
		Confidence: confidence,
		Reasoning:  reasoning,
		CreditScoring: &CreditScoringFacts{
			Score:            score,
			Tier:             tier,
			RecommendedLimit: limit,
		},
	}, nil
}

// scoreFinancials maps the raw data sources onto a 0-1000 score. The blend is
// deterministic: identical inputs always produce the identical score.
func scoreFinancials(fin MerchantFinancials) int {
	score := 450.0

	if fin.MonthlyInflow > 0 {
		margin := (fin.MonthlyInflow - fin.MonthlyOutflow) / fin.MonthlyInflow
		if margin < 0 {
			margin = 0
		}
		if margin > 1 {
			margin = 1
		}
		score += 250 * margin
	}

	consistency := fin.ConsistencyScore
	if consistency < 0 {
		consistency = 0
	}
	if consistency > 1 {
		consistency = 1
	}
	score += 150 * consistency

	switch {
	case fin.GSTFiledOnTime && fin.GSTConsecutiveMonths >= 6:
		score += 100
	case fin.GSTFiledOnTime && fin.GSTConsecutiveMonths >= 3:
		score += 50
	}

	switch fin.UPITrend {
	case "growing":
		score += 50
	case "stable":
		score += 25
	}

	if score < 0 {
		score = 0
	}
	if score > 1000 {
		score = 1000
	}
	return int(score)
}

func scoreTier(score int) string {
	switch {
	case score >= 800:
		return "excellent"
	case score >= 700:
		return "very_good"
	case score >= 600:
		return "good"
	case score >= 450:
		return "medium"
	default:
		return "risky"
	}
}
