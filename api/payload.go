package api

import (
	"time"

	"credpulse/agents"
	"credpulse/session"
)

// AnalyzeRequest is the analysis submission body.
type AnalyzeRequest struct {
	InvoiceID  string `json:"invoice_id"`
	BuyerID    string `json:"buyer_id"`
	MerchantID string `json:"merchant_id"`
}

// SessionResponse is the terminal (or in-flight) session payload the client
// renders.
type SessionResponse struct {
	SessionID     string               `json:"session_id"`
	State         string               `json:"state"`
	FinalDecision *FinalDecisionBody   `json:"final_decision,omitempty"`
	AgentResults  map[string]AgentBody `json:"agent_results,omitempty"`
	Offer         *OfferBody           `json:"offer,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// FinalDecisionBody mirrors final_decision{decision, confidence, reasoning}.
type FinalDecisionBody struct {
	Decision           string   `json:"decision"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	ContributingAgents []string `json:"contributing_agents"`
}

// AgentBody is one agent's rendered result.
type AgentBody struct {
	Status     string  `json:"status"`
	Decision   string  `json:"decision,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning"`
	LatencyMS  int64   `json:"latency_ms"`

	RecommendedRate *float64 `json:"recommended_rate,omitempty"`
	RiskLevel       string   `json:"risk_level,omitempty"`
	Score           *int     `json:"score,omitempty"`
	Tier            string   `json:"tier,omitempty"`
	TenorDays       *int     `json:"tenor_days,omitempty"`
}

// OfferBody carries the financing terms plus the fee breakdown.
type OfferBody struct {
	OfferAmount     float64 `json:"offer_amount"`
	Rate            float64 `json:"rate"`
	TenorDays       int     `json:"tenor_days"`
	Tier            string  `json:"tier"`
	AdvanceRate     float64 `json:"advance_rate"`
	Discount        float64 `json:"discount"`
	ProcessingFee   float64 `json:"processing_fee"`
	NetAmount       float64 `json:"net_amount"`
	BaseRate        float64 `json:"base_rate"`
	RiskAdjustment  float64 `json:"risk_adjustment"`
	TenorAdjustment float64 `json:"tenor_adjustment"`
}

func sessionResponse(snap session.Snapshot) SessionResponse {
	resp := SessionResponse{
		SessionID: snap.ID,
		State:     string(snap.State),
	}
	if snap.Failure != nil {
		resp.Error = snap.Failure.Error()
	}
	if snap.Final != nil {
		contributing := make([]string, 0, len(snap.Final.ContributingAgents))
		for _, name := range snap.Final.ContributingAgents {
			contributing = append(contributing, string(name))
		}
		resp.FinalDecision = &FinalDecisionBody{
			Decision:           string(snap.Final.Decision),
			Confidence:         snap.Final.Confidence,
			Reasoning:          snap.Final.Reasoning,
			ContributingAgents: contributing,
		}
	}
	if len(snap.Results) > 0 {
		resp.AgentResults = make(map[string]AgentBody, len(snap.Results))
		for _, res := range snap.Results {
			resp.AgentResults[string(res.Agent)] = agentBody(res)
		}
	}
	if snap.Offer != nil {
		resp.Offer = &OfferBody{
			OfferAmount:     snap.Offer.Amount,
			Rate:            snap.Offer.Rate,
			TenorDays:       snap.Offer.TenorDays,
			Tier:            snap.Offer.Tier,
			AdvanceRate:     snap.Offer.AdvanceRate,
			Discount:        snap.Offer.Discount,
			ProcessingFee:   snap.Offer.ProcessingFee,
			NetAmount:       snap.Offer.NetAmount,
			BaseRate:        snap.Offer.Breakdown.BaseRate,
			RiskAdjustment:  snap.Offer.Breakdown.RiskAdjustment,
			TenorAdjustment: snap.Offer.Breakdown.TenorAdjustment,
		}
	}
	return resp
}

func agentBody(res agents.AgentResult) AgentBody {
	body := AgentBody{
		Status:    string(res.Status),
		Reasoning: res.Reasoning,
		LatencyMS: res.Latency.Milliseconds(),
	}
	if res.OK() {
		body.Confidence = res.Confidence
		if res.Approve {
			body.Decision = "YES"
		} else {
			body.Decision = "NO"
		}
	}
	if res.SupplyChain != nil {
		rate := res.SupplyChain.RecommendedRate
		body.RecommendedRate = &rate
		body.RiskLevel = res.SupplyChain.RiskLevel
	}
	if res.CreditScoring != nil {
		score := res.CreditScoring.Score
		body.Score = &score
		body.Tier = res.CreditScoring.Tier
	}
	if res.Factoring != nil {
		tenor := res.Factoring.TenorDays
		body.TenorDays = &tenor
	}
	return body
}

// pollResponse is the 202 body while a session is still running.
type pollResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	PollAfter int64  `json:"poll_after_ms"`
}

func pendingResponse(sess *session.Session, after time.Duration) pollResponse {
	return pollResponse{
		SessionID: sess.ID,
		State:     string(sess.State()),
		PollAfter: after.Milliseconds(),
	}
}
