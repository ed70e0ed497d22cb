package agents

import "time"

// Name identifies one of the configured scoring strategies.
type Name string

const (
	NameSupplyChain   Name = "supply_chain"
	NameCreditScoring Name = "credit_scoring"
	NameFactoring     Name = "factoring"
)

// CanonicalOrder returns the fixed agent priority order used whenever results
// are rendered or concatenated, so output is deterministic regardless of
// completion order.
func CanonicalOrder() []Name {
	return []Name{NameSupplyChain, NameCreditScoring, NameFactoring}
}

// Status tags how an agent invocation ended.
type Status string

const (
	StatusOK      Status = "OK"
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
)

// AgentResult is the output of a single agent invocation. When Status is not
// OK the vote, confidence and per-agent facts are absent; a failed agent is
// never treated as a positive vote.
type AgentResult struct {
	Agent      Name
	Status     Status
	Approve    bool
	Confidence float64
	Reasoning  string
	Latency    time.Duration

	// Exactly one of the following is set on an OK result, matching Agent.
	SupplyChain   *SupplyChainFacts
	CreditScoring *CreditScoringFacts
	Factoring     *FactoringFacts
}

// OK reports whether the agent produced a usable opinion.
func (r AgentResult) OK() bool {
	return r.Status == StatusOK
}

// SupplyChainFacts carries the supply-chain agent's typed findings.
type SupplyChainFacts struct {
	RecommendedRate float64
	RiskLevel       string
	Verified        bool
	IRN             string
}

// CreditScoringFacts carries the credit-scoring agent's typed findings.
type CreditScoringFacts struct {
	Score            int
	Tier             string
	RecommendedLimit float64
}

// FactoringFacts carries the factoring agent's typed findings.
type FactoringFacts struct {
	TenorDays         int
	PONumber          string
	POMatched         bool
	DeliveryConfirmed bool
}
