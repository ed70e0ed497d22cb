package decision

import (
	"fmt"
	"strings"

	"credpulse/agents"
)

// Outcome is the fused verdict over all agent opinions.
type Outcome string

const (
	OutcomeApproved     Outcome = "APPROVED"
	OutcomeRejected     Outcome = "REJECTED"
	OutcomeManualReview Outcome = "MANUAL_REVIEW"
)

// Final is the aggregated decision. Reasoning and ContributingAgents are
// composed in canonical agent order so the output is deterministic regardless
// of which agent finished first.
type Final struct {
	Decision           Outcome
	Confidence         float64
	Reasoning          string
	ContributingAgents []agents.Name
}

// Aggregator fuses per-agent results into one decision. It is a pure function
// of its inputs: no I/O, no clock, no randomness.
type Aggregator struct {
	quorum    int
	threshold float64
	weights   map[agents.Name]float64
}

// NewAggregator builds an aggregator with the default policy: quorum of 2,
// approval at a strict majority of responding weight, equal agent weights.
func NewAggregator() *Aggregator {
	return &Aggregator{
		quorum:    2,
		threshold: 0.5,
		weights:   map[agents.Name]float64{},
	}
}

// WithQuorum overrides the minimum number of OK agents required for a
// non-manual decision.
func (a *Aggregator) WithQuorum(quorum int) *Aggregator {
	a.quorum = quorum
	return a
}

// WithWeight assigns a vote weight to one agent. Unassigned agents weigh 1.
func (a *Aggregator) WithWeight(name agents.Name, weight float64) *Aggregator {
	a.weights[name] = weight
	return a
}

func (a *Aggregator) weightOf(name agents.Name) float64 {
	if w, ok := a.weights[name]; ok {
		return w
	}
	return 1
}

// Aggregate produces the final decision from the possibly partial result set.
// Failed agents never count as votes, and they shrink neither side of the
// threshold: the denominator is the weight of responding agents only, so one
// timeout does not force a rejection.
func (a *Aggregator) Aggregate(results []agents.AgentResult) Final {
	ordered := orderResults(results)

	var (
		okCount       int
		totalWeight   float64
		approveWeight float64
		confWeighted  float64
		contributing  []agents.Name
	)
	for _, res := range ordered {
		if !res.OK() {
			continue
		}
		w := a.weightOf(res.Agent)
		okCount++
		totalWeight += w
		confWeighted += w * res.Confidence
		if res.Approve {
			approveWeight += w
		}
		contributing = append(contributing, res.Agent)
	}

	reasoning := composeReasoning(ordered)

	if okCount < a.quorum {
		return Final{
			Decision:           OutcomeManualReview,
			Confidence:         0,
			Reasoning:          reasoning,
			ContributingAgents: contributing,
		}
	}

	outcome := OutcomeRejected
	if totalWeight > 0 && approveWeight >= a.threshold*totalWeight {
		outcome = OutcomeApproved
	}

	// Fewer responses mean lower certainty even on a unanimous vote.
	confidence := confWeighted / totalWeight
	confidence *= float64(okCount) / float64(len(ordered))

	return Final{
		Decision:           outcome,
		Confidence:         confidence,
		Reasoning:          reasoning,
		ContributingAgents: contributing,
	}
}

// orderResults arranges results in canonical agent order, dropping anything
// that does not correspond to a known agent exactly once.
func orderResults(results []agents.AgentResult) []agents.AgentResult {
	byName := make(map[agents.Name]agents.AgentResult, len(results))
	for _, res := range results {
		if _, seen := byName[res.Agent]; !seen {
			byName[res.Agent] = res
		}
	}

	ordered := make([]agents.AgentResult, 0, len(byName))
	for _, name := range agents.CanonicalOrder() {
		if res, ok := byName[name]; ok {
			ordered = append(ordered, res)
		}
	}
	return ordered
}

func composeReasoning(ordered []agents.AgentResult) string {
	parts := make([]string, 0, len(ordered))
	for _, res := range ordered {
		if res.OK() {
			parts = append(parts, fmt.Sprintf("%s: %s", res.Agent, res.Reasoning))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: no opinion (%s)", res.Agent, res.Status))
	}
	return strings.Join(parts, "; ")
}
