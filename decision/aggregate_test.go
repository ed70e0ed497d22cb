package decision

import (
	"math"
	"strings"
	"testing"

	"credpulse/agents"
)

func okResult(name agents.Name, approve bool, confidence float64, reasoning string) agents.AgentResult {
	return agents.AgentResult{
		Agent:      name,
		Status:     agents.StatusOK,
		Approve:    approve,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}

func failedResult(name agents.Name, status agents.Status) agents.AgentResult {
	return agents.AgentResult{Agent: name, Status: status, Reasoning: "deadline exceeded"}
}

func TestAggregate_UnanimousApproval(t *testing.T) {
	agg := NewAggregator()

	fin := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 1.0, "verified"),
		okResult(agents.NameCreditScoring, true, 1.0, "excellent score"),
		okResult(agents.NameFactoring, true, 1.0, "po matched"),
	})

	if fin.Decision != OutcomeApproved {
		t.Fatalf("expected APPROVED, got %s", fin.Decision)
	}
	if fin.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %f", fin.Confidence)
	}
	if len(fin.ContributingAgents) != 3 {
		t.Fatalf("expected 3 contributing agents, got %v", fin.ContributingAgents)
	}
}

func TestAggregate_TimeoutLowersConfidence(t *testing.T) {
	agg := NewAggregator()

	full := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 0.9, "ok"),
		okResult(agents.NameCreditScoring, true, 0.9, "ok"),
		okResult(agents.NameFactoring, true, 0.9, "ok"),
	})
	partial := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 0.9, "ok"),
		okResult(agents.NameCreditScoring, true, 0.9, "ok"),
		failedResult(agents.NameFactoring, agents.StatusTimeout),
	})

	if partial.Decision != OutcomeApproved {
		t.Fatalf("one timeout with two approvals should still approve, got %s", partial.Decision)
	}
	if partial.Confidence >= full.Confidence {
		t.Fatalf("partial confidence %f must be strictly below full %f", partial.Confidence, full.Confidence)
	}
	if len(partial.ContributingAgents) != 2 {
		t.Fatalf("failed agent must not contribute: %v", partial.ContributingAgents)
	}
}

func TestAggregate_QuorumUnmet(t *testing.T) {
	agg := NewAggregator()

	fin := agg.Aggregate([]agents.AgentResult{
		failedResult(agents.NameSupplyChain, agents.StatusError),
		failedResult(agents.NameCreditScoring, agents.StatusTimeout),
		okResult(agents.NameFactoring, true, 0.99, "po matched"),
	})

	if fin.Decision != OutcomeManualReview {
		t.Fatalf("expected MANUAL_REVIEW below quorum, got %s", fin.Decision)
	}
	if fin.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %f", fin.Confidence)
	}
}

func TestAggregate_MissingAgentsDoNotCountAgainstThreshold(t *testing.T) {
	agg := NewAggregator()

	// Two responders both approving pass the threshold even though only two
	// of three agents responded.
	fin := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 0.8, "ok"),
		failedResult(agents.NameCreditScoring, agents.StatusTimeout),
		okResult(agents.NameFactoring, true, 0.8, "ok"),
	})
	if fin.Decision != OutcomeApproved {
		t.Fatalf("expected APPROVED, got %s", fin.Decision)
	}
}

func TestAggregate_MinorityApprovalRejected(t *testing.T) {
	agg := NewAggregator()

	fin := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 0.9, "ok"),
		okResult(agents.NameCreditScoring, false, 0.9, "weak score"),
		okResult(agents.NameFactoring, false, 0.9, "no po"),
	})
	if fin.Decision != OutcomeRejected {
		t.Fatalf("expected REJECTED for 1-of-3 approval, got %s", fin.Decision)
	}
}

func TestAggregate_ReasoningIsCanonicallyOrdered(t *testing.T) {
	agg := NewAggregator()

	// Results arrive out of order; composition must not care.
	fin := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameFactoring, true, 0.9, "po matched"),
		failedResult(agents.NameCreditScoring, agents.StatusTimeout),
		okResult(agents.NameSupplyChain, true, 0.9, "verified"),
	})

	scIdx := strings.Index(fin.Reasoning, string(agents.NameSupplyChain))
	csIdx := strings.Index(fin.Reasoning, string(agents.NameCreditScoring))
	fIdx := strings.Index(fin.Reasoning, string(agents.NameFactoring))
	if scIdx < 0 || csIdx < 0 || fIdx < 0 {
		t.Fatalf("every agent must appear in reasoning: %q", fin.Reasoning)
	}
	if !(scIdx < csIdx && csIdx < fIdx) {
		t.Fatalf("reasoning not in canonical order: %q", fin.Reasoning)
	}
	if !strings.Contains(fin.Reasoning, "no opinion (TIMEOUT)") {
		t.Fatalf("failed agent must be listed with its status: %q", fin.Reasoning)
	}
}

func TestAggregate_WeightsShiftTheVote(t *testing.T) {
	agg := NewAggregator().WithWeight(agents.NameCreditScoring, 3)

	fin := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 0.9, "ok"),
		okResult(agents.NameCreditScoring, false, 0.9, "weak"),
		okResult(agents.NameFactoring, true, 0.9, "ok"),
	})
	// approve weight 2 vs threshold 0.5*5; the heavy dissenter wins.
	if fin.Decision != OutcomeRejected {
		t.Fatalf("expected REJECTED under weighting, got %s", fin.Decision)
	}
}

func TestAggregate_ConfidencePenaltyProportional(t *testing.T) {
	agg := NewAggregator()

	partial := agg.Aggregate([]agents.AgentResult{
		okResult(agents.NameSupplyChain, true, 0.9, "ok"),
		okResult(agents.NameCreditScoring, true, 0.9, "ok"),
		failedResult(agents.NameFactoring, agents.StatusTimeout),
	})

	want := 0.9 * 2.0 / 3.0
	if math.Abs(partial.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, partial.Confidence)
	}
}
