package test

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"credpulse/agents"
	"credpulse/decision"
	"credpulse/orchestrator"
	"credpulse/session"
)

var (
	flDuration    = flag.Duration("duration", 5*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent callers")
	flKeys        = flag.Int("keys", 16, "number of distinct case keys")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
)

// jitterAgent answers after a random delay. A slice of it stands in for the
// real agent set so the stress run exercises pure orchestration under load,
// including the occasional per-agent timeout.
type jitterAgent struct {
	name     agents.Name
	maxDelay time.Duration
	approve  bool

	mu   sync.Mutex
	rng  *rand.Rand
	runs map[string]int
}

func newJitterAgent(name agents.Name, maxDelay time.Duration, seed int64) *jitterAgent {
	return &jitterAgent{
		name:     name,
		maxDelay: maxDelay,
		approve:  true,
		rng:      rand.New(rand.NewSource(seed)),
		runs:     make(map[string]int),
	}
}

func (j *jitterAgent) Name() agents.Name { return j.name }

func (j *jitterAgent) Run(ctx context.Context, c agents.Case) (agents.AgentResult, error) {
	j.mu.Lock()
	j.runs[c.InvoiceID]++
	delay := time.Duration(j.rng.Int63n(int64(j.maxDelay)))
	j.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return agents.AgentResult{}, ctx.Err()
	}

	res := agents.AgentResult{
		Approve:    j.approve,
		Confidence: 0.9,
		Reasoning:  "stress fixture",
	}
	switch j.name {
	case agents.NameCreditScoring:
		res.CreditScoring = &agents.CreditScoringFacts{Score: 780, Tier: "very_good"}
	case agents.NameFactoring:
		res.Factoring = &agents.FactoringFacts{TenorDays: 30, POMatched: true, DeliveryConfirmed: true}
	case agents.NameSupplyChain:
		res.SupplyChain = &agents.SupplyChainFacts{RecommendedRate: 3.0, RiskLevel: "low", Verified: true}
	}
	return res, nil
}

func (j *jitterAgent) runCount(invoiceID string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs[invoiceID]
}

func stressCase(i int) agents.Case {
	return agents.Case{
		InvoiceID:     fmt.Sprintf("inv-%03d", i),
		BuyerID:       fmt.Sprintf("b-%03d", i%4),
		MerchantID:    "m-stress",
		InvoiceAmount: 100000 + float64(i)*1000,
	}
}

// TestOrchestratorConcurrency hammers a fixed set of case keys from many
// goroutines and then checks the single-flight and terminal-state guarantees:
// every key ran each agent exactly once, every session ended terminal, and
// repeated submissions always landed on the same session.
func TestOrchestratorConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress run in short mode")
	}
	flag.Parse()

	seed := *flSeed
	t.Logf("seed=%d duration=%s concurrency=%d keys=%d", seed, *flDuration, *flConcurrency, *flKeys)

	// Agent timeouts stay rare: delays run up to 40ms against a 30ms budget.
	agentSet := []agents.Agent{
		newJitterAgent(agents.NameSupplyChain, 40*time.Millisecond, seed),
		newJitterAgent(agents.NameCreditScoring, 40*time.Millisecond, seed+1),
		newJitterAgent(agents.NameFactoring, 40*time.Millisecond, seed+2),
	}

	store := session.NewStore()
	orch := orchestrator.New(store, agents.NewRunner(30*time.Millisecond), agentSet, zerolog.Nop()).
		WithOverallTimeout(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+30*time.Second)
	defer cancel()

	deadline := time.Now().Add(*flDuration)
	var (
		sessMu   sync.Mutex
		byKey    = make(map[string]string)
		requests int
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < *flConcurrency; w++ {
		rng := rand.New(rand.NewSource(seed + int64(w)*7919))
		g.Go(func() error {
			for time.Now().Before(deadline) {
				c := stressCase(rng.Intn(*flKeys))
				sess, err := orch.Analyze(gctx, c)
				if err != nil {
					return fmt.Errorf("analyze %s: %w", c.InvoiceID, err)
				}

				sessMu.Lock()
				requests++
				// No infrastructure faults happen here, so a key must never
				// be retried under a fresh session.
				if prev, ok := byKey[c.InvoiceID]; ok && prev != sess.ID {
					sessMu.Unlock()
					return fmt.Errorf("key %s switched session %s -> %s", c.InvoiceID, prev, sess.ID)
				}
				byKey[c.InvoiceID] = sess.ID
				sessMu.Unlock()

				// Some callers block for the decision, others fire and poll later.
				if rng.Intn(3) == 0 {
					select {
					case <-sess.Done():
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("stress run failed: %v", err)
	}
	t.Logf("submitted %d requests over %d keys", requests, len(byKey))

	for i := 0; i < *flKeys; i++ {
		c := stressCase(i)
		sess, ok := store.Get(session.Key{MerchantID: c.MerchantID, BuyerID: c.BuyerID, InvoiceID: c.InvoiceID})
		if !ok {
			continue
		}

		select {
		case <-sess.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("session for %s never became terminal", c.InvoiceID)
		}

		snap := sess.Snapshot()
		if !snap.State.Terminal() {
			t.Fatalf("session %s closed done in state %s", snap.ID, snap.State)
		}
		if snap.State != session.StateFailed {
			if len(snap.Results) != len(agentSet) {
				t.Fatalf("session %s carries %d results, want %d", snap.ID, len(snap.Results), len(agentSet))
			}
			if snap.Final == nil {
				t.Fatalf("session %s is terminal without a decision", snap.ID)
			}
			if snap.Offer != nil && snap.Final.Decision != decision.OutcomeApproved {
				t.Fatalf("session %s carries an offer for decision %s", snap.ID, snap.Final.Decision)
			}
		}

		for _, ag := range agentSet {
			runs := ag.(*jitterAgent).runCount(c.InvoiceID)
			if runs != 1 {
				t.Fatalf("agent %s ran %d times for %s, want exactly 1", ag.Name(), runs, c.InvoiceID)
			}
		}
	}
}
