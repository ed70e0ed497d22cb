package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"credpulse/agents"
	"credpulse/decision"
	"credpulse/session"
)

type fakeAgent struct {
	name  agents.Name
	res   agents.AgentResult
	err   error
	delay time.Duration
	runs  atomic.Int64
}

func (f *fakeAgent) Name() agents.Name { return f.name }

func (f *fakeAgent) Run(ctx context.Context, c agents.Case) (agents.AgentResult, error) {
	f.runs.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return agents.AgentResult{}, ctx.Err()
		}
	}
	return f.res, f.err
}

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []session.Snapshot
	done  chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{done: make(chan struct{}, 8)}
}

func (f *fakeRecorder) RecordDecision(ctx context.Context, snap session.Snapshot) error {
	f.mu.Lock()
	f.snaps = append(f.snaps, snap)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeRecorder) wait(t *testing.T) session.Snapshot {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder was not notified")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[len(f.snaps)-1]
}

type fakeFlagger struct {
	mu      sync.Mutex
	calls   int
	invoice string
	rate    float64
	done    chan struct{}
}

func newFakeFlagger() *fakeFlagger {
	return &fakeFlagger{done: make(chan struct{}, 8)}
}

func (f *fakeFlagger) MarkFinanceable(ctx context.Context, merchantID, invoiceID string, rate float64) error {
	f.mu.Lock()
	f.calls++
	f.invoice = invoiceID
	f.rate = rate
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func approvingAgents() []agents.Agent {
	return []agents.Agent{
		&fakeAgent{name: agents.NameSupplyChain, res: agents.AgentResult{
			Approve: true, Confidence: 0.9, Reasoning: "verified",
			SupplyChain: &agents.SupplyChainFacts{RecommendedRate: 2.8, RiskLevel: "low", Verified: true},
		}},
		&fakeAgent{name: agents.NameCreditScoring, res: agents.AgentResult{
			Approve: true, Confidence: 0.85, Reasoning: "strong score",
			CreditScoring: &agents.CreditScoringFacts{Score: 820, Tier: "excellent", RecommendedLimit: 100000},
		}},
		&fakeAgent{name: agents.NameFactoring, res: agents.AgentResult{
			Approve: true, Confidence: 0.9, Reasoning: "po matched",
			Factoring: &agents.FactoringFacts{TenorDays: 45, POMatched: true, DeliveryConfirmed: true},
		}},
	}
}

func testCase() agents.Case {
	return agents.Case{InvoiceID: "inv-1", BuyerID: "b1", MerchantID: "m1", InvoiceAmount: 100000}
}

func newOrchestrator(agentSet []agents.Agent) *Orchestrator {
	return New(session.NewStore(), agents.NewRunner(time.Second), agentSet, zerolog.Nop()).
		WithOverallTimeout(2 * time.Second)
}

func awaitTerminal(t *testing.T, sess *session.Session) session.Snapshot {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session never reached a terminal state")
	}
	return sess.Snapshot()
}

func TestOrchestrator_FullApproval(t *testing.T) {
	orch := newOrchestrator(approvingAgents())

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := awaitTerminal(t, sess)
	if snap.State != session.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", snap.State)
	}
	if snap.Final == nil || snap.Final.Decision != decision.OutcomeApproved {
		t.Fatalf("expected APPROVED, got %+v", snap.Final)
	}
	if len(snap.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(snap.Results))
	}
	if snap.Offer == nil {
		t.Fatal("approved decision must carry an offer")
	}
	if snap.Offer.TenorDays != 45 {
		t.Fatalf("expected factoring tenor in offer, got %d", snap.Offer.TenorDays)
	}
	if snap.CompletedAt == nil {
		t.Fatal("terminal snapshot must carry a completion time")
	}
}

func TestOrchestrator_SlowAgentDegrades(t *testing.T) {
	agentSet := approvingAgents()
	agentSet[2].(*fakeAgent).delay = 5 * time.Second

	orch := New(session.NewStore(), agents.NewRunner(50*time.Millisecond), agentSet, zerolog.Nop()).
		WithOverallTimeout(2 * time.Second)

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := awaitTerminal(t, sess)
	if snap.State != session.StateDegraded {
		t.Fatalf("expected DEGRADED with a timed-out agent, got %s", snap.State)
	}
	// Quorum of two approvals still carries the decision.
	if snap.Final.Decision != decision.OutcomeApproved {
		t.Fatalf("expected APPROVED despite timeout, got %s", snap.Final.Decision)
	}
	if snap.Offer == nil {
		t.Fatal("expected an offer priced at the default tenor")
	}
	if snap.Offer.TenorDays != agents.DefaultTenorDays {
		t.Fatalf("expected default tenor without factoring facts, got %d", snap.Offer.TenorDays)
	}
}

func TestOrchestrator_SingleFlight(t *testing.T) {
	agentSet := approvingAgents()
	orch := newOrchestrator(agentSet)

	const callers = 25
	var wg sync.WaitGroup
	sessions := make([]*session.Session, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := orch.Analyze(context.Background(), testCase())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			sessions[i] = sess
		}()
	}
	wg.Wait()

	for _, sess := range sessions[1:] {
		if sess != sessions[0] {
			t.Fatal("concurrent callers must share one session")
		}
	}
	awaitTerminal(t, sessions[0])

	for _, ag := range agentSet {
		if runs := ag.(*fakeAgent).runs.Load(); runs != 1 {
			t.Fatalf("agent %s ran %d times, want 1", ag.Name(), runs)
		}
	}
}

func TestOrchestrator_RepeatAfterCompletionServesCache(t *testing.T) {
	agentSet := approvingAgents()
	orch := newOrchestrator(agentSet)

	first, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	awaitTerminal(t, first)

	second, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Fatal("a completed session must be served, not re-run")
	}
	if runs := agentSet[0].(*fakeAgent).runs.Load(); runs != 1 {
		t.Fatalf("repeat request re-ran agents: %d runs", runs)
	}
}

func TestOrchestrator_ValidatesCase(t *testing.T) {
	orch := newOrchestrator(approvingAgents())

	cases := []agents.Case{
		{BuyerID: "b1", MerchantID: "m1", InvoiceAmount: 1},
		{InvoiceID: "inv-1", MerchantID: "m1", InvoiceAmount: 1},
		{InvoiceID: "inv-1", BuyerID: "b1", InvoiceAmount: 1},
		{InvoiceID: "inv-1", BuyerID: "b1", MerchantID: "m1", InvoiceAmount: 0},
		{InvoiceID: "inv-1", BuyerID: "b1", MerchantID: "m1", InvoiceAmount: -5},
	}
	for _, c := range cases {
		if _, err := orch.Analyze(context.Background(), c); !errors.Is(err, ErrInvalidCase) {
			t.Errorf("case %+v: expected ErrInvalidCase, got %v", c, err)
		}
	}
}

func TestOrchestrator_NoAgentsConfigured(t *testing.T) {
	orch := newOrchestrator(nil)

	if _, err := orch.Analyze(context.Background(), testCase()); !errors.Is(err, ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestOrchestrator_NotifiesRecorderAndFlagger(t *testing.T) {
	recorder := newFakeRecorder()
	flagger := newFakeFlagger()
	orch := newOrchestrator(approvingAgents()).
		WithRecorder(recorder).
		WithInvoiceFlagger(flagger)

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := awaitTerminal(t, sess)

	recorded := recorder.wait(t)
	if recorded.ID != snap.ID || !recorded.State.Terminal() {
		t.Fatalf("recorder got a non-terminal snapshot: %+v", recorded)
	}

	select {
	case <-flagger.done:
	case <-time.After(2 * time.Second):
		t.Fatal("flagger was not notified")
	}
	flagger.mu.Lock()
	defer flagger.mu.Unlock()
	if flagger.invoice != "inv-1" {
		t.Fatalf("flagged wrong invoice %q", flagger.invoice)
	}
	if flagger.rate != snap.Offer.Rate {
		t.Fatalf("flagged rate %f, want %f", flagger.rate, snap.Offer.Rate)
	}
}

func TestOrchestrator_RejectionSkipsOfferAndFlag(t *testing.T) {
	agentSet := approvingAgents()
	for _, ag := range agentSet {
		fa := ag.(*fakeAgent)
		fa.res.Approve = false
		fa.res.Reasoning = "declined"
	}
	flagger := newFakeFlagger()
	recorder := newFakeRecorder()
	orch := newOrchestrator(agentSet).WithRecorder(recorder).WithInvoiceFlagger(flagger)

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := awaitTerminal(t, sess)

	if snap.State != session.StateCompleted {
		t.Fatalf("a clean rejection is COMPLETED, got %s", snap.State)
	}
	if snap.Final.Decision != decision.OutcomeRejected {
		t.Fatalf("expected REJECTED, got %s", snap.Final.Decision)
	}
	if snap.Offer != nil {
		t.Fatal("rejected decision must carry no offer")
	}

	recorder.wait(t)
	flagger.mu.Lock()
	defer flagger.mu.Unlock()
	if flagger.calls != 0 {
		t.Fatalf("flagger must not run for rejections, got %d calls", flagger.calls)
	}
}

func TestOrchestrator_UnpriceableApprovalDegrades(t *testing.T) {
	// Supply chain and factoring approve, credit scoring faults: quorum holds
	// and the vote passes, but no score means no offer.
	agentSet := approvingAgents()
	credit := agentSet[1].(*fakeAgent)
	credit.res = agents.AgentResult{}
	credit.err = errors.New("bank feed down")

	orch := newOrchestrator(agentSet)

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := awaitTerminal(t, sess)

	if snap.State != session.StateDegraded {
		t.Fatalf("expected DEGRADED, got %s", snap.State)
	}
	if snap.Final.Decision != decision.OutcomeApproved {
		t.Fatalf("expected APPROVED, got %s", snap.Final.Decision)
	}
	if snap.Offer != nil {
		t.Fatal("expected no offer without a credit score")
	}
}

func TestOrchestrator_QuorumUnmetIsManualReview(t *testing.T) {
	agentSet := approvingAgents()
	agentSet[0].(*fakeAgent).err = errors.New("registry down")
	agentSet[1].(*fakeAgent).err = errors.New("bank feed down")

	orch := newOrchestrator(agentSet)

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := awaitTerminal(t, sess)

	if snap.State != session.StateDegraded {
		t.Fatalf("agent faults degrade the session, got %s", snap.State)
	}
	if snap.Final.Decision != decision.OutcomeManualReview {
		t.Fatalf("expected MANUAL_REVIEW below quorum, got %s", snap.Final.Decision)
	}
}

func TestOrchestrator_RunPanicFailsSession(t *testing.T) {
	recorder := newFakeRecorder()
	// A nil aggregator faults the run itself rather than any one agent.
	orch := newOrchestrator(approvingAgents()).
		WithAggregator(nil).
		WithRecorder(recorder)

	sess, err := orch.Analyze(context.Background(), testCase())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := awaitTerminal(t, sess)

	if snap.State != session.StateFailed {
		t.Fatalf("expected FAILED, got %s", snap.State)
	}
	if snap.Failure == nil {
		t.Fatal("failed session must carry the fault")
	}
	if recorded := recorder.wait(t); recorded.State != session.StateFailed {
		t.Fatalf("recorder must see the failure, got %s", recorded.State)
	}
}
