package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"credpulse/agents"
	"credpulse/decision"
	"credpulse/session"
)

var (
	// ErrInvalidCase rejects a malformed case before any session is created
	// and before any agent runs.
	ErrInvalidCase = errors.New("orchestrator: invalid case")
	// ErrNoAgents signals a misconfigured orchestrator.
	ErrNoAgents = errors.New("orchestrator: no agents configured")
)

// Recorder receives every terminal session transition for compliance logging.
// Recording is fire-and-forget: a recorder fault never fails the decision.
type Recorder interface {
	RecordDecision(ctx context.Context, snap session.Snapshot) error
}

// InvoiceFlagger marks an invoice financeable once a run approves it.
type InvoiceFlagger interface {
	MarkFinanceable(ctx context.Context, merchantID, invoiceID string, rate float64) error
}

// Orchestrator fans a case out to all configured agents concurrently, fuses
// the results into one decision and owns the session lifecycle. It is agent
// count and agent type agnostic.
type Orchestrator struct {
	store      *session.Store
	runner     *agents.Runner
	agentSet   []agents.Agent
	aggregator *decision.Aggregator
	pricer     *decision.Pricer
	recorder   Recorder
	flagger    InvoiceFlagger
	overall    time.Duration
	notifyWait time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// New builds an orchestrator over the given agent set with default policy
// components. The overall deadline defaults to 10s and is enforced
// independently per agent so a slow agent cannot starve the others.
func New(store *session.Store, runner *agents.Runner, agentSet []agents.Agent, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		runner:     runner,
		agentSet:   agentSet,
		aggregator: decision.NewAggregator(),
		pricer:     decision.NewPricer(),
		overall:    10 * time.Second,
		notifyWait: 5 * time.Second,
		now:        time.Now,
		logger:     logger,
	}
}

// WithAggregator overrides the aggregation policy.
func (o *Orchestrator) WithAggregator(a *decision.Aggregator) *Orchestrator {
	o.aggregator = a
	return o
}

// WithPricer overrides the offer pricing policy.
func (o *Orchestrator) WithPricer(p *decision.Pricer) *Orchestrator {
	o.pricer = p
	return o
}

// WithRecorder attaches the compliance sink notified on terminal transitions.
func (o *Orchestrator) WithRecorder(r Recorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithInvoiceFlagger attaches the store that marks approved invoices
// financeable.
func (o *Orchestrator) WithInvoiceFlagger(f InvoiceFlagger) *Orchestrator {
	o.flagger = f
	return o
}

// WithOverallTimeout overrides the overall analysis deadline.
func (o *Orchestrator) WithOverallTimeout(d time.Duration) *Orchestrator {
	o.overall = d
	return o
}

// WithClock overrides the clock used for completion timestamps.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Analyze looks up or creates the session for the case key. The first caller
// for a key owns the run, which proceeds in the background under the overall
// deadline; later callers receive a handle to the same in-flight or completed
// session. Callers wait on Session.Done or poll by id.
func (o *Orchestrator) Analyze(ctx context.Context, c agents.Case) (*session.Session, error) {
	if err := validateCase(c); err != nil {
		return nil, err
	}
	if len(o.agentSet) == 0 {
		return nil, ErrNoAgents
	}

	sess, created := o.store.CreateIfAbsent(c)
	if !created {
		return sess, nil
	}

	go o.run(sess)
	return sess, nil
}

func (o *Orchestrator) run(sess *session.Session) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("orchestrator: run panicked: %v", p)
			o.logger.Error().Err(err).Str("session_id", sess.ID).Msg("orchestration failed")
			sess.Fail(err, o.now())
			o.notify(sess)
		}
	}()

	if !sess.MarkRunning() {
		return
	}

	log := o.logger.With().
		Str("session_id", sess.ID).
		Str("invoice_id", sess.Case.InvoiceID).
		Str("merchant_id", sess.Case.MerchantID).
		Logger()
	log.Info().Int("agents", len(o.agentSet)).Msg("starting analysis")

	ctx, cancel := context.WithTimeout(context.Background(), o.overall)
	defer cancel()

	results := make([]agents.AgentResult, len(o.agentSet))
	g, runCtx := errgroup.WithContext(ctx)
	for i, ag := range o.agentSet {
		g.Go(func() error {
			results[i] = o.runner.Execute(runCtx, ag, sess.Case)
			return nil
		})
	}
	// Runners swallow every agent fault, so the wait cannot fail.
	_ = g.Wait()

	fin := o.aggregator.Aggregate(results)

	state := session.StateCompleted
	for _, res := range results {
		if !res.OK() {
			state = session.StateDegraded
			break
		}
	}

	var offer *decision.Offer
	if fin.Decision == decision.OutcomeApproved {
		off, err := o.pricer.Price(sess.Case, fin, results)
		if err != nil {
			state = session.StateDegraded
			log.Warn().Err(err).Msg("decision approved but offer could not be priced")
		} else {
			offer = &off
		}
	}

	sess.Complete(state, results, fin, offer, o.now())
	log.Info().
		Str("state", string(state)).
		Str("decision", string(fin.Decision)).
		Float64("confidence", fin.Confidence).
		Msg("analysis finished")

	o.notify(sess)
}

// notify fans the terminal transition out to the compliance sink and, on
// approval, flags the invoice financeable. Both are best-effort.
func (o *Orchestrator) notify(sess *session.Session) {
	snap := sess.Snapshot()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.notifyWait)
		defer cancel()

		if o.recorder != nil {
			if err := o.recorder.RecordDecision(ctx, snap); err != nil {
				o.logger.Warn().Err(err).Str("session_id", snap.ID).Msg("audit record failed")
			}
		}

		if o.flagger != nil && snap.Final != nil && snap.Final.Decision == decision.OutcomeApproved {
			rate := 0.0
			if snap.Offer != nil {
				rate = snap.Offer.Rate
			}
			if err := o.flagger.MarkFinanceable(ctx, snap.Key.MerchantID, snap.Key.InvoiceID, rate); err != nil {
				o.logger.Warn().Err(err).Str("invoice_id", snap.Key.InvoiceID).Msg("flag financeable failed")
			}
		}
	}()
}

func validateCase(c agents.Case) error {
	switch {
	case c.InvoiceID == "":
		return fmt.Errorf("%w: missing invoice id", ErrInvalidCase)
	case c.BuyerID == "":
		return fmt.Errorf("%w: missing buyer id", ErrInvalidCase)
	case c.MerchantID == "":
		return fmt.Errorf("%w: missing merchant id", ErrInvalidCase)
	case c.InvoiceAmount <= 0:
		return fmt.Errorf("%w: invoice amount must be positive", ErrInvalidCase)
	}
	return nil
}
