package agents

import (
	"context"
	"fmt"
	"time"
)

// Runner executes one agent against a case under a deadline. Timeouts, errors
// and panics are converted into tagged result statuses; no agent fault ever
// escapes Execute, and a result is always returned before the deadline plus
// scheduling slack.
type Runner struct {
	timeout time.Duration
	now     func() time.Time
}

// NewRunner builds a runner enforcing the given per-agent deadline.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{
		timeout: timeout,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for latency measurement.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Execute runs the agent and returns its tagged result. The in-flight call is
// cancelled when the deadline elapses; a late or panicking agent is recorded
// as TIMEOUT or ERROR respectively and the orchestration continues.
func (r *Runner) Execute(ctx context.Context, ag Agent, c Case) AgentResult {
	start := r.now()

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make(chan AgentResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				results <- AgentResult{
					Agent:     ag.Name(),
					Status:    StatusError,
					Reasoning: fmt.Sprintf("agent panicked: %v", p),
				}
			}
		}()

		res, err := ag.Run(runCtx, c)
		if err != nil {
			results <- AgentResult{
				Agent:     ag.Name(),
				Status:    StatusError,
				Reasoning: err.Error(),
			}
			return
		}
		res.Agent = ag.Name()
		res.Status = StatusOK
		results <- res
	}()

	select {
	case res := <-results:
		res.Latency = r.now().Sub(start)
		if res.Status != StatusOK {
			res = withoutOpinion(res)
		}
		return res
	case <-runCtx.Done():
		return AgentResult{
			Agent:     ag.Name(),
			Status:    StatusTimeout,
			Reasoning: "agent did not respond before the deadline",
			Latency:   r.now().Sub(start),
		}
	}
}

// withoutOpinion strips vote, confidence and facts from a failed result so a
// failure can never be read as a positive opinion downstream.
func withoutOpinion(res AgentResult) AgentResult {
	res.Approve = false
	res.Confidence = 0
	res.SupplyChain = nil
	res.CreditScoring = nil
	res.Factoring = nil
	return res
}
