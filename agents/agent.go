package agents

import "context"

// Agent is one independent scoring strategy. Run may perform read-only lookups
// through injected providers and must observe ctx cancellation while doing so.
// Implementations report their opinion through the returned result; a non-nil
// error means the agent could not form one at all.
type Agent interface {
	Name() Name
	Run(ctx context.Context, c Case) (AgentResult, error)
}
