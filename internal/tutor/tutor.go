// Package tutor generates the tutor's replies. A reply is produced by a
// Brain; the package ships an LLM-backed brain and a canned fallback brain,
// composed through a resilience.FallbackGroup so that a session always gets a
// reply even when every model backend is down.
package tutor

import (
	"context"

	"github.com/causerie-ai/causerie/internal/resilience"
	"github.com/causerie-ai/causerie/internal/session"
	"github.com/causerie-ai/causerie/pkg/protocol"
)

// Reply is one tutor turn: the text to synthesise plus the structured
// learning metadata that accompanies it.
type Reply struct {
	Speech string
	Notes  protocol.Notes

	// Backend names the brain that produced the reply. Set by Engine.Generate;
	// individual brains may leave it empty.
	Backend string
}

// Brain produces a Reply to the learner's latest utterance given the
// accumulated session state. Implementations must be safe for concurrent use
// across sessions; the memory passed in is owned by one session's event loop
// and must only be read, never retained.
type Brain interface {
	// Reply generates the tutor's response to userText.
	Reply(ctx context.Context, mem *session.Memory, userText string) (Reply, error)

	// Name identifies the brain in logs and circuit breaker labels.
	Name() string
}

// Engine runs a primary brain with fallbacks behind per-brain circuit
// breakers. As long as the last registered brain cannot fail (the canned
// Fallback brain), Generate never returns an error-only result in practice.
type Engine struct {
	group *resilience.FallbackGroup[Brain]
}

// NewEngine composes the given brains in priority order. At least one brain
// is required; a Fallback brain as the final entry makes the engine total.
func NewEngine(primary Brain, fallbacks ...Brain) *Engine {
	group := resilience.NewFallbackGroup[Brain](primary, primary.Name(), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures: 3,
		},
	})
	for _, b := range fallbacks {
		group.AddFallback(b.Name(), b)
	}
	return &Engine{group: group}
}

// Generate produces a reply using the first healthy brain.
func (e *Engine) Generate(ctx context.Context, mem *session.Memory, userText string) (Reply, error) {
	return resilience.ExecuteWithResult(e.group, func(b Brain) (Reply, error) {
		reply, err := b.Reply(ctx, mem, userText)
		if err == nil {
			reply.Backend = b.Name()
		}
		return reply, err
	})
}
