package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/causerie-ai/causerie/internal/session"
	"github.com/causerie-ai/causerie/pkg/protocol"
	"github.com/causerie-ai/causerie/pkg/provider/llm"
)

const (
	defaultTemperature = 0.6
	defaultMaxTokens   = 400
)

// systemPromptTemplate frames the model as a spoken-French tutor and pins the
// JSON reply contract. The speech field is synthesised verbatim, so it must
// stay short and free of markup.
const systemPromptTemplate = `You are a warm, patient French tutor in a live voice conversation with a learner.

Rules for the "speech" field:
- Speak mostly in simple French, adjusted to the learner's level%s. Add a short English aside only when the learner seems lost.
- Keep it to one or two short sentences. No markdown, no lists, no emoji. It is read aloud verbatim.
- Gently correct mistakes by restating the correct form, then move the conversation forward with a question.

You must reply with a single JSON object and nothing else:
{
  "speech": "what you say to the learner",
  "notes": {
    "cefr_guess": "A1|A2|B1|B2|C1|C2",
    "corrections": ["corrections you made this turn"],
    "new_vocab": ["word - translation"],
    "next_step": "what to practice next"
  }
}%s`

// LLMBrain generates replies from an LLM backend.
type LLMBrain struct {
	provider    llm.Provider
	name        string
	temperature float64
	maxTokens   int
}

// LLMOption is a functional option for LLMBrain.
type LLMOption func(*LLMBrain)

// WithTemperature overrides the sampling temperature. Default: 0.6.
func WithTemperature(t float64) LLMOption {
	return func(b *LLMBrain) {
		b.temperature = t
	}
}

// WithMaxTokens caps the completion length. Default: 400.
func WithMaxTokens(n int) LLMOption {
	return func(b *LLMBrain) {
		b.maxTokens = n
	}
}

// NewLLMBrain wraps an LLM provider as a Brain. name labels the brain in
// logs and breaker state.
func NewLLMBrain(provider llm.Provider, name string, opts ...LLMOption) *LLMBrain {
	b := &LLMBrain{
		provider:    provider,
		name:        name,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements Brain.
func (b *LLMBrain) Name() string { return b.name }

// Reply implements Brain. The session memory shapes the system prompt:
// level estimate, recurring errors, and learned vocabulary all steer the
// model's next turn.
func (b *LLMBrain) Reply(ctx context.Context, mem *session.Memory, userText string) (Reply, error) {
	messages := append(mem.History(), llm.Message{Role: llm.RoleUser, Content: userText})

	resp, err := b.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: buildSystemPrompt(mem),
		Temperature:  b.temperature,
		MaxTokens:    b.maxTokens,
		JSONResponse: true,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("tutor: llm completion: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Reply{}, fmt.Errorf("tutor: llm returned empty completion")
	}

	return parseReply(resp.Content), nil
}

// buildSystemPrompt folds the session state into the prompt template.
func buildSystemPrompt(mem *session.Memory) string {
	level := ""
	if cefr := mem.CEFR(); cefr != "" {
		level = fmt.Sprintf(" (currently estimated %s)", cefr)
	}

	var context strings.Builder
	if errs := mem.RecurringErrors(); len(errs) > 0 {
		context.WriteString("\n\nRecurring errors to watch for:")
		for _, e := range errs {
			fmt.Fprintf(&context, "\n- %s (seen %d times)", e.Correction, e.Count)
		}
	}
	if words := mem.VocabWords(); len(words) > 0 {
		context.WriteString("\n\nVocabulary already introduced: ")
		context.WriteString(strings.Join(words, ", "))
		context.WriteString("\nReuse these words so the learner hears them again.")
	}

	return fmt.Sprintf(systemPromptTemplate, level, context.String())
}

// replyEnvelope mirrors the JSON contract in the system prompt.
type replyEnvelope struct {
	Speech string         `json:"speech"`
	Notes  protocol.Notes `json:"notes"`
}

// parseReply extracts the reply from a completion. Models occasionally wrap
// the JSON in code fences or prepend prose; both are tolerated. When no JSON
// object can be recovered, the raw text becomes the speech so the learner
// still hears something sensible.
func parseReply(content string) Reply {
	candidate := strings.TrimSpace(content)
	candidate = strings.TrimPrefix(candidate, "```json")
	candidate = strings.TrimPrefix(candidate, "```")
	candidate = strings.TrimSuffix(candidate, "```")
	candidate = strings.TrimSpace(candidate)

	if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			var env replyEnvelope
			if err := json.Unmarshal([]byte(candidate[start:end+1]), &env); err == nil && strings.TrimSpace(env.Speech) != "" {
				return Reply{Speech: strings.TrimSpace(env.Speech), Notes: env.Notes}
			}
		}
	}

	return Reply{Speech: strings.TrimSpace(content)}
}

var _ Brain = (*LLMBrain)(nil)
