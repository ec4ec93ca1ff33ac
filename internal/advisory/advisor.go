package advisory

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"scriptlab/internal/logging"
	"scriptlab/internal/merge"
	"scriptlab/internal/plan"
	"scriptlab/internal/services/llm"
)

// StreamGenerator streams a model reply as text deltas.
type StreamGenerator interface {
	StreamText(ctx context.Context, prompt, system string) (<-chan llm.Delta, error)
}

// Chat roles recorded in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is one recorded message.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnInput is everything a turn needs from the session.
type TurnInput struct {
	Message string
	History []ChatTurn
	Plan    *plan.Plan
	Brand   string
}

// TurnResult summarizes a finished turn.
type TurnResult struct {
	// Reply is the prose shown to the user, without the update block.
	Reply string
	// Update is nil when the model proposed no change or the block could not
	// be decoded.
	Update merge.Update
}

//go:embed prompts/advisor.tmpl
var promptFS embed.FS

var systemTemplate = template.Must(template.ParseFS(promptFS, "prompts/advisor.tmpl"))

// Advisor runs advisory turns.
type Advisor struct {
	stream       StreamGenerator
	logger       *slog.Logger
	historyTurns int
}

// Option customizes an Advisor.
type Option func(*Advisor)

// WithLogger sets the advisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Advisor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithHistoryTurns caps how many prior turns are sent to the model.
func WithHistoryTurns(n int) Option {
	return func(a *Advisor) {
		if n > 0 {
			a.historyTurns = n
		}
	}
}

// NewAdvisor constructs an advisor over stream.
func NewAdvisor(stream StreamGenerator, opts ...Option) *Advisor {
	a := &Advisor{stream: stream, logger: logging.NewNop(), historyTurns: 12}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "advisory")
	return a
}

// Turn runs one advisory exchange. Prose deltas are emitted as text events
// as they arrive, followed by at most one content_update event. A block that
// cannot be decoded becomes a status event and the turn still succeeds. A
// provider failure emits an error event and is returned.
func (a *Advisor) Turn(ctx context.Context, in TurnInput, emit func(Event) error) (TurnResult, error) {
	logger := logging.WithContext(ctx, a.logger)
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return TurnResult{}, errors.New("advisory: message required")
	}
	system, err := a.systemPrompt(in)
	if err != nil {
		return TurnResult{}, err
	}
	if err := emit(StatusEvent("thinking")); err != nil {
		return TurnResult{}, err
	}

	// Cancelling on return stops the producer if the consumer goes away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas, err := a.stream.StreamText(ctx, a.userPrompt(in.History, message), system)
	if err != nil {
		_ = emit(ErrorEvent("the advisor is unavailable right now, try again"))
		return TurnResult{}, fmt.Errorf("advisory stream: %w", err)
	}

	var (
		splitter fenceSplitter
		reply    strings.Builder
	)
	for delta := range deltas {
		if delta.Err != nil {
			_ = emit(ErrorEvent("the advisor stopped mid-reply, try again"))
			return TurnResult{Reply: reply.String()}, fmt.Errorf("advisory stream: %w", delta.Err)
		}
		if prose := splitter.feed(delta.Text); prose != "" {
			reply.WriteString(prose)
			if err := emit(TextEvent(prose)); err != nil {
				return TurnResult{Reply: reply.String()}, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return TurnResult{Reply: reply.String()}, err
	}

	prose, block, found := splitter.finish()
	if prose != "" {
		reply.WriteString(prose)
		if err := emit(TextEvent(prose)); err != nil {
			return TurnResult{Reply: reply.String()}, err
		}
	}
	result := TurnResult{Reply: strings.TrimSpace(reply.String())}
	if !found {
		return result, nil
	}

	update, err := merge.Decode([]byte(llm.StripCodeFence(block)))
	if err != nil {
		logging.WarnWithContext(logger, "advisory update could not be decoded", "advisory_update_undecodable",
			logging.Error(err),
			logging.String("block_snippet", llm.Snippet(block)),
			logging.String(logging.FieldImpact, "turn kept as prose only"),
		)
		return result, emit(StatusEvent("the proposed change could not be read and was not applied"))
	}
	ev, err := UpdateEvent(update)
	if err != nil {
		return result, err
	}
	result.Update = update
	logger.Info("advisory proposed update", logging.String("update_kind", string(update.Kind())))
	return result, emit(ev)
}

func (a *Advisor) systemPrompt(in TurnInput) (string, error) {
	planJSON := []byte("{}")
	if in.Plan != nil {
		encoded, err := json.MarshalIndent(numberedPlan(in.Plan), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode plan for advisor: %w", err)
		}
		planJSON = encoded
	}
	var buf bytes.Buffer
	err := systemTemplate.Execute(&buf, struct {
		Brand    string
		PlanJSON string
		MaxShots int
	}{strings.TrimSpace(in.Brand), string(planJSON), plan.MaxShotListItems})
	if err != nil {
		return "", fmt.Errorf("render advisor prompt: %w", err)
	}
	return buf.String(), nil
}

// userPrompt folds recent history and the new message into one transcript.
func (a *Advisor) userPrompt(history []ChatTurn, message string) string {
	if len(history) > a.historyTurns {
		history = history[len(history)-a.historyTurns:]
	}
	if len(history) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, turn := range history {
		role := "Creator"
		if turn.Role == RoleAssistant {
			role = "Advisor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(turn.Content))
	}
	b.WriteString("\nCreator: ")
	b.WriteString(message)
	return b.String()
}

type numberedScene struct {
	Index  int      `json:"index"`
	Visual string   `json:"visual"`
	Audio  string   `json:"audio"`
	Assets []string `json:"assets"`
}

func numberedPlan(p *plan.Plan) any {
	scenes := make([]numberedScene, len(p.Scenes))
	for i, s := range p.Scenes {
		ids := make([]string, len(s.Assets))
		for j, spec := range s.Assets {
			ids[j] = spec.ID
		}
		scenes[i] = numberedScene{Index: i, Visual: s.Visual, Audio: s.Audio, Assets: ids}
	}
	return struct {
		Scenes         []numberedScene      `json:"scenes"`
		HookVariations []plan.HookVariation `json:"hook_variations"`
		ShotList       []plan.ShotItem      `json:"shot_list"`
	}{scenes, p.HookVariations, p.ShotList}
}
