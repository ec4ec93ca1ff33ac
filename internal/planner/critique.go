package planner

import (
	"context"
	"log/slog"
	"strings"

	"scriptlab/internal/logging"
	"scriptlab/internal/plan"
	"scriptlab/internal/services"
	"scriptlab/internal/services/llm"
)

// BrandConstraints are what the critique pass checks scene copy against.
type BrandConstraints struct {
	Pillars     []string
	Positioning string
	Tone        string
}

// SceneChange replaces the spoken copy of the scene at Index.
type SceneChange struct {
	Index int    `json:"index"`
	Audio string `json:"new_audio"`
}

// CritiqueResult is the minimal diff returned by the critique pass.
type CritiqueResult struct {
	Changes []SceneChange `json:"changes"`
	Summary string        `json:"summary"`
}

// Critic reviews scene copy against brand constraints.
type Critic struct {
	text   TextGenerator
	logger *slog.Logger
}

// NewCritic constructs a critic backed by text.
func NewCritic(text TextGenerator, logger *slog.Logger) *Critic {
	return &Critic{text: text, logger: logging.NewComponentLogger(logger, "critique")}
}

// Critique asks the model which scenes drift from the brand and how to fix
// them. Every failure wraps services.ErrCritique.
func (c *Critic) Critique(ctx context.Context, scenes []plan.Scene, constraints BrandConstraints) (CritiqueResult, error) {
	var empty CritiqueResult
	if len(scenes) == 0 || len(constraints.Pillars) == 0 {
		return empty, services.Wrap(services.ErrCritique, "planner", "critique", "scenes and at least one pillar are required", nil)
	}
	prompt, err := render("critique.tmpl", struct {
		Scenes      []plan.Scene
		Constraints BrandConstraints
	}{scenes, constraints})
	if err != nil {
		return empty, services.Wrap(services.ErrCritique, "planner", "critique", "compose prompt", err)
	}
	raw, err := c.text.GenerateText(ctx, prompt, critiqueSystemPrompt)
	if err != nil {
		return empty, services.Wrap(services.ErrCritique, "planner", "critique", "model call", err)
	}
	var result CritiqueResult
	if err := llm.DecodeLLMJSON(raw, &result); err != nil {
		return empty, services.Wrap(services.ErrCritique, "planner", "critique", "parse response", err)
	}
	result.Summary = strings.TrimSpace(result.Summary)
	logging.WithContext(ctx, c.logger).Debug("critique received",
		logging.Int("changes", len(result.Changes)),
		logging.String("summary", result.Summary),
	)
	return result, nil
}

// ApplyCritique writes each change onto the scene at its index. Changes with
// an out-of-range index or blank copy are ignored. It returns the number of
// scenes changed.
func ApplyCritique(p *plan.Plan, result CritiqueResult) int {
	if p == nil {
		return 0
	}
	applied := 0
	for _, change := range result.Changes {
		if change.Index < 0 || change.Index >= len(p.Scenes) {
			continue
		}
		copyText := strings.TrimSpace(change.Audio)
		if copyText == "" {
			continue
		}
		p.Scenes[change.Index].Audio = copyText
		applied++
	}
	return applied
}
