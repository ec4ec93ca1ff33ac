package planner

import (
	"context"
	"log/slog"

	"scriptlab/internal/logging"
	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

// TextGenerator produces text from a prompt and an optional system instruction.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
}

// Result is the outcome of plan generation.
type Result struct {
	Plan *plan.Plan
	// CritiqueSummary is empty when the refine stage was skipped or failed.
	CritiqueSummary string
	Prompt          string
	Raw             string
}

// Planner generates production plans from briefs.
type Planner struct {
	text     TextGenerator
	critic   *Critic
	logger   *slog.Logger
	critique bool
}

// Option customizes a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCritique toggles the refine stage.
func WithCritique(enabled bool) Option {
	return func(p *Planner) {
		p.critique = enabled
	}
}

// New constructs a planner. The refine stage is enabled by default.
func New(text TextGenerator, opts ...Option) *Planner {
	p := &Planner{text: text, logger: logging.NewNop(), critique: true}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "planner")
	p.critic = NewCritic(text, p.logger)
	return p
}

// Generate runs the primary stage and, when enabled, the best-effort refine
// stage. Only a primary stage failure is returned.
func (p *Planner) Generate(ctx context.Context, brief Brief) (Result, error) {
	ctx = services.WithOperation(ctx, "plan")
	logger := logging.WithContext(ctx, p.logger)

	prompt, err := Compose(brief)
	if err != nil {
		return Result{}, err
	}
	raw, err := p.text.GenerateText(ctx, prompt, planSystemPrompt)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "planner", "generate", "text generation failed", err)
	}
	primary, err := Extract(raw)
	if err != nil {
		logger.Error("plan extraction failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "plan_malformed"),
			logging.String("raw_response", raw),
		)
		return Result{}, err
	}
	result := Result{Plan: primary, Prompt: prompt, Raw: raw}
	logger.Info("plan generated",
		logging.Int("scenes", len(primary.Scenes)),
		logging.Int("assets", len(primary.AssetSpecs())),
	)

	constraints := brief.Brand.Constraints()
	if !p.critique || len(constraints.Pillars) == 0 {
		return result, nil
	}
	result.Plan, result.CritiqueSummary = bestEffort(ctx, logger, primary, func(ctx context.Context, draft *plan.Plan) (string, error) {
		critique, err := p.critic.Critique(ctx, draft.Scenes, constraints)
		if err != nil {
			return "", err
		}
		applied := ApplyCritique(draft, critique)
		logger.Info("critique applied", logging.Int("scenes_changed", applied))
		return critique.Summary, nil
	})
	return result, nil
}

// refineStage mutates draft in place and returns a summary.
type refineStage func(ctx context.Context, draft *plan.Plan) (string, error)

// bestEffort runs stage on a copy of primary. On success it returns the
// refined copy; on failure it logs and returns primary untouched.
func bestEffort(ctx context.Context, logger *slog.Logger, primary *plan.Plan, stage refineStage) (*plan.Plan, string) {
	draft := primary.Clone()
	summary, err := stage(services.WithOperation(ctx, "critique"), draft)
	if err != nil {
		logging.WarnWithContext(logger, "critique pass failed; keeping primary plan", "critique_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, "check text provider availability or disable generation.critique"),
			logging.String(logging.FieldImpact, "script copy was not brand-checked"),
		)
		return primary, ""
	}
	return draft, summary
}
