package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

// DefaultsFunc returns the session defaults and creator assets current at the
// time of a generation.
type DefaultsFunc func() (SessionDefaults, CreatorAssets)

// SceneOptions steer a scene regeneration.
type SceneOptions struct {
	// Keyword is appended to image prompts.
	Keyword string
	// Overlay requests the scene's spoken copy as literal overlay text on
	// image assets.
	Overlay bool
}

// SlotFailure records one failed slot in a bulk run.
type SlotFailure struct {
	SlotID string `json:"slot_id"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// BulkReport summarizes a bulk generation fold.
type BulkReport struct {
	Generated []string      `json:"generated"`
	Skipped   []string      `json:"skipped"`
	Failed    []SlotFailure `json:"failed"`
}

// Orchestrator runs media generation for registry slots.
type Orchestrator struct {
	registry    *Registry
	generator   media.Generator
	sem         *semaphore.Weighted
	defaults    DefaultsFunc
	aspectRatio string
	logger      *slog.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSemaphore shares a provider concurrency cap across orchestrators.
func WithSemaphore(sem *semaphore.Weighted) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sem = sem
	}
}

// WithDefaults sets the source of session defaults.
func WithDefaults(fn DefaultsFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		if fn != nil {
			o.defaults = fn
		}
	}
}

// WithAspectRatio sets the aspect ratio sent with every request.
func WithAspectRatio(ratio string) OrchestratorOption {
	return func(o *Orchestrator) {
		if strings.TrimSpace(ratio) != "" {
			o.aspectRatio = ratio
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator constructs an orchestrator over registry.
func NewOrchestrator(registry *Registry, generator media.Generator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		generator:   generator,
		defaults:    func() (SessionDefaults, CreatorAssets) { return SessionDefaults{}, CreatorAssets{} },
		aspectRatio: "9:16",
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "assets")
	return o
}

// Generate produces the asset for spec regardless of the slot's state. A slot
// already generating is rejected with services.ErrSlotBusy. A provider failure
// leaves references and any previous result untouched and wraps
// services.ErrAssetGeneration. A completion for a slot cleared in the
// meantime is discarded and the slot's current view is returned without error.
func (o *Orchestrator) Generate(ctx context.Context, spec plan.AssetSpec) (SlotView, error) {
	view, _, err := o.generate(ctx, spec, basePrompt(spec))
	return view, err
}

// generate reports whether the provider result was installed in the slot.
func (o *Orchestrator) generate(ctx context.Context, spec plan.AssetSpec, prompt string) (SlotView, bool, error) {
	ctx = services.WithSlotID(ctx, spec.ID)
	logger := logging.WithContext(ctx, o.logger)

	t, slotRefs, err := o.registry.begin(spec.ID)
	if err != nil {
		return SlotView{}, false, err
	}

	defaults, creator := o.defaults()
	refs := ResolveReferences(slotRefs, spec.Medium, defaults, creator)
	req := media.Request{
		Medium:        spec.Medium,
		Prompt:        prompt,
		AspectRatio:   o.aspectRatio,
		ReferenceURLs: referenceURLs(refs),
	}

	started := time.Now()
	result, err := o.call(ctx, req)
	if err != nil {
		o.registry.fail(t)
		wrapped := services.Wrap(services.ErrAssetGeneration, "assets", "generate", fmt.Sprintf("%s generation failed for %s", spec.Medium, spec.ID), err)
		logging.WarnWithContext(logger, "asset generation failed", "asset_generation_failed",
			logging.Error(err),
			logging.String("medium", string(spec.Medium)),
			logging.String(logging.FieldErrorHint, "retry the slot or attach a different reference"),
			logging.String(logging.FieldImpact, "slot left unchanged"),
		)
		return SlotView{}, false, wrapped
	}

	view, err := o.registry.complete(t, GeneratedAsset{
		URL:        result.URL,
		Provenance: ProvenanceAI,
		Metadata:   result.Metadata,
	})
	if errors.Is(err, services.ErrStaleWrite) {
		logger.Info("discarded stale generation result", logging.String("decision_reason", "slot cleared or regenerated while request was in flight"))
		current, _ := o.registry.Slot(spec.ID)
		return current, false, nil
	}
	if err != nil {
		return SlotView{}, false, err
	}
	logger.Info("asset generated",
		logging.String("medium", string(spec.Medium)),
		logging.Int("references", len(refs)),
		logging.Duration("generation_duration", time.Since(started)),
	)
	return view, true, nil
}

func (o *Orchestrator) call(ctx context.Context, req media.Request) (media.Result, error) {
	if o.generator == nil {
		return media.Result{}, services.Wrap(services.ErrConfiguration, "assets", "generate", "no media generator configured", nil)
	}
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return media.Result{}, err
		}
		defer o.sem.Release(1)
	}
	result, err := o.generator.Generate(ctx, req)
	if err != nil {
		return media.Result{}, err
	}
	if strings.TrimSpace(result.URL) == "" {
		return media.Result{}, errors.New("provider returned no media locator")
	}
	return result, nil
}

// GenerateAll folds Generate over specs in order, skipping slots already
// ready. Failures are recorded and do not stop the fold. Only context
// cancellation ends it early.
func (o *Orchestrator) GenerateAll(ctx context.Context, specs []plan.AssetSpec) (BulkReport, error) {
	report := BulkReport{Generated: []string{}, Skipped: []string{}, Failed: []SlotFailure{}}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if view, ok := o.registry.Slot(spec.ID); ok && view.State == StateReady {
			report.Skipped = append(report.Skipped, spec.ID)
			continue
		}
		o.fold(ctx, &report, spec, basePrompt(spec))
	}
	return report, nil
}

// GenerateScene folds Generate over the scene's assets that are not ready.
func (o *Orchestrator) GenerateScene(ctx context.Context, scene plan.Scene) (BulkReport, error) {
	return o.GenerateAll(ctx, scene.Assets)
}

// RegenerateScene clears every slot of the scene and generates them again.
// Image prompts are extended with opts.Keyword and, when opts.Overlay is set,
// with the scene's spoken copy as overlay text.
func (o *Orchestrator) RegenerateScene(ctx context.Context, scene plan.Scene, opts SceneOptions) (BulkReport, error) {
	report := BulkReport{Generated: []string{}, Skipped: []string{}, Failed: []SlotFailure{}}
	for _, spec := range scene.Assets {
		o.registry.Ensure(spec.ID)
		if err := o.registry.Clear(spec.ID); err != nil {
			return report, err
		}
	}
	for _, spec := range scene.Assets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		prompt := basePrompt(spec)
		if spec.Medium == plan.MediumImage {
			prompt = extendPrompt(prompt, opts, scene.Audio)
		}
		o.fold(ctx, &report, spec, prompt)
	}
	return report, nil
}

// fold records one generation in report. A result discarded because the slot
// changed while the request was in flight counts as skipped.
func (o *Orchestrator) fold(ctx context.Context, report *BulkReport, spec plan.AssetSpec, prompt string) {
	_, installed, err := o.generate(ctx, spec, prompt)
	switch {
	case err != nil:
		report.Failed = append(report.Failed, SlotFailure{SlotID: spec.ID, Kind: services.Kind(err), Error: err.Error()})
	case installed:
		report.Generated = append(report.Generated, spec.ID)
	default:
		report.Skipped = append(report.Skipped, spec.ID)
	}
}

func basePrompt(spec plan.AssetSpec) string {
	if p := strings.TrimSpace(spec.Prompt); p != "" {
		return p
	}
	return strings.TrimSpace(spec.Description)
}

func extendPrompt(prompt string, opts SceneOptions, overlay string) string {
	if kw := strings.TrimSpace(opts.Keyword); kw != "" {
		prompt += ", " + kw
	}
	if opts.Overlay {
		if text := strings.TrimSpace(overlay); text != "" {
			prompt += fmt.Sprintf(", with the text overlay %q", text)
		}
	}
	return prompt
}

func referenceURLs(refs []Reference) []string {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		if u := strings.TrimSpace(ref.URL); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
