package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scriptlab/internal/advisory"
	"scriptlab/internal/assets"
	"scriptlab/internal/logging"
	"scriptlab/internal/merge"
	"scriptlab/internal/notifications"
	"scriptlab/internal/plan"
	"scriptlab/internal/planner"
	"scriptlab/internal/services"
	"scriptlab/internal/store"
)

// View is the client-facing projection of a session.
type View struct {
	ID              string                 `json:"id"`
	AccountID       string                 `json:"account_id"`
	Title           string                 `json:"title"`
	Status          store.Status           `json:"status"`
	Brief           planner.Brief          `json:"brief"`
	Plan            *plan.Plan             `json:"plan,omitempty"`
	CritiqueSummary string                 `json:"critique_summary,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Defaults        assets.SessionDefaults `json:"defaults"`
	Slots           []assets.SlotView      `json:"slots"`
	Chat            []advisory.ChatTurn    `json:"chat"`
	Revision        int64                  `json:"revision"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Session is one live production session.
type Session struct {
	mgr      *Manager
	registry *assets.Registry
	orch     *assets.Orchestrator

	// turnMu serialises advisory turns.
	turnMu sync.Mutex
	// persistMu orders store writes so the last write carries the newest state.
	persistMu sync.Mutex

	mu       sync.Mutex
	record   store.Workflow
	brief    planner.Brief
	plan     *plan.Plan
	defaults assets.SessionDefaults
	creator  assets.CreatorAssets
	chat     []advisory.ChatTurn
}

func newSession(m *Manager, record store.Workflow, creator assets.CreatorAssets) *Session {
	s := &Session{
		mgr:     m,
		record:  record,
		creator: creator,
		defaults: assets.SessionDefaults{
			Face:  assets.Selector{Mode: assets.SelectNone},
			Voice: assets.Selector{Mode: assets.SelectNone},
		},
	}
	s.registry = assets.NewRegistry(assets.WithReleaser(m.releaser))
	opts := []assets.OrchestratorOption{
		assets.WithDefaults(s.currentDefaults),
		assets.WithAspectRatio(m.aspectRatio),
		assets.WithLogger(m.logger),
	}
	if m.sem != nil {
		opts = append(opts, assets.WithSemaphore(m.sem))
	}
	s.orch = assets.NewOrchestrator(s.registry, m.generator, opts...)
	return s
}

// ID returns the workflow ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ID
}

// AccountID returns the owning account.
func (s *Session) AccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.AccountID
}

func (s *Session) currentDefaults() (assets.SessionDefaults, assets.CreatorAssets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults, s.creator
}

func (s *Session) setCreator(creator assets.CreatorAssets) {
	s.mu.Lock()
	s.creator = creator
	s.mu.Unlock()
}

func (s *Session) context(ctx context.Context) context.Context {
	return services.WithWorkflowID(ctx, s.ID())
}

// View returns a copy of the session state. Slots are listed in plan order.
func (s *Session) View() View {
	s.mu.Lock()
	view := View{
		ID:              s.record.ID,
		AccountID:       s.record.AccountID,
		Title:           s.record.Title,
		Status:          s.record.Status,
		Brief:           s.brief,
		Plan:            s.plan.Clone(),
		CritiqueSummary: s.record.CritiqueSummary,
		Error:           s.record.ErrorMessage,
		Defaults:        s.defaults,
		Chat:            append([]advisory.ChatTurn{}, s.chat...),
		Revision:        s.record.Revision,
		UpdatedAt:       s.record.UpdatedAt,
	}
	s.mu.Unlock()

	view.Slots = []assets.SlotView{}
	for _, spec := range view.Plan.AssetSpecs() {
		if slot, ok := s.registry.Slot(spec.ID); ok {
			view.Slots = append(view.Slots, slot)
		}
	}
	return view
}

// Slot returns the slot with id if it belongs to the current plan.
func (s *Session) Slot(id string) (assets.SlotView, error) {
	if _, err := s.spec(id); err != nil {
		return assets.SlotView{}, err
	}
	view, ok := s.registry.Slot(id)
	if !ok {
		return assets.SlotView{}, services.Wrap(services.ErrNotFound, "workflow", "slot", "unknown slot "+id, nil)
	}
	return view, nil
}

// GeneratePlan runs plan generation for the session's brief. On success the
// plan replaces any previous one and slots are ensured for every asset. Slots
// whose IDs survive keep their references. They keep their result and any
// generation in flight only when the asset's medium and prompt are unchanged;
// otherwise the slot is cleared. On failure the session is marked plan_failed
// and the error is returned.
func (s *Session) GeneratePlan(ctx context.Context) (View, error) {
	ctx = s.context(ctx)
	logger := logging.WithContext(ctx, s.mgr.logger)

	s.mu.Lock()
	brief := s.brief
	s.mu.Unlock()

	result, err := s.mgr.planner.Generate(ctx, brief)
	if err != nil {
		s.mu.Lock()
		s.record.ErrorMessage = err.Error()
		if s.plan == nil {
			s.record.Status = store.StatusPlanFailed
		}
		title := s.record.Title
		s.mu.Unlock()
		logger.Error("plan generation failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldEventType, "plan_failed"),
		)
		s.commit(ctx, "plan_failed")
		s.mgr.notify(ctx, notifications.EventPlanFailed, notifications.Payload{"title": title, "error": err.Error()})
		return s.View(), err
	}

	s.mu.Lock()
	changed := changedAssets(s.plan, result.Plan)
	s.plan = result.Plan
	s.record.Status = store.StatusPlanned
	s.record.CritiqueSummary = result.CritiqueSummary
	s.record.ErrorMessage = ""
	ids := assetIDs(s.plan)
	title := s.record.Title
	s.mu.Unlock()

	s.retainSlots(ids, changed)
	logger.Info("plan installed",
		logging.Int("scenes", len(result.Plan.Scenes)),
		logging.Int("slots", len(ids)),
		logging.Bool("critiqued", result.CritiqueSummary != ""),
	)
	s.commit(ctx, "plan_generated")
	s.mgr.notify(ctx, notifications.EventPlanReady, notifications.Payload{
		"title":  title,
		"scenes": len(result.Plan.Scenes),
		"assets": len(ids),
	})
	return s.View(), nil
}

// retainSlots keeps slots named in ids, drops the rest, ensures every id has a
// slot, and clears the slots listed in changed.
func (s *Session) retainSlots(ids, changed []string) {
	s.registry.Retain(ids...)
	for _, id := range changed {
		_ = s.registry.Clear(id)
	}
}

// changedAssets lists asset IDs present in both plans whose medium or prompt
// differs.
func changedAssets(prev, next *plan.Plan) []string {
	if prev == nil || next == nil {
		return nil
	}
	var changed []string
	for _, spec := range next.AssetSpecs() {
		old, _, ok := prev.FindAsset(spec.ID)
		if !ok {
			continue
		}
		if old.Medium != spec.Medium || old.Prompt != spec.Prompt || old.Description != spec.Description {
			changed = append(changed, spec.ID)
		}
	}
	return changed
}

func (s *Session) spec(slotID string) (plan.AssetSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return plan.AssetSpec{}, services.Wrap(services.ErrValidation, "workflow", "slot", "workflow has no plan yet", nil)
	}
	spec, _, ok := s.plan.FindAsset(slotID)
	if !ok {
		return plan.AssetSpec{}, services.Wrap(services.ErrNotFound, "workflow", "slot", "unknown slot "+slotID, nil)
	}
	return spec, nil
}

func (s *Session) scene(index int) (plan.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return plan.Scene{}, services.Wrap(services.ErrValidation, "workflow", "scene", "workflow has no plan yet", nil)
	}
	if index < 0 || index >= len(s.plan.Scenes) {
		return plan.Scene{}, services.Wrap(services.ErrNotFound, "workflow", "scene", fmt.Sprintf("scene %d out of range", index), nil)
	}
	return s.plan.Scenes[index].Clone(), nil
}

// GenerateSlot generates the asset for one slot.
func (s *Session) GenerateSlot(ctx context.Context, slotID string) (assets.SlotView, error) {
	ctx = s.context(ctx)
	spec, err := s.spec(slotID)
	if err != nil {
		return assets.SlotView{}, err
	}
	view, err := s.orch.Generate(ctx, spec)
	s.commit(ctx, "slot_generated")
	return view, err
}

// GenerateAll generates every slot that is not already ready.
func (s *Session) GenerateAll(ctx context.Context) (assets.BulkReport, error) {
	ctx = s.context(ctx)
	s.mu.Lock()
	if s.plan == nil {
		s.mu.Unlock()
		return assets.BulkReport{}, services.Wrap(services.ErrValidation, "workflow", "generate all", "workflow has no plan yet", nil)
	}
	specs := s.plan.AssetSpecs()
	title := s.record.Title
	s.mu.Unlock()

	report, err := s.orch.GenerateAll(ctx, specs)
	s.commit(ctx, "bulk_generated")
	s.mgr.notify(ctx, notifications.EventAssetsGenerated, notifications.Payload{
		"title":     title,
		"generated": len(report.Generated),
		"failed":    len(report.Failed),
	})
	return report, err
}

// GenerateScene generates every slot of one scene. With opts it regenerates
// the scene's slots with the keyword and overlay applied.
func (s *Session) GenerateScene(ctx context.Context, index int, opts *assets.SceneOptions) (assets.BulkReport, error) {
	ctx = s.context(ctx)
	scene, err := s.scene(index)
	if err != nil {
		return assets.BulkReport{}, err
	}
	var report assets.BulkReport
	if opts != nil {
		report, err = s.orch.RegenerateScene(ctx, scene, *opts)
	} else {
		report, err = s.orch.GenerateScene(ctx, scene)
	}
	s.commit(ctx, "scene_generated")
	return report, err
}

// AttachReference stages ref on a slot of the current plan.
func (s *Session) AttachReference(ctx context.Context, slotID string, ref assets.Reference) (assets.Reference, error) {
	if _, err := s.spec(slotID); err != nil {
		return assets.Reference{}, err
	}
	attached, err := s.registry.Attach(slotID, ref)
	if err != nil {
		return assets.Reference{}, err
	}
	s.commit(s.context(ctx), "reference_attached")
	return attached, nil
}

// RemoveReference drops a staged reference.
func (s *Session) RemoveReference(ctx context.Context, slotID, refID string) error {
	if err := s.registry.Remove(slotID, refID); err != nil {
		return err
	}
	s.commit(s.context(ctx), "reference_removed")
	return nil
}

// ClearSlot drops a slot's result and invalidates any generation in flight.
func (s *Session) ClearSlot(ctx context.Context, slotID string) (assets.SlotView, error) {
	if err := s.registry.Clear(slotID); err != nil {
		return assets.SlotView{}, err
	}
	s.commit(s.context(ctx), "slot_cleared")
	view, _ := s.registry.Slot(slotID)
	return view, nil
}

// UploadResult installs an uploaded file as a slot's result.
func (s *Session) UploadResult(ctx context.Context, slotID, url string, metadata map[string]string) (assets.SlotView, error) {
	if _, err := s.spec(slotID); err != nil {
		return assets.SlotView{}, err
	}
	view, err := s.registry.MarkUploaded(slotID, url, metadata)
	if err != nil {
		return assets.SlotView{}, err
	}
	s.commit(s.context(ctx), "slot_uploaded")
	return view, nil
}

// SetDefaults replaces the session defaults.
func (s *Session) SetDefaults(ctx context.Context, defaults assets.SessionDefaults) (assets.SessionDefaults, error) {
	defaults.Normalize()
	if err := defaults.Validate(); err != nil {
		return assets.SessionDefaults{}, err
	}
	s.mu.Lock()
	s.defaults = defaults
	s.mu.Unlock()
	s.commit(s.context(ctx), "defaults_updated")
	return defaults, nil
}

// ApplyUpdate merges u into the plan. A rejected update leaves the plan
// untouched. Slots are ensured for any new asset IDs; slots of assets no
// longer in the plan are kept so a later update can bring them back.
func (s *Session) ApplyUpdate(ctx context.Context, u merge.Update) (View, error) {
	ctx = s.context(ctx)
	s.mu.Lock()
	if s.plan == nil {
		s.mu.Unlock()
		return View{}, services.Wrap(services.ErrValidation, "workflow", "apply update", "workflow has no plan yet", nil)
	}
	next, err := merge.Apply(s.plan, u)
	if err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	s.plan = next
	ids := assetIDs(next)
	s.mu.Unlock()

	s.registry.Ensure(ids...)
	logging.WithContext(ctx, s.mgr.logger).Info("plan updated", logging.String("update_kind", string(u.Kind())))
	s.commit(ctx, "plan_updated")
	return s.View(), nil
}

// Chat runs one advisory turn. Text, status, and error events are forwarded
// to emit as they arrive. A proposed update is merged before its event is
// forwarded; a rejected update is reported as a status event instead. The
// exchange is recorded in the chat history only when the turn succeeds.
func (s *Session) Chat(ctx context.Context, message string, emit func(advisory.Event) error) (advisory.TurnResult, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	ctx = services.WithOperation(s.context(ctx), "advise")
	logger := logging.WithContext(ctx, s.mgr.logger)

	s.mu.Lock()
	if s.plan == nil {
		s.mu.Unlock()
		return advisory.TurnResult{}, services.Wrap(services.ErrValidation, "workflow", "chat", "workflow has no plan yet", nil)
	}
	in := advisory.TurnInput{
		Message: message,
		History: append([]advisory.ChatTurn(nil), s.chat...),
		Plan:    s.plan.Clone(),
		Brand:   brandSummary(s.brief),
	}
	s.mu.Unlock()

	dispatcher := advisory.NewDispatcher().
		On(advisory.EventContentUpdate, func(ctx context.Context, ev advisory.Event) error {
			u, err := ev.Update()
			if err != nil {
				return emit(advisory.StatusEvent("the proposed change could not be read and was not applied"))
			}
			if _, err := s.ApplyUpdate(ctx, u); err != nil {
				if !errors.Is(err, services.ErrInvalidUpdate) {
					return err
				}
				logging.WarnWithContext(logger, "advisory update rejected", "advisory_update_rejected",
					logging.Error(err),
					logging.String("update_kind", string(u.Kind())),
					logging.String(logging.FieldImpact, "plan left unchanged"),
				)
				return emit(advisory.StatusEvent("the proposed change was not applied: " + rejectionReason(err)))
			}
			if err := emit(ev); err != nil {
				return err
			}
			return emit(advisory.StatusEvent("plan updated"))
		}).
		Otherwise(func(_ context.Context, ev advisory.Event) error {
			return emit(ev)
		})

	result, err := s.mgr.advisor.Turn(ctx, in, dispatcher.Emit(ctx))
	if err != nil {
		return result, err
	}

	s.mu.Lock()
	s.chat = append(s.chat,
		advisory.ChatTurn{Role: advisory.RoleUser, Content: strings.TrimSpace(message)},
		advisory.ChatTurn{Role: advisory.RoleAssistant, Content: result.Reply},
	)
	if limit := s.mgr.chatLimit; limit > 0 && len(s.chat) > limit {
		s.chat = append([]advisory.ChatTurn(nil), s.chat[len(s.chat)-limit:]...)
	}
	s.mu.Unlock()
	s.commit(ctx, "chat_turn")
	return result, nil
}

// commit persists the session best-effort and publishes the new view.
func (s *Session) commit(ctx context.Context, reason string) {
	if err := s.persist(ctx); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.mgr.logger), "workflow persist failed", "workflow_persist_failed",
			logging.Error(err),
			logging.String("reason", reason),
			logging.String(logging.FieldErrorHint, "check database permissions and free space"),
			logging.String(logging.FieldImpact, "in-memory session is ahead of the stored copy"),
		)
	}
	view := s.View()
	s.mgr.hub.Publish(Change{WorkflowID: view.ID, Reason: reason, View: view})
}

func (s *Session) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	record := s.record
	brief, current, defaults := s.brief, s.plan, s.defaults
	chat := append([]advisory.ChatTurn{}, s.chat...)
	s.mu.Unlock()

	var err error
	if record.BriefJSON, err = json.Marshal(brief); err != nil {
		return fmt.Errorf("encode brief: %w", err)
	}
	record.PlanJSON = nil
	if current != nil {
		if record.PlanJSON, err = plan.MarshalEnvelope(current); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
	}
	if record.DefaultsJSON, err = json.Marshal(defaults); err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	if record.SlotsJSON, err = json.Marshal(s.registry.Snapshot()); err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	if record.ChatJSON, err = json.Marshal(chat); err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	if err := s.mgr.store.UpdateWorkflow(ctx, &record); err != nil {
		return err
	}

	s.mu.Lock()
	s.record.Revision = record.Revision
	s.record.UpdatedAt = record.UpdatedAt
	s.mu.Unlock()
	return nil
}

// restore loads blobs from record into the session.
func (s *Session) restore(record *store.Workflow) error {
	var (
		brief    planner.Brief
		defaults assets.SessionDefaults
		slots    []assets.SlotSnapshot
		chat     []advisory.ChatTurn
		p        *plan.Plan
		err      error
	)
	if len(record.BriefJSON) > 0 {
		if err := json.Unmarshal(record.BriefJSON, &brief); err != nil {
			return fmt.Errorf("decode brief: %w", err)
		}
	}
	if len(record.PlanJSON) > 0 {
		if p, err = plan.UnmarshalEnvelope(record.PlanJSON); err != nil {
			return fmt.Errorf("decode plan: %w", err)
		}
	}
	if len(record.DefaultsJSON) > 0 {
		if err := json.Unmarshal(record.DefaultsJSON, &defaults); err != nil {
			return fmt.Errorf("decode defaults: %w", err)
		}
	}
	defaults.Normalize()
	if len(record.SlotsJSON) > 0 {
		if err := json.Unmarshal(record.SlotsJSON, &slots); err != nil {
			return fmt.Errorf("decode slots: %w", err)
		}
	}
	if len(record.ChatJSON) > 0 {
		if err := json.Unmarshal(record.ChatJSON, &chat); err != nil {
			return fmt.Errorf("decode chat: %w", err)
		}
	}

	s.registry.Restore(slots)
	s.registry.Ensure(assetIDs(p)...)
	s.mu.Lock()
	s.brief = brief
	s.plan = p
	s.defaults = defaults
	s.chat = chat
	s.mu.Unlock()
	return nil
}

// rejectionReason strips the marker and component prefix from a merge error.
func rejectionReason(err error) string {
	msg := strings.TrimPrefix(err.Error(), services.ErrInvalidUpdate.Error()+": ")
	return strings.TrimPrefix(msg, "merge: ")
}

func assetIDs(p *plan.Plan) []string {
	specs := p.AssetSpecs()
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		ids = append(ids, spec.ID)
	}
	return ids
}

// brandSummary renders the brief's brand context as a few plain lines for
// the advisor prompt.
func brandSummary(brief planner.Brief) string {
	b := brief.Brand
	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Business", b.BusinessName)
	add("Niche", b.Niche)
	add("Audience", b.Audience)
	add("Offer", b.Offer)
	add("Positioning", b.Positioning)
	add("Content pillars", strings.Join(b.Constraints().Pillars, ", "))
	add("Tone of voice", b.ToneOfVoice)
	add("Video format", brief.Format)
	add("Platform", brief.Platform)
	return strings.Join(lines, "\n")
}
