package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"scriptlab/internal/advisory"
	"scriptlab/internal/assets"
	"scriptlab/internal/merge"
	"scriptlab/internal/notifications"
	"scriptlab/internal/planner"
	"scriptlab/internal/services"
	"scriptlab/internal/store"
	"scriptlab/internal/testsupport"
	"scriptlab/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const account = "acct-1"

type harness struct {
	st     *store.Store
	text   *testsupport.ScriptedText
	stream *testsupport.ScriptedStream
	media  *testsupport.StaticMedia
	mgr    *workflow.Manager
}

func newHarness(t *testing.T, text *testsupport.ScriptedText, stream *testsupport.ScriptedStream) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		st:     testsupport.MustOpenStore(t, cfg),
		text:   text,
		stream: stream,
		media:  &testsupport.StaticMedia{},
	}
	h.mgr = h.manager()
	return h
}

// manager builds a fresh manager over the same store, simulating a restart.
func (h *harness) manager() *workflow.Manager {
	return workflow.NewManager(h.st, planner.New(h.text, planner.WithCritique(false)), advisory.NewAdvisor(h.stream), h.media)
}

func (h *harness) planned(t *testing.T) *workflow.Session {
	t.Helper()
	ctx := context.Background()
	s, err := h.mgr.Create(ctx, account, testsupport.Brief())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.GeneratePlan(ctx); err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	return s
}

func TestGeneratePlanInstallsSlotsAndPersists(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)

	view := s.View()
	if view.Status != store.StatusPlanned {
		t.Fatalf("status = %q", view.Status)
	}
	if len(view.Plan.Scenes) != 2 {
		t.Fatalf("scenes = %d", len(view.Plan.Scenes))
	}
	want := []string{"s1-image-desk", "s1-audio-music", "s2-video-notebook"}
	if len(view.Slots) != len(want) {
		t.Fatalf("slots = %+v", view.Slots)
	}
	for i, slot := range view.Slots {
		if slot.ID != want[i] || slot.State != assets.StateEmpty {
			t.Fatalf("slot %d = %+v", i, slot)
		}
	}

	reopened, err := h.manager().Open(context.Background(), account, s.ID())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	again := reopened.View()
	if again.Status != store.StatusPlanned || len(again.Slots) != 3 {
		t.Fatalf("reloaded view = %+v", again)
	}
	if again.Brief.Idea != testsupport.Brief().Idea {
		t.Fatalf("brief not restored: %+v", again.Brief)
	}
}

func TestGeneratePlanFailureMarksWorkflow(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText("I cannot help with that."), testsupport.NewScriptedStream())
	ctx := context.Background()
	s, err := h.mgr.Create(ctx, account, testsupport.Brief())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	view, err := s.GeneratePlan(ctx)
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}
	if view.Status != store.StatusPlanFailed || view.Plan != nil || view.Error == "" {
		t.Fatalf("view = %+v", view)
	}
	stored, err := h.st.GetWorkflow(ctx, s.ID())
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if stored.Status != store.StatusPlanFailed {
		t.Fatalf("stored status = %q", stored.Status)
	}
}

type published struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	events chan published
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.events <- published{event: event, payload: payload}
	return nil
}

func (n *recordingNotifier) next(t *testing.T) published {
	t.Helper()
	select {
	case p := <-n.events:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return published{}
	}
}

func TestMilestonesAreNotified(t *testing.T) {
	text := testsupport.NewScriptedText("not a plan", testsupport.PlanReply)
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{events: make(chan published, 4)}
	gen := &testsupport.StaticMedia{}
	mgr := workflow.NewManager(st, planner.New(text, planner.WithCritique(false)), advisory.NewAdvisor(testsupport.NewScriptedStream()), gen,
		workflow.WithNotifier(notifier),
	)
	ctx := context.Background()
	s, err := mgr.Create(ctx, account, testsupport.Brief())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.GeneratePlan(ctx); err == nil {
		t.Fatal("expected first plan attempt to fail")
	}
	failed := notifier.next(t)
	if failed.event != notifications.EventPlanFailed || failed.payload["error"] == "" {
		t.Fatalf("unexpected notification %+v", failed)
	}

	if _, err := s.GeneratePlan(ctx); err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	ready := notifier.next(t)
	if ready.event != notifications.EventPlanReady || ready.payload["scenes"] != 2 || ready.payload["assets"] != 3 {
		t.Fatalf("unexpected notification %+v", ready)
	}
	if ready.payload["title"] != s.View().Title {
		t.Fatalf("title = %v, want %q", ready.payload["title"], s.View().Title)
	}

	if _, err := s.GenerateAll(ctx); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	bulk := notifier.next(t)
	if bulk.event != notifications.EventAssetsGenerated || bulk.payload["generated"] != 3 || bulk.payload["failed"] != 0 {
		t.Fatalf("unexpected notification %+v", bulk)
	}
}

func TestCreateRejectsInvalidBrief(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream())
	_, err := h.mgr.Create(context.Background(), account, planner.Brief{Idea: "x", Format: "opera"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateAllSkipsReadySlots(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	ctx := context.Background()

	report, err := s.GenerateAll(ctx)
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(report.Generated) != 3 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}
	report, err = s.GenerateAll(ctx)
	if err != nil {
		t.Fatalf("second GenerateAll: %v", err)
	}
	if len(report.Generated) != 0 || len(report.Skipped) != 3 {
		t.Fatalf("second report = %+v", report)
	}
	if h.media.Calls() != 3 {
		t.Fatalf("provider calls = %d", h.media.Calls())
	}

	reopened, err := h.manager().Open(ctx, account, s.ID())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, slot := range reopened.View().Slots {
		if slot.State != assets.StateReady || slot.Result == nil {
			t.Fatalf("slot not restored as ready: %+v", slot)
		}
	}
}

func TestSlotOperationsRequirePlanAsset(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	ctx := context.Background()

	if _, err := s.GenerateSlot(ctx, "s9-image-nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("GenerateSlot unknown: %v", err)
	}
	if _, err := s.AttachReference(ctx, "s9-image-nope", assets.Reference{URL: "https://x"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("AttachReference unknown: %v", err)
	}
	if _, err := s.GenerateScene(ctx, 5, nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("GenerateScene out of range: %v", err)
	}
}

func TestCreatorDefaultsSteerGeneration(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	ctx := context.Background()

	if _, err := h.mgr.SetCreator(ctx, account, assets.CreatorAssets{
		Face: &assets.Reference{URL: "https://cdn.test/face.png"},
	}); err != nil {
		t.Fatalf("SetCreator: %v", err)
	}
	if _, err := s.SetDefaults(ctx, assets.SessionDefaults{Face: assets.Selector{Mode: assets.SelectCreator}}); err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}
	if _, err := s.GenerateSlot(ctx, "s1-image-desk"); err != nil {
		t.Fatalf("GenerateSlot: %v", err)
	}
	req := h.media.Requests[0]
	if len(req.ReferenceURLs) != 1 || req.ReferenceURLs[0] != "https://cdn.test/face.png" {
		t.Fatalf("reference urls = %v", req.ReferenceURLs)
	}

	// Slot references win over defaults.
	if _, err := s.AttachReference(ctx, "s1-image-desk", assets.Reference{URL: "https://cdn.test/mine.png"}); err != nil {
		t.Fatalf("AttachReference: %v", err)
	}
	if _, err := s.GenerateSlot(ctx, "s1-image-desk"); err != nil {
		t.Fatalf("GenerateSlot: %v", err)
	}
	if got := h.media.Requests[1].ReferenceURLs; len(got) != 1 || got[0] != "https://cdn.test/mine.png" {
		t.Fatalf("reference urls = %v", got)
	}
}

func TestSetDefaultsRejectsCustomWithoutReference(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	_, err := s.SetDefaults(context.Background(), assets.SessionDefaults{Voice: assets.Selector{Mode: assets.SelectCustom}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadThenClear(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	ctx := context.Background()

	view, err := s.UploadResult(ctx, "s2-video-notebook", "/media/clip.mp4", map[string]string{"filename": "clip.mp4"})
	if err != nil {
		t.Fatalf("UploadResult: %v", err)
	}
	if view.State != assets.StateReady || view.Result.Provenance != assets.ProvenanceUpload {
		t.Fatalf("view = %+v", view)
	}
	view, err = s.ClearSlot(ctx, "s2-video-notebook")
	if err != nil {
		t.Fatalf("ClearSlot: %v", err)
	}
	if view.State != assets.StateEmpty {
		t.Fatalf("state after clear = %q", view.State)
	}
}

func TestChatAppliesContentUpdate(t *testing.T) {
	reply := "Lead with the payoff instead.\n```content_update\n{\"kind\":\"scene\",\"index\":0,\"audio\":\"I saved ten hours last week.\"}\n```"
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream(reply))
	s := h.planned(t)

	var events []advisory.Event
	result, err := s.Chat(context.Background(), "Make the opening punchier", func(ev advisory.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Update == nil || result.Update.Kind() != merge.KindScene {
		t.Fatalf("update = %#v", result.Update)
	}

	view := s.View()
	if got := view.Plan.Scenes[0].Audio; got != "I saved ten hours last week." {
		t.Fatalf("scene 0 audio = %q", got)
	}
	if view.Plan.Scenes[0].Visual != "Creator at a cluttered desk" {
		t.Fatalf("visual changed: %q", view.Plan.Scenes[0].Visual)
	}
	if len(view.Chat) != 2 || view.Chat[0].Role != advisory.RoleUser || view.Chat[1].Content != "Lead with the payoff instead." {
		t.Fatalf("chat = %+v", view.Chat)
	}

	var sawUpdate, sawApplied bool
	for _, ev := range events {
		switch {
		case ev.Type == advisory.EventContentUpdate:
			sawUpdate = true
		case ev.Type == advisory.EventStatus && ev.Text() == "plan updated":
			if !sawUpdate {
				t.Fatal("status arrived before content_update")
			}
			sawApplied = true
		}
	}
	if !sawUpdate || !sawApplied {
		t.Fatalf("events = %+v", events)
	}
}

func TestChatRejectedUpdateLeavesPlan(t *testing.T) {
	reply := "New hooks below.\n```content_update\n{\"kind\":\"hooks\",\"hook_variations\":[{\"category\":\"question\",\"text\":\"Why?\"}]}\n```"
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream(reply))
	s := h.planned(t)
	before := s.View().Plan

	var statuses []string
	_, err := s.Chat(context.Background(), "Rewrite the hooks", func(ev advisory.Event) error {
		if ev.Type == advisory.EventContentUpdate {
			t.Fatal("rejected update must not be forwarded")
		}
		if ev.Type == advisory.EventStatus {
			statuses = append(statuses, ev.Text())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	after := s.View().Plan
	if len(after.HookVariations) != len(before.HookVariations) || after.HookVariations[0] != before.HookVariations[0] {
		t.Fatalf("hooks changed: %+v", after.HookVariations)
	}
	found := false
	for _, status := range statuses {
		if strings.HasPrefix(status, "the proposed change was not applied") {
			found = true
		}
	}
	if !found {
		t.Fatalf("statuses = %v", statuses)
	}
}

func TestChatRequiresPlan(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream("hi"))
	s, err := h.mgr.Create(context.Background(), account, testsupport.Brief())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = s.Chat(context.Background(), "hello", func(advisory.Event) error { return nil })
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyUpdateEnsuresNewSlots(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	ctx := context.Background()

	if _, err := s.GenerateSlot(ctx, "s1-image-desk"); err != nil {
		t.Fatalf("GenerateSlot: %v", err)
	}
	view, err := s.ApplyUpdate(ctx, merge.FullScriptUpdate{Scenes: []merge.SceneUpdate{
		{Visual: "Desk", Audio: "Line one"},
		{Visual: "Notebook", Audio: "Line two"},
		{Visual: "Outro", Audio: "Follow for more", Assets: nil},
	}})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if len(view.Plan.Scenes) != 3 {
		t.Fatalf("scenes = %d", len(view.Plan.Scenes))
	}
	slot, err := s.Slot("s1-image-desk")
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if slot.State != assets.StateReady {
		t.Fatalf("carried slot lost its result: %+v", slot)
	}
}

func TestOpenHidesOtherAccounts(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	ctx := context.Background()

	if _, err := h.mgr.Open(ctx, "someone-else", s.ID()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("cached Open: %v", err)
	}
	if _, err := h.manager().Open(ctx, "someone-else", s.ID()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("stored Open: %v", err)
	}
	list, err := h.mgr.List(ctx, account, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != s.ID() || list[0].Title != "Three desk tools I use daily" {
		t.Fatalf("list = %+v", list)
	}
	if err := h.mgr.Delete(ctx, account, s.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.mgr.Open(ctx, account, s.ID()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Open after delete: %v", err)
	}
}

func TestSubscribersReceiveChanges(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	s := h.planned(t)
	sub := h.mgr.Broadcaster().Subscribe(s.ID())
	defer sub.Close()

	if _, err := s.SetDefaults(context.Background(), assets.SessionDefaults{}); err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}
	select {
	case change := <-sub.Changes:
		if change.Reason != "defaults_updated" || change.View.ID != s.ID() {
			t.Fatalf("change = %+v", change)
		}
		if change.View.Defaults.Face.Mode != assets.SelectNone {
			t.Fatalf("defaults = %+v", change.View.Defaults)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestBroadcasterDropsOldestForSlowSubscriber(t *testing.T) {
	b := workflow.NewBroadcaster(2, nil)
	sub := b.Subscribe("wf")
	for _, reason := range []string{"a", "b", "c"} {
		b.Publish(workflow.Change{WorkflowID: "wf", Reason: reason})
	}
	b.Publish(workflow.Change{WorkflowID: "other", Reason: "x"})

	var got []string
	for range 2 {
		got = append(got, (<-sub.Changes).Reason)
	}
	if strings.Join(got, ",") != "b,c" {
		t.Fatalf("delivered %v", got)
	}
	sub.Close()
	sub.Close()
	if _, ok := <-sub.Changes; ok {
		t.Fatal("channel still open after Close")
	}
	if b.Subscribers("wf") != 0 {
		t.Fatalf("subscribers = %d", b.Subscribers("wf"))
	}
}

func (h *harness) steppedSession(t *testing.T, gen *testsupport.SteppedMedia) *workflow.Session {
	t.Helper()
	mgr := workflow.NewManager(h.st, planner.New(h.text, planner.WithCritique(false)), advisory.NewAdvisor(h.stream), gen)
	s, err := mgr.Create(context.Background(), account, testsupport.Brief())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.GeneratePlan(context.Background()); err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	return s
}

func TestReplanWithChangedPromptDiscardsInFlightResult(t *testing.T) {
	changed := strings.Replace(testsupport.PlanReply, "messy desk flat lay", "minimal desk flat lay", 1)
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply, changed), testsupport.NewScriptedStream())
	gen := testsupport.NewSteppedMedia(2)
	s := h.steppedSession(t, gen)
	ctx := context.Background()
	const slotID = "s1-image-desk"

	first := make(chan error, 1)
	go func() {
		_, err := s.GenerateSlot(ctx, slotID)
		first <- err
	}()
	releaseFirst := <-gen.Started

	if _, err := s.GeneratePlan(ctx); err != nil {
		t.Fatalf("replan: %v", err)
	}

	second := make(chan error, 1)
	go func() {
		_, err := s.GenerateSlot(ctx, slotID)
		second <- err
	}()
	releaseSecond := <-gen.Started

	close(releaseFirst)
	if err := <-first; err != nil {
		t.Fatalf("superseded generation surfaced an error: %v", err)
	}
	slot, err := s.Slot(slotID)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if slot.Result != nil || !slot.InFlight {
		t.Fatalf("slot after superseded completion = %+v", slot)
	}

	close(releaseSecond)
	if err := <-second; err != nil {
		t.Fatalf("second generation: %v", err)
	}
	slot, _ = s.Slot(slotID)
	if slot.Result == nil || slot.Result.URL != "https://cdn.test/step/2" || slot.InFlight {
		t.Fatalf("slot after current completion = %+v", slot)
	}
}

func TestReplanWithSamePromptKeepsInFlightGeneration(t *testing.T) {
	h := newHarness(t, testsupport.NewScriptedText(testsupport.PlanReply, testsupport.PlanReply), testsupport.NewScriptedStream())
	gen := testsupport.NewSteppedMedia(1)
	s := h.steppedSession(t, gen)
	ctx := context.Background()
	const slotID = "s1-image-desk"

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateSlot(ctx, slotID)
		done <- err
	}()
	release := <-gen.Started

	if _, err := s.GeneratePlan(ctx); err != nil {
		t.Fatalf("replan: %v", err)
	}
	if _, err := s.GenerateSlot(ctx, slotID); !errors.Is(err, services.ErrSlotBusy) {
		t.Fatalf("expected slot busy after replan, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("GenerateSlot: %v", err)
	}
	slot, err := s.Slot(slotID)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if slot.Result == nil || slot.Result.URL != "https://cdn.test/step/1" || slot.InFlight {
		t.Fatalf("slot after completion = %+v", slot)
	}
}
