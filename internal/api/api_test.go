package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptlab/internal/advisory"
	"scriptlab/internal/api"
	"scriptlab/internal/assets"
	"scriptlab/internal/config"
	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/planner"
	"scriptlab/internal/store"
	"scriptlab/internal/testsupport"
	"scriptlab/internal/workflow"
)

const (
	token   = "secret"
	account = "acct-1"
)

type fixture struct {
	cfg    *config.Config
	media  *testsupport.StaticMedia
	files  *media.Store
	logs   *logging.StreamHub
	server *httptest.Server
}

func newFixture(t *testing.T, text *testsupport.ScriptedText, stream *testsupport.ScriptedStream) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(token))
	st := testsupport.MustOpenStore(t, cfg)
	files, err := media.NewStore(cfg.Paths.MediaDir, cfg.MediaURL)
	require.NoError(t, err)

	gen := &testsupport.StaticMedia{}
	mgr := workflow.NewManager(st,
		planner.New(text, planner.WithCritique(false)),
		advisory.NewAdvisor(stream),
		gen,
		workflow.WithReleaser(assets.ReleaserFunc(func(ref assets.Reference) {
			_ = files.Remove(ref.LocalPath)
		})),
	)
	hub := logging.NewStreamHub(64)
	srv := api.New(cfg, mgr, files, api.WithHealthCheck(st), api.WithLogStream(hub))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{cfg: cfg, media: gen, files: files, logs: hub, server: ts}
}

func (f *fixture) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Account-ID", account)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) planned(t *testing.T) workflow.View {
	t.Helper()
	resp := f.request(t, http.MethodPost, "/api/workflows", api.CreateWorkflowRequest{Brief: testsupport.Brief(), Generate: true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[workflow.View](t, resp)
	require.Equal(t, store.StatusPlanned, view.Status)
	require.Len(t, view.Slots, 3)
	return view
}

func TestCreateWorkflowGeneratesPlan(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)
	assert.Equal(t, account, view.AccountID)
	assert.Len(t, view.Plan.HookVariations, 3)

	resp := f.request(t, http.MethodGet, "/api/workflows/"+view.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[workflow.View](t, resp)
	assert.Equal(t, view.ID, again.ID)

	list := decode[api.WorkflowListResponse](t, f.request(t, http.MethodGet, "/api/workflows", nil))
	require.Len(t, list.Workflows, 1)
	assert.Equal(t, "Three desk tools I use daily", list.Workflows[0].Title)
}

func TestCreateWorkflowReportsMalformedPlan(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText("no plan here"), testsupport.NewScriptedStream())
	resp := f.request(t, http.MethodPost, "/api/workflows", api.CreateWorkflowRequest{Brief: testsupport.Brief(), Generate: true})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "malformed_generation_output", body.Kind)
	assert.True(t, body.Retryable)
	assert.NotEmpty(t, body.WorkflowID)
}

func TestRequestsRequireToken(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream())
	resp, err := f.server.Client().Get(f.server.URL + "/api/workflows")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = f.server.Client().Get(f.server.URL + "/api/health?access_token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Database)
}

func TestRequestsRequireAccount(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream())
	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/workflows", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decode[api.ErrorResponse](t, resp).Kind)
}

func TestOtherAccountCannotSeeWorkflow(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/workflows/"+view.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Account-ID", "acct-2")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[api.ErrorResponse](t, resp).Kind)
}

func TestApplyUpdateRejectsBadShape(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)

	resp := f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/updates",
		`{"kind":"hooks","hook_variations":[{"category":"question","text":"Why?"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "invalid_update_shape", body.Kind)
	assert.False(t, body.Retryable)

	resp = f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/updates",
		`{"kind":"scene","index":1,"visual":"Notebook on a clean desk"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[workflow.View](t, resp)
	assert.Equal(t, "Notebook on a clean desk", updated.Plan.Scenes[1].Visual)
	assert.Equal(t, "The first one costs nothing.", updated.Plan.Scenes[1].Audio)
}

func TestGenerateSlotAndBulk(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)
	base := "/api/workflows/" + view.ID

	resp := f.request(t, http.MethodPost, base+"/slots/s1-image-desk/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slot := decode[api.SlotResponse](t, resp).Slot
	assert.Equal(t, assets.StateReady, slot.State)
	assert.Equal(t, "https://cdn.test/image/1", slot.Result.URL)

	resp = f.request(t, http.MethodPost, base+"/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[assets.BulkReport](t, resp)
	assert.Equal(t, []string{"s1-image-desk"}, report.Skipped)
	assert.ElementsMatch(t, []string{"s1-audio-music", "s2-video-notebook"}, report.Generated)
	assert.Equal(t, 3, f.media.Calls())

	resp = f.request(t, http.MethodPost, base+"/slots/missing/generate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerateSlotFailureMapsToBadGateway(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)
	f.media.Err = errors.New("provider down")

	resp := f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/slots/s1-image-desk/generate", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "asset_generation_failure", body.Kind)
	assert.True(t, body.Retryable)
}

func TestGenerateSceneRegenerates(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)
	base := "/api/workflows/" + view.ID + "/scenes/0/generate"

	resp := f.request(t, http.MethodPost, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[assets.BulkReport](t, resp).Generated, 2)

	resp = f.request(t, http.MethodPost, base, api.SceneGenerateRequest{Regenerate: true, Keyword: "neon"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[assets.BulkReport](t, resp).Generated, 2)
	assert.Contains(t, f.media.Requests[2].Prompt, "neon")

	resp = f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/scenes/9/generate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, path string, fields map[string]string, filename string, data []byte) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, filename, data)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Account-ID", account)
	req.Header.Set("Content-Type", contentType)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadResultServedFromMedia(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)

	resp := f.upload(t, "/api/workflows/"+view.ID+"/slots/s1-image-desk/upload", nil, "desk.png", []byte("png-bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slot := decode[api.SlotResponse](t, resp).Slot
	require.Equal(t, assets.StateReady, slot.State)
	assert.Equal(t, assets.ProvenanceUpload, slot.Result.Provenance)
	assert.Equal(t, "desk.png", slot.Result.Metadata["filename"])
	require.True(t, strings.HasPrefix(slot.Result.URL, "http://scriptlab.test/media/"))

	name := strings.TrimPrefix(slot.Result.URL, "http://scriptlab.test/media/")
	served, err := f.server.Client().Get(f.server.URL + "/media/" + name)
	require.NoError(t, err)
	defer served.Body.Close()
	require.Equal(t, http.StatusOK, served.StatusCode)
	data, err := io.ReadAll(served.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	resp = f.request(t, http.MethodDelete, "/api/workflows/"+view.ID+"/slots/s1-image-desk", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, assets.StateEmpty, decode[api.SlotResponse](t, resp).Slot.State)
}

func TestAttachReferenceSteersGeneration(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)
	base := "/api/workflows/" + view.ID + "/slots/s1-image-desk"

	resp := f.upload(t, base+"/references", map[string]string{"medium": "image"}, "face.jpg", []byte("jpeg"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	uploaded := decode[api.ReferenceResponse](t, resp).Reference
	assert.True(t, uploaded.Temporary)
	require.FileExists(t, uploaded.LocalPath)

	resp = f.request(t, http.MethodPost, base+"/references", api.AttachReferenceRequest{ID: "brand", URL: "https://cdn.test/brand.png", Medium: "image"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.request(t, http.MethodDelete, base+"/references/brand", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.request(t, http.MethodPost, base+"/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.media.Requests, 1)
	assert.Equal(t, []string{uploaded.URL}, f.media.Requests[0].ReferenceURLs)
	assert.NoFileExists(t, uploaded.LocalPath)
}

func TestSetDefaultsValidates(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)

	resp := f.request(t, http.MethodPut, "/api/workflows/"+view.ID+"/defaults", assets.SessionDefaults{
		Face: assets.Selector{Mode: assets.SelectCustom},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodPut, "/api/account/creator", assets.CreatorAssets{
		Face: &assets.Reference{URL: "https://cdn.test/me.png"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, http.MethodPut, "/api/workflows/"+view.ID+"/defaults", assets.SessionDefaults{
		Face: assets.Selector{Mode: assets.SelectCreator},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[assets.SessionDefaults](t, resp)
	assert.Equal(t, assets.SelectCreator, saved.Face.Mode)
}

func TestChatStreamsEvents(t *testing.T) {
	reply := "Lead with the payoff.\n```content_update\n{\"kind\":\"scene\",\"index\":0,\"audio\":\"I saved ten hours last week.\"}\n```"
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream(reply))
	view := f.planned(t)

	resp := f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/chat", api.ChatRequest{Message: "Punchier opening"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var (
		text  strings.Builder
		types []advisory.EventType
	)
	err := advisory.ReadEvents(resp.Body, func(ev advisory.Event) error {
		types = append(types, ev.Type)
		if ev.Type == advisory.EventText {
			text.WriteString(ev.Text())
		}
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, text.String(), "Lead with the payoff.")
	assert.Contains(t, types, advisory.EventContentUpdate)
	assert.Equal(t, advisory.EventStatus, types[len(types)-1])

	after := decode[workflow.View](t, f.request(t, http.MethodGet, "/api/workflows/"+view.ID, nil))
	assert.Equal(t, "I saved ten hours last week.", after.Plan.Scenes[0].Audio)
	assert.Len(t, after.Chat, 2)
}

func TestChatWithoutPlanReturnsJSONError(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream())
	resp := f.request(t, http.MethodPost, "/api/workflows", api.CreateWorkflowRequest{Brief: testsupport.Brief()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[workflow.View](t, resp)

	resp = f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/chat", api.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decode[api.ErrorResponse](t, resp).Kind)
}

func TestLiveSocketPushesChanges(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream())
	view := f.planned(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/workflows/" + view.ID + "/live?access_token=" + token + "&account_id=" + account
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first workflow.Change
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Reason)
	assert.Equal(t, view.ID, first.View.ID)

	resp := f.request(t, http.MethodPost, "/api/workflows/"+view.ID+"/slots/s1-image-desk/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next workflow.Change
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, view.ID, next.WorkflowID)
	assert.NotEqual(t, "snapshot", next.Reason)
}

func TestLogsFilterByWorkflow(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream())
	f.logs.Publish(logging.LogEvent{Message: "one", Component: "workflow", WorkflowID: "wf-1"})
	f.logs.Publish(logging.LogEvent{Message: "two", Component: "assets", WorkflowID: "wf-2"})
	f.logs.Publish(logging.LogEvent{Message: "three", Component: "workflow", WorkflowID: "wf-1"})

	resp := f.request(t, http.MethodGet, "/api/logs?workflow=wf-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[api.LogStreamResponse](t, resp)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "three", page.Events[1].Message)
	assert.Equal(t, uint64(3), page.Next)

	resp = f.request(t, http.MethodGet, "/api/logs?tail=1&limit=1", nil)
	page = decode[api.LogStreamResponse](t, resp)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "three", page.Events[0].Message)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	f := newFixture(t, testsupport.NewScriptedText(), testsupport.NewScriptedStream())
	resp := f.request(t, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[api.ErrorResponse](t, resp).Kind)
}

func TestClientRoundTrip(t *testing.T) {
	reply := "Try a question hook.\n```content_update\n{\"kind\":\"scene\",\"index\":1,\"visual\":\"Notebook in sunlight\"}\n```"
	f := newFixture(t, testsupport.NewScriptedText(testsupport.PlanReply), testsupport.NewScriptedStream(reply))
	client := api.NewClient(f.server.URL, token, account)
	ctx := context.Background()

	require.NoError(t, client.WaitHealthy(ctx, time.Second))
	view, err := client.CreateWorkflow(ctx, api.CreateWorkflowRequest{Brief: testsupport.Brief(), Generate: true})
	require.NoError(t, err)
	require.NotNil(t, view.Plan)

	var updates int
	require.NoError(t, client.Chat(ctx, view.ID, "Better visuals?", func(ev advisory.Event) error {
		if ev.Type == advisory.EventContentUpdate {
			updates++
		}
		return nil
	}))
	assert.Equal(t, 1, updates)

	again, err := client.GetWorkflow(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notebook in sunlight", again.Plan.Scenes[1].Visual)

	_, err = client.GetWorkflow(ctx, "missing")
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Body.Kind)
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7480", api.BaseURLFor(":7480"))
	assert.Equal(t, "http://127.0.0.1:7480", api.BaseURLFor("0.0.0.0:7480"))
	assert.Equal(t, "http://studio.lan:80", api.BaseURLFor("studio.lan:80"))
	assert.Equal(t, "https://x.test", api.BaseURLFor("https://x.test"))
}
