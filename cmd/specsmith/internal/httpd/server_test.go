package httpd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsmith/specsmith/pkg/chats/chat"
	"github.com/specsmith/specsmith/pkg/chats/message"
	"github.com/specsmith/specsmith/pkg/chats/role"
	"github.com/specsmith/specsmith/pkg/engine"
	"github.com/specsmith/specsmith/pkg/modeladapter"
	"github.com/specsmith/specsmith/pkg/modeladapter/usage"
	"github.com/specsmith/specsmith/pkg/runstore"
)

// fakeCompleter replays canned responses in order.
type fakeCompleter struct {
	responses []string
	errAt     int // 1-based call index that fails; 0 = never
	calls     int
	tracker   usage.Tracker
}

func (f *fakeCompleter) Complete(_ context.Context, _ *chat.Chat) (message.Message, error) {
	f.calls++
	if f.errAt > 0 && f.calls == f.errAt {
		return message.Message{}, errors.New("model unavailable")
	}

	f.tracker.Add(usage.TokenCount{InputTokens: 10, OutputTokens: 5})

	resp := "output " + string(rune('0'+f.calls))
	if f.calls <= len(f.responses) {
		resp = f.responses[f.calls-1]
	}
	return message.NewText("model", role.Assistant, resp), nil
}

func (f *fakeCompleter) UsageTracker() *usage.Tracker { return &f.tracker }
func (f *fakeCompleter) ModelMaxTokens() int          { return 4096 }

func newTestServer(t *testing.T) (*httptest.Server, *fakeCompleter) {
	t.Helper()

	fake := &fakeCompleter{}
	engine.RegisterProvider("fake-"+t.Name(), func(engine.ProviderConfig) (modeladapter.Completer, error) {
		return fake, nil
	})

	cfg := engine.DefaultConfig()
	cfg.Provider.Kind = "fake-" + t.Name()
	cfg.Provider.APIKey = "sk-test"
	cfg.Storage.ModelDir = t.TempDir()
	cfg.Storage.RunsDir = ""

	eng, err := engine.New(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(New(eng, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(ts.Close)

	return ts, fake
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// multipartBody builds a multipart form with the given text fields.
func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIndexPage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Specsmith")
}

func TestUsage(t *testing.T) {
	ts, fake := newTestServer(t)

	fake.tracker.Add(usage.TokenCount{InputTokens: 100, OutputTokens: 40})

	resp, err := http.Get(ts.URL + "/api/usage")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]int
	decodeBody(t, resp, &body)
	assert.Equal(t, 100, body["input_tokens"])
	assert.Equal(t, 40, body["output_tokens"])
	assert.Equal(t, 140, body["total_tokens"])
}

func TestExtract_NoScreenshot(t *testing.T) {
	ts, _ := newTestServer(t)

	buf, contentType := multipartBody(t, nil)
	resp, err := http.Post(ts.URL+"/api/extract", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Elements []any `json:"elements"`
	}
	decodeBody(t, resp, &body)
	assert.Empty(t, body.Elements)
}

func TestExtract_NotMultipart(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/extract", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body["error"])
}

func TestUIModel(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{`{"screen": "Login"}`}

	buf, contentType := multipartBody(t, map[string]string{
		"user_story": "As a user I want to log in",
		"summary":    "Login screen",
	})
	resp, err := http.Post(ts.URL+"/api/ui-model", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		UIDataModel string `json:"ui_data_model"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, `{"screen": "Login"}`, body.UIDataModel)
	assert.Equal(t, 1, fake.calls)
}

func TestGherkin(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{"Feature: login"}

	resp := postJSON(t, ts.URL+"/api/gherkin", map[string]string{
		"ui_data_model": `{"screen": "Login"}`,
		"user_story":    "As a user I want to log in",
		"summary":       "Login screen",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Feature: login", body["gherkin"])
}

func TestGherkin_BadJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/gherkin", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "decode request")
}

func TestGherkin_ProviderError(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.errAt = 1

	resp := postJSON(t, ts.URL+"/api/gherkin", map[string]string{"ui_data_model": "{}"})

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "model unavailable")
}

func TestTestCases(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{"TC-1: valid login"}

	resp := postJSON(t, ts.URL+"/api/test-cases", map[string]string{
		"gherkin":    "Feature: login",
		"platform":   "Web",
		"technology": "Selenium",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "TC-1: valid login", body["test_cases"])
}

func TestFeatureFile(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{"Feature: login\n  Scenario: valid login"}

	resp := postJSON(t, ts.URL+"/api/feature-file", map[string]string{
		"test_cases":             "TC-1: valid login",
		"platform":               "Web",
		"step_definition_format": "Cucumber",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["feature_file"], "Scenario: valid login")
}

func TestPipeline(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{`{"screen": "Login"}`, "Feature: login", "TC-1", "Feature file"}

	buf, contentType := multipartBody(t, map[string]string{
		"user_story": "As a user I want to log in",
		"summary":    "Login screen",
		"platform":   "Web",
	})
	resp, err := http.Post(ts.URL+"/api/pipeline", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var run runstore.Run
	decodeBody(t, resp, &run)
	assert.Equal(t, runstore.StatusCompleted, run.Status)
	require.NotNil(t, run.Outcome)
	assert.Equal(t, "Feature file", run.Outcome.FeatureFile)
	assert.Equal(t, 4, fake.calls)

	// The run is listed and retrievable.
	listResp, err := http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	defer listResp.Body.Close()

	var list struct {
		Runs []runstore.Run `json:"runs"`
	}
	decodeBody(t, listResp, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.ID, list.Runs[0].ID)

	getResp, err := http.Get(ts.URL + "/api/runs/" + run.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestPipeline_StageFailure(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.errAt = 2

	buf, contentType := multipartBody(t, map[string]string{"user_story": "story"})
	resp, err := http.Post(ts.URL+"/api/pipeline", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var run runstore.Run
	decodeBody(t, resp, &run)
	assert.Equal(t, runstore.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "model unavailable")
	// The stages completed before the failure are still returned.
	require.NotNil(t, run.Outcome)
	assert.NotEmpty(t, run.Outcome.UIModel)
	assert.Empty(t, run.Outcome.Gherkin)
}

func TestGetRun_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteRun(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{"a", "b", "c", "d"}

	buf, contentType := multipartBody(t, map[string]string{"user_story": "story"})
	resp, err := http.Post(ts.URL+"/api/pipeline", contentType, buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var run runstore.Run
	decodeBody(t, resp, &run)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/runs/"+run.ID, nil)
	require.NoError(t, err)

	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/runs/" + run.ID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}
