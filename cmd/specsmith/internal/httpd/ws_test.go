package httpd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsmith/specsmith/pkg/forge"
	"github.com/specsmith/specsmith/pkg/runstore"
)

func dialPipeline(t *testing.T, url string) (*websocket.Conn, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws/pipeline"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	return conn, ctx
}

func TestPipelineWS(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.responses = []string{`{"screen": "Login"}`, "Feature: login", "TC-1", "Feature file"}

	conn, ctx := dialPipeline(t, ts.URL)

	in := forge.PipelineInput{
		UserStory: "As a user I want to log in",
		Summary:   "Login screen",
		Platform:  "Web",
	}
	require.NoError(t, wsjson.Write(ctx, conn, in))

	var (
		stages []forge.Stage
		done   *wsEvent
	)
	for done == nil {
		var ev wsEvent
		require.NoError(t, wsjson.Read(ctx, conn, &ev))

		switch ev.Type {
		case "stage":
			stages = append(stages, ev.Stage)
		case "done":
			done = &ev
		default:
			t.Fatalf("unexpected event type %q (error: %s)", ev.Type, ev.Error)
		}
	}

	assert.Equal(t, []forge.Stage{
		forge.StageExtract, forge.StageUIModel, forge.StageGherkin,
		forge.StageTestCases, forge.StageFeatureFile,
	}, stages)

	require.NotNil(t, done.Run)
	assert.Equal(t, runstore.StatusCompleted, done.Run.Status)
	require.NotNil(t, done.Run.Outcome)
	assert.Equal(t, "Feature file", done.Run.Outcome.FeatureFile)
}

func TestPipelineWS_StageFailure(t *testing.T) {
	ts, fake := newTestServer(t)
	fake.errAt = 1

	conn, ctx := dialPipeline(t, ts.URL)

	require.NoError(t, wsjson.Write(ctx, conn, forge.PipelineInput{UserStory: "story"}))

	var last wsEvent
	for {
		var ev wsEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			break
		}
		last = ev
		if ev.Type == "error" || ev.Type == "done" {
			break
		}
	}

	assert.Equal(t, "error", last.Type)
	assert.Contains(t, last.Error, "model unavailable")
	require.NotNil(t, last.Run)
	assert.Equal(t, runstore.StatusFailed, last.Run.Status)
}
