package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/specsmith/specsmith/pkg/forge"
	"github.com/specsmith/specsmith/pkg/runstore"
)

// wsEvent is one message on the pipeline stream.
type wsEvent struct {
	Type   string        `json:"type"` // "stage", "done", or "error"
	Stage  forge.Stage   `json:"stage,omitempty"`
	Output string        `json:"output,omitempty"`
	Run    *runstore.Run `json:"run,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// handlePipelineWS accepts a WebSocket connection, reads one pipeline input
// (screenshot bytes base64-encoded in the JSON), and streams a stage event as
// each pipeline stage completes, finishing with a done or error event
// carrying the persisted run.
func (s *Server) handlePipelineWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-host web page and CLI clients
	})
	if err != nil {
		s.log.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxUploadBytes)

	ctx := r.Context()

	var in forge.PipelineInput
	if err := wsjson.Read(ctx, conn, &in); err != nil {
		s.log.Debug("websocket read failed", "error", err)
		return
	}

	writeTimeout := func(ev wsEvent) error {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return wsjson.Write(wctx, conn, ev)
	}

	run, err := s.eng.RunPipeline(ctx, in, func(stage forge.Stage, output string) {
		if werr := writeTimeout(wsEvent{Type: "stage", Stage: stage, Output: output}); werr != nil {
			s.log.Debug("websocket write failed", "stage", stage, "error", werr)
		}
	})
	if err != nil {
		s.log.Error("pipeline failed", "run_id", run.ID, "error", err)
		_ = writeTimeout(wsEvent{Type: "error", Error: err.Error(), Run: &run})
		conn.Close(websocket.StatusInternalError, "pipeline failed")
		return
	}

	if werr := writeTimeout(wsEvent{Type: "done", Run: &run}); werr != nil {
		s.log.Debug("websocket write failed", "error", werr)
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
