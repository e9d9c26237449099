package httpd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/specsmith/specsmith/pkg/forge"
)

// maxUploadBytes bounds screenshot uploads.
const maxUploadBytes = 32 << 20

// readScreenshot pulls the optional "screenshot" file out of a multipart
// form. A missing file returns nil bytes and no error.
func readScreenshot(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	file, _, err := r.FormFile("screenshot")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// handleExtract runs OCR on an uploaded screenshot and returns the detected
// UI elements.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	screenshot, err := readScreenshot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	elements, err := s.eng.Scanner().ExtractElements(r.Context(), screenshot)
	if err != nil {
		s.log.Error("extract failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"elements": elements})
}

// handleUIModel extracts elements from an optional screenshot and generates
// the JSON UI data model. Multipart fields: user_story, summary, screenshot.
func (s *Server) handleUIModel(w http.ResponseWriter, r *http.Request) {
	screenshot, err := readScreenshot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	elements, err := s.eng.Scanner().ExtractElements(r.Context(), screenshot)
	if err != nil {
		s.log.Error("extract failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	uiModel, err := s.eng.Generator().UIModel(r.Context(), forge.UIModelRequest{
		UserStory: r.FormValue("user_story"),
		Summary:   r.FormValue("summary"),
		Elements:  elements,
	})
	if err != nil {
		s.log.Error("ui model failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"elements":      elements,
		"ui_data_model": uiModel,
	})
}

func (s *Server) handleGherkin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UIDataModel string `json:"ui_data_model"`
		UserStory   string `json:"user_story"`
		Summary     string `json:"summary"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	gherkin, err := s.eng.Generator().Gherkin(r.Context(), req.UIDataModel, req.UserStory, req.Summary)
	if err != nil {
		s.log.Error("gherkin failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"gherkin": gherkin})
}

func (s *Server) handleTestCases(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gherkin    string `json:"gherkin"`
		Platform   string `json:"platform"`
		Technology string `json:"technology"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	testCases, err := s.eng.Generator().TestCases(r.Context(), req.Gherkin, req.Platform, req.Technology)
	if err != nil {
		s.log.Error("test cases failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"test_cases": testCases})
}

func (s *Server) handleFeatureFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TestCases  string `json:"test_cases"`
		Platform   string `json:"platform"`
		StepFormat string `json:"step_definition_format"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	featureFile, err := s.eng.Generator().FeatureFile(r.Context(), req.TestCases, req.Platform, req.StepFormat)
	if err != nil {
		s.log.Error("feature file failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"feature_file": featureFile})
}

// handlePipeline runs the full pipeline synchronously from a multipart form
// and returns the persisted run record.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	screenshot, err := readScreenshot(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := forge.PipelineInput{
		UserStory:  r.FormValue("user_story"),
		Summary:    r.FormValue("summary"),
		Screenshot: screenshot,
		Platform:   r.FormValue("platform"),
		Technology: r.FormValue("technology"),
		StepFormat: r.FormValue("step_definition_format"),
	}

	run, err := s.eng.RunPipeline(r.Context(), in, nil)
	if err != nil {
		s.log.Error("pipeline failed", "run_id", run.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, run)
		return
	}

	writeJSON(w, http.StatusOK, run)
}
