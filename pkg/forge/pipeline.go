package forge

import (
	"context"

	"github.com/specsmith/specsmith/pkg/uiscan"
)

// Stage identifies one step of the generation pipeline.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageUIModel     Stage = "ui_model"
	StageGherkin     Stage = "gherkin"
	StageTestCases   Stage = "test_cases"
	StageFeatureFile Stage = "feature_file"
)

// PipelineInput carries everything the full pipeline needs.
type PipelineInput struct {
	UserStory  string `json:"user_story"`
	Summary    string `json:"summary"`
	Screenshot []byte `json:"screenshot,omitempty"`
	Platform   string `json:"platform"`
	Technology string `json:"technology"`
	StepFormat string `json:"step_definition_format"`
}

// Outcome holds the artifacts produced by a full pipeline run.
type Outcome struct {
	Elements    []uiscan.Element `json:"elements"`
	UIModel     string           `json:"ui_data_model"`
	Gherkin     string           `json:"gherkin"`
	TestCases   string           `json:"test_cases"`
	FeatureFile string           `json:"feature_file"`
}

// StageFunc is invoked after each stage completes, with the stage name and
// its textual output (empty for the extract stage).
type StageFunc func(stage Stage, output string)

// Pipeline chains screenshot scanning and all four generation stages.
type Pipeline struct {
	scanner *uiscan.Scanner
	gen     *Generator
}

// NewPipeline wires a scanner and a generator into a pipeline.
func NewPipeline(scanner *uiscan.Scanner, gen *Generator) *Pipeline {
	return &Pipeline{scanner: scanner, gen: gen}
}

// Run executes extract, UI model, Gherkin, test cases, and feature file in
// order. onStage may be nil. The first stage error aborts the run; the
// Outcome holds whatever the completed stages produced, so callers keep the
// artifacts already paid for.
func (p *Pipeline) Run(ctx context.Context, in PipelineInput, onStage StageFunc) (*Outcome, error) {
	notify := func(stage Stage, output string) {
		if onStage != nil {
			onStage(stage, output)
		}
	}

	out := &Outcome{}

	elements, err := p.scanner.ExtractElements(ctx, in.Screenshot)
	if err != nil {
		return out, err
	}
	out.Elements = elements
	notify(StageExtract, "")

	out.UIModel, err = p.gen.UIModel(ctx, UIModelRequest{
		UserStory: in.UserStory,
		Summary:   in.Summary,
		Elements:  elements,
	})
	if err != nil {
		return out, err
	}
	notify(StageUIModel, out.UIModel)

	out.Gherkin, err = p.gen.Gherkin(ctx, out.UIModel, in.UserStory, in.Summary)
	if err != nil {
		return out, err
	}
	notify(StageGherkin, out.Gherkin)

	out.TestCases, err = p.gen.TestCases(ctx, out.Gherkin, in.Platform, in.Technology)
	if err != nil {
		return out, err
	}
	notify(StageTestCases, out.TestCases)

	out.FeatureFile, err = p.gen.FeatureFile(ctx, out.TestCases, in.Platform, in.StepFormat)
	if err != nil {
		return out, err
	}
	notify(StageFeatureFile, out.FeatureFile)

	return out, nil
}
