// Package engine is the composition root that assembles the generation
// service from configuration: the LLM provider, the OCR scanner, the artifact
// generator, model storage, and the run store.
package engine

import (
	"context"
	"fmt"

	"github.com/specsmith/specsmith/pkg/forge"
	"github.com/specsmith/specsmith/pkg/modeladapter"
	"github.com/specsmith/specsmith/pkg/modeladapter/usage"
	"github.com/specsmith/specsmith/pkg/modelstore"
	"github.com/specsmith/specsmith/pkg/ocr/tesseract"
	"github.com/specsmith/specsmith/pkg/runstore"
	"github.com/specsmith/specsmith/pkg/uiscan"
)

// Engine wires all service components together and exposes them through a
// frontend-agnostic API.
type Engine struct {
	cfg       Config
	completer modeladapter.Completer
	scanner   *uiscan.Scanner
	gen       *forge.Generator
	pipeline  *forge.Pipeline
	models    modelstore.Store
	runs      *runstore.Store
}

// New creates an Engine from the given configuration. It validates the config,
// builds the provider completer, and prepares the OCR scanner and run store.
// Recognition models are not downloaded here; call EnsureModels before serving.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	completer, err := buildCompleter(cfg.Provider)
	if err != nil {
		return nil, err
	}

	models := modelstore.New(cfg.Storage.ModelDir)

	scanOpts := []uiscan.Option{
		uiscan.WithLanguages(cfg.OCR.Languages...),
		uiscan.WithConfidenceThreshold(cfg.OCR.ConfidenceThreshold),
	}
	if cfg.OCR.PSM > 0 {
		scanOpts = append(scanOpts, uiscan.WithPSM(cfg.OCR.PSM))
	}
	scanner := uiscan.New(
		tesseract.NewEngine(tesseract.WithTessdataPrefix(models.ModelsDir())),
		scanOpts...,
	)

	gen := forge.New(completer, forge.WithDefaultPlatform(cfg.Generator.DefaultPlatform))

	runs, err := runstore.NewStore(cfg.Storage.RunsDir)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		completer: completer,
		scanner:   scanner,
		gen:       gen,
		pipeline:  forge.NewPipeline(scanner, gen),
		models:    models,
		runs:      runs,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Completer returns the configured LLM completer.
func (e *Engine) Completer() modeladapter.Completer { return e.completer }

// Scanner returns the screenshot scanner.
func (e *Engine) Scanner() *uiscan.Scanner { return e.scanner }

// Generator returns the artifact generator.
func (e *Engine) Generator() *forge.Generator { return e.gen }

// Runs returns the persisted run store.
func (e *Engine) Runs() *runstore.Store { return e.runs }

// Models returns the recognition model store.
func (e *Engine) Models() modelstore.Store { return e.models }

// EnsureModels downloads any missing recognition models for the configured
// languages into the model store.
func (e *Engine) EnsureModels(ctx context.Context) error {
	registry := modelstore.NewRegistry()
	if e.cfg.OCR.DataURL != "" {
		registry.BaseURL = e.cfg.OCR.DataURL
	}

	dl := modelstore.NewDownloader(e.models, registry, 0)
	return dl.EnsureLanguages(ctx, e.cfg.OCR.Languages)
}

// Usage returns the aggregate token usage across all LLM calls made so far.
func (e *Engine) Usage() usage.TokenCount {
	if ur, ok := e.completer.(modeladapter.UsageReporter); ok {
		return ur.UsageTracker().Total()
	}
	return usage.TokenCount{}
}

// RunPipeline executes the full generation pipeline, records the run (with
// the token usage it cost) in the run store, and returns the saved record.
// onStage may be nil. The run is persisted even when a stage fails, with its
// status and error set accordingly.
func (e *Engine) RunPipeline(ctx context.Context, in forge.PipelineInput, onStage forge.StageFunc) (runstore.Run, error) {
	run := runstore.NewRun(in)

	before := e.Usage()
	outcome, err := e.pipeline.Run(ctx, in, onStage)
	after := e.Usage()

	run.Usage = usage.TokenCount{
		InputTokens:  after.InputTokens - before.InputTokens,
		OutputTokens: after.OutputTokens - before.OutputTokens,
	}

	// Keep the partial outcome on failure so callers see the artifacts the
	// completed stages already produced.
	run.Outcome = outcome
	if err != nil {
		run.Status = runstore.StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = runstore.StatusCompleted
	}

	if saveErr := e.runs.Save(run); saveErr != nil {
		if err == nil {
			return run, fmt.Errorf("engine: save run: %w", saveErr)
		}
	}

	return run, err
}
