// Package forge generates QA artifacts from product requirements: a JSON UI
// data model, Gherkin user stories, imperative test cases, and a feature file
// with step definitions. Each stage is a single LLM completion.
package forge

import (
	"context"
	"fmt"
	"strings"

	"github.com/specsmith/specsmith/pkg/chats/chat"
	"github.com/specsmith/specsmith/pkg/chats/message"
	"github.com/specsmith/specsmith/pkg/chats/role"
	"github.com/specsmith/specsmith/pkg/modeladapter"
	"github.com/specsmith/specsmith/pkg/uiscan"
)

// DefaultPlatform is used when the caller does not select a target platform.
const DefaultPlatform = "Web"

// Generator runs the artifact generation stages against a Completer.
type Generator struct {
	completer       modeladapter.Completer
	defaultPlatform string
}

// Option configures a Generator.
type Option func(*Generator)

// WithDefaultPlatform overrides the platform used when requests leave it empty.
func WithDefaultPlatform(platform string) Option {
	return func(g *Generator) {
		if platform != "" {
			g.defaultPlatform = platform
		}
	}
}

// New creates a Generator backed by the given completer.
func New(completer modeladapter.Completer, opts ...Option) *Generator {
	g := &Generator{
		completer:       completer,
		defaultPlatform: DefaultPlatform,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UIModelRequest carries the inputs for UI data model generation.
type UIModelRequest struct {
	UserStory string
	Summary   string
	Elements  []uiscan.Element
}

// UIModel generates a JSON UI data model from a user story, a summary, and
// the UI elements detected in an optional screenshot. When no elements were
// detected the prompt tells the model to rely on the story and summary alone.
func (g *Generator) UIModel(ctx context.Context, req UIModelRequest) (string, error) {
	elements, err := renderElements(req.Elements)
	if err != nil {
		return "", fmt.Errorf("forge: ui model: %w", err)
	}

	prompt, err := renderTemplate(uiModelTmpl, struct {
		UserStory, Summary, Elements string
	}{
		UserStory: orPlaceholder(req.UserStory, noUserStory),
		Summary:   orPlaceholder(req.Summary, noSummary),
		Elements:  elements,
	})
	if err != nil {
		return "", fmt.Errorf("forge: ui model: %w", err)
	}

	return g.complete(ctx, "ui model", uiModelSystemPrompt, prompt)
}

// Gherkin generates structured Gherkin user stories from a UI data model.
func (g *Generator) Gherkin(ctx context.Context, uiModel, userStory, summary string) (string, error) {
	prompt, err := renderTemplate(gherkinTmpl, struct {
		UserStory, Summary, UIModel string
	}{
		UserStory: orPlaceholder(userStory, noUserStory),
		Summary:   orPlaceholder(summary, noSummary),
		UIModel:   uiModel,
	})
	if err != nil {
		return "", fmt.Errorf("forge: gherkin: %w", err)
	}

	return g.complete(ctx, "gherkin", gherkinSystemPrompt, prompt)
}

// TestCases generates imperative and non-functional test cases from Gherkin
// stories for a target platform and automation technology. The platform is
// rendered as given; only FeatureFile applies the platform default.
func (g *Generator) TestCases(ctx context.Context, gherkin, platform, technology string) (string, error) {
	prompt, err := renderTemplate(testCasesTmpl, struct {
		Gherkin, Platform, Technology string
	}{
		Gherkin:    gherkin,
		Platform:   platform,
		Technology: orPlaceholder(technology, noTechnology),
	})
	if err != nil {
		return "", fmt.Errorf("forge: test cases: %w", err)
	}

	return g.complete(ctx, "test cases", testCasesSystemPrompt, prompt)
}

// FeatureFile generates a Gherkin feature file with step definitions in the
// selected format. An empty platform falls back to the generator default.
func (g *Generator) FeatureFile(ctx context.Context, testCases, platform, stepFormat string) (string, error) {
	prompt, err := renderTemplate(featureFileTmpl, struct {
		TestCases, Platform, StepFormat string
	}{
		TestCases:  testCases,
		Platform:   orPlaceholder(platform, g.defaultPlatform),
		StepFormat: orPlaceholder(stepFormat, "Python (Behave)"),
	})
	if err != nil {
		return "", fmt.Errorf("forge: feature file: %w", err)
	}

	return g.complete(ctx, "feature file", featureFileSystemPrompt, prompt)
}

func (g *Generator) complete(ctx context.Context, stage, systemPrompt, userPrompt string) (string, error) {
	c := chat.New(
		message.NewText("system", role.System, systemPrompt),
		message.NewText("user", role.User, userPrompt),
	)

	reply, err := g.completer.Complete(ctx, c)
	if err != nil {
		return "", fmt.Errorf("forge: %s: %w", stage, err)
	}

	return strings.TrimSpace(reply.TextContent()), nil
}
