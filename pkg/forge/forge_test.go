package forge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/specsmith/specsmith/pkg/chats/chat"
	"github.com/specsmith/specsmith/pkg/chats/message"
	"github.com/specsmith/specsmith/pkg/chats/role"
	"github.com/specsmith/specsmith/pkg/forge"
	"github.com/specsmith/specsmith/pkg/uiscan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCompleter captures every chat it receives and replies with canned
// text. When errAt is set, only that call (1-based) fails; otherwise err
// fails every call.
type recordingCompleter struct {
	replies []string
	err     error
	errAt   int
	chats   []*chat.Chat
}

func (r *recordingCompleter) Complete(_ context.Context, c *chat.Chat) (message.Message, error) {
	r.chats = append(r.chats, c)
	if r.err != nil && (r.errAt == 0 || r.errAt == len(r.chats)) {
		return message.Message{}, r.err
	}

	reply := "ok"
	if len(r.replies) > 0 {
		reply = r.replies[0]
		r.replies = r.replies[1:]
	}
	return message.NewText("", role.Assistant, reply), nil
}

func (r *recordingCompleter) lastUserPrompt() string {
	c := r.chats[len(r.chats)-1]
	last, _ := c.Last()
	return last.TextContent()
}

func TestUIModel_PromptIncludesInputs(t *testing.T) {
	rc := &recordingCompleter{replies: []string{"  {\"sectionOne\": {}}  "}}
	g := forge.New(rc)

	out, err := g.UIModel(context.Background(), forge.UIModelRequest{
		UserStory: "As a user I want to log in",
		Summary:   "Login screen rework",
		Elements: []uiscan.Element{
			{Component: "Sign in", BoundingBox: [4][2]float64{{1, 2}, {3, 2}, {3, 4}, {1, 4}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"sectionOne": {}}`, out)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "As a user I want to log in")
	assert.Contains(t, prompt, "Login screen rework")
	assert.Contains(t, prompt, `"component":"Sign in"`)
	assert.Contains(t, prompt, "UI Data Model in JSON format")

	sys := rc.chats[0].SystemPrompt()
	assert.Contains(t, sys, "standardized UI Data Models")
}

func TestUIModel_EmptyInputsUsePlaceholders(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.UIModel(context.Background(), forge.UIModelRequest{})
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "No user story provided.")
	assert.Contains(t, prompt, "No additional summary provided.")
	assert.Contains(t, prompt, "No UI elements detected from the image.")
}

func TestGherkin_PromptIncludesModel(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.Gherkin(context.Background(), `{"sectionOne":{}}`, "story", "summary")
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, `{"sectionOne":{}}`)
	assert.Contains(t, prompt, "positive & negative scenarios")
	assert.Contains(t, prompt, "Accessibility")
}

func TestTestCases_PromptIncludesPlatformAndTechnology(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.TestCases(context.Background(), "Scenario: login", "Mobile", "Appium")
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "Scenario: login")
	assert.Contains(t, prompt, "Target Platform: Mobile")
	assert.Contains(t, prompt, "Recommended Technology: Appium")
}

func TestUIModel_PromptCarriesStructureTemplate(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.UIModel(context.Background(), forge.UIModelRequest{UserStory: "story"})
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "Follow this JSON structure:")
	assert.Contains(t, prompt, "<ui-data-model>")
	assert.Contains(t, prompt, `"dropDownOption1": <text>,`)
}

func TestTestCases_PromptCarriesAccessibilityChecks(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.TestCases(context.Background(), "Scenario: login", "Web", "Selenium")
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "Test using accessibility tools such as Axe or Lighthouse.")
	assert.Contains(t, prompt, "keyboard navigation works seamlessly")
}

func TestTestCases_EmptyPlatformRenderedAsGiven(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.TestCases(context.Background(), "Scenario: login", "", "Selenium")
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "- Target Platform: \n")
	assert.NotContains(t, prompt, "Target Platform: Web")
}

func TestFeatureFile_PromptCarriesStepDefinitionGuidance(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.FeatureFile(context.Background(), "TC-1", "Web", "Java (Cucumber)")
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "Use structured Gherkin syntax with meaningful step descriptions.")
	assert.Contains(t, prompt, "Generate **step definitions in Python (Behave), Java (Cucumber), or JS (Cypress)** for automation purposes.")
	assert.Contains(t, prompt, "Include **test data** where applicable for better test coverage.")
}

func TestFeatureFile_EmptyPlatformDefaultsToWeb(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc)

	_, err := g.FeatureFile(context.Background(), "TC-1 ...", "", "JavaScript (Cypress)")
	require.NoError(t, err)

	prompt := rc.lastUserPrompt()
	assert.Contains(t, prompt, "selected platform: Web")
	assert.Contains(t, prompt, "JavaScript (Cypress)")
}

func TestFeatureFile_CustomDefaultPlatform(t *testing.T) {
	rc := &recordingCompleter{}
	g := forge.New(rc, forge.WithDefaultPlatform("Mobile"))

	_, err := g.FeatureFile(context.Background(), "TC-1", "", "")
	require.NoError(t, err)

	assert.Contains(t, rc.lastUserPrompt(), "selected platform: Mobile")
}

func TestGenerator_CompleterErrorWrapped(t *testing.T) {
	rc := &recordingCompleter{err: errors.New("api down")}
	g := forge.New(rc)

	_, err := g.Gherkin(context.Background(), "{}", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forge: gherkin:")
	assert.Contains(t, err.Error(), "api down")
}
