package forge

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/specsmith/specsmith/pkg/uiscan"
)

// System prompts for each generation stage.
const (
	uiModelSystemPrompt     = "You are an AI assistant trained to generate standardized UI Data Models."
	gherkinSystemPrompt     = "You are an AI assistant trained to generate structured Gherkin user stories."
	testCasesSystemPrompt   = "You are an AI assistant trained to generate structured imperative and non-functional test cases for automation."
	featureFileSystemPrompt = "You are an AI assistant trained to generate structured feature files with step definitions."
)

// Placeholder text used when an input field is left empty.
const (
	noUserStory  = "No user story provided."
	noSummary    = "No additional summary provided."
	noElements   = "No UI elements detected from the image. Generating UI data model based on provided user story and summary."
	noTechnology = "No specific technology requested."
)

const uiModelPromptText = `You are a Business System Analyst creating a **UI Data Model** for developers.
Below are the provided inputs:
- **User Story**: {{.UserStory}}
- **Summary/Description**: {{.Summary}}
- **Detected UI Elements (if available)**: {{.Elements}}

Generate a **JSON UI Data Model** ensuring:
- **Consistency** in naming UI components.
- **Hierarchy** with sections, buttons, inputs, icons, etc.
- **Clean JSON formatting**.

Follow this JSON structure:
{
    {
        <ui-data-model>
        "sectionOne":
        {
        "fieldOne":<URI>, // e.g. Icon location for fieldOne which is an icon
        "fieldTwo": <STRING>, // e.g. String text for fieldTwo
        "fieldThree": <STRING>, // e.g. String text for fieldThree
        "fieldFour": <STRING>, // e.g. String text for fieldFour "sectionTwo":
        {
        "fieldOne":<URI>, // e.g. Icon location for fieldOne which is an icon
        "fieldTwo": <STRING>, // e.g. String text for fieldTwo
        "fieldThree": <STRING>, // e.g. String text for fieldThree
        "fieldFour": <dropdown>, // e.g. String text for fieldFour
            {
            "dropDownOption1": <text>,
            "dropDownOption2": <text>,
            "dropDownOption3": <text>,
            },

        },
    } </ui-data-model> </TEMPLATE 1>
    }
}

Now, generate the UI Data Model in JSON format.`

const gherkinPromptText = `You are an AI assistant trained to generate **structured Gherkin user stories**.

Below are the provided inputs:
- **User Story**: {{.UserStory}}
- **Summary/Description**: {{.Summary}}
- **UI Data Model**: {{.UIModel}}

### Instructions:
1. **Generate structured Gherkin user stories** based on the inputs.
2. Each UI element should have an **associated user interaction**.
3. Include **positive & negative scenarios**.
4. Provide **expected results** for each action.
5. Additionally, generate **non-functional user stories**, including:
   - **Performance**
   - **Security**
   - **Usability**
   - **Accessibility**

Now, generate structured and consistent Gherkin scenarios.`

const testCasesPromptText = `Given the following user story:
{{.Gherkin}}

Generate **structured imperative test cases** suitable for **automation testing**.
- Target Platform: {{.Platform}}
- Recommended Technology: {{.Technology}}
- Include proper test steps, assertions, and expected results.
- Ensure test cases follow a structured format.
- Include all possible scenarios, covering edge cases.
- Additionally, generate relevant **non-functional test cases**, including:
  - **Performance**
  - **Security**
  - **Usability**
  - **Accessibility**
  - Verify that all UI elements have appropriate **color contrast ratios**.
  - Ensure all images/icons have **alt text** for screen readers.
  - Validate that text elements are readable against different backgrounds.
  - Check that keyboard navigation works seamlessly across UI components.
  - Test using accessibility tools such as Axe or Lighthouse.

Now, generate structured imperative and non-functional test cases.`

const featureFilePromptText = `Given the following structured imperative test cases:
{{.TestCases}}

Follow this feature file template:
   Feature: [Feature Name]

    Scenario: [Scenario Name]
      Given [Precondition]
      When [Action]
      Then [Expected Outcome]

    @platform-specific
    Scenario: [Platform-Specific Scenario]
      Given [Precondition]
      When [Platform-specific Action]
      Then [Expected Outcome]

Ensure step definitions match the selected platform: {{.Platform}}.
- Use step definitions in the selected format: {{.StepFormat}}.
- Provide structured Given-When-Then steps specific to the format.
- Include **test data** where applicable for input fields.
- Ensure alt text is validated for image-based UI elements.
- Validate expected color contrast ratios in assertions.
Now, generate the feature file with correct step definitions for the selected platform: {{.Platform}}.

- Ensure step definitions include **preconditions**, **actions**, and **expected outcomes**.
- Provide **clear assertions** for UI elements and business logic.
- Include **test data** where applicable for better test coverage.
- Ensure all **accessibility** checks (color contrast, alt text) are validated.
- Differentiate **Web vs. Mobile step definitions** where necessary.
- Use structured Gherkin syntax with meaningful step descriptions.
- Generate **step definitions in Python (Behave), Java (Cucumber), or JS (Cypress)** for automation purposes.`

var (
	uiModelTmpl     = template.Must(template.New("ui-model").Parse(uiModelPromptText))
	gherkinTmpl     = template.Must(template.New("gherkin").Parse(gherkinPromptText))
	testCasesTmpl   = template.Must(template.New("test-cases").Parse(testCasesPromptText))
	featureFileTmpl = template.Must(template.New("feature-file").Parse(featureFilePromptText))
)

// orPlaceholder substitutes placeholder for empty or whitespace-only values.
func orPlaceholder(val, placeholder string) string {
	if strings.TrimSpace(val) == "" {
		return placeholder
	}
	return val
}

// renderElements produces the detected-elements section of the UI model
// prompt: a JSON array when elements were found, the fallback sentence when
// the screenshot produced nothing.
func renderElements(elements []uiscan.Element) (string, error) {
	if len(elements) == 0 {
		return noElements, nil
	}
	data, err := json.Marshal(elements)
	if err != nil {
		return "", fmt.Errorf("marshal elements: %w", err)
	}
	return string(data), nil
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
