package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassificationLenientJSON(t *testing.T) {
	// Prose wrapper, fence, string bool, mixed-case enums, scalar array,
	// trailing comma: the shapes models actually produce.
	content := "Here is the classification you asked for:\n" +
		"```json\n" +
		"{\n" +
		`  "task_type": "Feature",` + "\n" +
		`  "requires_design": "yes",` + "\n" +
		`  "complexity": "COMPLEX",` + "\n" +
		`  "summary": "  build a landing page for the beta  ",` + "\n" +
		`  "languages": "typescript",` + "\n" +
		`  "frameworks": ["react", ""],` + "\n" +
		`  "project_type": "Web App",` + "\n" +
		"}\n" +
		"```\n"

	tc, err := parseClassification(content)
	require.NoError(t, err)

	assert.Equal(t, "feature", tc.TaskType)
	assert.True(t, tc.RequiresDesign)
	assert.Equal(t, "complex", tc.Complexity)
	assert.Equal(t, "build a landing page for the beta", tc.Summary)
	assert.Equal(t, []string{"typescript"}, tc.Languages)
	assert.Equal(t, []string{"react"}, tc.Frameworks)
	assert.Equal(t, "web_app", tc.ProjectType)
}

func TestParseClassificationUnknownEnumsDefault(t *testing.T) {
	tc, err := parseClassification(`{"task_type": "banana", "complexity": "extreme", "project_type": "spaceship"}`)
	require.NoError(t, err)

	assert.Equal(t, "feature", tc.TaskType)
	assert.Equal(t, "medium", tc.Complexity)
	assert.Empty(t, tc.ProjectType)
	assert.False(t, tc.RequiresDesign)
}

func TestParseClassificationDesignTaskForcesDesign(t *testing.T) {
	tc, err := parseClassification(`{"task_type": "design", "requires_design": false}`)
	require.NoError(t, err)
	assert.True(t, tc.RequiresDesign)
}

func TestParseClassificationRejectsNonJSON(t *testing.T) {
	_, err := parseClassification("I am unable to classify this request.")
	assert.Error(t, err)
}

func TestHeuristicClassification(t *testing.T) {
	cases := []struct {
		name           string
		input          string
		taskType       string
		requiresDesign bool
		complexity     string
	}{
		{
			name:       "refactor keyword",
			input:      "Refactor the billing module to use the new error wrapper",
			taskType:   "refactor",
			complexity: "simple",
		},
		{
			// Design terms do not pull non-feature work into the design flow.
			name:       "refactor of a page stays a refactor",
			input:      "Refactor the dashboard page rendering code",
			taskType:   "refactor",
			complexity: "simple",
		},
		{
			name:       "bugfix keyword",
			input:      "Fix the flaky login redirect",
			taskType:   "bugfix",
			complexity: "simple",
		},
		{
			name:       "migration keyword",
			input:      "Migrate the user store from MySQL to Postgres",
			taskType:   "migration",
			complexity: "simple",
		},
		{
			name:       "research keyword",
			input:      "Investigate why checkout latency doubled last week",
			taskType:   "research",
			complexity: "simple",
		},
		{
			name:           "feature with design terms",
			input:          "Build a landing page for the beta launch",
			taskType:       "feature",
			requiresDesign: true,
			complexity:     "simple",
		},
		{
			name:       "feature without design terms",
			input:      "Add a REST endpoint that exports invoices as CSV",
			taskType:   "feature",
			complexity: "simple",
		},
		{
			name:       "long input is complex",
			input:      "Add support for " + strings.Repeat("many integration backends, ", 40),
			taskType:   "feature",
			complexity: "complex",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			tc := heuristicClassification(tt.input)
			assert.Equal(t, tt.taskType, tc.TaskType)
			assert.Equal(t, tt.requiresDesign, tc.RequiresDesign)
			assert.Equal(t, tt.complexity, tc.Complexity)
		})
	}
}

func TestClassifyParsesProviderAnswer(t *testing.T) {
	fx := newTestKernel(t, []step{{content: classifyDesignJSON, tokens: 300}}, stubWorkers(), nil)

	tc, tokens := fx.kernel.classify(context.Background(), "build a landing page", testLogger())
	assert.Equal(t, "feature", tc.TaskType)
	assert.True(t, tc.RequiresDesign)
	assert.Equal(t, 300, tokens)
}

func TestClassifyFallsBackOnProviderError(t *testing.T) {
	fx := newTestKernel(t, []step{{err: errors.New("provider down")}}, stubWorkers(), nil)

	tc, tokens := fx.kernel.classify(context.Background(), "Fix the flaky login redirect", testLogger())
	assert.Equal(t, "bugfix", tc.TaskType)
	assert.Equal(t, 0, tokens, "a failed call charges nothing")
}

func TestClassifyFallsBackOnGarbageContent(t *testing.T) {
	fx := newTestKernel(t, []step{{content: "no json here", tokens: 77}}, stubWorkers(), nil)

	tc, tokens := fx.kernel.classify(context.Background(), "Refactor the scheduler", testLogger())
	assert.Equal(t, "refactor", tc.TaskType)
	assert.Equal(t, 77, tokens, "tokens spent on an unparseable answer are still charged")
}
