package agent

import (
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Role binds an agent type to its prompt snippet, skill selection bias, and
// default routing. Roles carry no state; all execution goes through the
// base worker.
type Role struct {
	Type         models.AgentType
	Instructions string

	// SkillTags bias skill selection toward the role's concern.
	SkillTags []string

	// ResultKeys are result fields the role is expected to emit. Checked
	// leniently after parsing; a missing key is a warning, not a failure.
	ResultKeys []string

	// DefaultNext fills SuggestNext when the model omits routing hints.
	DefaultNext []models.AgentType
}

const analystInstructions = `## Analyst Instructions

You research the request before anything is designed or built. Produce a task
analysis: goals, constraints, target users, and open risks.

For tasks that involve visual design, additionally propose exactly 3 candidate
style packages in the result under "stylePackages", each with a unique kebab-case
"id", a short "name", and a one-line "description". Style packages are
competing directions, not refinements of each other.`

const architectInstructions = `## Architect Instructions

You turn the analysis into a technical architecture: component breakdown, data
model, interface boundaries, and technology choices. Name concrete modules and
the contracts between them. Flag anything that needs a decision before
implementation can start.`

const uiDesignerInstructions = `## UI Designer Instructions

You produce visual design output. In competition mode (a style hint names a
style package) you render a stylesheet exploration for exactly that package:
colour tokens, typography, spacing, and one representative preview. Without a
style hint you design the full screen set against the approved stylesheet.
Emit every stylesheet and screen as an artifact with a project-relative path.`

const projectManagerInstructions = `## Project Manager Instructions

You plan delivery of the approved design: milestones, task breakdown with
dependencies, and the order in which the implementation agents should run.
Every task names its owner agent and its prerequisites.`

const reviewerInstructions = `## Reviewer Instructions

You review the work produced so far for correctness, consistency, and missing
pieces. Point at concrete artifacts; vague findings are not actionable. State
explicitly whether the work is ready to ship.`

const frontendDevInstructions = `## Frontend Developer Instructions

You implement client-side code according to the architecture and the approved
design. Emit each source file as an artifact with its project-relative path.
Follow the stylesheet tokens exactly; do not invent new visual values.`

const backendDevInstructions = `## Backend Developer Instructions

You implement server-side code according to the architecture: handlers,
services, storage access, and configuration. Emit each source file as an
artifact with its project-relative path. Never embed credentials or keys.`

const testerInstructions = `## Tester Instructions

You write and run the test plan for the implemented work: unit coverage of the
core logic and end-to-end checks of the user-facing flows. Report failures
with the failing case, expected and actual behaviour.`

// builtinRoles is the fixed worker fleet. Order matters only for
// deterministic iteration in BuildWorkers.
var builtinRoles = []Role{
	{
		Type:         models.AgentAnalyst,
		Instructions: analystInstructions,
		SkillTags:    []string{"analysis"},
		ResultKeys:   []string{"analysis"},
		DefaultNext:  []models.AgentType{models.AgentArchitect},
	},
	{
		Type:         models.AgentArchitect,
		Instructions: architectInstructions,
		SkillTags:    []string{"architecture"},
		ResultKeys:   []string{"architecture"},
		DefaultNext:  []models.AgentType{models.AgentUIDesigner, models.AgentReviewer},
	},
	{
		Type:         models.AgentUIDesigner,
		Instructions: uiDesignerInstructions,
		SkillTags:    []string{"ui", "design"},
		ResultKeys:   []string{"design"},
		DefaultNext:  []models.AgentType{models.AgentProjectManager},
	},
	{
		Type:         models.AgentProjectManager,
		Instructions: projectManagerInstructions,
		SkillTags:    []string{"planning"},
		ResultKeys:   []string{"plan"},
		DefaultNext:  []models.AgentType{models.AgentFrontendDev, models.AgentBackendDev},
	},
	{
		Type:         models.AgentReviewer,
		Instructions: reviewerInstructions,
		SkillTags:    []string{"review"},
		ResultKeys:   []string{"review"},
	},
	{
		Type:         models.AgentFrontendDev,
		Instructions: frontendDevInstructions,
		SkillTags:    []string{"frontend"},
		DefaultNext:  []models.AgentType{models.AgentTester},
	},
	{
		Type:         models.AgentBackendDev,
		Instructions: backendDevInstructions,
		SkillTags:    []string{"backend"},
		DefaultNext:  []models.AgentType{models.AgentTester},
	},
	{
		Type:         models.AgentTester,
		Instructions: testerInstructions,
		SkillTags:    []string{"testing"},
		DefaultNext:  []models.AgentType{models.AgentReviewer},
	},
}

// RoleFor returns the builtin role definition for an agent type.
func RoleFor(agentType models.AgentType) (Role, bool) {
	for _, role := range builtinRoles {
		if role.Type == agentType {
			return role, true
		}
	}
	return Role{}, false
}
