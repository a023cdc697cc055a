// Package agent implements the worker runtime: the Agent contract, the base
// worker that speaks to the completion provider, and the builtin role
// definitions. A worker turns one AgentRequest into one AgentOutput; routing
// between workers is the orchestrator's job.
package agent

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
	"github.com/dpmorgan-gotribe/agentflow/pkg/skills"
)

// Agent is one specialised worker. Execute must honour ctx cancellation and
// return an output envelope even for failed runs; a non-nil error is
// reserved for invariant violations, not execution failures.
type Agent interface {
	Type() models.AgentType
	Execute(ctx context.Context, req *models.AgentRequest) (*models.AgentOutput, error)
}

// Deps carries the shared collaborators every worker uses.
type Deps struct {
	Provider llm.CompletionProvider
	Selector *skills.Selector
	Injector *skills.Injector
	Config   config.OrchestratorConfig
	Clock    clock.PassiveClock
	Logger   *slog.Logger

	// NewID generates execution and artifact IDs. Defaults to random UUIDs;
	// tests inject a deterministic source.
	NewID func() string
}

func (d *Deps) fill() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

// BuildWorkers constructs one worker per builtin role, keyed by agent type.
func BuildWorkers(deps Deps) map[models.AgentType]Agent {
	deps.fill()
	workers := make(map[models.AgentType]Agent, len(builtinRoles))
	for _, role := range builtinRoles {
		workers[role.Type] = NewBaseWorker(role, deps)
	}
	return workers
}
