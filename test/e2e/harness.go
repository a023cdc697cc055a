// Package e2e boots the full agentflow stack with a scripted completion
// provider and drives it over real HTTP and WebSocket connections.
package e2e

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/dpmorgan-gotribe/agentflow/pkg/agent"
	"github.com/dpmorgan-gotribe/agentflow/pkg/api"
	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
	"github.com/dpmorgan-gotribe/agentflow/pkg/decision"
	"github.com/dpmorgan-gotribe/agentflow/pkg/events"
	"github.com/dpmorgan-gotribe/agentflow/pkg/guardrails"
	"github.com/dpmorgan-gotribe/agentflow/pkg/orchestrator"
	"github.com/dpmorgan-gotribe/agentflow/pkg/retrieval"
	"github.com/dpmorgan-gotribe/agentflow/pkg/session"
	"github.com/dpmorgan-gotribe/agentflow/pkg/skills"
	"github.com/dpmorgan-gotribe/agentflow/pkg/synthesis"
	"github.com/dpmorgan-gotribe/agentflow/pkg/vectorstore"
)

// TestTenant is the tenant identity every harness request authenticates as.
const TestTenant = "tenant-e2e"

// TestApp boots a complete agentflow instance for e2e testing. Everything is
// real except the completion provider.
type TestApp struct {
	Config   *config.Config
	Provider *ScriptedProvider
	Sessions *session.Manager
	Kernel   *orchestrator.Kernel
	Server   *api.Server

	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/api/v1/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	provider  *ScriptedProvider
	configDir string
	mutate    func(*config.Config)
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithProvider sets a pre-scripted completion provider.
func WithProvider(p *ScriptedProvider) TestAppOption {
	return func(c *testAppConfig) { c.provider = p }
}

// WithConfigDir loads configuration from dir instead of the builtin defaults.
func WithConfigDir(dir string) TestAppOption {
	return func(c *testAppConfig) { c.configDir = dir }
}

// WithConfigMutation adjusts the loaded configuration before wiring.
func WithConfigMutation(mutate func(*config.Config)) TestAppOption {
	return func(c *testAppConfig) { c.mutate = mutate }
}

// NewTestApp creates and starts a full agentflow test instance. The HTTP
// server is shut down via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.provider == nil {
		tc.provider = NewScriptedProvider()
	}

	// An empty config dir yields the builtin defaults, exercising the same
	// loader path the server boots through.
	dir := tc.configDir
	if dir == "" {
		dir = t.TempDir()
	}
	cfg, err := config.Initialize(context.Background(), dir)
	require.NoError(t, err)
	if tc.mutate != nil {
		tc.mutate(cfg)
	}

	logger := slog.Default()
	clk := clock.RealClock{}

	dims := cfg.VectorStore.Dimensions
	if dims <= 0 {
		dims = vectorstore.DefaultHashDimensions
	}
	store := vectorstore.NewMemoryStore(dims)
	retrievalMgr := retrieval.NewManager(&cfg.Context, store, vectorstore.NewHashEmbedder(dims), nil, clk, logger)

	guard, err := guardrails.NewEngine(&cfg.Guardrails, cfg.Orchestrator.MaxInputLength,
		cfg.MCPServerRegistry, clk, logger)
	require.NoError(t, err)

	sessions := session.NewManager(clk)
	bus := events.NewBus(logger)
	connManager := events.NewConnectionManager(bus, 2*time.Second)
	bus.AddSink(connManager.Broadcast)

	workers := agent.BuildWorkers(agent.Deps{
		Provider: tc.provider,
		Selector: skills.NewSelector(cfg.SkillRegistry, logger),
		Injector: skills.NewInjector(logger),
		Config:   cfg.Orchestrator,
		Clock:    clk,
		Logger:   logger,
	})

	kernel := orchestrator.New(orchestrator.Deps{
		Sessions:   sessions,
		Workers:    workers,
		Decider:    decision.NewEngine(tc.provider, "scripted", logger),
		Guardrails: guard,
		Retrieval:  retrievalMgr,
		Synth:      synthesis.NewSynthesizer(logger),
		Provider:   tc.provider,
		Config:     cfg,
		Model:      "scripted",
		Clock:      clk,
		Events:     events.NewPublisher(bus),
		Logger:     logger,
	})

	server := api.NewServer(cfg, kernel, sessions, connManager)
	httpSrv := httptest.NewServer(server.Handler())
	t.Cleanup(httpSrv.Close)

	return &TestApp{
		Config:   cfg,
		Provider: tc.provider,
		Sessions: sessions,
		Kernel:   kernel,
		Server:   server,
		BaseURL:  httpSrv.URL,
		WSURL:    "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/v1/ws",
		t:        t,
	}
}
