package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dpmorgan-gotribe/agentflow/pkg/llm"
)

// Script routes for the non-agent calls. Worker calls route on the role
// heading their system prompt opens with, so their route names equal the
// agent type strings ("analyst", "ui_designer", ...).
const (
	RouteClassify = "classify"
	RouteDecision = "decision"
)

// routeMarkers maps system-prompt openers to script routes.
var routeMarkers = []struct {
	marker string
	route  string
}{
	{"You classify a software build request", RouteClassify},
	{"## Orchestration Decision Instructions", RouteDecision},
	{"## Analyst Instructions", "analyst"},
	{"## Architect Instructions", "architect"},
	{"## UI Designer Instructions", "ui_designer"},
	{"## Project Manager Instructions", "project_manager"},
	{"## Reviewer Instructions", "reviewer"},
	{"## Frontend Developer Instructions", "frontend_dev"},
	{"## Backend Developer Instructions", "backend_dev"},
	{"## Tester Instructions", "tester"},
}

// ScriptEntry defines a single scripted completion.
type ScriptEntry struct {
	// Response content. Usage defaults to 10 input / 5 output tokens when
	// left zero so token accounting never falls back to estimation.
	Content string
	Usage   llm.TokenUsage
	Err     error

	// Test control
	BlockUntilCancelled bool            // block Complete until ctx is done, then return ctx.Err()
	WaitCh              <-chan struct{} // block Complete until closed, then answer normally
	OnBlock             chan<- struct{} // notified when Complete enters a blocking path
}

// CapturedCall records one Complete invocation with its resolved route.
type CapturedCall struct {
	Route   string
	Request llm.CompletionRequest
}

// ScriptedProvider implements llm.CompletionProvider with dual dispatch:
// per-route scripts matched on the system prompt plus a sequential fallback
// consumed in call order. Routed entries serve parallel dispatches whose
// arrival order is non-deterministic.
type ScriptedProvider struct {
	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry
	routeIndex map[string]int
	captured   []CapturedCall
}

// NewScriptedProvider creates an empty ScriptedProvider.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential appends an entry consumed in order by calls without a routed
// entry.
func (p *ScriptedProvider) AddSequential(entry ScriptEntry) {
	p.sequential = append(p.sequential, entry)
}

// AddRouted appends an entry to the per-route script for route.
func (p *ScriptedProvider) AddRouted(route string, entry ScriptEntry) {
	p.routes[route] = append(p.routes[route], entry)
}

// Complete implements llm.CompletionProvider.
func (p *ScriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	route := routeFor(req.System)

	p.mu.Lock()
	p.captured = append(p.captured, CapturedCall{Route: route, Request: req})
	entry, err := p.nextEntry(route)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if entry.Err != nil {
		return nil, entry.Err
	}

	usage := entry.Usage
	if usage.Total() == 0 {
		usage = llm.TokenUsage{InputTokens: 10, OutputTokens: 5}
	}
	return &llm.CompletionResponse{
		Content:    entry.Content,
		StopReason: "end_turn",
		Model:      "scripted",
		Usage:      usage,
	}, nil
}

// CallCount returns the total number of Complete calls made.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.captured)
}

// RouteCalls returns the captured requests that resolved to route, in call
// order.
func (p *ScriptedProvider) RouteCalls(route string) []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var calls []llm.CompletionRequest
	for _, c := range p.captured {
		if c.Route == route {
			calls = append(calls, c.Request)
		}
	}
	return calls
}

// nextEntry selects the next script entry: routed dispatch first, then the
// sequential fallback. Must be called with p.mu held.
func (p *ScriptedProvider) nextEntry(route string) (*ScriptEntry, error) {
	if route != "" {
		if entries, ok := p.routes[route]; ok {
			idx := p.routeIndex[route]
			if idx < len(entries) {
				p.routeIndex[route] = idx + 1
				return &entries[idx], nil
			}
		}
	}

	if p.seqIndex < len(p.sequential) {
		entry := &p.sequential[p.seqIndex]
		p.seqIndex++
		return entry, nil
	}

	return nil, fmt.Errorf("ScriptedProvider: no more entries (route=%q, sequential=%d/%d)",
		route, p.seqIndex, len(p.sequential))
}

// routeFor resolves the script route from the system prompt opener.
func routeFor(system string) string {
	for _, m := range routeMarkers {
		if strings.HasPrefix(system, m.marker) {
			return m.route
		}
	}
	return ""
}
