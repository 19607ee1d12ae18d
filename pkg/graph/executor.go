package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/flow"
)

// defaultMaxSteps caps the node→edge hops of a single turn so a routing
// cycle cannot spin forever.
const defaultMaxSteps = 25

// CompiledGraph is the executable form of a flow definition: materialized
// node functions, edge routing, and the session-keyed checkpointer.
// Compilation is idempotent per flow name; instances are cached by the
// Manager until process exit or reload.
type CompiledGraph struct {
	def          *flow.FlowDefinition
	nodes        map[string]NodeFunc
	routers      map[string]routerFunc
	entry        string
	checkpointer Checkpointer
	maxSteps     int
}

// Definition returns the flow definition this graph was compiled from.
func (g *CompiledGraph) Definition() *flow.FlowDefinition {
	return g.def
}

// Checkpointer exposes the graph's conversation store. The orchestrator
// uses it to seed history and to persist the reduced conversation after
// a turn.
func (g *CompiledGraph) Checkpointer() Checkpointer {
	return g.checkpointer
}

// Invoke runs one turn: entry node, then node→route→node until the
// terminal is reached or the step cap trips. The returned state carries
// the turn's flow messages.
//
// Failure semantics: a node error marks the turn degraded and returns the
// state accumulated so far (the caller still produces a response);
// context cancellation aborts with the context error and the partial
// state is discarded by the caller.
func (g *CompiledGraph) Invoke(ctx context.Context, state *FlowState) (*FlowState, error) {
	current := g.entry
	steps := 0

	for current != flow.TerminalNode {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		steps++
		if steps > g.maxSteps {
			return nil, fmt.Errorf("flow '%s' exceeded %d steps (routing cycle?)", g.def.Name, g.maxSteps)
		}

		nodeFn, ok := g.nodes[current]
		if !ok {
			return nil, fmt.Errorf("flow '%s' routed to unknown node '%s'", g.def.Name, current)
		}

		slog.Debug("Executing node", "flow", g.def.Name, "node", current, "step", steps)

		newState, err := nodeFn(ctx, state)
		if err != nil {
			// Context errors propagate; everything else degrades the turn
			// and keeps whatever flow messages accumulated.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Error("Node execution failed, turn degraded",
				"flow", g.def.Name,
				"node", current,
				"error", err)
			state.Degraded = true
			return state, nil
		}
		state = newState

		router, ok := g.routers[current]
		if !ok {
			// No outgoing edges: the node is terminal.
			break
		}
		current = router(state)
	}

	return state, nil
}
