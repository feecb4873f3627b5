package engine

import (
	"context"
	"fmt"

	"backoffice/internal/dispatch"
	"backoffice/internal/workflow"
)

// AgentResult is the outcome of one agent attempt.
type AgentResult struct {
	Success bool

	// Output is what gets written under the agent's output key: the sole
	// tool's output, a composite of all tool outcomes when several tools
	// ran, or the projected payload for a tool-less pass-through agent.
	Output interface{}

	// ToolsInvoked lists tool names in invocation order for the trace.
	ToolsInvoked []string

	// Errors holds per-tool failure descriptions with their class.
	Errors []string
}

// runAgent executes one agent against the current shared context. The
// caller's context object is never mutated; the orchestrator merges the
// output on success.
func (e *Engine) runAgent(ctx context.Context, agent *workflow.Agent, wctx workflow.Context, execCtx dispatch.ExecutionContext) *AgentResult {
	result := &AgentResult{}

	payload, missing := wctx.Project(agent.InputKeys)
	if len(missing) > 0 {
		if e.cfg.StrictInputs {
			result.Errors = append(result.Errors,
				fmt.Sprintf("agent %s: unresolved input keys %v", agent.Role, missing))
			return result
		}
		// Lax mode runs with a partial payload, but never silently.
		e.log.Warnf("agent %s: input keys %v missing from context, continuing with partial payload", agent.Role, missing)
		result.Errors = append(result.Errors,
			fmt.Sprintf("agent %s: input keys %v missing, ran with partial payload", agent.Role, missing))
	}

	// A tool-less agent passes its projected inputs through unchanged.
	if len(agent.Tools) == 0 {
		result.Success = true
		result.Output = map[string]interface{}(payload)
		return result
	}

	type outcome struct {
		name   string
		result *dispatch.Result
	}
	outcomes := make([]outcome, 0, len(agent.Tools))

	var lastSuccess map[string]interface{}
	haveSuccess := false

	for _, ref := range agent.Tools {
		toolInput := e.toolInput(ref, payload, lastSuccess, haveSuccess)

		res := e.invokeTool(ctx, ref, toolInput, execCtx)
		result.ToolsInvoked = append(result.ToolsInvoked, ref.Name)
		outcomes = append(outcomes, outcome{name: ref.Name, result: res})

		if res.Success {
			lastSuccess = res.Data
			haveSuccess = true
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("[%s] %s", res.Class, res.Error))
		}
	}

	result.Success = haveSuccess
	if !haveSuccess {
		return result
	}

	if len(outcomes) == 1 {
		result.Output = outcomes[0].result.Data
		return result
	}

	// Several tools ran: report every outcome, with the last successful
	// output under a fixed key for downstream agents.
	composite := make(map[string]interface{}, len(outcomes)+1)
	for _, o := range outcomes {
		if o.result.Success {
			composite[o.name] = o.result.Data
		} else {
			composite[o.name] = map[string]interface{}{
				"success": false,
				"error":   o.result.Error,
			}
		}
	}
	composite["result"] = lastSuccess
	result.Output = composite

	return result
}

// toolInput builds one tool's input payload. Tools declaring their own
// input keys always receive the agent-level projection narrowed to those
// keys; otherwise a prior tool's output flows into the next tool.
func (e *Engine) toolInput(ref workflow.ToolRef, payload workflow.Context, prior map[string]interface{}, havePrior bool) map[string]interface{} {
	if len(ref.InputKeys) > 0 {
		narrowed, _ := payload.Project(ref.InputKeys)
		return narrowed
	}
	if havePrior {
		return prior
	}
	return payload
}

// invokeTool resolves the descriptor and dispatches the call. Resolution
// failures are classified results, never silent no-ops.
func (e *Engine) invokeTool(ctx context.Context, ref workflow.ToolRef, input map[string]interface{}, execCtx dispatch.ExecutionContext) *dispatch.Result {
	desc, err := e.registry.Resolve(ref.Name, ref.HostedBy)
	if err != nil {
		return dispatch.Failed(dispatch.FailureResolution, "%v", err)
	}

	// Per-tool config may override the descriptor's endpoint and secret.
	if endpoint, ok := ref.Config["endpoint"].(string); ok && endpoint != "" {
		desc.Endpoint = endpoint
	}
	if secret, ok := ref.Config["secret"].(string); ok && secret != "" {
		desc.Secret = secret
	}

	return e.dispatcher.Invoke(ctx, desc, input, execCtx)
}
