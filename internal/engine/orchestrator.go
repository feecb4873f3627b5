package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backoffice/internal/adapters/config"
	"backoffice/internal/dispatch"
	"backoffice/internal/metrics"
	"backoffice/internal/tools"
	"backoffice/internal/workflow"
	"backoffice/pkg/errors"
	"backoffice/pkg/logger"
)

// Engine executes declared departments: it walks the workflow order
// sequentially, threads the shared context through each agent, applies the
// execution policy, and assembles the trace. Agents within one run are
// strictly sequential; concurrent runs are safe because each run owns its
// context and trace.
type Engine struct {
	registry   *tools.Registry
	dispatcher dispatch.Dispatcher
	cfg        config.EngineConfig
	log        *logger.Logger
}

// New creates an execution engine.
func New(registry *tools.Registry, dispatcher dispatch.Dispatcher, cfg config.EngineConfig, log *logger.Logger) *Engine {
	return &Engine{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.With("component", "engine"),
	}
}

// ExecuteDepartment runs a department against the caller's input data and
// returns the final context, trace, and success flag.
func (e *Engine) ExecuteDepartment(ctx context.Context, dept *workflow.Department, input workflow.Context) *ExecutionResult {
	runID := uuid.New()
	trace := NewTrace()
	log := e.log.With("department", dept.Name, "run_id", runID.String())

	result := &ExecutionResult{
		RunID: runID,
		Trace: trace,
	}

	if err := dept.Validate(); err != nil {
		result.Error = err.Error()
		trace.Errors = append(trace.Errors, err.Error())
		metrics.DepartmentRuns.WithLabelValues(dept.Name, "failure").Inc()
		return result
	}

	// Static department context first, caller input on top.
	wctx := workflow.Context(dept.Context).Merge(input)
	execCtx := dispatch.FromWorkflowContext(wctx)

	timeout := time.Duration(dept.ExecutionPolicy.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	log.Infof("starting department run: %d agents in workflow order", len(dept.WorkflowOrder))
	started := time.Now()

	for _, role := range dept.WorkflowOrder {
		// The run deadline is enforced between agent steps; an in-flight
		// tool call is bounded by its own per-call timeout.
		if time.Now().After(deadline) || runCtx.Err() != nil {
			msg := errors.Wrapf(errors.ErrRunTimeout, "department %s after %s", dept.Name, time.Since(started).Round(time.Millisecond)).Error()
			trace.Errors = append(trace.Errors, msg)
			result.Error = msg
			result.Data = wctx
			metrics.DepartmentRuns.WithLabelValues(dept.Name, "timeout").Inc()
			log.Warn(msg)
			return result
		}

		agent, _ := dept.AgentByRole(role)
		updated, halted, haltErr := e.runStep(runCtx, dept, agent, wctx, execCtx, trace, log)
		wctx = updated
		if halted {
			result.Error = haltErr
			result.Data = wctx
			metrics.DepartmentRuns.WithLabelValues(dept.Name, "failure").Inc()
			return result
		}
	}

	// The manager agent reviews the full accumulated context once. Its
	// failure is recorded but never flips the run's success.
	if dept.ManagerAgent != nil {
		wctx = e.runManager(runCtx, dept, wctx, execCtx, trace, log)
	}

	result.Success = true
	result.Data = wctx
	metrics.DepartmentRuns.WithLabelValues(dept.Name, "success").Inc()
	log.Infof("department run completed in %s", time.Since(started).Round(time.Millisecond))
	return result
}

// runStep executes one ordered agent with the policy's retry budget.
// Returns the (possibly updated) context, whether the run must halt, and
// the error that caused the halt. Retries always re-run against the
// pre-attempt context: the context is mutated only on success.
func (e *Engine) runStep(
	ctx context.Context,
	dept *workflow.Department,
	agent *workflow.Agent,
	wctx workflow.Context,
	execCtx dispatch.ExecutionContext,
	trace *Trace,
	log *logger.Logger,
) (workflow.Context, bool, string) {
	policy := dept.ExecutionPolicy

	maxAttempts := 1
	if policy.RetryOnFail && policy.MaxRetries > 0 {
		maxAttempts = 1 + policy.MaxRetries
	}

	trace.AgentsExecuted = append(trace.AgentsExecuted, agent.Role)
	stepStart := time.Now()
	defer func() {
		elapsed := time.Since(stepStart)
		trace.ExecutionTimes[agent.Role] = elapsed.Seconds()
		metrics.ObserveAgentDuration(agent.Role, elapsed)
	}()

	var firstFailure string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Infof("agent %s: retry attempt %d/%d", agent.Role, attempt, maxAttempts)
			metrics.AgentRetries.WithLabelValues(agent.Role).Inc()
		}

		res := e.runAgent(ctx, agent, wctx, execCtx)
		trace.ToolsInvoked = append(trace.ToolsInvoked, res.ToolsInvoked...)

		if res.Success {
			// Partial-input warnings from lax mode stay visible.
			for _, msg := range res.Errors {
				trace.Errors = append(trace.Errors, fmt.Sprintf("agent %s attempt %d: %s", agent.Role, attempt, msg))
			}
			return wctx.WithOutput(agent.OutputKey, res.Output), false, ""
		}

		if len(res.Errors) == 0 {
			res.Errors = []string{"failed"}
		}
		for _, msg := range res.Errors {
			entry := fmt.Sprintf("agent %s attempt %d: %s", agent.Role, attempt, msg)
			trace.Errors = append(trace.Errors, entry)
			if firstFailure == "" {
				firstFailure = entry
			}
		}
	}

	if policy.HaltOnValidationError {
		log.Warnf("agent %s failed after %d attempts, halting run", agent.Role, maxAttempts)
		return wctx, true, errors.Wrap(errors.ErrPolicyHalt, firstFailure).Error()
	}

	// Non-halting policy: the failed agent's output key is simply absent
	// for downstream agents.
	log.Warnf("agent %s failed after %d attempts, continuing", agent.Role, maxAttempts)
	return wctx, false, ""
}

// runManager executes the manager agent once with the full context and no
// input-key restriction, no retries, no halting.
func (e *Engine) runManager(
	ctx context.Context,
	dept *workflow.Department,
	wctx workflow.Context,
	execCtx dispatch.ExecutionContext,
	trace *Trace,
	log *logger.Logger,
) workflow.Context {
	manager := *dept.ManagerAgent
	manager.InputKeys = nil

	trace.AgentsExecuted = append(trace.AgentsExecuted, manager.Role)
	stepStart := time.Now()

	res := e.runAgent(ctx, &manager, wctx, execCtx)

	elapsed := time.Since(stepStart)
	trace.ExecutionTimes[manager.Role] = elapsed.Seconds()
	metrics.ObserveAgentDuration(manager.Role, elapsed)
	trace.ToolsInvoked = append(trace.ToolsInvoked, res.ToolsInvoked...)

	for _, msg := range res.Errors {
		trace.Errors = append(trace.Errors, fmt.Sprintf("manager %s: %s", manager.Role, msg))
	}

	if !res.Success {
		log.Warnf("manager agent %s failed; run success is unaffected", manager.Role)
		return wctx
	}
	return wctx.WithOutput(manager.OutputKey, res.Output)
}
