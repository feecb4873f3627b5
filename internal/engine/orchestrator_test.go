package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/adapters/config"
	"backoffice/internal/dispatch"
	"backoffice/internal/tools"
	"backoffice/internal/workflow"
	"backoffice/pkg/logger"
)

type stubCall struct {
	tool    string
	payload map[string]interface{}
}

// stubDispatcher records every invocation and answers via a per-tool
// responder. The attempt number passed to respond is 1-based and counted
// per tool name.
type stubDispatcher struct {
	mu      sync.Mutex
	calls   []stubCall
	respond func(tool string, attempt int) *dispatch.Result
}

func (s *stubDispatcher) Invoke(ctx context.Context, desc tools.Descriptor, payload map[string]interface{}, exec dispatch.ExecutionContext) *dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	s.calls = append(s.calls, stubCall{tool: desc.Name, payload: copied})

	attempt := 0
	for _, c := range s.calls {
		if c.tool == desc.Name {
			attempt++
		}
	}
	return s.respond(desc.Name, attempt)
}

func (s *stubDispatcher) toolCalls(tool string) []stubCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []stubCall
	for _, c := range s.calls {
		if c.tool == tool {
			matched = append(matched, c)
		}
	}
	return matched
}

func succeedWith(data map[string]interface{}) func(string, int) *dispatch.Result {
	return func(string, int) *dispatch.Result {
		return &dispatch.Result{Success: true, Data: data}
	}
}

func failWith(class dispatch.FailureClass, msg string) *dispatch.Result {
	return dispatch.Failed(class, "%s", msg)
}

func testRegistry() *tools.Registry {
	r := tools.NewRegistry()
	for _, name := range []string{"T1", "T2", "T3", "M1"} {
		r.Register(tools.Descriptor{Name: name, HostedBy: workflow.HostedRemoteAPI})
	}
	return r
}

func newTestEngine(dispatcher dispatch.Dispatcher, cfg config.EngineConfig) *Engine {
	return New(testRegistry(), dispatcher, cfg, logger.Get())
}

func agentWithTool(role, tool, outputKey string, inputKeys ...string) workflow.Agent {
	return workflow.Agent{
		Role:      role,
		OutputKey: outputKey,
		InputKeys: inputKeys,
		Tools: []workflow.ToolRef{
			{Name: tool, HostedBy: workflow.HostedRemoteAPI},
		},
	}
}

func TestExecuteDepartmentSingleAgent(t *testing.T) {
	stub := &stubDispatcher{respond: succeedWith(map[string]interface{}{"v": 5})}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "single",
		Agents:        []workflow.Agent{agentWithTool("a1", "T1", "x")},
		WorkflowOrder: []string{"a1"},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.True(t, result.Success)
	assert.Empty(t, result.Error)
	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.Equal(t, map[string]interface{}{"v": 5}, result.Data["x"])

	assert.Equal(t, []string{"a1"}, result.Trace.AgentsExecuted)
	assert.Equal(t, []string{"T1"}, result.Trace.ToolsInvoked)
	assert.Contains(t, result.Trace.ExecutionTimes, "a1")
	assert.Empty(t, result.Trace.Errors)
}

func TestExecuteDepartmentWorkflowOrderSubset(t *testing.T) {
	stub := &stubDispatcher{respond: succeedWith(map[string]interface{}{"ok": true})}
	eng := newTestEngine(stub, config.EngineConfig{})

	// Agent c is declared but absent from workflow_order: never executed.
	dept := &workflow.Department{
		Name: "subset",
		Agents: []workflow.Agent{
			agentWithTool("a", "T1", "out_a"),
			agentWithTool("b", "T2", "out_b"),
			agentWithTool("c", "T3", "out_c"),
		},
		WorkflowOrder: []string{"b", "a"},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.True(t, result.Success)
	assert.Equal(t, []string{"b", "a"}, result.Trace.AgentsExecuted)
	assert.Empty(t, stub.toolCalls("T3"))
	assert.Contains(t, result.Data, "out_a")
	assert.Contains(t, result.Data, "out_b")
	assert.NotContains(t, result.Data, "out_c")
}

func TestExecuteDepartmentContextFlow(t *testing.T) {
	extracted := map[string]interface{}{"invoice_number": "INV-001"}

	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		if tool == "T1" {
			return &dispatch.Result{Success: true, Data: extracted}
		}
		return &dispatch.Result{Success: true, Data: map[string]interface{}{"written": true}}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name: "pipeline",
		Agents: []workflow.Agent{
			agentWithTool("extractor", "T1", "invoice_data"),
			agentWithTool("writer", "T2", "write_confirmation", "invoice_data"),
		},
		WorkflowOrder: []string{"extractor", "writer"},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, workflow.Context{"file": "invoice.pdf"})

	require.True(t, result.Success)

	// The writer sees exactly its declared input key, carrying the
	// extractor's output.
	writerCalls := stub.toolCalls("T2")
	require.Len(t, writerCalls, 1)
	assert.Equal(t, map[string]interface{}{"invoice_data": extracted}, writerCalls[0].payload)

	// Caller input and both outputs accumulate in the final context.
	assert.Equal(t, "invoice.pdf", result.Data["file"])
	assert.Equal(t, extracted, result.Data["invoice_data"].(map[string]interface{}))
	assert.Contains(t, result.Data, "write_confirmation")
}

func TestExecuteDepartmentStaticContextMergedUnderInput(t *testing.T) {
	stub := &stubDispatcher{respond: succeedWith(nil)}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "ctx",
		Agents:        []workflow.Agent{agentWithTool("a", "T1", "out")},
		WorkflowOrder: []string{"a"},
		Context:       map[string]interface{}{"bridge_url": "http://localhost:8081", "source": "static"},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, workflow.Context{"source": "input"})

	require.True(t, result.Success)
	assert.Equal(t, "http://localhost:8081", result.Data["bridge_url"])
	assert.Equal(t, "input", result.Data["source"], "caller input overrides static context")
}

func TestExecuteDepartmentInvalidDeclaration(t *testing.T) {
	stub := &stubDispatcher{respond: succeedWith(nil)}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:   "broken",
		Agents: []workflow.Agent{agentWithTool("a", "T1", "out")},
		// workflow_order left empty
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "workflow_order")
	assert.Empty(t, stub.calls, "no tool may run for an invalid declaration")
}

func TestExecuteDepartmentHaltOnFailure(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		if tool == "T2" {
			return failWith(dispatch.FailureTool, "validation failed")
		}
		return &dispatch.Result{Success: true, Data: map[string]interface{}{"ok": true}}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name: "halting",
		Agents: []workflow.Agent{
			agentWithTool("a", "T1", "out_a"),
			agentWithTool("b", "T2", "out_b"),
			agentWithTool("c", "T3", "out_c"),
		},
		WorkflowOrder:   []string{"a", "b", "c"},
		ExecutionPolicy: workflow.ExecutionPolicy{HaltOnValidationError: true},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "halted on agent failure")
	assert.Contains(t, result.Error, "agent b attempt 1")
	assert.Contains(t, result.Error, "validation failed")

	// Agent c never runs; the partial context keeps a's output.
	assert.Equal(t, []string{"a", "b"}, result.Trace.AgentsExecuted)
	assert.Empty(t, stub.toolCalls("T3"))
	assert.Contains(t, result.Data, "out_a")
	assert.NotContains(t, result.Data, "out_b")
}

func TestExecuteDepartmentContinueOnFailure(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		if tool == "T2" {
			return failWith(dispatch.FailureTransport, "backend unreachable")
		}
		return &dispatch.Result{Success: true, Data: map[string]interface{}{"ok": true}}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name: "lenient",
		Agents: []workflow.Agent{
			agentWithTool("a", "T1", "out_a"),
			agentWithTool("b", "T2", "out_b"),
			agentWithTool("c", "T3", "out_c"),
		},
		WorkflowOrder: []string{"a", "b", "c"},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	// The failed agent's output key is absent, the run still succeeds.
	require.True(t, result.Success)
	assert.Equal(t, []string{"a", "b", "c"}, result.Trace.AgentsExecuted)
	assert.Contains(t, result.Data, "out_a")
	assert.NotContains(t, result.Data, "out_b")
	assert.Contains(t, result.Data, "out_c")
	assert.NotEmpty(t, result.Trace.Errors)
}

func TestExecuteDepartmentRetryBudget(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		return failWith(dispatch.FailureTransport, "still down")
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "retrying",
		Agents:        []workflow.Agent{agentWithTool("a", "T1", "out")},
		WorkflowOrder: []string{"a"},
		ExecutionPolicy: workflow.ExecutionPolicy{
			RetryOnFail:           true,
			MaxRetries:            2,
			HaltOnValidationError: true,
		},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.False(t, result.Success)
	assert.Len(t, stub.toolCalls("T1"), 3, "1 initial attempt + 2 retries")
	assert.Len(t, result.Trace.Errors, 3)
}

func TestExecuteDepartmentRetrySucceedsOnLaterAttempt(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		if attempt < 3 {
			return failWith(dispatch.FailureTimeout, "timed out")
		}
		return &dispatch.Result{Success: true, Data: map[string]interface{}{"attempt": attempt}}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "recovering",
		Agents:        []workflow.Agent{agentWithTool("a", "T1", "out")},
		WorkflowOrder: []string{"a"},
		ExecutionPolicy: workflow.ExecutionPolicy{
			RetryOnFail:           true,
			MaxRetries:            2,
			HaltOnValidationError: true,
		},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.True(t, result.Success)
	assert.Len(t, stub.toolCalls("T1"), 3)
	assert.Equal(t, map[string]interface{}{"attempt": 3}, result.Data["out"])
	// The two failed attempts stay visible in the trace.
	assert.Len(t, result.Trace.Errors, 2)
}

func TestExecuteDepartmentRetryReusesPreAttemptContext(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		if attempt < 3 {
			return failWith(dispatch.FailureTransport, "flaky")
		}
		return &dispatch.Result{Success: true, Data: nil}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "snapshot",
		Agents:        []workflow.Agent{agentWithTool("a", "T1", "out", "seed")},
		WorkflowOrder: []string{"a"},
		ExecutionPolicy: workflow.ExecutionPolicy{
			RetryOnFail: true,
			MaxRetries:  2,
		},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, workflow.Context{"seed": "original"})
	require.True(t, result.Success)

	calls := stub.toolCalls("T1")
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, map[string]interface{}{"seed": "original"}, call.payload, "attempt %d payload", i+1)
	}
}

func TestExecuteDepartmentManagerRunsLast(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		return &dispatch.Result{Success: true, Data: map[string]interface{}{"via": tool}}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "managed",
		Agents:        []workflow.Agent{agentWithTool("a", "T1", "out_a")},
		WorkflowOrder: []string{"a"},
		ManagerAgent: &workflow.Agent{
			Role:            "manager",
			OutputKey:       "review",
			AllowDelegation: true,
			// InputKeys are declared but the manager always sees the full
			// context anyway.
			InputKeys: []string{"out_a"},
			Tools: []workflow.ToolRef{
				{Name: "M1", HostedBy: workflow.HostedRemoteAPI},
			},
		},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, workflow.Context{"file": "invoice.pdf"})

	require.True(t, result.Success)
	assert.Equal(t, map[string]interface{}{"via": "M1"}, result.Data["review"])

	// The manager receives the full accumulated context, not a projection.
	managerCalls := stub.toolCalls("M1")
	require.Len(t, managerCalls, 1)
	assert.Contains(t, managerCalls[0].payload, "file")
	assert.Contains(t, managerCalls[0].payload, "out_a")

	assert.Equal(t, []string{"a", "manager"}, result.Trace.AgentsExecuted)
}

func TestExecuteDepartmentManagerFailureDoesNotFlipSuccess(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		if tool == "M1" {
			return failWith(dispatch.FailureTransport, "review backend down")
		}
		return &dispatch.Result{Success: true, Data: nil}
	}
	eng := newTestEngine(stub, config.EngineConfig{})

	dept := &workflow.Department{
		Name:          "managed",
		Agents:        []workflow.Agent{agentWithTool("a", "T1", "out_a")},
		WorkflowOrder: []string{"a"},
		ExecutionPolicy: workflow.ExecutionPolicy{
			RetryOnFail:           true,
			MaxRetries:            3,
			HaltOnValidationError: true,
		},
		ManagerAgent: &workflow.Agent{
			Role:      "manager",
			OutputKey: "review",
			Tools: []workflow.ToolRef{
				{Name: "M1", HostedBy: workflow.HostedRemoteAPI},
			},
		},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	require.True(t, result.Success)
	assert.NotContains(t, result.Data, "review")
	// The manager gets no retries even under a retrying policy.
	assert.Len(t, stub.toolCalls("M1"), 1)

	found := false
	for _, msg := range result.Trace.Errors {
		if strings.HasPrefix(msg, "manager") {
			found = true
		}
	}
	assert.True(t, found, "manager failure must be recorded in the trace: %v", result.Trace.Errors)
}

func TestExecuteDepartmentRunTimeout(t *testing.T) {
	stub := &stubDispatcher{}
	stub.respond = func(tool string, attempt int) *dispatch.Result {
		time.Sleep(80 * time.Millisecond)
		return &dispatch.Result{Success: true, Data: nil}
	}
	eng := newTestEngine(stub, config.EngineConfig{DefaultTimeout: 50 * time.Millisecond})

	dept := &workflow.Department{
		Name: "slow",
		Agents: []workflow.Agent{
			agentWithTool("a", "T1", "out_a"),
			agentWithTool("b", "T2", "out_b"),
		},
		WorkflowOrder: []string{"a", "b"},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)

	// The first agent finishes past the deadline; the second never starts.
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "department run timeout")
	assert.Equal(t, []string{"a"}, result.Trace.AgentsExecuted)
	assert.Empty(t, stub.toolCalls("T2"))
	assert.Contains(t, result.Data, "out_a", "partial context is preserved")
}

func TestExecuteDepartmentPolicyTimeoutOverridesDefault(t *testing.T) {
	stub := &stubDispatcher{respond: succeedWith(nil)}
	eng := newTestEngine(stub, config.EngineConfig{DefaultTimeout: time.Nanosecond})

	dept := &workflow.Department{
		Name:            "quick",
		Agents:          []workflow.Agent{agentWithTool("a", "T1", "out")},
		WorkflowOrder:   []string{"a"},
		ExecutionPolicy: workflow.ExecutionPolicy{TimeoutSeconds: 60},
	}

	result := eng.ExecuteDepartment(context.Background(), dept, nil)
	assert.True(t, result.Success)
}
