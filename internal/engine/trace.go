package engine

import (
	"github.com/google/uuid"

	"backoffice/internal/workflow"
)

// Trace records what one department run executed, in what order, and what
// failed. Created fresh per run and returned to the caller; the engine
// never persists it.
type Trace struct {
	AgentsExecuted []string `json:"agents_executed"`
	ToolsInvoked   []string `json:"tools_invoked"`

	// ExecutionTimes maps agent role to elapsed wall-clock seconds,
	// summed across retry attempts.
	ExecutionTimes map[string]float64 `json:"execution_times"`

	Errors []string `json:"errors"`
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{
		AgentsExecuted: []string{},
		ToolsInvoked:   []string{},
		ExecutionTimes: make(map[string]float64),
		Errors:         []string{},
	}
}

// ExecutionResult is the outcome of one department run. Success is false
// only when an agent halted the run or the whole-run deadline expired;
// recorded errors from non-halting failures stay visible in the trace.
type ExecutionResult struct {
	RunID   uuid.UUID        `json:"run_id"`
	Success bool             `json:"success"`
	Data    workflow.Context `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Trace   *Trace           `json:"trace"`
}
