package workflow

import (
	"fmt"

	"backoffice/pkg/errors"
)

// HostedBy identifies which backend executes a tool.
type HostedBy string

const (
	// HostedRemoteAPI routes the tool to the hosted execution API.
	HostedRemoteAPI HostedBy = "remote-api"

	// HostedLocalBridge routes the tool to a bridge process colocated
	// with private resources.
	HostedLocalBridge HostedBy = "local-bridge"
)

// Valid reports whether the hosting location is a known backend.
func (h HostedBy) Valid() bool {
	return h == HostedRemoteAPI || h == HostedLocalBridge
}

// ToolRef is one tool invocation declared by an agent. Immutable once
// constructed; owned by the declaring agent.
type ToolRef struct {
	Name      string                 `json:"name"`
	HostedBy  HostedBy               `json:"hosted_by"`
	InputKeys []string               `json:"input_keys,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// Agent is one declared unit of work in a department pipeline. Agents are
// stateless and reusable across executions; the engine never mutates them.
type Agent struct {
	Role string `json:"role"`

	// Job is a human description of the agent's responsibility. Not executed.
	Job string `json:"job,omitempty"`

	Tools []ToolRef `json:"tools"`

	// InputKeys restricts which shared-context keys the agent sees. When
	// empty, the whole context is forwarded.
	InputKeys []string `json:"input_keys,omitempty"`

	// OutputKey is the shared-context key the agent's result is written to.
	OutputKey string `json:"output_key"`

	// SOPs are ordered procedure hints for operators. Descriptive only.
	SOPs []string `json:"sops,omitempty"`

	// Systems lists external systems the agent touches. Descriptive only.
	Systems []string `json:"systems,omitempty"`

	// AllowDelegation marks a manager agent as permitted to coordinate
	// the department's other agents.
	AllowDelegation bool `json:"allow_delegation,omitempty"`
}

// ExecutionPolicy controls retries, halting, and the whole-run deadline.
type ExecutionPolicy struct {
	RetryOnFail           bool `json:"retry_on_fail"`
	MaxRetries            int  `json:"max_retries"`
	HaltOnValidationError bool `json:"halt_on_validation_error"`
	TimeoutSeconds        int  `json:"timeout_seconds"`
}

// Department is a named, ordered collection of agents plus execution policy.
type Department struct {
	Name    string `json:"name"`
	Mission string `json:"mission,omitempty"`

	Agents []Agent `json:"agents"`

	// WorkflowOrder defines execution order by role. An agent whose role is
	// absent from WorkflowOrder is never executed.
	WorkflowOrder []string `json:"workflow_order"`

	// ManagerAgent runs once after the ordered agents complete, with the
	// full accumulated context and no input-key restriction.
	ManagerAgent *Agent `json:"manager_agent,omitempty"`

	ExecutionPolicy ExecutionPolicy `json:"execution_policy"`

	// Context is static configuration merged into every run's shared
	// context, e.g. the bridge endpoint and shared secret.
	Context map[string]interface{} `json:"context,omitempty"`

	// Dependencies lists declared external systems. Descriptive only.
	Dependencies []string `json:"dependencies,omitempty"`
}

// AgentByRole returns the agent declared under the given role.
func (d *Department) AgentByRole(role string) (*Agent, bool) {
	for i := range d.Agents {
		if d.Agents[i].Role == role {
			return &d.Agents[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of a department declaration:
// unique roles, resolvable workflow order, and well-formed agents.
func (d *Department) Validate() error {
	if d.Name == "" {
		return errors.Wrap(errors.ErrInvalidInput, "department name is required")
	}

	roles := make(map[string]struct{}, len(d.Agents))
	for i := range d.Agents {
		a := &d.Agents[i]
		if a.Role == "" {
			return errors.Wrapf(errors.ErrInvalidInput, "department %s: agent %d has no role", d.Name, i)
		}
		if _, dup := roles[a.Role]; dup {
			return errors.Wrapf(errors.ErrInvalidInput, "department %s: duplicate agent role %q", d.Name, a.Role)
		}
		roles[a.Role] = struct{}{}

		if a.OutputKey == "" {
			return errors.Wrapf(errors.ErrInvalidInput, "department %s: agent %q has no output key", d.Name, a.Role)
		}
		for _, tool := range a.Tools {
			if tool.Name == "" {
				return errors.Wrapf(errors.ErrInvalidInput, "department %s: agent %q declares an unnamed tool", d.Name, a.Role)
			}
			if !tool.HostedBy.Valid() {
				return errors.Wrapf(errors.ErrInvalidInput,
					"department %s: agent %q tool %q has unknown hosting %q", d.Name, a.Role, tool.Name, tool.HostedBy)
			}
		}
	}

	if len(d.WorkflowOrder) == 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "department %s: workflow_order is empty", d.Name)
	}
	seen := make(map[string]struct{}, len(d.WorkflowOrder))
	for _, role := range d.WorkflowOrder {
		if _, ok := roles[role]; !ok {
			return errors.Wrapf(errors.ErrAgentNotFound, "department %s: workflow_order role %q", d.Name, role)
		}
		if _, dup := seen[role]; dup {
			return errors.Wrapf(errors.ErrInvalidInput, "department %s: workflow_order repeats role %q", d.Name, role)
		}
		seen[role] = struct{}{}
	}

	if d.ManagerAgent != nil && d.ManagerAgent.OutputKey == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "department %s: manager agent has no output key", d.Name)
	}

	return nil
}

// String implements fmt.Stringer for log output.
func (d *Department) String() string {
	return fmt.Sprintf("Department(%s, %d agents)", d.Name, len(d.Agents))
}
