package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/errors"
)

func validDepartment() *Department {
	return &Department{
		Name: "invoice_processing",
		Agents: []Agent{
			{
				Role:      "extractor",
				OutputKey: "invoice_data",
				Tools: []ToolRef{
					{Name: "InvoiceExtractionWorkflow", HostedBy: HostedRemoteAPI},
				},
			},
			{
				Role:      "writer",
				OutputKey: "write_confirmation",
				Tools: []ToolRef{
					{Name: "PostgresInsert", HostedBy: HostedLocalBridge},
				},
			},
		},
		WorkflowOrder: []string{"extractor", "writer"},
	}
}

func TestHostedByValid(t *testing.T) {
	assert.True(t, HostedRemoteAPI.Valid())
	assert.True(t, HostedLocalBridge.Valid())
	assert.False(t, HostedBy("").Valid())
	assert.False(t, HostedBy("cloud").Valid())
}

func TestDepartmentValidate(t *testing.T) {
	assert.NoError(t, validDepartment().Validate())
}

func TestDepartmentValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(d *Department)
		sentinel error
	}{
		{
			name:     "missing name",
			mutate:   func(d *Department) { d.Name = "" },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name:     "agent without role",
			mutate:   func(d *Department) { d.Agents[0].Role = "" },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name: "duplicate role",
			mutate: func(d *Department) {
				d.Agents[1].Role = "extractor"
				d.WorkflowOrder = []string{"extractor"}
			},
			sentinel: errors.ErrInvalidInput,
		},
		{
			name:     "agent without output key",
			mutate:   func(d *Department) { d.Agents[0].OutputKey = "" },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name:     "unnamed tool",
			mutate:   func(d *Department) { d.Agents[0].Tools[0].Name = "" },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name:     "unknown hosting location",
			mutate:   func(d *Department) { d.Agents[0].Tools[0].HostedBy = "cloud" },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name:     "empty workflow order",
			mutate:   func(d *Department) { d.WorkflowOrder = nil },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name:     "workflow order references unknown role",
			mutate:   func(d *Department) { d.WorkflowOrder = []string{"extractor", "phantom"} },
			sentinel: errors.ErrAgentNotFound,
		},
		{
			name:     "workflow order repeats role",
			mutate:   func(d *Department) { d.WorkflowOrder = []string{"extractor", "extractor"} },
			sentinel: errors.ErrInvalidInput,
		},
		{
			name: "manager without output key",
			mutate: func(d *Department) {
				d.ManagerAgent = &Agent{Role: "manager"}
			},
			sentinel: errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDepartment()
			tt.mutate(d)

			err := d.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "expected %v, got %v", tt.sentinel, err)
		})
	}
}

func TestDepartmentValidateAllowsPartialOrder(t *testing.T) {
	// Agents absent from workflow_order are declared but never executed.
	d := validDepartment()
	d.WorkflowOrder = []string{"writer"}

	assert.NoError(t, d.Validate())
}

func TestAgentByRole(t *testing.T) {
	d := validDepartment()

	agent, ok := d.AgentByRole("writer")
	require.True(t, ok)
	assert.Equal(t, "writer", agent.Role)

	_, ok = d.AgentByRole("phantom")
	assert.False(t, ok)
}
