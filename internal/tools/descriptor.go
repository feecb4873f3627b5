package tools

import (
	"backoffice/internal/workflow"
)

// Descriptor binds a (tool name, hosting location) pair to a dispatch
// strategy and its default configuration. Descriptors are registered at
// startup from static configuration and never change afterwards.
type Descriptor struct {
	Name        string            `json:"name"`
	HostedBy    workflow.HostedBy `json:"hosted_by"`
	Description string            `json:"description"`

	// Endpoint overrides the configured base URL for this tool, when set.
	Endpoint string `json:"endpoint,omitempty"`

	// Secret overrides the configured credential for this tool, when set.
	// For remote tools this is an API key; for bridge tools a shared secret.
	Secret string `json:"-"`
}

// Key returns the registry lookup key for the descriptor.
func (d Descriptor) Key() string {
	return d.Name + "@" + string(d.HostedBy)
}
