package tools

import (
	"backoffice/internal/workflow"
)

// DefaultRegistry returns the static tool catalog: the hosted extraction
// pipeline tools on the remote API, and the database tools served by a
// local bridge.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	for _, d := range []Descriptor{
		{
			Name:        "DatabaseQueryTool",
			HostedBy:    workflow.HostedRemoteAPI,
			Description: "Query table schemas and metadata from the hosted catalog",
		},
		{
			Name:        "PDFProcessor",
			HostedBy:    workflow.HostedRemoteAPI,
			Description: "Convert an invoice PDF into page images for extraction",
		},
		{
			Name:        "InvoiceExtractionWorkflow",
			HostedBy:    workflow.HostedRemoteAPI,
			Description: "Run vision extraction over a processed invoice and return structured sections",
		},
		{
			Name:        "FileDiscovery",
			HostedBy:    workflow.HostedRemoteAPI,
			Description: "List invoice files available for processing",
		},
		{
			Name:        "FileCopy",
			HostedBy:    workflow.HostedRemoteAPI,
			Description: "Stage a local file into the hosted processing store",
		},
		{
			Name:        "DataValidator",
			HostedBy:    workflow.HostedLocalBridge,
			Description: "Validate a flat record against a caller-supplied schema",
		},
		{
			Name:        "PostgresInsert",
			HostedBy:    workflow.HostedLocalBridge,
			Description: "Insert a normalized record into the bridge's database",
		},
		{
			Name:        "SQLExecutor",
			HostedBy:    workflow.HostedLocalBridge,
			Description: "Run a read-only SQL query against the bridge's database",
		},
	} {
		r.Register(d)
	}

	return r
}
