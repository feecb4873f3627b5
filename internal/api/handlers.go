package api

import (
	"encoding/json"
	"net/http"

	"backoffice/internal/dispatch"
	"backoffice/internal/engine"
	"backoffice/internal/tools"
	"backoffice/internal/workflow"
	"backoffice/pkg/logger"
)

// ToolsHandler exposes tool discovery, ad-hoc tool execution, and
// department execution over HTTP.
type ToolsHandler struct {
	registry   *tools.Registry
	dispatcher dispatch.Dispatcher
	engine     *engine.Engine
	log        *logger.Logger
}

// NewToolsHandler creates the handler.
func NewToolsHandler(registry *tools.Registry, dispatcher dispatch.Dispatcher, eng *engine.Engine, log *logger.Logger) *ToolsHandler {
	return &ToolsHandler{
		registry:   registry,
		dispatcher: dispatcher,
		engine:     eng,
		log:        log.With("component", "api"),
	}
}

// HandleDiscover lists registered tools. Read-only.
func (h *ToolsHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	descriptors := h.registry.List()
	listed := make([]map[string]string, 0, len(descriptors))
	for _, d := range descriptors {
		listed = append(listed, map[string]string{
			"name":        d.Name,
			"hosted_by":   string(d.HostedBy),
			"description": d.Description,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": listed})
}

type executeToolRequest struct {
	ToolName  string                 `json:"tool_name"`
	HostedBy  string                 `json:"hosted_by"`
	InputData map[string]interface{} `json:"input_data"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// HandleExecute runs a single tool outside any department pipeline.
func (h *ToolsHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req executeToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "malformed request body",
		})
		return
	}

	desc, err := h.registry.Resolve(req.ToolName, workflow.HostedBy(req.HostedBy))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	if endpoint, ok := req.Config["endpoint"].(string); ok && endpoint != "" {
		desc.Endpoint = endpoint
	}
	if secret, ok := req.Config["secret"].(string); ok && secret != "" {
		desc.Secret = secret
	}

	result := h.dispatcher.Invoke(r.Context(), desc, req.InputData, dispatch.ExecutionContext{})
	writeJSON(w, http.StatusOK, result)
}

type executeDepartmentRequest struct {
	Department workflow.Department    `json:"department"`
	InputData  map[string]interface{} `json:"input_data"`
}

// HandleDepartmentExecute runs a caller-declared department to completion
// and returns the execution result with its trace.
func (h *ToolsHandler) HandleDepartmentExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req executeDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "malformed request body",
		})
		return
	}

	h.log.Infof("executing department %s", req.Department.Name)

	result := h.engine.ExecuteDepartment(r.Context(), &req.Department, req.InputData)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
