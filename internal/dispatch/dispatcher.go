package dispatch

import (
	"context"

	"backoffice/internal/adapters/config"
	"backoffice/internal/metrics"
	"backoffice/internal/tools"
	"backoffice/internal/workflow"
	"backoffice/pkg/logger"
)

// ExecutionContext supplies endpoint base URLs and secrets for one
// department run, sourced from the department's static context with config
// defaults filled in by the clients. Nothing here is ever hard-coded.
type ExecutionContext struct {
	RemoteBaseURL string
	RemoteAPIKey  string
	BridgeURL     string
	BridgeSecret  string
}

// FromWorkflowContext extracts endpoint overrides from a department's
// static context.
func FromWorkflowContext(wctx workflow.Context) ExecutionContext {
	str := func(key string) string {
		if v, ok := wctx[key].(string); ok {
			return v
		}
		return ""
	}
	return ExecutionContext{
		RemoteBaseURL: str("remote_api_url"),
		RemoteAPIKey:  str("remote_api_key"),
		BridgeURL:     str("bridge_url"),
		BridgeSecret:  str("bridge_secret"),
	}
}

// Dispatcher routes a resolved tool invocation to its backend.
type Dispatcher interface {
	Invoke(ctx context.Context, desc tools.Descriptor, payload map[string]interface{}, exec ExecutionContext) *Result
}

// HTTPDispatcher dispatches tools over HTTP to the hosted API or a local
// bridge process.
type HTTPDispatcher struct {
	remote *RemoteClient
	bridge *BridgeClient

	// allowSynthetic degrades transport failures into tagged placeholder
	// results instead of failed results. Local development only.
	allowSynthetic bool

	log *logger.Logger
}

// NewHTTPDispatcher builds a dispatcher from static configuration.
func NewHTTPDispatcher(remoteCfg config.RemoteAPIConfig, bridgeCfg config.BridgeConfig, log *logger.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		remote:         NewRemoteClient(remoteCfg, log),
		bridge:         NewBridgeClient(bridgeCfg, log),
		allowSynthetic: remoteCfg.AllowSynthetic,
		log:            log.With("component", "dispatcher"),
	}
}

// Invoke performs the backend call for the descriptor and classifies the
// outcome. Unknown hosting locations are a resolution failure.
func (d *HTTPDispatcher) Invoke(ctx context.Context, desc tools.Descriptor, payload map[string]interface{}, exec ExecutionContext) *Result {
	var result *Result

	switch desc.HostedBy {
	case workflow.HostedRemoteAPI:
		result = d.remote.Execute(ctx, desc, payload, exec)
	case workflow.HostedLocalBridge:
		result = d.bridge.Execute(ctx, desc, payload, exec)
	default:
		result = Failed(FailureResolution, "tool %s: unknown hosting location %q", desc.Name, desc.HostedBy)
	}

	if !result.Success && d.allowSynthetic && isDegradable(result.Class) {
		d.log.Warnf("tool %s unreachable (%s), substituting synthetic result", desc.Name, result.Error)
		result = syntheticResult(desc, result)
	}

	status := "failure"
	switch {
	case result.Synthetic:
		status = "synthetic"
	case result.Success:
		status = "success"
	}
	metrics.ToolInvocations.WithLabelValues(desc.Name, string(desc.HostedBy), status).Inc()

	return result
}

// isDegradable limits synthetic substitution to failures where no backend
// was reached. A genuine backend error must never be masked.
func isDegradable(class FailureClass) bool {
	return class == FailureTransport || class == FailureTimeout
}

// syntheticResult produces the explicitly tagged placeholder used when a
// deployment opts into degraded local-testing behavior. The original
// failure stays visible alongside the marker.
func syntheticResult(desc tools.Descriptor, failure *Result) *Result {
	return &Result{
		Success:   true,
		Synthetic: true,
		Data: map[string]interface{}{
			"synthetic":      true,
			"tool":           desc.Name,
			"hosted_by":      string(desc.HostedBy),
			"original_error": failure.Error,
		},
	}
}
