package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"backoffice/internal/adapters/config"
	"backoffice/internal/tools"
	"backoffice/pkg/errors"
	"backoffice/pkg/logger"
)

// remoteExecuteRequest is the hosted API's tool execution wire format.
type remoteExecuteRequest struct {
	ToolName  string                 `json:"tool_name"`
	HostedBy  string                 `json:"hosted_by"`
	InputData map[string]interface{} `json:"input_data"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// wireResponse is the shared response envelope of both backends. Any other
// shape is a protocol error.
type wireResponse struct {
	Success *bool                  `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

// RemoteClient calls the hosted tool execution API. Calls are rate limited
// and routed through a circuit breaker so a failing backend degrades into
// fast, classified failures instead of piled-up timeouts.
type RemoteClient struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Result]

	baseURL string
	apiKey  string

	log *logger.Logger
}

// NewRemoteClient builds a remote API client from configuration.
func NewRemoteClient(cfg config.RemoteAPIConfig, log *logger.Logger) *RemoteClient {
	clog := log.With("component", "remote_client")

	maxFailures := cfg.BreakerFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "remote-api",
		MaxRequests: 1, // allow 1 probe in half-open state
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			clog.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &RemoteClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		log:     clog,
	}
}

// Execute performs one authenticated tool execution call.
func (c *RemoteClient) Execute(ctx context.Context, desc tools.Descriptor, payload map[string]interface{}, exec ExecutionContext) *Result {
	baseURL := firstNonEmpty(desc.Endpoint, exec.RemoteBaseURL, c.baseURL)
	apiKey := firstNonEmpty(desc.Secret, exec.RemoteAPIKey, c.apiKey)

	if baseURL == "" {
		return Failed(FailureResolution, "tool %s: remote API base URL not configured", desc.Name)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return classify(desc.Name, err)
	}

	result, err := c.breaker.Execute(func() (*Result, error) {
		return c.post(ctx, baseURL, apiKey, desc, payload)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = errors.Wrapf(errors.ErrUnavailable, "tool %s: remote API circuit open", desc.Name)
		}
		return classify(desc.Name, err)
	}
	return result
}

// post issues the HTTP call. Transport and protocol problems are returned
// as errors so the circuit breaker counts them; a well-formed success=false
// response is a tool-level failure and does not trip the breaker.
func (c *RemoteClient) post(ctx context.Context, baseURL, apiKey string, desc tools.Descriptor, payload map[string]interface{}) (*Result, error) {
	reqBody, err := json.Marshal(remoteExecuteRequest{
		ToolName:  desc.Name,
		HostedBy:  string(desc.HostedBy),
		InputData: payload,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "tool %s: encode request: %v", desc.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/tools/execute", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransport, "tool %s: build request: %v", desc.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		// Preserve the original chain so timeouts classify correctly.
		return nil, fmt.Errorf("tool %s: %w", desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransport, "tool %s: read response: %v", desc.Name, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.Wrapf(errors.ErrAuthentication, "tool %s: remote API returned %d", desc.Name, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(errors.ErrTransport, "tool %s: remote API returned %d: %s", desc.Name, resp.StatusCode, truncate(body))
	}

	return decodeWireResponse(desc.Name, resp.StatusCode, body)
}

// decodeWireResponse normalizes the {success, data?, error?} envelope.
func decodeWireResponse(toolName string, status int, body []byte) (*Result, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil || wire.Success == nil {
		return nil, errors.Wrapf(errors.ErrProtocol, "tool %s: unexpected response shape: %s", toolName, truncate(body))
	}

	if !*wire.Success {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("tool %s: %s", toolName, wire.Error),
			Class:   FailureTool,
			Status:  status,
		}, nil
	}

	return &Result{
		Success: true,
		Data:    wire.Data,
		Status:  status,
	}, nil
}

// classify maps a dispatch error onto a failed, classified result.
func classify(toolName string, err error) *Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return Failed(FailureTimeout, "tool %s: %v", toolName, err)
	case errors.Is(err, errors.ErrAuthentication):
		return Failed(FailureAuthentication, "%v", err)
	case errors.Is(err, errors.ErrProtocol):
		return Failed(FailureProtocol, "%v", err)
	case errors.Is(err, errors.ErrInvalidInput):
		return Failed(FailureResolution, "%v", err)
	default:
		// Transport covers unreachable and unavailable backends alike.
		return Failed(FailureTransport, "%v", err)
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
