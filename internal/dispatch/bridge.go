package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"backoffice/internal/adapters/config"
	"backoffice/internal/tools"
	"backoffice/pkg/crypto"
	"backoffice/pkg/errors"
	"backoffice/pkg/logger"
)

// SignatureHeader carries the HMAC-SHA256 signature of the raw request
// body on bridge calls.
const SignatureHeader = "X-Bridge-Signature"

// bridgeExecuteRequest is the bridge protocol's tool execution wire format.
type bridgeExecuteRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// BridgeClient calls a local bridge process. Requests are authenticated by
// an HMAC-SHA256 signature over the exact request body using the shared
// secret configured for the run.
type BridgeClient struct {
	http   *http.Client
	url    string
	secret string
	log    *logger.Logger
}

// NewBridgeClient builds a bridge client from configuration.
func NewBridgeClient(cfg config.BridgeConfig, log *logger.Logger) *BridgeClient {
	return &BridgeClient{
		http:   &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		secret: cfg.Secret,
		log:    log.With("component", "bridge_client"),
	}
}

// Execute performs one signed tool execution call against the bridge.
func (c *BridgeClient) Execute(ctx context.Context, desc tools.Descriptor, payload map[string]interface{}, exec ExecutionContext) *Result {
	bridgeURL := firstNonEmpty(desc.Endpoint, exec.BridgeURL, c.url)
	secret := firstNonEmpty(desc.Secret, exec.BridgeSecret, c.secret)

	if bridgeURL == "" {
		return Failed(FailureResolution, "tool %s: bridge URL not configured", desc.Name)
	}
	if secret == "" {
		return Failed(FailureAuthentication, "tool %s: bridge secret not configured", desc.Name)
	}

	result, err := c.post(ctx, bridgeURL, secret, desc, payload)
	if err != nil {
		return classify(desc.Name, err)
	}
	return result
}

func (c *BridgeClient) post(ctx context.Context, bridgeURL, secret string, desc tools.Descriptor, payload map[string]interface{}) (*Result, error) {
	reqBody, err := json.Marshal(bridgeExecuteRequest{
		Tool:   desc.Name,
		Params: payload,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "tool %s: encode request: %v", desc.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bridgeURL+"/execute", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransport, "tool %s: build request: %v", desc.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, crypto.NewSigner(secret).Sign(reqBody))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTransport, "tool %s: read response: %v", desc.Name, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.Wrapf(errors.ErrAuthentication, "tool %s: bridge rejected signature (%d)", desc.Name, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(errors.ErrTransport, "tool %s: bridge returned %d: %s", desc.Name, resp.StatusCode, truncate(body))
	}

	return decodeWireResponse(desc.Name, resp.StatusCode, body)
}
