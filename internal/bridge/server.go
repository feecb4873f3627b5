package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"backoffice/internal/adapters/config"
	"backoffice/internal/dispatch"
	"backoffice/internal/metrics"
	"backoffice/pkg/crypto"
	"backoffice/pkg/errors"
	"backoffice/pkg/logger"
)

// Store is the persistence surface the bridge needs: parameterized insert
// returning the full row, and read-only queries.
type Store interface {
	Insert(ctx context.Context, table string, record map[string]interface{}) (map[string]interface{}, error)
	Query(ctx context.Context, query string) ([]map[string]interface{}, error)
}

// Pinger reports backing-store connectivity for the status endpoint.
type Pinger interface {
	Health(ctx context.Context) error
}

// Server is the local bridge process: it authenticates inbound tool
// requests, normalizes payloads into flat records, validates them, and
// performs database writes. Requests are independent; the only
// cross-request state is the monotonic request counter and the connection
// pool.
type Server struct {
	httpServer *http.Server
	signer     *crypto.Signer
	store      Store
	pinger     Pinger

	defaultTable string
	serviceName  string

	startTime    time.Time
	requestCount atomic.Int64

	log *logger.Logger
}

// NewServer wires the bridge service from configuration.
func NewServer(cfg config.BridgeConfig, store Store, pinger Pinger, log *logger.Logger) *Server {
	s := &Server{
		signer:       crypto.NewSigner(cfg.Secret),
		store:        store,
		pinger:       pinger,
		defaultTable: cfg.Table,
		serviceName:  "bridge",
		startTime:    time.Now(),
		log:          log.With("component", "bridge"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for requests. Blocks until stopped.
func (s *Server) Start() error {
	s.log.Infof("bridge listening on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "bridge server failed")
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("stopping bridge server...")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type executeRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// handleExecute authenticates and routes one tool execution request.
// Authentication happens before anything touches the database layer.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if !s.signer.Verify(body, r.Header.Get(dispatch.SignatureHeader)) {
		s.log.Warn("rejected request with invalid signature")
		metrics.BridgeRequests.WithLabelValues("unknown", "unauthorized").Inc()
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req executeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s.requestCount.Add(1)
	started := time.Now()
	s.log.Infof("executing tool %s", req.Tool)

	var result *dispatch.Result
	switch req.Tool {
	case "PostgresInsert":
		result = s.runInsert(r.Context(), req.Params)
	case "DataValidator":
		result = s.runValidate(req.Params)
	case "SQLExecutor":
		result = s.runQuery(r.Context(), req.Params)
	default:
		result = dispatch.Failed(dispatch.FailureResolution, "Unknown tool: %s", req.Tool)
	}

	status := "failure"
	if result.Success {
		status = "success"
	}
	metrics.BridgeRequests.WithLabelValues(req.Tool, status).Inc()
	metrics.BridgeRequestDuration.WithLabelValues(req.Tool).Observe(time.Since(started).Seconds())

	s.writeJSON(w, http.StatusOK, result)
}

// runInsert normalizes the payload and writes it. When the caller asks
// for validation, the insert is attempted only for valid records.
func (s *Server) runInsert(ctx context.Context, params map[string]interface{}) *dispatch.Result {
	record := ExtractRecord(params)
	if len(record) == 0 {
		return dispatch.Failed(dispatch.FailureTool, "no record data in request")
	}

	table := s.defaultTable
	if t, ok := params["table_name"].(string); ok && t != "" {
		table = t
	}

	if wantsValidation(params) {
		schema, err := schemaFromParams(params)
		if err != nil {
			return dispatch.Failed(dispatch.FailureTool, "%v", err)
		}
		report := ValidateRecord(record, schema)
		if !report.IsValid {
			return &dispatch.Result{
				Success: false,
				Error:   errors.Wrapf(errors.ErrValidation, "%s", strings.Join(report.Violations, "; ")).Error(),
				Class:   dispatch.FailureTool,
				Data: map[string]interface{}{
					"validation_errors": report.Violations,
				},
			}
		}
	}

	row, err := s.store.Insert(ctx, table, record)
	if err != nil {
		if errors.Is(err, errors.ErrIntegrity) {
			return &dispatch.Result{
				Success: false,
				Error:   err.Error(),
				Class:   dispatch.FailureTool,
				Data:    map[string]interface{}{"error_type": "integrity_error"},
			}
		}
		return &dispatch.Result{
			Success: false,
			Error:   err.Error(),
			Class:   dispatch.FailureTool,
			Data:    map[string]interface{}{"error_type": "general_error"},
		}
	}

	s.log.Infof("inserted record into %s: %v", table, row["id"])

	return &dispatch.Result{
		Success: true,
		Data: map[string]interface{}{
			"record":    row,
			"record_id": row["id"],
			"table":     table,
		},
	}
}

// runValidate checks the extracted record against the caller's schema.
// The tool succeeds even when the record is invalid; the verdict is data.
func (s *Server) runValidate(params map[string]interface{}) *dispatch.Result {
	record := ExtractRecord(params)

	schema, err := schemaFromParams(params)
	if err != nil {
		return dispatch.Failed(dispatch.FailureTool, "%v", err)
	}

	report := ValidateRecord(record, schema)
	return &dispatch.Result{
		Success: true,
		Data: map[string]interface{}{
			"is_valid":          report.IsValid,
			"validation_errors": report.Violations,
			"validated_data":    report.ValidatedData,
		},
	}
}

// runQuery executes a read-only statement for database monitoring agents.
func (s *Server) runQuery(ctx context.Context, params map[string]interface{}) *dispatch.Result {
	query, _ := params["sql_query"].(string)
	if query == "" {
		query, _ = params["query"].(string)
	}
	if query == "" {
		return dispatch.Failed(dispatch.FailureTool, "missing sql_query parameter")
	}

	rows, err := s.store.Query(ctx, query)
	if err != nil {
		return dispatch.Failed(dispatch.FailureTool, "%v", err)
	}

	return &dispatch.Result{
		Success: true,
		Data: map[string]interface{}{
			"rows":      rows,
			"row_count": len(rows),
		},
	}
}

func wantsValidation(params map[string]interface{}) bool {
	v, ok := params["validate"].(bool)
	return ok && v
}

// schemaFromParams reads the caller-supplied schema from its two
// conventional keys.
func schemaFromParams(params map[string]interface{}) (Schema, error) {
	raw, ok := params["invoice_schema"]
	if !ok {
		raw, ok = params["schema"]
	}
	if !ok {
		return Schema{}, errors.Wrap(errors.ErrInvalidInput, "missing schema")
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return Schema{}, errors.Wrap(errors.ErrInvalidInput, "unreadable schema")
	}
	var schema Schema
	if err := json.Unmarshal(encoded, &schema); err != nil {
		return Schema{}, errors.Wrap(errors.ErrInvalidInput, "malformed schema")
	}
	return schema, nil
}

// handleTools lists the bridge's static capability set.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": []map[string]string{
			{"name": "PostgresInsert", "hosted_by": "local-bridge", "description": "Insert a normalized record into the bridge's database"},
			{"name": "DataValidator", "hosted_by": "local-bridge", "description": "Validate a flat record against a caller-supplied schema"},
			{"name": "SQLExecutor", "hosted_by": "local-bridge", "description": "Run a read-only SQL query against the bridge's database"},
		},
		"service": s.serviceName,
	})
}

// handleStatus reports health, uptime, the request counter, and a
// backing-store connectivity probe.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	connected := false
	if s.pinger != nil {
		connected = s.pinger.Health(ctx) == nil
	}

	status := "healthy"
	if !connected {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             status,
		"service":            s.serviceName,
		"requests_processed": s.requestCount.Load(),
		"uptime_seconds":     time.Since(s.startTime).Seconds(),
		"postgres_connected": connected,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Errorf("failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
