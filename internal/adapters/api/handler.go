// Package api exposes the reconciliation engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

// APIHandler handles HTTP requests for audits, approvals and configuration.
type APIHandler struct {
	audit     ports.AuditService
	approvals ports.ApprovalService
	portfolio ports.PortfolioService
	repo      ports.Repository
	logger    *slog.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(audit ports.AuditService, approvals ports.ApprovalService, portfolio ports.PortfolioService, repo ports.Repository, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{audit: audit, approvals: approvals, portfolio: portfolio, repo: repo, logger: logger}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Middleware
	auth := AuthMiddleware(h.repo)
	admin := RequireRole(domain.RoleAdmin)

	// Reads need any valid key; anything that can touch the provider or the
	// configuration needs the admin role.
	mux.Handle("POST /snapshots", auth(admin(http.HandlerFunc(h.TakeSnapshot))))
	mux.Handle("POST /audits", auth(admin(http.HandlerFunc(h.RunAudit))))
	mux.Handle("POST /heal", auth(admin(http.HandlerFunc(h.RunHeal))))
	mux.Handle("GET /approvals", auth(http.HandlerFunc(h.ListApprovals)))
	mux.Handle("POST /approvals/{id}/approve", auth(admin(http.HandlerFunc(h.ApproveRequest))))
	mux.Handle("POST /approvals/{id}/reject", auth(admin(http.HandlerFunc(h.RejectRequest))))
	mux.Handle("GET /config", auth(http.HandlerFunc(h.ViewConfig)))
	mux.Handle("GET /config/{domain}", auth(http.HandlerFunc(h.ViewConfig)))
	mux.Handle("PATCH /config/{domain}", auth(admin(http.HandlerFunc(h.UpdateConfig))))
	mux.Handle("GET /changes", auth(http.HandlerFunc(h.ViewChanges)))
	mux.Handle("GET /snapshots/{domain}", auth(http.HandlerFunc(h.LatestSnapshot)))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)

	if err := h.repo.Ping(r.Context()); err != nil {
		status = "DEGRADED"
		details["database"] = err.Error()
	} else {
		details["database"] = "OK"
	}

	resp := map[string]any{
		"status":  status,
		"details": details,
	}
	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

type runRequest struct {
	Domain string `json:"domain,omitempty"`
	Tier   int    `json:"tier,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// RunAudit triggers a reconciliation pass over the selected domains.
func (h *APIHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.RunTypeAudit)
}

// RunHeal triggers an explicitly remediation-focused run over the portfolio.
func (h *APIHandler) RunHeal(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, domain.RunTypeHeal)
}

func (h *APIHandler) run(w http.ResponseWriter, r *http.Request, runType domain.RunType) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	run, err := h.audit.RunAudit(r.Context(), ports.RunOptions{
		Domain:      req.Domain,
		Tier:        req.Tier,
		DryRun:      req.DryRun,
		RunType:     runType,
		TriggeredBy: actorName(r.Context()),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

type snapshotRequest struct {
	Domain string `json:"domain,omitempty"`
}

// TakeSnapshot collects fresh snapshots for one domain or the whole portfolio.
func (h *APIHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	snaps, err := h.portfolio.Snapshot(r.Context(), req.Domain)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, snaps)
}

// LatestSnapshot returns the most recent persisted snapshot for a domain.
func (h *APIHandler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.portfolio.LatestSnapshot(r.Context(), r.PathValue("domain"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// ListApprovals returns the approval queue, pending-first by default.
func (h *APIHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ports.ApprovalFilter{
		Status:    domain.ApprovalStatus(q.Get("status")),
		Domain:    q.Get("domain"),
		RiskLevel: domain.RiskLevel(q.Get("risk_level")),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	reqs, err := h.approvals.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

type decisionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ApproveRequest applies a pending approval to the provider.
func (h *APIHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := h.approvals.Approve(r.Context(), r.PathValue("id"), actorName(r.Context()), req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// RejectRequest declines a pending approval.
func (h *APIHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.approvals.Reject(r.Context(), r.PathValue("id"), actorName(r.Context()), req.Notes); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// ViewConfig returns one domain's configuration or the full portfolio.
func (h *APIHandler) ViewConfig(w http.ResponseWriter, r *http.Request) {
	configs, err := h.portfolio.ViewConfig(r.Context(), r.PathValue("domain"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, configs)
}

type configPatchRequest struct {
	AddServices    []string        `json:"add_services,omitempty"`
	RemoveServices []string        `json:"remove_services,omitempty"`
	AddRecords     []domain.Record `json:"add_records,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
}

// UpdateConfig applies a partial configuration update to a domain.
func (h *APIHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cfg, err := h.portfolio.UpdateConfig(r.Context(), r.PathValue("domain"), ports.ConfigPatch{
		AddServices:    req.AddServices,
		RemoveServices: req.RemoveServices,
		AddRecords:     req.AddRecords,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// ViewChanges returns change-ledger entries, newest first.
func (h *APIHandler) ViewChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ports.ChangeFilter{Domain: q.Get("domain")}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			http.Error(w, "Invalid since parameter, want RFC 3339", http.StatusBadRequest)
			return
		}
		f.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	entries, err := h.portfolio.ViewChanges(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// decodeBody decodes an optional JSON body; an empty body is fine.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrProviderUnavailable):
		code = http.StatusBadGateway
	case errors.Is(err, domain.ErrPolicyMalformed):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}
