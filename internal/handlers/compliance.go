package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/httperr"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/services"
)

// ComplianceHandler serves retention policies, audit trails, access logs
// and reports. Every route is role gated: auditors read, admins and
// compliance officers read and write.
type ComplianceHandler struct {
	compliance services.ComplianceService
	users      services.UserService
	log        *slog.Logger
}

func NewComplianceHandler(compliance services.ComplianceService, users services.UserService, log *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{compliance: compliance, users: users, log: log}
}

// requireRole loads the caller and checks the given permission. Returns
// the zero id and false after writing the response when refused.
func (h *ComplianceHandler) requireRole(w http.ResponseWriter, r *http.Request, allowed func(models.Role) bool) (int, bool) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return 0, false
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		httperr.FromError(w, err)
		return 0, false
	}
	if !allowed(user.Role) {
		httperr.Forbidden(w, "insufficient role")
		return 0, false
	}
	return userID, true
}

type retentionPolicyRequest struct {
	Name                  string  `json:"name"`
	Description           *string `json:"description,omitempty"`
	MessageClassification *string `json:"messageClassification,omitempty"`
	RetentionPeriodDays   int     `json:"retentionPeriodDays"`
	IsActive              *bool   `json:"isActive,omitempty"`
}

func (h *ComplianceHandler) CreateRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireRole(w, r, models.Role.CanManageCompliance)
	if !ok {
		return
	}

	var req retentionPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}
	if req.Name == "" || req.RetentionPeriodDays <= 0 {
		httperr.Validation(w, "name and a positive retentionPeriodDays are required")
		return
	}

	policy, err := h.compliance.CreateRetentionPolicy(r.Context(), userID, services.RetentionPolicyInput{
		Name:                  req.Name,
		Description:           req.Description,
		MessageClassification: req.MessageClassification,
		RetentionPeriodDays:   req.RetentionPeriodDays,
		IsActive:              req.IsActive,
	})
	if err != nil {
		httperr.Internal(w, "failed to create retention policy")
		return
	}

	h.audit(r, userID, "retention_policy_created", models.ResourceRetentionPolicy, policy.ID)

	writeJSON(w, http.StatusCreated, policy)
}

func (h *ComplianceHandler) ListRetentionPolicies(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, models.Role.CanReadCompliance); !ok {
		return
	}

	policies, err := h.compliance.ListRetentionPolicies(r.Context())
	if err != nil {
		httperr.Internal(w, "failed to list retention policies")
		return
	}
	if policies == nil {
		policies = []models.RetentionPolicy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *ComplianceHandler) UpdateRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireRole(w, r, models.Role.CanManageCompliance)
	if !ok {
		return
	}
	policyID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	var req retentionPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}

	policy, err := h.compliance.UpdateRetentionPolicy(r.Context(), policyID, services.RetentionPolicyInput{
		Name:                  req.Name,
		Description:           req.Description,
		MessageClassification: req.MessageClassification,
		RetentionPeriodDays:   req.RetentionPeriodDays,
		IsActive:              req.IsActive,
	})
	if err != nil {
		httperr.FromError(w, err)
		return
	}

	h.audit(r, userID, "retention_policy_updated", models.ResourceRetentionPolicy, policyID)

	writeJSON(w, http.StatusOK, policy)
}

func (h *ComplianceHandler) ListAccessLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, models.Role.CanReadCompliance); !ok {
		return
	}

	logs, err := h.compliance.ListAccessLogs(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		httperr.Internal(w, "failed to list access logs")
		return
	}
	if logs == nil {
		logs = []models.AccessLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *ComplianceHandler) ListAuditTrail(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, models.Role.CanReadCompliance); !ok {
		return
	}

	entries, err := h.compliance.ListAuditTrail(r.Context(), auditFilterFromQuery(r))
	if err != nil {
		httperr.Internal(w, "failed to list audit trail")
		return
	}
	if entries == nil {
		entries = []models.AuditTrail{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type createReportRequest struct {
	ReportType string          `json:"reportType"`
	ReportData json.RawMessage `json:"reportData"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func (h *ComplianceHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireRole(w, r, models.Role.CanManageCompliance)
	if !ok {
		return
	}

	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}
	if req.ReportType == "" || len(req.ReportData) == 0 {
		httperr.Validation(w, "reportType and reportData are required")
		return
	}

	report, err := h.compliance.CreateReport(r.Context(), userID, req.ReportType, req.ReportData, req.Parameters)
	if err != nil {
		httperr.Internal(w, "failed to create report")
		return
	}

	h.audit(r, userID, "compliance_report_generated", models.ResourceReport, report.ID)

	writeJSON(w, http.StatusCreated, report)
}

func (h *ComplianceHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, models.Role.CanReadCompliance); !ok {
		return
	}

	reports, err := h.compliance.ListReports(r.Context())
	if err != nil {
		httperr.Internal(w, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []models.ComplianceReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *ComplianceHandler) audit(r *http.Request, userID int, eventType, resourceType string, resourceID int) {
	err := h.compliance.RecordAudit(r.Context(), services.AuditEntry{
		EventType:    eventType,
		UserID:       userID,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.log.Warn("audit write failed", "event_type", eventType, "error", err)
	}
}

func auditFilterFromQuery(r *http.Request) services.AuditFilter {
	q := r.URL.Query()
	f := services.AuditFilter{
		ResourceType: q.Get("resource_type"),
		EventType:    q.Get("event_type"),
	}
	if v := q.Get("user_id"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			f.UserID = &id
		}
	}
	if v := q.Get("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateFrom = &t
		}
	}
	if v := q.Get("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateTo = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	return f
}
