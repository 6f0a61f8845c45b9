package models

import (
	"encoding/json"
	"time"
)

// Access-log actions.
const (
	ActionView        = "view"
	ActionDownload    = "download"
	ActionCreate      = "create"
	ActionEdit        = "edit"
	ActionDelete      = "delete"
	ActionExport      = "export"
	ActionAcknowledge = "acknowledge"
)

// Resource types referenced by access logs and audit trails.
const (
	ResourceMessage         = "message"
	ResourceFile            = "file"
	ResourceConversation    = "conversation"
	ResourceUser            = "user"
	ResourceRetentionPolicy = "retention_policy"
	ResourceReport          = "compliance_report"
)

// AccessLog is an append-only record of who touched what. Never updated
// after creation.
type AccessLog struct {
	ID           int             `json:"id" db:"id"`
	UserID       int             `json:"userId" db:"user_id"`
	Action       string          `json:"action" db:"action"`
	ResourceType string          `json:"resourceType" db:"resource_type"`
	ResourceID   int             `json:"resourceId" db:"resource_id"`
	IPAddress    *string         `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent    *string         `json:"userAgent,omitempty" db:"user_agent"`
	Metadata     json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Timestamp    time.Time       `json:"timestamp" db:"ts"`

	User *User `json:"user,omitempty"`
}

// AuditTrail is an append-only record of a state mutation, with before and
// after values where they apply.
type AuditTrail struct {
	ID           int             `json:"id" db:"id"`
	EventType    string          `json:"eventType" db:"event_type"`
	UserID       int             `json:"userId" db:"user_id"`
	ResourceType *string         `json:"resourceType,omitempty" db:"resource_type"`
	ResourceID   *int            `json:"resourceId,omitempty" db:"resource_id"`
	OldValues    json.RawMessage `json:"oldValues,omitempty" db:"old_values"`
	NewValues    json.RawMessage `json:"newValues,omitempty" db:"new_values"`
	IPAddress    *string         `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent    *string         `json:"userAgent,omitempty" db:"user_agent"`
	Timestamp    time.Time       `json:"timestamp" db:"ts"`

	User *User `json:"user,omitempty"`
}

type MessageAcknowledgment struct {
	ID             int       `json:"id" db:"id"`
	MessageID      int       `json:"messageId" db:"message_id"`
	UserID         int       `json:"userId" db:"user_id"`
	AcknowledgedAt time.Time `json:"acknowledgedAt" db:"acknowledged_at"`
	IPAddress      *string   `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent      *string   `json:"userAgent,omitempty" db:"user_agent"`

	User *User `json:"user,omitempty"`
}

// RetentionPolicy is the one compliance record admins and compliance
// officers may mutate after creation.
type RetentionPolicy struct {
	ID                    int       `json:"id" db:"id"`
	Name                  string    `json:"name" db:"name"`
	Description           *string   `json:"description,omitempty" db:"description"`
	MessageClassification *string   `json:"messageClassification,omitempty" db:"message_classification"`
	RetentionPeriodDays   int       `json:"retentionPeriodDays" db:"retention_period_days"`
	IsActive              bool      `json:"isActive" db:"is_active"`
	CreatedBy             int       `json:"createdBy" db:"created_by"`
	CreatedAt             time.Time `json:"createdAt" db:"created_at"`
}

type ComplianceReport struct {
	ID          int             `json:"id" db:"id"`
	ReportType  string          `json:"reportType" db:"report_type"`
	ReportData  json.RawMessage `json:"reportData" db:"report_data"`
	GeneratedBy int             `json:"generatedBy" db:"generated_by"`
	GeneratedAt time.Time       `json:"generatedAt" db:"generated_at"`
	Parameters  json.RawMessage `json:"parameters,omitempty" db:"parameters"`
}
