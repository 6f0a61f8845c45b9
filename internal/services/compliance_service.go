package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wizspeak/server/internal/models"
)

type AccessEntry struct {
	UserID       int
	Action       string
	ResourceType string
	ResourceID   int
	IP           string
	UserAgent    string
	Metadata     json.RawMessage
}

type AuditEntry struct {
	EventType    string
	UserID       int
	ResourceType *string
	ResourceID   *int
	OldValues    json.RawMessage
	NewValues    json.RawMessage
	IP           string
	UserAgent    string
}

// AuditFilter narrows audit and access-log listings. Nil or empty fields
// match everything.
type AuditFilter struct {
	UserID       *int
	ResourceType string
	EventType    string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
}

type RetentionPolicyInput struct {
	Name                  string
	Description           *string
	MessageClassification *string
	RetentionPeriodDays   int
	IsActive              *bool
}

type ComplianceService interface {
	LogAccess(ctx context.Context, e AccessEntry) error
	RecordAudit(ctx context.Context, e AuditEntry) error
	ListAccessLogs(ctx context.Context, f AuditFilter) ([]models.AccessLog, error)
	ListAuditTrail(ctx context.Context, f AuditFilter) ([]models.AuditTrail, error)

	AcknowledgeMessage(ctx context.Context, messageID, userID int, ip, userAgent string) (*models.MessageAcknowledgment, error)
	ListAcknowledgments(ctx context.Context, messageID int) ([]models.MessageAcknowledgment, error)

	CreateRetentionPolicy(ctx context.Context, userID int, in RetentionPolicyInput) (*models.RetentionPolicy, error)
	ListRetentionPolicies(ctx context.Context) ([]models.RetentionPolicy, error)
	UpdateRetentionPolicy(ctx context.Context, policyID int, in RetentionPolicyInput) (*models.RetentionPolicy, error)

	CreateReport(ctx context.Context, userID int, reportType string, data, params json.RawMessage) (*models.ComplianceReport, error)
	ListReports(ctx context.Context) ([]models.ComplianceReport, error)
}

type complianceService struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewComplianceService(db *pgxpool.Pool, log *slog.Logger) ComplianceService {
	return &complianceService{db: db, log: log}
}

// LogAccess appends to the access trail. The table is append-only; nothing
// in the server ever updates or deletes these rows.
func (cs *complianceService) LogAccess(ctx context.Context, e AccessEntry) error {
	query := psql.Insert("access_logs").
		Columns("user_id", "action", "resource_type", "resource_id", "ip_address", "user_agent", "metadata").
		Values(e.UserID, e.Action, e.ResourceType, e.ResourceID, nilIfEmpty(e.IP), nilIfEmpty(e.UserAgent), e.Metadata)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := cs.db.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error("failed to record access log", "action", e.Action, "resource_type", e.ResourceType, "error", err)
		return err
	}
	return nil
}

func (cs *complianceService) RecordAudit(ctx context.Context, e AuditEntry) error {
	query := psql.Insert("audit_trails").
		Columns("event_type", "user_id", "resource_type", "resource_id", "old_values", "new_values", "ip_address", "user_agent").
		Values(e.EventType, e.UserID, e.ResourceType, e.ResourceID, e.OldValues, e.NewValues, nilIfEmpty(e.IP), nilIfEmpty(e.UserAgent))
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := cs.db.Exec(ctx, sqlStr, args...); err != nil {
		cs.log.Error("failed to record audit event", "event_type", e.EventType, "error", err)
		return err
	}
	return nil
}

func (cs *complianceService) ListAccessLogs(ctx context.Context, f AuditFilter) ([]models.AccessLog, error) {
	query := psql.Select(
		"a.id", "a.user_id", "a.action", "a.resource_type", "a.resource_id",
		"a.ip_address", "a.user_agent", "a.metadata", "a.ts",
		"u.username", "u.role").
		From("access_logs a").
		Join("users u ON u.id = a.user_id")
	query = applyAuditFilter(query, f, "a.ts", "a.action")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AccessLog
	for rows.Next() {
		var l models.AccessLog
		var u models.User
		err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID,
			&l.IPAddress, &l.UserAgent, &l.Metadata, &l.Timestamp,
			&u.Username, &u.Role,
		)
		if err != nil {
			return nil, err
		}
		u.ID = l.UserID
		l.User = &u
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (cs *complianceService) ListAuditTrail(ctx context.Context, f AuditFilter) ([]models.AuditTrail, error) {
	query := psql.Select(
		"a.id", "a.event_type", "a.user_id", "a.resource_type", "a.resource_id",
		"a.old_values", "a.new_values", "a.ip_address", "a.user_agent", "a.ts",
		"u.username", "u.role").
		From("audit_trails a").
		Join("users u ON u.id = a.user_id")
	query = applyAuditFilter(query, f, "a.ts", "a.event_type")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditTrail
	for rows.Next() {
		var t models.AuditTrail
		var u models.User
		err := rows.Scan(
			&t.ID, &t.EventType, &t.UserID, &t.ResourceType, &t.ResourceID,
			&t.OldValues, &t.NewValues, &t.IPAddress, &t.UserAgent, &t.Timestamp,
			&u.Username, &u.Role,
		)
		if err != nil {
			return nil, err
		}
		u.ID = t.UserID
		t.User = &u
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

// AcknowledgeMessage records an explicit acknowledgment together with its
// access-log and audit rows in one transaction, so the three trails cannot
// disagree about whether the acknowledgment happened. Acknowledging twice
// returns the original record unchanged.
func (cs *complianceService) AcknowledgeMessage(ctx context.Context, messageID, userID int, ip, userAgent string) (*models.MessageAcknowledgment, error) {
	var one int
	existsQuery := psql.Select("1").From("messages").
		Where(squirrel.Eq{"id": messageID, "is_deleted": false})
	sqlStr, args, err := existsQuery.ToSql()
	if err != nil {
		return nil, err
	}
	if err := cs.db.QueryRow(ctx, sqlStr, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMessageNotFound
		}
		return nil, err
	}

	tx, err := cs.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insert := psql.Insert("message_acknowledgments").
		Columns("message_id", "user_id", "ip_address", "user_agent").
		Values(messageID, userID, nilIfEmpty(ip), nilIfEmpty(userAgent)).
		Suffix("ON CONFLICT (message_id, user_id) DO NOTHING RETURNING id, message_id, user_id, acknowledged_at, ip_address, user_agent")
	sqlStr, args, err = insert.ToSql()
	if err != nil {
		return nil, err
	}

	var ack models.MessageAcknowledgment
	err = tx.QueryRow(ctx, sqlStr, args...).
		Scan(&ack.ID, &ack.MessageID, &ack.UserID, &ack.AcknowledgedAt, &ack.IPAddress, &ack.UserAgent)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already acknowledged; return the existing record, log nothing.
		return cs.getAcknowledgment(ctx, messageID, userID)
	}
	if err != nil {
		return nil, err
	}

	accessInsert := psql.Insert("access_logs").
		Columns("user_id", "action", "resource_type", "resource_id", "ip_address", "user_agent").
		Values(userID, models.ActionAcknowledge, models.ResourceMessage, messageID, nilIfEmpty(ip), nilIfEmpty(userAgent))
	sqlStr, args, err = accessInsert.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return nil, err
	}

	auditInsert := psql.Insert("audit_trails").
		Columns("event_type", "user_id", "resource_type", "resource_id", "ip_address", "user_agent").
		Values("message_acknowledged", userID, models.ResourceMessage, messageID, nilIfEmpty(ip), nilIfEmpty(userAgent))
	sqlStr, args, err = auditInsert.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		cs.log.Error("failed to commit acknowledgment", "message_id", messageID, "user_id", userID, "error", err)
		return nil, err
	}

	cs.log.Info("message acknowledged", "message_id", messageID, "user_id", userID)
	return &ack, nil
}

func (cs *complianceService) getAcknowledgment(ctx context.Context, messageID, userID int) (*models.MessageAcknowledgment, error) {
	query := psql.Select("id, message_id, user_id, acknowledged_at, ip_address, user_agent").
		From("message_acknowledgments").
		Where(squirrel.Eq{"message_id": messageID, "user_id": userID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var ack models.MessageAcknowledgment
	err = cs.db.QueryRow(ctx, sqlStr, args...).
		Scan(&ack.ID, &ack.MessageID, &ack.UserID, &ack.AcknowledgedAt, &ack.IPAddress, &ack.UserAgent)
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

func (cs *complianceService) ListAcknowledgments(ctx context.Context, messageID int) ([]models.MessageAcknowledgment, error) {
	query := psql.Select(
		"a.id", "a.message_id", "a.user_id", "a.acknowledged_at", "a.ip_address", "a.user_agent",
		"u.username", "u.role", "u.department").
		From("message_acknowledgments a").
		Join("users u ON u.id = a.user_id").
		Where(squirrel.Eq{"a.message_id": messageID}).
		OrderBy("a.acknowledged_at ASC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acks []models.MessageAcknowledgment
	for rows.Next() {
		var a models.MessageAcknowledgment
		var u models.User
		err := rows.Scan(
			&a.ID, &a.MessageID, &a.UserID, &a.AcknowledgedAt, &a.IPAddress, &a.UserAgent,
			&u.Username, &u.Role, &u.Department,
		)
		if err != nil {
			return nil, err
		}
		u.ID = a.UserID
		a.User = &u
		acks = append(acks, a)
	}
	return acks, rows.Err()
}

const retentionColumns = "id, name, description, message_classification, retention_period_days, is_active, created_by, created_at"

func (cs *complianceService) CreateRetentionPolicy(ctx context.Context, userID int, in RetentionPolicyInput) (*models.RetentionPolicy, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	query := psql.Insert("retention_policies").
		Columns("name", "description", "message_classification", "retention_period_days", "is_active", "created_by").
		Values(in.Name, in.Description, in.MessageClassification, in.RetentionPeriodDays, active, userID).
		Suffix("RETURNING " + retentionColumns)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	policy, err := scanRetentionPolicy(cs.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		cs.log.Error("failed to create retention policy", "name", in.Name, "error", err)
		return nil, err
	}

	cs.log.Info("retention policy created", "policy_id", policy.ID, "name", policy.Name, "created_by", userID)
	return policy, nil
}

func (cs *complianceService) ListRetentionPolicies(ctx context.Context) ([]models.RetentionPolicy, error) {
	query := psql.Select(retentionColumns).From("retention_policies").OrderBy("created_at DESC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []models.RetentionPolicy
	for rows.Next() {
		p, err := scanRetentionPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *p)
	}
	return policies, rows.Err()
}

func (cs *complianceService) UpdateRetentionPolicy(ctx context.Context, policyID int, in RetentionPolicyInput) (*models.RetentionPolicy, error) {
	update := psql.Update("retention_policies").Where(squirrel.Eq{"id": policyID})
	if in.Name != "" {
		update = update.Set("name", in.Name)
	}
	if in.Description != nil {
		update = update.Set("description", in.Description)
	}
	if in.MessageClassification != nil {
		update = update.Set("message_classification", in.MessageClassification)
	}
	if in.RetentionPeriodDays > 0 {
		update = update.Set("retention_period_days", in.RetentionPeriodDays)
	}
	if in.IsActive != nil {
		update = update.Set("is_active", *in.IsActive)
	}
	update = update.Suffix("RETURNING " + retentionColumns)

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return nil, err
	}

	policy, err := scanRetentionPolicy(cs.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPolicyNotFound
		}
		return nil, err
	}
	return policy, nil
}

func (cs *complianceService) CreateReport(ctx context.Context, userID int, reportType string, data, params json.RawMessage) (*models.ComplianceReport, error) {
	query := psql.Insert("compliance_reports").
		Columns("report_type", "report_data", "generated_by", "parameters").
		Values(reportType, data, userID, params).
		Suffix("RETURNING id, report_type, report_data, generated_by, generated_at, parameters")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var r models.ComplianceReport
	err = cs.db.QueryRow(ctx, sqlStr, args...).
		Scan(&r.ID, &r.ReportType, &r.ReportData, &r.GeneratedBy, &r.GeneratedAt, &r.Parameters)
	if err != nil {
		cs.log.Error("failed to create compliance report", "report_type", reportType, "error", err)
		return nil, err
	}

	cs.log.Info("compliance report generated", "report_id", r.ID, "report_type", reportType, "generated_by", userID)
	return &r, nil
}

func (cs *complianceService) ListReports(ctx context.Context) ([]models.ComplianceReport, error) {
	query := psql.Select("id, report_type, report_data, generated_by, generated_at, parameters").
		From("compliance_reports").
		OrderBy("generated_at DESC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := cs.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []models.ComplianceReport
	for rows.Next() {
		var r models.ComplianceReport
		if err := rows.Scan(&r.ID, &r.ReportType, &r.ReportData, &r.GeneratedBy, &r.GeneratedAt, &r.Parameters); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func applyAuditFilter(query squirrel.SelectBuilder, f AuditFilter, tsCol, typeCol string) squirrel.SelectBuilder {
	if f.UserID != nil {
		query = query.Where(squirrel.Eq{"a.user_id": *f.UserID})
	}
	if f.ResourceType != "" {
		query = query.Where(squirrel.Eq{"a.resource_type": f.ResourceType})
	}
	if f.EventType != "" {
		query = query.Where(squirrel.Eq{typeCol: f.EventType})
	}
	if f.DateFrom != nil {
		query = query.Where(squirrel.GtOrEq{tsCol: *f.DateFrom})
	}
	if f.DateTo != nil {
		query = query.Where(squirrel.LtOrEq{tsCol: *f.DateTo})
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return query.OrderBy(tsCol + " DESC").Limit(uint64(limit))
}

func scanRetentionPolicy(row pgx.Row) (*models.RetentionPolicy, error) {
	var p models.RetentionPolicy
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.MessageClassification,
		&p.RetentionPeriodDays, &p.IsActive, &p.CreatedBy, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
