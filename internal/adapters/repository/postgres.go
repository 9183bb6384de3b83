// Package repository implements ports.Repository using PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

// PostgresRepository implements ports.Repository using PostgreSQL.
// Complex nested values (records, rules, findings) live in JSONB columns;
// everything the engine filters or transitions on is a plain column.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.Printf("failed to close rows: %v", err)
	}
}

func (r *PostgresRepository) GetDomainConfig(ctx context.Context, domainName string) (*domain.DomainConfig, error) {
	query := `SELECT domain, tier, tier_label, provider_zone_id, services, redirect_target, custom_records, notes, last_audit_at, last_audit_status
	          FROM dns_domain_config WHERE LOWER(domain) = LOWER($1)`
	cfg, err := scanDomainConfig(r.db.QueryRowContext(ctx, query, domainName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

func (r *PostgresRepository) ListDomainConfigs(ctx context.Context) ([]domain.DomainConfig, error) {
	query := `SELECT domain, tier, tier_label, provider_zone_id, services, redirect_target, custom_records, notes, last_audit_at, last_audit_status
	          FROM dns_domain_config ORDER BY domain`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var configs []domain.DomainConfig
	for rows.Next() {
		cfg, err := scanDomainConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomainConfig(row rowScanner) (*domain.DomainConfig, error) {
	var cfg domain.DomainConfig
	var services, customRecords []byte
	var zoneID, tierLabel, redirect, notes, status sql.NullString
	var lastAuditAt sql.NullTime
	err := row.Scan(&cfg.Domain, &cfg.Tier, &tierLabel, &zoneID, &services, &redirect, &customRecords, &notes, &lastAuditAt, &status)
	if err != nil {
		return nil, err
	}
	cfg.TierLabel = tierLabel.String
	cfg.ProviderZoneID = zoneID.String
	cfg.RedirectTarget = redirect.String
	cfg.Notes = notes.String
	cfg.LastAuditStatus = domain.AuditStatus(status.String)
	if lastAuditAt.Valid {
		t := lastAuditAt.Time
		cfg.LastAuditAt = &t
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &cfg.Services); err != nil {
			return nil, fmt.Errorf("decode services for %s: %w", cfg.Domain, err)
		}
	}
	if len(customRecords) > 0 {
		if err := json.Unmarshal(customRecords, &cfg.CustomRecords); err != nil {
			return nil, fmt.Errorf("decode custom records for %s: %w", cfg.Domain, err)
		}
	}
	return &cfg, nil
}

func (r *PostgresRepository) UpdateDomainConfig(ctx context.Context, cfg *domain.DomainConfig) error {
	services, err := json.Marshal(cfg.Services)
	if err != nil {
		return err
	}
	customRecords, err := json.Marshal(cfg.CustomRecords)
	if err != nil {
		return err
	}
	query := `UPDATE dns_domain_config
	          SET tier = $2, tier_label = $3, provider_zone_id = $4, services = $5, redirect_target = $6, custom_records = $7, notes = $8
	          WHERE LOWER(domain) = LOWER($1)`
	res, err := r.db.ExecContext(ctx, query, cfg.Domain, cfg.Tier, cfg.TierLabel, cfg.ProviderZoneID, services, cfg.RedirectTarget, customRecords, cfg.Notes)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("domain config %s not found", cfg.Domain)
	}
	return nil
}

func (r *PostgresRepository) SetAuditStatus(ctx context.Context, domainName string, status domain.AuditStatus, at time.Time) error {
	query := `UPDATE dns_domain_config SET last_audit_status = $2, last_audit_at = $3 WHERE LOWER(domain) = LOWER($1)`
	_, err := r.db.ExecContext(ctx, query, domainName, string(status), at)
	return err
}

func (r *PostgresRepository) SetProviderZoneID(ctx context.Context, domainName string, zoneID string) error {
	query := `UPDATE dns_domain_config SET provider_zone_id = $2 WHERE LOWER(domain) = LOWER($1)`
	_, err := r.db.ExecContext(ctx, query, domainName, zoneID)
	return err
}

func (r *PostgresRepository) GetService(ctx context.Context, id string) (*domain.ServiceDef, error) {
	query := `SELECT id, name, description, record_templates FROM dns_services WHERE id = $1`
	var def domain.ServiceDef
	var description sql.NullString
	var templates []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&def.ID, &def.Name, &description, &templates)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	def.Description = description.String
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &def.RecordTemplates); err != nil {
			return nil, fmt.Errorf("decode record templates for %s: %w", id, err)
		}
	}
	return &def, nil
}

func (r *PostgresRepository) ListEnabledPolicies(ctx context.Context) ([]domain.PolicyRow, error) {
	query := `SELECT id, name, scope, rule_type, rule, severity, auto_heal, heal_action, enabled
	          FROM dns_policies WHERE enabled = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var policies []domain.PolicyRow
	for rows.Next() {
		var row domain.PolicyRow
		var healAction []byte
		if err := rows.Scan(&row.ID, &row.Name, &row.Scope, &row.RuleType, &row.Rule, &row.Severity, &row.AutoHeal, &healAction, &row.Enabled); err != nil {
			return nil, err
		}
		row.HealAction = healAction
		policies = append(policies, row)
	}
	return policies, rows.Err()
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return err
	}
	query := `INSERT INTO dns_snapshots (id, domain, records, record_count, taken_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query, snap.ID, snap.Domain, records, snap.RecordCount, snap.TakenAt)
	return err
}

func (r *PostgresRepository) LatestSnapshot(ctx context.Context, domainName string) (*domain.Snapshot, error) {
	query := `SELECT id, domain, records, record_count, taken_at FROM dns_snapshots
	          WHERE LOWER(domain) = LOWER($1) ORDER BY taken_at DESC LIMIT 1`
	var snap domain.Snapshot
	var records []byte
	err := r.db.QueryRowContext(ctx, query, domainName).Scan(&snap.ID, &snap.Domain, &records, &snap.RecordCount, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &snap.Records); err != nil {
			return nil, fmt.Errorf("decode snapshot records for %s: %w", domainName, err)
		}
	}
	return &snap, nil
}

func (r *PostgresRepository) SaveAuditRun(ctx context.Context, run *domain.AuditRun) error {
	findings, err := json.Marshal(run.Findings)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return err
	}
	skipped, err := json.Marshal(run.PoliciesSkipped)
	if err != nil {
		return err
	}
	query := `INSERT INTO dns_audit_runs (run_id, run_type, dry_run, domains_scanned, total_records_checked, findings, summary, policies_skipped, triggered_by, started_at, completed_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, query, run.RunID, string(run.RunType), run.DryRun, run.DomainsScanned, run.TotalRecordsChecked,
		findings, summary, skipped, run.TriggeredBy, run.StartedAt, run.CompletedAt)
	return err
}

func (r *PostgresRepository) AppendChangeLog(ctx context.Context, entry *domain.ChangeLogEntry) error {
	before, err := marshalNullable(entry.BeforeValue)
	if err != nil {
		return err
	}
	after, err := marshalNullable(entry.AfterValue)
	if err != nil {
		return err
	}
	query := `INSERT INTO dns_change_log (id, domain, change_type, record_type, record_name, action, before_value, after_value, provider_record_id, audit_run_id, policy_id, applied_by, notes, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.db.ExecContext(ctx, query, entry.ID, entry.Domain, string(entry.ChangeType), string(entry.RecordType), entry.RecordName,
		string(entry.Action), before, after, entry.ProviderRecordID, entry.AuditRunID, entry.PolicyID, entry.AppliedBy, entry.Notes, entry.CreatedAt)
	return err
}

func marshalNullable(rec *domain.Record) (any, error) {
	if rec == nil {
		return nil, nil
	}
	return json.Marshal(rec)
}

func (r *PostgresRepository) ListChangeLog(ctx context.Context, f ports.ChangeFilter) ([]domain.ChangeLogEntry, error) {
	query := `SELECT id, domain, change_type, record_type, record_name, action, before_value, after_value, provider_record_id, audit_run_id, policy_id, applied_by, notes, created_at
	          FROM dns_change_log WHERE 1=1`
	var args []any
	if f.Domain != "" {
		args = append(args, f.Domain)
		query += fmt.Sprintf(" AND LOWER(domain) = LOWER($%d)", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var entries []domain.ChangeLogEntry
	for rows.Next() {
		var e domain.ChangeLogEntry
		var before, after []byte
		var providerID, runID, policyID, notes sql.NullString
		if err := rows.Scan(&e.ID, &e.Domain, &e.ChangeType, &e.RecordType, &e.RecordName, &e.Action,
			&before, &after, &providerID, &runID, &policyID, &e.AppliedBy, &notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ProviderRecordID = providerID.String
		e.AuditRunID = runID.String
		e.PolicyID = policyID.String
		e.Notes = notes.String
		if len(before) > 0 {
			var rec domain.Record
			if err := json.Unmarshal(before, &rec); err != nil {
				return nil, err
			}
			e.BeforeValue = &rec
		}
		if len(after) > 0 {
			var rec domain.Record
			if err := json.Unmarshal(after, &rec); err != nil {
				return nil, err
			}
			e.AfterValue = &rec
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepository) InsertApprovalIfAbsent(ctx context.Context, req *domain.ApprovalRequest) (bool, error) {
	current, err := marshalNullable(req.CurrentValue)
	if err != nil {
		return false, err
	}
	proposed, err := json.Marshal(req.ProposedValue)
	if err != nil {
		return false, err
	}
	// The WHERE NOT EXISTS clause makes queueing idempotent per pending
	// (domain, record_type, record_name, action) tuple in a single statement.
	query := `INSERT INTO dns_approval_queue (id, domain, record_type, record_name, action, current_value, proposed_value, reason, risk_level, status, created_at, expires_at, audit_run_id, policy_id)
	          SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
	          WHERE NOT EXISTS (
	              SELECT 1 FROM dns_approval_queue
	              WHERE status = 'pending' AND LOWER(domain) = LOWER($2) AND record_type = $3 AND LOWER(record_name) = LOWER($4) AND action = $5
	          )`
	res, err := r.db.ExecContext(ctx, query, req.ID, req.Domain, string(req.RecordType), req.RecordName, string(req.Action),
		current, proposed, req.Reason, string(req.RiskLevel), string(req.Status), req.CreatedAt, req.ExpiresAt, req.AuditRunID, req.PolicyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `SELECT id, domain, record_type, record_name, action, current_value, proposed_value, reason, risk_level, status, reviewed_by, review_notes, created_at, expires_at, audit_run_id, policy_id
	          FROM dns_approval_queue WHERE id = $1`
	req, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	var current, proposed []byte
	var reviewedBy, reviewNotes, runID, policyID sql.NullString
	err := row.Scan(&req.ID, &req.Domain, &req.RecordType, &req.RecordName, &req.Action,
		&current, &proposed, &req.Reason, &req.RiskLevel, &req.Status,
		&reviewedBy, &reviewNotes, &req.CreatedAt, &req.ExpiresAt, &runID, &policyID)
	if err != nil {
		return nil, err
	}
	req.ReviewedBy = reviewedBy.String
	req.ReviewNotes = reviewNotes.String
	req.AuditRunID = runID.String
	req.PolicyID = policyID.String
	if len(current) > 0 {
		var rec domain.Record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		req.CurrentValue = &rec
	}
	if len(proposed) > 0 {
		if err := json.Unmarshal(proposed, &req.ProposedValue); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

func (r *PostgresRepository) TransitionApproval(ctx context.Context, id string, from, to domain.ApprovalStatus, reviewer, notes string) (bool, error) {
	// Compare-and-set on the status column; concurrent deciders race on the
	// row and exactly one UPDATE reports an affected row.
	query := `UPDATE dns_approval_queue SET status = $3, reviewed_by = $4, review_notes = $5 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, string(from), string(to), reviewer, notes)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) ExpireApprovals(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE dns_approval_queue SET status = 'expired' WHERE status = 'pending' AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) ListApprovals(ctx context.Context, f ports.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	query := `SELECT id, domain, record_type, record_name, action, current_value, proposed_value, reason, risk_level, status, reviewed_by, review_notes, created_at, expires_at, audit_run_id, policy_id
	          FROM dns_approval_queue`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	} else {
		query += ` WHERE status NOT IN ('rejected', 'expired')`
	}
	if f.Domain != "" {
		args = append(args, f.Domain)
		query += fmt.Sprintf(" AND LOWER(domain) = LOWER($%d)", len(args))
	}
	if f.RiskLevel != "" {
		args = append(args, string(f.RiskLevel))
		query += fmt.Sprintf(" AND risk_level = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var reqs []domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys WHERE key_hash = $1 AND active = TRUE`
	var key domain.APIKey
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(&key.ID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.Role, &key.Active, &key.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	return &key, nil
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, name, key_hash, key_prefix, role, active, created_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, key.ID, key.Name, key.KeyHash, key.KeyPrefix, string(key.Role), key.Active, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	query := `SELECT id, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		var expiresAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.Role, &key.Active, &key.CreatedAt, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			key.ExpiresAt = &t
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *PostgresRepository) DeleteAPIKey(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
