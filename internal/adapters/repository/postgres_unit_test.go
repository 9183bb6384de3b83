package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()

	t.Run("GetDomainConfig", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"domain", "tier", "tier_label", "provider_zone_id", "services", "redirect_target", "custom_records", "notes", "last_audit_at", "last_audit_status"}).
			AddRow("example.com", 1, "flagship", "z1", []byte(`["google-workspace"]`), nil, []byte(`[]`), nil, time.Now(), "pass")

		mock.ExpectQuery(`SELECT (.+) FROM dns_domain_config WHERE LOWER\(domain\) = LOWER\(\$1\)`).
			WithArgs("example.com").
			WillReturnRows(rows)

		cfg, err := repo.GetDomainConfig(ctx, "example.com")
		if err != nil {
			t.Errorf("GetDomainConfig failed: %v", err)
		}
		if cfg == nil || cfg.Tier != 1 || len(cfg.Services) != 1 {
			t.Errorf("Unexpected config: %+v", cfg)
		}
		if cfg.LastAuditStatus != domain.AuditPass {
			t.Errorf("Unexpected audit status: %s", cfg.LastAuditStatus)
		}
	})

	t.Run("GetDomainConfigNotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM dns_domain_config WHERE LOWER\(domain\) = LOWER\(\$1\)`).
			WithArgs("missing.com").
			WillReturnRows(sqlmock.NewRows([]string{"domain"}))

		cfg, err := repo.GetDomainConfig(ctx, "missing.com")
		if err != nil {
			t.Errorf("GetDomainConfig failed: %v", err)
		}
		if cfg != nil {
			t.Errorf("Expected nil config for unknown domain, got %+v", cfg)
		}
	})

	t.Run("ListEnabledPolicies", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "scope", "rule_type", "rule", "severity", "auto_heal", "heal_action", "enabled"}).
			AddRow("spf-required", "SPF required", "global", "record_required", []byte(`{"type":"TXT","name":"@"}`), "critical", true, []byte(`{"action":"add"}`), true)

		mock.ExpectQuery(`SELECT (.+) FROM dns_policies WHERE enabled = TRUE`).
			WillReturnRows(rows)

		policies, err := repo.ListEnabledPolicies(ctx)
		if err != nil {
			t.Errorf("ListEnabledPolicies failed: %v", err)
		}
		if len(policies) != 1 || policies[0].ID != "spf-required" || !policies[0].AutoHeal {
			t.Errorf("Unexpected policies: %+v", policies)
		}
	})

	t.Run("InsertApprovalIfAbsent", func(t *testing.T) {
		req := &domain.ApprovalRequest{
			ID:            "ap-1",
			Domain:        "example.com",
			RecordType:    domain.TypeTXT,
			RecordName:    "_dmarc",
			Action:        domain.ActionCreate,
			ProposedValue: domain.Record{Type: domain.TypeTXT, Name: "_dmarc", Content: "v=DMARC1; p=quarantine"},
			Reason:        "required record not found",
			RiskLevel:     domain.RiskLow,
			Status:        domain.ApprovalPending,
			CreatedAt:     time.Now(),
			ExpiresAt:     time.Now().Add(domain.ApprovalTTL),
		}

		mock.ExpectExec(`INSERT INTO dns_approval_queue (.+) WHERE NOT EXISTS`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := repo.InsertApprovalIfAbsent(ctx, req)
		if err != nil {
			t.Errorf("InsertApprovalIfAbsent failed: %v", err)
		}
		if !inserted {
			t.Errorf("Expected insert to happen")
		}

		// Same tuple already pending: the guarded insert affects no rows.
		mock.ExpectExec(`INSERT INTO dns_approval_queue (.+) WHERE NOT EXISTS`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err = repo.InsertApprovalIfAbsent(ctx, req)
		if err != nil {
			t.Errorf("InsertApprovalIfAbsent failed: %v", err)
		}
		if inserted {
			t.Errorf("Expected duplicate insert to be suppressed")
		}
	})

	t.Run("TransitionApproval", func(t *testing.T) {
		mock.ExpectExec(`UPDATE dns_approval_queue SET status = \$3, reviewed_by = \$4, review_notes = \$5 WHERE id = \$1 AND status = \$2`).
			WithArgs("ap-1", "pending", "approved", "alice", "ok").
			WillReturnResult(sqlmock.NewResult(0, 1))

		done, err := repo.TransitionApproval(ctx, "ap-1", domain.ApprovalPending, domain.ApprovalApproved, "alice", "ok")
		if err != nil {
			t.Errorf("TransitionApproval failed: %v", err)
		}
		if !done {
			t.Errorf("Expected transition to win")
		}

		mock.ExpectExec(`UPDATE dns_approval_queue SET status = \$3, reviewed_by = \$4, review_notes = \$5 WHERE id = \$1 AND status = \$2`).
			WithArgs("ap-1", "pending", "approved", "bob", "").
			WillReturnResult(sqlmock.NewResult(0, 0))

		done, err = repo.TransitionApproval(ctx, "ap-1", domain.ApprovalPending, domain.ApprovalApproved, "bob", "")
		if err != nil {
			t.Errorf("TransitionApproval failed: %v", err)
		}
		if done {
			t.Errorf("Expected second transition to lose the race")
		}
	})

	t.Run("ExpireApprovals", func(t *testing.T) {
		mock.ExpectExec(`UPDATE dns_approval_queue SET status = 'expired' WHERE status = 'pending' AND expires_at < \$1`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.ExpireApprovals(ctx, time.Now())
		if err != nil {
			t.Errorf("ExpireApprovals failed: %v", err)
		}
		if n != 3 {
			t.Errorf("Expected 3 expired, got %d", n)
		}
	})

	t.Run("GetApproval", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "domain", "record_type", "record_name", "action", "current_value", "proposed_value", "reason", "risk_level", "status", "reviewed_by", "review_notes", "created_at", "expires_at", "audit_run_id", "policy_id"}).
			AddRow("ap-1", "example.com", "TXT", "_dmarc", "create", nil, []byte(`{"type":"TXT","name":"_dmarc","content":"v=DMARC1; p=quarantine"}`),
				"required record not found", "low", "pending", nil, nil, time.Now(), time.Now().Add(domain.ApprovalTTL), "AUDIT-1", "dmarc-required")

		mock.ExpectQuery(`SELECT (.+) FROM dns_approval_queue WHERE id = \$1`).
			WithArgs("ap-1").
			WillReturnRows(rows)

		req, err := repo.GetApproval(ctx, "ap-1")
		if err != nil {
			t.Errorf("GetApproval failed: %v", err)
		}
		if req == nil || req.ProposedValue.Content != "v=DMARC1; p=quarantine" || req.RiskLevel != domain.RiskLow {
			t.Errorf("Unexpected approval: %+v", req)
		}
	})

	t.Run("SaveAuditRun", func(t *testing.T) {
		run := &domain.AuditRun{
			RunID:          "AUDIT-20260901-120000-abcd1234",
			RunType:        domain.RunTypeAudit,
			DomainsScanned: 2,
			Findings:       []domain.Finding{{Domain: "example.com", PolicyID: "spf-required", Status: domain.FindingPass}},
			StartedAt:      time.Now(),
			CompletedAt:    time.Now(),
		}

		mock.ExpectExec(`INSERT INTO dns_audit_runs`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.SaveAuditRun(ctx, run); err != nil {
			t.Errorf("SaveAuditRun failed: %v", err)
		}
	})

	t.Run("AppendChangeLog", func(t *testing.T) {
		after := domain.Record{Type: domain.TypeTXT, Name: "_dmarc", Content: "v=DMARC1; p=quarantine"}
		entry := &domain.ChangeLogEntry{
			ID:         "c1",
			Domain:     "example.com",
			ChangeType: domain.ChangeAutoHeal,
			RecordType: domain.TypeTXT,
			RecordName: "_dmarc",
			Action:     domain.ActionCreate,
			AfterValue: &after,
			AppliedBy:  "sentinel",
			CreatedAt:  time.Now(),
		}

		mock.ExpectExec(`INSERT INTO dns_change_log`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.AppendChangeLog(ctx, entry); err != nil {
			t.Errorf("AppendChangeLog failed: %v", err)
		}
	})

	t.Run("ListApprovalsDefaultExcludesTerminal", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM dns_approval_queue WHERE status NOT IN \('rejected', 'expired'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "domain", "record_type", "record_name", "action", "current_value", "proposed_value", "reason", "risk_level", "status", "reviewed_by", "review_notes", "created_at", "expires_at", "audit_run_id", "policy_id"}))

		if _, err := repo.ListApprovals(ctx, ports.ApprovalFilter{}); err != nil {
			t.Errorf("ListApprovals failed: %v", err)
		}
	})

	t.Run("GetAPIKeyByHash", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name", "key_hash", "key_prefix", "role", "active", "created_at", "expires_at"}).
			AddRow("k1", "ci", "abc123", "sk_live_", "admin", true, time.Now(), nil)

		mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE key_hash = \$1 AND active = TRUE`).
			WithArgs("abc123").
			WillReturnRows(rows)

		key, err := repo.GetAPIKeyByHash(ctx, "abc123")
		if err != nil {
			t.Errorf("GetAPIKeyByHash failed: %v", err)
		}
		if key == nil || key.Role != domain.RoleAdmin {
			t.Errorf("Unexpected key: %+v", key)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
