package domain

import "time"

// RunType distinguishes how an audit run was initiated.
type RunType string

const (
	RunTypeAudit RunType = "audit"
	RunTypeHeal  RunType = "heal"
)

// RunSummary aggregates the outcome of one audit run.
type RunSummary struct {
	Pass            int `json:"pass"`
	Drift           int `json:"drift"`
	AutoHealed      int `json:"auto_healed"`
	PendingApproval int `json:"pending_approval"`
}

// AuditRun is the sealed result of one reconciliation pass over a batch of
// domains. It is created at run start, sealed at completion and immutable
// thereafter; readers never observe a partially written run.
type AuditRun struct {
	RunID               string    `json:"run_id"`
	RunType             RunType   `json:"run_type"`
	DryRun              bool      `json:"dry_run"`
	DomainsScanned      int       `json:"domains_scanned"`
	TotalRecordsChecked int       `json:"total_records_checked"`
	Findings            []Finding `json:"findings"`
	Summary             RunSummary `json:"summary"`
	PoliciesSkipped     []string  `json:"policies_skipped,omitempty"`
	TriggeredBy         string    `json:"triggered_by"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
}

// ChangeType records why a provider write happened.
type ChangeType string

const (
	ChangeAutoHeal ChangeType = "auto_heal"
	ChangeApproved ChangeType = "approved"
	ChangeManual   ChangeType = "manual"
	ChangeDrift    ChangeType = "drift_detected"
)

// ChangeAction is the provider-side operation that was performed.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// ChangeLogEntry is one row of the append-only change ledger. Exactly one
// entry is written per actual provider write, immediately after the write.
type ChangeLogEntry struct {
	ID               string       `json:"id"`
	Domain           string       `json:"domain"`
	ChangeType       ChangeType   `json:"change_type"`
	RecordType       RecordType   `json:"record_type"`
	RecordName       string       `json:"record_name"`
	Action           ChangeAction `json:"action"`
	BeforeValue      *Record      `json:"before_value,omitempty"`
	AfterValue       *Record      `json:"after_value,omitempty"`
	ProviderRecordID string       `json:"provider_record_id,omitempty"`
	AuditRunID       string       `json:"audit_run_id,omitempty"`
	PolicyID         string       `json:"policy_id,omitempty"`
	AppliedBy        string       `json:"applied_by"`
	Notes            string       `json:"notes,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// RiskLevel grades a proposed change for the approval queue.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ApprovalStatus is the state of an approval-queue entry.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalTTL is how long a pending request stays actionable.
const ApprovalTTL = 7 * 24 * time.Hour

// ApprovalRequest is a proposed change awaiting human decision. Valid
// transitions are pending -> approved, pending -> rejected and
// pending -> expired; terminal states accept no further transitions.
// Expiry is detected lazily at read time, never by a background timer.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	Domain        string         `json:"domain"`
	RecordType    RecordType     `json:"record_type"`
	RecordName    string         `json:"record_name"`
	Action        ChangeAction   `json:"action"`
	CurrentValue  *Record        `json:"current_value,omitempty"`
	ProposedValue Record         `json:"proposed_value"`
	Reason        string         `json:"reason"`
	RiskLevel     RiskLevel      `json:"risk_level"`
	Status        ApprovalStatus `json:"status"`
	ReviewedBy    string         `json:"reviewed_by,omitempty"`
	ReviewNotes   string         `json:"review_notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	AuditRunID    string         `json:"audit_run_id,omitempty"`
	PolicyID      string         `json:"policy_id,omitempty"`
}

// ExpiredAt reports whether the request has passed its expiry at the given time.
func (a ApprovalRequest) ExpiredAt(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
