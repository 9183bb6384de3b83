package ports

import (
	"context"
	"time"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
)

// DNSProvider is the record-level API of the external DNS provider. The
// reconciler, not the adapter, enforces idempotence.
type DNSProvider interface {
	Name() string
	// ListZones returns the provider's zones as a domain -> zone ID map.
	ListZones(ctx context.Context) (map[string]string, error)
	ListRecords(ctx context.Context, zoneID string) ([]domain.Record, error)
	CreateRecord(ctx context.Context, zoneID string, rec domain.Record) (string, error)
	UpdateRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error
	// DeleteRecord receives the record being deleted alongside its provider ID
	// because some providers (Route53) key deletions by the full record set.
	DeleteRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error
}

// ApprovalFilter narrows approval-queue listings. An empty Status applies the
// default view, which excludes rejected and expired entries.
type ApprovalFilter struct {
	Status    domain.ApprovalStatus
	Domain    string
	RiskLevel domain.RiskLevel
	Limit     int
}

// ChangeFilter narrows change-log listings.
type ChangeFilter struct {
	Domain string
	Since  time.Time
	Limit  int
}

// ConfigPatch is a partial update to a domain's configuration.
type ConfigPatch struct {
	AddServices    []string
	RemoveServices []string
	AddRecords     []domain.Record
	Notes          *string
}

// Repository is the durable store for configs, policies, snapshots, runs,
// the change log and the approval queue.
type Repository interface {
	GetDomainConfig(ctx context.Context, domainName string) (*domain.DomainConfig, error)
	ListDomainConfigs(ctx context.Context) ([]domain.DomainConfig, error)
	UpdateDomainConfig(ctx context.Context, cfg *domain.DomainConfig) error
	SetAuditStatus(ctx context.Context, domainName string, status domain.AuditStatus, at time.Time) error
	SetProviderZoneID(ctx context.Context, domainName string, zoneID string) error

	GetService(ctx context.Context, id string) (*domain.ServiceDef, error)
	ListEnabledPolicies(ctx context.Context) ([]domain.PolicyRow, error)

	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	LatestSnapshot(ctx context.Context, domainName string) (*domain.Snapshot, error)

	SaveAuditRun(ctx context.Context, run *domain.AuditRun) error
	AppendChangeLog(ctx context.Context, entry *domain.ChangeLogEntry) error
	ListChangeLog(ctx context.Context, f ChangeFilter) ([]domain.ChangeLogEntry, error)

	// InsertApprovalIfAbsent inserts the request unless a pending one already
	// exists for the same (domain, recordType, recordName, action) tuple.
	// Returns false when the insert was suppressed by the dedup rule.
	InsertApprovalIfAbsent(ctx context.Context, req *domain.ApprovalRequest) (bool, error)
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	// TransitionApproval atomically moves the request from one status to
	// another; returns false if the request was not in the expected status.
	TransitionApproval(ctx context.Context, id string, from, to domain.ApprovalStatus, reviewer, notes string) (bool, error)
	// ExpireApprovals marks all pending requests past their expiry as expired.
	ExpireApprovals(ctx context.Context, now time.Time) (int64, error)
	ListApprovals(ctx context.Context, f ApprovalFilter) ([]domain.ApprovalRequest, error)

	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	ListAPIKeys(ctx context.Context) ([]domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

// SnapshotCache holds the most recent collection per domain so closely spaced
// runs can reuse a fresh snapshot instead of hitting the provider again.
type SnapshotCache interface {
	Get(ctx context.Context, domainName string) (*domain.Snapshot, bool)
	Set(ctx context.Context, snap domain.Snapshot, ttl time.Duration)
}

// Alerter is notified after a run that produced critical violations.
type Alerter interface {
	CriticalFindings(ctx context.Context, run *domain.AuditRun) error
}

// RunOptions selects the target set and mode of a reconciliation run.
type RunOptions struct {
	Domain      string
	Tier        int
	DryRun      bool
	RunType     domain.RunType
	TriggeredBy string
}

// AuditService runs the audit-and-heal reconciliation engine.
type AuditService interface {
	RunAudit(ctx context.Context, opts RunOptions) (*domain.AuditRun, error)
}

// ApprovalService drains the approval queue.
type ApprovalService interface {
	Approve(ctx context.Context, id, reviewer, notes string) (*domain.ChangeLogEntry, error)
	Reject(ctx context.Context, id, reviewer, notes string) error
	List(ctx context.Context, f ApprovalFilter) ([]domain.ApprovalRequest, error)
}

// PortfolioService exposes snapshot collection and configuration management.
type PortfolioService interface {
	Snapshot(ctx context.Context, domainName string) ([]domain.Snapshot, error)
	ViewConfig(ctx context.Context, domainName string) ([]domain.DomainConfig, error)
	ExpandServices(ctx context.Context, cfg domain.DomainConfig) ([]domain.ServiceDef, error)
	UpdateConfig(ctx context.Context, domainName string, patch ConfigPatch) (*domain.DomainConfig, error)
	ViewChanges(ctx context.Context, f ChangeFilter) ([]domain.ChangeLogEntry, error)
	LatestSnapshot(ctx context.Context, domainName string) (*domain.Snapshot, error)
}
