package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo is an in-memory Repository with the same transition semantics as
// the real store, safe for concurrent use.
type fakeRepo struct {
	mu        sync.Mutex
	configs   map[string]*domain.DomainConfig
	services  map[string]*domain.ServiceDef
	policies  []domain.PolicyRow
	snapshots []domain.Snapshot
	runs      []*domain.AuditRun
	changes   []domain.ChangeLogEntry
	approvals map[string]*domain.ApprovalRequest

	saveRunErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		configs:   make(map[string]*domain.DomainConfig),
		services:  make(map[string]*domain.ServiceDef),
		approvals: make(map[string]*domain.ApprovalRequest),
	}
}

func (f *fakeRepo) addConfig(cfg domain.DomainConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := cfg
	f.configs[cfg.Domain] = &c
}

func (f *fakeRepo) GetDomainConfig(ctx context.Context, domainName string) (*domain.DomainConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[domainName]
	if !ok {
		return nil, nil
	}
	c := *cfg
	return &c, nil
}

func (f *fakeRepo) ListDomainConfigs(ctx context.Context) ([]domain.DomainConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DomainConfig
	for _, cfg := range f.configs {
		out = append(out, *cfg)
	}
	return out, nil
}

func (f *fakeRepo) UpdateDomainConfig(ctx context.Context, cfg *domain.DomainConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *cfg
	f.configs[cfg.Domain] = &c
	return nil
}

func (f *fakeRepo) SetAuditStatus(ctx context.Context, domainName string, status domain.AuditStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg, ok := f.configs[domainName]; ok {
		cfg.LastAuditStatus = status
		cfg.LastAuditAt = &at
	}
	return nil
}

func (f *fakeRepo) SetProviderZoneID(ctx context.Context, domainName string, zoneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg, ok := f.configs[domainName]; ok {
		cfg.ProviderZoneID = zoneID
	}
	return nil
}

func (f *fakeRepo) GetService(ctx context.Context, id string) (*domain.ServiceDef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.services[id]
	if !ok {
		return nil, nil
	}
	d := *def
	return &d, nil
}

func (f *fakeRepo) ListEnabledPolicies(ctx context.Context) ([]domain.PolicyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PolicyRow(nil), f.policies...), nil
}

func (f *fakeRepo) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, *snap)
	return nil
}

func (f *fakeRepo) LatestSnapshot(ctx context.Context, domainName string) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Snapshot
	for i := range f.snapshots {
		s := f.snapshots[i]
		if s.Domain != domainName {
			continue
		}
		if latest == nil || s.TakenAt.After(latest.TakenAt) {
			latest = &s
		}
	}
	if latest == nil {
		return nil, nil
	}
	s := *latest
	return &s, nil
}

func (f *fakeRepo) SaveAuditRun(ctx context.Context, run *domain.AuditRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveRunErr != nil {
		return f.saveRunErr
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRepo) AppendChangeLog(ctx context.Context, entry *domain.ChangeLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, *entry)
	return nil
}

func (f *fakeRepo) ListChangeLog(ctx context.Context, filter ports.ChangeFilter) ([]domain.ChangeLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChangeLogEntry
	for _, e := range f.changes {
		if filter.Domain != "" && e.Domain != filter.Domain {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertApprovalIfAbsent(ctx context.Context, req *domain.ApprovalRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.approvals {
		if existing.Status == domain.ApprovalPending &&
			existing.Domain == req.Domain &&
			existing.RecordType == req.RecordType &&
			existing.RecordName == req.RecordName &&
			existing.Action == req.Action {
			return false, nil
		}
	}
	r := *req
	f.approvals[req.ID] = &r
	return true, nil
}

func (f *fakeRepo) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.approvals[id]
	if !ok {
		return nil, nil
	}
	r := *req
	return &r, nil
}

func (f *fakeRepo) TransitionApproval(ctx context.Context, id string, from, to domain.ApprovalStatus, reviewer, notes string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.approvals[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	req.ReviewedBy = reviewer
	req.ReviewNotes = notes
	return true, nil
}

func (f *fakeRepo) ExpireApprovals(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, req := range f.approvals {
		if req.Status == domain.ApprovalPending && now.After(req.ExpiresAt) {
			req.Status = domain.ApprovalExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ListApprovals(ctx context.Context, filter ports.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, req := range f.approvals {
		if filter.Status != "" {
			if req.Status != filter.Status {
				continue
			}
		} else if req.Status == domain.ApprovalRejected || req.Status == domain.ApprovalExpired {
			continue
		}
		if filter.Domain != "" && req.Domain != filter.Domain {
			continue
		}
		if filter.RiskLevel != "" && req.RiskLevel != filter.RiskLevel {
			continue
		}
		out = append(out, *req)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return nil, nil
}

func (f *fakeRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error { return nil }

func (f *fakeRepo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) { return nil, nil }

func (f *fakeRepo) DeleteAPIKey(ctx context.Context, id string) error { return nil }

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

func (f *fakeRepo) approvalByID(id string) *domain.ApprovalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.approvals[id]
	if !ok {
		return nil
	}
	r := *req
	return &r
}

// fakeProvider is an in-memory DNSProvider keyed by zone ID.
type fakeProvider struct {
	mu      sync.Mutex
	zones   map[string]string          // domain -> zone ID
	records map[string][]domain.Record // zone ID -> records
	nextID  int

	listZonesErr error
	listErr      map[string]error // per zone ID
	createErr    error
	updateErr    error
	deleteErr    error

	creates int
	updates int
	deletes int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		zones:   make(map[string]string),
		records: make(map[string][]domain.Record),
		listErr: make(map[string]error),
	}
}

func (f *fakeProvider) addZone(domainName, zoneID string, records ...domain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zones[domainName] = zoneID
	for _, rec := range records {
		f.nextID++
		rec.ProviderID = fmt.Sprintf("rec-%d", f.nextID)
		f.records[zoneID] = append(f.records[zoneID], rec)
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ListZones(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listZonesErr != nil {
		return nil, f.listZonesErr
	}
	out := make(map[string]string, len(f.zones))
	for k, v := range f.zones {
		out[k] = v
	}
	return out, nil
}

func (f *fakeProvider) ListRecords(ctx context.Context, zoneID string) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[zoneID]; err != nil {
		return nil, err
	}
	return append([]domain.Record(nil), f.records[zoneID]...), nil
}

func (f *fakeProvider) CreateRecord(ctx context.Context, zoneID string, rec domain.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	rec.ProviderID = fmt.Sprintf("rec-%d", f.nextID)
	f.records[zoneID] = append(f.records[zoneID], rec)
	f.creates++
	return rec.ProviderID, nil
}

func (f *fakeProvider) UpdateRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.records[zoneID] {
		if f.records[zoneID][i].ProviderID == recordID {
			rec.ProviderID = recordID
			f.records[zoneID][i] = rec
			f.updates++
			return nil
		}
	}
	return fmt.Errorf("record %s not found in zone %s", recordID, zoneID)
}

func (f *fakeProvider) DeleteRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	recs := f.records[zoneID]
	for i := range recs {
		if recs[i].ProviderID == recordID {
			f.records[zoneID] = append(recs[:i:i], recs[i+1:]...)
			f.deletes++
			return nil
		}
	}
	return fmt.Errorf("record %s not found in zone %s", recordID, zoneID)
}

func (f *fakeProvider) writeCounts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.deletes
}
