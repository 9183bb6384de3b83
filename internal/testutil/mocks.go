// Package testutil provides shared mocks for service and handler tests.
package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

// MockRepo is a testify mock of ports.Repository.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) GetDomainConfig(ctx context.Context, domainName string) (*domain.DomainConfig, error) {
	args := m.Called(domainName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DomainConfig), args.Error(1)
}

func (m *MockRepo) ListDomainConfigs(ctx context.Context) ([]domain.DomainConfig, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DomainConfig), args.Error(1)
}

func (m *MockRepo) UpdateDomainConfig(ctx context.Context, cfg *domain.DomainConfig) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func (m *MockRepo) SetAuditStatus(ctx context.Context, domainName string, status domain.AuditStatus, at time.Time) error {
	args := m.Called(domainName, status, at)
	return args.Error(0)
}

func (m *MockRepo) SetProviderZoneID(ctx context.Context, domainName string, zoneID string) error {
	args := m.Called(domainName, zoneID)
	return args.Error(0)
}

func (m *MockRepo) GetService(ctx context.Context, id string) (*domain.ServiceDef, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ServiceDef), args.Error(1)
}

func (m *MockRepo) ListEnabledPolicies(ctx context.Context) ([]domain.PolicyRow, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PolicyRow), args.Error(1)
}

func (m *MockRepo) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	args := m.Called(snap)
	return args.Error(0)
}

func (m *MockRepo) LatestSnapshot(ctx context.Context, domainName string) (*domain.Snapshot, error) {
	args := m.Called(domainName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

func (m *MockRepo) SaveAuditRun(ctx context.Context, run *domain.AuditRun) error {
	args := m.Called(run)
	return args.Error(0)
}

func (m *MockRepo) AppendChangeLog(ctx context.Context, entry *domain.ChangeLogEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockRepo) ListChangeLog(ctx context.Context, f ports.ChangeFilter) ([]domain.ChangeLogEntry, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ChangeLogEntry), args.Error(1)
}

func (m *MockRepo) InsertApprovalIfAbsent(ctx context.Context, req *domain.ApprovalRequest) (bool, error) {
	args := m.Called(req)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalRequest), args.Error(1)
}

func (m *MockRepo) TransitionApproval(ctx context.Context, id string, from, to domain.ApprovalStatus, reviewer, notes string) (bool, error) {
	args := m.Called(id, from, to, reviewer, notes)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) ExpireApprovals(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepo) ListApprovals(ctx context.Context, f ports.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ApprovalRequest), args.Error(1)
}

func (m *MockRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	args := m.Called(keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockRepo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockRepo) DeleteAPIKey(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// MockProvider is a testify mock of ports.DNSProvider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) ListZones(ctx context.Context) (map[string]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockProvider) ListRecords(ctx context.Context, zoneID string) ([]domain.Record, error) {
	args := m.Called(zoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockProvider) CreateRecord(ctx context.Context, zoneID string, rec domain.Record) (string, error) {
	args := m.Called(zoneID, rec)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) UpdateRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	args := m.Called(zoneID, recordID, rec)
	return args.Error(0)
}

func (m *MockProvider) DeleteRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	args := m.Called(zoneID, recordID, rec)
	return args.Error(0)
}

// MockCache is a testify mock of ports.SnapshotCache.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, domainName string) (*domain.Snapshot, bool) {
	args := m.Called(domainName)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Bool(1)
}

func (m *MockCache) Set(ctx context.Context, snap domain.Snapshot, ttl time.Duration) {
	m.Called(snap, ttl)
}

// MockAlerter is a testify mock of ports.Alerter.
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) CriticalFindings(ctx context.Context, run *domain.AuditRun) error {
	args := m.Called(run)
	return args.Error(0)
}
