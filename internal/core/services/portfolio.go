package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
)

// Portfolio serves read-mostly views over the managed domain portfolio:
// on-demand snapshots, configuration, service expansion and the change ledger.
type Portfolio struct {
	repo     ports.Repository
	provider ports.DNSProvider
	logger   *slog.Logger

	// Cache, when set, receives every fresh snapshot.
	Cache    ports.SnapshotCache
	CacheTTL time.Duration

	now func() time.Time
}

// NewPortfolio creates a Portfolio over the given store and provider.
func NewPortfolio(repo ports.Repository, provider ports.DNSProvider, logger *slog.Logger) *Portfolio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Portfolio{repo: repo, provider: provider, logger: logger, CacheTTL: 5 * time.Minute, now: time.Now}
}

// Snapshot collects a fresh point-in-time capture of live records for one
// domain, or for every managed domain when domainName is empty. Each snapshot
// is persisted write-once; a collection failure for one domain is logged and
// skipped so the rest of the portfolio still gets captured.
func (p *Portfolio) Snapshot(ctx context.Context, domainName string) ([]domain.Snapshot, error) {
	configs, err := p.targetConfigs(ctx, domainName)
	if err != nil {
		return nil, err
	}

	zones, err := p.provider.ListZones(ctx)
	if err != nil {
		p.logger.Warn("zone listing failed, falling back to stored zone IDs", "error", err)
		zones = nil
	}

	snapshots := make([]domain.Snapshot, 0, len(configs))
	for _, cfg := range configs {
		zoneID := cfg.ProviderZoneID
		if z, ok := zones[cfg.Domain]; ok && z != "" {
			if z != cfg.ProviderZoneID {
				if err := p.repo.SetProviderZoneID(ctx, cfg.Domain, z); err != nil {
					p.logger.Warn("failed to store zone id", "domain", cfg.Domain, "error", err)
				}
			}
			zoneID = z
		}
		if zoneID == "" {
			p.logger.Warn("skipping snapshot, zone not found", "domain", cfg.Domain)
			continue
		}

		records, err := p.provider.ListRecords(ctx, zoneID)
		if err != nil {
			p.logger.Warn("snapshot collection failed", "domain", cfg.Domain, "error", err)
			continue
		}
		snap := domain.Snapshot{
			ID:          uuid.NewString(),
			Domain:      cfg.Domain,
			Records:     records,
			RecordCount: len(records),
			TakenAt:     p.now(),
		}
		if err := p.repo.SaveSnapshot(ctx, &snap); err != nil {
			return nil, fmt.Errorf("%w: save snapshot: %v", domain.ErrPersistenceFailure, err)
		}
		if p.Cache != nil {
			p.Cache.Set(ctx, snap, p.CacheTTL)
		}
		snapshots = append(snapshots, snap)
	}

	if domainName != "" && len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: could not snapshot domain %q", domain.ErrProviderUnavailable, domainName)
	}
	return snapshots, nil
}

// ViewConfig returns one domain's configuration, or the full portfolio when
// domainName is empty.
func (p *Portfolio) ViewConfig(ctx context.Context, domainName string) ([]domain.DomainConfig, error) {
	return p.targetConfigs(ctx, domainName)
}

// ExpandServices resolves a domain's assigned service IDs into their record
// template bundles. Unknown service IDs are skipped with a warning rather than
// failing the whole expansion.
func (p *Portfolio) ExpandServices(ctx context.Context, cfg domain.DomainConfig) ([]domain.ServiceDef, error) {
	defs := make([]domain.ServiceDef, 0, len(cfg.Services))
	for _, id := range cfg.Services {
		def, err := p.repo.GetService(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: get service %q: %v", domain.ErrPersistenceFailure, id, err)
		}
		if def == nil {
			p.logger.Warn("domain references unknown service", "domain", cfg.Domain, "service", id)
			continue
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

// UpdateConfig applies a partial update to a domain's configuration and
// returns the updated config.
func (p *Portfolio) UpdateConfig(ctx context.Context, domainName string, patch ports.ConfigPatch) (*domain.DomainConfig, error) {
	cfg, err := p.repo.GetDomainConfig(ctx, domainName)
	if err != nil {
		return nil, fmt.Errorf("%w: domain config: %v", domain.ErrPersistenceFailure, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: domain %q", domain.ErrNotFound, domainName)
	}

	for _, id := range patch.AddServices {
		if !cfg.HasService(id) {
			cfg.Services = append(cfg.Services, id)
		}
	}
	if len(patch.RemoveServices) > 0 {
		remove := make(map[string]bool, len(patch.RemoveServices))
		for _, id := range patch.RemoveServices {
			remove[id] = true
		}
		kept := cfg.Services[:0]
		for _, id := range cfg.Services {
			if !remove[id] {
				kept = append(kept, id)
			}
		}
		cfg.Services = kept
	}
	for _, rec := range patch.AddRecords {
		if err := domain.ValidateRecord(rec); err != nil {
			return nil, fmt.Errorf("%w: custom record %s %s: %v", domain.ErrInvalidState, rec.Type, rec.Name, err)
		}
		cfg.CustomRecords = append(cfg.CustomRecords, rec)
	}
	if patch.Notes != nil {
		cfg.Notes = *patch.Notes
	}

	if err := p.repo.UpdateDomainConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%w: update domain config: %v", domain.ErrPersistenceFailure, err)
	}
	return cfg, nil
}

// ViewChanges returns change-ledger entries matching the filter, newest first.
func (p *Portfolio) ViewChanges(ctx context.Context, f ports.ChangeFilter) ([]domain.ChangeLogEntry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	entries, err := p.repo.ListChangeLog(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list change log: %v", domain.ErrPersistenceFailure, err)
	}
	return entries, nil
}

// LatestSnapshot returns the most recent persisted snapshot for a domain.
func (p *Portfolio) LatestSnapshot(ctx context.Context, domainName string) (*domain.Snapshot, error) {
	snap, err := p.repo.LatestSnapshot(ctx, domainName)
	if err != nil {
		return nil, fmt.Errorf("%w: latest snapshot: %v", domain.ErrPersistenceFailure, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot for domain %q", domain.ErrNotFound, domainName)
	}
	return snap, nil
}

func (p *Portfolio) targetConfigs(ctx context.Context, domainName string) ([]domain.DomainConfig, error) {
	if domainName != "" {
		cfg, err := p.repo.GetDomainConfig(ctx, domainName)
		if err != nil {
			return nil, fmt.Errorf("%w: domain config: %v", domain.ErrPersistenceFailure, err)
		}
		if cfg == nil {
			return nil, fmt.Errorf("%w: domain %q", domain.ErrNotFound, domainName)
		}
		return []domain.DomainConfig{*cfg}, nil
	}
	configs, err := p.repo.ListDomainConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: domain configs: %v", domain.ErrPersistenceFailure, err)
	}
	return configs, nil
}
