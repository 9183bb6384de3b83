package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
	"github.com/poyrazK/dnsSentinel/internal/infrastructure/metrics"
)

// Reconciler orchestrates collection, evaluation, classification and
// remediation across a batch of domains in one atomic run.
type Reconciler struct {
	repo     ports.Repository
	provider ports.DNSProvider
	logger   *slog.Logger

	// Cache, when set, lets a run reuse a recent snapshot instead of
	// re-collecting from the provider.
	Cache   ports.SnapshotCache
	Alerter ports.Alerter

	// WorkerCount bounds per-domain parallelism to respect provider limits.
	WorkerCount     int
	ProviderTimeout time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	SnapshotMaxAge  time.Duration

	now func() time.Time
}

// NewReconciler creates a Reconciler with the default limits.
func NewReconciler(repo ports.Repository, provider ports.DNSProvider, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:            repo,
		provider:        provider,
		logger:          logger,
		WorkerCount:     5,
		ProviderTimeout: 30 * time.Second,
		RetryAttempts:   2,
		RetryBackoff:    250 * time.Millisecond,
		SnapshotMaxAge:  5 * time.Minute,
		now:             time.Now,
	}
}

type domainResult struct {
	findings       []domain.Finding
	recordsChecked int
	healed         int
	queued         int
	status         domain.AuditStatus
}

// RunAudit resolves the target domain set, processes each domain on a bounded
// worker pool and seals the aggregated result as one immutable AuditRun.
// A provider failure on one domain never aborts the batch; the run is only
// persisted once complete, so readers see either no run or a sealed one.
func (r *Reconciler) RunAudit(ctx context.Context, opts ports.RunOptions) (*domain.AuditRun, error) {
	started := r.now()
	runType := opts.RunType
	if runType == "" {
		runType = domain.RunTypeAudit
	}
	runID := fmt.Sprintf("AUDIT-%s-%s", started.UTC().Format("20060102-150405"), uuid.NewString()[:8])

	configs, err := r.resolveTargets(ctx, opts)
	if err != nil {
		return nil, err
	}

	rows, err := r.repo.ListEnabledPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load policies: %v", domain.ErrPersistenceFailure, err)
	}
	policies, skipped := r.compilePolicies(rows)

	// One zone listing per run keeps every domain's zone ID resolution
	// consistent for the duration of the run. A failure here is tolerable:
	// stored zone IDs still work.
	zones := r.listZones(ctx)

	jobs := make(chan domain.DomainConfig)
	results := make(chan domainResult, len(configs))
	workers := r.WorkerCount
	if workers < 1 {
		workers = 1
	}
	if workers > len(configs) {
		workers = len(configs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				results <- r.processDomain(ctx, cfg, policies, zones, opts, runID)
			}
		}()
	}

dispatch:
	for _, cfg := range configs {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- cfg:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		// Heals already applied and approvals already inserted stay valid;
		// the run record itself is never persisted for a cancelled run.
		return nil, err
	}

	run := &domain.AuditRun{
		RunID:           runID,
		RunType:         runType,
		DryRun:          opts.DryRun,
		DomainsScanned:  len(configs),
		PoliciesSkipped: skipped,
		TriggeredBy:     opts.TriggeredBy,
		StartedAt:       started,
	}
	for res := range results {
		run.TotalRecordsChecked += res.recordsChecked
		run.Findings = append(run.Findings, res.findings...)
		run.Summary.AutoHealed += res.healed
		run.Summary.PendingApproval += res.queued
	}
	for _, f := range run.Findings {
		if f.Status == domain.FindingPass {
			run.Summary.Pass++
		} else {
			run.Summary.Drift++
		}
		metrics.FindingsTotal.WithLabelValues(string(f.Severity), string(f.Status)).Inc()
	}
	domain.SortFindings(run.Findings)
	run.CompletedAt = r.now()

	if err := r.repo.SaveAuditRun(ctx, run); err != nil {
		return nil, fmt.Errorf("%w: audit log: %v", domain.ErrPersistenceFailure, err)
	}
	metrics.AuditRunsTotal.WithLabelValues(string(runType)).Inc()

	if r.Alerter != nil && r.hasCriticalViolation(run) {
		if err := r.Alerter.CriticalFindings(ctx, run); err != nil {
			r.logger.Warn("critical finding alert failed", "run_id", runID, "error", err)
		}
	}
	return run, nil
}

func (r *Reconciler) resolveTargets(ctx context.Context, opts ports.RunOptions) ([]domain.DomainConfig, error) {
	if opts.Domain != "" {
		cfg, err := r.repo.GetDomainConfig(ctx, opts.Domain)
		if err != nil {
			return nil, fmt.Errorf("%w: domain config: %v", domain.ErrPersistenceFailure, err)
		}
		if cfg == nil {
			return nil, fmt.Errorf("%w: domain %q", domain.ErrNotFound, opts.Domain)
		}
		return []domain.DomainConfig{*cfg}, nil
	}
	configs, err := r.repo.ListDomainConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: domain configs: %v", domain.ErrPersistenceFailure, err)
	}
	if opts.Tier != 0 {
		filtered := configs[:0]
		for _, cfg := range configs {
			if cfg.Tier == opts.Tier {
				filtered = append(filtered, cfg)
			}
		}
		configs = filtered
	}
	return configs, nil
}

func (r *Reconciler) compilePolicies(rows []domain.PolicyRow) ([]domain.Policy, []string) {
	var policies []domain.Policy
	var skipped []string
	for _, row := range rows {
		p, err := domain.CompilePolicy(row)
		if err != nil {
			// Malformed policies are skipped for the run, never fatal.
			r.logger.Warn("skipping malformed policy", "policy_id", row.ID, "error", err)
			skipped = append(skipped, row.ID)
			continue
		}
		policies = append(policies, p)
	}
	return policies, skipped
}

func (r *Reconciler) listZones(ctx context.Context) map[string]string {
	var zones map[string]string
	err := r.withProvider(ctx, "list_zones", func(ctx context.Context) error {
		var err error
		zones, err = r.provider.ListZones(ctx)
		return err
	})
	if err != nil {
		r.logger.Warn("zone listing failed, falling back to stored zone IDs", "error", err)
		return nil
	}
	return zones
}

func (r *Reconciler) processDomain(ctx context.Context, cfg domain.DomainConfig, policies []domain.Policy, zones map[string]string, opts ports.RunOptions, runID string) domainResult {
	res := domainResult{status: domain.AuditPass}

	zoneID := cfg.ProviderZoneID
	if z, ok := zones[cfg.Domain]; ok && z != "" {
		if z != cfg.ProviderZoneID {
			if err := r.repo.SetProviderZoneID(ctx, cfg.Domain, z); err != nil {
				r.logger.Warn("failed to store zone id", "domain", cfg.Domain, "error", err)
			}
		}
		zoneID = z
	}
	if zoneID == "" {
		res.status = domain.AuditError
		res.findings = append(res.findings, r.errorFinding(cfg.Domain, "zone not found at provider"))
		r.setAuditStatus(ctx, cfg.Domain, res.status)
		return res
	}

	records, err := r.collect(ctx, cfg.Domain, zoneID)
	if err != nil {
		res.status = domain.AuditError
		res.findings = append(res.findings, r.errorFinding(cfg.Domain, fmt.Sprintf("failed to collect records: %v", err)))
		r.setAuditStatus(ctx, cfg.Domain, res.status)
		return res
	}
	res.recordsChecked = len(records)

	findings := Evaluate(cfg, records, policies)
	byID := make(map[string]domain.Policy, len(policies))
	for _, p := range policies {
		byID[p.ID] = p
	}

	// Records healed during this pass, so later findings proposing the same
	// (type, name) do not trigger a redundant write.
	healedTargets := make(map[string]bool)

	for i := range findings {
		f := &findings[i]
		p := byID[f.PolicyID]
		if f.Status == domain.FindingViolation {
			res.status = domain.AuditDrift
		}

		action := Classify(cfg, *f, p)
		if opts.DryRun || action == ActionAuditOnly {
			continue
		}

		if action == ActionAutoHeal {
			applied, healErr := r.applyHeal(ctx, cfg, zoneID, p, records, healedTargets, runID)
			if healErr == nil {
				if applied > 0 {
					f.Healed = true
					res.healed++
					metrics.HealsApplied.Inc()
				}
				continue
			}
			// A failed heal write must not be dropped silently; the change
			// degrades to the approval queue instead.
			r.logger.Warn("auto-heal failed, queueing for approval", "domain", cfg.Domain, "policy_id", p.ID, "error", healErr)
			action = ActionQueue
		}

		if action == ActionQueue {
			inserted, queueErr := r.queueApproval(ctx, cfg, *f, p, records, runID)
			if queueErr != nil {
				r.logger.Error("failed to queue approval", "domain", cfg.Domain, "policy_id", p.ID, "error", queueErr)
				continue
			}
			f.QueuedForApproval = true
			if inserted {
				res.queued++
				metrics.ApprovalsQueued.Inc()
			}
		}
	}

	res.findings = findings
	r.setAuditStatus(ctx, cfg.Domain, res.status)
	return res
}

// collect returns the domain's live records, reusing a sufficiently recent
// cached snapshot when available. Fresh collections are persisted write-once.
func (r *Reconciler) collect(ctx context.Context, domainName, zoneID string) ([]domain.Record, error) {
	if r.Cache != nil {
		if snap, ok := r.Cache.Get(ctx, domainName); ok && r.now().Sub(snap.TakenAt) <= r.SnapshotMaxAge {
			return snap.Records, nil
		}
	}

	var records []domain.Record
	err := r.withProvider(ctx, "list_records", func(ctx context.Context) error {
		var err error
		records, err = r.provider.ListRecords(ctx, zoneID)
		return err
	})
	if err != nil {
		return nil, err
	}

	snap := domain.Snapshot{
		ID:          uuid.NewString(),
		Domain:      domainName,
		Records:     records,
		RecordCount: len(records),
		TakenAt:     r.now(),
	}
	if err := r.repo.SaveSnapshot(ctx, &snap); err != nil {
		r.logger.Warn("failed to persist snapshot", "domain", domainName, "error", err)
	}
	if r.Cache != nil {
		r.Cache.Set(ctx, snap, r.SnapshotMaxAge)
	}
	return records, nil
}

// applyHeal constructs the corrective record(s) from the policy's heal action
// and writes them to the provider. Each successful write is logged to the
// change ledger immediately, best-effort.
func (r *Reconciler) applyHeal(ctx context.Context, cfg domain.DomainConfig, zoneID string, p domain.Policy, live []domain.Record, healedTargets map[string]bool, runID string) (int, error) {
	applied := 0
	for _, rec := range p.HealAction.Constructible() {
		key := string(rec.Type) + "/" + rec.Name
		if healedTargets[key] {
			continue
		}
		if err := domain.ValidateRecord(rec); err != nil {
			return applied, fmt.Errorf("heal record invalid: %w", err)
		}

		existing := findTarget(live, rec, cfg.Domain)
		if p.HealAction.Kind == domain.HealAddIfMissing && existing != nil && existing.Equal(rec) {
			healedTargets[key] = true
			continue
		}

		action := domain.ActionCreate
		var before *domain.Record
		var providerID string
		var err error
		if p.HealAction.Kind == domain.HealUpsert && existing != nil {
			action = domain.ActionUpdate
			before = existing
			providerID = existing.ProviderID
			err = r.withProvider(ctx, "update_record", func(ctx context.Context) error {
				return r.provider.UpdateRecord(ctx, zoneID, existing.ProviderID, rec)
			})
		} else {
			err = r.withProvider(ctx, "create_record", func(ctx context.Context) error {
				id, createErr := r.provider.CreateRecord(ctx, zoneID, rec)
				providerID = id
				return createErr
			})
		}
		if err != nil {
			return applied, err
		}

		after := rec
		r.appendChange(ctx, &domain.ChangeLogEntry{
			ID:               uuid.NewString(),
			Domain:           cfg.Domain,
			ChangeType:       domain.ChangeAutoHeal,
			RecordType:       rec.Type,
			RecordName:       rec.Name,
			Action:           action,
			BeforeValue:      before,
			AfterValue:       &after,
			ProviderRecordID: providerID,
			AuditRunID:       runID,
			PolicyID:         p.ID,
			AppliedBy:        "sentinel",
			CreatedAt:        r.now(),
		})
		healedTargets[key] = true
		applied++
	}
	return applied, nil
}

// queueApproval proposes the change for human review, deduplicating against
// any request already pending for the same (domain, type, name, action).
func (r *Reconciler) queueApproval(ctx context.Context, cfg domain.DomainConfig, f domain.Finding, p domain.Policy, live []domain.Record, runID string) (bool, error) {
	proposed, current, action := r.proposal(cfg, p, live)
	now := r.now()
	req := &domain.ApprovalRequest{
		ID:            uuid.NewString(),
		Domain:        cfg.Domain,
		RecordType:    proposed.Type,
		RecordName:    proposed.Name,
		Action:        action,
		CurrentValue:  current,
		ProposedValue: proposed,
		Reason:        f.Description,
		RiskLevel:     RiskFor(action, proposed.Type),
		Status:        domain.ApprovalPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(domain.ApprovalTTL),
		AuditRunID:    runID,
		PolicyID:      p.ID,
	}
	return r.repo.InsertApprovalIfAbsent(ctx, req)
}

// proposal derives the concrete change a reviewer will decide on.
func (r *Reconciler) proposal(cfg domain.DomainConfig, p domain.Policy, live []domain.Record) (domain.Record, *domain.Record, domain.ChangeAction) {
	if recs := p.HealAction.Constructible(); len(recs) > 0 {
		rec := recs[0]
		if existing := findTarget(live, rec, cfg.Domain); existing != nil {
			return rec, existing, domain.ActionUpdate
		}
		return rec, nil, domain.ActionCreate
	}

	if p.RuleType == domain.RuleRecordForbidden {
		for _, rec := range live {
			if p.Rule.MatchesRecord(rec, cfg.Domain) {
				matched := rec
				return matched, &matched, domain.ActionDelete
			}
		}
	}

	// No constructible record: propose the rule's target so the violation is
	// still reviewable, with a manual note where the policy provides one.
	target := domain.Record{Type: p.Rule.Type, Name: p.Rule.TargetName()}
	if p.HealAction != nil && p.HealAction.Note != "" {
		target.Content = p.HealAction.Note
	}
	if existing := findTarget(live, target, cfg.Domain); existing != nil {
		return target, existing, domain.ActionUpdate
	}
	return target, nil, domain.ActionCreate
}

func (r *Reconciler) errorFinding(domainName, description string) domain.Finding {
	return domain.Finding{
		Domain:      domainName,
		PolicyID:    "provider",
		Severity:    domain.SeverityCritical,
		Description: description,
		Status:      domain.FindingViolation,
	}
}

func (r *Reconciler) setAuditStatus(ctx context.Context, domainName string, status domain.AuditStatus) {
	if err := r.repo.SetAuditStatus(ctx, domainName, status, r.now()); err != nil {
		r.logger.Warn("failed to update audit status", "domain", domainName, "error", err)
	}
}

func (r *Reconciler) appendChange(ctx context.Context, entry *domain.ChangeLogEntry) {
	// The change log is written immediately after each provider write rather
	// than batched; DNS writes are not transactional with the ledger.
	if err := r.repo.AppendChangeLog(ctx, entry); err != nil {
		r.logger.Error("failed to append change log entry", "domain", entry.Domain, "record", entry.RecordName, "error", err)
	}
}

func (r *Reconciler) hasCriticalViolation(run *domain.AuditRun) bool {
	for _, f := range run.Findings {
		if f.Status == domain.FindingViolation && f.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// withProvider runs one provider call with a per-call timeout and bounded
// retries. Exhausted retries surface as ErrProviderUnavailable.
func (r *Reconciler) withProvider(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * r.RetryBackoff):
			}
		}
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, r.ProviderTimeout)
		err = fn(callCtx)
		cancel()
		metrics.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		metrics.ProviderErrors.WithLabelValues(op).Inc()
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, op, err)
}

func findTarget(records []domain.Record, rec domain.Record, zone string) *domain.Record {
	want := domain.RelativeName(rec.Name, zone)
	for i := range records {
		if records[i].Type == rec.Type && domain.RelativeName(records[i].Name, zone) == want {
			return &records[i]
		}
	}
	return nil
}
