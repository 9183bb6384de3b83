package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/dnsSentinel/internal/core/domain"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
	"github.com/poyrazK/dnsSentinel/internal/infrastructure/metrics"
)

// ApprovalQueue drains pending approval requests through human decisions.
// Every state transition goes through an atomic compare-and-set in the
// repository, so two concurrent reviewers cannot both win the same request.
type ApprovalQueue struct {
	repo     ports.Repository
	provider ports.DNSProvider
	logger   *slog.Logger

	now func() time.Time
}

// NewApprovalQueue creates an ApprovalQueue backed by the given store and provider.
func NewApprovalQueue(repo ports.Repository, provider ports.DNSProvider, logger *slog.Logger) *ApprovalQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalQueue{repo: repo, provider: provider, logger: logger, now: time.Now}
}

// Approve applies a pending request to the provider and returns the resulting
// change-log entry. The request is claimed (pending -> approved) before the
// provider write; if the write then fails, the claim is rolled back so the
// request stays actionable.
func (q *ApprovalQueue) Approve(ctx context.Context, id, reviewer, notes string) (*domain.ChangeLogEntry, error) {
	req, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}

	claimed, err := q.repo.TransitionApproval(ctx, id, domain.ApprovalPending, domain.ApprovalApproved, reviewer, notes)
	if err != nil {
		return nil, fmt.Errorf("%w: claim approval: %v", domain.ErrPersistenceFailure, err)
	}
	if !claimed {
		// Another reviewer decided the request between our read and the claim.
		return nil, fmt.Errorf("%w: approval %s is no longer pending", domain.ErrInvalidState, id)
	}

	entry, err := q.apply(ctx, req, reviewer, notes)
	if err != nil {
		// Roll the claim back so the request can be retried or rejected.
		if _, revertErr := q.repo.TransitionApproval(ctx, id, domain.ApprovalApproved, domain.ApprovalPending, "", ""); revertErr != nil {
			q.logger.Error("failed to revert approval claim after provider error", "approval_id", id, "error", revertErr)
		}
		return nil, err
	}

	metrics.ApprovalsDecided.WithLabelValues(string(domain.ApprovalApproved)).Inc()
	return entry, nil
}

// Reject marks a pending request as rejected. No provider write happens.
func (q *ApprovalQueue) Reject(ctx context.Context, id, reviewer, notes string) error {
	if _, err := q.load(ctx, id); err != nil {
		return err
	}
	done, err := q.repo.TransitionApproval(ctx, id, domain.ApprovalPending, domain.ApprovalRejected, reviewer, notes)
	if err != nil {
		return fmt.Errorf("%w: reject approval: %v", domain.ErrPersistenceFailure, err)
	}
	if !done {
		return fmt.Errorf("%w: approval %s is no longer pending", domain.ErrInvalidState, id)
	}
	metrics.ApprovalsDecided.WithLabelValues(string(domain.ApprovalRejected)).Inc()
	return nil
}

// List returns approval requests matching the filter. Overdue pending entries
// are expired first, so listings never show an actionable-looking request that
// is actually past its TTL.
func (q *ApprovalQueue) List(ctx context.Context, f ports.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	if n, err := q.repo.ExpireApprovals(ctx, q.now()); err != nil {
		q.logger.Warn("failed to expire overdue approvals", "error", err)
	} else if n > 0 {
		q.logger.Info("expired overdue approvals", "count", n)
	}
	reqs, err := q.repo.ListApprovals(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list approvals: %v", domain.ErrPersistenceFailure, err)
	}
	return reqs, nil
}

// load fetches the request and applies lazy expiry before any decision.
func (q *ApprovalQueue) load(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	req, err := q.repo.GetApproval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get approval: %v", domain.ErrPersistenceFailure, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: approval %s", domain.ErrNotFound, id)
	}
	if req.Status == domain.ApprovalPending && req.ExpiredAt(q.now()) {
		if _, err := q.repo.TransitionApproval(ctx, id, domain.ApprovalPending, domain.ApprovalExpired, "", ""); err != nil {
			q.logger.Warn("failed to expire overdue approval", "approval_id", id, "error", err)
		}
		return nil, fmt.Errorf("%w: approval %s has expired", domain.ErrInvalidState, id)
	}
	if req.Status != domain.ApprovalPending {
		return nil, fmt.Errorf("%w: approval %s is %s", domain.ErrInvalidState, id, req.Status)
	}
	return req, nil
}

// apply performs the approved provider write and appends the ledger entry.
func (q *ApprovalQueue) apply(ctx context.Context, req *domain.ApprovalRequest, reviewer, notes string) (*domain.ChangeLogEntry, error) {
	cfg, err := q.repo.GetDomainConfig(ctx, req.Domain)
	if err != nil {
		return nil, fmt.Errorf("%w: domain config: %v", domain.ErrPersistenceFailure, err)
	}
	if cfg == nil || cfg.ProviderZoneID == "" {
		return nil, fmt.Errorf("%w: no zone known for domain %q", domain.ErrNotFound, req.Domain)
	}
	zoneID := cfg.ProviderZoneID

	// Record IDs in the request may be stale by decision time; resolve the
	// current record at (type, name) fresh from the provider.
	live, err := q.provider.ListRecords(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", domain.ErrProviderUnavailable, err)
	}
	existing := findTarget(live, domain.Record{Type: req.RecordType, Name: req.RecordName}, req.Domain)

	entry := &domain.ChangeLogEntry{
		ID:         uuid.NewString(),
		Domain:     req.Domain,
		ChangeType: domain.ChangeApproved,
		RecordType: req.RecordType,
		RecordName: req.RecordName,
		Action:     req.Action,
		AuditRunID: req.AuditRunID,
		PolicyID:   req.PolicyID,
		AppliedBy:  reviewer,
		Notes:      notes,
		CreatedAt:  q.now(),
	}

	switch req.Action {
	case domain.ActionDelete:
		if existing == nil {
			// The drift already resolved itself; nothing to delete.
			entry.Notes = joinNotes(notes, "record already absent at apply time")
		} else {
			if err := q.provider.DeleteRecord(ctx, zoneID, existing.ProviderID, *existing); err != nil {
				return nil, fmt.Errorf("%w: delete record: %v", domain.ErrProviderUnavailable, err)
			}
			entry.BeforeValue = existing
			entry.ProviderRecordID = existing.ProviderID
		}

	case domain.ActionUpdate:
		if existing == nil {
			// Target vanished since queueing; fall through to a create.
			id, createErr := q.provider.CreateRecord(ctx, zoneID, req.ProposedValue)
			if createErr != nil {
				return nil, fmt.Errorf("%w: create record: %v", domain.ErrProviderUnavailable, createErr)
			}
			after := req.ProposedValue
			entry.Action = domain.ActionCreate
			entry.AfterValue = &after
			entry.ProviderRecordID = id
			break
		}
		if err := q.provider.UpdateRecord(ctx, zoneID, existing.ProviderID, req.ProposedValue); err != nil {
			return nil, fmt.Errorf("%w: update record: %v", domain.ErrProviderUnavailable, err)
		}
		after := req.ProposedValue
		entry.BeforeValue = existing
		entry.AfterValue = &after
		entry.ProviderRecordID = existing.ProviderID

	default:
		id, createErr := q.provider.CreateRecord(ctx, zoneID, req.ProposedValue)
		if createErr != nil {
			return nil, fmt.Errorf("%w: create record: %v", domain.ErrProviderUnavailable, createErr)
		}
		after := req.ProposedValue
		entry.AfterValue = &after
		entry.ProviderRecordID = id
	}

	if err := q.repo.AppendChangeLog(ctx, entry); err != nil {
		// The provider write already happened; the decision stands even if the
		// ledger append fails.
		q.logger.Error("failed to append change log entry for approved change", "approval_id", req.ID, "error", err)
	}
	return entry, nil
}

func joinNotes(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}
