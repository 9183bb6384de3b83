package services

import "github.com/poyrazK/dnsSentinel/internal/core/domain"

// Action is the remediation decision for one finding.
type Action int

const (
	// ActionAuditOnly records the finding and does nothing else.
	ActionAuditOnly Action = iota
	// ActionAutoHeal applies the policy's corrective record without review.
	ActionAutoHeal
	// ActionQueue routes the violation through the approval queue.
	ActionQueue
)

func (a Action) String() string {
	switch a {
	case ActionAutoHeal:
		return "auto_heal"
	case ActionQueue:
		return "queue"
	default:
		return "audit_only"
	}
}

// Classify maps a finding to its remediation action. Pure function.
//
// Discontinued (tier 5) domains are always audit-only regardless of policy
// flags. A violating policy with autoHeal set and a constructible heal record
// heals automatically; any other violation is queued so a human can review it.
// Passing findings are never classified into an action.
func Classify(cfg domain.DomainConfig, f domain.Finding, p domain.Policy) Action {
	if f.Status != domain.FindingViolation {
		return ActionAuditOnly
	}
	if cfg.AuditOnly() {
		return ActionAuditOnly
	}
	if p.AutoHeal && len(p.HealAction.Constructible()) > 0 {
		return ActionAutoHeal
	}
	return ActionQueue
}

// RiskFor derives the risk level shown to reviewers for a queued change.
// Deletes and changes to A/MX/CNAME records can break live traffic or mail
// flow and are high risk; TXT/CAA additions are low risk.
func RiskFor(action domain.ChangeAction, recordType domain.RecordType) domain.RiskLevel {
	if action == domain.ActionDelete {
		return domain.RiskHigh
	}
	switch recordType {
	case domain.TypeA, domain.TypeAAAA, domain.TypeMX, domain.TypeCNAME:
		return domain.RiskHigh
	case domain.TypeTXT, domain.TypeCAA:
		if action == domain.ActionCreate {
			return domain.RiskLow
		}
		return domain.RiskMedium
	default:
		return domain.RiskMedium
	}
}
