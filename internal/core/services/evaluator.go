package services

import (
	"fmt"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
)

// Evaluate checks a domain's live records against its resolved policy set and
// returns one finding per applicable enabled policy. It is a pure function:
// no side effects, deterministic given identical inputs. Policies whose scope
// does not match the domain contribute no finding at all.
func Evaluate(cfg domain.DomainConfig, records []domain.Record, policies []domain.Policy) []domain.Finding {
	var findings []domain.Finding
	for _, p := range policies {
		if !p.Enabled || !p.Scope.Matches(cfg) {
			continue
		}
		findings = append(findings, evaluatePolicy(cfg, records, p))
	}
	domain.SortFindings(findings)
	return findings
}

func evaluatePolicy(cfg domain.DomainConfig, records []domain.Record, p domain.Policy) domain.Finding {
	f := domain.Finding{
		Domain:   cfg.Domain,
		PolicyID: p.ID,
		Severity: p.Severity,
		Status:   domain.FindingPass,
	}

	switch p.RuleType {
	case domain.RuleRecordRequired:
		// Passes if at least one live record satisfies the full rule.
		for _, rec := range records {
			if p.Rule.MatchesRecord(rec, cfg.Domain) {
				f.Description = fmt.Sprintf("required record present: %s %s", p.Rule.Type, p.Rule.TargetName())
				return f
			}
		}
		f.Status = domain.FindingViolation
		f.Description = fmt.Sprintf("required record not found: %s %s", p.Rule.Type, p.Rule.TargetName())

	case domain.RuleRecordForbidden:
		// Fails if any live record matches the rule.
		for _, rec := range records {
			if p.Rule.MatchesRecord(rec, cfg.Domain) {
				f.Status = domain.FindingViolation
				f.Description = fmt.Sprintf("forbidden record found: %s %s", p.Rule.Type, p.Rule.TargetName())
				return f
			}
		}
		f.Description = fmt.Sprintf("no forbidden record: %s %s", p.Rule.Type, p.Rule.TargetName())

	case domain.RuleRecordValueMatch:
		// Locate the target (type, name) records first, then check values.
		// Multiple records at the same target each get a chance to satisfy
		// the predicate (e.g. several MX records).
		var targets []domain.Record
		for _, rec := range records {
			if p.Rule.MatchesTarget(rec, cfg.Domain) {
				targets = append(targets, rec)
			}
		}
		if len(targets) == 0 {
			f.Status = domain.FindingViolation
			f.Description = fmt.Sprintf("record %s %s not found for value check", p.Rule.Type, p.Rule.TargetName())
			return f
		}
		for _, rec := range targets {
			if p.Rule.MatchesContent(rec) {
				f.Description = fmt.Sprintf("record %s %s value matches policy", p.Rule.Type, p.Rule.TargetName())
				return f
			}
		}
		f.Status = domain.FindingViolation
		f.Description = fmt.Sprintf("record %s %s value does not match policy", p.Rule.Type, p.Rule.TargetName())
	}

	return f
}
