package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Severity classifies how serious a policy violation is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities for reporting: critical > warning > info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// RuleType selects how a policy's rule is applied against live records.
type RuleType string

const (
	RuleRecordRequired   RuleType = "record_required"
	RuleRecordForbidden  RuleType = "record_forbidden"
	RuleRecordValueMatch RuleType = "record_value_match"
)

// ScopeKind discriminates policy scopes.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeTier    ScopeKind = "tier"
	ScopeService ScopeKind = "service"
	ScopeDomain  ScopeKind = "domain"
)

// PolicyScope restricts which domains a policy applies to.
type PolicyScope struct {
	Kind    ScopeKind
	Tier    int
	Service string
	Domain  string
}

// ParseScope parses scope strings of the form "global", "tier:<n>",
// "service:<id>" or "domain:<name>".
func ParseScope(s string) (PolicyScope, error) {
	if s == "" || s == string(ScopeGlobal) {
		return PolicyScope{Kind: ScopeGlobal}, nil
	}
	kind, rest, found := strings.Cut(s, ":")
	if !found {
		return PolicyScope{}, fmt.Errorf("%w: scope %q", ErrPolicyMalformed, s)
	}
	switch ScopeKind(kind) {
	case ScopeTier:
		tier, err := strconv.Atoi(rest)
		if err != nil {
			return PolicyScope{}, fmt.Errorf("%w: tier scope %q", ErrPolicyMalformed, s)
		}
		return PolicyScope{Kind: ScopeTier, Tier: tier}, nil
	case ScopeService:
		return PolicyScope{Kind: ScopeService, Service: rest}, nil
	case ScopeDomain:
		return PolicyScope{Kind: ScopeDomain, Domain: rest}, nil
	default:
		return PolicyScope{}, fmt.Errorf("%w: scope kind %q", ErrPolicyMalformed, kind)
	}
}

// String renders the scope back to its storage form.
func (p PolicyScope) String() string {
	switch p.Kind {
	case ScopeTier:
		return fmt.Sprintf("tier:%d", p.Tier)
	case ScopeService:
		return "service:" + p.Service
	case ScopeDomain:
		return "domain:" + p.Domain
	default:
		return string(ScopeGlobal)
	}
}

// Matches reports whether the scope covers the given domain.
func (p PolicyScope) Matches(cfg DomainConfig) bool {
	switch p.Kind {
	case ScopeGlobal:
		return true
	case ScopeTier:
		return cfg.Tier == p.Tier
	case ScopeService:
		return cfg.HasService(p.Service)
	case ScopeDomain:
		return strings.EqualFold(cfg.Domain, p.Domain)
	default:
		return false
	}
}

// MatchKind discriminates content predicates.
type MatchKind int

const (
	// MatchExact requires content to equal the value.
	MatchExact MatchKind = iota
	// MatchPrefix requires content to start with the value.
	MatchPrefix
	// MatchContains requires content to contain the value.
	MatchContains
	// MatchContainsAny requires content to contain at least one of the values.
	MatchContainsAny
)

// ContentMatch is one resolved content predicate.
type ContentMatch struct {
	Kind   MatchKind
	Value  string
	Values []string
}

// Matches applies the predicate to normalized record content.
func (m ContentMatch) Matches(content string) bool {
	switch m.Kind {
	case MatchExact:
		return content == m.Value
	case MatchPrefix:
		return strings.HasPrefix(content, m.Value)
	case MatchContains:
		return strings.Contains(content, m.Value)
	case MatchContainsAny:
		for _, v := range m.Values {
			if strings.Contains(content, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RawRule is the stored (JSON) form of a rule body.
type RawRule struct {
	Type              string   `json:"type"`
	Name              *string  `json:"name,omitempty"`
	Content           *string  `json:"content,omitempty"`
	ContentContains   *string  `json:"content_contains,omitempty"`
	ContentStartsWith *string  `json:"content_startswith,omitempty"`
	ContentContainsAny []string `json:"content_contains_any,omitempty"`
	Proxied           *bool    `json:"proxied,omitempty"`
}

// RuleSpec is the compiled matcher a policy runs against live records.
// Content predicates are resolved once at policy-load time, never re-parsed
// per evaluation. All listed predicates must hold for a record to match.
type RuleSpec struct {
	Type    RecordType
	Name    *string
	Content []ContentMatch
	Proxied *bool
}

// CompileRule resolves a stored rule body into a RuleSpec.
func CompileRule(raw RawRule) (RuleSpec, error) {
	if raw.Type == "" {
		return RuleSpec{}, fmt.Errorf("%w: rule has no record type", ErrPolicyMalformed)
	}
	spec := RuleSpec{
		Type:    RecordType(strings.ToUpper(raw.Type)),
		Name:    raw.Name,
		Proxied: raw.Proxied,
	}
	if raw.Content != nil {
		spec.Content = append(spec.Content, ContentMatch{Kind: MatchExact, Value: *raw.Content})
	}
	if raw.ContentContains != nil {
		spec.Content = append(spec.Content, ContentMatch{Kind: MatchContains, Value: *raw.ContentContains})
	}
	if raw.ContentStartsWith != nil {
		spec.Content = append(spec.Content, ContentMatch{Kind: MatchPrefix, Value: *raw.ContentStartsWith})
	}
	if len(raw.ContentContainsAny) > 0 {
		spec.Content = append(spec.Content, ContentMatch{Kind: MatchContainsAny, Values: raw.ContentContainsAny})
	}
	return spec, nil
}

// TargetName is the rule's record name, defaulting to the zone apex.
func (r RuleSpec) TargetName() string {
	if r.Name == nil || *r.Name == "" {
		return Apex
	}
	return *r.Name
}

// MatchesTarget reports whether the record matches the rule's (type, name).
// Name matching is literal against the zone-relative record name; "@" matches
// only records at the apex.
func (r RuleSpec) MatchesTarget(rec Record, zone string) bool {
	if rec.Type != r.Type {
		return false
	}
	if r.Name == nil {
		return true
	}
	return strings.EqualFold(RelativeName(rec.Name, zone), strings.ToLower(*r.Name))
}

// MatchesRecord reports whether the record satisfies the full rule, target and
// content predicates included.
func (r RuleSpec) MatchesRecord(rec Record, zone string) bool {
	if !r.MatchesTarget(rec, zone) {
		return false
	}
	return r.MatchesContent(rec)
}

// MatchesContent applies only the content and proxied predicates.
func (r RuleSpec) MatchesContent(rec Record) bool {
	content := NormalizeContent(rec)
	for _, m := range r.Content {
		if !m.Matches(content) {
			return false
		}
	}
	if r.Proxied != nil {
		if rec.Proxied == nil || *rec.Proxied != *r.Proxied {
			return false
		}
	}
	return true
}

// HealKind is the remediation strategy a policy proposes.
type HealKind string

const (
	// HealAdd creates the corrective record unconditionally.
	HealAdd HealKind = "add"
	// HealUpsert updates the record at (type, name) or creates it.
	HealUpsert HealKind = "upsert"
	// HealAddIfMissing creates each listed record unless an equal one exists.
	HealAddIfMissing HealKind = "add_if_missing"
	// HealDescription carries a manual-action note only; nothing constructible.
	HealDescription HealKind = "description"
)

// RawHealAction is the stored (JSON) form of a heal action.
type RawHealAction struct {
	Action  string   `json:"action"`
	Record  *Record  `json:"record,omitempty"`
	Records []Record `json:"records,omitempty"`
	Note    string   `json:"note,omitempty"`
}

// HealAction describes how to construct the corrective record for a violation.
type HealAction struct {
	Kind    HealKind
	Record  *Record
	Records []Record
	Note    string
}

// Constructible returns the records the heal action can actually build.
// A nil action or a description-only action yields nothing.
func (h *HealAction) Constructible() []Record {
	if h == nil {
		return nil
	}
	switch h.Kind {
	case HealAdd, HealUpsert:
		if h.Record != nil {
			return []Record{*h.Record}
		}
	case HealAddIfMissing:
		return h.Records
	}
	return nil
}

// PolicyRow is a policy as stored, with the rule and heal bodies still raw.
type PolicyRow struct {
	ID         string
	Name       string
	Scope      string
	RuleType   string
	Rule       []byte
	Severity   string
	AutoHeal   bool
	HealAction []byte
	Enabled    bool
}

// Policy is a compiled, evaluable policy.
type Policy struct {
	ID         string
	Name       string
	Scope      PolicyScope
	RuleType   RuleType
	Rule       RuleSpec
	Severity   Severity
	AutoHeal   bool
	HealAction *HealAction
	Enabled    bool
}

// CompilePolicy resolves a stored policy row into its evaluable form.
func CompilePolicy(row PolicyRow) (Policy, error) {
	scope, err := ParseScope(row.Scope)
	if err != nil {
		return Policy{}, err
	}
	switch RuleType(row.RuleType) {
	case RuleRecordRequired, RuleRecordForbidden, RuleRecordValueMatch:
	default:
		return Policy{}, fmt.Errorf("%w: unknown rule type %q", ErrPolicyMalformed, row.RuleType)
	}
	var raw RawRule
	if err := json.Unmarshal(row.Rule, &raw); err != nil {
		return Policy{}, fmt.Errorf("%w: rule body: %v", ErrPolicyMalformed, err)
	}
	rule, err := CompileRule(raw)
	if err != nil {
		return Policy{}, err
	}
	p := Policy{
		ID:       row.ID,
		Name:     row.Name,
		Scope:    scope,
		RuleType: RuleType(row.RuleType),
		Rule:     rule,
		Severity: Severity(row.Severity),
		AutoHeal: row.AutoHeal,
		Enabled:  row.Enabled,
	}
	if len(row.HealAction) > 0 && string(row.HealAction) != "null" {
		var rawHeal RawHealAction
		if err := json.Unmarshal(row.HealAction, &rawHeal); err != nil {
			return Policy{}, fmt.Errorf("%w: heal action: %v", ErrPolicyMalformed, err)
		}
		p.HealAction = &HealAction{
			Kind:    HealKind(rawHeal.Action),
			Record:  rawHeal.Record,
			Records: rawHeal.Records,
			Note:    rawHeal.Note,
		}
	}
	return p, nil
}

// FindingStatus is the outcome of evaluating one policy against one domain.
type FindingStatus string

const (
	FindingPass      FindingStatus = "pass"
	FindingViolation FindingStatus = "violation"
)

// Finding is one policy's evaluation result for one domain. Findings are
// produced fresh each run and never mutated after the run is sealed.
type Finding struct {
	Domain            string        `json:"domain"`
	PolicyID          string        `json:"policy_id"`
	Severity          Severity      `json:"severity"`
	Description       string        `json:"description"`
	Status            FindingStatus `json:"status"`
	Healed            bool          `json:"healed"`
	QueuedForApproval bool          `json:"queued_for_approval"`
}

// SortFindings orders findings by descending severity, then policy ID, then
// domain, for stable and reviewable reports.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity.Rank() != findings[j].Severity.Rank() {
			return findings[i].Severity.Rank() < findings[j].Severity.Rank()
		}
		if findings[i].PolicyID != findings[j].PolicyID {
			return findings[i].PolicyID < findings[j].PolicyID
		}
		return findings[i].Domain < findings[j].Domain
	})
}
