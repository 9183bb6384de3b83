package services

import (
	"testing"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func testConfig() domain.DomainConfig {
	return domain.DomainConfig{
		Domain:   "example.com",
		Tier:     1,
		Services: []string{"google-workspace"},
	}
}

func requiredPolicy(id string, recType domain.RecordType, name string, matches ...domain.ContentMatch) domain.Policy {
	return domain.Policy{
		ID:       id,
		Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
		RuleType: domain.RuleRecordRequired,
		Rule:     domain.RuleSpec{Type: recType, Name: strPtr(name), Content: matches},
		Severity: domain.SeverityCritical,
		Enabled:  true,
	}
}

func TestEvaluateRequiredRecord(t *testing.T) {
	cfg := testConfig()
	p := requiredPolicy("spf-required", domain.TypeTXT, "@",
		domain.ContentMatch{Kind: domain.MatchPrefix, Value: "v=spf1"})

	records := []domain.Record{
		{Type: domain.TypeTXT, Name: "example.com", Content: "v=spf1 include:_spf.google.com ~all"},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected pass, got %s: %s", findings[0].Status, findings[0].Description)
	}

	findings = Evaluate(cfg, nil, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation for missing record, got %s", findings[0].Status)
	}
}

func TestEvaluateRequiredRecordNameIsLiteral(t *testing.T) {
	cfg := testConfig()
	p := requiredPolicy("dmarc-required", domain.TypeTXT, "_dmarc",
		domain.ContentMatch{Kind: domain.MatchPrefix, Value: "v=DMARC1"})

	// A record on a different label must not satisfy a _dmarc rule, even
	// though its name contains "_dmarc".
	records := []domain.Record{
		{Type: domain.TypeTXT, Name: "_dmarc.sub.example.com", Content: "v=DMARC1; p=reject"},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation, got %s", findings[0].Status)
	}

	records = []domain.Record{
		{Type: domain.TypeTXT, Name: "_dmarc.example.com", Content: "v=DMARC1; p=reject"},
	}
	findings = Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected pass, got %s", findings[0].Status)
	}
}

func TestEvaluateForbiddenRecord(t *testing.T) {
	cfg := testConfig()
	p := domain.Policy{
		ID:       "no-wildcard",
		Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
		RuleType: domain.RuleRecordForbidden,
		Rule:     domain.RuleSpec{Type: domain.TypeCNAME, Name: strPtr("*")},
		Severity: domain.SeverityWarning,
		Enabled:  true,
	}

	records := []domain.Record{
		{Type: domain.TypeCNAME, Name: "*.example.com", Content: "parked.example.net"},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation for forbidden record, got %s", findings[0].Status)
	}

	findings = Evaluate(cfg, nil, []domain.Policy{p})
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected pass when forbidden record absent, got %s", findings[0].Status)
	}
}

func TestEvaluateValueMatchMultipleTargets(t *testing.T) {
	cfg := testConfig()
	p := domain.Policy{
		ID:       "mx-google",
		Scope:    domain.PolicyScope{Kind: domain.ScopeService, Service: "google-workspace"},
		RuleType: domain.RuleRecordValueMatch,
		Rule: domain.RuleSpec{
			Type: domain.TypeMX, Name: strPtr("@"),
			Content: []domain.ContentMatch{{Kind: domain.MatchContains, Value: "google.com"}},
		},
		Severity: domain.SeverityCritical,
		Enabled:  true,
	}

	// Several MX records at the apex; one satisfying record is enough.
	records := []domain.Record{
		{Type: domain.TypeMX, Name: "example.com", Content: "backup-mail.example.org"},
		{Type: domain.TypeMX, Name: "example.com", Content: "smtp.google.com"},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected pass, got %s: %s", findings[0].Status, findings[0].Description)
	}

	// Target exists but no value matches.
	records = records[:1]
	findings = Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation for wrong value, got %s", findings[0].Status)
	}

	// Target missing entirely is a violation, not a skip.
	findings = Evaluate(cfg, nil, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation for missing target, got %s", findings[0].Status)
	}
}

func TestEvaluateContainsAny(t *testing.T) {
	cfg := testConfig()
	p := domain.Policy{
		ID:       "caa-issuer",
		Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
		RuleType: domain.RuleRecordValueMatch,
		Rule: domain.RuleSpec{
			Type: domain.TypeCAA, Name: strPtr("@"),
			Content: []domain.ContentMatch{{
				Kind:   domain.MatchContainsAny,
				Values: []string{"letsencrypt.org", "pki.goog"},
			}},
		},
		Severity: domain.SeverityWarning,
		Enabled:  true,
	}

	records := []domain.Record{
		{Type: domain.TypeCAA, Name: "example.com", Content: `0 issue "pki.goog"`},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected pass for allowed issuer, got %s", findings[0].Status)
	}

	records[0].Content = `0 issue "evil-ca.example"`
	findings = Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation for unknown issuer, got %s", findings[0].Status)
	}
}

func TestEvaluateTXTQuoteNormalization(t *testing.T) {
	cfg := testConfig()
	p := requiredPolicy("spf-required", domain.TypeTXT, "@",
		domain.ContentMatch{Kind: domain.MatchPrefix, Value: "v=spf1"})

	// Long TXT values come back from the provider in quoted segments.
	records := []domain.Record{
		{Type: domain.TypeTXT, Name: "example.com", Content: `"v=spf1 include:_spf.google.com" " include:mail.example.org ~all"`},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected quoted TXT content to normalize and pass, got %s", findings[0].Status)
	}
}

func TestEvaluateScopeAndEnabledFiltering(t *testing.T) {
	cfg := testConfig() // tier 1, google-workspace

	policies := []domain.Policy{
		requiredPolicy("global", domain.TypeTXT, "@"),
		{
			ID:       "tier3-only",
			Scope:    domain.PolicyScope{Kind: domain.ScopeTier, Tier: 3},
			RuleType: domain.RuleRecordRequired,
			Rule:     domain.RuleSpec{Type: domain.TypeA, Name: strPtr("@")},
			Severity: domain.SeverityInfo,
			Enabled:  true,
		},
		{
			ID:       "disabled",
			Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
			RuleType: domain.RuleRecordRequired,
			Rule:     domain.RuleSpec{Type: domain.TypeA, Name: strPtr("@")},
			Severity: domain.SeverityInfo,
			Enabled:  false,
		},
	}

	findings := Evaluate(cfg, nil, policies)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding (out-of-scope and disabled omitted), got %d", len(findings))
	}
	if findings[0].PolicyID != "global" {
		t.Errorf("unexpected finding for policy %s", findings[0].PolicyID)
	}
}

func TestEvaluateOrderingAndDeterminism(t *testing.T) {
	cfg := testConfig()
	policies := []domain.Policy{
		{
			ID:       "b-info",
			Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
			RuleType: domain.RuleRecordRequired,
			Rule:     domain.RuleSpec{Type: domain.TypeNS, Name: strPtr("@")},
			Severity: domain.SeverityInfo,
			Enabled:  true,
		},
		requiredPolicy("a-critical", domain.TypeTXT, "@"),
		{
			ID:       "c-warning",
			Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
			RuleType: domain.RuleRecordRequired,
			Rule:     domain.RuleSpec{Type: domain.TypeMX, Name: strPtr("@")},
			Severity: domain.SeverityWarning,
			Enabled:  true,
		},
	}

	first := Evaluate(cfg, nil, policies)
	second := Evaluate(cfg, nil, policies)

	want := []string{"a-critical", "c-warning", "b-info"}
	for i, id := range want {
		if first[i].PolicyID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, first[i].PolicyID)
		}
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("evaluation not deterministic at index %d", i)
		}
	}
}

func TestEvaluateProxiedPredicate(t *testing.T) {
	cfg := testConfig()
	proxied := true
	p := domain.Policy{
		ID:       "apex-proxied",
		Scope:    domain.PolicyScope{Kind: domain.ScopeGlobal},
		RuleType: domain.RuleRecordValueMatch,
		Rule:     domain.RuleSpec{Type: domain.TypeA, Name: strPtr("@"), Proxied: &proxied},
		Severity: domain.SeverityWarning,
		Enabled:  true,
	}

	off := false
	records := []domain.Record{
		{Type: domain.TypeA, Name: "example.com", Content: "192.0.2.10", Proxied: &off},
	}
	findings := Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingViolation {
		t.Errorf("expected violation for unproxied record, got %s", findings[0].Status)
	}

	on := true
	records[0].Proxied = &on
	findings = Evaluate(cfg, records, []domain.Policy{p})
	if findings[0].Status != domain.FindingPass {
		t.Errorf("expected pass for proxied record, got %s", findings[0].Status)
	}
}
