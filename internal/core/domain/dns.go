// Package domain contains the core business logic and entities for dnsSentinel.
package domain

import (
	"strings"
	"time"
)

// RecordType represents the type of a DNS record (e.g., A, MX, TXT).
type RecordType string

const (
	// TypeA represents an IPv4 address record.
	TypeA RecordType = "A"
	// TypeAAAA represents an IPv6 address record.
	TypeAAAA RecordType = "AAAA"
	// TypeCNAME represents a canonical name record.
	TypeCNAME RecordType = "CNAME"
	// TypeMX represents a mail exchange record.
	TypeMX RecordType = "MX"
	// TypeTXT represents a text record.
	TypeTXT RecordType = "TXT"
	// TypeNS represents a name server record.
	TypeNS RecordType = "NS"
	// TypeCAA represents a certification authority authorization record.
	TypeCAA RecordType = "CAA"
	// TypeSRV represents a service locator record.
	TypeSRV RecordType = "SRV"
)

// Record is an immutable snapshot of one provider-side DNS record.
// Records are matched by (type, name) and compared for equality by full content.
type Record struct {
	Type       RecordType `json:"type"`
	Name       string     `json:"name"`
	Content    string     `json:"content"`
	TTL        int        `json:"ttl"`
	Priority   *int       `json:"priority,omitempty"`
	Proxied    *bool      `json:"proxied,omitempty"`
	ProviderID string     `json:"provider_record_id,omitempty"`
}

// SameTarget reports whether two records share the same (type, name) identity.
func (r Record) SameTarget(other Record) bool {
	return r.Type == other.Type && strings.EqualFold(r.Name, other.Name)
}

// Equal reports full content equality, ignoring the provider-assigned ID.
func (r Record) Equal(other Record) bool {
	if !r.SameTarget(other) || r.Content != other.Content || r.TTL != other.TTL {
		return false
	}
	if (r.Priority == nil) != (other.Priority == nil) {
		return false
	}
	if r.Priority != nil && *r.Priority != *other.Priority {
		return false
	}
	return true
}

// Apex is the record name denoting the zone apex in rule specs.
const Apex = "@"

// RelativeName normalizes a provider FQDN to a name relative to the zone.
// "example.com" becomes "@", "_dmarc.example.com" becomes "_dmarc".
// Names outside the zone are returned unchanged.
func RelativeName(name, zone string) string {
	n := strings.ToLower(strings.TrimSuffix(name, "."))
	z := strings.ToLower(strings.TrimSuffix(zone, "."))
	if n == z || n == Apex || n == "" {
		return Apex
	}
	if strings.HasSuffix(n, "."+z) {
		return strings.TrimSuffix(n, "."+z)
	}
	return n
}

// NormalizeContent returns the comparable content of a record. Providers return
// long TXT values (>255 octets) with literal outer quotes and internal
// quote-separated segments, e.g. `"v=spf1 include:a.com" "include:b.net ~all"`;
// the segments are stripped and joined back into the plain value.
func NormalizeContent(r Record) string {
	content := r.Content
	if r.Type == TypeTXT && strings.HasPrefix(content, `"`) {
		content = strings.ReplaceAll(content, `" "`, "")
		content = strings.Trim(content, `"`)
	}
	return content
}

// AuditStatus is the last observed compliance state of a domain.
type AuditStatus string

const (
	AuditPass  AuditStatus = "pass"
	AuditDrift AuditStatus = "drift"
	AuditError AuditStatus = "error"
)

// TierDiscontinue marks domains that are being wound down. They are never
// auto-healed and never produce approval-queue entries.
const TierDiscontinue = 5

// DomainConfig is the source-of-truth configuration for one managed domain.
type DomainConfig struct {
	Domain          string      `json:"domain"`
	Tier            int         `json:"tier"`
	TierLabel       string      `json:"tier_label"`
	ProviderZoneID  string      `json:"provider_zone_id"`
	Services        []string    `json:"services"`
	RedirectTarget  string      `json:"redirect_target,omitempty"`
	CustomRecords   []Record    `json:"custom_records,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	LastAuditAt     *time.Time  `json:"last_audit_at,omitempty"`
	LastAuditStatus AuditStatus `json:"last_audit_status,omitempty"`
}

// HasService reports whether the domain has the given service assigned.
func (c DomainConfig) HasService(serviceID string) bool {
	for _, s := range c.Services {
		if s == serviceID {
			return true
		}
	}
	return false
}

// AuditOnly reports whether the domain may only ever be audited, never changed.
func (c DomainConfig) AuditOnly() bool {
	return c.Tier == TierDiscontinue
}

// ServiceDef is a reusable bundle of record templates (e.g. google-workspace).
// It seeds domain configuration and is never consulted during evaluation.
type ServiceDef struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	RecordTemplates []Record `json:"record_templates"`
}

// Snapshot is a write-once, point-in-time capture of a domain's live records.
type Snapshot struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Records     []Record  `json:"records"`
	RecordCount int       `json:"record_count"`
	TakenAt     time.Time `json:"taken_at"`
}
