package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var validLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9_]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9_])?$`)

// ValidateDomainName checks that the provided domain is a plausible DNS name.
// Underscore labels are allowed since policy records target names like _dmarc.
func ValidateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("domain name cannot be empty")
	}
	trimmed := strings.TrimSuffix(name, ".")
	if len(trimmed) > 253 {
		return fmt.Errorf("domain name exceeds 253 characters")
	}
	for _, label := range strings.Split(trimmed, ".") {
		if label == "" {
			return fmt.Errorf("domain name contains empty label")
		}
		if len(label) > 63 {
			return fmt.Errorf("label '%s' exceeds 63 characters", label)
		}
		if !validLabelRegex.MatchString(label) {
			return fmt.Errorf("label '%s' contains invalid characters or format", label)
		}
	}
	return nil
}

// ValidateRecord checks the fields a corrective record must carry before it
// can be written to the provider.
func ValidateRecord(rec Record) error {
	if rec.Type == "" {
		return fmt.Errorf("record type is required")
	}
	if rec.Name == "" {
		return fmt.Errorf("record name is required")
	}
	if rec.Content == "" {
		return fmt.Errorf("record content is required")
	}
	if rec.TTL < 0 {
		return fmt.Errorf("record ttl cannot be negative")
	}
	if rec.Type == TypeMX && rec.Priority == nil {
		return fmt.Errorf("MX record requires a priority")
	}
	return nil
}
