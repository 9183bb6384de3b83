// Package provider contains DNS provider adapters implementing ports.DNSProvider.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	cloudflare "github.com/cloudflare/cloudflare-go"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
)

// CloudflareProvider adapts the Cloudflare v4 API to ports.DNSProvider.
type CloudflareProvider struct {
	api    *cloudflare.API
	logger *slog.Logger
}

// NewCloudflareProvider builds a provider authenticated with an API token.
func NewCloudflareProvider(apiToken string, logger *slog.Logger) (*CloudflareProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := cloudflare.NewWithAPIToken(apiToken)
	if err != nil {
		return nil, fmt.Errorf("cloudflare client: %w", err)
	}
	return &CloudflareProvider{api: api, logger: logger}, nil
}

func (p *CloudflareProvider) Name() string { return "cloudflare" }

func (p *CloudflareProvider) ListZones(ctx context.Context) (map[string]string, error) {
	zones, err := p.api.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(zones))
	for _, z := range zones {
		out[strings.ToLower(z.Name)] = z.ID
	}
	return out, nil
}

func (p *CloudflareProvider) ListRecords(ctx context.Context, zoneID string) ([]domain.Record, error) {
	rc := cloudflare.ZoneIdentifier(zoneID)
	params := cloudflare.ListDNSRecordsParams{}

	var records []domain.Record
	for {
		page, info, err := p.api.ListDNSRecords(ctx, rc, params)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			records = append(records, fromDNSRecord(r))
		}
		if info == nil || info.Page >= info.TotalPages {
			break
		}
		params.Page = info.Page + 1
	}
	return records, nil
}

func (p *CloudflareProvider) CreateRecord(ctx context.Context, zoneID string, rec domain.Record) (string, error) {
	created, err := p.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.CreateDNSRecordParams{
		Type:     string(rec.Type),
		Name:     rec.Name,
		Content:  rec.Content,
		TTL:      cfTTL(rec.TTL),
		Priority: cfPriority(rec.Priority),
		Proxied:  rec.Proxied,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (p *CloudflareProvider) UpdateRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	_, err := p.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.UpdateDNSRecordParams{
		ID:       recordID,
		Type:     string(rec.Type),
		Name:     rec.Name,
		Content:  rec.Content,
		TTL:      cfTTL(rec.TTL),
		Priority: cfPriority(rec.Priority),
		Proxied:  rec.Proxied,
	})
	return err
}

func (p *CloudflareProvider) DeleteRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	return p.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), recordID)
}

func fromDNSRecord(r cloudflare.DNSRecord) domain.Record {
	rec := domain.Record{
		Type:       domain.RecordType(r.Type),
		Name:       r.Name,
		Content:    r.Content,
		TTL:        r.TTL,
		Proxied:    r.Proxied,
		ProviderID: r.ID,
	}
	if r.Priority != nil {
		prio := int(*r.Priority)
		rec.Priority = &prio
	}
	return rec
}

// cfTTL maps our TTL to Cloudflare's, where 1 means "automatic".
func cfTTL(ttl int) int {
	if ttl <= 0 {
		return 1
	}
	return ttl
}

func cfPriority(priority *int) *uint16 {
	if priority == nil {
		return nil
	}
	p := uint16(*priority) // #nosec G115 -- MX priorities fit in 16 bits
	return &p
}
