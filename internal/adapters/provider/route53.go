package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/poyrazK/dnsSentinel/internal/core/domain"
)

const defaultRoute53TTL = 300

// Route53Provider adapts AWS Route53 to ports.DNSProvider.
//
// Route53 groups values into record sets and has no per-record IDs, so each
// value is flattened into one Record with an empty ProviderID, and writes
// re-read the live set to merge or split values.
type Route53Provider struct {
	client *route53.Client
	logger *slog.Logger
}

// NewRoute53Provider builds a provider from static credentials, or from the
// ambient AWS credential chain when accessKeyID is empty.
func NewRoute53Provider(ctx context.Context, region, accessKeyID, secretAccessKey string, logger *slog.Logger) (*Route53Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Route53Provider{client: route53.NewFromConfig(awsCfg), logger: logger}, nil
}

func (p *Route53Provider) Name() string { return "route53" }

func (p *Route53Provider) ListZones(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	var marker *string
	for {
		result, err := p.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
		if err != nil {
			return nil, err
		}
		for _, z := range result.HostedZones {
			name := strings.ToLower(strings.TrimSuffix(aws.ToString(z.Name), "."))
			out[name] = extractZoneID(aws.ToString(z.Id))
		}
		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	return out, nil
}

func (p *Route53Provider) ListRecords(ctx context.Context, zoneID string) ([]domain.Record, error) {
	var records []domain.Record
	var nextName *string
	var nextType types.RRType

	for {
		input := &route53.ListResourceRecordSetsInput{
			HostedZoneId: aws.String(zoneID),
		}
		if nextName != nil {
			input.StartRecordName = nextName
			input.StartRecordType = nextType
		}

		result, err := p.client.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, err
		}

		for _, rrs := range result.ResourceRecordSets {
			if rrs.AliasTarget != nil {
				// Alias sets have no comparable content value.
				p.logger.Debug("skipping alias record set", "name", aws.ToString(rrs.Name), "type", rrs.Type)
				continue
			}
			name := strings.TrimSuffix(aws.ToString(rrs.Name), ".")
			ttl := int(aws.ToInt64(rrs.TTL))
			for _, rr := range rrs.ResourceRecords {
				records = append(records, fromResourceRecord(name, rrs.Type, ttl, aws.ToString(rr.Value)))
			}
		}

		if !result.IsTruncated {
			break
		}
		nextName = result.NextRecordName
		nextType = result.NextRecordType
	}
	return records, nil
}

func (p *Route53Provider) CreateRecord(ctx context.Context, zoneID string, rec domain.Record) (string, error) {
	existing, ttl, err := p.liveValues(ctx, zoneID, rec)
	if err != nil {
		return "", err
	}
	value := toResourceValue(rec)
	for _, v := range existing {
		if v == value {
			return "", nil // already present
		}
	}
	values := append(existing, value)
	if rec.TTL > 0 {
		ttl = rec.TTL
	}
	if err := p.upsert(ctx, zoneID, rec, values, ttl); err != nil {
		return "", err
	}
	return "", nil
}

func (p *Route53Provider) UpdateRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	// An update means "the set at (type, name) should hold this value".
	ttl := rec.TTL
	if ttl <= 0 {
		ttl = defaultRoute53TTL
	}
	return p.upsert(ctx, zoneID, rec, []string{toResourceValue(rec)}, ttl)
}

func (p *Route53Provider) DeleteRecord(ctx context.Context, zoneID string, recordID string, rec domain.Record) error {
	existing, ttl, err := p.liveValues(ctx, zoneID, rec)
	if err != nil {
		return err
	}
	value := toResourceValue(rec)
	var remaining []string
	for _, v := range existing {
		if v != value {
			remaining = append(remaining, v)
		}
	}
	if len(remaining) == len(existing) {
		return fmt.Errorf("record %s %s value not found in zone %s", rec.Type, rec.Name, zoneID)
	}
	if len(remaining) > 0 {
		return p.upsert(ctx, zoneID, rec, remaining, ttl)
	}
	return p.change(ctx, zoneID, types.ChangeActionDelete, rec, existing, ttl)
}

// liveValues reads the current record set for the record's (name, type).
func (p *Route53Provider) liveValues(ctx context.Context, zoneID string, rec domain.Record) ([]string, int, error) {
	fqdn := rec.Name
	if !strings.HasSuffix(fqdn, ".") {
		fqdn += "."
	}
	result, err := p.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: types.RRType(rec.Type),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, 0, err
	}
	for _, rrs := range result.ResourceRecordSets {
		if !strings.EqualFold(aws.ToString(rrs.Name), fqdn) || rrs.Type != types.RRType(rec.Type) {
			continue
		}
		var values []string
		for _, rr := range rrs.ResourceRecords {
			values = append(values, aws.ToString(rr.Value))
		}
		return values, int(aws.ToInt64(rrs.TTL)), nil
	}
	return nil, defaultRoute53TTL, nil
}

func (p *Route53Provider) upsert(ctx context.Context, zoneID string, rec domain.Record, values []string, ttl int) error {
	return p.change(ctx, zoneID, types.ChangeActionUpsert, rec, values, ttl)
}

func (p *Route53Provider) change(ctx context.Context, zoneID string, action types.ChangeAction, rec domain.Record, values []string, ttl int) error {
	if ttl <= 0 {
		ttl = defaultRoute53TTL
	}
	resourceRecords := make([]types.ResourceRecord, 0, len(values))
	for _, v := range values {
		resourceRecords = append(resourceRecords, types.ResourceRecord{Value: aws.String(v)})
	}
	_, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Changed via dnsSentinel"),
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(rec.Name),
						Type:            types.RRType(rec.Type),
						TTL:             aws.Int64(int64(ttl)),
						ResourceRecords: resourceRecords,
					},
				},
			},
		},
	})
	return err
}

// fromResourceRecord converts one Route53 value into a Record, splitting the
// leading priority token out of MX values.
func fromResourceRecord(name string, rrType types.RRType, ttl int, value string) domain.Record {
	rec := domain.Record{
		Type:    domain.RecordType(rrType),
		Name:    name,
		Content: value,
		TTL:     ttl,
	}
	if rec.Type == domain.TypeMX {
		if prio, host, found := strings.Cut(value, " "); found {
			if n, err := strconv.Atoi(prio); err == nil {
				rec.Priority = &n
				rec.Content = host
			}
		}
	}
	return rec
}

// toResourceValue renders the record's content as a Route53 value.
func toResourceValue(rec domain.Record) string {
	if rec.Type == domain.TypeMX && rec.Priority != nil {
		return fmt.Sprintf("%d %s", *rec.Priority, rec.Content)
	}
	if rec.Type == domain.TypeTXT && !strings.HasPrefix(rec.Content, `"`) {
		return strconv.Quote(rec.Content)
	}
	return rec.Content
}

func extractZoneID(fullID string) string {
	parts := strings.Split(fullID, "/")
	return parts[len(parts)-1]
}
