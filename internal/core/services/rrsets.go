package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/ports"
	"github.com/zonecp/zonecp/internal/dns/rdata"
)

// BulkMode selects the write semantics of a bulk RRset request.
type BulkMode int

const (
	// ModeReplace treats every descriptor as the new authoritative state
	// of its (subname, type); all fields are required.
	ModeReplace BulkMode = iota
	// ModeUpsert allows partial descriptors for existing RRsets; new ones
	// still need everything. Empty records delete.
	ModeUpsert
	// ModeCreate requires every descriptor to be new.
	ModeCreate
)

// RRsetInput is one descriptor of a bulk request. Nil pointers mark fields
// the caller omitted; Records is nil when omitted and non-nil (possibly
// empty) when given.
type RRsetInput struct {
	Subname *string  `json:"subname"`
	Type    *string  `json:"type"`
	TTL     *uint32  `json:"ttl"`
	Records []string `json:"records"`
}

// Conservative wire-size estimate guarding against unservable responses:
// header and question, per-record fixed cost, and room for OPT/TSIG.
const (
	wireHeaderCost = 32
	wirePerRecord  = 12
	wireReserve    = 256
	wireMax        = 65535
)

// RRsetService validates and persists bulk RRset changes and hands the
// committed diff to the publisher.
type RRsetService struct {
	repo      ports.Repository
	publisher ports.Publisher
	log       *slog.Logger
	now       func() time.Time
}

func NewRRsetService(repo ports.Repository, publisher ports.Publisher, log *slog.Logger) *RRsetService {
	return &RRsetService{repo: repo, publisher: publisher, log: log, now: time.Now}
}

func (s *RRsetService) Get(ctx context.Context, d *domain.Domain, subname, rrType string) (*domain.RRset, error) {
	return s.repo.GetRRset(ctx, d.ID, domain.NormalizeSubname(subname), rrType)
}

func (s *RRsetService) List(ctx context.Context, d *domain.Domain, filter ports.RRsetFilter) ([]domain.RRset, error) {
	return s.repo.ListRRsets(ctx, d.ID, filter)
}

// plan is one descriptor after normalization, joined with the existing row.
type plan struct {
	key      domain.RRsetKey
	ttl      uint32
	records  []string // canonical, deduplicated; nil when omitted (upsert)
	existing *domain.RRset
}

// Apply runs a bulk request against the domain. policies are the acting
// token's policy rows (empty slice means unrestricted). It returns the
// resulting state of all touched RRsets.
//
// Validation runs against the rows as seen under the domain row lock, so
// a concurrent batch cannot invalidate the diff between read and commit.
func (s *RRsetService) Apply(ctx context.Context, d *domain.Domain, policies []domain.TokenPolicy, mode BulkMode, inputs []RRsetInput) ([]domain.RRset, error) {
	var plans []*plan
	committed, err := s.repo.ApplyRRsetChanges(ctx, d.ID, func(existing []domain.RRset) (*domain.ZoneDiff, error) {
		var err error
		plans, err = s.planBatch(d, policies, mode, inputs, existing)
		if err != nil {
			return nil, err
		}
		return s.buildDiff(d, plans), nil
	})
	if err != nil {
		return nil, err
	}
	if !committed.Empty() {
		if err := s.publisher.PublishDiff(ctx, committed); err != nil {
			// The database is authoritative; the next write or catalog
			// alignment converges the name server.
			s.log.Error("publishing zone diff failed", "domain", d.Name, "error", err)
		}
	}
	return planResults(plans), nil
}

// planBatch normalizes and validates the whole batch against the existing
// rows.
func (s *RRsetService) planBatch(d *domain.Domain, policies []domain.TokenPolicy, mode BulkMode, inputs []RRsetInput, existing []domain.RRset) ([]*plan, error) {
	byKey := make(map[domain.RRsetKey]*domain.RRset, len(existing))
	for i := range existing {
		byKey[existing[i].Key()] = &existing[i]
	}

	itemErrs := make([]domain.FieldErrors, len(inputs))
	for i := range itemErrs {
		itemErrs[i] = domain.FieldErrors{}
	}
	plans := make([]*plan, len(inputs))
	seen := map[domain.RRsetKey]int{}
	failed := false

	for i, in := range inputs {
		p := s.normalize(d, mode, in, byKey, itemErrs[i])
		if p == nil {
			failed = true
			continue
		}
		if prev, dup := seen[p.key]; dup {
			itemErrs[i].Add("", fmt.Sprintf(
				"same subname and type as item %d, but must be unique", prev))
			failed = true
			continue
		}
		seen[p.key] = i
		if err := checkWrite(policies, d.Name, p.key.Subname, p.key.Type); err != nil {
			return nil, err
		}
		plans[i] = p
	}
	if !failed {
		s.checkExclusivity(d, plans, byKey, itemErrs)
		for i := range itemErrs {
			if !itemErrs[i].Empty() {
				failed = true
			}
		}
	}
	if failed {
		return nil, domain.BulkValidationError(itemErrs)
	}
	return plans, nil
}

// normalize validates a single descriptor and resolves it against the
// existing rows. Returns nil after recording field errors.
func (s *RRsetService) normalize(d *domain.Domain, mode BulkMode, in RRsetInput, byKey map[domain.RRsetKey]*domain.RRset, errs domain.FieldErrors) *plan {
	p := &plan{}

	subname := ""
	if in.Subname != nil {
		subname = domain.NormalizeSubname(*in.Subname)
	}
	if err := domain.ValidateSubname(subname); err != nil {
		errs.Add("subname", err.Error())
	}
	if in.Type == nil {
		errs.Add("type", "this field is required")
		return nil
	}
	rrType := domain.NormalizeRRsetType(*in.Type)
	if err := domain.ValidateRRsetType(rrType); err != nil {
		errs.Add("type", err.Error())
		return nil
	}
	p.key = domain.RRsetKey{Subname: subname, Type: rrType}
	p.existing = byKey[p.key]

	if mode == ModeCreate && p.existing != nil {
		errs.Add("", "this RRset already exists, use PUT or PATCH to modify it")
		return nil
	}
	newRow := p.existing == nil && len(in.Records) > 0

	isDelete := in.Records != nil && len(in.Records) == 0
	switch {
	case isDelete:
		// Deletion ignores the TTL.
	case in.TTL != nil:
		p.ttl = *in.TTL
		if p.ttl < d.MinimumTTL || p.ttl > domain.MaximumTTL {
			errs.Add("ttl", fmt.Sprintf("ensure this value is within %d and %d",
				d.MinimumTTL, domain.MaximumTTL))
		}
	case mode == ModeUpsert && p.existing != nil:
		p.ttl = p.existing.TTL
	default:
		errs.Add("ttl", "this field is required")
	}

	switch {
	case in.Records != nil:
		p.records = s.canonicalRecords(p.key, in.Records, errs)
	case mode == ModeUpsert && p.existing != nil:
		p.records = append([]string(nil), p.existing.Records...)
	default:
		errs.Add("records", "this field is required")
	}

	if !errs.Empty() {
		return nil
	}
	if newRow || (p.existing != nil && len(p.records) > 0) {
		s.checkShape(d, p, errs)
	}
	if !errs.Empty() {
		return nil
	}
	return p
}

// canonicalRecords canonicalizes, deduplicates and size-guards the record
// contents.
func (s *RRsetService) canonicalRecords(key domain.RRsetKey, records []string, errs domain.FieldErrors) []string {
	out := make([]string, 0, len(records))
	seen := map[string]bool{}
	for _, content := range records {
		if content == "" {
			errs.Add("records", "this field must not be blank")
			continue
		}
		canon, err := rdata.Canonicalize(key.Type, content)
		if err != nil {
			errs.Add("records", err.Error())
			continue
		}
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	sort.Strings(out)
	return out
}

// checkShape enforces per-type structural rules on a non-empty RRset.
func (s *RRsetService) checkShape(d *domain.Domain, p *plan, errs domain.FieldErrors) {
	apex := p.key.Subname == ""
	switch p.key.Type {
	case "CNAME", "DNAME":
		if apex {
			errs.Add("type", fmt.Sprintf("%s RRset cannot have empty subname", p.key.Type))
		}
		if len(p.records) > 1 {
			errs.Add("records", fmt.Sprintf("%s RRset cannot have multiple records", p.key.Type))
		}
	case "DS", "CDS", "DNSKEY":
		if apex {
			errs.Add("type", fmt.Sprintf(
				"%s RRset at the apex is managed automatically and cannot be modified", p.key.Type))
		}
	}
	size := wireHeaderCost + len(domain.ConstructName(p.key.Subname, d.Name)) + wireReserve
	for _, content := range p.records {
		size += wirePerRecord + len(content)
	}
	if size > wireMax {
		errs.Add("records", "total length of the RRset exceeds what can be served")
	}
}

// checkExclusivity validates the CNAME-excludes-everything rule on the
// post-batch state of every touched (subname).
func (s *RRsetService) checkExclusivity(d *domain.Domain, plans []*plan, byKey map[domain.RRsetKey]*domain.RRset, itemErrs []domain.FieldErrors) {
	// Final record counts per key: start from the DB, overlay the batch.
	final := map[domain.RRsetKey]int{}
	for key, rs := range byKey {
		final[key] = len(rs.Records)
	}
	for _, p := range plans {
		if p == nil {
			continue
		}
		final[p.key] = len(p.records)
	}
	for i, p := range plans {
		if p == nil || len(p.records) == 0 {
			continue
		}
		for key, n := range final {
			if n == 0 || key.Subname != p.key.Subname || key.Type == p.key.Type {
				continue
			}
			if p.key.Type == "CNAME" || key.Type == "CNAME" {
				itemErrs[i].Add("", fmt.Sprintf(
					"a CNAME RRset excludes any other RRset at the same subname (conflicts with %s)", key.Type))
				break
			}
		}
	}
}

// buildDiff converts plans into the change set, dropping no-ops.
func (s *RRsetService) buildDiff(d *domain.Domain, plans []*plan) *domain.ZoneDiff {
	diff := &domain.ZoneDiff{DomainName: d.Name}
	now := s.now()
	for _, p := range plans {
		switch {
		case p.existing == nil && len(p.records) == 0:
			// Deleting what does not exist is a no-op.
		case p.existing == nil:
			diff.Created = append(diff.Created, domain.RRset{
				ID: uuid.New(), DomainID: d.ID,
				Subname: p.key.Subname, Type: p.key.Type,
				TTL: p.ttl, Touched: now, Records: p.records,
			})
		case len(p.records) == 0:
			diff.Deleted = append(diff.Deleted, p.key)
		case p.ttl == p.existing.TTL && equalRecords(p.records, p.existing.Records):
			// Unchanged.
		default:
			updated := *p.existing
			updated.TTL = p.ttl
			updated.Touched = now
			updated.Records = p.records
			diff.Updated = append(diff.Updated, updated)
		}
	}
	return diff
}

func planResults(plans []*plan) []domain.RRset {
	var out []domain.RRset
	for _, p := range plans {
		if len(p.records) == 0 {
			continue
		}
		rs := domain.RRset{Subname: p.key.Subname, Type: p.key.Type, TTL: p.ttl, Records: p.records}
		if p.existing != nil {
			rs.ID = p.existing.ID
			rs.DomainID = p.existing.DomainID
		}
		out = append(out, rs)
	}
	return out
}

func equalRecords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	bs := append([]string(nil), b...)
	sort.Strings(bs)
	for i := range a {
		if a[i] != bs[i] {
			return false
		}
	}
	return true
}
