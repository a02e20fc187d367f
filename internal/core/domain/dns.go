// Package domain contains the core entities and invariants of zonecp.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaximumTTL caps every RRset TTL; the lower bound is per-domain.
const MaximumTTL = 86400

// RRsetTypes is the allow-list of types an API client may manage.
var RRsetTypes = map[string]bool{
	"A": true, "AAAA": true, "AFSDB": true, "APL": true, "CAA": true,
	"CDNSKEY": true, "CDS": true, "CERT": true, "CNAME": true, "DHCID": true,
	"DLV": true, "DNAME": true, "DNSKEY": true, "DS": true, "EUI48": true,
	"EUI64": true, "HINFO": true, "HTTPS": true, "KX": true, "LOC": true,
	"MX": true, "NAPTR": true, "NS": true, "OPENPGPKEY": true, "PTR": true,
	"RP": true, "SMIMEA": true, "SPF": true, "SRV": true, "SSHFP": true,
	"SVCB": true, "TLSA": true, "TXT": true, "URI": true,
}

// AutomaticTypes are maintained by the signer or the API itself and are
// rejected on write.
var AutomaticTypes = map[string]bool{
	"KEY": true, "NSEC": true, "NSEC3": true, "NSEC3PARAM": true,
	"OPT": true, "RRSIG": true, "SOA": true,
}

// Domain is an authoritative zone owned by one user. Name is stored
// lowercase without a trailing dot.
type Domain struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"-"`
	Name       string    `json:"name"`
	Created    time.Time `json:"created"`
	MinimumTTL uint32    `json:"minimum_ttl"`

	// Delegation check results; nil means "not determined".
	DelegationChecked *time.Time `json:"delegation_checked"`
	IsRegistered      *bool      `json:"is_registered"`
	HasAllNameservers *bool      `json:"has_all_nameservers"`
	IsDelegated       *bool      `json:"is_delegated"`
	IsSecured         *bool      `json:"is_secured"`

	Keys []ZoneKey `json:"keys,omitempty"`
}

// ParentName returns the name with the leftmost label removed, or "" for a
// single-label name.
func (d *Domain) ParentName() string {
	_, parent, _ := strings.Cut(d.Name, ".")
	return parent
}

// ZoneKey is one published DNSSEC key as reported by the name server.
type ZoneKey struct {
	DNSKey  string   `json:"dnskey"`
	DS      []string `json:"ds"`
	Flags   int      `json:"flags"`
	KeyType string   `json:"keytype"`
}

// RRset is the minimum unit of change: all records sharing
// (domain, subname, type), plus a common TTL.
type RRset struct {
	ID       uuid.UUID `json:"-"`
	DomainID uuid.UUID `json:"-"`
	Subname  string    `json:"subname"`
	Type     string    `json:"type"`
	TTL      uint32    `json:"ttl"`
	Touched  time.Time `json:"touched"`
	Records  []string  `json:"records"`
}

// Key returns the (subname, type) pair identifying this RRset inside its
// domain.
func (rs *RRset) Key() RRsetKey { return RRsetKey{Subname: rs.Subname, Type: rs.Type} }

// Name constructs the owner name for the RRset inside the given zone,
// with trailing dot.
func (rs *RRset) Name(domainName string) string {
	return ConstructName(rs.Subname, domainName)
}

// ConstructName joins subname and domain name into an absolute owner name.
func ConstructName(subname, domainName string) string {
	if subname == "" {
		return domainName + "."
	}
	return subname + "." + domainName + "."
}

// RRsetKey identifies an RRset within a domain.
type RRsetKey struct {
	Subname string `json:"subname"`
	Type    string `json:"type"`
}

// ZoneDiff is the per-zone change set computed inside the storage
// transaction and handed to the publisher after commit.
type ZoneDiff struct {
	DomainName string
	Created    []RRset
	Updated    []RRset
	Deleted    []RRsetKey
}

// Empty reports whether the diff carries no changes.
func (d *ZoneDiff) Empty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Deleted) == 0
}

// Changes flattens the diff into publishable RRsets, with deletions
// represented by empty record lists.
func (d *ZoneDiff) Changes() []RRset {
	out := make([]RRset, 0, len(d.Created)+len(d.Updated)+len(d.Deleted))
	out = append(out, d.Created...)
	out = append(out, d.Updated...)
	for _, key := range d.Deleted {
		out = append(out, RRset{Subname: key.Subname, Type: key.Type, Records: []string{}})
	}
	return out
}
