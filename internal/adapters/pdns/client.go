// Package pdns speaks the PowerDNS-style HTTP API of the authoritative name
// servers.
package pdns

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// maxPayload caps request and response bodies at 16 MiB.
const maxPayload = 16 * 1024 * 1024

// Client talks to one name server instance.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

func NewClient(base, apiKey string) *Client {
	return &Client{
		base:   strings.TrimSuffix(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ZoneID encodes a zone name for use in URL paths: slashes and underscores
// are escaped and the trailing dot is ensured.
func ZoneID(name string) string {
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	name = strings.ReplaceAll(name, "/", "=2F")
	return strings.ReplaceAll(name, "_", "=5F")
}

type rrsetPayload struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	TTL        uint32          `json:"ttl"`
	ChangeType string          `json:"changetype"`
	Records    []recordPayload `json:"records"`
}

type recordPayload struct {
	Content  string `json:"content"`
	Disabled bool   `json:"disabled"`
}

type zonePayload struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	DNSSEC      bool           `json:"dnssec,omitempty"`
	NSEC3Param  string         `json:"nsec3param,omitempty"`
	NSEC3Narrow bool           `json:"nsec3narrow"`
	Serial      uint32         `json:"serial,omitempty"`
	RRsets      []rrsetPayload `json:"rrsets,omitempty"`
}

// CreateZone creates a MASTER zone with DNSSEC and a fresh NSEC3 salt,
// seeded with the given RRsets.
func (c *Client) CreateZone(ctx context.Context, name string, rrsets []domain.RRset) error {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return domain.Wrap(domain.KindInternal, "could not generate nsec3 salt", err)
	}
	payload := zonePayload{
		Name:       dotted(name),
		Kind:       "MASTER",
		DNSSEC:     true,
		NSEC3Param: "1 0 0 " + hex.EncodeToString(salt),
		RRsets:     marshalRRsets(name, rrsets, "REPLACE"),
	}
	return c.do(ctx, http.MethodPost, "/zones", payload, nil, nil)
}

// CreateCatalogZone creates an unsigned MASTER zone. Catalog zones carry
// membership metadata only and must not be signed. A non-zero serial pins
// the new zone's SOA serial so consumers see monotonic progress.
func (c *Client) CreateCatalogZone(ctx context.Context, name string, serial uint32, rrsets []domain.RRset) error {
	payload := zonePayload{
		Name:   dotted(name),
		Kind:   "MASTER",
		Serial: serial,
		RRsets: marshalRRsets(name, rrsets, "REPLACE"),
	}
	return c.do(ctx, http.MethodPost, "/zones", payload, nil, nil)
}

// GetZoneSerial returns the zone's SOA serial; found is false when the
// server does not know the zone.
func (c *Client) GetZoneSerial(ctx context.Context, zone string) (serial uint32, found bool, err error) {
	var z struct {
		Serial uint32 `json:"serial"`
	}
	status, err := c.doStatus(ctx, http.MethodGet, "/zones/"+ZoneID(zone), nil, &z, []int{http.StatusNotFound})
	if err != nil {
		return 0, false, err
	}
	if status == http.StatusNotFound {
		return 0, false, nil
	}
	return z.Serial, true, nil
}

// CreateSlaveZone registers a SLAVE zone pulling from the given primaries.
func (c *Client) CreateSlaveZone(ctx context.Context, name string, primaries []string) error {
	payload := struct {
		Name    string   `json:"name"`
		Kind    string   `json:"kind"`
		Masters []string `json:"masters"`
	}{dotted(name), "SLAVE", primaries}
	return c.do(ctx, http.MethodPost, "/zones", payload, nil, nil)
}

// DeleteZone removes the zone; a missing zone is success.
func (c *Client) DeleteZone(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/zones/"+ZoneID(name), nil, nil, []int{http.StatusNotFound})
}

// ApplyChanges PATCHes the zone with one REPLACE per RRset; empty records
// delete.
func (c *Client) ApplyChanges(ctx context.Context, zone string, rrsets []domain.RRset) error {
	payload := struct {
		RRsets []rrsetPayload `json:"rrsets"`
	}{marshalRRsets(zone, rrsets, "REPLACE")}
	return c.do(ctx, http.MethodPatch, "/zones/"+ZoneID(zone), payload, nil, nil)
}

// Notify asks the server to notify its secondaries.
func (c *Client) Notify(ctx context.Context, zone string) error {
	return c.do(ctx, http.MethodPut, "/zones/"+ZoneID(zone)+"/notify", nil, nil, nil)
}

// ListZones returns the zone names known to the server, with trailing dots.
func (c *Client) ListZones(ctx context.Context) ([]string, error) {
	var zones []struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "/zones", nil, &zones, nil); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(zones))
	for _, z := range zones {
		out = append(out, z.Name)
	}
	return out, nil
}

type cryptokey struct {
	DNSKey    string   `json:"dnskey"`
	DS        []string `json:"ds"`
	Flags     int      `json:"flags"`
	KeyType   string   `json:"keytype"`
	Published bool     `json:"published"`
	Active    bool     `json:"active"`
}

// GetKeys fetches the zone's signing keys, filtered to published csk/ksk,
// with DS digests restricted to types 2 and 4.
func (c *Client) GetKeys(ctx context.Context, zone string) ([]domain.ZoneKey, error) {
	var keys []cryptokey
	if err := c.do(ctx, http.MethodGet, "/zones/"+ZoneID(zone)+"/cryptokeys", nil, &keys, nil); err != nil {
		return nil, err
	}
	var out []domain.ZoneKey
	for _, k := range keys {
		if !k.Published {
			continue
		}
		if k.KeyType != "csk" && k.KeyType != "ksk" {
			continue
		}
		out = append(out, domain.ZoneKey{
			DNSKey:  k.DNSKey,
			DS:      filterDS(k.DS),
			Flags:   k.Flags,
			KeyType: k.KeyType,
		})
	}
	return out, nil
}

// filterDS keeps SHA-256 and SHA-384 digests only.
func filterDS(ds []string) []string {
	out := make([]string, 0, len(ds))
	for _, record := range ds {
		fields := strings.Fields(record)
		if len(fields) >= 3 && (fields[2] == "2" || fields[2] == "4") {
			out = append(out, record)
		}
	}
	return out
}

func marshalRRsets(zone string, rrsets []domain.RRset, changeType string) []rrsetPayload {
	out := make([]rrsetPayload, 0, len(rrsets))
	for _, rs := range rrsets {
		p := rrsetPayload{
			Name:       domain.ConstructName(rs.Subname, strings.TrimSuffix(zone, ".")),
			Type:       rs.Type,
			TTL:        rs.TTL,
			ChangeType: changeType,
			Records:    make([]recordPayload, 0, len(rs.Records)),
		}
		for _, content := range rs.Records {
			p.Records = append(p.Records, recordPayload{Content: content})
		}
		out = append(out, p)
	}
	return out
}

func dotted(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

func (c *Client) do(ctx context.Context, method, path string, body, into any, tolerate []int) error {
	_, err := c.doStatus(ctx, method, path, body, into, tolerate)
	return err
}

// doStatus issues one request and returns the response status. Non-2xx
// statuses outside tolerate become upstream_dns_error with method, status
// and body attached.
func (c *Client) doStatus(ctx context.Context, method, path string, body, into any, tolerate []int) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, domain.Wrap(domain.KindInternal, "could not encode request", err)
		}
		if len(raw) > maxPayload {
			return 0, domain.Ef(domain.KindPayloadTooLarge,
				"request payload exceeds %d bytes", maxPayload)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "could not build request", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, domain.Wrap(domain.KindUpstreamDNS, "name server unreachable", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return resp.StatusCode, domain.Wrap(domain.KindUpstreamDNS, "could not read name server response", err)
	}
	for _, code := range tolerate {
		if resp.StatusCode == code {
			return resp.StatusCode, nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, domain.Ef(domain.KindUpstreamDNS,
			"name server returned an error: %s %s: %d %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if into != nil {
		if err := json.Unmarshal(raw, into); err != nil {
			return resp.StatusCode, domain.Wrap(domain.KindUpstreamDNS, "could not decode name server response", err)
		}
	}
	return resp.StatusCode, nil
}
