package pdns

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"sort"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// CatalogAligner rebuilds the RFC 9432 catalog zone on the secondary from
// the primary's member list.
type CatalogAligner struct {
	primary   *Client
	secondary *Client
	zone      string
	log       *slog.Logger
}

func NewCatalogAligner(primary, secondary *Client, catalogZone string, log *slog.Logger) *CatalogAligner {
	return &CatalogAligner{primary: primary, secondary: secondary, zone: catalogZone, log: log}
}

// CatalogRRsets builds the member RRsets of a catalog zone: NS invalid. at
// the apex, the schema version TXT, and one PTR per member keyed by the
// member's name hash.
func CatalogRRsets(members []string) []domain.RRset {
	out := []domain.RRset{
		{Subname: "", Type: "NS", TTL: 0, Records: []string{"invalid."}},
		{Subname: "version", Type: "TXT", TTL: 0, Records: []string{`"2"`}},
	}
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	for _, member := range sorted {
		member = dotted(member)
		sum := sha1.Sum([]byte(member))
		out = append(out, domain.RRset{
			Subname: hex.EncodeToString(sum[:]) + ".zones",
			Type:    "PTR",
			TTL:     0,
			Records: []string{member},
		})
	}
	return out
}

// Align lists the primary's zones and re-posts the full catalog to the
// secondary, excluding the catalog zone itself.
func (a *CatalogAligner) Align(ctx context.Context) error {
	zones, err := a.primary.ListZones(ctx)
	if err != nil {
		return err
	}
	catalog := dotted(a.zone)
	members := zones[:0]
	for _, z := range zones {
		if z != catalog {
			members = append(members, z)
		}
	}
	rrsets := CatalogRRsets(members)

	// Recreate rather than diff, carrying the serial forward so consumers
	// comparing serials still see progress.
	serial, found, err := a.secondary.GetZoneSerial(ctx, catalog)
	if err != nil {
		return err
	}
	var next uint32
	if found {
		next = serial + 1
	}
	if err := a.secondary.DeleteZone(ctx, catalog); err != nil {
		return err
	}
	if err := a.secondary.CreateCatalogZone(ctx, catalog, next, rrsets); err != nil {
		return err
	}
	a.log.Info("catalog zone aligned", "zone", catalog, "members", len(members))
	return nil
}
