// Package rdata validates and canonicalizes record content in presentation
// format. Each supported RR type registers a validator that accepts the
// grammar for that type and returns the canonical text form, so that
// equivalent inputs (case, whitespace, compression) map to identical strings.
package rdata

import (
	"fmt"
	"sort"
)

// Validator canonicalizes one record's content, returning an error when the
// content does not match the type's grammar.
type Validator func(content string) (string, error)

var validators = map[string]Validator{
	"A":          canonA,
	"AAAA":       canonAAAA,
	"AFSDB":      canonAFSDB,
	"APL":        canonAPL,
	"CAA":        canonCAA,
	"CDNSKEY":    canonDNSKEY,
	"CDS":        canonDS,
	"CERT":       canonCERT,
	"CNAME":      canonSingleName,
	"DHCID":      canonDHCID,
	"DLV":        canonDS,
	"DNAME":      canonSingleName,
	"DNSKEY":     canonDNSKEY,
	"DS":         canonDS,
	"EUI48":      canonEUI48,
	"EUI64":      canonEUI64,
	"HINFO":      canonHINFO,
	"HTTPS":      canonSVCB,
	"KX":         canonAFSDB,
	"LOC":        canonLOC,
	"MX":         canonAFSDB,
	"NAPTR":      canonNAPTR,
	"NS":         canonSingleName,
	"OPENPGPKEY": canonOPENPGPKEY,
	"PTR":        canonSingleName,
	"RP":         canonRP,
	"SMIMEA":     canonTLSA,
	"SPF":        canonTXT,
	"SRV":        canonSRV,
	"SSHFP":      canonSSHFP,
	"SVCB":       canonSVCB,
	"TLSA":       canonTLSA,
	"TXT":        canonTXT,
	"URI":        canonURI,
}

// Supported reports whether a validator exists for the given type.
func Supported(rrType string) bool {
	_, ok := validators[rrType]
	return ok
}

// Types returns the sorted list of supported types.
func Types() []string {
	out := make([]string, 0, len(validators))
	for t := range validators {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Canonicalize validates content against the given type's grammar and
// returns the canonical presentation form.
func Canonicalize(rrType, content string) (string, error) {
	v, ok := validators[rrType]
	if !ok {
		return "", fmt.Errorf("unsupported record type %s", rrType)
	}
	out, err := v(content)
	if err != nil {
		return "", fmt.Errorf("record content malformed: %w", err)
	}
	return out, nil
}
