package rdata

import (
	"fmt"
	"net/netip"
	"strings"
)

func canonA(content string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(content))
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%q is not a valid IPv4 address", content)
	}
	return addr.String(), nil
}

func canonAAAA(content string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(content))
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return "", fmt.Errorf("%q is not a valid IPv6 address", content)
	}
	return addr.String(), nil
}

// canonAPL parses a list of address prefix items, each of the form
// [!]afi:address/prefix with AFI 1 (IPv4) or 2 (IPv6).
func canonAPL(content string) (string, error) {
	items, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", fmt.Errorf("APL record needs at least one prefix item")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		canon, err := canonAPLItem(item)
		if err != nil {
			return "", err
		}
		out = append(out, canon)
	}
	return strings.Join(out, " "), nil
}

func canonAPLItem(item string) (string, error) {
	neg := ""
	rest := item
	if strings.HasPrefix(rest, "!") {
		neg = "!"
		rest = rest[1:]
	}
	afi, addrPfx, ok := strings.Cut(rest, ":")
	if !ok {
		return "", fmt.Errorf("APL item %q lacks an address family", item)
	}
	pfx, err := netip.ParsePrefix(addrPfx)
	if err != nil {
		return "", fmt.Errorf("APL item %q has an invalid prefix", item)
	}
	switch afi {
	case "1":
		if !pfx.Addr().Is4() {
			return "", fmt.Errorf("APL item %q: family 1 requires an IPv4 prefix", item)
		}
	case "2":
		if !pfx.Addr().Is6() || pfx.Addr().Is4In6() {
			return "", fmt.Errorf("APL item %q: family 2 requires an IPv6 prefix", item)
		}
	case "0":
		return "", fmt.Errorf("APL item %q: address family 0 is not allowed", item)
	default:
		return "", fmt.Errorf("APL item %q has unknown address family %s", item, afi)
	}
	return fmt.Sprintf("%s%s:%s/%d", neg, afi, pfx.Addr().String(), pfx.Bits()), nil
}
