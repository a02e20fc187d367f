package rdata

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// Service parameter key numbers from RFC 9460.
var svcbKeyNumbers = map[string]int{
	"mandatory":       0,
	"alpn":            1,
	"no-default-alpn": 2,
	"port":            3,
	"ipv4hint":        4,
	"ech":             5,
	"ipv6hint":        6,
	"dohpath":         7,
}

var svcbKeyNames = map[int]string{
	0: "mandatory", 1: "alpn", 2: "no-default-alpn", 3: "port",
	4: "ipv4hint", 5: "ech", 6: "ipv6hint", 7: "dohpath",
}

type svcbParam struct {
	key   int
	value string
	has   bool
}

// canonSVCB handles SVCB and HTTPS: priority target [param...]. Alias mode
// (priority 0) takes no parameters; service mode enforces key uniqueness and
// consistency of the mandatory list.
func canonSVCB(content string) (string, error) {
	sc := newScanner(content)
	prio, err := nextUint(sc, 65535, "priority")
	if err != nil {
		return "", err
	}
	target, err := nextName(sc)
	if err != nil {
		return "", err
	}
	var params []svcbParam
	seen := map[int]bool{}
	for !sc.done() {
		tok, quoted, err := sc.next()
		if err != nil {
			return "", err
		}
		if quoted {
			return "", fmt.Errorf("parameter key must not be quoted")
		}
		name, value, hasValue := strings.Cut(tok, "=")
		p, err := parseSVCBParam(name, value, hasValue)
		if err != nil {
			return "", err
		}
		if seen[p.key] {
			return "", fmt.Errorf("duplicate parameter key %s", svcbKeyName(p.key))
		}
		seen[p.key] = true
		params = append(params, p)
	}
	if prio == 0 && len(params) > 0 {
		return "", fmt.Errorf("alias mode (priority 0) does not take parameters")
	}
	if err := checkMandatory(params, seen); err != nil {
		return "", err
	}
	sort.Slice(params, func(i, j int) bool { return params[i].key < params[j].key })
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", prio, target)
	for _, p := range params {
		b.WriteByte(' ')
		b.WriteString(svcbKeyName(p.key))
		if p.has {
			b.WriteByte('=')
			b.WriteString(p.value)
		}
	}
	return b.String(), nil
}

func svcbKeyName(key int) string {
	if name, ok := svcbKeyNames[key]; ok {
		return name
	}
	return fmt.Sprintf("key%d", key)
}

func parseSVCBParam(name, value string, hasValue bool) (svcbParam, error) {
	key, known := svcbKeyNumbers[name]
	if !known {
		if !strings.HasPrefix(name, "key") {
			return svcbParam{}, fmt.Errorf("unknown parameter %q", name)
		}
		n, err := strconv.Atoi(name[3:])
		if err != nil || n < 0 || n > 65535 {
			return svcbParam{}, fmt.Errorf("invalid parameter key %q", name)
		}
		key = n
	}
	switch key {
	case 0: // mandatory
		if !hasValue || value == "" {
			return svcbParam{}, fmt.Errorf("mandatory parameter requires a value")
		}
		return svcbParam{key: 0, value: value, has: true}, nil
	case 1: // alpn
		if !hasValue || value == "" {
			return svcbParam{}, fmt.Errorf("alpn parameter requires a value")
		}
		for _, id := range strings.Split(value, ",") {
			if id == "" {
				return svcbParam{}, fmt.Errorf("empty alpn protocol id")
			}
		}
		return svcbParam{key: 1, value: value, has: true}, nil
	case 2: // no-default-alpn
		if hasValue {
			return svcbParam{}, fmt.Errorf("no-default-alpn does not take a value")
		}
		return svcbParam{key: 2}, nil
	case 3: // port
		if !hasValue {
			return svcbParam{}, fmt.Errorf("port parameter requires a value")
		}
		n, err := parseUint(value, 65535, "port")
		if err != nil {
			return svcbParam{}, err
		}
		return svcbParam{key: 3, value: strconv.FormatUint(n, 10), has: true}, nil
	case 4, 6: // ipv4hint, ipv6hint
		if !hasValue || value == "" {
			return svcbParam{}, fmt.Errorf("%s parameter requires a value", svcbKeyName(key))
		}
		parts := strings.Split(value, ",")
		canon := make([]string, 0, len(parts))
		for _, part := range parts {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return svcbParam{}, fmt.Errorf("invalid address %q in %s", part, svcbKeyName(key))
			}
			if key == 4 && !addr.Is4() {
				return svcbParam{}, fmt.Errorf("ipv4hint requires IPv4 addresses")
			}
			if key == 6 && (!addr.Is6() || addr.Is4In6()) {
				return svcbParam{}, fmt.Errorf("ipv6hint requires IPv6 addresses")
			}
			canon = append(canon, addr.String())
		}
		return svcbParam{key: key, value: strings.Join(canon, ","), has: true}, nil
	case 5: // ech
		if !hasValue || value == "" {
			return svcbParam{}, fmt.Errorf("ech parameter requires a value")
		}
		b64, err := base64Joined([]string{value}, "ech config")
		if err != nil {
			return svcbParam{}, err
		}
		return svcbParam{key: 5, value: b64, has: true}, nil
	default:
		return svcbParam{key: key, value: value, has: hasValue}, nil
	}
}

// checkMandatory enforces RFC 9460 section 8: listed keys must be present,
// unique, and must not include mandatory itself.
func checkMandatory(params []svcbParam, present map[int]bool) error {
	for _, p := range params {
		if p.key != 0 {
			continue
		}
		listed := map[int]bool{}
		for _, name := range strings.Split(p.value, ",") {
			key, known := svcbKeyNumbers[name]
			if !known {
				n, err := strconv.Atoi(strings.TrimPrefix(name, "key"))
				if !strings.HasPrefix(name, "key") || err != nil {
					return fmt.Errorf("unknown key %q in mandatory list", name)
				}
				key = n
			}
			if key == 0 {
				return fmt.Errorf("mandatory list must not include mandatory itself")
			}
			if listed[key] {
				return fmt.Errorf("duplicate key %q in mandatory list", name)
			}
			listed[key] = true
			if !present[key] {
				return fmt.Errorf("mandatory key %q is not present in the record", name)
			}
		}
	}
	return nil
}
