package rdata

import (
	"fmt"
	"strconv"
	"strings"
)

func canonEUI(content string, groups int) (string, error) {
	tok := strings.ToLower(strings.TrimSpace(content))
	parts := strings.Split(tok, "-")
	if len(parts) != groups {
		return "", fmt.Errorf("expected %d hyphen-separated octets", groups)
	}
	for _, p := range parts {
		if len(p) != 2 || !isHexByte(p) {
			return "", fmt.Errorf("invalid octet %q", p)
		}
	}
	return tok, nil
}

func isHexByte(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func canonEUI48(content string) (string, error) { return canonEUI(content, 6) }
func canonEUI64(content string) (string, error) { return canonEUI(content, 8) }

// canonLOC parses the RFC 1876 presentation form:
// d1 [m1 [s1]] {N|S} d2 [m2 [s2]] {E|W} alt[m] [siz[m] [hp[m] [vp[m]]]]
func canonLOC(content string) (string, error) {
	toks, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	pos := 0
	latDeg, latMin, latSec, latHemi, err := locAngle(toks, &pos, 90, "NS")
	if err != nil {
		return "", fmt.Errorf("latitude: %w", err)
	}
	lonDeg, lonMin, lonSec, lonHemi, err := locAngle(toks, &pos, 180, "EW")
	if err != nil {
		return "", fmt.Errorf("longitude: %w", err)
	}
	if pos >= len(toks) {
		return "", fmt.Errorf("missing altitude")
	}
	alt, err := locMeters(toks[pos], -100000, 42849672.95)
	if err != nil {
		return "", fmt.Errorf("altitude: %w", err)
	}
	pos++
	sizes := [3]float64{1, 10000, 10} // size, horizontal, vertical precision
	for i := 0; i < 3 && pos < len(toks); i++ {
		v, err := locMeters(toks[pos], 0, 90000000)
		if err != nil {
			return "", fmt.Errorf("precision: %w", err)
		}
		sizes[i] = v
		pos++
	}
	if pos != len(toks) {
		return "", fmt.Errorf("trailing data")
	}
	return fmt.Sprintf("%d %d %.3f %s %d %d %.3f %s %.2fm %.2fm %.2fm %.2fm",
		latDeg, latMin, latSec, latHemi, lonDeg, lonMin, lonSec, lonHemi,
		alt, sizes[0], sizes[1], sizes[2]), nil
}

func locAngle(toks []string, pos *int, maxDeg uint64, hemis string) (deg, min uint64, sec float64, hemi string, err error) {
	if *pos >= len(toks) {
		return 0, 0, 0, "", fmt.Errorf("missing degrees")
	}
	deg, err = parseUint(toks[*pos], maxDeg, "degrees")
	if err != nil {
		return
	}
	*pos++
	for _, parse := range []func(string) error{
		func(t string) error { min, err = parseUint(t, 59, "minutes"); return err },
		func(t string) error {
			sec, err = strconv.ParseFloat(t, 64)
			if err != nil || sec < 0 || sec >= 60 {
				return fmt.Errorf("invalid seconds %q", t)
			}
			return nil
		},
	} {
		if *pos >= len(toks) {
			return 0, 0, 0, "", fmt.Errorf("missing hemisphere")
		}
		t := strings.ToUpper(toks[*pos])
		if len(t) == 1 && strings.Contains(hemis, t) {
			*pos++
			return deg, min, sec, t, nil
		}
		if err = parse(toks[*pos]); err != nil {
			return 0, 0, 0, "", err
		}
		*pos++
	}
	if *pos >= len(toks) {
		return 0, 0, 0, "", fmt.Errorf("missing hemisphere")
	}
	t := strings.ToUpper(toks[*pos])
	if len(t) != 1 || !strings.Contains(hemis, t) {
		return 0, 0, 0, "", fmt.Errorf("invalid hemisphere %q", toks[*pos])
	}
	*pos++
	return deg, min, sec, t, nil
}

func locMeters(tok string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(tok, "m"), 64)
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("value %q out of range", tok)
	}
	return v, nil
}
