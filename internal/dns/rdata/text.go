package rdata

import (
	"fmt"
	"strings"
)

// canonTXT handles TXT and SPF: one or more quoted character-strings.
// Strings may exceed 255 bytes in presentation form; they are fragmented
// into wire-sized chunks at serialization time, not here.
func canonTXT(content string) (string, error) {
	sc := newScanner(content)
	var out []string
	for !sc.done() {
		tok, quoted, err := sc.next()
		if err != nil {
			return "", err
		}
		if !quoted {
			return "", fmt.Errorf("unquoted token %q (strings must be enclosed in double quotes)", tok)
		}
		out = append(out, quoteString(tok))
	}
	if len(out) == 0 {
		return "", fmt.Errorf("expected at least one quoted string")
	}
	return strings.Join(out, " "), nil
}

// canonHINFO takes exactly two character-strings (cpu, os), quoted or not,
// and emits them quoted.
func canonHINFO(content string) (string, error) {
	sc := newScanner(content)
	var out []string
	for !sc.done() {
		tok, _, err := sc.next()
		if err != nil {
			return "", err
		}
		if len(tok) > 255 {
			return "", fmt.Errorf("character-string exceeds 255 bytes")
		}
		out = append(out, quoteString(tok))
	}
	if len(out) != 2 {
		return "", fmt.Errorf("expected exactly two fields (cpu, os)")
	}
	return strings.Join(out, " "), nil
}

func canonCAA(content string) (string, error) {
	sc := newScanner(content)
	flags, err := nextUint(sc, 255, "flags")
	if err != nil {
		return "", err
	}
	tag, quoted, err := sc.next()
	if err != nil || quoted {
		return "", fmt.Errorf("missing tag field")
	}
	tag = strings.ToLower(tag)
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return "", fmt.Errorf("invalid tag %q", tag)
		}
	}
	if tag == "" {
		return "", fmt.Errorf("empty tag")
	}
	value, _, err := sc.next()
	if err != nil {
		return "", fmt.Errorf("missing value field")
	}
	if !sc.done() {
		return "", fmt.Errorf("trailing data after value")
	}
	return fmt.Sprintf("%d %s %s", flags, tag, quoteString(value)), nil
}

func canonURI(content string) (string, error) {
	sc := newScanner(content)
	prio, err := nextUint(sc, 65535, "priority")
	if err != nil {
		return "", err
	}
	weight, err := nextUint(sc, 65535, "weight")
	if err != nil {
		return "", err
	}
	target, _, err := sc.next()
	if err != nil {
		return "", fmt.Errorf("missing target field")
	}
	if target == "" {
		return "", fmt.Errorf("empty target")
	}
	if !sc.done() {
		return "", fmt.Errorf("trailing data after target")
	}
	return fmt.Sprintf("%d %d %s", prio, weight, quoteString(target)), nil
}
