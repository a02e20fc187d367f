package rdata

import "fmt"

// canonSingleName handles CNAME, DNAME, NS and PTR: a single absolute
// target name.
func canonSingleName(content string) (string, error) {
	sc := newScanner(content)
	tok, quoted, err := sc.next()
	if err != nil {
		return "", err
	}
	if quoted || !sc.done() {
		return "", fmt.Errorf("expected a single target hostname")
	}
	return parseName(tok)
}

// canonAFSDB handles the preference+exchange shape shared by MX, KX and
// AFSDB.
func canonAFSDB(content string) (string, error) {
	toks, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	if len(toks) != 2 {
		return "", fmt.Errorf("expected preference and target hostname")
	}
	pref, err := parseUint(toks[0], 65535, "preference")
	if err != nil {
		return "", err
	}
	name, err := parseName(toks[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s", pref, name), nil
}

func canonSRV(content string) (string, error) {
	toks, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	if len(toks) != 4 {
		return "", fmt.Errorf("expected priority, weight, port and target")
	}
	var nums [3]uint64
	for i, what := range []string{"priority", "weight", "port"} {
		n, err := parseUint(toks[i], 65535, what)
		if err != nil {
			return "", err
		}
		nums[i] = n
	}
	name, err := parseName(toks[3])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %d %s", nums[0], nums[1], nums[2], name), nil
}

func canonRP(content string) (string, error) {
	toks, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	if len(toks) != 2 {
		return "", fmt.Errorf("expected mailbox and txt hostnames")
	}
	mbox, err := parseName(toks[0])
	if err != nil {
		return "", err
	}
	txt, err := parseName(toks[1])
	if err != nil {
		return "", err
	}
	return mbox + " " + txt, nil
}

func canonNAPTR(content string) (string, error) {
	sc := newScanner(content)
	order, err := nextUint(sc, 65535, "order")
	if err != nil {
		return "", err
	}
	pref, err := nextUint(sc, 65535, "preference")
	if err != nil {
		return "", err
	}
	var strs [3]string
	for i, what := range []string{"flags", "service", "regexp"} {
		tok, _, err := sc.next()
		if err != nil {
			return "", fmt.Errorf("missing %s field", what)
		}
		strs[i] = tok
	}
	repl, quoted, err := sc.next()
	if err != nil {
		return "", fmt.Errorf("missing replacement field")
	}
	if quoted {
		return "", fmt.Errorf("replacement must not be quoted")
	}
	if !sc.done() {
		return "", fmt.Errorf("trailing data after replacement")
	}
	name, err := parseName(repl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %s %s %s %s",
		order, pref, quoteString(strs[0]), quoteString(strs[1]), quoteString(strs[2]), name), nil
}

func nextUint(sc *scanner, max uint64, what string) (uint64, error) {
	tok, quoted, err := sc.next()
	if err != nil || quoted {
		return 0, fmt.Errorf("missing %s field", what)
	}
	return parseUint(tok, max, what)
}

func nextName(sc *scanner) (string, error) {
	tok, quoted, err := sc.next()
	if err != nil || quoted {
		return "", fmt.Errorf("missing hostname field")
	}
	return parseName(tok)
}
