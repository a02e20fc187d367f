package rdata

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// scanner splits record content into presentation-format tokens. A token is
// either a quoted character-string (escapes decoded) or a contiguous run of
// non-space characters.
type scanner struct {
	s   string
	pos int
}

func newScanner(s string) *scanner { return &scanner{s: s} }

func (sc *scanner) skipSpace() {
	for sc.pos < len(sc.s) && (sc.s[sc.pos] == ' ' || sc.s[sc.pos] == '\t') {
		sc.pos++
	}
}

func (sc *scanner) done() bool {
	sc.skipSpace()
	return sc.pos >= len(sc.s)
}

// next returns the next token with quoting information. Quoted tokens have
// their \" \\ and \DDD escapes decoded.
func (sc *scanner) next() (tok string, quoted bool, err error) {
	sc.skipSpace()
	if sc.pos >= len(sc.s) {
		return "", false, fmt.Errorf("unexpected end of record content")
	}
	if sc.s[sc.pos] == '"' {
		sc.pos++
		var b strings.Builder
		for {
			if sc.pos >= len(sc.s) {
				return "", false, fmt.Errorf("unterminated quoted string")
			}
			c := sc.s[sc.pos]
			switch c {
			case '"':
				sc.pos++
				return b.String(), true, nil
			case '\\':
				sc.pos++
				if sc.pos >= len(sc.s) {
					return "", false, fmt.Errorf("dangling backslash")
				}
				if isDigit(sc.s[sc.pos]) {
					if sc.pos+3 > len(sc.s) || !isDigit(sc.s[sc.pos+1]) || !isDigit(sc.s[sc.pos+2]) {
						return "", false, fmt.Errorf("bad decimal escape")
					}
					n, _ := strconv.Atoi(sc.s[sc.pos : sc.pos+3])
					if n > 255 {
						return "", false, fmt.Errorf("decimal escape out of range")
					}
					b.WriteByte(byte(n))
					sc.pos += 3
				} else {
					b.WriteByte(sc.s[sc.pos])
					sc.pos++
				}
			default:
				b.WriteByte(c)
				sc.pos++
			}
		}
	}
	// Unquoted token. An embedded quoted section, as in key="value", is
	// decoded in place but the token stays unquoted.
	var b strings.Builder
	for sc.pos < len(sc.s) && sc.s[sc.pos] != ' ' && sc.s[sc.pos] != '\t' {
		if sc.s[sc.pos] == '"' {
			sc.pos++
			for {
				if sc.pos >= len(sc.s) {
					return "", false, fmt.Errorf("unterminated quoted string")
				}
				if sc.s[sc.pos] == '"' {
					sc.pos++
					break
				}
				if sc.s[sc.pos] == '\\' && sc.pos+1 < len(sc.s) {
					sc.pos++
				}
				b.WriteByte(sc.s[sc.pos])
				sc.pos++
			}
			continue
		}
		b.WriteByte(sc.s[sc.pos])
		sc.pos++
	}
	return b.String(), false, nil
}

// remainder returns all remaining tokens, erroring on quoted ones.
func (sc *scanner) remainder() ([]string, error) {
	var out []string
	for !sc.done() {
		tok, quoted, err := sc.next()
		if err != nil {
			return nil, err
		}
		if quoted {
			return nil, fmt.Errorf("unexpected quoted string")
		}
		out = append(out, tok)
	}
	return out, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// quoteString renders bytes as a canonical quoted character-string:
// printable ASCII stays literal, quote and backslash are escaped, the rest
// becomes \DDD.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&b, "\\%03d", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// parseUint parses a decimal integer within [0, max].
func parseUint(tok string, max uint64, what string) (uint64, error) {
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil || n > max {
		return 0, fmt.Errorf("invalid %s %q (must be 0-%d)", what, tok, max)
	}
	return n, nil
}

// parseName validates an absolute domain name and returns it lowercased.
// "." (the root) is accepted.
func parseName(tok string) (string, error) {
	if tok == "." {
		return ".", nil
	}
	if !strings.HasSuffix(tok, ".") {
		return "", fmt.Errorf("hostname %q must be fully qualified (end in a dot)", tok)
	}
	name := strings.ToLower(tok)
	if len(name) > 255 {
		return "", fmt.Errorf("hostname must be no longer than 255 characters")
	}
	for _, label := range strings.Split(strings.TrimSuffix(name, "."), ".") {
		if label == "" || len(label) > 63 {
			return "", fmt.Errorf("invalid label length in hostname %q", tok)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '*' || c == '/') {
				return "", fmt.Errorf("invalid character %q in hostname", string(c))
			}
		}
	}
	return name, nil
}

// hexJoined decodes the concatenation of the given tokens as hex and
// re-encodes in canonical lowercase.
func hexJoined(toks []string, what string) (string, error) {
	joined := strings.Join(toks, "")
	raw, err := hex.DecodeString(strings.ToLower(joined))
	if err != nil {
		return "", fmt.Errorf("cannot parse hexadecimal %s", what)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty %s", what)
	}
	return hex.EncodeToString(raw), nil
}

// base64Joined decodes the concatenation of the given tokens as base64 and
// re-encodes canonically.
func base64Joined(toks []string, what string) (string, error) {
	joined := strings.Join(toks, "")
	raw, err := base64.StdEncoding.DecodeString(joined)
	if err != nil {
		return "", fmt.Errorf("cannot parse base64 %s", what)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty %s", what)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
