package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	domainLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	subnameRegex     = regexp.MustCompile(`^([*]|([*][.])?([a-z0-9_-]{1,63}[.])*[a-z0-9_-]{1,63})$`)
	rrTypeRegex      = regexp.MustCompile(`^[A-Z][A-Z0-9]*$`)
)

// NormalizeDomainName lowercases and strips the trailing dot.
func NormalizeDomainName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

// ValidateDomainName checks an already-normalized domain name.
func ValidateDomainName(name string) error {
	if name == "" {
		return E(KindValidation, "domain name must not be empty")
	}
	if len(name) > 253 {
		return E(KindValidation, "domain name exceeds 253 characters")
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return E(KindValidation, "domain name contains empty label")
		}
		if !domainLabelRegex.MatchString(label) {
			return Ef(KindValidation, "invalid label %q in domain name", label)
		}
	}
	return nil
}

// NormalizeSubname lowercases and strips a trailing dot.
func NormalizeSubname(subname string) string {
	return strings.TrimSuffix(strings.ToLower(subname), ".")
}

// ValidateSubname checks the subname grammar. The empty subname (apex) is
// valid; otherwise labels of a-z 0-9 - _, optionally led by "*." or just "*".
func ValidateSubname(subname string) error {
	if subname == "" {
		return nil
	}
	if len(subname) > 178 {
		return E(KindValidation, "subname exceeds 178 characters")
	}
	if !subnameRegex.MatchString(subname) {
		return E(KindValidation, "subname can only use (lowercase) a-z, 0-9, ., -, and _, "+
			"may start with a '*.', or just be '*', with components of up to 63 characters")
	}
	return nil
}

// NormalizeRRsetType uppercases and trims a type name.
func NormalizeRRsetType(rrType string) string {
	return strings.ToUpper(strings.TrimSpace(rrType))
}

// ValidateRRsetType checks type syntax and membership in the allow-list.
// The type must already be uppercased.
func ValidateRRsetType(rrType string) error {
	if !rrTypeRegex.MatchString(rrType) {
		return E(KindValidation, "type must be uppercase alphanumeric and start with a letter")
	}
	if AutomaticTypes[rrType] {
		return Ef(KindValidation, "you cannot tinker with the %s RRset, it is managed automatically", rrType)
	}
	if strings.HasPrefix(rrType, "TYPE") {
		return E(KindValidation, "generic type format is not supported")
	}
	if !RRsetTypes[rrType] {
		return Ef(KindValidation, "the %s RRset type is currently unsupported", rrType)
	}
	return nil
}

var emailFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeEmail produces the case-folded, accent-stripped form backing the
// unique index, so that "José@Example.com" and "jose@example.com" collide.
func NormalizeEmail(email string) string {
	folded, _, err := transform.String(emailFold, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(email))
	}
	return folded
}

// ValidateEmail performs a light syntactic check; deliverability is proven
// by the (out-of-scope) verification mail.
func ValidateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return E(KindValidation, "invalid email address")
	}
	return nil
}
