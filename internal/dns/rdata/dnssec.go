package rdata

import (
	"fmt"
	"strings"
)

// Required digest lengths in bytes per digest type, where defined.
var dsDigestLengths = map[uint64]int{
	1: 20, // SHA-1
	2: 32, // SHA-256
	3: 32, // GOST R 34.11-94
	4: 48, // SHA-384
}

// canonDS handles DS, CDS and DLV: keytag algorithm digesttype hexdigest.
// The digest may be split over several whitespace-separated hex runs.
func canonDS(content string) (string, error) {
	sc := newScanner(content)
	keytag, err := nextUint(sc, 65535, "key tag")
	if err != nil {
		return "", err
	}
	alg, err := nextUint(sc, 255, "algorithm")
	if err != nil {
		return "", err
	}
	digestType, err := nextUint(sc, 255, "digest type")
	if err != nil {
		return "", err
	}
	if digestType == 0 {
		return "", fmt.Errorf("digest type 0 is reserved and must not be used")
	}
	toks, err := sc.remainder()
	if err != nil {
		return "", err
	}
	digest, err := hexJoined(toks, "digest")
	if err != nil {
		return "", err
	}
	if want, known := dsDigestLengths[digestType]; known && len(digest) != 2*want {
		return "", fmt.Errorf("digest type %d requires a %d-byte digest, got %d bytes",
			digestType, want, len(digest)/2)
	}
	return fmt.Sprintf("%d %d %d %s", keytag, alg, digestType, digest), nil
}

// canonDNSKEY handles DNSKEY and CDNSKEY: flags protocol algorithm base64key.
func canonDNSKEY(content string) (string, error) {
	sc := newScanner(content)
	flags, err := nextUint(sc, 65535, "flags")
	if err != nil {
		return "", err
	}
	proto, err := nextUint(sc, 255, "protocol")
	if err != nil {
		return "", err
	}
	alg, err := nextUint(sc, 255, "algorithm")
	if err != nil {
		return "", err
	}
	toks, err := sc.remainder()
	if err != nil {
		return "", err
	}
	key, err := base64Joined(toks, "key")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %d %s", flags, proto, alg, key), nil
}

// certTypes maps the mnemonic certificate types of RFC 4398.
var certTypes = map[string]uint64{
	"PKIX": 1, "SPKI": 2, "PGP": 3, "IPKIX": 4, "ISPKI": 5,
	"IPGP": 6, "ACPKIX": 7, "IACPKIX": 8, "URI": 253, "OID": 254,
}

func canonCERT(content string) (string, error) {
	sc := newScanner(content)
	tok, quoted, err := sc.next()
	if err != nil || quoted {
		return "", fmt.Errorf("missing certificate type")
	}
	certType, ok := certTypes[strings.ToUpper(tok)]
	if !ok {
		certType, err = parseUint(tok, 65535, "certificate type")
		if err != nil {
			return "", err
		}
	}
	keytag, err := nextUint(sc, 65535, "key tag")
	if err != nil {
		return "", err
	}
	alg, err := nextUint(sc, 255, "algorithm")
	if err != nil {
		return "", err
	}
	toks, err := sc.remainder()
	if err != nil {
		return "", err
	}
	cert, err := base64Joined(toks, "certificate")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %d %s", certType, keytag, alg, cert), nil
}

func canonDHCID(content string) (string, error) {
	toks, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	return base64Joined(toks, "identifier")
}

func canonOPENPGPKEY(content string) (string, error) {
	toks, err := newScanner(content).remainder()
	if err != nil {
		return "", err
	}
	return base64Joined(toks, "key")
}

func canonSSHFP(content string) (string, error) {
	sc := newScanner(content)
	alg, err := nextUint(sc, 255, "algorithm")
	if err != nil {
		return "", err
	}
	fpType, err := nextUint(sc, 255, "fingerprint type")
	if err != nil {
		return "", err
	}
	toks, err := sc.remainder()
	if err != nil {
		return "", err
	}
	fp, err := hexJoined(toks, "fingerprint")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %s", alg, fpType, fp), nil
}

// canonTLSA handles TLSA and SMIMEA: usage selector matchingtype hexdata.
func canonTLSA(content string) (string, error) {
	sc := newScanner(content)
	usage, err := nextUint(sc, 255, "certificate usage")
	if err != nil {
		return "", err
	}
	selector, err := nextUint(sc, 255, "selector")
	if err != nil {
		return "", err
	}
	matching, err := nextUint(sc, 255, "matching type")
	if err != nil {
		return "", err
	}
	toks, err := sc.remainder()
	if err != nil {
		return "", err
	}
	data, err := hexJoined(toks, "association data")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %d %s", usage, selector, matching, data), nil
}
