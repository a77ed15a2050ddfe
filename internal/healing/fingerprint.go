// Package healing implements the failure registry and self-healing
// dispatcher. Failures are normalized into stable fingerprints so the same
// underlying problem recurring across tasks is tracked as one record, then
// walked through a fix ladder that climbs from cheap pattern fixes to
// expensive deep analysis, with a hard retry ceiling so nothing loops
// forever.
package healing

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	// Volatile fragments scrubbed before hashing so cosmetic differences
	// (addresses, line numbers, ids, temp paths) collapse to one fingerprint.
	hexRunPattern     = regexp.MustCompile(`0x[0-9a-fA-F]+|\b[0-9a-f]{8,}\b`)
	digitRunPattern   = regexp.MustCompile(`\d+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Fingerprint derives a stable identifier from a failure signature within a
// domain. Two failures that differ only in volatile detail get the same
// fingerprint and therefore share one registry record.
func Fingerprint(domain, signature string) string {
	normalized := normalizeSignature(signature)
	sum := sha256.Sum256([]byte(domain + "\x00" + normalized))
	return hex.EncodeToString(sum[:])[:12]
}

func normalizeSignature(signature string) string {
	s := strings.ToLower(strings.TrimSpace(signature))
	s = hexRunPattern.ReplaceAllString(s, "#")
	s = digitRunPattern.ReplaceAllString(s, "#")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return s
}
