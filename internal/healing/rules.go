package healing

import "strings"

// unfixableMarkers are signature fragments that rule-based classification
// treats as outside the reach of automatic fixing: problems that need
// credentials, quota, hardware, or a human decision.
var unfixableMarkers = []string{
	"permission denied",
	"access denied",
	"unauthorized",
	"authentication failed",
	"invalid api key",
	"quota exceeded",
	"billing",
	"rate limit exceeded",
	"no space left on device",
	"disk full",
	"out of memory",
	"network is unreachable",
	"certificate",
	"merge conflict",
}

// fixableMarkers are fragments with a known mechanical remedy, eligible for
// the cheap tier immediately.
var fixableMarkers = []string{
	"missing dependency",
	"module not found",
	"no such file or directory",
	"undefined:",
	"undeclared",
	"syntax error",
	"type error",
	"import error",
	"not formatted",
	"lint",
	"timeout",
	"connection refused",
	"temporarily unavailable",
}

// ClassifySignature decides whether a failure signature looks automatically
// fixable. Unfixable markers win over fixable ones, and anything ambiguous
// defaults to fixable so the cheap tier gets one shot before a human does.
func ClassifySignature(signature string) bool {
	s := strings.ToLower(signature)
	for _, marker := range unfixableMarkers {
		if strings.Contains(s, marker) {
			return false
		}
	}
	return true
}

// SuggestedSeverity estimates a 1-5 severity from the signature. Known
// fixable annoyances rank low; everything unfamiliar lands in the middle.
func SuggestedSeverity(signature string, fallback int) int {
	s := strings.ToLower(signature)
	for _, marker := range unfixableMarkers {
		if strings.Contains(s, marker) {
			return 4
		}
	}
	for _, marker := range fixableMarkers {
		if strings.Contains(s, marker) {
			return 2
		}
	}
	return fallback
}
