// Package classifier turns raw task output text into a success/failure/unknown
// outcome. It is a pure function over text: no I/O, no state.
//
// Ordering matters and is deliberate:
//  1. Success signals are checked first and win immediately. Completion
//     phrases are rarely false positives, so they take priority.
//  2. Failure signals are checked second, and each match is inspected in a
//     bounded window for quoted/code-block context. A task that *discusses*
//     an error ("the `ValueError` was caused by...") is not a task that
//     *raised* one - those matches are suppressed.
//  3. Anything else is unknown, which downstream treats as success.
//
// Without the suppression pass, analysis and review tasks that quote error
// text would be the dominant false-positive mode.
package classifier

import (
	"regexp"
	"strings"

	"github.com/steveyegge/hindsight/internal/types"
)

// DefaultWindow is the radius, in bytes, of the context window inspected
// around a failure match before accepting it.
const DefaultWindow = 100

// Context carries per-classification context
type Context struct {
	// Domain is the task's domain label. Currently informational; carried so
	// domain-specific signal tables can be added without an API change.
	Domain string

	// Window overrides the suppression window radius (0 = DefaultWindow)
	Window int
}

// Pre-compiled signal tables. Compiling per call would dominate the cost of
// classification.
var successPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btask (?:is )?complete[d.!]?`),
	regexp.MustCompile(`(?i)\bsuccessfully (?:completed|finished|implemented|fixed|applied)\b`),
	regexp.MustCompile(`(?i)\ball (?:\d+ )?tests? (?:are )?pass(?:ing|ed)?\b`),
	regexp.MustCompile(`(?i)\bbuild succeeded\b`),
	regexp.MustCompile(`(?i)\bexit (?:code|status):? 0\b`),
	regexp.MustCompile(`(?m)^ok\s+\S+\s+[\d.]+s`), // go test package line
}

var failurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Traceback \(most recent call last\)`),
	regexp.MustCompile(`(?m)^\s*panic: `),
	regexp.MustCompile(`\b[A-Za-z_]*(?:Error|Exception)\b:`),
	regexp.MustCompile(`(?i)\bfatal(?: error)?:`),
	regexp.MustCompile(`(?i)\bexit (?:code|status):? [1-9]\d*\b`),
	regexp.MustCompile(`(?i)\bcommand failed\b`),
	regexp.MustCompile(`(?m)^\s*FAIL(?:ED)?\b`),
	regexp.MustCompile(`(?i)\bsegmentation fault\b`),
	regexp.MustCompile(`npm ERR!`),
	regexp.MustCompile(`(?i)\bcompilation (?:error|failed)\b`),
}

// Classify scans task output for outcome signals. Empty or signal-free
// output returns OutcomeUnknown; classification ambiguity is absorbed here,
// never surfaced as an error.
func Classify(output string, ctx Context) types.Outcome {
	if strings.TrimSpace(output) == "" {
		return types.OutcomeUnknown
	}

	// Pass 1: explicit success signals win immediately
	for _, re := range successPatterns {
		if re.MatchString(output) {
			return types.OutcomeSuccess
		}
	}

	window := ctx.Window
	if window <= 0 {
		window = DefaultWindow
	}

	// Pass 2: failure signals, with quoted-context suppression
	for _, re := range failurePatterns {
		for _, loc := range re.FindAllStringIndex(output, -1) {
			if !suppressed(output, loc[0], loc[1], window) {
				return types.OutcomeFailure
			}
		}
	}

	return types.OutcomeUnknown
}

// FailureSignature returns the line containing the first unsuppressed
// failure match, for use as a failure registry signature. Empty when the
// output carries no failure signal.
func FailureSignature(output string, ctx Context) string {
	window := ctx.Window
	if window <= 0 {
		window = DefaultWindow
	}
	for _, re := range failurePatterns {
		for _, loc := range re.FindAllStringIndex(output, -1) {
			if !suppressed(output, loc[0], loc[1], window) {
				return strings.TrimSpace(lineAround(output, loc[0]))
			}
		}
	}
	return ""
}

// lineAround returns the full line containing offset.
func lineAround(output string, offset int) string {
	start := strings.LastIndexByte(output[:offset], '\n') + 1
	end := strings.IndexByte(output[offset:], '\n')
	if end < 0 {
		return output[start:]
	}
	return output[start : offset+end]
}

// suppressed reports whether the failure match at [start, end) sits inside
// quoted or code-block context - i.e. the output is discussing an error
// rather than raising one.
func suppressed(output string, start, end, window int) bool {
	// Inside a fenced code block: an odd number of ``` markers precede the
	// match. Fenced output in agent transcripts is quoted material.
	if strings.Count(output[:start], "```")%2 == 1 {
		return true
	}

	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(output) {
		hi = len(output)
	}

	// Wrapped in matching quote characters on the same line: scan outward
	// from the match, stopping at line boundaries.
	for _, q := range []byte{'`', '"', '\''} {
		if enclosedBy(output, start, end, lo, hi, q) {
			return true
		}
	}
	return false
}

// enclosedBy reports whether the match is flanked by the quote byte q on
// both sides within the window, without an intervening newline.
func enclosedBy(output string, start, end, lo, hi int, q byte) bool {
	before := false
	for i := start - 1; i >= lo; i-- {
		if output[i] == '\n' {
			break
		}
		if output[i] == q {
			before = true
			break
		}
	}
	if !before {
		return false
	}
	for i := end; i < hi; i++ {
		if output[i] == '\n' {
			return false
		}
		if output[i] == q {
			return true
		}
	}
	return false
}
