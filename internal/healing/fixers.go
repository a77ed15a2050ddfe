package healing

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/hindsight/internal/ai"
	"github.com/steveyegge/hindsight/internal/types"
)

// remedies maps signature fragments to canned remediation notes for the
// cheap tier. These are failures common enough that no analysis is needed.
var remedies = []struct {
	marker string
	note   string
}{
	{"module not found", "install the missing module and pin it in the manifest"},
	{"missing dependency", "add the dependency to the project manifest"},
	{"no such file or directory", "create the missing file or correct the path reference"},
	{"not formatted", "run the project formatter over the touched files"},
	{"lint", "run the linter with autofix and review the remainder"},
	{"connection refused", "wait for the dependent service and retry with backoff"},
	{"temporarily unavailable", "retry with backoff"},
	{"timeout", "retry with a longer deadline"},
}

// NewRuleFixer returns the cheap-tier fixer: a lookup of canned remedies
// for well-known failure shapes. Anything it has no remedy for fails the
// attempt and the ladder climbs.
func NewRuleFixer() Fixer {
	return FixerFunc(func(ctx context.Context, record *types.FailureRecord) (string, error) {
		s := strings.ToLower(record.Signature)
		for _, r := range remedies {
			if strings.Contains(s, r.marker) {
				return r.note, nil
			}
		}
		return "", fmt.Errorf("no canned remedy for signature %q", record.Signature)
	})
}

// NewAnalysisFixer returns a model-backed fixer for the mid and expensive
// tiers. It asks the analyzer for a root cause and a concrete fix; the
// attempt succeeds only when the analysis both deems the failure fixable
// and produces fix steps.
func NewAnalysisFixer(analyzer *ai.Analyzer) Fixer {
	return FixerFunc(func(ctx context.Context, record *types.FailureRecord) (string, error) {
		if analyzer == nil {
			return "", fmt.Errorf("no analyzer configured")
		}
		analysis, err := analyzer.AnalyzeFailure(ctx, record.Domain, record.Signature, record.RootCause)
		if err != nil {
			return "", fmt.Errorf("deep analysis failed: %w", err)
		}
		if !analysis.Fixable || analysis.SuggestedFix == "" {
			return "", fmt.Errorf("analysis found no automatic fix: %s", analysis.RootCause)
		}
		note := analysis.SuggestedFix
		if analysis.Lesson != "" {
			note = fmt.Sprintf("%s (lesson: %s)", note, analysis.Lesson)
		}
		return note, nil
	})
}

// DefaultFixers wires the standard ladder: canned remedies at the cheap
// tier and model analysis above it. analyzer may be nil, which leaves the
// upper tiers failing fast.
func DefaultFixers(analyzer *ai.Analyzer) map[types.FixTier]Fixer {
	analysis := NewAnalysisFixer(analyzer)
	return map[types.FixTier]Fixer{
		types.TierCheap:     NewRuleFixer(),
		types.TierMid:       analysis,
		types.TierExpensive: analysis,
	}
}
