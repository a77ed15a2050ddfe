// Package ai provides the deep analyzer for the learning core. It is the
// only component that talks to the Anthropic API, and it is strictly
// optional: with no API key configured every caller falls back to
// rule-based behavior, so the core never requires the network.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
)

// Model tiers. Deep failure analysis uses the high-end model; quick triage
// can run on the cheap one.
const (
	// ModelSonnet is the high-end model for complex reasoning tasks
	ModelSonnet = "claude-sonnet-4-5-20250929"

	// ModelHaiku is the cost-efficient model for simple tasks
	ModelHaiku = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the default model, checking HINDSIGHT_MODEL first
func GetDefaultModel() string {
	if model := os.Getenv("HINDSIGHT_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// Analyzer performs model-backed analysis of failures and escalations.
type Analyzer struct {
	client  *anthropic.Client
	model   string
	retry   RetryConfig
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
}

// Config holds analyzer configuration
type Config struct {
	APIKey             string      // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model              string      // Model to use (default: GetDefaultModel())
	Retry              RetryConfig // Retry configuration (uses defaults if not specified)
	MaxConcurrentCalls int         // Cap on in-flight API calls (0 = unlimited)
}

// ErrDisabled is returned by New when no API key is available.
var ErrDisabled = fmt.Errorf("analyzer disabled: no API key configured")

// New creates a deep analyzer. Returns ErrDisabled when no API key is
// configured; callers treat that as "run without deep analysis", not as a
// startup failure.
func New(cfg Config) (*Analyzer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, ErrDisabled
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var sem *semaphore.Weighted
	if cfg.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}

	return &Analyzer{
		client:  &client,
		model:   model,
		retry:   retry,
		breaker: NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout),
		sem:     sem,
	}, nil
}

// DeepAnalysis is the analyzer's verdict on one failure.
type DeepAnalysis struct {
	RootCause    string `json:"root_cause"`
	Lesson       string `json:"lesson"`
	Fixable      bool   `json:"fixable"`
	Severity     int    `json:"severity"`      // 1 (annoyance) to 5 (blocking)
	SuggestedFix string `json:"suggested_fix"` // Empty when no mechanical fix exists
}

// AnalyzeFailure asks the model for a root cause, a lesson worth keeping,
// and whether the failure looks mechanically fixable.
func (a *Analyzer) AnalyzeFailure(ctx context.Context, domain, signature, output string) (*DeepAnalysis, error) {
	prompt := fmt.Sprintf(`You are analyzing a recurring task failure in an automated system.

Domain: %s
Failure signature: %s

Task output (may be truncated):
%s

Respond with ONLY a JSON object:
{
  "root_cause": "one-sentence root cause",
  "lesson": "a reusable rule that would prevent this failure, phrased as an imperative",
  "fixable": true or false (can an automated fixer remedy this without human help?),
  "severity": 1-5 (1 = annoyance, 5 = blocking),
  "suggested_fix": "concrete fix steps, or empty string if none"
}`, domain, signature, truncate(output, 8000))

	responseText, err := a.complete(ctx, "failure-analysis", prompt, 2048)
	if err != nil {
		return nil, err
	}

	analysis, err := parseJSON[DeepAnalysis](responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w (response: %s)", err, truncate(responseText, 200))
	}
	if analysis.Severity < 1 || analysis.Severity > 5 {
		analysis.Severity = 3
	}
	return analysis, nil
}

// EscalationVerdict is the analyzer's take on a watcher escalation.
type EscalationVerdict struct {
	Resolved bool   `json:"resolved"`
	Summary  string `json:"summary"`
}

// AssessEscalation runs the expensive deep-tier check: given a digest of the
// conditions that tripped the fast tier, decide whether the situation is
// actually resolved or still needs attention.
func (a *Analyzer) AssessEscalation(ctx context.Context, digest string) (*EscalationVerdict, error) {
	prompt := fmt.Sprintf(`You are the deep-analysis tier of an escalation watcher for an automated
learning system. The fast tier flagged the following conditions:

%s

Respond with ONLY a JSON object:
{
  "resolved": true or false (is the system healthy enough to stand down?),
  "summary": "one-sentence assessment"
}`, truncate(digest, 8000))

	responseText, err := a.complete(ctx, "escalation-assessment", prompt, 1024)
	if err != nil {
		return nil, err
	}

	verdict, err := parseJSON[EscalationVerdict](responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse escalation verdict: %w (response: %s)", err, truncate(responseText, 200))
	}
	return verdict, nil
}

// complete runs one message exchange and returns the concatenated text blocks.
func (a *Analyzer) complete(ctx context.Context, operation, prompt string, maxTokens int64) (string, error) {
	var response *anthropic.Message
	err := a.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := a.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
