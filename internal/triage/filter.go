// Package triage decides whether design comments deserve a task and, if so,
// turns them into structured analyses.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FeedbackFlow/internal/ports"
)

const defaultCallTimeout = 20 * time.Second

const filterPrompt = `Decide whether the following comment contains actionable feedback for UI/UX development.

Comment: %q

Answer with exactly one word: "true" or "false".

true: specific feedback about design, functionality, bugs, improvements or user experience.
false: general encouragement, personal remarks, off-topic or social chatter.

Examples:
"Great work!" -> false
"Let's go team!" -> false
"The button is too small" -> true
"This color doesn't work" -> true
"Looking good so far" -> false
"Can we make this responsive?" -> true`

// Filter gates comments before any classification cost is paid.
type Filter struct {
	completer ports.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFilter builds a filter. A nil completer limits the filter to its rules.
func NewFilter(completer ports.Completer, timeout time.Duration, logger *slog.Logger) *Filter {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{completer: completer, timeout: timeout, logger: logger}
}

// IsActionable runs the rule check and, when it passes, asks the model to confirm.
// Model failures fall back to the rule verdict.
func (f *Filter) IsActionable(ctx context.Context, content string) bool {
	if !PassesRules(content) {
		f.logger.Debug("rejected by rules", "preview", Truncate(content, 50))
		return false
	}
	if f.completer == nil {
		return true
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	answer, err := f.completer.Complete(callCtx, ports.CompletionRequest{
		User:        fmt.Sprintf(filterPrompt, content),
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		f.logger.Warn("ai filter failed, using rule verdict", "error", err)
		return true
	}

	return strings.ToLower(strings.TrimSpace(answer)) == "true"
}
