package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/ports"
)

// ErrEmptyCompletion is returned when the model answers with nothing usable.
var ErrEmptyCompletion = errors.New("empty completion")

// Outcome tags what happened to a comment.
type Outcome int

const (
	// OutcomeAccepted carries an analysis that should become a task.
	OutcomeAccepted Outcome = iota
	// OutcomeRejected means the comment was intentionally filtered out.
	OutcomeRejected
	// OutcomeFailed means the comment could not be evaluated at all.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Provenance records which path produced an analysis.
type Provenance string

const (
	ProvenanceAI       Provenance = "ai"
	ProvenanceFallback Provenance = "fallback"
)

// Input is a single comment plus its design context.
type Input struct {
	Content  string
	NodeID   string
	FileName string
}

// Result is the tagged outcome of Analyse.
type Result struct {
	Outcome    Outcome
	Analysis   domain.Analysis
	Provenance Provenance
	Err        error
}

const systemPrompt = `You are a senior product manager and design-systems analyst who triages UI/UX review comments into developer tasks.

The comments come from designers, stakeholders and users. Weigh user impact against technical feasibility.

Respond with a single JSON object and nothing else, using exactly these fields:
{
  "title": "short task title",
  "priority": "low" | "medium" | "high",
  "urgency": integer 1-10 (10 = most urgent),
  "category": "visual" | "functional" | "content" | "usability" | "performance",
  "actionType": "fix" | "improve" | "add" | "remove",
  "estimatedEffort": "low" | "medium" | "high",
  "summary": "one sentence describing the task",
  "reasoning": "why the task is needed",
  "devNotes": "technical considerations or dependencies"
}`

const userPromptTemplate = `Turn the following design feedback into a developer task.

Feedback: %q
%s
Guidelines:
- Words like "broken", "error", "bug" or "urgent" mean high priority.
- Words like "should", "improve" or "update" mean medium priority.
- Phrases like "nice to have" or "could be better" mean low priority.
- Keep the title concise but descriptive.
- Mention responsive, accessibility and performance implications where relevant.

Return only the JSON object.`

// Classifier turns actionable comments into analyses.
type Classifier struct {
	filter    *Filter
	completer ports.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewClassifier wires the filter with a completion service. A nil completer
// sends every accepted comment down the keyword fallback.
func NewClassifier(filter *Filter, completer ports.Completer, timeout time.Duration, logger *slog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if filter == nil {
		filter = NewFilter(completer, timeout, logger)
	}
	return &Classifier{filter: filter, completer: completer, timeout: timeout, logger: logger}
}

// Analyse filters and classifies a comment. It never returns an error outside
// of the Result; model problems degrade to the keyword fallback.
func (c *Classifier) Analyse(ctx context.Context, in Input) Result {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if !c.filter.IsActionable(ctx, in.Content) {
		return Result{Outcome: OutcomeRejected}
	}

	analysis, err := c.classify(ctx, in)
	if err == nil {
		return Result{Outcome: OutcomeAccepted, Analysis: analysis, Provenance: ProvenanceAI}
	}

	c.logger.Warn("ai classification failed, using keyword fallback", "error", err)
	if !PassesRules(in.Content) {
		return Result{Outcome: OutcomeRejected}
	}
	return Result{Outcome: OutcomeAccepted, Analysis: FallbackAnalysis(in.Content), Provenance: ProvenanceFallback}
}

func (c *Classifier) classify(ctx context.Context, in Input) (domain.Analysis, error) {
	if c.completer == nil {
		return domain.Analysis{}, errors.New("no classification service configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.completer.Complete(callCtx, ports.CompletionRequest{
		System:      systemPrompt,
		User:        buildUserPrompt(in),
		Temperature: 0.7,
		MaxTokens:   500,
		JSON:        true,
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("complete: %w", err)
	}

	return ParseAnalysis(raw)
}

func buildUserPrompt(in Input) string {
	var extra strings.Builder
	if in.NodeID != "" {
		fmt.Fprintf(&extra, "Figma node: %s\n", in.NodeID)
	}
	if in.FileName != "" {
		fmt.Fprintf(&extra, "Design file: %s\n", in.FileName)
	}
	return fmt.Sprintf(userPromptTemplate, in.Content, extra.String())
}

// ParseAnalysis decodes a model payload strictly into an Analysis.
func ParseAnalysis(raw string) (domain.Analysis, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return domain.Analysis{}, ErrEmptyCompletion
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()

	var analysis domain.Analysis
	if err := dec.Decode(&analysis); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Analysis{}, errors.New("decode analysis: trailing data")
	}
	if err := validateAnalysis(analysis); err != nil {
		return domain.Analysis{}, err
	}
	return analysis, nil
}

func validateAnalysis(a domain.Analysis) error {
	switch {
	case strings.TrimSpace(a.Title) == "":
		return errors.New("analysis: missing title")
	case !a.Priority.Valid():
		return fmt.Errorf("analysis: invalid priority %q", a.Priority)
	case a.Urgency < 1 || a.Urgency > 10:
		return fmt.Errorf("analysis: urgency %d out of range", a.Urgency)
	}

	switch a.Category {
	case domain.CategoryVisual, domain.CategoryFunctional, domain.CategoryContent, domain.CategoryUsability, domain.CategoryPerformance:
	default:
		return fmt.Errorf("analysis: invalid category %q", a.Category)
	}
	switch a.ActionType {
	case domain.ActionFix, domain.ActionImprove, domain.ActionAdd, domain.ActionRemove:
	default:
		return fmt.Errorf("analysis: invalid actionType %q", a.ActionType)
	}
	switch a.EstimatedEffort {
	case domain.EffortLow, domain.EffortMedium, domain.EffortHigh:
	default:
		return fmt.Errorf("analysis: invalid estimatedEffort %q", a.EstimatedEffort)
	}
	return nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
