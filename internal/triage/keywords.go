package triage

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"FeedbackFlow/internal/domain"
)

const minActionableLength = 8

var nonActionablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(great|good|nice|awesome|excellent|perfect|amazing|love it|looks good|looking good)[\s!.]*$`),
	regexp.MustCompile(`^(hi|hello|hey|thanks|thank you|lol|haha|😀|😊|👍|🎉|💪)[\s!.]*$`),
	regexp.MustCompile(`^(yes|no|ok|okay|sure|cool|neat|sweet)[\s!.]*$`),
	regexp.MustCompile(`let['’]?s go|go team|keep it up|well done|nice work`),
	regexp.MustCompile(`^[\s\p{S}\p{Mn}\p{Cf}!.?-]+$`),
}

var actionableKeywords = []string{
	// design
	"color", "colour", "font", "size", "spacing", "layout", "design", "style",
	// functionality
	"button", "link", "form", "input", "menu", "navigation", "click",
	// issues and improvements
	"fix", "change", "update", "improve", "should", "could", "needs",
	"broken", "error", "bug", "issue", "problem", "wrong",
	// ux
	"user", "experience", "usability", "accessibility", "responsive",
	"mobile", "desktop", "tablet", "screen",
	// content
	"text", "copy", "content", "image", "icon", "logo",
	// performance
	"slow", "fast", "loading", "performance",
}

type keywordRule struct {
	keywords []string
	priority domain.Priority
	urgency  int
}

// Checked in order; the first rule with a hit wins.
var urgencyRules = []keywordRule{
	{
		keywords: []string{"broken", "error", "bug", "urgent", "critical", "not working", "fix", "must"},
		priority: domain.PriorityHigh,
		urgency:  10,
	},
	{
		keywords: []string{"should", "improve", "update", "consider", "please", "recommend", "suggest"},
		priority: domain.PriorityMedium,
		urgency:  7,
	},
	{
		keywords: []string{"nice to have", "could be better", "optional", "suggestion", "like to see"},
		priority: domain.PriorityLow,
		urgency:  3,
	},
}

const (
	defaultUrgency  = 5
	summaryMaxRunes = 100
	titleMaxRunes   = 80
)

// PassesRules is the deterministic actionability check. It never calls out.
func PassesRules(content string) bool {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	if n := utf8.RuneCountInString(lower); n >= 1 && n <= 3 {
		return false
	}
	for _, pattern := range nonActionablePatterns {
		if pattern.MatchString(lower) {
			return false
		}
	}

	if utf8.RuneCountInString(trimmed) < minActionableLength {
		return false
	}
	return containsAny(lower, actionableKeywords)
}

// KeywordPriority maps content onto a priority and urgency score.
func KeywordPriority(content string) (domain.Priority, int) {
	lower := strings.ToLower(content)
	for _, rule := range urgencyRules {
		if containsAny(lower, rule.keywords) {
			return rule.priority, rule.urgency
		}
	}
	return domain.PriorityMedium, defaultUrgency
}

// FallbackAnalysis builds the keyword-based analysis used when the model is unavailable.
func FallbackAnalysis(content string) domain.Analysis {
	priority, urgency := KeywordPriority(content)
	return domain.Analysis{
		Title:           Truncate(firstSentence(content), titleMaxRunes),
		Priority:        priority,
		Urgency:         urgency,
		Category:        domain.CategoryFunctional,
		ActionType:      domain.ActionImprove,
		EstimatedEffort: domain.EffortMedium,
		Summary:         Truncate(content, summaryMaxRunes),
		Reasoning:       domain.FallbackMarker,
		DevNotes:        "Generated by the keyword-based fallback because the AI classifier was unavailable; review priority manually.",
	}
}

// Truncate cuts s to max runes and appends an ellipsis when it was longer.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

func firstSentence(content string) string {
	trimmed := strings.TrimSpace(content)
	if idx := strings.IndexAny(trimmed, ".!?"); idx >= 0 {
		return trimmed[:idx+1]
	}
	return trimmed
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
