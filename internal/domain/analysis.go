package domain

import "strings"

// FallbackMarker is embedded in the reasoning of keyword-derived analyses.
const FallbackMarker = "Fallback analysis based on keyword detection"

// Category groups feedback by the area of the product it touches.
type Category string

const (
	CategoryVisual      Category = "visual"
	CategoryFunctional  Category = "functional"
	CategoryContent     Category = "content"
	CategoryUsability   Category = "usability"
	CategoryPerformance Category = "performance"
)

// ActionType describes what kind of change the task asks for.
type ActionType string

const (
	ActionFix     ActionType = "fix"
	ActionImprove ActionType = "improve"
	ActionAdd     ActionType = "add"
	ActionRemove  ActionType = "remove"
)

// Effort is a rough size estimate.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Analysis is the structured triage of a single comment.
type Analysis struct {
	Title           string     `json:"title"`
	Priority        Priority   `json:"priority"`
	Urgency         int        `json:"urgency"`
	Category        Category   `json:"category"`
	ActionType      ActionType `json:"actionType"`
	EstimatedEffort Effort     `json:"estimatedEffort"`
	Summary         string     `json:"summary"`
	Reasoning       string     `json:"reasoning"`
	DevNotes        string     `json:"devNotes"`
}

// MentionsFallback reports whether the reasoning carries the fallback marker.
func (a Analysis) MentionsFallback() bool {
	return strings.Contains(a.Reasoning, FallbackMarker)
}
