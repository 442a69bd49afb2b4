package domain

import "time"

// Priority is the three-level ranking shared by feedback and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DesignFile is the imported design document a comment belongs to.
type DesignFile struct {
	ID      string
	FileKey string
	Name    string
	OwnerID string
}

// Feedback is one imported review comment.
type Feedback struct {
	ID           string
	ExternalID   string
	Content      string
	DesignFileID string
	DesignFile   string
	NodeID       string
	AuthorName   string
	OwnerID      string
	Processed    bool
	Priority     Priority
	AISummary    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
