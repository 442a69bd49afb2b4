package domain

import "time"

// TaskStatus is the board column of a task.
type TaskStatus string

const (
	StatusBacklog    TaskStatus = "backlog"
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusInReview   TaskStatus = "in_review"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
)

// BoardColumns lists statuses in board order.
var BoardColumns = []TaskStatus{
	StatusBacklog,
	StatusTodo,
	StatusInProgress,
	StatusInReview,
	StatusBlocked,
	StatusDone,
}

// Task is a development work item generated from accepted feedback.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"status"`
	FeedbackID  string     `json:"feedbackId"`
	AssigneeID  string     `json:"assigneeId"`
	Urgency     int        `json:"urgency,omitempty"`
	Category    Category   `json:"category,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
