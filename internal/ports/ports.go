package ports

import (
	"context"
	"errors"
	"time"

	"FeedbackFlow/internal/domain"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// FeedbackStore reads the backlog of imported comments and records triage outcomes.
type FeedbackStore interface {
	PendingFeedback(ctx context.Context, ownerID string) ([]domain.Feedback, error)
	MarkProcessed(ctx context.Context, id, summary string, priority domain.Priority) error
}

// FeedbackImporter stores freshly imported comments.
type FeedbackImporter interface {
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]bool, error)
	AddFeedback(ctx context.Context, item domain.Feedback) (domain.Feedback, error)
}

// TaskStore persists generated tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
}

// CompletionRequest is a single prompt sent to a classification service.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Completer talks to an external language model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Broadcaster routes events to live subscribers.
type Broadcaster interface {
	Send(ownerID string, event domain.Event) bool
	BroadcastAll(event domain.Event)
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
