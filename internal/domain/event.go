package domain

// EventType discriminates frames pushed to subscribers.
type EventType string

const (
	EventConnected           EventType = "connected"
	EventHeartbeat           EventType = "heartbeat"
	EventProcessingStarted   EventType = "processing_started"
	EventProcessingProgress  EventType = "processing_progress"
	EventTaskCreated         EventType = "task_created"
	EventTaskSkipped         EventType = "task_skipped"
	EventProcessingError     EventType = "processing_error"
	EventProcessingCompleted EventType = "processing_completed"
)

// Progress carries running counters of a processing run.
type Progress struct {
	Current   int `json:"current"`
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Event is a single frame on a subscriber stream.
type Event struct {
	Type       EventType  `json:"type"`
	UserID     string     `json:"userId,omitempty"`
	RunID      string     `json:"runId,omitempty"`
	Timestamp  int64      `json:"timestamp,omitempty"`
	FeedbackID string     `json:"feedbackId,omitempty"`
	Preview    string     `json:"preview,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Progress   *Progress  `json:"progress,omitempty"`
	Task       *Task      `json:"task,omitempty"`
	Analytics  *Analytics `json:"analytics,omitempty"`
}

// Analytics aggregates the outcome of one processing run.
type Analytics struct {
	TotalProcessed       int              `json:"totalProcessed"`
	TasksCreated         int              `json:"tasksCreated"`
	Successful           int              `json:"successful"`
	Failed               int              `json:"failed"`
	AIClassified         int              `json:"aiClassified"`
	FallbackClassified   int              `json:"fallbackClassified"`
	SkippedNonActionable int              `json:"skippedNonActionable"`
	AISuccessRate        float64          `json:"aiSuccessRate"`
	ByPriority           map[Priority]int `json:"byPriority"`
	ByCategory           map[Category]int `json:"byCategory"`
}
