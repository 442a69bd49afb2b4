package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/ports"
	"FeedbackFlow/internal/triage"
)

const (
	defaultPreviewLength = 50
	defaultTaskUrgency   = 5
	skippedSummary       = "Skipped: comment is not actionable feedback"
)

// ErrMissingOwner is returned when a run is requested without an owner.
var ErrMissingOwner = errors.New("owner id is required")

// Analyser classifies a single comment.
type Analyser interface {
	Analyse(ctx context.Context, in triage.Input) triage.Result
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Feedback      ports.FeedbackStore
	Tasks         ports.TaskStore
	Analyser      Analyser
	Broadcaster   ports.Broadcaster
	Notifier      ports.Notifier
	Logger        *slog.Logger
	Throttle      time.Duration
	PreviewLength int
}

// Pipeline turns the backlog of unprocessed feedback into board tasks.
type Pipeline struct {
	feedback      ports.FeedbackStore
	tasks         ports.TaskStore
	analyser      Analyser
	broadcaster   ports.Broadcaster
	notifier      ports.Notifier
	logger        *slog.Logger
	throttle      time.Duration
	previewLength int
	now           func() time.Time

	runsMu sync.Mutex
	runs   map[string]*ownerRun
}

// ownerRun serializes processing passes of one owner.
type ownerRun struct {
	mu      sync.Mutex
	waiters int
}

// RunResult is what a caller receives after a processing run.
type RunResult struct {
	RunID     string           `json:"runId"`
	Message   string           `json:"message"`
	Tasks     []domain.Task    `json:"tasks"`
	Analytics domain.Analytics `json:"analytics"`
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		feedback:      deps.Feedback,
		tasks:         deps.Tasks,
		analyser:      deps.Analyser,
		broadcaster:   deps.Broadcaster,
		notifier:      deps.Notifier,
		logger:        deps.Logger,
		throttle:      deps.Throttle,
		previewLength: deps.PreviewLength,
		now:           time.Now,
		runs:          map[string]*ownerRun{},
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.throttle < 0 {
		p.throttle = 0
	}
	if p.previewLength <= 0 {
		p.previewLength = defaultPreviewLength
	}
	return p
}

// ProcessPending classifies every unprocessed comment owned by ownerID.
// Only a failed fetch aborts the run; per-item failures land in the analytics.
func (p *Pipeline) ProcessPending(ctx context.Context, ownerID string) (RunResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return RunResult{}, ErrMissingOwner
	}
	if p.feedback == nil || p.tasks == nil || p.analyser == nil {
		return RunResult{}, errors.New("pipeline is not fully configured")
	}

	unlock := p.lockOwner(ownerID)
	defer unlock()

	items, err := p.feedback.PendingFeedback(ctx, ownerID)
	if err != nil {
		return RunResult{}, fmt.Errorf("fetch pending feedback: %w", err)
	}

	run := newRunState(uuid.NewString(), ownerID, len(items))
	log := p.logger.With("run", run.id, "owner", ownerID)
	log.Info("processing started", "pending", len(items))

	p.emit(ownerID, domain.Event{
		Type:     domain.EventProcessingStarted,
		RunID:    run.id,
		Message:  fmt.Sprintf("Processing %d comments", len(items)),
		Progress: run.progress(0),
	})

	for i, item := range items {
		if i > 0 {
			p.wait(ctx)
		}

		p.emit(ownerID, domain.Event{
			Type:       domain.EventProcessingProgress,
			RunID:      run.id,
			FeedbackID: item.ID,
			Preview:    triage.Truncate(item.Content, p.previewLength),
			Progress:   run.progress(i + 1),
		})

		if err := p.processItem(ctx, run, i+1, item); err != nil {
			run.failed++
			log.Error("feedback processing failed", "feedback", item.ID, "error", err)
			p.emit(ownerID, domain.Event{
				Type:       domain.EventProcessingError,
				RunID:      run.id,
				FeedbackID: item.ID,
				Error:      err.Error(),
				Progress:   run.progress(i + 1),
			})
		}
	}

	sortByUrgency(run.tasks)
	analytics := run.analytics()
	message := fmt.Sprintf("Processed %d comments and generated %d tasks", analytics.TotalProcessed, analytics.TasksCreated)

	log.Info("processing completed",
		"tasks", analytics.TasksCreated,
		"skipped", analytics.SkippedNonActionable,
		"failed", analytics.Failed,
		"fallback", analytics.FallbackClassified)

	p.emit(ownerID, domain.Event{
		Type:      domain.EventProcessingCompleted,
		RunID:     run.id,
		Message:   message,
		Progress:  run.progress(len(items)),
		Analytics: &analytics,
	})

	p.notify(ctx, log, ownerID, run.tasks, analytics)

	return RunResult{
		RunID:     run.id,
		Message:   message,
		Tasks:     run.tasks,
		Analytics: analytics,
	}, nil
}

func (p *Pipeline) processItem(ctx context.Context, run *runState, current int, item domain.Feedback) error {
	res := p.analyser.Analyse(ctx, triage.Input{
		Content:  item.Content,
		NodeID:   item.NodeID,
		FileName: item.DesignFile,
	})
	if res.Outcome == triage.OutcomeFailed {
		return fmt.Errorf("analyse: %w", res.Err)
	}

	accepted := res.Outcome == triage.OutcomeAccepted
	summary, priority := skippedSummary, domain.PriorityLow
	if accepted {
		summary, priority = res.Analysis.Summary, res.Analysis.Priority
	}

	if err := p.feedback.MarkProcessed(ctx, item.ID, summary, priority); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	if !accepted {
		run.skipped++
		p.emit(run.owner, domain.Event{
			Type:       domain.EventTaskSkipped,
			RunID:      run.id,
			FeedbackID: item.ID,
			Message:    "Comment is not actionable",
			Progress:   run.progress(current),
		})
		return nil
	}

	task, err := p.tasks.CreateTask(ctx, buildTask(item, res.Analysis, run.owner))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	run.record(task, p.provenanceOf(run, item.ID, res))
	p.emit(run.owner, domain.Event{
		Type:       domain.EventTaskCreated,
		RunID:      run.id,
		FeedbackID: item.ID,
		Task:       &task,
		Progress:   run.progress(current),
	})
	return nil
}

// lockOwner blocks until no other run for ownerID is active.
func (p *Pipeline) lockOwner(ownerID string) func() {
	p.runsMu.Lock()
	run, ok := p.runs[ownerID]
	if !ok {
		run = &ownerRun{}
		p.runs[ownerID] = run
	}
	run.waiters++
	p.runsMu.Unlock()

	run.mu.Lock()
	return func() {
		run.mu.Unlock()
		p.runsMu.Lock()
		run.waiters--
		if run.waiters == 0 {
			delete(p.runs, ownerID)
		}
		p.runsMu.Unlock()
	}
}

// provenanceOf trusts the analyser's tag and falls back to the reasoning
// marker for untagged results. A disagreement is logged.
func (p *Pipeline) provenanceOf(run *runState, feedbackID string, res triage.Result) triage.Provenance {
	marked := res.Analysis.MentionsFallback()
	switch {
	case res.Provenance == "":
		if marked {
			return triage.ProvenanceFallback
		}
		return triage.ProvenanceAI
	case (res.Provenance == triage.ProvenanceFallback) != marked:
		p.logger.Warn("provenance disagrees with reasoning marker",
			"run", run.id, "feedback", feedbackID, "provenance", res.Provenance, "marker", marked)
	}
	return res.Provenance
}

func (p *Pipeline) emit(ownerID string, event domain.Event) {
	if p.broadcaster == nil {
		return
	}
	event.UserID = ownerID
	if event.Timestamp == 0 {
		event.Timestamp = p.now().UnixMilli()
	}
	p.broadcaster.Send(ownerID, event)
}

func (p *Pipeline) wait(ctx context.Context) {
	if p.throttle == 0 {
		return
	}
	timer := time.NewTimer(p.throttle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, ownerID string, tasks []domain.Task, analytics domain.Analytics) {
	if p.notifier == nil || analytics.TasksCreated == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(ownerID, tasks, analytics)); err != nil {
		log.Warn("publish digest failed", "error", err)
	}
}

func buildTask(item domain.Feedback, analysis domain.Analysis, ownerID string) domain.Task {
	return domain.Task{
		Title:       analysis.Title,
		Description: buildDescription(item, analysis),
		Priority:    analysis.Priority,
		Status:      domain.StatusBacklog,
		FeedbackID:  item.ID,
		AssigneeID:  ownerID,
		Urgency:     analysis.Urgency,
		Category:    analysis.Category,
	}
}

func buildDescription(item domain.Feedback, a domain.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Summary:** %s\n\n", a.Summary)
	fmt.Fprintf(&b, "**Category:** %s | **Action:** %s | **Effort:** %s\n\n", a.Category, a.ActionType, a.EstimatedEffort)
	if a.DevNotes != "" {
		fmt.Fprintf(&b, "**Developer notes:** %s\n\n", a.DevNotes)
	}
	fmt.Fprintf(&b, "**Original feedback:** %q\n\n", item.Content)
	fmt.Fprintf(&b, "**Reasoning:** %s", a.Reasoning)
	return b.String()
}

// sortByUrgency orders tasks most urgent first, keeping insertion order on ties.
func sortByUrgency(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return urgencyOf(tasks[i]) > urgencyOf(tasks[j])
	})
}

func urgencyOf(t domain.Task) int {
	if t.Urgency == 0 {
		return defaultTaskUrgency
	}
	return t.Urgency
}

func buildDigestMessage(ownerID string, tasks []domain.Task, analytics domain.Analytics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback run for %s: %d tasks from %d comments (%d skipped, %d failed)\n\n",
		ownerID, analytics.TasksCreated, analytics.TotalProcessed, analytics.SkippedNonActionable, analytics.Failed)
	for _, task := range tasks {
		fmt.Fprintf(&b, "- [%s] %s (urgency %d)\n", task.Priority, task.Title, urgencyOf(task))
	}
	return b.String()
}
