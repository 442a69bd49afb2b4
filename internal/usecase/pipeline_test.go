package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/ports"
	"FeedbackFlow/internal/triage"
)

type memoryFeedback struct {
	mu        sync.Mutex
	items     []domain.Feedback
	fetchErr  error
	markErrOn string
	marked    map[string]domain.Feedback
}

func (m *memoryFeedback) PendingFeedback(ctx context.Context, ownerID string) ([]domain.Feedback, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Feedback
	for _, item := range m.items {
		if item.OwnerID == ownerID && !item.Processed {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memoryFeedback) MarkProcessed(ctx context.Context, id, summary string, priority domain.Priority) error {
	if id == m.markErrOn {
		return errors.New("store unreachable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marked == nil {
		m.marked = map[string]domain.Feedback{}
	}
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Processed = true
			m.items[i].AISummary = summary
			m.items[i].Priority = priority
			m.marked[id] = m.items[i]
			return nil
		}
	}
	return ports.ErrNotFound
}

type memoryTasks struct {
	mu    sync.Mutex
	tasks []domain.Task
}

func (m *memoryTasks) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.ID = fmt.Sprintf("task-%d", len(m.tasks)+1)
	m.tasks = append(m.tasks, task)
	return task, nil
}

func (m *memoryTasks) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Task(nil), m.tasks...), nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingBroadcaster) Send(ownerID string, event domain.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return false
}

func (r *recordingBroadcaster) BroadcastAll(event domain.Event) {}

func (r *recordingBroadcaster) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

type analyserFunc func(ctx context.Context, in triage.Input) triage.Result

func (f analyserFunc) Analyse(ctx context.Context, in triage.Input) triage.Result {
	return f(ctx, in)
}

type downCompleter struct{}

func (downCompleter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	return "", context.DeadlineExceeded
}

type recordingNotifier struct {
	digests []string
}

func (r *recordingNotifier) PublishDigest(ctx context.Context, digest string) error {
	r.digests = append(r.digests, digest)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func feedbackItems(owner string, contents ...string) []domain.Feedback {
	items := make([]domain.Feedback, 0, len(contents))
	for i, content := range contents {
		items = append(items, domain.Feedback{
			ID:      fmt.Sprintf("fb-%d", i+1),
			Content: content,
			OwnerID: owner,
		})
	}
	return items
}

func fallbackClassifier() *triage.Classifier {
	log := quietLogger()
	return triage.NewClassifier(triage.NewFilter(downCompleter{}, time.Second, log), downCompleter{}, time.Second, log)
}

func TestProcessPendingEndToEnd(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "Great work!", "The button is too small on mobile", "")}
	tasks := &memoryTasks{}
	events := &recordingBroadcaster{}
	notifier := &recordingNotifier{}

	pipeline := NewPipeline(PipelineDeps{
		Feedback:    store,
		Tasks:       tasks,
		Analyser:    fallbackClassifier(),
		Broadcaster: events,
		Notifier:    notifier,
		Logger:      quietLogger(),
	})
	pipeline.throttle = 0

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}

	a := res.Analytics
	if a.TotalProcessed != 3 || a.TasksCreated != 1 || a.SkippedNonActionable != 2 || a.Failed != 0 {
		t.Fatalf("unexpected analytics: %+v", a)
	}
	if a.FallbackClassified != 1 || a.AIClassified != 0 {
		t.Fatalf("unexpected provenance counters: %+v", a)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(res.Tasks))
	}

	task := res.Tasks[0]
	if task.Priority == domain.PriorityHigh {
		t.Fatalf("no urgent keyword, priority must not be high")
	}
	if task.Status != domain.StatusBacklog || task.AssigneeID != "U" || task.FeedbackID != "fb-2" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if !strings.Contains(task.Description, "The button is too small on mobile") {
		t.Fatalf("description should quote the original feedback: %q", task.Description)
	}

	for _, item := range store.items {
		if !item.Processed {
			t.Fatalf("feedback %s should be processed", item.ID)
		}
	}
	if store.marked["fb-1"].Priority != domain.PriorityLow || store.marked["fb-1"].AISummary != skippedSummary {
		t.Fatalf("skipped item should be stored as low priority: %+v", store.marked["fb-1"])
	}

	want := []domain.EventType{
		domain.EventProcessingStarted,
		domain.EventProcessingProgress, domain.EventTaskSkipped,
		domain.EventProcessingProgress, domain.EventTaskCreated,
		domain.EventProcessingProgress, domain.EventTaskSkipped,
		domain.EventProcessingCompleted,
	}
	got := events.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected event sequence:\n got %v\nwant %v", got, want)
	}
	if len(notifier.digests) != 1 {
		t.Fatalf("expected one digest, got %d", len(notifier.digests))
	}
}

func TestProcessPendingIsolatesItemFailures(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "first", "boom", "third")}
	tasks := &memoryTasks{}
	events := &recordingBroadcaster{}

	analyser := analyserFunc(func(ctx context.Context, in triage.Input) triage.Result {
		if in.Content == "boom" {
			return triage.Result{Outcome: triage.OutcomeFailed, Err: errors.New("classifier exploded")}
		}
		return triage.Result{
			Outcome:    triage.OutcomeAccepted,
			Provenance: triage.ProvenanceAI,
			Analysis: domain.Analysis{
				Title:    in.Content,
				Priority: domain.PriorityMedium,
				Urgency:  4,
				Category: domain.CategoryVisual,
				Summary:  in.Content,
			},
		}
	})

	pipeline := NewPipeline(PipelineDeps{Feedback: store, Tasks: tasks, Analyser: analyser, Broadcaster: events, Logger: quietLogger()})
	pipeline.throttle = 0

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if res.Analytics.Failed != 1 || res.Analytics.TasksCreated != 2 || res.Analytics.AIClassified != 2 {
		t.Fatalf("unexpected analytics: %+v", res.Analytics)
	}
	if res.Analytics.ByCategory[domain.CategoryVisual] != 2 || res.Analytics.ByPriority[domain.PriorityMedium] != 2 {
		t.Fatalf("unexpected breakdown: %+v", res.Analytics)
	}

	var sawError bool
	for _, evt := range events.events {
		if evt.Type == domain.EventProcessingError && evt.FeedbackID == "fb-2" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected processing_error event for fb-2")
	}
}

func TestProcessPendingCountsPersistenceFailures(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "The link is broken", "Fix the navigation menu"), markErrOn: "fb-1"}
	tasks := &memoryTasks{}

	pipeline := NewPipeline(PipelineDeps{Feedback: store, Tasks: tasks, Analyser: fallbackClassifier(), Logger: quietLogger()})
	pipeline.throttle = 0

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if res.Analytics.Failed != 1 || res.Analytics.TasksCreated != 1 {
		t.Fatalf("unexpected analytics: %+v", res.Analytics)
	}
	if len(tasks.tasks) != 1 || tasks.tasks[0].FeedbackID != "fb-2" {
		t.Fatalf("unexpected tasks: %+v", tasks.tasks)
	}
}

func TestProcessPendingNeverCreatesTaskForRejected(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "Thanks!", "looks good", "👍")}
	tasks := &memoryTasks{}

	pipeline := NewPipeline(PipelineDeps{Feedback: store, Tasks: tasks, Analyser: fallbackClassifier(), Logger: quietLogger()})
	pipeline.throttle = 0

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if len(tasks.tasks) != 0 || res.Analytics.SkippedNonActionable != 3 {
		t.Fatalf("unexpected outcome: tasks=%d analytics=%+v", len(tasks.tasks), res.Analytics)
	}
}

func TestProcessPendingSortsByUrgency(t *testing.T) {
	t.Parallel()

	urgencies := map[string]int{"a": 3, "b": 0, "c": 9, "d": 5}
	store := &memoryFeedback{items: feedbackItems("U", "a", "b", "c", "d")}

	analyser := analyserFunc(func(ctx context.Context, in triage.Input) triage.Result {
		return triage.Result{
			Outcome:    triage.OutcomeAccepted,
			Provenance: triage.ProvenanceAI,
			Analysis:   domain.Analysis{Title: in.Content, Priority: domain.PriorityLow, Urgency: urgencies[in.Content]},
		}
	})

	pipeline := NewPipeline(PipelineDeps{Feedback: store, Tasks: &memoryTasks{}, Analyser: analyser, Logger: quietLogger()})
	pipeline.throttle = 0

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}

	var order []string
	for _, task := range res.Tasks {
		order = append(order, task.Title)
	}
	if strings.Join(order, "") != "cbda" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestProcessPendingEmptyBacklog(t *testing.T) {
	t.Parallel()

	events := &recordingBroadcaster{}
	pipeline := NewPipeline(PipelineDeps{Feedback: &memoryFeedback{}, Tasks: &memoryTasks{}, Analyser: fallbackClassifier(), Broadcaster: events, Logger: quietLogger()})

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if res.Analytics.TotalProcessed != 0 || len(res.Tasks) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := events.types(); len(got) != 2 || got[1] != domain.EventProcessingCompleted {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestProcessPendingFetchFailureIsFatal(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(PipelineDeps{
		Feedback: &memoryFeedback{fetchErr: errors.New("db down")},
		Tasks:    &memoryTasks{},
		Analyser: fallbackClassifier(),
		Logger:   quietLogger(),
	})

	if _, err := pipeline.ProcessPending(context.Background(), "U"); err == nil {
		t.Fatalf("expected fetch error")
	}
	if _, err := pipeline.ProcessPending(context.Background(), " "); !errors.Is(err, ErrMissingOwner) {
		t.Fatalf("expected ErrMissingOwner, got %v", err)
	}
}

func TestProcessPendingUrgentFallback(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "This is broken and urgent, please fix the login form")}
	pipeline := NewPipeline(PipelineDeps{Feedback: store, Tasks: &memoryTasks{}, Analyser: fallbackClassifier(), Logger: quietLogger()})

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(res.Tasks))
	}
	task := res.Tasks[0]
	if task.Priority != domain.PriorityHigh || task.Urgency != 10 {
		t.Fatalf("unexpected task priority: %s/%d", task.Priority, task.Urgency)
	}
	if !strings.Contains(task.Description, domain.FallbackMarker) {
		t.Fatalf("description should carry the fallback reasoning: %q", task.Description)
	}
	if res.Analytics.FallbackClassified != 1 {
		t.Fatalf("expected fallback classification, got %+v", res.Analytics)
	}
}

func TestProcessPendingSerializesRunsPerOwner(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "The checkout button is broken")}
	tasks := &memoryTasks{}
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	pipeline := NewPipeline(PipelineDeps{
		Feedback: store,
		Tasks:    tasks,
		Analyser: analyserFunc(func(ctx context.Context, in triage.Input) triage.Result {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return triage.Result{Outcome: triage.OutcomeAccepted, Analysis: triage.FallbackAnalysis(in.Content), Provenance: triage.ProvenanceFallback}
		}),
		Logger: quietLogger(),
	})

	type outcome struct {
		res RunResult
		err error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		res, err := pipeline.ProcessPending(context.Background(), "U")
		first <- outcome{res, err}
	}()
	<-entered

	go func() {
		res, err := pipeline.ProcessPending(context.Background(), "U")
		second <- outcome{res, err}
	}()

	select {
	case <-second:
		t.Fatalf("second run finished while the first was still classifying")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	a, b := <-first, <-second
	if a.err != nil || b.err != nil {
		t.Fatalf("unexpected errors: %v / %v", a.err, b.err)
	}
	if a.res.Analytics.TasksCreated != 1 {
		t.Fatalf("first run should create the task: %+v", a.res.Analytics)
	}
	if b.res.Analytics.TotalProcessed != 0 || b.res.Analytics.Failed != 0 {
		t.Fatalf("second run should find nothing pending: %+v", b.res.Analytics)
	}
	if stored, _ := tasks.ListTasks(context.Background(), "U"); len(stored) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(stored))
	}
	pipeline.runsMu.Lock()
	leftover := len(pipeline.runs)
	pipeline.runsMu.Unlock()
	if leftover != 0 {
		t.Fatalf("owner locks were not released: %d", leftover)
	}
}

func TestProcessPendingDerivesProvenanceFromMarker(t *testing.T) {
	t.Parallel()

	store := &memoryFeedback{items: feedbackItems("U", "The logo is blurry", "Please fix the spacing")}
	pipeline := NewPipeline(PipelineDeps{
		Feedback: store,
		Tasks:    &memoryTasks{},
		Analyser: analyserFunc(func(ctx context.Context, in triage.Input) triage.Result {
			analysis := triage.FallbackAnalysis(in.Content)
			if strings.Contains(in.Content, "spacing") {
				analysis.Reasoning = "Model judged the spacing inconsistent"
			}
			return triage.Result{Outcome: triage.OutcomeAccepted, Analysis: analysis}
		}),
		Logger: quietLogger(),
	})
	pipeline.throttle = 0

	res, err := pipeline.ProcessPending(context.Background(), "U")
	if err != nil {
		t.Fatalf("ProcessPending error: %v", err)
	}
	if res.Analytics.FallbackClassified != 1 || res.Analytics.AIClassified != 1 {
		t.Fatalf("expected one fallback and one ai task, got %+v", res.Analytics)
	}
}
