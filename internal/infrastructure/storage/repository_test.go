package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/ports"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run must be a no-op
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	return NewRepository(db, DriverSQLite)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open("oracle", "dsn"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestPendingFeedbackLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

	contents := []string{"The button is too small", "Great work!", "Fix the header spacing"}
	for i, content := range contents {
		_, err := repo.AddFeedback(ctx, domain.Feedback{
			ExternalID:   "c" + string(rune('1'+i)),
			Content:      content,
			DesignFileID: "file-1",
			DesignFile:   "Checkout",
			NodeID:       "1:2",
			OwnerID:      "U",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AddFeedback %d: %v", i, err)
		}
	}
	if _, err := repo.AddFeedback(ctx, domain.Feedback{Content: "Other owner's comment", OwnerID: "V"}); err != nil {
		t.Fatalf("AddFeedback other owner: %v", err)
	}

	pending, err := repo.PendingFeedback(ctx, "U")
	if err != nil {
		t.Fatalf("PendingFeedback: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending items, got %d", len(pending))
	}
	for i, item := range pending {
		if item.Content != contents[i] {
			t.Fatalf("item %d out of order: %q", i, item.Content)
		}
		if item.DesignFile != "Checkout" || item.NodeID != "1:2" {
			t.Fatalf("design context not joined: %+v", item)
		}
	}

	if err := repo.MarkProcessed(ctx, pending[1].ID, "skipped", domain.PriorityLow); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	pending, err = repo.PendingFeedback(ctx, "U")
	if err != nil {
		t.Fatalf("PendingFeedback: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending items after processing, got %d", len(pending))
	}

	err = repo.MarkProcessed(ctx, "missing", "x", domain.PriorityLow)
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExistingExternalIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	for _, id := range []string{"a", "b"} {
		if _, err := repo.AddFeedback(ctx, domain.Feedback{ExternalID: id, Content: "Update the logo", OwnerID: "U"}); err != nil {
			t.Fatalf("AddFeedback: %v", err)
		}
	}

	existing, err := repo.ExistingExternalIDs(ctx, []string{"a", "c"})
	if err != nil {
		t.Fatalf("ExistingExternalIDs: %v", err)
	}
	if !existing["a"] || existing["c"] || len(existing) != 1 {
		t.Fatalf("unexpected result: %v", existing)
	}

	empty, err := repo.ExistingExternalIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty map, got %v (%v)", empty, err)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	fb, err := repo.AddFeedback(ctx, domain.Feedback{Content: "The link is broken", OwnerID: "U"})
	if err != nil {
		t.Fatalf("AddFeedback: %v", err)
	}

	created, err := repo.CreateTask(ctx, domain.Task{
		Title:       "Repair link",
		Description: "desc",
		Priority:    domain.PriorityHigh,
		Status:      domain.StatusBacklog,
		FeedbackID:  fb.ID,
		AssigneeID:  "U",
		Urgency:     10,
		Category:    domain.CategoryFunctional,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("task identity not assigned: %+v", created)
	}

	// one task per feedback item
	if _, err := repo.CreateTask(ctx, domain.Task{Title: "dup", Description: "d", Priority: domain.PriorityLow, Status: domain.StatusBacklog, FeedbackID: fb.ID, AssigneeID: "U"}); err == nil {
		t.Fatalf("expected unique feedback constraint violation")
	}

	tasks, err := repo.ListTasks(ctx, "U")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Title != "Repair link" || got.Priority != domain.PriorityHigh || got.Status != domain.StatusBacklog || got.Urgency != 10 || got.FeedbackID != fb.ID {
		t.Fatalf("unexpected task: %+v", got)
	}

	others, err := repo.ListTasks(ctx, "V")
	if err != nil || len(others) != 0 {
		t.Fatalf("expected no tasks for V, got %v (%v)", others, err)
	}
}
