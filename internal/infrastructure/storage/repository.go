package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"FeedbackFlow/internal/domain"
	"FeedbackFlow/internal/ports"
)

// Repository persists feedback and tasks in Postgres or SQLite.
type Repository struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

var (
	_ ports.FeedbackStore    = (*Repository)(nil)
	_ ports.FeedbackImporter = (*Repository)(nil)
	_ ports.TaskStore        = (*Repository)(nil)
)

// NewRepository wires a sql.DB for the given driver.
func NewRepository(db *sql.DB, driver string) *Repository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return &Repository{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PendingFeedback returns unprocessed comments of ownerID in import order.
func (r *Repository) PendingFeedback(ctx context.Context, ownerID string) ([]domain.Feedback, error) {
	query, args, err := r.sb.
		Select(
			"f.id",
			"COALESCE(f.external_id, '')",
			"f.content",
			"COALESCE(f.design_file_id, '')",
			"COALESCE(d.name, '')",
			"COALESCE(f.node_id, '')",
			"COALESCE(f.author_name, '')",
			"f.owner_id",
			"f.created_at",
		).
		From("feedback f").
		LeftJoin("design_files d ON d.id = f.design_file_id").
		Where(sq.Eq{"f.owner_id": ownerID, "f.is_processed": false}).
		OrderBy("f.created_at", "f.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}

	var items []domain.Feedback
	for rows.Next() {
		var item domain.Feedback
		if err := rows.Scan(
			&item.ID,
			&item.ExternalID,
			&item.Content,
			&item.DesignFileID,
			&item.DesignFile,
			&item.NodeID,
			&item.AuthorName,
			&item.OwnerID,
			&item.CreatedAt,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		items = append(items, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return items, nil
}

// MarkProcessed stores the triage outcome of a comment.
func (r *Repository) MarkProcessed(ctx context.Context, id, summary string, priority domain.Priority) error {
	res, err := r.sb.
		Update("feedback").
		Set("is_processed", true).
		Set("ai_summary", summary).
		Set("priority", string(priority)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update feedback %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("feedback %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// ExistingExternalIDs returns the subset of ids that were already imported.
func (r *Repository) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(ids) == 0 {
		return result, nil
	}

	builder := r.sb.Select("external_id").From("feedback")
	if r.driver == DriverPostgres {
		builder = builder.Where("external_id = ANY(?)", pq.StringArray(ids))
	} else {
		builder = builder.Where(sq.Eq{"external_id": ids})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build external id query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query external ids: %w", err)
	}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveDesignFile registers a design file once; later calls are no-ops.
func (r *Repository) SaveDesignFile(ctx context.Context, file domain.DesignFile) (domain.DesignFile, error) {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}

	_, err := r.sb.
		Insert("design_files").
		Columns("id", "file_key", "name", "owner_id", "created_at").
		Values(file.ID, file.FileKey, file.Name, file.OwnerID, r.now()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return domain.DesignFile{}, fmt.Errorf("insert design file: %w", err)
	}
	return file, nil
}

// AddFeedback stores one imported comment as unprocessed.
func (r *Repository) AddFeedback(ctx context.Context, item domain.Feedback) (domain.Feedback, error) {
	if strings.TrimSpace(item.OwnerID) == "" {
		return domain.Feedback{}, fmt.Errorf("feedback owner is required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := r.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.Processed = false

	if item.DesignFileID != "" {
		if _, err := r.SaveDesignFile(ctx, domain.DesignFile{ID: item.DesignFileID, Name: item.DesignFile, OwnerID: item.OwnerID}); err != nil {
			return domain.Feedback{}, err
		}
	}

	_, err := r.sb.
		Insert("feedback").
		Columns("id", "external_id", "content", "design_file_id", "node_id", "author_name", "owner_id", "is_processed", "created_at", "updated_at").
		Values(item.ID, nullable(item.ExternalID), item.Content, nullable(item.DesignFileID), nullable(item.NodeID), nullable(item.AuthorName), item.OwnerID, false, item.CreatedAt.UTC(), item.UpdatedAt).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}
	return item, nil
}

// CreateTask inserts a generated task and returns it with identity and timestamps.
func (r *Repository) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := r.now()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := r.sb.
		Insert("tasks").
		Columns("id", "title", "description", "priority", "status", "feedback_id", "assignee_id", "urgency", "category", "created_at", "updated_at").
		Values(task.ID, task.Title, task.Description, string(task.Priority), string(task.Status), nullable(task.FeedbackID), task.AssigneeID, task.Urgency, string(task.Category), task.CreatedAt, task.UpdatedAt).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks assigned to ownerID, newest first.
func (r *Repository) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	query, args, err := r.sb.
		Select("id", "title", "description", "priority", "status", "COALESCE(feedback_id, '')", "assignee_id", "urgency", "category", "created_at", "updated_at").
		From("tasks").
		Where(sq.Eq{"assignee_id": ownerID}).
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	var tasks []domain.Task
	for rows.Next() {
		var (
			task                       domain.Task
			priority, status, category string
		)
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &priority, &status, &task.FeedbackID, &task.AssigneeID, &task.Urgency, &category, &task.CreatedAt, &task.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.Priority = domain.Priority(priority)
		task.Status = domain.TaskStatus(status)
		task.Category = domain.Category(category)
		tasks = append(tasks, task)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return tasks, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
