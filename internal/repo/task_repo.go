package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tudu/server/internal/model"
	apperrors "github.com/tudu/server/pkg/errors"
)

// TaskRepo defines the interface for task store operations. All user-facing
// reads and writes are scoped by owner to enforce isolation; the scheduler
// paths (FindDue, MarkNotified) operate across owners.
type TaskRepo interface {
	Create(ctx context.Context, userID uuid.UUID, title string, description *string, dueAt time.Time) (model.Task, error)
	GetByID(ctx context.Context, userID, taskID uuid.UUID) (model.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error)
	Update(ctx context.Context, userID uuid.UUID, task model.Task) (model.Task, error)
	Delete(ctx context.Context, userID, taskID uuid.UUID) error
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)

	FindDue(ctx context.Context, now time.Time, limit int) ([]model.Task, error)
	MarkNotified(ctx context.Context, taskID uuid.UUID) error
}

type taskRepo struct {
	db *sql.DB
}

// NewTaskRepo creates a new TaskRepo instance
func NewTaskRepo(db *sql.DB) TaskRepo {
	return &taskRepo{db: db}
}

const taskColumns = `id, user_id, title, description, due_at, notified, completed, created_at`

// Create inserts a new task for the user
func (r *taskRepo) Create(ctx context.Context, userID uuid.UUID, title string, description *string, dueAt time.Time) (model.Task, error) {
	query := `
		INSERT INTO tasks (user_id, title, description, due_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + taskColumns
	return scanTask(r.db.QueryRowContext(ctx, query, userID, title, description, dueAt))
}

// GetByID retrieves a task by ID, scoped to its owner
func (r *taskRepo) GetByID(ctx context.Context, userID, taskID uuid.UUID) (model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	return scanTask(r.db.QueryRowContext(ctx, query, taskID, userID))
}

// ListByUser returns all of the user's tasks ordered by due time
func (r *taskRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY due_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Update overwrites the user-mutable fields of the task, scoped to its owner.
// The notified flag is never written here; only the scheduler advances it.
func (r *taskRepo) Update(ctx context.Context, userID uuid.UUID, task model.Task) (model.Task, error) {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, due_at = $5, completed = $6
		WHERE id = $1 AND user_id = $2
		RETURNING ` + taskColumns
	return scanTask(r.db.QueryRowContext(ctx, query,
		task.ID, userID, task.Title, task.Description, task.DueAt, task.Completed))
}

// Delete removes the task, scoped to its owner
func (r *taskRepo) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE id = $1 AND user_id = $2
	`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.ErrTaskNotFound
	}
	return nil
}

// CountByUser returns the number of tasks the user currently holds
// (completed tasks count until deleted).
func (r *taskRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks WHERE user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// FindDue returns up to limit due, unnotified, incomplete tasks ordered
// earliest-due first. The filter is monotonic (due_at <= now, not a window)
// so tasks that became due during scheduler downtime are still caught.
func (r *taskRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE due_at <= $1
		  AND notified = FALSE
		  AND completed = FALSE
		ORDER BY due_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find due tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// MarkNotified sets notified = TRUE for the task. One-way: there is no
// operation that resets it.
func (r *taskRepo) MarkNotified(ctx context.Context, taskID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET notified = TRUE WHERE id = $1
	`, taskID)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.ErrTaskNotFound
	}
	return nil
}

func scanTask(row *sql.Row) (model.Task, error) {
	var task model.Task
	var idStr, userIDStr string
	var description sql.NullString
	err := row.Scan(
		&idStr,
		&userIDStr,
		&task.Title,
		&description,
		&task.DueAt,
		&task.Notified,
		&task.Completed,
		&task.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, apperrors.ErrTaskNotFound
		}
		return model.Task{}, fmt.Errorf("query task: %w", err)
	}
	if task.ID, err = uuid.Parse(idStr); err != nil {
		return model.Task{}, fmt.Errorf("parse task ID: %w", err)
	}
	if task.UserID, err = uuid.Parse(userIDStr); err != nil {
		return model.Task{}, fmt.Errorf("parse task user ID: %w", err)
	}
	if description.Valid {
		task.Description = &description.String
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		var task model.Task
		var idStr, userIDStr string
		var description sql.NullString
		err := rows.Scan(
			&idStr,
			&userIDStr,
			&task.Title,
			&description,
			&task.DueAt,
			&task.Notified,
			&task.Completed,
			&task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if task.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse task ID: %w", err)
		}
		if task.UserID, err = uuid.Parse(userIDStr); err != nil {
			return nil, fmt.Errorf("parse task user ID: %w", err)
		}
		if description.Valid {
			task.Description = &description.String
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
