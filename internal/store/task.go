package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tasktrack/apiserver/types"
)

// TaskFilter narrows a user's task list. The zero value selects all of
// the user's tasks in default order (newest first).
type TaskFilter struct {
	// Status restricts the list to a single status when non-nil.
	Status *types.Status

	// DueBefore keeps only tasks with a due date strictly before the
	// given day. Used by the overdue view together with Status.
	DueBefore *time.Time

	// Search is a case-insensitive substring match over title and
	// description.
	Search string

	// OrderBy is one of the orderable columns; Desc flips the direction.
	OrderBy string
	Desc    bool

	Offset int
	Limit  int
}

// Orderable columns for task lists. Anything else is rejected before the
// query is built.
var taskOrderColumns = map[string]bool{
	"due_date":   true,
	"priority":   true,
	"created_at": true,
	"updated_at": true,
}

// OrderableTaskField reports whether field is a permitted ordering column.
func OrderableTaskField(field string) bool {
	return taskOrderColumns[field]
}

// TaskRepository handles persistence for tasks. Every query is scoped to
// the owning user.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, category_id, title, description, priority, status, due_date, completed_at, created_at, updated_at`

func scanTask(scanner interface{ Scan(...any) error }) (types.Task, error) {
	var task types.Task
	err := scanner.Scan(
		&task.ID,
		&task.UserID,
		&task.CategoryID,
		&task.Title,
		&task.Description,
		&task.Priority,
		&task.Status,
		&task.DueDate,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	return task, err
}

func (r *TaskRepository) List(ctx context.Context, userID int, filter TaskFilter) ([]types.Task, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	where := []string{"user_id = $1"}
	args := []any{userID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, types.DateOf(*filter.DueBefore))
		where = append(where, fmt.Sprintf("due_date < $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
	}
	whereClause := strings.Join(where, " AND ")

	countQuery := `SELECT COUNT(1) FROM tasks WHERE ` + whereClause
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
		filter.Desc = true
	}
	if !taskOrderColumns[orderBy] {
		return nil, 0, fmt.Errorf("unorderable field: %s", orderBy)
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}

	args = append(args, filter.Offset, filter.Limit)
	listQuery := fmt.Sprintf(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE %s
		ORDER BY %s %s, id %s
		OFFSET $%d LIMIT $%d`,
		whereClause, orderBy, direction, direction, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0, filter.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *TaskRepository) Get(ctx context.Context, userID, id int) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND user_id = $2`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	const query = `
		INSERT INTO tasks (user_id, category_id, title, description, priority, status, due_date, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		task.UserID,
		task.CategoryID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.DueDate,
		task.CompletedAt,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID); err != nil {
		return types.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	task.UpdatedAt = time.Now()

	const query = `
		UPDATE tasks
		SET category_id = $1,
			title = $2,
			description = $3,
			priority = $4,
			status = $5,
			due_date = $6,
			completed_at = $7,
			updated_at = $8
		WHERE id = $9 AND user_id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		task.CategoryID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.DueDate,
		task.CompletedAt,
		task.UpdatedAt,
		task.ID,
		task.UserID,
	)
	if err != nil {
		return types.Task{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Task{}, err
	}
	if affected == 0 {
		return types.Task{}, ErrNotFound
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, userID, id int) error {
	const query = `DELETE FROM tasks WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
