package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tabtask/internal/domain"
)

const taskColumns = `id,tab_id,text,order_index,is_completed,completed_at,deleted_at,COALESCE(last_parent_title,''),created_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t         domain.Task
		id        int64
		tabID     sql.NullInt64
		completed sql.NullString
		deleted   sql.NullString
		created   string
	)
	if err := row.Scan(&id, &tabID, &t.Text, &t.OrderIndex, &t.IsCompleted, &completed, &deleted, &t.LastParentTitle, &created); err != nil {
		if err == sql.ErrNoRows {
			return t, ErrNotFound
		}
		return t, err
	}
	t.Ref = domain.Confirmed(id)
	if tabID.Valid {
		t.TabRef = domain.RefPtr(domain.Confirmed(tabID.Int64))
	}
	var err error
	if t.CompletedAt, err = parseNullTime(completed); err != nil {
		return t, err
	}
	if t.DeletedAt, err = parseNullTime(deleted); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	return t, nil
}

// TaskFilters scopes ListTasks.
type TaskFilters struct {
	TabID          *int64
	IncludeDeleted bool
	Limit          int
}

// ListTasks returns the owner's tasks by order key, then id.
func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, owner string, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"owner_id=?"}
	args := []any{owner}
	if f.TabID != nil {
		clauses = append(clauses, "tab_id=?")
		args = append(args, *f.TabID)
	}
	if !f.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY order_index, id`, taskColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, owner string, id int64) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id=? AND id=?`, owner, id))
}

// TaskByToken finds a task created with the given idempotency token.
func (r Repo) TaskByToken(ctx context.Context, tx *sql.Tx, owner, token string) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id=? AND client_token=?`, owner, token))
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, owner string, f domain.TaskFields) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(owner_id,tab_id,text,order_index,created_at,client_token) VALUES (?,?,?,?,?,?)`,
		owner, nullableIntPtr(f.TabID), f.Text, f.OrderIndex, formatTime(f.CreatedAt), nullable(f.ClientToken))
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, owner string, id int64, p domain.TaskPatch) error {
	var (
		fields []string
		args   []any
	)
	if p.Text != nil {
		fields = append(fields, "text=?")
		args = append(args, *p.Text)
	}
	if p.OrderIndex != nil {
		fields = append(fields, "order_index=?")
		args = append(args, *p.OrderIndex)
	}
	if p.Completion != nil {
		fields = append(fields, "is_completed=?", "completed_at=?")
		args = append(args, p.Completion.IsCompleted, nullableTime(p.Completion.CompletedAt))
	}
	if len(fields) == 0 {
		_, err := r.GetTask(ctx, tx, owner, id)
		return err
	}
	args = append(args, owner, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE owner_id=? AND id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) SoftDeleteTask(ctx context.Context, tx *sql.Tx, owner string, id int64, at time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET deleted_at=? WHERE owner_id=? AND id=?`, formatTime(at), owner, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) RestoreTask(ctx context.Context, tx *sql.Tx, owner string, id, tabID int64, orderIndex int) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET deleted_at=NULL, tab_id=?, order_index=? WHERE owner_id=? AND id=?`,
		tabID, orderIndex, owner, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// DetachTabTasks moves every task of a tab to the trash ahead of the tab's
// removal: live tasks get deletedAt, all of them lose their tab and keep its
// title. It returns the number of tasks touched.
func (r Repo) DetachTabTasks(ctx context.Context, tx *sql.Tx, owner string, tabID int64, title string, at time.Time) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks
SET deleted_at=COALESCE(deleted_at, ?), tab_id=NULL, last_parent_title=?
WHERE owner_id=? AND tab_id=?`, formatTime(at), nullable(title), owner, tabID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
