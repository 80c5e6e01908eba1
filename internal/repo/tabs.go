package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tabtask/internal/domain"
)

const tabColumns = `id,title,order_index,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTab(row rowScanner) (domain.Tab, error) {
	var (
		t       domain.Tab
		id      int64
		created string
	)
	if err := row.Scan(&id, &t.Title, &t.OrderIndex, &created); err != nil {
		if err == sql.ErrNoRows {
			return t, ErrNotFound
		}
		return t, err
	}
	at, err := parseTime(created)
	if err != nil {
		return t, err
	}
	t.Ref = domain.Confirmed(id)
	t.CreatedAt = at
	return t, nil
}

// ListTabs returns the owner's tabs by order key, then id.
func (r Repo) ListTabs(ctx context.Context, tx *sql.Tx, owner string) ([]domain.Tab, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+tabColumns+` FROM tabs WHERE owner_id=? ORDER BY order_index, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tab
	for rows.Next() {
		t, err := scanTab(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTab(ctx context.Context, tx *sql.Tx, owner string, id int64) (domain.Tab, error) {
	return scanTab(r.q(tx).QueryRowContext(ctx, `SELECT `+tabColumns+` FROM tabs WHERE owner_id=? AND id=?`, owner, id))
}

// TabByToken finds a tab created with the given idempotency token.
func (r Repo) TabByToken(ctx context.Context, tx *sql.Tx, owner, token string) (domain.Tab, error) {
	return scanTab(r.q(tx).QueryRowContext(ctx, `SELECT `+tabColumns+` FROM tabs WHERE owner_id=? AND client_token=?`, owner, token))
}

func (r Repo) InsertTab(ctx context.Context, tx *sql.Tx, owner string, f domain.TabFields) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO tabs(owner_id,title,order_index,created_at,client_token) VALUES (?,?,?,?,?)`,
		owner, f.Title, f.OrderIndex, formatTime(f.CreatedAt), nullable(f.ClientToken))
	if err != nil {
		return 0, fmt.Errorf("insert tab: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTab(ctx context.Context, tx *sql.Tx, owner string, id int64, p domain.TabPatch) error {
	var (
		fields []string
		args   []any
	)
	if p.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *p.Title)
	}
	if p.OrderIndex != nil {
		fields = append(fields, "order_index=?")
		args = append(args, *p.OrderIndex)
	}
	if len(fields) == 0 {
		_, err := r.GetTab(ctx, tx, owner, id)
		return err
	}
	args = append(args, owner, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE tabs SET %s WHERE owner_id=? AND id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) DeleteTab(ctx context.Context, tx *sql.Tx, owner string, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tabs WHERE owner_id=? AND id=?`, owner, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}
