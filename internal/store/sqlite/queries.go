package sqlite

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// EntryRow mirrors the entries table.
type EntryRow struct {
	ID          string
	Book        string
	Date        string
	Category    string
	Amount      string
	Description string
	CreatedAt   string
}

const createEntry = `
INSERT INTO entries (id, book, date, category, amount, description, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateEntry(ctx context.Context, arg EntryRow) error {
	_, err := q.db.ExecContext(ctx, createEntry,
		arg.ID,
		arg.Book,
		arg.Date,
		arg.Category,
		arg.Amount,
		arg.Description,
		arg.CreatedAt,
	)
	return err
}

const listEntries = `
SELECT id, book, date, category, amount, description, created_at
FROM entries
WHERE book = ?
ORDER BY date, created_at, rowid
`

func (q *Queries) ListEntries(ctx context.Context, book string) ([]EntryRow, error) {
	rows, err := q.db.QueryContext(ctx, listEntries, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EntryRow
	for rows.Next() {
		var i EntryRow
		if err := rows.Scan(
			&i.ID,
			&i.Book,
			&i.Date,
			&i.Category,
			&i.Amount,
			&i.Description,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteEntry = `
DELETE FROM entries WHERE book = ? AND id = ?
`

func (q *Queries) DeleteEntry(ctx context.Context, book, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntry, book, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listCategories = `
SELECT name FROM categories ORDER BY sort_order, name
`

func (q *Queries) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
