package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const createExpensesTable = `
CREATE TABLE IF NOT EXISTS expenses (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	date        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT 'Other',
	amount      REAL NOT NULL,
	description TEXT DEFAULT ''
)`

const createDateIndex = `CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date)`

// column is a column that older database files may lack. Adding it must be
// possible with ALTER TABLE, so it always carries a constant default.
type column struct {
	name       string
	definition string
}

var backfilledColumns = []column{
	{name: "category", definition: "category TEXT NOT NULL DEFAULT 'Other'"},
	{name: "description", definition: "description TEXT DEFAULT ''"},
}

// ensureSchema creates the expenses table when absent and adds any column
// missing from a file written by an older version. It runs on every open
// and never rewrites existing rows.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createExpensesTable); err != nil {
		return fmt.Errorf("create expenses table: %w", err)
	}

	existing, err := tableColumns(ctx, db, "expenses")
	if err != nil {
		return err
	}

	for _, c := range backfilledColumns {
		if existing[c.name] {
			continue
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE expenses ADD COLUMN "+c.definition); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
		slog.InfoContext(ctx, "Added missing column to expenses table", "column", c.name)
	}

	if _, err := db.ExecContext(ctx, createDateIndex); err != nil {
		return fmt.Errorf("create date index: %w", err)
	}
	return nil
}

// tableColumns returns the set of column names of table.
func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("read %s schema: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s schema: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
