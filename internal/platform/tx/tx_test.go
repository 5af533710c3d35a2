package tx_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"pledge/internal/platform/sqlitedb"
	"pledge/internal/platform/tx"
)

func TestWithinCommitsAndRollsBack(t *testing.T) {
	t.Parallel()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE items (name TEXT NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	mgr := tx.SQLManager{DB: db}

	err = mgr.Within(ctx, func(ctx context.Context) error {
		_, err := tx.From(ctx, db).ExecContext(ctx, `INSERT INTO items (name) VALUES ('kept')`)
		return err
	})
	if err != nil {
		t.Fatalf("within: %v", err)
	}

	boom := errors.New("boom")
	err = mgr.Within(ctx, func(ctx context.Context) error {
		if _, err := tx.From(ctx, db).ExecContext(ctx, `INSERT INTO items (name) VALUES ('dropped')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 committed row, got %d", count)
	}
}
