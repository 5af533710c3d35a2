package out

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pledge/internal/modules/weekly/domain"
	weeklyout "pledge/internal/modules/weekly/port/out"
	"pledge/internal/platform/tx"
)

// SQLiteSnapshotProjector keeps the latest bucket totals per week. Re-fetching
// a week replaces its snapshot.
type SQLiteSnapshotProjector struct {
	db *sql.DB
	tx tx.Manager
}

var _ weeklyout.SnapshotProjector = (*SQLiteSnapshotProjector)(nil)

func NewSQLiteSnapshotProjector(ctx context.Context, db *sql.DB) (*SQLiteSnapshotProjector, error) {
	projector := &SQLiteSnapshotProjector{db: db, tx: tx.SQLManager{DB: db}}
	if err := projector.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return projector, nil
}

func (s *SQLiteSnapshotProjector) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS weekly_snapshots (
  week_start TEXT PRIMARY KEY,
  week_end TEXT NOT NULL,
  captured_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS weekly_buckets (
  week_start TEXT NOT NULL REFERENCES weekly_snapshots(week_start) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  kind TEXT NOT NULL,
  record_count INTEGER NOT NULL,
  promised REAL NOT NULL,
  spent REAL NOT NULL,
  PRIMARY KEY (week_start, kind)
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create weekly snapshot tables: %w", err)
	}
	return nil
}

func (s *SQLiteSnapshotProjector) Project(ctx context.Context, summary domain.WeekSummary) error {
	if summary.WeekStart == "" {
		return fmt.Errorf("project weekly snapshot: week start is required")
	}
	return s.tx.Within(ctx, func(ctx context.Context) error {
		exec := tx.From(ctx, s.db)
		const upsert = `
INSERT INTO weekly_snapshots (week_start, week_end, captured_at)
VALUES (?, ?, ?)
ON CONFLICT(week_start) DO UPDATE SET
  week_end=excluded.week_end,
  captured_at=excluded.captured_at;
`
		if _, err := exec.ExecContext(ctx, upsert, summary.WeekStart, summary.WeekEnd, summary.CapturedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("upsert weekly snapshot: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `DELETE FROM weekly_buckets WHERE week_start = ?`, summary.WeekStart); err != nil {
			return fmt.Errorf("reset weekly buckets: %w", err)
		}
		for pos, b := range summary.Buckets {
			_, err := exec.ExecContext(ctx,
				`INSERT INTO weekly_buckets (week_start, position, kind, record_count, promised, spent) VALUES (?, ?, ?, ?, ?, ?)`,
				summary.WeekStart, pos, string(b.Kind), b.Count, b.Promised, b.Spent,
			)
			if err != nil {
				return fmt.Errorf("insert weekly bucket %s: %w", b.Kind, err)
			}
		}
		return nil
	})
}

// History returns the most recent weeks first.
func (s *SQLiteSnapshotProjector) History(ctx context.Context, limit int) ([]domain.WeekSummary, error) {
	const query = `
SELECT s.week_start, s.week_end, s.captured_at, b.kind, b.record_count, b.promised, b.spent
FROM weekly_snapshots s
JOIN weekly_buckets b ON b.week_start = s.week_start
WHERE s.week_start IN (SELECT week_start FROM weekly_snapshots ORDER BY week_start DESC LIMIT ?)
ORDER BY s.week_start DESC, b.position ASC;
`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query weekly history: %w", err)
	}
	defer rows.Close()

	var out []domain.WeekSummary
	for rows.Next() {
		var (
			weekStart, weekEnd, capturedAt, kind string
			bucket                               domain.BucketTotals
		)
		if err := rows.Scan(&weekStart, &weekEnd, &capturedAt, &kind, &bucket.Count, &bucket.Promised, &bucket.Spent); err != nil {
			return nil, fmt.Errorf("scan weekly history: %w", err)
		}
		bucket.Kind = domain.Kind(kind)
		if len(out) == 0 || out[len(out)-1].WeekStart != weekStart {
			at, err := time.Parse(time.RFC3339, capturedAt)
			if err != nil {
				return nil, fmt.Errorf("parse captured_at %q: %w", capturedAt, err)
			}
			out = append(out, domain.WeekSummary{WeekStart: weekStart, WeekEnd: weekEnd, CapturedAt: at})
		}
		last := &out[len(out)-1]
		last.Buckets = append(last.Buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly history: %w", err)
	}
	return out, nil
}
