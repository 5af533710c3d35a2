package out

//go:generate mockgen -destination=mocks/mock_weekly.go -package=mocks pledge/internal/modules/weekly/port/out ReportSource

import (
	"context"
	"time"

	"pledge/internal/modules/weekly/domain"
)

// ReportSource fetches the weekly report for the week starting at weekStart.
type ReportSource interface {
	Weekly(ctx context.Context, weekStart time.Time) (domain.Report, error)
}

type SnapshotProjector interface {
	Project(ctx context.Context, summary domain.WeekSummary) error
	History(ctx context.Context, limit int) ([]domain.WeekSummary, error)
}

// Exporter writes a report document into dir and returns the file path.
type Exporter interface {
	Format() string
	Export(ctx context.Context, report domain.WeekReport, dir string) (string, error)
}
