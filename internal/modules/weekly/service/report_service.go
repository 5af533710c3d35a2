package service

import (
	"context"
	"fmt"
	"time"

	"pledge/internal/modules/weekly/domain"
	weeklyout "pledge/internal/modules/weekly/port/out"
	"pledge/internal/platform/clock"
	"pledge/internal/platform/timefmt"
)

type ReportService struct {
	clock  clock.Clock
	loc    *time.Location
	source weeklyout.ReportSource
}

func NewReportService(clock clock.Clock, loc *time.Location, source weeklyout.ReportSource) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{clock: clock, loc: loc, source: source}
}

// Build fetches the report for the ISO week containing weekOf and aggregates
// it. A zero weekOf means the current week.
func (s *ReportService) Build(ctx context.Context, weekOf time.Time) (domain.WeekReport, error) {
	if weekOf.IsZero() {
		weekOf = s.clock.Now()
	}
	monday, _ := timefmt.WeekRange(weekOf.In(s.loc))
	report, err := s.source.Weekly(ctx, monday)
	if err != nil {
		return domain.WeekReport{}, fmt.Errorf("fetch weekly report: %w", err)
	}
	return domain.WeekReport{
		Label:  timefmt.ISOWeekLabel(monday),
		Report: report,
		Views:  domain.Aggregate(report),
	}, nil
}

func (s *ReportService) Now() time.Time {
	return s.clock.Now()
}
