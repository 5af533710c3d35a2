package usecase

import (
	"context"
	"strings"

	"github.com/hashicorp/go-hclog"

	"pledge/internal/modules/weekly/domain"
	weeklydto "pledge/internal/modules/weekly/dto"
	weeklyin "pledge/internal/modules/weekly/port/in"
	weeklyout "pledge/internal/modules/weekly/port/out"
	"pledge/internal/modules/weekly/service"
	apperrors "pledge/internal/platform/errors"
)

const defaultHistoryLimit = 8

type Interactor struct {
	svc       *service.ReportService
	projector weeklyout.SnapshotProjector
	exporters map[string]weeklyout.Exporter
	logger    hclog.Logger
}

func NewInteractor(svc *service.ReportService, projector weeklyout.SnapshotProjector, logger hclog.Logger, exporters ...weeklyout.Exporter) weeklyin.Usecase {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	byFormat := make(map[string]weeklyout.Exporter, len(exporters))
	for _, e := range exporters {
		byFormat[e.Format()] = e
	}
	return &Interactor{svc: svc, projector: projector, exporters: byFormat, logger: logger.Named("weekly")}
}

// Weekly fetches and aggregates a week. Recording the snapshot is best effort.
func (i *Interactor) Weekly(ctx context.Context, input weeklydto.WeeklyInput) (weeklydto.WeeklyOutput, error) {
	report, err := i.svc.Build(ctx, input.WeekOf)
	if err != nil {
		return weeklydto.WeeklyOutput{}, err
	}
	if i.projector != nil {
		summary := domain.Summarize(report.Report, report.Views, i.svc.Now())
		if err := i.projector.Project(ctx, summary); err != nil {
			i.logger.Warn("record weekly snapshot failed", "week_start", report.Report.WeekStart, "error", err)
		}
	}
	return toOutput(report), nil
}

func (i *Interactor) History(ctx context.Context, limit int) ([]weeklydto.HistoryEntry, error) {
	if i.projector == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	summaries, err := i.projector.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]weeklydto.HistoryEntry, 0, len(summaries))
	for _, s := range summaries {
		entry := weeklydto.HistoryEntry{WeekStart: s.WeekStart, WeekEnd: s.WeekEnd, CapturedAt: s.CapturedAt}
		for _, b := range s.Buckets {
			entry.Buckets = append(entry.Buckets, weeklydto.BucketTotals{Kind: string(b.Kind), Count: b.Count, Promised: b.Promised, Spent: b.Spent})
		}
		out = append(out, entry)
	}
	return out, nil
}

func (i *Interactor) Export(ctx context.Context, input weeklydto.ExportInput) (weeklydto.ExportOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	exporter, ok := i.exporters[format]
	if !ok {
		return weeklydto.ExportOutput{}, apperrors.Invalid("unsupported export format %q", input.Format)
	}
	dir := input.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	report, err := i.svc.Build(ctx, input.WeekOf)
	if err != nil {
		return weeklydto.ExportOutput{}, err
	}
	path, err := exporter.Export(ctx, report, dir)
	if err != nil {
		return weeklydto.ExportOutput{}, err
	}
	i.logger.Info("weekly report exported", "format", format, "path", path)
	return weeklydto.ExportOutput{Path: path, Format: format, Label: report.Label}, nil
}

func toOutput(wr domain.WeekReport) weeklydto.WeeklyOutput {
	out := weeklydto.WeeklyOutput{
		Label:        wr.Label,
		WeekStart:    wr.Report.WeekStart,
		WeekEnd:      wr.Report.WeekEnd,
		Promises:     toBucket(domain.KindPromise, wr.Views.Promises),
		Tasks:        toBucket(domain.KindTask, wr.Views.Tasks),
		Distractions: toBucket(domain.KindDistraction, wr.Views.Distractions),
	}
	for _, b := range []*weeklydto.BucketView{out.Promises, out.Tasks, out.Distractions} {
		if b != nil {
			out.TotalPromised += b.TotalPromised
			out.TotalSpent += b.TotalSpent
		}
	}
	return out
}

func toBucket(kind domain.Kind, view *domain.Report) *weeklydto.BucketView {
	if view == nil {
		return nil
	}
	bucket := &weeklydto.BucketView{Kind: string(kind), TotalPromised: view.TotalPromised, TotalSpent: view.TotalSpent}
	for _, id := range view.SortedIDs() {
		rec := view.Promises[id]
		bucket.Records = append(bucket.Records, weeklydto.RecordView{ID: id, Text: rec.Text, HoursPromised: rec.Promised(), HoursSpent: rec.Spent()})
	}
	return bucket
}
