package in

import (
	"context"
	"time"

	weeklydto "pledge/internal/modules/weekly/dto"
	weeklyin "pledge/internal/modules/weekly/port/in"
)

type CLIHandler struct {
	usecase weeklyin.Usecase
}

func NewCLIHandler(usecase weeklyin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Weekly(ctx context.Context, weekOf time.Time) (weeklydto.WeeklyOutput, error) {
	return h.usecase.Weekly(ctx, weeklydto.WeeklyInput{WeekOf: weekOf})
}

func (h CLIHandler) History(ctx context.Context, limit int) ([]weeklydto.HistoryEntry, error) {
	return h.usecase.History(ctx, limit)
}

func (h CLIHandler) Export(ctx context.Context, weekOf time.Time, format, dir string) (weeklydto.ExportOutput, error) {
	return h.usecase.Export(ctx, weeklydto.ExportInput{WeekOf: weekOf, Format: format, Dir: dir})
}
