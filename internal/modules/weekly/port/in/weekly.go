package in

import (
	"context"

	"pledge/internal/modules/weekly/dto"
)

type Usecase interface {
	Weekly(ctx context.Context, input dto.WeeklyInput) (dto.WeeklyOutput, error)
	History(ctx context.Context, limit int) ([]dto.HistoryEntry, error)
	Export(ctx context.Context, input dto.ExportInput) (dto.ExportOutput, error)
}
