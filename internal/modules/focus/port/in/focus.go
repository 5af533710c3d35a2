package in

import (
	"context"

	"pledge/internal/modules/focus/dto"
)

type Usecase interface {
	Status(ctx context.Context) (dto.StatusOutput, error)
	Start(ctx context.Context, input dto.StartInput) (dto.StatusOutput, error)
	Pause(ctx context.Context) (dto.StatusOutput, error)
	Resume(ctx context.Context) (dto.StatusOutput, error)
	Stop(ctx context.Context) (dto.StatusOutput, error)
	Watch(ctx context.Context, onUpdate func(dto.StatusOutput)) (dto.StatusOutput, error)
}
