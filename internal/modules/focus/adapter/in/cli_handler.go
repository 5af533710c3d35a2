package in

import (
	"context"

	focusdto "pledge/internal/modules/focus/dto"
	focusin "pledge/internal/modules/focus/port/in"
)

type CLIHandler struct {
	usecase focusin.Usecase
}

func NewCLIHandler(usecase focusin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Status(ctx context.Context) (focusdto.StatusOutput, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) Start(ctx context.Context, promiseID string, minutes int) (focusdto.StatusOutput, error) {
	return h.usecase.Start(ctx, focusdto.StartInput{PromiseID: promiseID, DurationMinutes: minutes})
}

func (h CLIHandler) Pause(ctx context.Context) (focusdto.StatusOutput, error) {
	return h.usecase.Pause(ctx)
}

func (h CLIHandler) Resume(ctx context.Context) (focusdto.StatusOutput, error) {
	return h.usecase.Resume(ctx)
}

func (h CLIHandler) Stop(ctx context.Context) (focusdto.StatusOutput, error) {
	return h.usecase.Stop(ctx)
}

func (h CLIHandler) Watch(ctx context.Context, onUpdate func(focusdto.StatusOutput)) (focusdto.StatusOutput, error) {
	return h.usecase.Watch(ctx, onUpdate)
}
