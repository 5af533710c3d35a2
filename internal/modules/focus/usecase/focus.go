package usecase

import (
	"context"
	"sync"

	"pledge/internal/modules/focus/domain"
	focusdto "pledge/internal/modules/focus/dto"
	focusin "pledge/internal/modules/focus/port/in"
	"pledge/internal/modules/focus/service"
	apperrors "pledge/internal/platform/errors"
)

type Interactor struct {
	ctrl *service.Controller

	mu     sync.Mutex
	loaded bool
}

func NewInteractor(ctrl *service.Controller) focusin.Usecase {
	return &Interactor{ctrl: ctrl}
}

// Status always refetches the current session.
func (i *Interactor) Status(ctx context.Context) (focusdto.StatusOutput, error) {
	snap, err := i.ctrl.Load(ctx)
	if err == nil {
		i.markLoaded()
	}
	return toOutput(snap, err), err
}

func (i *Interactor) Start(ctx context.Context, input focusdto.StartInput) (focusdto.StatusOutput, error) {
	snap, err := i.ctrl.Start(ctx, input.PromiseID, input.DurationMinutes)
	if err == nil {
		i.markLoaded()
	}
	return toOutput(snap, err), err
}

func (i *Interactor) Pause(ctx context.Context) (focusdto.StatusOutput, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return toOutput(i.ctrl.Snapshot(), err), err
	}
	snap, err := i.ctrl.Pause(ctx)
	return toOutput(snap, err), err
}

func (i *Interactor) Resume(ctx context.Context) (focusdto.StatusOutput, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return toOutput(i.ctrl.Snapshot(), err), err
	}
	snap, err := i.ctrl.Resume(ctx)
	return toOutput(snap, err), err
}

func (i *Interactor) Stop(ctx context.Context) (focusdto.StatusOutput, error) {
	if err := i.ensureLoaded(ctx); err != nil {
		return toOutput(i.ctrl.Snapshot(), err), err
	}
	snap, err := i.ctrl.Stop(ctx)
	return toOutput(snap, err), err
}

// Watch streams updates until the session leaves the running and paused
// states or ctx is done.
func (i *Interactor) Watch(ctx context.Context, onUpdate func(focusdto.StatusOutput)) (focusdto.StatusOutput, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := i.ctrl.Subscribe(func(domain.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	snap, err := i.ctrl.Load(ctx)
	if err != nil {
		return toOutput(snap, err), err
	}
	i.markLoaded()
	for {
		if onUpdate != nil {
			onUpdate(toOutput(snap, nil))
		}
		if snap.Status != domain.LocalRunning && snap.Status != domain.LocalPaused {
			return toOutput(snap, nil), nil
		}
		select {
		case <-ctx.Done():
			return toOutput(i.ctrl.Snapshot(), nil), ctx.Err()
		case <-changed:
			snap = i.ctrl.Snapshot()
		}
	}
}

func (i *Interactor) ensureLoaded(ctx context.Context) error {
	i.mu.Lock()
	loaded := i.loaded
	i.mu.Unlock()
	if loaded {
		return nil
	}
	if _, err := i.ctrl.Load(ctx); err != nil {
		return err
	}
	i.markLoaded()
	return nil
}

func (i *Interactor) markLoaded() {
	i.mu.Lock()
	i.loaded = true
	i.mu.Unlock()
}

func toOutput(snap domain.Snapshot, err error) focusdto.StatusOutput {
	out := focusdto.StatusOutput{
		Status:           string(snap.Status),
		RemainingSeconds: snap.RemainingSeconds,
		Progress:         snap.ProgressFraction,
		Error:            apperrors.Message(err),
	}
	if snap.Session != nil {
		out.SessionID = snap.Session.ID
		out.PromiseID = snap.Session.PromiseID
		out.PlannedMinutes = snap.Session.PlannedDurationMinutes
		out.ExpectedEnd = snap.Session.ExpectedEndUTC
	}
	return out
}
