package out

//go:generate mockgen -destination=mocks/mock_focus.go -package=mocks pledge/internal/modules/focus/port/out SessionService,Notifier,SessionCache

import (
	"context"

	"pledge/internal/modules/focus/domain"
)

// SessionService is the remote focus session API. Current returns nil when
// there is no session.
type SessionService interface {
	Current(ctx context.Context) (*domain.Session, error)
	Start(ctx context.Context, promiseID string, durationMinutes int) (domain.Session, error)
	Pause(ctx context.Context, sessionID string) (domain.Session, error)
	Resume(ctx context.Context, sessionID string) (domain.Session, error)
	Stop(ctx context.Context, sessionID string) error
}

type Notifier interface {
	Permission(ctx context.Context) (domain.Permission, error)
	RequestPermission(ctx context.Context) (domain.Permission, error)
	Notify(ctx context.Context, n domain.Notification) error
}

// SessionCache keeps the last known session across restarts and remembers
// which sessions already completed.
type SessionCache interface {
	SaveSession(ctx context.Context, session domain.Session) error
	LoadSession(ctx context.Context) (domain.Session, error)
	ClearSession(ctx context.Context) error
	MarkCompleted(ctx context.Context, sessionID string) error
	IsCompleted(ctx context.Context, sessionID string) (bool, error)
}
