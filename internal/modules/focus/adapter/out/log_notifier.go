package out

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"pledge/internal/modules/focus/domain"
	focusout "pledge/internal/modules/focus/port/out"
)

// LogNotifier is the fallback when no notifier plugin is configured: it is
// always permitted and writes notifications to the log.
type LogNotifier struct {
	logger hclog.Logger
}

var _ focusout.Notifier = LogNotifier{}

func NewLogNotifier(logger hclog.Logger) LogNotifier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return LogNotifier{logger: logger.Named("notifier")}
}

func (LogNotifier) Permission(context.Context) (domain.Permission, error) {
	return domain.PermissionGranted, nil
}

func (LogNotifier) RequestPermission(context.Context) (domain.Permission, error) {
	return domain.PermissionGranted, nil
}

func (l LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info(n.Title, "session_id", n.SessionID, "body", n.Body)
	return nil
}
