package out

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"pledge/internal/modules/focus/domain"
	focusout "pledge/internal/modules/focus/port/out"
	apperrors "pledge/internal/platform/errors"
	"pledge/internal/platform/httpapi"
)

type RESTSessionService struct {
	client *httpapi.Client
}

func NewRESTSessionService(client *httpapi.Client) focusout.SessionService {
	return &RESTSessionService{client: client}
}

type startRequest struct {
	PromiseID       string `json:"promise_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Current treats an empty body, a JSON null and a 404 as "no session".
func (s *RESTSessionService) Current(ctx context.Context) (*domain.Session, error) {
	var out *domain.Session
	if err := s.client.Do(ctx, http.MethodGet, "/focus/current", nil, &out); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if out == nil || out.ID == "" {
		return nil, nil
	}
	return out, nil
}

func (s *RESTSessionService) Start(ctx context.Context, promiseID string, durationMinutes int) (domain.Session, error) {
	var out domain.Session
	body := startRequest{PromiseID: promiseID, DurationMinutes: durationMinutes}
	if err := s.client.Do(ctx, http.MethodPost, "/focus/start", body, &out); err != nil {
		return domain.Session{}, err
	}
	return out, nil
}

func (s *RESTSessionService) Pause(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, "pause")
}

func (s *RESTSessionService) Resume(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, "resume")
}

func (s *RESTSessionService) Stop(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.Invalid("session id is required")
	}
	return s.client.Do(ctx, http.MethodPost, sessionPath(sessionID, "stop"), nil, nil)
}

func (s *RESTSessionService) transition(ctx context.Context, sessionID, action string) (domain.Session, error) {
	if sessionID == "" {
		return domain.Session{}, apperrors.Invalid("session id is required")
	}
	var out domain.Session
	if err := s.client.Do(ctx, http.MethodPost, sessionPath(sessionID, action), nil, &out); err != nil {
		return domain.Session{}, err
	}
	return out, nil
}

func sessionPath(sessionID, action string) string {
	return fmt.Sprintf("/focus/%s/%s", url.PathEscape(sessionID), action)
}
