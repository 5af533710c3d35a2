package out

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"pledge/internal/modules/weekly/domain"
	weeklyout "pledge/internal/modules/weekly/port/out"
	"pledge/internal/platform/httpapi"
)

type RESTReportSource struct {
	client *httpapi.Client
}

func NewRESTReportSource(client *httpapi.Client) weeklyout.ReportSource {
	return &RESTReportSource{client: client}
}

func (s *RESTReportSource) Weekly(ctx context.Context, weekStart time.Time) (domain.Report, error) {
	q := url.Values{}
	q.Set("week_start", weekStart.Format(time.DateOnly))
	var out domain.Report
	if err := s.client.Do(ctx, http.MethodGet, "/reports/weekly?"+q.Encode(), nil, &out); err != nil {
		return domain.Report{}, err
	}
	if out.Promises == nil {
		out.Promises = map[string]domain.Record{}
	}
	return out, nil
}
