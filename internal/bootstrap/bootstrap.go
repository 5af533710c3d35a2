package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-hclog"

	focusinadapter "pledge/internal/modules/focus/adapter/in"
	focusoutadapter "pledge/internal/modules/focus/adapter/out"
	"pledge/internal/modules/focus/domain"
	focusout "pledge/internal/modules/focus/port/out"
	focusservice "pledge/internal/modules/focus/service"
	focususecase "pledge/internal/modules/focus/usecase"
	weeklyinadapter "pledge/internal/modules/weekly/adapter/in"
	weeklyoutadapter "pledge/internal/modules/weekly/adapter/out"
	weeklyin "pledge/internal/modules/weekly/port/in"
	weeklyservice "pledge/internal/modules/weekly/service"
	weeklyusecase "pledge/internal/modules/weekly/usecase"
	"pledge/internal/platform/clock"
	"pledge/internal/platform/config"
	"pledge/internal/platform/httpapi"
	"pledge/internal/platform/id"
	"pledge/internal/platform/logging"
	"pledge/internal/platform/scheduler"
	"pledge/internal/platform/sqlitedb"
	uiapp "pledge/internal/ui/app"
)

type App struct {
	FocusCLI  focusinadapter.CLIHandler
	WeeklyCLI weeklyinadapter.CLIHandler
	Logger    hclog.Logger

	controller *focusservice.Controller
	closers    []io.Closer
}

func New(cfg config.Config) (*App, error) {
	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("new logger: %w", err)
	}
	app := &App{Logger: logger, closers: []io.Closer{logCloser}}

	loc, err := cfg.Location()
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	db, err := sqlitedb.Open(cfg.DBPath)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.closers = append(app.closers, db)

	ctx := context.Background()
	clk := clock.SystemClock{}
	api := httpapi.New(ctx, cfg.APIBaseURL, cfg.Token, id.UUID{})

	cache, err := focusoutadapter.NewSQLiteSessionCache(ctx, db, clk)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("new session cache: %w", err)
	}
	notifier := newNotifier(cfg, logger, app)

	app.controller = focusservice.NewController(
		focusoutadapter.NewRESTSessionService(api),
		notifier,
		cache,
		clk,
		scheduler.Runtime{},
		focusservice.Options{
			TickInterval:    cfg.TickInterval,
			CompletionDelay: cfg.CompletionDelay,
			Logger:          logger,
		},
	)
	if _, err := app.controller.Restore(ctx); err != nil {
		logger.Warn("restore cached focus session failed", "error", err)
	}
	app.FocusCLI = focusinadapter.NewCLIHandler(focususecase.NewInteractor(app.controller))

	weeklyUC, err := newWeekly(ctx, db, clk, loc, api, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.WeeklyCLI = weeklyinadapter.NewCLIHandler(weeklyUC)
	return app, nil
}

func newNotifier(cfg config.Config, logger hclog.Logger, app *App) focusout.Notifier {
	if cfg.NotifierPlugin == "" {
		return focusoutadapter.NewLogNotifier(logger)
	}
	n := focusoutadapter.NewPluginNotifier(cfg.NotifierPlugin, logger)
	app.closers = append(app.closers, n)
	return n
}

func newWeekly(ctx context.Context, db *sql.DB, clk clock.Clock, loc *time.Location, api *httpapi.Client, logger hclog.Logger) (weeklyin.Usecase, error) {
	projector, err := weeklyoutadapter.NewSQLiteSnapshotProjector(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("new snapshot projector: %w", err)
	}
	svc := weeklyservice.NewReportService(clk, loc, weeklyoutadapter.NewRESTReportSource(api))
	return weeklyusecase.NewInteractor(svc, projector, logger,
		weeklyoutadapter.NewMarkdownExporter(),
		weeklyoutadapter.NewPDFExporter(),
	), nil
}

// OnFocusComplete registers the callback run once per completed focus session.
func (a *App) OnFocusComplete(fn func(domain.Session)) {
	a.controller.OnComplete(fn)
}

// Close stops the focus timers and releases the plugin host, the database and
// the log file, in that order.
func (a *App) Close() error {
	if a.controller != nil {
		a.controller.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func RunTUI(app *App) error {
	model := uiapp.NewModel(app.FocusCLI, app.WeeklyCLI)
	program := tea.NewProgram(model, tea.WithAltScreen())
	app.OnFocusComplete(func(s domain.Session) {
		program.Send(uiapp.FocusCompletedMsg{SessionID: s.ID})
	})
	_, err := program.Run()
	return err
}
