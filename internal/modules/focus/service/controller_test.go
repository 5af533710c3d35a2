package service_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"pledge/internal/modules/focus/domain"
	"pledge/internal/modules/focus/port/out/mocks"
	"pledge/internal/modules/focus/service"
	apperrors "pledge/internal/platform/errors"
	"pledge/internal/platform/scheduler"
)

var base = time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type entry struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

// manualScheduler runs nothing on its own; tests fire tickers and drain
// deferred tasks explicitly.
type manualScheduler struct {
	mu      sync.Mutex
	tickers []*entry
	pending []*entry
	delays  []time.Duration
}

func (m *manualScheduler) Every(interval time.Duration, fn func()) scheduler.Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &entry{delay: interval, fn: fn}
	m.tickers = append(m.tickers, e)
	return m.canceller(e)
}

func (m *manualScheduler) After(delay time.Duration, fn func()) scheduler.Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &entry{delay: delay, fn: fn}
	m.pending = append(m.pending, e)
	m.delays = append(m.delays, delay)
	return m.canceller(e)
}

func (m *manualScheduler) canceller(e *entry) scheduler.Cancel {
	return func() {
		m.mu.Lock()
		e.cancelled = true
		m.mu.Unlock()
	}
}

func (m *manualScheduler) ActiveTickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.tickers {
		if !e.cancelled {
			n++
		}
	}
	return n
}

func (m *manualScheduler) FireTickers() {
	m.mu.Lock()
	var fns []func()
	for _, e := range m.tickers {
		if !e.cancelled {
			fns = append(fns, e.fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RunPending drains deferred tasks in delay order until none remain.
func (m *manualScheduler) RunPending() {
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		sort.SliceStable(batch, func(i, j int) bool { return batch[i].delay < batch[j].delay })
		for _, e := range batch {
			m.mu.Lock()
			cancelled := e.cancelled
			m.mu.Unlock()
			if !cancelled {
				e.fn()
			}
		}
	}
}

type memoryCache struct {
	mu        sync.Mutex
	session   *domain.Session
	completed map[string]bool
}

func newMemoryCache() *memoryCache { return &memoryCache{completed: map[string]bool{}} }

func (m *memoryCache) SaveSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *memoryCache) LoadSession(context.Context) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return domain.Session{}, apperrors.ErrNoActiveSession
	}
	return *m.session, nil
}

func (m *memoryCache) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (m *memoryCache) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[id] = true
	return nil
}

func (m *memoryCache) IsCompleted(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[id], nil
}

type harness struct {
	ctrl     *service.Controller
	remote   *mocks.MockSessionService
	notifier *mocks.MockNotifier
	clock    *fakeClock
	sched    *manualScheduler
	cache    *memoryCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mc := gomock.NewController(t)
	h := &harness{
		remote:   mocks.NewMockSessionService(mc),
		notifier: mocks.NewMockNotifier(mc),
		clock:    &fakeClock{now: base},
		sched:    &manualScheduler{},
		cache:    newMemoryCache(),
	}
	h.ctrl = service.NewController(h.remote, h.notifier, h.cache, h.clock, h.sched, service.Options{})
	t.Cleanup(h.ctrl.Close)
	return h
}

func running(id string, minutes int, end time.Time) domain.Session {
	return domain.Session{ID: id, PromiseID: "p-1", Status: domain.StatusRunning, PlannedDurationMinutes: minutes, ExpectedEndUTC: &end}
}

func paused(id string, minutes int, remaining *int) domain.Session {
	return domain.Session{ID: id, PromiseID: "p-1", Status: domain.StatusPaused, PlannedDurationMinutes: minutes, RemainingSeconds: remaining}
}

func intPtr(v int) *int { return &v }

func (h *harness) load(t *testing.T, s domain.Session) domain.Snapshot {
	t.Helper()
	h.remote.EXPECT().Current(gomock.Any()).Return(&s, nil)
	snap, err := h.ctrl.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return snap
}

func (h *harness) allowNotifications() {
	h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionGranted, nil).AnyTimes()
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func TestTickDerivesRemainingFromDeadline(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	snap := h.load(t, running("s-1", 10, base.Add(10*time.Minute)))
	if snap.Status != domain.LocalRunning || snap.RemainingSeconds != 600 {
		t.Fatalf("unexpected snapshot after load: %+v", snap)
	}
	if h.sched.ActiveTickers() != 1 {
		t.Fatalf("expected one ticker, got %d", h.sched.ActiveTickers())
	}

	h.clock.Advance(90 * time.Second)
	h.sched.FireTickers()
	snap = h.ctrl.Snapshot()
	if snap.RemainingSeconds != 510 {
		t.Fatalf("expected 510s remaining, got %d", snap.RemainingSeconds)
	}
	if math.Abs(snap.ProgressFraction-0.15) > 1e-9 {
		t.Fatalf("expected progress 0.15, got %v", snap.ProgressFraction)
	}

	// a late tick still reads the deadline, not an elapsed counter
	h.clock.Advance(5 * time.Minute)
	h.ctrl.Tick()
	if got := h.ctrl.Snapshot().RemainingSeconds; got != 210 {
		t.Fatalf("expected 210s remaining, got %d", got)
	}
}

func TestOverlappingTicksCompleteOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionGranted, nil).Times(1)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	h.load(t, running("s-1", 25, base.Add(25*time.Minute)))

	h.clock.Advance(26 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.Tick()
		}()
	}
	wg.Wait()
	h.sched.RunPending()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one completion, got %d", got)
	}
	snap := h.ctrl.Snapshot()
	if snap.Status != domain.LocalFinished || snap.RemainingSeconds != 0 || snap.ProgressFraction != 1 {
		t.Fatalf("unexpected finished snapshot: %+v", snap)
	}
	if h.sched.ActiveTickers() != 0 {
		t.Fatalf("ticker must stop after completion")
	}
	if done, _ := h.cache.IsCompleted(context.Background(), "s-1"); !done {
		t.Fatalf("completion should be recorded in the cache")
	}
}

func TestNotificationPrecedesCompletionCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionGranted, nil)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n domain.Notification) error {
		if n.SessionID != "s-1" || n.Title == "" {
			t.Errorf("unexpected notification: %+v", n)
		}
		record("notify")
		return nil
	})
	h.ctrl.OnComplete(func(s domain.Session) { record("callback:" + s.ID) })
	h.load(t, running("s-1", 1, base.Add(time.Minute)))

	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	if len(order) != 0 {
		t.Fatalf("nothing should run before the deferred tasks, got %v", order)
	}
	h.sched.RunPending()

	if len(order) != 2 || order[0] != "notify" || order[1] != "callback:s-1" {
		t.Fatalf("unexpected order: %v", order)
	}
	found := false
	for _, d := range h.sched.delays {
		if d == service.DefaultCompletionDelay {
			found = true
		}
	}
	if !found {
		t.Fatalf("callback should be deferred by %v, delays=%v", service.DefaultCompletionDelay, h.sched.delays)
	}
}

func TestNotifierFailureStillRunsCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionGranted, nil)
	h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("plugin crashed"))
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	h.load(t, running("s-1", 1, base.Add(time.Minute)))

	h.clock.Advance(2 * time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()
	if calls.Load() != 1 {
		t.Fatalf("callback must run even when notification fails")
	}
}

func TestDeniedPermissionSkipsNotification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionDenied, nil)
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	h.load(t, running("s-1", 1, base.Add(time.Minute)))

	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()
	if calls.Load() != 1 {
		t.Fatalf("callback must run when notifications are denied")
	}
}

func TestPermissionRequestedAtMostOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionDefault, nil).Times(2)
	h.notifier.EXPECT().RequestPermission(gomock.Any()).Return(domain.PermissionDefault, nil).Times(1)

	h.load(t, running("s-1", 1, base.Add(time.Minute)))
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()

	h.load(t, running("s-2", 1, h.clock.Now().Add(time.Minute)))
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()
}

func TestGrantedAfterRequestNotifies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	gomock.InOrder(
		h.notifier.EXPECT().Permission(gomock.Any()).Return(domain.PermissionDefault, nil),
		h.notifier.EXPECT().RequestPermission(gomock.Any()).Return(domain.PermissionGranted, nil),
		h.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil),
	)
	h.load(t, running("s-1", 1, base.Add(time.Minute)))
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()
}

func TestStartResetsCompletionGuard(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.allowNotifications()
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })

	h.load(t, running("s-1", 1, base.Add(time.Minute)))
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()

	next := running("s-2", 5, h.clock.Now().Add(5*time.Minute))
	h.remote.EXPECT().Start(gomock.Any(), "p-1", 5).Return(next, nil)
	snap, err := h.ctrl.Start(context.Background(), "p-1", 5)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Status != domain.LocalRunning || snap.Session.ID != "s-2" {
		t.Fatalf("unexpected snapshot after start: %+v", snap)
	}
	h.clock.Advance(5 * time.Minute)
	h.sched.FireTickers()
	h.ctrl.Tick()
	h.sched.RunPending()
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected one completion per session, got %d", got)
	}
}

func TestLoadOfFiredSessionStaysFinished(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.allowNotifications()
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	s := running("s-1", 1, base.Add(time.Minute))
	h.load(t, s)
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	h.sched.RunPending()

	snap := h.load(t, s)
	h.sched.RunPending()
	if snap.Status != domain.LocalFinished {
		t.Fatalf("expected finished after reload, got %s", snap.Status)
	}
	if calls.Load() != 1 {
		t.Fatalf("reload must not fire completion again")
	}
	if h.sched.ActiveTickers() != 0 {
		t.Fatalf("finished session must not tick")
	}
}

func TestLoadServerFinishedDoesNotFire(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	end := base.Add(-time.Minute)
	snap := h.load(t, domain.Session{ID: "s-9", PromiseID: "p-1", Status: domain.StatusFinished, PlannedDurationMinutes: 25, ExpectedEndUTC: &end})
	h.sched.RunPending()
	if snap.Status != domain.LocalFinished {
		t.Fatalf("expected finished, got %s", snap.Status)
	}
	if calls.Load() != 0 {
		t.Fatalf("server-finished session must not fire the callback")
	}
}

func TestLoadPastDeadlineCompletesImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.allowNotifications()
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	snap := h.load(t, running("s-1", 25, base.Add(-time.Second)))
	h.sched.RunPending()
	if snap.Status != domain.LocalFinished || calls.Load() != 1 {
		t.Fatalf("expected immediate completion, got %+v calls=%d", snap, calls.Load())
	}
}

func TestLoadWithoutSessionClearsStaleState(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))

	h.remote.EXPECT().Current(gomock.Any()).Return(nil, nil)
	snap, err := h.ctrl.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Status != domain.LocalNoSession || snap.HasSession() {
		t.Fatalf("expected no session, got %+v", snap)
	}
	if h.sched.ActiveTickers() != 0 {
		t.Fatalf("ticker must stop when session disappears")
	}
}

func TestLoadFailureKeepsLastKnownState(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))
	h.remote.EXPECT().Current(gomock.Any()).Return(nil, &apperrors.RemoteError{Op: "GET /focus/current", Err: errors.New("dial tcp: refused")})
	snap, err := h.ctrl.Load(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if snap.Status != domain.LocalRunning || snap.Session.ID != "s-1" {
		t.Fatalf("last known state should survive a failed load: %+v", snap)
	}
}

func TestPauseFreezesAndResumeContinues(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))
	h.clock.Advance(4 * time.Minute)
	h.ctrl.Tick()

	h.remote.EXPECT().Pause(gomock.Any(), "s-1").Return(paused("s-1", 10, nil), nil)
	snap, err := h.ctrl.Pause(context.Background())
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if snap.Status != domain.LocalPaused || snap.RemainingSeconds != 360 {
		t.Fatalf("expected paused at 360s, got %+v", snap)
	}
	if h.sched.ActiveTickers() != 0 {
		t.Fatalf("paused session must not tick")
	}

	h.clock.Advance(30 * time.Minute)
	h.ctrl.Tick()
	if got := h.ctrl.Snapshot().RemainingSeconds; got != 360 {
		t.Fatalf("paused remaining must not move, got %d", got)
	}

	h.remote.EXPECT().Resume(gomock.Any(), "s-1").Return(running("s-1", 10, h.clock.Now().Add(360*time.Second)), nil)
	snap, err = h.ctrl.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.Status != domain.LocalRunning || snap.RemainingSeconds != 360 {
		t.Fatalf("expected running at 360s, got %+v", snap)
	}
	h.clock.Advance(time.Minute)
	h.sched.FireTickers()
	if got := h.ctrl.Snapshot().RemainingSeconds; got != 300 {
		t.Fatalf("expected 300s after one minute, got %d", got)
	}
}

func TestPausePrefersServerRemaining(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))
	h.remote.EXPECT().Pause(gomock.Any(), "s-1").Return(paused("s-1", 10, intPtr(420)), nil)
	snap, err := h.ctrl.Pause(context.Background())
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if snap.RemainingSeconds != 420 {
		t.Fatalf("expected server remaining 420, got %d", snap.RemainingSeconds)
	}
}

func TestPauseWhilePausedIsInvalidState(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	before := h.load(t, paused("s-1", 10, intPtr(300)))

	snap, err := h.ctrl.Pause(context.Background())
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if snap.Status != before.Status || snap.RemainingSeconds != before.RemainingSeconds {
		t.Fatalf("state changed: before=%+v after=%+v", before, snap)
	}
}

func TestActionsWithoutSessionAreRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for name, op := range map[string]func(context.Context) (domain.Snapshot, error){
		"pause":  h.ctrl.Pause,
		"resume": h.ctrl.Resume,
		"stop":   h.ctrl.Stop,
	} {
		_, err := op(context.Background())
		if !errors.Is(err, apperrors.ErrInvalidState) || !errors.Is(err, apperrors.ErrNoActiveSession) {
			t.Errorf("%s: expected invalid state / no session, got %v", name, err)
		}
	}
}

func TestStopClearsAndNeverCallsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))

	h.remote.EXPECT().Stop(gomock.Any(), "s-1").Return(nil)
	snap, err := h.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if snap.Status != domain.LocalNoSession || snap.HasSession() {
		t.Fatalf("expected cleared state, got %+v", snap)
	}
	h.clock.Advance(time.Hour)
	h.ctrl.Tick()
	h.sched.RunPending()
	if calls.Load() != 0 {
		t.Fatalf("stop must never run the completion callback")
	}
	if h.sched.ActiveTickers() != 0 {
		t.Fatalf("stop must cancel the ticker")
	}
	if _, err := h.cache.LoadSession(context.Background()); !errors.Is(err, apperrors.ErrNoActiveSession) {
		t.Fatalf("stop must clear the cache, got %v", err)
	}
}

func TestStopFailureKeepsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))
	h.remote.EXPECT().Stop(gomock.Any(), "s-1").Return(&apperrors.RemoteError{Op: "POST /focus/s-1/stop", Status: 500, Err: errors.New("boom")})
	snap, err := h.ctrl.Stop(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if snap.Status != domain.LocalRunning {
		t.Fatalf("failed stop must keep the session, got %s", snap.Status)
	}
}

func TestPauseResponseDiscardedAfterLocalFinish(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.allowNotifications()
	var calls atomic.Int32
	h.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	h.load(t, running("s-1", 1, base.Add(time.Minute)))

	h.remote.EXPECT().Pause(gomock.Any(), "s-1").DoAndReturn(func(context.Context, string) (domain.Session, error) {
		h.clock.Advance(2 * time.Minute)
		h.ctrl.Tick()
		return paused("s-1", 1, intPtr(10)), nil
	})
	snap, err := h.ctrl.Pause(context.Background())
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected stale response error, got %v", err)
	}
	if snap.Status != domain.LocalFinished {
		t.Fatalf("pause must not revive a finished session, got %s", snap.Status)
	}
	h.sched.RunPending()
	if calls.Load() != 1 {
		t.Fatalf("expected one completion, got %d", calls.Load())
	}
}

func TestResumeResponseDiscardedAfterSessionChange(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, paused("s-1", 10, intPtr(300)))

	other := running("s-2", 25, base.Add(25*time.Minute))
	h.remote.EXPECT().Resume(gomock.Any(), "s-1").DoAndReturn(func(context.Context, string) (domain.Session, error) {
		h.load(t, other)
		return running("s-1", 10, base.Add(5*time.Minute)), nil
	})
	snap, err := h.ctrl.Resume(context.Background())
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected stale response error, got %v", err)
	}
	if snap.Session == nil || snap.Session.ID != "s-2" {
		t.Fatalf("stale resume must not replace the new session: %+v", snap)
	}
}

func TestLoadResultDroppedAfterStart(t *testing.T) {
	t.Parallel()
	old := running("s-A", 10, base.Add(10*time.Minute))
	tests := []struct {
		name   string
		result *domain.Session
	}{
		{"no session", nil},
		{"previous session", &old},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			entered := make(chan struct{})
			release := make(chan struct{})
			h.remote.EXPECT().Current(gomock.Any()).DoAndReturn(func(context.Context) (*domain.Session, error) {
				close(entered)
				<-release
				return tt.result, nil
			})
			h.remote.EXPECT().Start(gomock.Any(), "p-1", 10).Return(running("s-B", 10, base.Add(10*time.Minute)), nil)

			type result struct {
				snap domain.Snapshot
				err  error
			}
			loaded := make(chan result, 1)
			go func() {
				snap, err := h.ctrl.Load(context.Background())
				loaded <- result{snap, err}
			}()
			<-entered
			if _, err := h.ctrl.Start(context.Background(), "p-1", 10); err != nil {
				t.Fatalf("start: %v", err)
			}
			close(release)
			res := <-loaded

			if res.err != nil {
				t.Fatalf("stale load should not fail: %v", res.err)
			}
			for _, snap := range []domain.Snapshot{res.snap, h.ctrl.Snapshot()} {
				if snap.Status != domain.LocalRunning || snap.Session == nil || snap.Session.ID != "s-B" {
					t.Fatalf("started session must survive the stale load: %+v", snap)
				}
			}
			if h.sched.ActiveTickers() != 1 {
				t.Fatalf("ticker must keep running, active=%d", h.sched.ActiveTickers())
			}
			cached, err := h.cache.LoadSession(context.Background())
			if err != nil || cached.ID != "s-B" {
				t.Fatalf("cache should hold s-B, got %+v (%v)", cached, err)
			}
		})
	}
}

func TestNewerLoadWinsOverOlderLoad(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.remote.EXPECT().Current(gomock.Any()).DoAndReturn(func(context.Context) (*domain.Session, error) {
		close(entered)
		<-release
		s := running("s-1", 10, base.Add(10*time.Minute))
		return &s, nil
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := h.ctrl.Load(context.Background()); err != nil {
			t.Errorf("older load: %v", err)
		}
	}()
	<-entered
	h.load(t, running("s-2", 25, base.Add(25*time.Minute)))
	close(release)
	<-done

	snap := h.ctrl.Snapshot()
	if snap.Session == nil || snap.Session.ID != "s-2" {
		t.Fatalf("newer load must win, got %+v", snap)
	}
}

func TestStopDoesNotCancelEarlierCompletion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.allowNotifications()
	var mu sync.Mutex
	calls := map[string]int{}
	h.ctrl.OnComplete(func(s domain.Session) {
		mu.Lock()
		calls[s.ID]++
		mu.Unlock()
	})
	h.load(t, running("s-A", 1, base.Add(time.Minute)))
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	if h.ctrl.Snapshot().Status != domain.LocalFinished {
		t.Fatalf("s-A should be finished")
	}

	h.remote.EXPECT().Start(gomock.Any(), "p-1", 25).Return(running("s-B", 25, base.Add(26*time.Minute)), nil)
	if _, err := h.ctrl.Start(context.Background(), "p-1", 25); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.remote.EXPECT().Stop(gomock.Any(), "s-B").Return(nil)
	if _, err := h.ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	h.sched.RunPending()

	mu.Lock()
	defer mu.Unlock()
	if calls["s-A"] != 1 || calls["s-B"] != 0 {
		t.Fatalf("expected one callback for s-A and none for s-B, got %v", calls)
	}
}

func TestZeroOptionsUseDefaultCompletionDelay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.allowNotifications()
	h.load(t, running("s-1", 1, base.Add(time.Minute)))
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()

	h.sched.mu.Lock()
	delays := append([]time.Duration(nil), h.sched.delays...)
	h.sched.mu.Unlock()
	if len(delays) != 2 || delays[0] != 0 || delays[1] != service.DefaultCompletionDelay {
		t.Fatalf("expected notification at 0 and callback at %v, got %v", service.DefaultCompletionDelay, delays)
	}
}

func TestSubscribersNeverSeeOlderSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))

	var mu sync.Mutex
	var seen []domain.LocalStatus
	entered := make(chan struct{})
	gate := make(chan struct{})
	first := true
	h.ctrl.Subscribe(func(s domain.Snapshot) {
		mu.Lock()
		block := first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-gate
		}
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	h.remote.EXPECT().Pause(gomock.Any(), "s-1").Return(paused("s-1", 10, intPtr(540)), nil)
	h.clock.Advance(time.Minute)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.ctrl.Tick()
	}()
	<-entered
	go func() {
		defer wg.Done()
		if _, err := h.ctrl.Pause(context.Background()); err != nil {
			t.Errorf("pause: %v", err)
		}
	}()
	deadline := time.Now().Add(5 * time.Second)
	for h.ctrl.Snapshot().Status != domain.LocalPaused {
		if time.Now().After(deadline) {
			t.Fatalf("pause never applied")
		}
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[len(seen)-1] != domain.LocalPaused {
		t.Fatalf("last delivery must be the paused state, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] == domain.LocalPaused && seen[i] == domain.LocalRunning {
			t.Fatalf("running delivered after paused: %v", seen)
		}
	}
}

func TestStartValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if _, err := h.ctrl.Start(context.Background(), "  ", 25); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty promise, got %v", err)
	}
	if _, err := h.ctrl.Start(context.Background(), "p-1", 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero minutes, got %v", err)
	}

	h.remote.EXPECT().Start(gomock.Any(), "p-1", 25).Return(domain.Session{}, &apperrors.RemoteError{Op: "POST /focus/start", Status: 409, Err: apperrors.ErrConflict})
	if _, err := h.ctrl.Start(context.Background(), "p-1", 25); !errors.Is(err, apperrors.ErrActiveSessionExists) {
		t.Fatalf("expected active session exists, got %v", err)
	}

	h.remote.EXPECT().Start(gomock.Any(), "p-1", 25).Return(domain.Session{}, nil)
	if _, err := h.ctrl.Start(context.Background(), "p-1", 25); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input when no session was created, got %v", err)
	}
	if snap := h.ctrl.Snapshot(); snap.Status != domain.LocalNoSession {
		t.Fatalf("failed start must not change state: %+v", snap)
	}
}

func TestRestoreUsesCacheAndCompletionMarks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_ = h.cache.SaveSession(context.Background(), running("s-1", 10, base.Add(5*time.Minute)))
	snap, err := h.ctrl.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if snap.Status != domain.LocalRunning || snap.RemainingSeconds != 300 {
		t.Fatalf("unexpected restored snapshot: %+v", snap)
	}

	h2 := newHarness(t)
	_ = h2.cache.SaveSession(context.Background(), running("s-1", 10, base.Add(-time.Minute)))
	_ = h2.cache.MarkCompleted(context.Background(), "s-1")
	var calls atomic.Int32
	h2.ctrl.OnComplete(func(domain.Session) { calls.Add(1) })
	snap, err = h2.ctrl.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	h2.sched.RunPending()
	if snap.Status != domain.LocalFinished || calls.Load() != 0 {
		t.Fatalf("completed session must restore as finished without firing: %+v calls=%d", snap, calls.Load())
	}
}

func TestSubscribeAndClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var seen []domain.LocalStatus
	unsubscribe := h.ctrl.Subscribe(func(s domain.Snapshot) { seen = append(seen, s.Status) })
	h.load(t, running("s-1", 10, base.Add(10*time.Minute)))
	if len(seen) == 0 || seen[len(seen)-1] != domain.LocalRunning {
		t.Fatalf("subscriber should see running, got %v", seen)
	}
	unsubscribe()
	count := len(seen)
	h.clock.Advance(time.Minute)
	h.ctrl.Tick()
	if len(seen) != count {
		t.Fatalf("unsubscribed listener still called")
	}

	h.ctrl.Close()
	if h.sched.ActiveTickers() != 0 {
		t.Fatalf("close must cancel the ticker")
	}
	h.clock.Advance(time.Hour)
	h.ctrl.Tick()
	if h.ctrl.Snapshot().Status != domain.LocalRunning {
		t.Fatalf("closed controller must ignore ticks")
	}
}
