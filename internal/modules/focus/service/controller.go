package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"pledge/internal/modules/focus/domain"
	focusout "pledge/internal/modules/focus/port/out"
	"pledge/internal/platform/clock"
	apperrors "pledge/internal/platform/errors"
	"pledge/internal/platform/scheduler"
)

const (
	DefaultTickInterval    = time.Second
	DefaultCompletionDelay = 100 * time.Millisecond
	DefaultNotifyTimeout   = 5 * time.Second
)

type Options struct {
	TickInterval    time.Duration
	CompletionDelay time.Duration
	NotifyTimeout   time.Duration
	Logger          hclog.Logger
}

// completionGuard remembers whether completion already fired for a session.
type completionGuard struct {
	sessionID string
	fired     bool
}

type listener struct {
	id int
	fn func(domain.Snapshot)
}

// Controller owns the client view of the focus session. The remote service
// owns the session itself; the controller only derives remaining time from the
// server deadline and reacts once when it passes.
//
// No lock is held across remote, cache or notifier calls. Responses are
// applied only if the session they were issued for is still current, and a
// Load result is dropped once any later operation has changed the state.
type Controller struct {
	remote   focusout.SessionService
	notifier focusout.Notifier
	cache    focusout.SessionCache
	clock    clock.Clock
	sched    scheduler.Scheduler
	logger   hclog.Logger
	opts     Options

	// pubMu serializes deliveries; it is always taken before mu.
	pubMu sync.Mutex

	mu              sync.Mutex
	session         *domain.Session
	status          domain.LocalStatus
	remaining       int
	generation      uint64
	guard           completionGuard
	stopTick        scheduler.Cancel
	pending         map[string]scheduler.Cancel // completion callbacks by session id
	onComplete      func(domain.Session)
	listeners       []listener
	nextListener    int
	permissionAsked bool
	closed          bool
}

// NewController wires a controller. notifier and cache may be nil.
func NewController(remote focusout.SessionService, notifier focusout.Notifier, cache focusout.SessionCache, clk clock.Clock, sched scheduler.Scheduler, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.CompletionDelay <= 0 {
		opts.CompletionDelay = DefaultCompletionDelay
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Controller{
		remote:   remote,
		notifier: notifier,
		cache:    cache,
		clock:    clk,
		sched:    sched,
		logger:   logger.Named("focus"),
		opts:     opts,
		status:   domain.LocalNoSession,
		pending:  map[string]scheduler.Cancel{},
	}
}

// OnComplete registers the callback run once per session after its deadline
// passes. It runs after the notification attempt has begun.
func (c *Controller) OnComplete(fn func(domain.Session)) {
	c.mu.Lock()
	c.onComplete = fn
	c.mu.Unlock()
}

// Subscribe registers fn for every state change and returns an unsubscribe
// func. fn is called without the controller lock held, one delivery at a
// time, with the state as of delivery. fn may read Snapshot but must not call
// operations that change state.
func (c *Controller) Subscribe(fn func(domain.Snapshot)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Restore seeds state from the local cache without touching the network. A
// live session, or one loaded or started meanwhile, is never overwritten.
func (c *Controller) Restore(ctx context.Context) (domain.Snapshot, error) {
	if c.cache == nil {
		return c.Snapshot(), nil
	}
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	cached, err := c.cache.LoadSession(ctx)
	if errors.Is(err, apperrors.ErrNoActiveSession) {
		return c.Snapshot(), nil
	}
	if err != nil {
		return c.Snapshot(), fmt.Errorf("restore focus session: %w", err)
	}
	if err := cached.Validate(); err != nil {
		return c.Snapshot(), fmt.Errorf("restore focus session: %w", err)
	}
	completed := c.completedInCache(ctx, cached.ID)

	c.mu.Lock()
	if c.session != nil || c.generation != gen {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	c.applyLocked(cached, false, completed)
	status := c.status
	c.mu.Unlock()
	c.publish()
	c.logger.Debug("restored cached session", "session_id", cached.ID, "status", status)
	c.Tick()
	return c.Snapshot(), nil
}

// Load fetches the current session. When the server reports none, a stale
// running or paused local session is cleared; a finished one stays visible.
//
// The result is dropped, and the current snapshot returned, if another Load
// was issued or a Start, Pause, Resume or Stop was applied while it was in
// flight.
func (c *Controller) Load(ctx context.Context) (domain.Snapshot, error) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	current, err := c.remote.Current(ctx)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("load focus session: %w", err)
	}
	if current == nil {
		c.mu.Lock()
		if c.generation != gen {
			return c.dropStaleLoadLocked("")
		}
		expired := c.status == domain.LocalRunning || c.status == domain.LocalPaused
		if expired {
			c.clearLocked()
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if expired {
			c.publish()
			c.clearCache(ctx)
		}
		return snap, nil
	}
	if err := current.Validate(); err != nil {
		return c.Snapshot(), fmt.Errorf("load focus session: %w", err)
	}
	completed := c.completedInCache(ctx, current.ID)

	c.mu.Lock()
	if c.generation != gen {
		return c.dropStaleLoadLocked(current.ID)
	}
	c.applyLocked(*current, false, completed)
	c.mu.Unlock()
	c.publish()
	c.saveCache(ctx, *current)
	c.Tick()
	return c.Snapshot(), nil
}

func (c *Controller) Start(ctx context.Context, promiseID string, durationMinutes int) (domain.Snapshot, error) {
	promiseID = strings.TrimSpace(promiseID)
	if promiseID == "" {
		return c.Snapshot(), apperrors.Invalid("promise id is required")
	}
	if durationMinutes <= 0 {
		return c.Snapshot(), apperrors.Invalid("duration must be a positive number of minutes")
	}
	started, err := c.remote.Start(ctx, promiseID, durationMinutes)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			err = fmt.Errorf("%w: %w", apperrors.ErrActiveSessionExists, err)
		}
		return c.Snapshot(), fmt.Errorf("start focus session: %w", err)
	}
	if err := started.Validate(); err != nil {
		return c.Snapshot(), fmt.Errorf("start focus session: %w", apperrors.Invalid("no session could be created: %v", err))
	}

	c.mu.Lock()
	c.generation++
	c.applyLocked(started, true, false)
	c.mu.Unlock()
	c.logger.Info("focus session started", "session_id", started.ID, "promise_id", started.PromiseID, "minutes", started.PlannedDurationMinutes)
	c.publish()
	c.saveCache(ctx, started)
	c.Tick()
	return c.Snapshot(), nil
}

func (c *Controller) Pause(ctx context.Context) (domain.Snapshot, error) {
	id, err := c.currentID(domain.LocalRunning)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("pause focus session: %w", err)
	}
	paused, err := c.remote.Pause(ctx, id)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("pause focus session: %w", err)
	}
	return c.applyResponse(ctx, "pause", id, paused)
}

func (c *Controller) Resume(ctx context.Context) (domain.Snapshot, error) {
	id, err := c.currentID(domain.LocalPaused)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("resume focus session: %w", err)
	}
	resumed, err := c.remote.Resume(ctx, id)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("resume focus session: %w", err)
	}
	return c.applyResponse(ctx, "resume", id, resumed)
}

// Stop ends the session early. It never runs the completion callback.
func (c *Controller) Stop(ctx context.Context) (domain.Snapshot, error) {
	id, err := c.currentID(domain.LocalRunning, domain.LocalPaused)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("stop focus session: %w", err)
	}
	if err := c.remote.Stop(ctx, id); err != nil {
		return c.Snapshot(), fmt.Errorf("stop focus session: %w", err)
	}

	c.mu.Lock()
	current := c.session != nil && c.session.ID == id
	if current {
		c.generation++
		c.clearLocked()
		if cancel, ok := c.pending[id]; ok {
			cancel()
			delete(c.pending, id)
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if current {
		c.logger.Info("focus session stopped", "session_id", id)
		c.publish()
		c.clearCache(ctx)
	}
	return snap, nil
}

// Tick recomputes remaining time from the server deadline and completes the
// session once it reaches zero. Safe to call concurrently.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.closed || c.session == nil || c.status != domain.LocalRunning {
		c.mu.Unlock()
		return
	}
	c.remaining = c.session.RemainingAt(c.clock.Now())
	if c.remaining > 0 {
		c.mu.Unlock()
		c.publish()
		return
	}
	if c.guard.sessionID == c.session.ID && c.guard.fired {
		c.mu.Unlock()
		return
	}
	c.guard = completionGuard{sessionID: c.session.ID, fired: true}
	c.status = domain.LocalFinished
	c.stopTickingLocked()
	done := c.session.Clone()
	c.scheduleCompletionLocked(done)
	c.mu.Unlock()

	c.logger.Info("focus session complete", "session_id", done.ID, "promise_id", done.PromiseID)
	c.publish()
}

// Close cancels the ticker and every pending completion callback.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTickingLocked()
	for id, cancel := range c.pending {
		cancel()
		delete(c.pending, id)
	}
}

func (c *Controller) applyResponse(ctx context.Context, op, id string, s domain.Session) (domain.Snapshot, error) {
	if err := s.Validate(); err != nil {
		return c.Snapshot(), fmt.Errorf("%s focus session: %w", op, err)
	}
	c.mu.Lock()
	if c.session == nil || c.session.ID != id || c.status == domain.LocalFinished {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug("discarding stale response", "op", op, "session_id", id)
		return snap, fmt.Errorf("%s focus session: %w", op, apperrors.ErrInvalidState)
	}
	c.generation++
	c.applyLocked(s, false, false)
	c.mu.Unlock()
	c.publish()
	c.saveCache(ctx, s)
	c.Tick()
	return c.Snapshot(), nil
}

// dropStaleLoadLocked releases mu and returns the current snapshot.
func (c *Controller) dropStaleLoadLocked(id string) (domain.Snapshot, error) {
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.logger.Debug("discarding stale load", "session_id", id)
	return snap, nil
}

func (c *Controller) currentID(allowed ...domain.LocalStatus) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.status == domain.LocalNoSession {
		return "", fmt.Errorf("%w: %w", apperrors.ErrInvalidState, apperrors.ErrNoActiveSession)
	}
	for _, s := range allowed {
		if c.status == s {
			return c.session.ID, nil
		}
	}
	return "", fmt.Errorf("%w: session is %s", apperrors.ErrInvalidState, c.status)
}

// applyLocked replaces the local session. The guard survives only while the
// session id is unchanged.
func (c *Controller) applyLocked(s domain.Session, resetGuard, completed bool) {
	previous := c.session
	if resetGuard || c.guard.sessionID != s.ID {
		c.guard = completionGuard{sessionID: s.ID}
	}
	if completed {
		c.guard.fired = true
	}
	next := s.Clone()
	c.session = &next

	switch {
	case c.guard.fired || s.Status == domain.StatusFinished:
		c.guard.fired = true
		c.status = domain.LocalFinished
		c.remaining = 0
		c.stopTickingLocked()
	case s.Status == domain.StatusPaused:
		c.status = domain.LocalPaused
		switch {
		case s.RemainingSeconds != nil:
			c.remaining = max(0, *s.RemainingSeconds)
		case previous != nil && previous.ID == s.ID:
			// frozen at the last computed value
		default:
			c.remaining = s.PlannedSeconds()
		}
		c.stopTickingLocked()
	default:
		c.status = domain.LocalRunning
		c.remaining = s.RemainingAt(c.clock.Now())
		c.startTickingLocked()
	}
}

func (c *Controller) clearLocked() {
	c.stopTickingLocked()
	c.session = nil
	c.status = domain.LocalNoSession
	c.remaining = 0
}

func (c *Controller) startTickingLocked() {
	if c.closed || c.stopTick != nil {
		return
	}
	c.stopTick = c.sched.Every(c.opts.TickInterval, c.Tick)
}

func (c *Controller) stopTickingLocked() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
}

// scheduleCompletionLocked queues the notification attempt and the deferred
// callback. The callback waits until the notification task has begun and is
// tracked under the session id, so stopping another session leaves it alone.
func (c *Controller) scheduleCompletionLocked(done domain.Session) {
	begun := make(chan struct{})
	c.sched.After(0, func() {
		close(begun)
		c.notify(done)
		c.markCompleted(done.ID)
	})
	c.pending[done.ID] = c.sched.After(c.opts.CompletionDelay, func() {
		<-begun
		c.mu.Lock()
		cb := c.onComplete
		closed := c.closed
		delete(c.pending, done.ID)
		c.mu.Unlock()
		if closed || cb == nil {
			return
		}
		cb(done)
	})
}

func (c *Controller) notify(s domain.Session) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.NotifyTimeout)
	defer cancel()

	perm, err := c.notifier.Permission(ctx)
	if err != nil {
		c.logger.Warn("notification permission lookup failed", "session_id", s.ID, "error", err)
		return
	}
	if perm == domain.PermissionDefault {
		c.mu.Lock()
		asked := c.permissionAsked
		c.permissionAsked = true
		c.mu.Unlock()
		if asked {
			c.logger.Debug("notification permission already requested", "session_id", s.ID)
			return
		}
		perm, err = c.notifier.RequestPermission(ctx)
		if err != nil {
			c.logger.Warn("notification permission request failed", "session_id", s.ID, "error", err)
			return
		}
	}
	if perm != domain.PermissionGranted {
		c.logger.Debug("notifications not permitted", "session_id", s.ID, "permission", perm)
		return
	}
	n := domain.Notification{
		SessionID: s.ID,
		Title:     "Focus session complete",
		Body:      fmt.Sprintf("Your %d-minute focus session is done.", s.PlannedDurationMinutes),
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		c.logger.Warn("notification failed", "session_id", s.ID, "error", err)
	}
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{Status: c.status, RemainingSeconds: c.remaining}
	if c.session != nil {
		s := c.session.Clone()
		snap.Session = &s
		snap.ProgressFraction = domain.ProgressFraction(c.remaining, s.PlannedSeconds())
	}
	return snap
}

// publish delivers the state as of delivery time. Deliveries never overlap,
// so a listener cannot see an older snapshot after a newer one.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	snap := c.snapshotLocked()
	ls := make([]listener, len(c.listeners))
	copy(ls, c.listeners)
	c.mu.Unlock()
	for _, l := range ls {
		l.fn(snap)
	}
}

func (c *Controller) saveCache(ctx context.Context, s domain.Session) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveSession(ctx, s); err != nil {
		c.logger.Warn("cache session failed", "session_id", s.ID, "error", err)
	}
}

func (c *Controller) clearCache(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.ClearSession(ctx); err != nil {
		c.logger.Warn("clear cached session failed", "error", err)
	}
}

func (c *Controller) markCompleted(id string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.MarkCompleted(context.Background(), id); err != nil {
		c.logger.Warn("mark session completed failed", "session_id", id, "error", err)
	}
}

func (c *Controller) completedInCache(ctx context.Context, id string) bool {
	if c.cache == nil {
		return false
	}
	done, err := c.cache.IsCompleted(ctx, id)
	if err != nil {
		c.logger.Warn("completion lookup failed", "session_id", id, "error", err)
		return false
	}
	return done
}
