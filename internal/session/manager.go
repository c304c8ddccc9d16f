// Package session runs generation requests as persisted processing sessions
// and tracks which session the operator is working on.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wbcard-cli/internal/merge"
	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/reconcile"
	"github.com/sells-group/wbcard-cli/internal/store"
)

// CancelledMessage is stored as the error of a run cancelled before any
// result arrived.
const CancelledMessage = "cancelled"

// ErrEmptyArticle is returned when the article is blank after trimming.
var ErrEmptyArticle = eris.New("session: article is required")

// StreamFunc opens the generation event stream for an article.
type StreamFunc func(ctx context.Context, article string) (io.ReadCloser, error)

// Option configures a Manager.
type Option func(*Manager)

// WithReconcileOptions passes options to every reconciler the manager
// creates, such as the idle timeout and read chunk size.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(m *Manager) {
		m.recOpts = append(m.recOpts, opts...)
	}
}

// WithClock overrides the clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager creates, runs and selects processing sessions.
type Manager struct {
	store   store.SessionStore
	open    StreamFunc
	recOpts []reconcile.Option
	now     func() time.Time

	mu      sync.Mutex
	running map[string]*reconcile.Reconciler
}

// NewManager creates a Manager over st that opens streams with open.
func NewManager(st store.SessionStore, open StreamFunc, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		open:    open,
		now:     time.Now,
		running: make(map[string]*reconcile.Reconciler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs a generation for article as a new session and blocks until the
// stream ends. The session is persisted before the stream opens and again
// with its final state. runOpts apply to this run only, typically an
// observer for live output.
func (m *Manager) Start(ctx context.Context, article string, runOpts ...reconcile.Option) (*model.Session, error) {
	article = model.NormalizeArticle(article)
	if article == "" {
		return nil, ErrEmptyArticle
	}
	return m.StartWith(ctx, article, func(ctx context.Context) (io.ReadCloser, error) {
		return m.open(ctx, article)
	}, runOpts...)
}

// StartWith runs a session against an arbitrary stream, used for server-side
// batches whose stream is not keyed by one article.
func (m *Manager) StartWith(ctx context.Context, article string, open reconcile.Opener, runOpts ...reconcile.Option) (*model.Session, error) {
	article = model.NormalizeArticle(article)
	if article == "" {
		return nil, ErrEmptyArticle
	}

	sess := &model.Session{
		ID:         uuid.New().String(),
		Article:    article,
		StartedAt:  m.now().UTC(),
		Status:     model.SessionProcessing,
		LogEntries: []model.LogEntry{},
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "session: create")
	}

	opts := append(append([]reconcile.Option{}, m.recOpts...), runOpts...)
	rec := reconcile.New(opts...)
	m.track(sess.ID, rec)
	defer m.untrack(sess.ID)

	log := zap.L().With(zap.String("session", sess.ID), zap.String("article", article))
	log.Info("session: run started")

	res, runErr := rec.Run(ctx, open)
	finalize(sess, res, runErr, rec.Snapshot())

	// The run context may already be cancelled; the final state is still
	// saved, but a session cleared while running stays deleted.
	switch err := m.store.UpdateSession(context.WithoutCancel(ctx), sess); {
	case eris.Is(err, store.ErrNotFound):
		log.Info("session: cleared while running, final state dropped")
	case err != nil:
		return sess, eris.Wrap(err, "session: save final state")
	}

	log.Info("session: run finished",
		zap.String("status", string(sess.Status)),
		zap.Int("log_entries", len(sess.LogEntries)),
	)
	if runErr != nil {
		return sess, eris.Wrapf(runErr, "session: run %s", article)
	}
	return sess, nil
}

// finalize copies the reconciler's final state into the session.
func finalize(sess *model.Session, res *model.ResultRecord, runErr error, snap reconcile.State) {
	sess.LogEntries = snap.Logs
	if sess.LogEntries == nil {
		sess.LogEntries = []model.LogEntry{}
	}
	sess.Result = snap.Result
	if res != nil {
		sess.Result = res
	}
	sess.Error = snap.Error
	if sess.Result != nil {
		sess.ValidationScore = sess.Result.ValidationScore
	}

	switch {
	case runErr != nil:
		sess.Status = model.SessionError
		var se *reconcile.ServerError
		switch {
		case errors.As(runErr, &se):
			sess.Error = se.Message
		case sess.Error == "":
			sess.Error = runErr.Error()
		}
	case sess.Result != nil:
		sess.Status = model.SessionDone
	default:
		sess.Status = model.SessionError
		sess.Error = CancelledMessage
	}
}

func (m *Manager) track(id string, rec *reconcile.Reconciler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[id] = rec
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, id)
}

// Cancel aborts the run of session id. It reports whether a run was in
// flight.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	rec, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		rec.Cancel()
	}
	return ok
}

// Running returns a snapshot of an in-flight run.
func (m *Manager) Running(id string) (reconcile.State, bool) {
	m.mu.Lock()
	rec, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return reconcile.State{}, false
	}
	return rec.Snapshot(), true
}

// Activate makes id the active session and returns it with a fresh
// selection that picks the new side of every field.
func (m *Manager) Activate(ctx context.Context, id string) (*model.Session, merge.Selection, error) {
	if err := m.store.SetActiveSession(ctx, id); err != nil {
		return nil, merge.Selection{}, eris.Wrapf(err, "session: activate %s", id)
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, merge.Selection{}, eris.Wrapf(err, "session: activate %s", id)
	}
	return sess, merge.NewSelection(sess.Result), nil
}

// Active returns the active session, or nil when none is selected.
func (m *Manager) Active(ctx context.Context) (*model.Session, error) {
	sess, err := m.store.ActiveSession(ctx)
	return sess, eris.Wrap(err, "session: active")
}

// Get returns one session.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	return sess, eris.Wrapf(err, "session: get %s", id)
}

// Resolve returns the session with the given id, or the active session when
// id is empty.
func (m *Manager) Resolve(ctx context.Context, id string) (*model.Session, error) {
	if id != "" {
		return m.Get(ctx, id)
	}
	sess, err := m.Active(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, eris.Wrap(store.ErrNotFound, "session: no active session")
	}
	return sess, nil
}

// List returns sessions newest first.
func (m *Manager) List(ctx context.Context, filter store.SessionFilter) ([]model.Session, error) {
	sessions, err := m.store.ListSessions(ctx, filter)
	return sessions, eris.Wrap(err, "session: list")
}

// ClearAll cancels every run in flight and deletes every session.
func (m *Manager) ClearAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	for _, rec := range m.running {
		rec.Cancel()
	}
	m.mu.Unlock()

	n, err := m.store.DeleteAllSessions(ctx)
	return n, eris.Wrap(err, "session: clear all")
}

// Final merges the session's result with sel into the exportable record.
func (m *Manager) Final(ctx context.Context, id string, sel merge.Selection) (model.FinalRecord, error) {
	sess, err := m.Resolve(ctx, id)
	if err != nil {
		return model.FinalRecord{}, err
	}
	if sess.Result == nil {
		return model.FinalRecord{}, eris.Errorf("session: %s has no result", sess.ID)
	}
	return merge.Merge(sess.Result, sel, sess.Article), nil
}
