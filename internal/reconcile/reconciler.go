// Package reconcile consumes the generation event stream and folds it into
// the log, result and error state shown to the operator.
package reconcile

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wbcard-cli/internal/model"
	"github.com/sells-group/wbcard-cli/internal/sse"
)

var (
	// ErrNoResult is returned when the stream ends normally without any
	// result-shaped event having been accepted.
	ErrNoResult = eris.New("empty response from server (no final result)")

	// ErrIdleTimeout is returned when no bytes arrive within the idle timeout.
	ErrIdleTimeout = eris.New("stream idle timeout")

	errCancelled  = errors.New("run cancelled")
	errSuperseded = errors.New("run superseded")
)

const defaultChunkSize = 4096

// Opener opens the event stream for one run. The returned body is closed by
// the reconciler.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// ServerError carries the message of an error event when the stream ended
// without a result.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Observer receives every state change applied by the current run.
type Observer interface {
	OnLog(entry model.LogEntry)
	OnResult(result *model.ResultRecord)
	OnError(message string)
}

// State is a point-in-time copy of the reconciler state.
type State struct {
	Processing bool
	Generation uint64
	Logs       []model.LogEntry
	Result     *model.ResultRecord
	Error      string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) {
		r.observer = o
	}
}

// WithIdleTimeout fails a run when the stream stays silent for d. Zero
// disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		r.idleTimeout = d
	}
}

// WithChunkSize sets the read buffer size.
func WithChunkSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithClock overrides the clock used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler owns the state of one stream consumer. Only one run is live at
// a time: starting a new run cancels the previous one, and every state write
// is checked against the run's generation so a superseded run can never
// touch the state of its successor.
type Reconciler struct {
	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelCauseFunc
	processing bool
	logs       []model.LogEntry
	result     *model.ResultRecord
	errMsg     string

	observer    Observer
	idleTimeout time.Duration
	chunkSize   int
	now         func() time.Time
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		chunkSize: defaultChunkSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	logs := make([]model.LogEntry, len(r.logs))
	copy(logs, r.logs)
	return State{
		Processing: r.processing,
		Generation: r.gen,
		Logs:       logs,
		Result:     r.result,
		Error:      r.errMsg,
	}
}

// Processing reports whether a run is in flight.
func (r *Reconciler) Processing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processing
}

// Cancel aborts the in-flight run, if any. The run returns without error and
// the state it already applied is kept.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.processing = false
	r.mu.Unlock()
	if cancel != nil {
		cancel(errCancelled)
	}
}

// Reset clears logs, result and error. It does not affect a run in flight
// other than by wiping what it has applied so far.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = nil
	r.result = nil
	r.errMsg = ""
}

// Run starts a new run, superseding any run in flight, and blocks until the
// stream ends. It returns the last accepted result on success. A cancelled or
// superseded run returns (nil, nil).
func (r *Reconciler) Run(ctx context.Context, open Opener) (*model.ResultRecord, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel(errSuperseded)
	}
	r.gen++
	gen := r.gen
	r.cancel = cancel
	r.processing = true
	r.logs = nil
	r.result = nil
	r.errMsg = ""
	r.mu.Unlock()

	log := zap.L().With(zap.Uint64("generation", gen))
	defer r.finish(gen)

	// The idle timer also covers a backend that never answers with headers.
	var idle *time.Timer
	if r.idleTimeout > 0 {
		idle = time.AfterFunc(r.idleTimeout, func() { cancel(ErrIdleTimeout) })
		defer idle.Stop()
	}

	body, err := open(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			log.Debug("reconcile: run interrupted before stream opened")
			return r.interrupted(runCtx, gen)
		}
		r.setError(runCtx, gen, err.Error())
		return nil, eris.Wrap(err, "reconcile: open stream")
	}
	stop := context.AfterFunc(runCtx, func() { _ = body.Close() })
	defer func() {
		stop()
		_ = body.Close()
	}()

	dec := sse.NewDecoder()
	buf := make([]byte, r.chunkSize)
	var last *model.ResultRecord
	var serverErr string

	for {
		n, readErr := body.Read(buf)
		// Bytes read after an abort are dropped.
		if runCtx.Err() != nil {
			log.Debug("reconcile: run interrupted", zap.Int("dropped_bytes", n))
			return r.interrupted(runCtx, gen)
		}
		if idle != nil {
			idle.Reset(r.idleTimeout)
		}
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				res, msg, ok := r.applyFrame(runCtx, gen, frame)
				if !ok {
					log.Debug("reconcile: stale run stopped")
					return r.interrupted(runCtx, gen)
				}
				if res != nil {
					last = res
				}
				if msg != "" {
					serverErr = msg
				}
			}
		}
		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			if dec.Pending() > 0 {
				log.Debug("reconcile: discarding unterminated event", zap.Int("bytes", dec.Pending()))
			}
			break
		}
		r.setError(runCtx, gen, readErr.Error())
		return nil, eris.Wrap(readErr, "reconcile: read stream")
	}

	if last == nil {
		if serverErr != "" {
			return nil, &ServerError{Message: serverErr}
		}
		r.setError(runCtx, gen, ErrNoResult.Error())
		return nil, ErrNoResult
	}
	return last, nil
}

// interrupted ends a run whose context is done or whose generation is stale.
// Only the idle timeout is reported; cancellation by the caller, Cancel or a
// newer run is silent.
func (r *Reconciler) interrupted(runCtx context.Context, gen uint64) (*model.ResultRecord, error) {
	if errors.Is(context.Cause(runCtx), ErrIdleTimeout) {
		r.setError(context.WithoutCancel(runCtx), gen, ErrIdleTimeout.Error())
		return nil, ErrIdleTimeout
	}
	return nil, nil
}

// applyFrame decodes one frame and applies it. It returns the accepted
// result, the server error message, and false when the run may no longer
// write.
func (r *Reconciler) applyFrame(ctx context.Context, gen uint64, frame sse.Frame) (*model.ResultRecord, string, bool) {
	evt, err := sse.Decode(frame)
	if err != nil {
		zap.L().Warn("reconcile: malformed frame", zap.Error(err), zap.ByteString("frame", frame))
		return nil, "", r.appendLog(ctx, gen, "SSE parse error: "+err.Error())
	}

	switch evt.Kind {
	case sse.KindLog, sse.KindBatchLog:
		return nil, "", r.appendLog(ctx, gen, evt.Message)
	case sse.KindError:
		return nil, evt.Message, r.setError(ctx, gen, evt.Message)
	}

	if !evt.HasCandidate() || !sse.ResultShaped(evt.Candidate) {
		return nil, "", r.live(ctx, gen)
	}

	res, err := model.DecodeResult(evt.Candidate)
	if err != nil {
		zap.L().Warn("reconcile: result candidate rejected", zap.Error(err))
		return nil, "", r.appendLog(ctx, gen, "result decode error: "+err.Error())
	}
	if !r.setResult(ctx, gen, res) {
		return nil, "", false
	}
	return res, "", true
}

func (r *Reconciler) live(ctx context.Context, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked(ctx, gen)
}

// liveLocked reports whether run gen may still write: it is the current
// generation, it was not cancelled, and its context is not done.
func (r *Reconciler) liveLocked(ctx context.Context, gen uint64) bool {
	return r.gen == gen && r.cancel != nil && ctx.Err() == nil
}

func (r *Reconciler) appendLog(ctx context.Context, gen uint64, msg string) bool {
	r.mu.Lock()
	if !r.liveLocked(ctx, gen) {
		r.mu.Unlock()
		return false
	}
	entry := model.LogEntry{Timestamp: r.now(), Message: msg}
	r.logs = append(r.logs, entry)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.OnLog(entry)
	}
	return true
}

func (r *Reconciler) setResult(ctx context.Context, gen uint64, res *model.ResultRecord) bool {
	r.mu.Lock()
	if !r.liveLocked(ctx, gen) {
		r.mu.Unlock()
		return false
	}
	r.result = res
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.OnResult(res)
	}
	return true
}

func (r *Reconciler) setError(ctx context.Context, gen uint64, msg string) bool {
	r.mu.Lock()
	if !r.liveLocked(ctx, gen) {
		r.mu.Unlock()
		return false
	}
	r.errMsg = msg
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.OnError(msg)
	}
	return true
}

func (r *Reconciler) finish(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.processing = false
	r.cancel = nil
}
