// Package autosave persists in-progress answers after a quiet period,
// collapsing edit bursts into single save calls.
package autosave

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizbox/internal/model"
)

// DefaultQuietPeriod is the debounce window applied to form changes.
const DefaultQuietPeriod = 800 * time.Millisecond

// SaveFunc persists one full answer snapshot.
type SaveFunc func(ctx context.Context, answers model.AnswerSet) error

// Autosaver debounces answer snapshots for a single questionnaire. It must
// be rebuilt when the questionnaire changes and stopped on teardown, so
// pending saves never leak across questionnaires.
type Autosaver struct {
	quiet time.Duration
	save  SaveFunc
	log   *zap.Logger

	mu       sync.Mutex
	timer    *time.Timer
	pending  model.AnswerSet
	lastSent []byte
	stopped  bool
	wg       sync.WaitGroup
}

// Option tweaks an Autosaver.
type Option func(*Autosaver)

// WithQuietPeriod overrides the debounce window.
func WithQuietPeriod(d time.Duration) Option {
	return func(a *Autosaver) { a.quiet = d }
}

// New creates an Autosaver delivering snapshots to save.
func New(save SaveFunc, log *zap.Logger, opts ...Option) *Autosaver {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Autosaver{quiet: DefaultQuietPeriod, save: save, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Offer records a new snapshot and (re)starts the quiet period. Snapshots
// deep-equal to the last sent one are dropped.
func (a *Autosaver) Offer(answers model.AnswerSet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.pending = answers
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.quiet, a.fire)
}

// fire sends the pending snapshot unless it matches the last sent one.
func (a *Autosaver) fire() {
	a.mu.Lock()
	if a.stopped || a.pending == nil {
		a.mu.Unlock()
		return
	}
	snapshot := a.pending
	a.pending = nil

	serialized, err := json.Marshal(snapshot)
	if err != nil {
		a.mu.Unlock()
		a.log.Debug("autosave: snapshot not serializable", zap.Error(err))
		return
	}
	if a.lastSent != nil && string(serialized) == string(a.lastSent) {
		a.mu.Unlock()
		return
	}
	a.lastSent = serialized
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		// Autosave must never interrupt editing: failures are swallowed,
		// the next edit naturally triggers the next attempt.
		if err := a.save(context.Background(), snapshot); err != nil {
			a.log.Debug("autosave failed", zap.Error(err))
			a.mu.Lock()
			a.lastSent = nil
			a.mu.Unlock()
		}
	}()
}

// SaveSilently sends a snapshot immediately, bypassing the debounce but
// still recording it for deduplication. Used after a successful upload.
func (a *Autosaver) SaveSilently(ctx context.Context, answers model.AnswerSet) error {
	serialized, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.lastSent = serialized
	a.mu.Unlock()
	if err := a.save(ctx, answers); err != nil {
		// The snapshot never landed; forget it so a later identical
		// Offer is not deduplicated away.
		a.mu.Lock()
		a.lastSent = nil
		a.mu.Unlock()
		return err
	}
	return nil
}

// Flush sends any pending snapshot right away.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.fire()
	a.wg.Wait()
}

// Stop cancels pending work and waits for an in-flight save.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pending = nil
	a.mu.Unlock()
	a.wg.Wait()
}
