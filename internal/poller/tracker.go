// Package poller tracks server-side AI processing per questionnaire: one
// enqueue call, then fixed-interval polling of status and summary until the
// job queue reaches its terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizbox/internal/model"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 4 * time.Second

var (
	// ErrQueueActive gates initialization while any questionnaire still has
	// queued or running jobs. The gate is global, not per item.
	ErrQueueActive = errors.New("poller: processing already in progress")
	// ErrIncomplete gates initialization on unfinished questionnaires.
	ErrIncomplete = errors.New("poller: questionnaire is not complete")
)

// StatusAPI is the slice of the backend client the tracker needs.
type StatusAPI interface {
	InitializeAI(ctx context.Context, v model.Variant, userID, questionnaireID int) (model.InitStats, error)
	AIStatus(ctx context.Context, v model.Variant, userID, questionnaireID int) (model.JobStatus, error)
	AIDetails(ctx context.Context, v model.Variant, userID, questionnaireID int, section string) (map[string]string, error)
}

type entry struct {
	status  *model.JobStatus
	details map[string]string
	stop    chan struct{}
}

// Tracker owns the id -> {status, details, timer} collection for one page.
type Tracker struct {
	client   StatusAPI
	variant  model.Variant
	userID   int
	section  string
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	entries map[int]*entry
	wg      sync.WaitGroup
}

// Option tweaks a Tracker.
type Option func(*Tracker)

// WithInterval overrides the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithSection requests a specific details section (e.g. "summary").
func WithSection(section string) Option {
	return func(t *Tracker) { t.section = section }
}

// New creates a Tracker for one user and variant.
func New(client StatusAPI, v model.Variant, userID int, log *zap.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		client:   client,
		variant:  v,
		userID:   userID,
		interval: DefaultInterval,
		log:      log,
		entries:  map[int]*entry{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init enqueues the AI jobs for one questionnaire. complete carries the
// completion-gate verdict. On success polling starts immediately.
func (t *Tracker) Init(ctx context.Context, questionnaireID int, complete bool) (model.InitStats, error) {
	if !complete {
		return model.InitStats{}, ErrIncomplete
	}
	if t.HasActiveQueue() {
		return model.InitStats{}, ErrQueueActive
	}

	stats, err := t.client.InitializeAI(ctx, t.variant, t.userID, questionnaireID)
	if err != nil {
		return model.InitStats{}, fmt.Errorf("initialize: %w", err)
	}
	t.log.Info("ai jobs enqueued",
		zap.Int("questionnaire_id", questionnaireID),
		zap.Int("enqueued", stats.Enqueued),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("total", stats.Total),
	)
	t.Start(questionnaireID)
	return stats, nil
}

// Start begins polling for an id. Starting an id that is already polling
// replaces its timer; there is never more than one per id.
func (t *Tracker) Start(questionnaireID int) {
	t.mu.Lock()
	e, ok := t.entries[questionnaireID]
	if ok && e.stop != nil {
		close(e.stop)
	}
	if !ok {
		e = &entry{}
		t.entries[questionnaireID] = e
	}
	stop := make(chan struct{})
	e.stop = stop
	t.mu.Unlock()

	t.wg.Add(1)
	go t.pollLoop(questionnaireID, stop)
}

func (t *Tracker) pollLoop(questionnaireID int, stop chan struct{}) {
	defer t.wg.Done()
	if terminal := t.refreshOnce(questionnaireID); terminal {
		t.stopTimer(questionnaireID, stop)
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if terminal := t.refreshOnce(questionnaireID); terminal {
				t.stopTimer(questionnaireID, stop)
				return
			}
		}
	}
}

// refreshOnce fetches status and details once. Poll errors are transient by
// nature and only logged; the next tick retries.
func (t *Tracker) refreshOnce(questionnaireID int) (terminal bool) {
	ctx, cancel := context.WithTimeout(context.Background(), t.interval)
	defer cancel()

	st, err := t.client.AIStatus(ctx, t.variant, t.userID, questionnaireID)
	if err != nil {
		t.log.Debug("status poll failed", zap.Int("questionnaire_id", questionnaireID), zap.Error(err))
	} else {
		total := st.EffectiveTotal()
		st.Total = &total
		t.mu.Lock()
		if e, ok := t.entries[questionnaireID]; ok {
			e.status = &st
		}
		t.mu.Unlock()
		terminal = st.Terminal()
	}

	details, err := t.client.AIDetails(ctx, t.variant, t.userID, questionnaireID, t.section)
	if err != nil {
		t.log.Debug("details poll failed", zap.Int("questionnaire_id", questionnaireID), zap.Error(err))
	} else {
		t.mu.Lock()
		if e, ok := t.entries[questionnaireID]; ok {
			e.details = details
		}
		t.mu.Unlock()
	}
	return terminal
}

// stopTimer clears the timer handle if it still belongs to this loop. Status
// and details survive; a terminal poller never restarts on its own.
func (t *Tracker) stopTimer(questionnaireID int, stop chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[questionnaireID]; ok && e.stop == stop {
		e.stop = nil
	}
}

// Stop halts polling for one id and discards its cached state.
func (t *Tracker) Stop(questionnaireID int) {
	t.mu.Lock()
	if e, ok := t.entries[questionnaireID]; ok {
		if e.stop != nil {
			close(e.stop)
		}
		delete(t.entries, questionnaireID)
	}
	t.mu.Unlock()
}

// StopAll halts every poller and waits for their goroutines; called on page
// teardown.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	for id, e := range t.entries {
		if e.stop != nil {
			close(e.stop)
		}
		delete(t.entries, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Refresh performs one immediate status/details fetch for an id without
// touching its timer, registering the entry if needed.
func (t *Tracker) Refresh(questionnaireID int) {
	t.mu.Lock()
	if _, ok := t.entries[questionnaireID]; !ok {
		t.entries[questionnaireID] = &entry{}
	}
	t.mu.Unlock()
	t.refreshOnce(questionnaireID)
}

// SyncWith reconciles the collection against a freshly loaded id list:
// pollers for vanished ids are stopped and their cached state discarded.
// Called deterministically after every list refresh.
func (t *Tracker) SyncWith(currentIDs []int) {
	keep := make(map[int]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		keep[id] = struct{}{}
	}
	t.mu.Lock()
	for id, e := range t.entries {
		if _, ok := keep[id]; ok {
			continue
		}
		if e.stop != nil {
			close(e.stop)
		}
		delete(t.entries, id)
	}
	t.mu.Unlock()
}

// Status returns the last polled status for an id.
func (t *Tracker) Status(questionnaireID int) (model.JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[questionnaireID]; ok && e.status != nil {
		return *e.status, true
	}
	return model.JobStatus{}, false
}

// Details returns the last polled summary sections for an id.
func (t *Tracker) Details(questionnaireID int) (map[string]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[questionnaireID]; ok && e.details != nil {
		return e.details, true
	}
	return nil, false
}

// Polling reports whether an id currently has a live timer.
func (t *Tracker) Polling(questionnaireID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[questionnaireID]
	return ok && e.stop != nil
}

// HasActiveQueue reports whether any tracked questionnaire still has queued
// or running jobs. This is the global initialize gate.
func (t *Tracker) HasActiveQueue() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.status != nil && e.status.Active() {
			return true
		}
	}
	return false
}

// HasSummary reports whether an id already has non-blank summary content.
func (t *Tracker) HasSummary(questionnaireID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[questionnaireID]
	if !ok {
		return false
	}
	for _, v := range e.details {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
