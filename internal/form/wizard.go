// Package form implements the stepped questionnaire wizard: fixed-size pages
// of questions, per-step validity gating, and single-flight final submission.
package form

import (
	"context"
	"errors"
	"sync"

	"quizbox/internal/model"
)

// DefaultPageSize is the number of questions per wizard step.
const DefaultPageSize = 5

var (
	// ErrStepInvalid blocks forward navigation while required fields in the
	// current step are unsatisfied.
	ErrStepInvalid = errors.New("form: current step has invalid fields")
	// ErrFormInvalid blocks the final submit while any control is invalid.
	ErrFormInvalid = errors.New("form: form has invalid fields")
	// ErrLocked is returned for submit attempts on a completed questionnaire.
	ErrLocked = errors.New("form: questionnaire is locked")
	// ErrSubmitInFlight guards against double submission.
	ErrSubmitInFlight = errors.New("form: submit already in flight")
)

// SendFunc delivers the assembled answer set to the backend.
type SendFunc func(ctx context.Context, answers model.AnswerSet) error

// Wizard owns the controls for one questionnaire and the step cursor.
type Wizard struct {
	mu        sync.Mutex
	questions []model.Question
	controls  map[string]*Control
	pageSize  int
	current   int
	locked    bool
	inFlight  bool
	onChange  func(model.AnswerSet)
	validator func(model.AnswerSet) error
}

// New builds a wizard from normalized questions. pageSize <= 0 falls back to
// DefaultPageSize. Scalar controls start empty, upload controls start unset.
func New(questions []model.Question, pageSize int) *Wizard {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	w := &Wizard{
		questions: questions,
		controls:  make(map[string]*Control, len(questions)),
		pageSize:  pageSize,
	}
	for _, q := range questions {
		c := &Control{question: q}
		if q.Kind != model.KindUpload {
			c.value = ""
		}
		c.notify = w.emit
		w.controls[q.Key()] = c
	}
	return w
}

// OnChange registers the single change listener (the autosaver). Listeners
// fire only through SetAndNotify on an unlocked control.
func (w *Wizard) OnChange(fn func(model.AnswerSet)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// SetValidator installs the overall answer-set validator consulted on the
// final-step submit (schema validation).
func (w *Wizard) SetValidator(fn func(model.AnswerSet) error) {
	w.mu.Lock()
	w.validator = fn
	w.mu.Unlock()
}

func (w *Wizard) emit() {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn(w.Values())
	}
}

// Control returns the control for a question key, or nil.
func (w *Wizard) Control(key string) *Control {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.controls[key]
}

// Questions returns the ordered question list.
func (w *Wizard) Questions() []model.Question { return w.questions }

// Values snapshots the full answer set. Unset upload controls are omitted.
func (w *Wizard) Values() model.AnswerSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := model.AnswerSet{}
	for key, c := range w.controls {
		if c.value == nil {
			continue
		}
		out[key] = c.value
	}
	return out
}

// Patch applies a server-loaded answer set silently, control by control.
// Keys without a matching control are ignored.
func (w *Wizard) Patch(answers model.AnswerSet) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, val := range answers {
		if c, ok := w.controls[key]; ok {
			c.SetSilently(val)
		}
	}
}

// SetLocked flips the whole control set atomically, without firing change
// listeners, so toggling lock state never triggers a spurious autosave.
func (w *Wizard) SetLocked(locked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locked = locked
	for _, c := range w.controls {
		c.disabled = locked
	}
}

// Locked reports the lock state.
func (w *Wizard) Locked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locked
}

// TotalSteps is ceil(len(questions)/pageSize), minimum 1.
func (w *Wizard) TotalSteps() int {
	n := (len(w.questions) + w.pageSize - 1) / w.pageSize
	if n < 1 {
		n = 1
	}
	return n
}

// CurrentStep returns the zero-based step cursor.
func (w *Wizard) CurrentStep() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Next advances one step when not already on the last one.
func (w *Wizard) Next() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current < w.TotalSteps()-1 {
		w.current++
	}
}

// Prev retreats one step when not on the first one.
func (w *Wizard) Prev() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current > 0 {
		w.current--
	}
}

// GoToStep jumps only to already-visited steps; forward jumps are ignored.
func (w *Wizard) GoToStep(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i >= 0 && i <= w.current {
		w.current = i
	}
}

// StepQuestions returns the current step's question slice.
func (w *Wizard) StepQuestions() []model.Question {
	w.mu.Lock()
	start := w.current * w.pageSize
	w.mu.Unlock()
	end := start + w.pageSize
	if start >= len(w.questions) {
		return nil
	}
	if end > len(w.questions) {
		end = len(w.questions)
	}
	return w.questions[start:end]
}

// IsStepValid reports per-step validity. Upload questions never fail this
// check; their completion is the upload orchestrator's concern.
func (w *Wizard) IsStepValid() bool {
	for _, q := range w.StepQuestions() {
		c := w.Control(q.Key())
		if c != nil && !c.Valid() {
			return false
		}
	}
	return true
}

func (w *Wizard) formValid() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.controls {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// Submit implements the shared continue/finish trigger. On a non-final step
// it validates the current step and advances, issuing no network write and
// returning advanced=true. On the final step it validates the whole form
// (controls plus the installed validator) and sends once; the in-flight
// guard is cleared on completion, success or failure, to allow retry.
func (w *Wizard) Submit(ctx context.Context, send SendFunc) (advanced bool, err error) {
	w.mu.Lock()
	if w.locked {
		w.mu.Unlock()
		return false, ErrLocked
	}
	if w.inFlight {
		w.mu.Unlock()
		return false, ErrSubmitInFlight
	}
	final := w.current == w.TotalSteps()-1
	w.mu.Unlock()

	if !final {
		if !w.IsStepValid() {
			return false, ErrStepInvalid
		}
		w.Next()
		return true, nil
	}

	if !w.formValid() {
		return false, ErrFormInvalid
	}
	values := w.Values()

	w.mu.Lock()
	validator := w.validator
	w.inFlight = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.inFlight = false
		w.mu.Unlock()
	}()

	if validator != nil {
		if err := validator(values); err != nil {
			return false, err
		}
	}
	if err := send(ctx, values); err != nil {
		return false, err
	}
	return false, nil
}
