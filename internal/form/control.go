package form

import (
	"strconv"
	"strings"

	"quizbox/internal/model"
)

// Control holds one question's in-memory answer. The only mutation entry
// points are SetSilently and SetAndNotify; there is deliberately no plain
// setter, so every caller states whether change listeners may fire.
type Control struct {
	question model.Question
	value    any
	disabled bool
	notify   func()
}

// Question returns the question this control answers.
func (c *Control) Question() model.Question { return c.question }

// Value returns the current answer value.
func (c *Control) Value() any { return c.value }

// Disabled reports whether the control is locked.
func (c *Control) Disabled() bool { return c.disabled }

// SetSilently replaces the value without firing change listeners. Used for
// server patches and optimistic upload tags, so autosave does not fire on
// values the user did not type.
func (c *Control) SetSilently(v any) { c.value = v }

// SetAndNotify replaces the value and fires change listeners.
func (c *Control) SetAndNotify(v any) {
	c.value = v
	if c.notify != nil && !c.disabled {
		c.notify()
	}
}

// Valid reports whether the control satisfies its validators. Upload
// questions are always form-valid: their completion is tracked by the upload
// orchestrator, not here.
func (c *Control) Valid() bool {
	if c.question.Kind == model.KindUpload {
		return true
	}
	if c.question.Required && !hasValue(c.value) {
		return false
	}
	if c.question.Kind == model.KindNumber {
		return numberOK(c.value)
	}
	return true
}

func hasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}

// numberOK accepts empty values (required-ness is checked separately) and
// otherwise demands a parseable number >= 0.
func numberOK(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case int:
		return t >= 0
	case float64:
		return t >= 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return true
		}
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f >= 0
	default:
		return false
	}
}
