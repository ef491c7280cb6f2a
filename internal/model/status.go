package model

// JobStatus carries the AI job counters for one (user, questionnaire) pair.
type JobStatus struct {
	Queued  int  `json:"queued"`
	Running int  `json:"running"`
	Done    int  `json:"done"`
	Error   int  `json:"error"`
	Total   *int `json:"total,omitempty"`
	Percent *int `json:"percent,omitempty"`
}

// EffectiveTotal returns the backend-supplied total, or the counter sum when
// the backend omits it.
func (s JobStatus) EffectiveTotal() int {
	if s.Total != nil {
		return *s.Total
	}
	return s.Queued + s.Running + s.Done + s.Error
}

// Terminal reports whether processing is finished for good.
func (s JobStatus) Terminal() bool {
	t := s.EffectiveTotal()
	return t > 0 && s.Done == t
}

// Active reports whether any job is still queued or running.
func (s JobStatus) Active() bool {
	return s.Queued+s.Running > 0
}

// Label maps the counters to the display label. The ordering is strict:
// error > running > fully done > partially done > queued.
func (s JobStatus) Label() string {
	switch {
	case s.Error > 0:
		return "Attenzione"
	case s.Running > 0:
		return "In esecuzione"
	case s.Done > 0 && s.Done == s.EffectiveTotal():
		return "Completato"
	case s.Done > 0:
		return "Parzialmente completato"
	default:
		return "In coda"
	}
}

// Color maps the counters to the display color, same ordering as Label.
func (s JobStatus) Color() string {
	switch {
	case s.Error > 0:
		return "danger"
	case s.Running > 0:
		return "warning"
	case s.Done > 0 && s.Done == s.EffectiveTotal():
		return "success"
	case s.Done > 0:
		return "tertiary"
	default:
		return "medium"
	}
}
