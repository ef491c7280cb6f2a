package apitest

import (
	"fmt"
	"net/http"

	"quizbox/internal/model"
)

// jobSim advances one stage per status poll so pollers observe the whole
// queued -> running -> done progression.
type jobSim struct {
	total   int
	queued  int
	running int
	done    int
	failed  int
}

func (j *jobSim) step() {
	if j.running > 0 {
		j.running--
		j.done++
	}
	if j.queued > 0 {
		j.queued--
		j.running++
	}
}

func (j *jobSim) status() model.JobStatus {
	total := j.total
	return model.JobStatus{
		Queued:  j.queued,
		Running: j.running,
		Done:    j.done,
		Error:   j.failed,
		Total:   &total,
	}
}

// SeedJobs primes the AI pipeline for a scope with the given job count, as if
// an earlier initialize already ran.
func (s *Server) SeedJobs(userID, questionnaireID, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[scopeKey{userID, questionnaireID}] = &jobSim{total: total, queued: total}
}

// FinishJobs fast-forwards a scope's jobs to done and assigns a result id.
func (s *Server) FinishJobs(userID, questionnaireID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey{userID, questionnaireID}
	sim, ok := s.jobs[key]
	if !ok {
		sim = &jobSim{total: 1}
		s.jobs[key] = sim
	}
	sim.done = sim.total
	sim.queued, sim.running = 0, 0
	return s.assignResultLocked(key)
}

func (s *Server) assignResultLocked(key scopeKey) int {
	if id, ok := s.results[key]; ok {
		return id
	}
	s.nextResult++
	s.results[key] = s.nextResult
	return s.nextResult
}

func (s *Server) initializeAI(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scopeKey{intQuery(r, "user_id"), intQuery(r, "questionario_id")}
		s.mu.Lock()
		defer s.mu.Unlock()

		total := 0
		for _, q := range s.questionnaires[v] {
			if q.ID == key.questionnaireID {
				total = q.NumPrompts
			}
		}
		if total == 0 {
			total = 1
		}
		if sim, exists := s.jobs[key]; exists {
			writeEnvelope(w, model.InitStats{Duplicates: sim.total, Total: sim.total})
			return
		}
		s.jobs[key] = &jobSim{total: total, queued: total}
		writeEnvelope(w, model.InitStats{Enqueued: total, Total: total})
	}
}

func (s *Server) aiStatus(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scopeKey{intQuery(r, "user_id"), intQuery(r, "questionario_id")}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.statusPolls[key]++
		sim, ok := s.jobs[key]
		if !ok {
			writeEnvelope(w, model.JobStatus{})
			return
		}
		sim.step()
		if sim.done == sim.total && sim.total > 0 {
			s.assignResultLocked(key)
		}
		writeEnvelope(w, sim.status())
	}
}

func (s *Server) aiDetails(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scopeKey{intQuery(r, "user_id"), intQuery(r, "questionario_id")}
		s.mu.Lock()
		sim, ok := s.jobs[key]
		finished := ok && sim.total > 0 && sim.done == sim.total
		s.mu.Unlock()
		if !finished {
			writeEnvelope(w, map[string]string{})
			return
		}
		sections := map[string]string{
			"summary": "<p>Analisi completata per il questionario.</p>",
			"tutele":  "<p>Coperture consigliate in base alle risposte.</p>",
		}
		if section := r.URL.Query().Get("section"); section != "" {
			only := map[string]string{}
			if html, ok := sections[section]; ok {
				only[section] = html
			}
			sections = only
		}
		writeEnvelope(w, sections)
	}
}

func (s *Server) latestResult(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scopeKey{intQuery(r, "user_id"), intQuery(r, "questionario_id")}
		s.mu.Lock()
		id := s.results[key]
		s.mu.Unlock()
		writeEnvelope(w, map[string]int{"result_id": id})
	}
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID  string `json:"session_id"`
		Message    string `json:"message"`
		ResultID   int    `json:"result_id"`
		ThreadSlug string `json:"thread_slug"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, "richiesta non valida")
		return
	}
	if body.Message == "" {
		writeFailure(w, "messaggio vuoto")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slug := body.ThreadSlug
	switch {
	case slug != "":
		if _, known := s.threads[slug]; !known {
			writeFailure(w, "thread non trovato")
			return
		}
	case body.ResultID > 0:
		s.nextThread++
		slug = fmt.Sprintf("thread-%d", s.nextThread)
		s.threads[slug] = body.ResultID
	default:
		writeFailure(w, "result_id mancante")
		return
	}
	writeEnvelope(w, model.ChatReply{
		Reply:      "Risposta a: " + body.Message,
		ThreadSlug: slug,
	})
}
