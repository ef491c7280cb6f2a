// Package apitest is an in-process stand-in for the questionnaire backend.
// It speaks the same envelope and endpoint surface as the real service so the
// client packages can be exercised over real HTTP in tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"quizbox/internal/model"
)

type account struct {
	password string
	userID   int
	profile  model.Profile
}

type scopeKey struct {
	userID          int
	questionnaireID int
}

type linkKey struct {
	userID          int
	questionnaireID int
	tipologiaID     int
}

// Server holds the fake backend state. All fields are guarded by mu; the
// handlers run on the http server's goroutines.
type Server struct {
	mu sync.Mutex

	accounts   map[string]*account
	nextUserID int

	questionnaires map[model.Variant][]model.Questionnaire
	questions      map[model.Variant]map[int][]map[string]any
	answers        map[model.Variant]map[scopeKey]model.AnswerSet
	saveCalls      map[scopeKey]int

	files      map[string]model.UserFile
	fileOwners map[string]int
	links      map[linkKey]string
	nextFileID int

	jobs        map[scopeKey]*jobSim
	results     map[scopeKey]int
	nextResult  int
	statusPolls map[scopeKey]int

	threads    map[string]int
	nextThread int
}

// NewServer returns an empty fake backend; seed it before use.
func NewServer() *Server {
	return &Server{
		accounts:       map[string]*account{},
		nextUserID:     100,
		questionnaires: map[model.Variant][]model.Questionnaire{},
		questions: map[model.Variant]map[int][]map[string]any{
			model.VariantStandard: {},
			model.VariantPremium:  {},
		},
		answers: map[model.Variant]map[scopeKey]model.AnswerSet{
			model.VariantStandard: {},
			model.VariantPremium:  {},
		},
		saveCalls:   map[scopeKey]int{},
		files:       map[string]model.UserFile{},
		fileOwners:  map[string]int{},
		links:       map[linkKey]string{},
		jobs:        map[scopeKey]*jobSim{},
		results:     map[scopeKey]int{},
		statusPolls: map[scopeKey]int{},
		threads:     map[string]int{},
	}
}

// Router builds the endpoint surface. Mount it behind httptest.NewServer.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/login.php", s.login)
	r.Post("/signup.php", s.signup)
	r.Get("/profile.php", s.profile)
	r.Post("/profile_update.php", s.updateProfile)

	for _, v := range []model.Variant{model.VariantStandard, model.VariantPremium} {
		suffix := ".php"
		if v == model.VariantPremium {
			suffix = "_premium.php"
		}
		v := v
		r.Get("/get_questionari"+suffix, s.listQuestionnaires(v))
		r.Get("/get_domande"+suffix, s.listQuestions(v))
		r.Get("/questionario"+suffix, s.getAnswers(v))
		r.Post("/questionario"+suffix, s.saveAnswers(v))
		r.Get("/openai/inizializza"+suffix, s.initializeAI(v))
		r.Get("/openai/status"+suffix, s.aiStatus(v))
		r.Get("/openai/get_tutele"+suffix, s.aiDetails(v))
		r.Get("/openai/last_result"+suffix, s.latestResult(v))
	}
	r.Post("/openai/chat.php", s.chat)

	r.Post("/files_upload.php", s.uploadFile)
	r.Get("/files_list.php", s.listFiles)
	r.Post("/files_attach.php", s.attachFile)
	r.Post("/files_delete.php", s.deleteFile)

	return r
}

// SeedAccount registers an account and returns its user id.
func (s *Server) SeedAccount(email, password string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	s.accounts[email] = &account{
		password: password,
		userID:   s.nextUserID,
		profile:  model.Profile{Email: email},
	}
	return s.nextUserID
}

// SeedQuestionnaire adds a catalog entry with its questions in wire shape.
func (s *Server) SeedQuestionnaire(v model.Variant, q model.Questionnaire, questions ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.NumQuestions = len(questions)
	s.questionnaires[v] = append(s.questionnaires[v], q)
	s.questions[v][q.ID] = questions
}

// TextQuestion builds a wire-shape text question for seeding.
func TextQuestion(id int, text string, required bool) map[string]any {
	return map[string]any{"id": id, "testo": text, "tipo": "text", "obbligatoria": required}
}

// NumberQuestion builds a wire-shape numeric question for seeding.
func NumberQuestion(id int, text string, required bool) map[string]any {
	return map[string]any{"id": id, "testo": text, "tipo": "number", "obbligatoria": required}
}

// UploadQuestion builds a wire-shape upload question with document slots.
// The tipo tag is left empty on purpose so clients must detect the kind from
// the option shape, like the live backend forces them to.
func UploadQuestion(id int, text string, required bool, slots map[int]string) map[string]any {
	opts := make([]map[string]any, 0, len(slots))
	for slotID, name := range slots {
		opts = append(opts, map[string]any{"id": slotID, "nome": name})
	}
	return map[string]any{"id": id, "testo": text, "obbligatoria": required, "opzioni": opts}
}

// SaveCount reports how many answer saves a scope received.
func (s *Server) SaveCount(userID, questionnaireID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls[scopeKey{userID, questionnaireID}]
}

// StatusPolls reports how many status polls a scope received.
func (s *Server) StatusPolls(userID, questionnaireID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusPolls[scopeKey{userID, questionnaireID}]
}

// Answers returns the stored answer set for a scope, nil when absent.
func (s *Server) Answers(v model.Variant, userID, questionnaireID int) model.AnswerSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[v][scopeKey{userID, questionnaireID}]
}

func writeEnvelope(w http.ResponseWriter, data any) {
	body := map[string]any{"success": true}
	if data != nil {
		body["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func intQuery(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func decodeBody(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &creds); err != nil {
		writeFailure(w, "richiesta non valida")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[creds.Email]
	s.mu.Unlock()
	if !ok || acc.password != creds.Password {
		writeFailure(w, "credenziali non valide")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"token":   fmt.Sprintf("tok-%d", acc.userID),
		"user":    map[string]any{"id": acc.userID},
	})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &creds); err != nil {
		writeFailure(w, "richiesta non valida")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[creds.Email]; exists {
		writeFailure(w, "email già registrata")
		return
	}
	s.nextUserID++
	s.accounts[creds.Email] = &account{
		password: creds.Password,
		userID:   s.nextUserID,
		profile:  model.Profile{Email: creds.Email},
	}
	writeEnvelope(w, nil)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	userID := intQuery(r, "user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.userID == userID {
			writeEnvelope(w, acc.profile)
			return
		}
	}
	writeFailure(w, "utente non trovato")
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    int    `json:"user_id"`
		NameFirst string `json:"name_first"`
		NameLast  string `json:"name_last"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, "richiesta non valida")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.userID == body.UserID {
			acc.profile.NameFirst = body.NameFirst
			acc.profile.NameLast = body.NameLast
			writeEnvelope(w, nil)
			return
		}
	}
	writeFailure(w, "utente non trovato")
}

func (s *Server) listQuestionnaires(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		list := s.questionnaires[v]
		s.mu.Unlock()
		if list == nil {
			list = []model.Questionnaire{}
		}
		writeEnvelope(w, list)
	}
}

func (s *Server) listQuestions(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qid := intQuery(r, "questionario_id")
		s.mu.Lock()
		qs, ok := s.questions[v][qid]
		s.mu.Unlock()
		if !ok {
			writeFailure(w, "questionario non trovato")
			return
		}
		writeEnvelope(w, qs)
	}
}

func (s *Server) getAnswers(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scopeKey{intQuery(r, "user_id"), intQuery(r, "questionario_id")}
		s.mu.Lock()
		set := s.answers[v][key]
		s.mu.Unlock()
		if set == nil {
			set = model.AnswerSet{}
		}
		writeEnvelope(w, set)
	}
}

func (s *Server) saveAnswers(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID          int             `json:"user_id"`
			QuestionnaireID int             `json:"questionario_id"`
			Answers         model.AnswerSet `json:"questionario"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, "richiesta non valida")
			return
		}
		key := scopeKey{body.UserID, body.QuestionnaireID}
		s.mu.Lock()
		s.answers[v][key] = body.Answers
		s.saveCalls[key]++
		s.mu.Unlock()
		writeEnvelope(w, nil)
	}
}
