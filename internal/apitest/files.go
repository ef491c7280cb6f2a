package apitest

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"quizbox/internal/model"
)

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFailure(w, "multipart non valido")
		return
	}
	userID, _ := strconv.Atoi(r.FormValue("user_id"))
	questionnaireID, _ := strconv.Atoi(r.FormValue("questionario_id"))
	tipologiaID, _ := strconv.Atoi(r.FormValue("tipologia_id"))
	if userID == 0 || tipologiaID == 0 {
		writeFailure(w, "parametri mancanti")
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, "file mancante")
		return
	}
	defer part.Close()
	if _, err := io.Copy(io.Discard, part); err != nil {
		writeFailure(w, "lettura file fallita")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFileID++
	file := model.UserFile{
		ID:          fmt.Sprintf("F%04d", s.nextFileID),
		TipologiaID: tipologiaID,
		Filename:    header.Filename,
	}
	s.files[file.ID] = file
	s.fileOwners[file.ID] = userID
	if questionnaireID > 0 {
		s.links[linkKey{userID, questionnaireID, tipologiaID}] = file.ID
	}
	writeEnvelope(w, file)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	userID := intQuery(r, "user_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.UserFile{}
	for id, f := range s.files {
		if s.fileOwners[id] == userID {
			out = append(out, f)
		}
	}
	writeEnvelope(w, out)
}

func (s *Server) attachFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID          int    `json:"user_id"`
		QuestionnaireID int    `json:"questionario_id"`
		TipologiaID     int    `json:"tipologia_id"`
		FileID          string `json:"user_file_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, "richiesta non valida")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[body.FileID]; !ok || s.fileOwners[body.FileID] != body.UserID {
		writeFailure(w, "file non trovato")
		return
	}
	s.links[linkKey{body.UserID, body.QuestionnaireID, body.TipologiaID}] = body.FileID
	writeEnvelope(w, nil)
}

// deleteFile removes the questionnaire link and drops the underlying file
// when that was the last link to it.
func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID          int `json:"user_id"`
		QuestionnaireID int `json:"questionario_id"`
		TipologiaID     int `json:"tipologia_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, "richiesta non valida")
		return
	}
	key := linkKey{body.UserID, body.QuestionnaireID, body.TipologiaID}

	s.mu.Lock()
	defer s.mu.Unlock()
	fileID, ok := s.links[key]
	if !ok {
		// Nothing linked there; the backend reports a no-op, not an error.
		writeEnvelope(w, map[string]bool{"link_removed": false, "file_deleted": false})
		return
	}
	delete(s.links, key)

	stillLinked := false
	for _, other := range s.links {
		if other == fileID {
			stillLinked = true
			break
		}
	}
	deleted := false
	if !stillLinked {
		delete(s.files, fileID)
		delete(s.fileOwners, fileID)
		deleted = true
	}
	writeEnvelope(w, map[string]bool{"link_removed": true, "file_deleted": deleted})
}
