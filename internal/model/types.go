package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Variant selects the questionnaire family served by the backend.
type Variant string

const (
	VariantStandard Variant = "standard"
	VariantPremium  Variant = "premium"
)

// QuestionKind is the explicit question variant, decided once at fetch time.
type QuestionKind string

const (
	KindText   QuestionKind = "text"
	KindNumber QuestionKind = "number"
	KindUpload QuestionKind = "upload"
)

// Option is one answer choice; for upload questions it is a document slot
// whose ID is the tipologia (document-type) identifier.
type Option struct {
	ID   int    `json:"id"`
	Name string `json:"nome"`
}

// Question is a normalized questionnaire question. Kind is authoritative:
// downstream code must never re-infer it from the raw fields.
type Question struct {
	ID       int          `json:"id"`
	Text     string       `json:"testo"`
	Kind     QuestionKind `json:"-"`
	Required bool         `json:"obbligatoria"`
	Options  []Option     `json:"opzioni,omitempty"`
}

// Key returns the answer-set key for the question.
func (q Question) Key() string { return strconv.Itoa(q.ID) }

// rawQuestion is the wire shape before normalization.
type rawQuestion struct {
	ID       int             `json:"id"`
	Text     string          `json:"testo"`
	Type     string          `json:"tipo"`
	Required bool            `json:"obbligatoria"`
	Options  json.RawMessage `json:"opzioni"`
}

// NormalizeQuestions converts wire questions into tagged Questions, sorted by
// id. The upload heuristic (explicit "upload" tag, or no tag with options all
// shaped {nome}) is applied here and nowhere else.
func NormalizeQuestions(raw []json.RawMessage) ([]Question, error) {
	out := make([]Question, 0, len(raw))
	for _, r := range raw {
		var rq rawQuestion
		if err := json.Unmarshal(r, &rq); err != nil {
			return nil, err
		}

		var opts []Option
		optShaped := false
		if len(rq.Options) > 0 && string(rq.Options) != "null" {
			if err := json.Unmarshal(rq.Options, &opts); err == nil && len(opts) > 0 {
				optShaped = true
				for _, o := range opts {
					if o.Name == "" {
						optShaped = false
						break
					}
				}
			}
		}

		q := Question{ID: rq.ID, Text: rq.Text, Required: rq.Required, Options: opts}
		switch t := strings.ToLower(strings.TrimSpace(rq.Type)); {
		case t == "upload", t == "" && optShaped:
			q.Kind = KindUpload
		case t == "number":
			q.Kind = KindNumber
		default:
			q.Kind = KindText
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AnswerSet maps question keys to answer values. Scalar questions hold a
// string or number; upload questions hold a map of option id to user-file id.
type AnswerSet map[string]any

// UploadSlots reads the answer value for an upload question as an option-id
// to file-id mapping. Returns an empty map for absent or foreign values.
func (a AnswerSet) UploadSlots(key string) map[string]string {
	slots := map[string]string{}
	raw, ok := a[key]
	if !ok {
		return slots
	}
	switch v := raw.(type) {
	case map[string]string:
		for k, val := range v {
			slots[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if s, ok := val.(string); ok {
				slots[k] = s
			}
		}
	}
	return slots
}

// Questionnaire is a catalog entry; premium entries also carry the number of
// AI prompts they feed.
type Questionnaire struct {
	ID           int    `json:"id"`
	Title        string `json:"titolo"`
	Description  string `json:"descrizione,omitempty"`
	NumQuestions int    `json:"num_domande,omitempty"`
	NumPrompts   int    `json:"num_prompts,omitempty"`
}

// Profile is the user profile as served by the backend.
type Profile struct {
	NameFirst string `json:"name_first"`
	NameLast  string `json:"name_last"`
	Email     string `json:"email"`
}

// UserFile is a previously uploaded, user-scoped file reusable across
// questionnaires without re-upload.
type UserFile struct {
	ID          string `json:"user_file_id"`
	TipologiaID int    `json:"tipologia_id"`
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
}

// InitStats reports the outcome of an AI enqueue call.
type InitStats struct {
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
}

// ChatReply is the backend response to a chat message.
type ChatReply struct {
	Reply      string `json:"reply"`
	ThreadSlug string `json:"thread_slug"`
}
