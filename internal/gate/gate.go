// Package gate decides, per questionnaire, whether every required question
// already has a satisfying answer. The verdict gates the "initialize AI"
// action on the premium listing and is recomputed on every list reload.
package gate

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"quizbox/internal/model"
)

// QuestionnaireAPI is the slice of the backend client the gate needs.
type QuestionnaireAPI interface {
	Questions(ctx context.Context, v model.Variant, questionnaireID int) ([]model.Question, error)
	Answers(ctx context.Context, v model.Variant, userID, questionnaireID int) (model.AnswerSet, error)
}

// Filled reports whether a value counts as an answer: arrays and objects
// must be non-empty, strings non-blank after trimming. The literal "0" is a
// legitimate answer.
func Filled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case map[string]string:
		return len(t) > 0
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return true
	default:
		// Numbers and anything else scalar count, zero included.
		return true
	}
}

// Complete applies the per-question rules: required scalars must be Filled;
// a required upload question with no declared slots needs a non-empty answer
// object, with declared slots it needs a filled entry for every option id.
func Complete(questions []model.Question, answers model.AnswerSet) bool {
	for _, q := range questions {
		if !q.Required {
			continue
		}
		key := q.Key()
		if q.Kind != model.KindUpload {
			if !Filled(answers[key]) {
				return false
			}
			continue
		}

		slots := answers.UploadSlots(key)
		if len(q.Options) == 0 {
			if len(slots) == 0 {
				return false
			}
			continue
		}
		for _, opt := range q.Options {
			if !Filled(slots[strconv.Itoa(opt.ID)]) {
				return false
			}
		}
	}
	return true
}

// Checker recomputes verdicts against live backend data.
type Checker struct {
	client  QuestionnaireAPI
	variant model.Variant
	userID  int
	log     *zap.Logger
}

// NewChecker builds a Checker for one user and variant.
func NewChecker(client QuestionnaireAPI, v model.Variant, userID int, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{client: client, variant: v, userID: userID, log: log}
}

// Check fetches questions and answers for one questionnaire and applies
// Complete. Any fetch failure yields an incomplete verdict, never an error
// that would take the whole listing down.
func (c *Checker) Check(ctx context.Context, questionnaireID int) bool {
	questions, err := c.client.Questions(ctx, c.variant, questionnaireID)
	if err != nil {
		c.log.Debug("completion check: questions fetch failed",
			zap.Int("questionnaire_id", questionnaireID), zap.Error(err))
		return false
	}
	answers, err := c.client.Answers(ctx, c.variant, c.userID, questionnaireID)
	if err != nil {
		c.log.Debug("completion check: answers fetch failed",
			zap.Int("questionnaire_id", questionnaireID), zap.Error(err))
		return false
	}
	return Complete(questions, answers)
}

// CheckAll runs Check for every id concurrently and joins on an
// all-must-complete barrier before returning the verdict map.
func (c *Checker) CheckAll(ctx context.Context, ids []int) map[int]bool {
	verdicts := make(map[int]bool, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ok := c.Check(ctx, id)
			mu.Lock()
			verdicts[id] = ok
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return verdicts
}
