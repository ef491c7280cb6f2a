package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"quizbox/internal/model"
)

// Profile fetches the profile for a user id.
func (c *Client) Profile(ctx context.Context, userID int) (model.Profile, error) {
	var p model.Profile
	q := url.Values{"user_id": {strconv.Itoa(userID)}}
	if err := c.get(ctx, "profile.php", q, &p); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

// UpdateProfile updates first/last name for a user.
func (c *Client) UpdateProfile(ctx context.Context, userID int, nameFirst, nameLast string) error {
	body := map[string]any{
		"user_id":    userID,
		"name_first": nameFirst,
		"name_last":  nameLast,
	}
	return c.post(ctx, "profile_update.php", body, nil)
}

// Questionnaires lists the questionnaire catalog for a variant.
func (c *Client) Questionnaires(ctx context.Context, v model.Variant) ([]model.Questionnaire, error) {
	var list []model.Questionnaire
	if err := c.get(ctx, variantPath("get_questionari", v), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Questions fetches and normalizes the question list for one questionnaire.
// Kind tagging happens here, once, at the network boundary.
func (c *Client) Questions(ctx context.Context, v model.Variant, questionnaireID int) ([]model.Question, error) {
	var raw []json.RawMessage
	q := url.Values{"questionario_id": {strconv.Itoa(questionnaireID)}}
	if err := c.get(ctx, variantPath("get_domande", v), q, &raw); err != nil {
		return nil, err
	}
	qs, err := model.NormalizeQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize questions: %w", err)
	}
	return qs, nil
}

// Answers fetches the user's current answer set for a questionnaire.
func (c *Client) Answers(ctx context.Context, v model.Variant, userID, questionnaireID int) (model.AnswerSet, error) {
	answers := model.AnswerSet{}
	q := url.Values{
		"user_id":         {strconv.Itoa(userID)},
		"questionario_id": {strconv.Itoa(questionnaireID)},
	}
	if err := c.get(ctx, variantPath("questionario", v), q, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// SaveAnswers pushes the full answer set (autosave and final submit share
// this call; the backend upserts).
func (c *Client) SaveAnswers(ctx context.Context, v model.Variant, userID, questionnaireID int, answers model.AnswerSet) error {
	body := map[string]any{
		"user_id":         userID,
		"questionario_id": questionnaireID,
		"questionario":    answers,
	}
	return c.post(ctx, variantPath("questionario", v), body, nil)
}
