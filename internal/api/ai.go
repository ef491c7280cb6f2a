package api

import (
	"context"
	"net/url"
	"strconv"

	"quizbox/internal/model"
)

func aiValues(userID, questionnaireID int) url.Values {
	return url.Values{
		"user_id":         {strconv.Itoa(userID)},
		"questionario_id": {strconv.Itoa(questionnaireID)},
	}
}

func aiPath(base string, v model.Variant) string {
	return "openai/" + variantPath(base, v)
}

// InitializeAI enqueues the server-side AI jobs for a questionnaire.
func (c *Client) InitializeAI(ctx context.Context, v model.Variant, userID, questionnaireID int) (model.InitStats, error) {
	var stats model.InitStats
	if err := c.get(ctx, aiPath("inizializza", v), aiValues(userID, questionnaireID), &stats); err != nil {
		return model.InitStats{}, err
	}
	if stats.Total == 0 {
		stats.Total = stats.Enqueued + stats.Duplicates
	}
	return stats, nil
}

// AIStatus polls the job counters for a questionnaire.
func (c *Client) AIStatus(ctx context.Context, v model.Variant, userID, questionnaireID int) (model.JobStatus, error) {
	var st model.JobStatus
	if err := c.get(ctx, aiPath("status", v), aiValues(userID, questionnaireID), &st); err != nil {
		return model.JobStatus{}, err
	}
	return st, nil
}

// AIDetails fetches the rendered summary sections (section key -> HTML).
func (c *Client) AIDetails(ctx context.Context, v model.Variant, userID, questionnaireID int, section string) (map[string]string, error) {
	details := map[string]string{}
	q := aiValues(userID, questionnaireID)
	if section != "" {
		q.Set("section", section)
	}
	if err := c.get(ctx, aiPath("get_tutele", v), q, &details); err != nil {
		return nil, err
	}
	return details, nil
}

// LatestResultID returns the most recent AI result id for the scope, used to
// seed a chat thread. Zero means no result exists yet.
func (c *Client) LatestResultID(ctx context.Context, v model.Variant, userID, questionnaireID int) (int, error) {
	var data struct {
		ResultID int `json:"result_id"`
	}
	if err := c.get(ctx, aiPath("last_result", v), aiValues(userID, questionnaireID), &data); err != nil {
		return 0, err
	}
	return data.ResultID, nil
}

// ChatPayload is the request body for a chat send. Exactly one of ResultID
// (first message) or ThreadSlug (follow-up) must be set.
type ChatPayload struct {
	SessionID  string `json:"session_id"`
	Message    string `json:"message"`
	ResultID   int    `json:"result_id,omitempty"`
	ThreadSlug string `json:"thread_slug,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
}

// SendChat sends a chat message and returns the reply plus the thread slug
// (established on the first send, echoed on follow-ups).
func (c *Client) SendChat(ctx context.Context, p ChatPayload) (model.ChatReply, error) {
	var reply model.ChatReply
	if err := c.post(ctx, "openai/chat.php", p, &reply); err != nil {
		return model.ChatReply{}, err
	}
	return reply, nil
}
