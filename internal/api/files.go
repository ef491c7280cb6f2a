package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"quizbox/internal/model"
)

// UploadFile uploads one document via multipart and returns the server-side
// file record. The returned id, never the filename, is what ends up in the
// answer set.
func (c *Client) UploadFile(ctx context.Context, userID, questionnaireID, tipologiaID int, label, filename string, r io.Reader) (model.UserFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"user_id":         strconv.Itoa(userID),
		"questionario_id": strconv.Itoa(questionnaireID),
		"tipologia_id":    strconv.Itoa(tipologiaID),
	}
	if label != "" {
		fields["label"] = label
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return model.UserFile{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.UserFile{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.UserFile{}, fmt.Errorf("copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.UserFile{}, fmt.Errorf("finalize multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("files_upload.php", nil, false), &buf)
	if err != nil {
		return model.UserFile{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var file model.UserFile
	if err := c.do(req, &file); err != nil {
		return model.UserFile{}, err
	}
	if file.TipologiaID == 0 {
		file.TipologiaID = tipologiaID
	}
	return file, nil
}

// UserFiles lists every file the user uploaded so far, across questionnaires.
func (c *Client) UserFiles(ctx context.Context, userID int) ([]model.UserFile, error) {
	var files []model.UserFile
	q := url.Values{"user_id": {strconv.Itoa(userID)}}
	if err := c.get(ctx, "files_list.php", q, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// AttachFile links an already-uploaded file to a questionnaire slot without
// any binary transfer.
func (c *Client) AttachFile(ctx context.Context, userID, questionnaireID, tipologiaID int, fileID string) error {
	body := map[string]any{
		"user_id":         userID,
		"questionario_id": questionnaireID,
		"tipologia_id":    tipologiaID,
		"user_file_id":    fileID,
	}
	return c.post(ctx, "files_attach.php", body, nil)
}

// RemoveResult reports what the backend actually did on a remove call.
type RemoveResult struct {
	LinkRemoved bool `json:"link_removed"`
	FileDeleted bool `json:"file_deleted"`
}

// RemoveFile detaches the file linked to a questionnaire slot. The backend
// deletes the underlying file too when no other links reference it.
func (c *Client) RemoveFile(ctx context.Context, userID, questionnaireID, tipologiaID int) (RemoveResult, error) {
	body := map[string]any{
		"user_id":         userID,
		"questionario_id": questionnaireID,
		"tipologia_id":    tipologiaID,
	}
	var res RemoveResult
	if err := c.post(ctx, "files_delete.php", body, &res); err != nil {
		return RemoveResult{}, err
	}
	return res, nil
}
