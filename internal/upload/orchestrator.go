// Package upload manages per-question document slots: immediate upload on
// selection, reuse of previously uploaded files, and removal, keeping the
// answer set pointed at server file ids rather than raw files.
package upload

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"quizbox/internal/api"
	"quizbox/internal/autosave"
	"quizbox/internal/form"
	"quizbox/internal/model"
)

// Outcome tells the user what a removal actually did.
type Outcome int

const (
	// OutcomeNoop means the slot held nothing server-side.
	OutcomeNoop Outcome = iota
	// OutcomeDetached means the link was removed but the file survives
	// (other slots still reference it).
	OutcomeDetached
	// OutcomeDeleted means the file became orphaned and was deleted.
	OutcomeDeleted
)

// FileAPI is the slice of the backend client the orchestrator needs.
type FileAPI interface {
	UploadFile(ctx context.Context, userID, questionnaireID, tipologiaID int, label, filename string, r io.Reader) (model.UserFile, error)
	AttachFile(ctx context.Context, userID, questionnaireID, tipologiaID int, fileID string) error
	RemoveFile(ctx context.Context, userID, questionnaireID, tipologiaID int) (api.RemoveResult, error)
	UserFiles(ctx context.Context, userID int) ([]model.UserFile, error)
}

// Orchestrator binds upload slots of one questionnaire's wizard to the
// backend file endpoints and the shared user catalog.
type Orchestrator struct {
	client          FileAPI
	wizard          *form.Wizard
	saver           *autosave.Autosaver
	catalog         *Catalog
	userID          int
	questionnaireID int
	log             *zap.Logger
}

// New wires an orchestrator. The catalog may be shared across pages.
func New(client FileAPI, wizard *form.Wizard, saver *autosave.Autosaver, catalog *Catalog, userID, questionnaireID int, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Orchestrator{
		client:          client,
		wizard:          wizard,
		saver:           saver,
		catalog:         catalog,
		userID:          userID,
		questionnaireID: questionnaireID,
		log:             log,
	}
}

// Catalog exposes the user file catalog.
func (o *Orchestrator) Catalog() *Catalog { return o.catalog }

// RefreshCatalog reloads the user-wide file listing.
func (o *Orchestrator) RefreshCatalog(ctx context.Context) error {
	files, err := o.client.UserFiles(ctx, o.userID)
	if err != nil {
		return fmt.Errorf("list user files: %w", err)
	}
	o.catalog.Load(files)
	return nil
}

// slots reads the current option-id map for an upload question's control.
func (o *Orchestrator) slots(q model.Question) (*form.Control, map[string]string, error) {
	if q.Kind != model.KindUpload {
		return nil, nil, fmt.Errorf("upload: question %d is not an upload question", q.ID)
	}
	c := o.wizard.Control(q.Key())
	if c == nil {
		return nil, nil, fmt.Errorf("upload: no control for question %d", q.ID)
	}
	cur := map[string]string{}
	switch v := c.Value().(type) {
	case map[string]string:
		for k, val := range v {
			cur[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if s, ok := val.(string); ok {
				cur[k] = s
			}
		}
	}
	return c, cur, nil
}

func slotKey(tipologiaID int) string { return strconv.Itoa(tipologiaID) }

// Select uploads a freshly chosen file for one slot. The control is tagged
// with the raw filename silently (a client-only guess autosave must not see);
// on success the tag is replaced with the server file id, the catalog learns
// the file, and exactly one silent autosave fires. On failure the prior slot
// state is restored untouched.
func (o *Orchestrator) Select(ctx context.Context, q model.Question, tipologiaID int, label, filename string, r io.Reader) (model.UserFile, error) {
	if tipologiaID <= 0 {
		return model.UserFile{}, fmt.Errorf("upload: invalid tipologia id %d", tipologiaID)
	}
	c, prior, err := o.slots(q)
	if err != nil {
		return model.UserFile{}, err
	}

	optimistic := map[string]string{}
	for k, v := range prior {
		optimistic[k] = v
	}
	optimistic[slotKey(tipologiaID)] = filename
	c.SetSilently(optimistic)

	file, err := o.client.UploadFile(ctx, o.userID, o.questionnaireID, tipologiaID, label, filename, r)
	if err != nil {
		c.SetSilently(prior)
		return model.UserFile{}, fmt.Errorf("upload file: %w", err)
	}

	confirmed := map[string]string{}
	for k, v := range prior {
		confirmed[k] = v
	}
	confirmed[slotKey(tipologiaID)] = file.ID
	c.SetSilently(confirmed)
	o.catalog.Put(file)

	if err := o.saver.SaveSilently(ctx, o.wizard.Values()); err != nil {
		o.log.Debug("post-upload autosave failed", zap.Error(err))
	}
	o.log.Info("file uploaded",
		zap.Int("questionnaire_id", o.questionnaireID),
		zap.Int("tipologia_id", tipologiaID),
		zap.String("user_file_id", file.ID),
	)
	return file, nil
}

// Reuse attaches an already-catalogued file to a slot without any binary
// transfer, updating local state exactly like a fresh upload.
func (o *Orchestrator) Reuse(ctx context.Context, q model.Question, tipologiaID int, fileID string) error {
	if tipologiaID <= 0 {
		return fmt.Errorf("upload: invalid tipologia id %d", tipologiaID)
	}
	if _, ok := o.catalog.ByID(fileID); !ok {
		return fmt.Errorf("upload: file %s not in catalog", fileID)
	}
	c, prior, err := o.slots(q)
	if err != nil {
		return err
	}

	if err := o.client.AttachFile(ctx, o.userID, o.questionnaireID, tipologiaID, fileID); err != nil {
		return fmt.Errorf("attach file: %w", err)
	}

	next := map[string]string{}
	for k, v := range prior {
		next[k] = v
	}
	next[slotKey(tipologiaID)] = fileID
	c.SetSilently(next)

	if err := o.saver.SaveSilently(ctx, o.wizard.Values()); err != nil {
		o.log.Debug("post-attach autosave failed", zap.Error(err))
	}
	return nil
}

// Remove detaches a slot's file. The slot key is dropped from the answer
// value; when the backend reports the file orphaned and deleted, it is
// purged from the catalog too. Failures leave everything intact.
func (o *Orchestrator) Remove(ctx context.Context, q model.Question, tipologiaID int) (Outcome, error) {
	c, prior, err := o.slots(q)
	if err != nil {
		return OutcomeNoop, err
	}
	fileID, had := prior[slotKey(tipologiaID)]

	res, err := o.client.RemoveFile(ctx, o.userID, o.questionnaireID, tipologiaID)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("remove file: %w", err)
	}

	if had {
		next := map[string]string{}
		for k, v := range prior {
			if k != slotKey(tipologiaID) {
				next[k] = v
			}
		}
		c.SetSilently(next)
		if err := o.saver.SaveSilently(ctx, o.wizard.Values()); err != nil {
			o.log.Debug("post-remove autosave failed", zap.Error(err))
		}
	}

	switch {
	case res.FileDeleted:
		if had {
			o.catalog.Forget(fileID)
		}
		return OutcomeDeleted, nil
	case res.LinkRemoved:
		return OutcomeDetached, nil
	default:
		return OutcomeNoop, nil
	}
}
