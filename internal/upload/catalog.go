package upload

import (
	"sync"

	"quizbox/internal/model"
)

// Catalog indexes the user's uploaded files by file id and by tipologia
// (keeping the most recently uploaded file per tipologia), so later
// questionnaires can reuse them without re-upload.
type Catalog struct {
	mu          sync.Mutex
	byID        map[string]model.UserFile
	byTipologia map[int]model.UserFile
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byID:        map[string]model.UserFile{},
		byTipologia: map[int]model.UserFile{},
	}
}

// Load replaces the catalog content with a server-fetched file list.
func (c *Catalog) Load(files []model.UserFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]model.UserFile, len(files))
	c.byTipologia = map[int]model.UserFile{}
	for _, f := range files {
		c.byID[f.ID] = f
		c.byTipologia[f.TipologiaID] = f
	}
}

// Put records a freshly uploaded file, making it the current one for its
// tipologia.
func (c *Catalog) Put(f model.UserFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[f.ID] = f
	c.byTipologia[f.TipologiaID] = f
}

// ByID looks a file up by its id.
func (c *Catalog) ByID(id string) (model.UserFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byID[id]
	return f, ok
}

// ByTipologia returns the most recent file for a tipologia.
func (c *Catalog) ByTipologia(tipologiaID int) (model.UserFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byTipologia[tipologiaID]
	return f, ok
}

// Forget removes a file that no longer exists server-side.
func (c *Catalog) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	if cur, ok := c.byTipologia[f.TipologiaID]; ok && cur.ID == id {
		delete(c.byTipologia, f.TipologiaID)
	}
}

// Len reports how many files the catalog tracks.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
