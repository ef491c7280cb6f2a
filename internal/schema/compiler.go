// Package schema derives a JSON Schema from a questionnaire's question list
// and validates final answer payloads against it before submit.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"

	"quizbox/internal/model"
)

// BuildAnswerSchema maps questions onto an object schema: required scalar
// questions become required string/number properties, upload questions become
// free objects (their completion is the upload orchestrator's concern).
func BuildAnswerSchema(questions []model.Question) map[string]any {
	props := map[string]any{}
	required := []string{}

	for _, q := range questions {
		key := q.Key()
		switch q.Kind {
		case model.KindUpload:
			props[key] = map[string]any{"type": "object"}
		case model.KindNumber:
			// Answers travel as strings or numbers depending on the source
			// control; accept both but keep the non-negative bound.
			props[key] = map[string]any{
				"anyOf": []any{
					map[string]any{"type": "number", "minimum": 0},
					map[string]any{"type": "string", "pattern": `^\s*\d+(\.\d+)?\s*$`},
				},
			}
			if q.Required {
				required = append(required, key)
			}
		default:
			props[key] = map[string]any{"type": "string", "minLength": 1}
			if q.Required {
				required = append(required, key)
			}
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Compiler compiles answer schemas and caches them per questionnaire id.
type Compiler struct {
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a compiler holding up to maxSize compiled
// schemas for an hour.
func NewCompilerWithCache(maxSize int) *Compiler {
	c := js.NewCompiler()
	c.ExtractAnnotations = true
	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

func cacheKey(v model.Variant, questionnaireID int) string {
	return string(v) + "/" + strconv.Itoa(questionnaireID)
}

// Prepare compiles and caches the answer schema for one questionnaire.
func (c *Compiler) Prepare(v model.Variant, questionnaireID int, questions []model.Question) error {
	key := cacheKey(v, questionnaireID)
	if _, ok := c.cache.Get(key); ok {
		return nil
	}

	schemaBytes, err := json.Marshal(BuildAnswerSchema(questions))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	resourceURL := fmt.Sprintf("mem://answers/%s.json", key)
	if err := c.compiler.AddResource(resourceURL, bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	c.cache.Add(key, compiled)
	return nil
}

// Validate checks an answer set against the questionnaire's schema, compiling
// it on demand.
func (c *Compiler) Validate(v model.Variant, questionnaireID int, questions []model.Question, answers model.AnswerSet) error {
	key := cacheKey(v, questionnaireID)
	compiled, ok := c.cache.Get(key)
	if !ok {
		if err := c.Prepare(v, questionnaireID, questions); err != nil {
			return err
		}
		compiled, _ = c.cache.Get(key)
		if compiled == nil {
			return fmt.Errorf("schema missing from cache after preparation")
		}
	}

	// Round-trip through JSON so typed answer values become plain interfaces.
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("unmarshal answers: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("answer validation failed: %w", err)
	}
	return nil
}
