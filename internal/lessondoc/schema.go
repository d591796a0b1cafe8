package lessondoc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"lesson-progress-service/internal/domain"
)

const schemaURL = "schema://lesson.json"

// lessonSchema only checks the structure the outline builder walks; element
// content stays opaque.
const lessonSchema = `{
  "type": "object",
  "required": ["sections"],
  "properties": {
    "id": {"type": "string"},
    "revision": {"type": "string"},
    "header": {"type": "object"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["subsections"],
        "properties": {
          "title": {"type": "string"},
          "subsections": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "title": {"type": "string"},
                "elements": {"$ref": "#/$defs/elements"},
                "subsubsections": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "properties": {
                      "title": {"type": "string"},
                      "elements": {"$ref": "#/$defs/elements"}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  },
  "$defs": {
    "elements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {"type": {"type": "string"}}
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var def any
		if err := json.Unmarshal([]byte(lessonSchema), &def); err != nil {
			compileErr = fmt.Errorf("parse lesson schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Decode validates raw against the lesson schema and unmarshals it. Validation
// failures wrap domain.ErrInvalidLesson.
func Decode(raw []byte) (domain.Lesson, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Lesson{}, fmt.Errorf("%w: %v", domain.ErrInvalidLesson, err)
	}
	sch, err := schema()
	if err != nil {
		return domain.Lesson{}, err
	}
	if err := sch.Validate(parsed); err != nil {
		return domain.Lesson{}, fmt.Errorf("%w: %v", domain.ErrInvalidLesson, err)
	}
	var lesson domain.Lesson
	if err := json.Unmarshal(raw, &lesson); err != nil {
		return domain.Lesson{}, fmt.Errorf("%w: %v", domain.ErrInvalidLesson, err)
	}
	return lesson, nil
}

// DecodeFor is Decode plus defaulting the lesson id when the document has none.
func DecodeFor(lessonID string, raw []byte) (domain.Lesson, error) {
	lesson, err := Decode(raw)
	if err != nil {
		return lesson, err
	}
	if lesson.ID == "" {
		lesson.ID = lessonID
	}
	return lesson, nil
}
