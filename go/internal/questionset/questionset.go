// Package questionset reads question sets from YAML or JSON and keeps a named
// library of them on disk.
package questionset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizlive/go/internal/models"
)

// Format is the encoding of a question set document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Set is a named, reusable list of questions.
type Set struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Questions   []models.QuestionInput `json:"questions" yaml:"questions"`
}

// Problem is one structural defect found in a set.
type Problem struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("question %d: %s %s", p.Index, p.Field, p.Message)
}

// ValidationError lists every problem found in a set.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "invalid question set: " + strings.Join(parts, "; ")
}

// DetectFormat guesses the encoding from the first non-space byte.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes a set. A document that is a bare list of questions is accepted too.
func Parse(data []byte, format Format) (*Set, error) {
	var set Set
	switch format {
	case FormatJSON:
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
			if err := json.Unmarshal(data, &set.Questions); err != nil {
				return nil, fmt.Errorf("failed to parse question list: %w", err)
			}
			return &set, nil
		}
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("failed to parse question set: %w", err)
		}
	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("failed to parse question set: %w", err)
		}
		if len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode {
			if err := root.Content[0].Decode(&set.Questions); err != nil {
				return nil, fmt.Errorf("failed to parse question list: %w", err)
			}
			return &set, nil
		}
		if err := root.Decode(&set); err != nil {
			return nil, fmt.Errorf("failed to parse question set: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported question set format: %s", format)
	}
	return &set, nil
}

// Validate checks structural shape only: a prompt, at least one option, an answer
// and a non-negative duration. Content is never judged.
func Validate(questions []models.QuestionInput) error {
	var problems []Problem
	if len(questions) == 0 {
		problems = append(problems, Problem{Index: -1, Field: "questions", Message: "must not be empty"})
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			problems = append(problems, Problem{Index: i, Field: "prompt", Message: "is required"})
		}
		if len(q.Options) == 0 {
			problems = append(problems, Problem{Index: i, Field: "options", Message: "needs at least one entry"})
		}
		if q.Answer == "" {
			problems = append(problems, Problem{Index: i, Field: "answer", Message: "is required"})
		}
		if q.DurationMs < 0 {
			problems = append(problems, Problem{Index: i, Field: "duration", Message: "must not be negative"})
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
