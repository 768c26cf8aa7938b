package questionset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/quiz/quizerr"
)

var extensions = map[string]Format{
	".yaml": FormatYAML,
	".yml":  FormatYAML,
	".json": FormatJSON,
}

// Library resolves set names to files in a directory. A Library without a
// directory knows no sets.
type Library struct {
	dir string
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Names lists the sets available in the library, sorted.
func (l *Library) Names() ([]string, error) {
	if l.dir == "" {
		return []string{}, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read question set directory: %w", err)
	}

	seen := make(map[string]struct{})
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := extensions[ext]; !ok {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and validates the named set. Missing names are reported as
// quizerr.CodeUnknownSet; malformed files as quizerr.CodeBadRequest.
func (l *Library) Load(name string) (*Set, error) {
	if l.dir == "" || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, quizerr.UnknownSet(name)
	}

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(l.dir, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read question set %s: %w", name, err)
		}

		set, err := Parse(data, extensions[ext])
		if err != nil {
			return nil, quizerr.Wrap(quizerr.CodeBadRequest, "question set "+name+" is malformed", err)
		}
		if err := Validate(set.Questions); err != nil {
			return nil, quizerr.Wrap(quizerr.CodeBadRequest, "question set "+name+" is malformed", err)
		}
		if set.Name == "" {
			set.Name = name
		}

		log.Debug().
			Str("question_set", name).
			Int("questions", len(set.Questions)).
			Msg("question set loaded")
		return set, nil
	}
	return nil, quizerr.UnknownSet(name)
}
