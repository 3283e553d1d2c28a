// Package questionbank loads multiple-choice questions from a YAML file and
// seeds an empty store with them.
package questionbank

import (
	"context"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/model"
)

// MinOptions is the smallest option list a question may have.
const MinOptions = 2

var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

// Entry is one question as written in the bank file.
type Entry struct {
	ID           string   `koanf:"id"`
	Prompt       string   `koanf:"prompt"`
	Options      []string `koanf:"options"`
	CorrectIndex int      `koanf:"correct_index"`
	Difficulty   string   `koanf:"difficulty"`
}

type bank struct {
	Questions []Entry `koanf:"questions"`
}

// Load reads and validates the bank at path.
func Load(path string) ([]model.Question, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read question bank %s: %w", path, err)
	}
	var b bank
	if err := k.UnmarshalWithConf("", &b, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode question bank %s: %w", path, err)
	}

	out := make([]model.Question, 0, len(b.Questions))
	seen := make(map[string]bool, len(b.Questions))
	for i, e := range b.Questions {
		q, err := e.question()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("question %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	return out, nil
}

// Validate checks one entry.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Prompt) == "" {
		return fmt.Errorf("prompt is empty")
	}
	if len(e.Options) < MinOptions {
		return fmt.Errorf("needs at least %d options, has %d", MinOptions, len(e.Options))
	}
	for i, o := range e.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}
	if e.CorrectIndex < 0 || e.CorrectIndex >= len(e.Options) {
		return fmt.Errorf("correct_index %d out of range", e.CorrectIndex)
	}
	if !difficulties[strings.ToLower(strings.TrimSpace(e.Difficulty))] {
		return fmt.Errorf("difficulty %q must be easy, medium or hard", e.Difficulty)
	}
	return nil
}

func (e Entry) question() (model.Question, error) {
	if err := e.Validate(); err != nil {
		return model.Question{}, err
	}
	q := model.Question{
		ID:           strings.TrimSpace(e.ID),
		Prompt:       strings.TrimSpace(e.Prompt),
		CorrectIndex: e.CorrectIndex,
		Difficulty:   strings.ToLower(strings.TrimSpace(e.Difficulty)),
	}
	if q.ID == "" {
		q.ID = model.NewID()
	}
	if err := q.SetOptions(e.Options); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

// Seed inserts qs when the store holds no questions yet. It returns the
// number of questions written.
func Seed(ctx context.Context, store repository.Store, qs []model.Question) (int, error) {
	if len(qs) == 0 {
		return 0, nil
	}
	written := 0
	err := store.Transaction(ctx, func(tx repository.Store) error {
		n, err := tx.CountQuestions(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if err := tx.CreateQuestions(ctx, qs); err != nil {
			return err
		}
		written = len(qs)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return written, nil
}
