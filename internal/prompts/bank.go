// Package prompts holds the fixed list of daily check-in questions.
package prompts

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy selects how the bank turns its questions into a message.
type Strategy string

const (
	StrategyAll    Strategy = "all"    // every question, numbered, in order
	StrategyRandom Strategy = "random" // one question chosen at random
)

const DefaultGreeting = "🌞 Good morning! Here’s your daily check-in:"

// DefaultQuestions is the built-in check-in list.
var DefaultQuestions = []string{
	"How are you feeling today? (1–5)",
	"What’s one thing you want to accomplish?",
	"Any distractions you should avoid?",
	"Share one small thing you’re grateful for.",
	"Do you want a motivational boost or a focus tip today?",
}

var ErrEmptyBank = errors.New("prompt bank has no questions")

// Bank is a read-only, ordered list of check-in questions.
type Bank struct {
	greeting  string
	questions []string
	intn      func(n int) int
}

// New creates a bank. An empty greeting falls back to DefaultGreeting.
func New(greeting string, questions []string) (*Bank, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyBank
	}
	qs := make([]string, 0, len(questions))
	for i, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, fmt.Errorf("question %d is blank", i+1)
		}
		qs = append(qs, q)
	}
	if strings.TrimSpace(greeting) == "" {
		greeting = DefaultGreeting
	}
	return &Bank{greeting: greeting, questions: qs, intn: rand.IntN}, nil
}

// Questions returns a copy of the questions in order.
func (b *Bank) Questions() []string {
	out := make([]string, len(b.questions))
	copy(out, b.questions)
	return out
}

// Pick returns the text for one check-in according to the strategy.
// Unknown strategies behave like StrategyAll.
func (b *Bank) Pick(strategy Strategy) string {
	if strategy == StrategyRandom {
		return b.questions[b.intn(len(b.questions))]
	}
	lines := make([]string, len(b.questions))
	for i, q := range b.questions {
		lines[i] = fmt.Sprintf("%d. %s", i+1, q)
	}
	return strings.Join(lines, "\n")
}

// DailyMessage renders the greeting followed by the picked questions.
func (b *Bank) DailyMessage(strategy Strategy) string {
	return b.greeting + "\n\n" + b.Pick(strategy)
}

// File is the on-disk layout of a prompt file.
type File struct {
	Greeting  string   `yaml:"greeting"`
	Questions []string `yaml:"questions"`
}

// LoadFile reads a YAML prompt file and builds a bank from it.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read prompt file %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("cannot parse prompt file %s: %w", path, err)
	}
	b, err := New(f.Greeting, f.Questions)
	if err != nil {
		return nil, fmt.Errorf("prompt file %s: %w", path, err)
	}
	return b, nil
}
