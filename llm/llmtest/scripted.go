// Package llmtest provides a deterministic completer for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"rabbitry/llm"
)

// ErrNoScript is returned when no rule matches a prompt.
var ErrNoScript = errors.New("llmtest: no scripted response")

type rule struct {
	system   string
	user     string
	response string
	err      error
}

// Scripted answers prompts from rules matched in registration order. A rule
// matches when both of its substrings occur in the system and user text.
type Scripted struct {
	mu    sync.Mutex
	rules []rule
	calls []llm.Prompt
}

func New() *Scripted {
	return &Scripted{}
}

// On registers a response for prompts whose system text contains system.
func (s *Scripted) On(system, response string) *Scripted {
	return s.OnUser(system, "", response)
}

// OnUser registers a response matched on both system and user text.
func (s *Scripted) OnUser(system, user, response string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{system: system, user: user, response: response})
	return s
}

// Fail makes prompts whose system text contains system return err.
func (s *Scripted) Fail(system string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{system: system, err: err})
	return s
}

func (s *Scripted) Complete(_ context.Context, p llm.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	for _, r := range s.rules {
		if strings.Contains(p.System, r.system) && strings.Contains(p.User, r.user) {
			return r.response, r.err
		}
	}
	return "", ErrNoScript
}

// Calls returns every prompt seen so far.
func (s *Scripted) Calls() []llm.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Prompt(nil), s.calls...)
}
