// Package llmtest provides a deterministic llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/ahrav/go-simjudge/internal/domain"
)

// Call records one Generate invocation.
type Call struct {
	Prompt string
	Config domain.ModelConfig
}

// Reply is a canned outcome.
type Reply struct {
	Text string
	Err  error
}

// Stub answers prompts from a table of substring matches. The first rule
// whose Contains appears in the prompt wins; unmatched prompts get Default.
// It is safe for concurrent use.
type Stub struct {
	mu      sync.Mutex
	rules   []rule
	Default Reply
	calls   []Call
}

type rule struct {
	contains string
	reply    Reply
}

// NewStub returns a stub answering every prompt with text.
func NewStub(text string) *Stub {
	return &Stub{Default: Reply{Text: text}}
}

// On registers a reply for prompts containing substr.
func (s *Stub) On(substr string, reply Reply) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{contains: substr, reply: reply})
	return s
}

// OnText registers a text reply for prompts containing substr.
func (s *Stub) OnText(substr, text string) *Stub {
	return s.On(substr, Reply{Text: text})
}

// OnError registers a failure for prompts containing substr.
func (s *Stub) OnError(substr string, err error) *Stub {
	return s.On(substr, Reply{Err: err})
}

// Generate implements llm.Provider.
func (s *Stub) Generate(ctx context.Context, prompt string, cfg domain.ModelConfig) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Prompt: prompt, Config: cfg})
	reply := s.Default
	for _, r := range s.rules {
		if strings.Contains(prompt, r.contains) {
			reply = r.reply
			break
		}
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

// Calls returns a copy of the recorded invocations.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of Generate invocations.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
