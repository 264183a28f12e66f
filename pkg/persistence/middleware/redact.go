package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// Masked replaces redacted values.
const Masked = "***"

type redactMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewRedaction masks variables whose names match any of the patterns.
//
// Live calls are stored untouched because the engine still reads their
// variables. Once a call reaches a final status its matching variables are
// masked, including keys nested inside object values, and every caller
// utterance in the transcript is replaced as well.
func NewRedaction(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, callID string, state *domain.SessionState) error {
	if !state.Status.Done() || len(m.patterns) == 0 {
		return m.next.Save(ctx, callID, state)
	}

	// The engine keeps using state after Save; work on a copy.
	cloned := *state
	cloned.Variables = m.mask(state.Variables)
	cloned.Transcript = make([]domain.Utterance, len(state.Transcript))
	for i, u := range state.Transcript {
		if u.Speaker == domain.SpeakerCaller {
			u.Text = Masked
		}
		cloned.Transcript[i] = u
	}
	return m.next.Save(ctx, callID, &cloned)
}

func (m *redactMiddleware) Load(ctx context.Context, callID string) (*domain.SessionState, error) {
	return m.next.Load(ctx, callID)
}

func (m *redactMiddleware) Delete(ctx context.Context, callID string) error {
	return m.next.Delete(ctx, callID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactMiddleware) mask(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		switch {
		case m.matches(k):
			out[k] = Masked
		default:
			if sub, ok := v.(map[string]any); ok {
				out[k] = m.mask(sub)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func (m *redactMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
