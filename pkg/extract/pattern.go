// Package extract provides deterministic ports.Extractor implementations.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// Pattern extracts variables with regular expressions.
//
// The expression comes from an override registered for the variable name, or
// else from the variable's extraction_hint. The first capture group is the value;
// without groups the whole match is used. Caller utterances are searched from
// the most recent backwards.
type Pattern struct {
	mu        sync.Mutex
	overrides map[string]string
	compiled  map[string]*regexp.Regexp
}

// NewPattern creates a pattern extractor. overrides maps variable names to expressions.
func NewPattern(overrides map[string]string) *Pattern {
	p := &Pattern{
		overrides: make(map[string]string, len(overrides)),
		compiled:  make(map[string]*regexp.Regexp),
	}
	for k, v := range overrides {
		p.overrides[k] = v
	}
	return p
}

// Extract implements ports.Extractor.
func (p *Pattern) Extract(_ context.Context, spec domain.ExtractVariableSpec, turn ports.TurnContext) (any, bool, error) {
	source, ok := p.overrides[spec.Name]
	if !ok {
		source = spec.ExtractionHint
	}
	if strings.TrimSpace(source) == "" {
		return nil, false, nil
	}

	re, err := p.regexp(source)
	if err != nil {
		return nil, false, fmt.Errorf("variable %s: %w", spec.Name, err)
	}

	for i := len(turn.Transcript) - 1; i >= 0; i-- {
		u := turn.Transcript[i]
		if u.Speaker != domain.SpeakerCaller {
			continue
		}
		m := re.FindStringSubmatch(u.Text)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return m[1], true, nil
		}
		return m[0], true, nil
	}
	return nil, false, nil
}

func (p *Pattern) regexp(source string) (*regexp.Regexp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if re, ok := p.compiled[source]; ok {
		return re, nil
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	p.compiled[source] = re
	return re, nil
}
