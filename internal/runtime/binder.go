package runtime

import (
	"context"
	"log/slog"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// Binder owns the extraction lifecycle and the "can we proceed" gate.
type Binder struct {
	vars      *Variables
	extractor ports.Extractor
	logger    *slog.Logger
}

// NewBinder creates a binder over vars. A nil extractor never binds anything.
func NewBinder(vars *Variables, extractor ports.Extractor, logger *slog.Logger) *Binder {
	return &Binder{vars: vars, extractor: extractor, logger: logger}
}

// Extract asks the extractor for every spec that is unbound or allows updates.
// Specs the extractor cannot resolve stay unbound. It returns the names bound by this call.
func (b *Binder) Extract(ctx context.Context, specs []domain.ExtractVariableSpec, turn ports.TurnContext) []string {
	if b.extractor == nil || len(specs) == 0 {
		return nil
	}

	var bound []string
	for _, spec := range specs {
		if b.vars.IsBound(spec.Name) && !spec.AllowUpdate {
			continue
		}
		value, ok, err := b.extractor.Extract(ctx, spec, turn)
		if err != nil {
			b.logger.Warn("extraction failed", "node_id", turn.NodeID, "variable", spec.Name, "err", err)
			continue
		}
		if !ok || value == nil {
			continue
		}
		b.vars.Set(spec.Name, value)
		if turn.Variables != nil {
			turn.Variables[spec.Name] = value
		}
		bound = append(bound, spec.Name)
	}
	return bound
}

// IsSatisfied reports whether every required spec has a bound value.
func (b *Binder) IsSatisfied(specs []domain.ExtractVariableSpec) bool {
	return len(b.Missing(specs)) == 0
}

// Missing lists required specs without a bound value, in declaration order.
func (b *Binder) Missing(specs []domain.ExtractVariableSpec) []string {
	var missing []string
	for _, spec := range specs {
		if spec.IsRequired() && !b.vars.IsBound(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// RepromptFor returns the re-ask for spec.
func (b *Binder) RepromptFor(spec domain.ExtractVariableSpec) domain.Reprompt {
	return domain.RepromptFor(spec)
}

// Reprompts returns one reprompt per name. Names without a spec get a generated instruction.
func (b *Binder) Reprompts(specs []domain.ExtractVariableSpec, names []string) []domain.Reprompt {
	byName := make(map[string]domain.ExtractVariableSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	out := make([]domain.Reprompt, 0, len(names))
	for _, name := range names {
		spec, ok := byName[name]
		if !ok {
			spec = domain.ExtractVariableSpec{Name: name}
		}
		out = append(out, b.RepromptFor(spec))
	}
	return out
}
