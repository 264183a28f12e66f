package runtime

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Variables is the session-scoped variable namespace.
// Every node reads and writes the same instance; async webhooks write to it concurrently.
type Variables struct {
	mu      sync.RWMutex
	values  map[string]any
	pending map[string]int
}

// NewVariables creates a namespace seeded with initial.
func NewVariables(initial map[string]any) *Variables {
	v := &Variables{
		values:  make(map[string]any, len(initial)),
		pending: make(map[string]int),
	}
	for k, val := range initial {
		v.values[k] = val
	}
	return v
}

// Lookup returns the value bound to name.
// Dotted names read into structured values with gjson path syntax, e.g. "webhook_response.data.status".
// Pending and nil values read as unbound.
func (v *Variables) Lookup(name string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.pending[name] > 0 {
		return nil, false
	}
	if val, ok := v.values[name]; ok {
		return val, val != nil
	}

	root, path, found := strings.Cut(name, ".")
	if !found || v.pending[root] > 0 {
		return nil, false
	}
	base, ok := v.values[root]
	if !ok || base == nil {
		return nil, false
	}
	return readPath(base, path)
}

func readPath(base any, path string) (any, bool) {
	var doc []byte
	switch t := base.(type) {
	case string:
		doc = []byte(t)
	case []byte:
		doc = t
	default:
		b, err := json.Marshal(base)
		if err != nil {
			return nil, false
		}
		doc = b
	}
	if !gjson.ValidBytes(doc) {
		return nil, false
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() || res.Type == gjson.Null {
		return nil, false
	}
	return res.Value(), true
}

// IsBound reports whether name has a non-nil value that is not pending.
func (v *Variables) IsBound(name string) bool {
	_, ok := v.Lookup(name)
	return ok
}

// Set binds name to value.
func (v *Variables) Set(name string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[name] = value
}

// Unset removes name.
func (v *Variables) Unset(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, name)
}

// MarkPending hides name until the matching Resolve call.
func (v *Variables) MarkPending(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending[name]++
}

// Resolve ends one pending write. When ok is false name is unbound.
func (v *Variables) Resolve(name string, value any, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ok {
		v.values[name] = value
	} else {
		delete(v.values, name)
	}
	if v.pending[name] <= 1 {
		delete(v.pending, name)
	} else {
		v.pending[name]--
	}
}

// Pending lists names awaiting an async write, sorted.
func (v *Variables) Pending() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.pending))
	for name := range v.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the bound values. Pending names are left out.
func (v *Variables) Snapshot() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		if v.pending[k] > 0 {
			continue
		}
		out[k] = val
	}
	return out
}

// IsEmpty reports whether a bound value carries no content.
func IsEmpty(val any) bool {
	if val == nil {
		return true
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
