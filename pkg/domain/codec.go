package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Document keys of the transition strategy. They live inside a node's data object.
const (
	KeyAutoTransitionTo            = "auto_transition_to"
	KeyAutoTransitionAfterResponse = "auto_transition_after_response"
	KeyTransitions                 = "transitions"
)

// Flow is the authored graph of one agent. Node order only matters for display.
type Flow struct {
	Nodes []Node
}

// MarshalJSON encodes the flow as a bare array of nodes.
func (f Flow) MarshalJSON() ([]byte, error) {
	if f.Nodes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.Nodes)
}

// UnmarshalJSON accepts either an array of nodes or an object with a "nodes" array.
func (f *Flow) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Nodes []Node `json:"nodes"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return err
		}
		f.Nodes = wrapper.Nodes
		return nil
	}
	return json.Unmarshal(trimmed, &f.Nodes)
}

// MarshalYAML encodes the flow as a sequence of nodes.
func (f Flow) MarshalYAML() (any, error) {
	if f.Nodes == nil {
		return []Node{}, nil
	}
	return f.Nodes, nil
}

// UnmarshalYAML accepts either a sequence of nodes or a mapping with a "nodes" key.
func (f *Flow) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		var wrapper struct {
			Nodes []Node `yaml:"nodes"`
		}
		if err := value.Decode(&wrapper); err != nil {
			return err
		}
		f.Nodes = wrapper.Nodes
		return nil
	}
	return value.Decode(&f.Nodes)
}

// ParseFlowJSON decodes a JSON flow document.
func ParseFlowJSON(b []byte) (*Flow, error) {
	var f Flow
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &f, nil
}

// ParseFlowYAML decodes a YAML flow document.
func ParseFlowYAML(b []byte) (*Flow, error) {
	var f Flow
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &f, nil
}

// ParseFlow sniffs the document format. JSON documents start with '[' or '{'.
func ParseFlow(b []byte) (*Flow, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return ParseFlowJSON(trimmed)
	}
	return ParseFlowYAML(trimmed)
}

// MarshalJSON writes the {id, kind, label, data} envelope.
func (n Node) MarshalJSON() ([]byte, error) {
	doc, err := n.document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the envelope and decodes data according to kind.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	return n.fromDocument(raw)
}

// MarshalYAML writes the same envelope as MarshalJSON.
func (n Node) MarshalYAML() (any, error) {
	return n.document()
}

// UnmarshalYAML reads the envelope and decodes data according to kind.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return n.fromDocument(raw)
}

type nodeDocument struct {
	ID    string         `json:"id" yaml:"id"`
	Kind  NodeKind       `json:"kind" yaml:"kind"`
	Label string         `json:"label,omitempty" yaml:"label,omitempty"`
	Data  map[string]any `json:"data" yaml:"data"`
}

func (n Node) document() (nodeDocument, error) {
	doc := nodeDocument{ID: n.ID, Kind: n.Kind, Label: n.Label, Data: map[string]any{}}
	if n.Data != nil {
		// encoding/json flattens the embedded Content and drops Routing.
		b, err := json.Marshal(n.Data)
		if err != nil {
			return doc, fmt.Errorf("encode node '%s': %w", n.ID, err)
		}
		if err := json.Unmarshal(b, &doc.Data); err != nil {
			return doc, fmt.Errorf("encode node '%s': %w", n.ID, err)
		}
	}

	strategy := n.Orphaned
	if s := n.Strategy(); s != nil {
		strategy = s
	}
	switch s := strategy.(type) {
	case Fixed:
		doc.Data[KeyAutoTransitionTo] = s.Target
	case AfterAnyResponse:
		doc.Data[KeyAutoTransitionAfterResponse] = s.Target
	case Conditional:
		if len(s.Transitions) > 0 {
			doc.Data[KeyTransitions] = s.Transitions
		}
	}
	return doc, nil
}

func (n *Node) fromDocument(raw map[string]any) error {
	id, _ := raw["id"].(string)
	label, _ := raw["label"].(string)
	kind, _ := raw["kind"].(string)
	if kind == "" {
		// Editor exports name the discriminator "type".
		kind, _ = raw["type"].(string)
	}

	n.ID = id
	n.Label = label
	n.Kind = NodeKind(kind)

	data, ok := NewNodeData(n.Kind)
	if !ok {
		return fmt.Errorf("%w: '%s' on node '%s'", ErrUnknownKind, kind, id)
	}

	fields, _ := raw["data"].(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	if err := decodeInto(fields, data); err != nil {
		return fmt.Errorf("decode node '%s': %w", id, err)
	}
	normalizeSpecs(data)

	strategy, err := decodeStrategy(fields)
	if err != nil {
		return fmt.Errorf("decode node '%s': %w", id, err)
	}
	if r, ok := data.(interface{ SetStrategy(TransitionStrategy) }); ok {
		r.SetStrategy(strategy)
	} else if HasTransitions(strategy) {
		n.Orphaned = strategy
	}

	n.Data = data
	return nil
}

func decodeStrategy(fields map[string]any) (TransitionStrategy, error) {
	to, _ := fields[KeyAutoTransitionTo].(string)
	after, _ := fields[KeyAutoTransitionAfterResponse].(string)

	var transitions []Transition
	if rawTransitions, ok := fields[KeyTransitions]; ok && rawTransitions != nil {
		if err := decodeInto(rawTransitions, &transitions); err != nil {
			return nil, fmt.Errorf("transitions: %w", err)
		}
	}

	set := 0
	for _, present := range []bool{to != "", after != "", len(transitions) > 0} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, ErrAmbiguousStrategy
	}

	switch {
	case to != "":
		return Fixed{Target: to}, nil
	case after != "":
		return AfterAnyResponse{Target: after}, nil
	default:
		return Conditional{Transitions: transitions}, nil
	}
}

func decodeInto(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Squash:           true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// normalizeSpecs folds the mandatory alias into required.
func normalizeSpecs(data NodeData) {
	e, ok := data.(Extracting)
	if !ok {
		return
	}
	specs := e.Variables()
	for i := range specs {
		if specs[i].Mandatory {
			specs[i].Required = true
			specs[i].Mandatory = false
		}
	}
}
