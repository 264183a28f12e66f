package domain

// ValueType selects how a logic split condition compares.
type ValueType string

const (
	ValueString    ValueType = "string"
	ValueNumber    ValueType = "number"
	ValueExistence ValueType = "existence"
)

// Operator is a logic split comparison.
type Operator string

const (
	OpExists    Operator = "exists"
	OpNotExists Operator = "not_exists"

	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"

	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

var operatorsByType = map[ValueType][]Operator{
	ValueExistence: {OpExists, OpNotExists},
	ValueNumber: {
		OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual,
		OpEquals, OpNotEquals,
	},
	ValueString: {OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith},
}

// Supports reports whether op is defined for value type t.
func (t ValueType) Supports(op Operator) bool {
	for _, known := range operatorsByType[t] {
		if known == op {
			return true
		}
	}
	return false
}

// LogicSplitCondition is one deterministic branch of a logic_split node.
type LogicSplitCondition struct {
	Variable  string    `json:"variable" yaml:"variable" mapstructure:"variable"`
	ValueType ValueType `json:"value_type" yaml:"value_type" mapstructure:"value_type"`
	Operator  Operator  `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value     string    `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
	NextNode  string    `json:"next_node" yaml:"next_node" mapstructure:"next_node"`
}
