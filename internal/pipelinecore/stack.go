package pipelinecore

// StackStep is one entry of a StackTemplate's step list.
type StackStep struct {
	Processor string         `json:"processor" yaml:"processor"`
	Options   map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
	// Condition is decoded from the template but not evaluated: the
	// executor runs every step whatever its Condition holds.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// StackTemplate is the reusable, immutable (identity-comparable-by-ID)
// declaration of a stack.
type StackTemplate struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StackStep `json:"steps" yaml:"steps"`
}

// StackConfig is a modifier bundle applied to a StackTemplate's steps
// before execution, by the stack configurator.
type StackConfig struct {
	ProcessorSwaps    map[string]string         `json:"processorSwaps,omitempty"`
	InsertProcessors  []InsertSpec              `json:"insertProcessors,omitempty"`
	ProcessorOptions  map[string]map[string]any `json:"processorOptions,omitempty"`
	StrictIOValidation bool                     `json:"strictIOValidation,omitempty"`
}

// InsertSpec describes one processor insertion: the new step is placed
// immediately after the first existing step whose processor id equals
// After.
type InsertSpec struct {
	After     string         `json:"after"`
	Processor string         `json:"processor"`
	Options   map[string]any `json:"options,omitempty"`
}

// RequiredInputs returns the first step's declared Requires, or nil if
// the stack is empty — the round-trip law getRequiredInputs(stack).
func RequiredInputs(steps []StackStep, reg *Registry) []DataPath {
	if len(steps) == 0 {
		return nil
	}
	p, ok := reg.Get(steps[0].Processor)
	if !ok {
		return nil
	}
	return p.IO().Requires
}

// ProducedOutputs returns the union of every step's declared Produces —
// the round-trip law getProducedOutputs(stack).
func ProducedOutputs(steps []StackStep, reg *Registry) []DataPath {
	set := make(map[DataPath]bool)
	for _, s := range steps {
		p, ok := reg.Get(s.Processor)
		if !ok {
			continue
		}
		for _, out := range p.IO().Produces {
			set[out] = true
		}
	}
	result := make([]DataPath, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	return result
}
