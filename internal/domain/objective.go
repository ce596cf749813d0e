package domain

import "strings"

// Direction is the optimization direction of an objective.
type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
	// Match steers the objective toward the midpoint of [Min, Max].
	// It requires both bounds.
	Match Direction = "match"
)

// Objective is one optimization target. Weight 0 means "unspecified" and is
// treated as 1.0 when blending multiple objectives into a desirability score.
type Objective struct {
	Name      string
	Direction Direction
	Weight    float64
	Min       *float64
	Max       *float64
}

// NewObjective creates an objective with a trimmed name.
func NewObjective(name string, direction Direction) Objective {
	return Objective{Name: strings.TrimSpace(name), Direction: direction}
}

// Validate checks a single objective. The returned error is a *ValidationError.
func (o Objective) Validate() error {
	ve := &ValidationError{}
	if o.Name == "" {
		ve.Addf("objective name cannot be empty")
	}
	switch o.Direction {
	case Maximize, Minimize:
	case Match:
		if o.Min == nil || o.Max == nil {
			ve.Addf("objective %q: match direction requires both min and max bounds", o.Name)
		}
	default:
		ve.Addf("objective %q: invalid direction %q", o.Name, o.Direction)
	}
	if o.Min != nil && o.Max != nil && *o.Min >= *o.Max {
		ve.Addf("objective %q: min bound must be less than max bound", o.Name)
	}
	if o.Weight < 0 {
		ve.Addf("objective %q: weight cannot be negative", o.Name)
	}
	return ve.OrNil()
}

// effectiveWeight resolves the "unspecified" zero weight to the 1.0 default.
func (o Objective) effectiveWeight() float64 {
	if o.Weight == 0 {
		return 1.0
	}
	return o.Weight
}

// MatchValue returns the midpoint target for a match objective.
func (o Objective) MatchValue() float64 {
	if o.Min == nil || o.Max == nil {
		return 0
	}
	return (*o.Min + *o.Max) / 2
}

// ValidateObjectives checks an objective list: at least one entry, unique
// names, each entry valid.
func ValidateObjectives(objs []Objective) error {
	ve := &ValidationError{}
	if len(objs) == 0 {
		ve.Addf("at least one objective is required")
	}
	seen := make(map[string]bool, len(objs))
	for _, o := range objs {
		if seen[o.Name] {
			ve.Addf("duplicate objective name %q", o.Name)
		}
		seen[o.Name] = true
		if err := o.Validate(); err != nil {
			if pe, ok := err.(*ValidationError); ok {
				ve.Problems = append(ve.Problems, pe.Problems...)
			} else {
				ve.Addf("%v", err)
			}
		}
	}
	return ve.OrNil()
}

// DesirabilityWeights returns normalized blending weights by objective name.
// Unspecified weights default to 1.0. If every effective weight is zero the
// total is split equally.
func DesirabilityWeights(objs []Objective) map[string]float64 {
	if len(objs) == 0 {
		return map[string]float64{}
	}
	raw := make(map[string]float64, len(objs))
	total := 0.0
	for _, o := range objs {
		w := o.effectiveWeight()
		raw[o.Name] = w
		total += w
	}
	out := make(map[string]float64, len(objs))
	if total == 0 {
		equal := 1.0 / float64(len(objs))
		for name := range raw {
			out[name] = equal
		}
		return out
	}
	for name, w := range raw {
		out[name] = w / total
	}
	return out
}
