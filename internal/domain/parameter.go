package domain

import (
	"errors"
	"math"
	"strings"
)

// ParameterKind identifies the domain type of a parameter.
type ParameterKind string

const (
	KindContinuous        ParameterKind = "continuous_numerical"
	KindDiscreteRegular   ParameterKind = "discrete_numerical_regular"
	KindDiscreteIrregular ParameterKind = "discrete_numerical_irregular"
	KindCategorical       ParameterKind = "categorical"
	KindFixed             ParameterKind = "fixed"
	KindSubstance         ParameterKind = "substance"
)

// stepEpsilon absorbs float rounding when checking grid membership.
const stepEpsilon = 1e-9

// Parameter is one controllable variable of an experiment. Which domain
// fields are meaningful depends on Kind:
//
//	continuous_numerical          Low, High
//	discrete_numerical_regular    Low, High, Step
//	discrete_numerical_irregular  Levels
//	categorical                   Categories
//	fixed                         FixedValue (float64 or string)
//	substance                     Smiles
type Parameter struct {
	Name       string
	Kind       ParameterKind
	Low        float64
	High       float64
	Step       float64
	Levels     []float64
	Categories []string
	Smiles     []string
	FixedValue any
}

// NewContinuous creates a continuous parameter over [low, high].
func NewContinuous(name string, low, high float64) Parameter {
	return Parameter{Name: strings.TrimSpace(name), Kind: KindContinuous, Low: low, High: high}
}

// NewDiscreteRegular creates a discrete parameter over the grid low, low+step, ..., high.
func NewDiscreteRegular(name string, low, high, step float64) Parameter {
	return Parameter{Name: strings.TrimSpace(name), Kind: KindDiscreteRegular, Low: low, High: high, Step: step}
}

// NewDiscreteIrregular creates a discrete parameter over an explicit level set.
func NewDiscreteIrregular(name string, levels []float64) Parameter {
	out := make([]float64, len(levels))
	copy(out, levels)
	return Parameter{Name: strings.TrimSpace(name), Kind: KindDiscreteIrregular, Levels: out}
}

// NewCategorical creates a categorical parameter over string levels.
// Levels are trimmed of surrounding whitespace.
func NewCategorical(name string, categories []string) Parameter {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = strings.TrimSpace(c)
	}
	return Parameter{Name: strings.TrimSpace(name), Kind: KindCategorical, Categories: out}
}

// NewFixed creates a parameter pinned to a single value. Numeric values must
// be float64 so that serialized and in-memory representations agree.
func NewFixed(name string, value any) Parameter {
	return Parameter{Name: strings.TrimSpace(name), Kind: KindFixed, FixedValue: value}
}

// NewSubstance creates a chemistry parameter over a pool of SMILES strings.
// Fallback sampling draws uniformly from the pool.
func NewSubstance(name string, smiles []string) Parameter {
	out := make([]string, len(smiles))
	for i, s := range smiles {
		out[i] = strings.TrimSpace(s)
	}
	return Parameter{Name: strings.TrimSpace(name), Kind: KindSubstance, Smiles: out}
}

// Validate checks that the parameter's domain is non-empty and internally
// consistent. The returned error is a *ValidationError.
func (p Parameter) Validate() error {
	ve := &ValidationError{}
	if p.Name == "" {
		ve.Addf("parameter name cannot be empty")
	}
	switch p.Kind {
	case KindContinuous:
		if p.Low >= p.High {
			ve.Addf("parameter %q: minimum value must be less than maximum value", p.Name)
		}
	case KindDiscreteRegular:
		if p.Low >= p.High {
			ve.Addf("parameter %q: minimum value must be less than maximum value", p.Name)
		}
		if p.Step <= 0 {
			ve.Addf("parameter %q: step size must be positive", p.Name)
		} else if p.Step > p.High-p.Low {
			ve.Addf("parameter %q: step size cannot be larger than the range", p.Name)
		}
	case KindDiscreteIrregular:
		if len(p.Levels) == 0 {
			ve.Addf("parameter %q: at least one value is required", p.Name)
		}
		seen := make(map[float64]bool, len(p.Levels))
		for _, v := range p.Levels {
			if seen[v] {
				ve.Addf("parameter %q: duplicate values are not allowed", p.Name)
				break
			}
			seen[v] = true
		}
	case KindCategorical:
		if len(p.Categories) == 0 {
			ve.Addf("parameter %q: at least one category is required", p.Name)
		}
		seen := make(map[string]bool, len(p.Categories))
		for i, c := range p.Categories {
			if c == "" {
				ve.Addf("parameter %q: category at index %d cannot be empty", p.Name, i)
				continue
			}
			if seen[c] {
				ve.Addf("parameter %q: duplicate categories are not allowed", p.Name)
				break
			}
			seen[c] = true
		}
	case KindFixed:
		switch p.FixedValue.(type) {
		case float64, string:
		case nil:
			ve.Addf("parameter %q: fixed value cannot be empty", p.Name)
		default:
			ve.Addf("parameter %q: fixed value must be a number or a string", p.Name)
		}
	case KindSubstance:
		if len(p.Smiles) == 0 {
			ve.Addf("parameter %q: at least one SMILES string is required", p.Name)
		}
		seen := make(map[string]bool, len(p.Smiles))
		for i, s := range p.Smiles {
			if s == "" {
				ve.Addf("parameter %q: SMILES at index %d cannot be empty", p.Name, i)
				continue
			}
			if err := checkSMILES(s); err != nil {
				ve.Addf("parameter %q: SMILES at index %d: %v", p.Name, i, err)
			}
			if seen[s] {
				ve.Addf("parameter %q: duplicate SMILES strings are not allowed", p.Name)
				break
			}
			seen[s] = true
		}
	default:
		ve.Addf("parameter %q: unknown kind %q", p.Name, p.Kind)
	}
	return ve.OrNil()
}

// Contains reports whether v lies within the parameter's declared domain.
// Numeric kinds expect float64; categorical and substance kinds expect string.
func (p Parameter) Contains(v any) bool {
	switch p.Kind {
	case KindContinuous:
		f, ok := v.(float64)
		return ok && f >= p.Low && f <= p.High
	case KindDiscreteRegular:
		f, ok := v.(float64)
		if !ok || f < p.Low-stepEpsilon || f > p.High+stepEpsilon {
			return false
		}
		steps := (f - p.Low) / p.Step
		return math.Abs(steps-math.Round(steps)) < stepEpsilon
	case KindDiscreteIrregular:
		f, ok := v.(float64)
		if !ok {
			return false
		}
		for _, lvl := range p.Levels {
			if math.Abs(f-lvl) < stepEpsilon {
				return true
			}
		}
		return false
	case KindCategorical:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, c := range p.Categories {
			if s == c {
				return true
			}
		}
		return false
	case KindFixed:
		return v == p.FixedValue
	case KindSubstance:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, sm := range p.Smiles {
			if s == sm {
				return true
			}
		}
		return false
	}
	return false
}

// IsNumeric reports whether the parameter carries float64 values.
func (p Parameter) IsNumeric() bool {
	switch p.Kind {
	case KindContinuous, KindDiscreteRegular, KindDiscreteIrregular:
		return true
	case KindFixed:
		_, ok := p.FixedValue.(float64)
		return ok
	}
	return false
}

// checkSMILES performs structural validation of a SMILES string: no
// whitespace, balanced brackets and an allowed character set. Full chemical
// validity is the optimization engine's concern.
func checkSMILES(s string) error {
	var parens, brackets int
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return errInvalidWhitespace
		case r == '(':
			parens++
		case r == ')':
			parens--
		case r == '[':
			brackets++
		case r == ']':
			brackets--
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("=#@+-/\\%.*:", r):
		default:
			return errInvalidSMILESChar
		}
		if parens < 0 || brackets < 0 {
			return errUnbalancedSMILES
		}
	}
	if parens != 0 || brackets != 0 {
		return errUnbalancedSMILES
	}
	return nil
}

var (
	errInvalidWhitespace = &ValidationError{Problems: []string{"contains whitespace characters"}}
	errInvalidSMILESChar = &ValidationError{Problems: []string{"contains characters outside the SMILES alphabet"}}
	errUnbalancedSMILES  = &ValidationError{Problems: []string{"has unbalanced brackets"}}
)

// ParameterSpace is the ordered set of a campaign's parameters.
type ParameterSpace struct {
	Parameters []Parameter
}

// Validate checks every parameter and rejects duplicate names.
func (s ParameterSpace) Validate() error {
	ve := &ValidationError{}
	if len(s.Parameters) == 0 {
		ve.Addf("parameter space cannot be empty")
	}
	seen := make(map[string]bool, len(s.Parameters))
	for _, p := range s.Parameters {
		if seen[p.Name] {
			ve.Addf("duplicate parameter name %q", p.Name)
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			var pe *ValidationError
			if errors.As(err, &pe) {
				ve.Problems = append(ve.Problems, pe.Problems...)
			} else {
				ve.Addf("%v", err)
			}
		}
	}
	return ve.OrNil()
}

// Names returns parameter names in declaration order.
func (s ParameterSpace) Names() []string {
	names := make([]string, len(s.Parameters))
	for i, p := range s.Parameters {
		names[i] = p.Name
	}
	return names
}

// Get returns the parameter with the given name.
func (s ParameterSpace) Get(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// CheckRow verifies that a row assigns an in-domain value to every parameter
// and nothing else. The returned error is a *ValidationError.
func (s ParameterSpace) CheckRow(row Row) error {
	ve := &ValidationError{}
	for _, p := range s.Parameters {
		v, ok := row[p.Name]
		if !ok {
			ve.Addf("row is missing parameter %q", p.Name)
			continue
		}
		if !p.Contains(v) {
			ve.Addf("value %v is outside the domain of parameter %q", v, p.Name)
		}
	}
	for name := range row {
		if _, ok := s.Get(name); !ok {
			ve.Addf("row assigns unknown parameter %q", name)
		}
	}
	return ve.OrNil()
}
