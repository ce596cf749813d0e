package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tunex-app/tunex/internal/domain"
)

// specFile is the YAML shape of a campaign definition file.
type specFile struct {
	Name           string          `yaml:"name"`
	Description    string          `yaml:"description"`
	Parameters     []specParameter `yaml:"parameters"`
	Objectives     []specObjective `yaml:"objectives"`
	Settings       *specSettings   `yaml:"settings"`
	InitialDataset []specSeed      `yaml:"initial_dataset"`
}

// specSeed is one pre-campaign experiment imported as training data.
type specSeed struct {
	Values       map[string]any     `yaml:"values"`
	Measurements map[string]float64 `yaml:"measurements"`
}

type specParameter struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Min    *float64  `yaml:"min"`
	Max    *float64  `yaml:"max"`
	Step   *float64  `yaml:"step"`
	Values []float64 `yaml:"values"`
	Levels []string  `yaml:"levels"`
	Smiles []string  `yaml:"smiles"`
	Value  any       `yaml:"value"`
}

type specObjective struct {
	Name      string   `yaml:"name"`
	Direction string   `yaml:"direction"`
	Weight    float64  `yaml:"weight"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
}

type specSettings struct {
	SurrogateModel      string            `yaml:"surrogate_model"`
	AcquisitionFunction string            `yaml:"acquisition_function"`
	Extra               map[string]string `yaml:"extra"`
}

// loadSpecFile reads and converts a campaign definition file.
func loadSpecFile(path string) (*specFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec specFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &spec, nil
}

func (s *specFile) space() (domain.ParameterSpace, error) {
	var space domain.ParameterSpace
	for _, p := range s.Parameters {
		param, err := p.toDomain()
		if err != nil {
			return domain.ParameterSpace{}, err
		}
		space.Parameters = append(space.Parameters, param)
	}
	return space, nil
}

func (p specParameter) toDomain() (domain.Parameter, error) {
	switch domain.ParameterKind(p.Type) {
	case domain.KindContinuous:
		if p.Min == nil || p.Max == nil {
			return domain.Parameter{}, fmt.Errorf("parameter %q needs min and max", p.Name)
		}
		return domain.NewContinuous(p.Name, *p.Min, *p.Max), nil
	case domain.KindDiscreteRegular:
		if p.Min == nil || p.Max == nil || p.Step == nil {
			return domain.Parameter{}, fmt.Errorf("parameter %q needs min, max and step", p.Name)
		}
		return domain.NewDiscreteRegular(p.Name, *p.Min, *p.Max, *p.Step), nil
	case domain.KindDiscreteIrregular:
		return domain.NewDiscreteIrregular(p.Name, p.Values), nil
	case domain.KindCategorical:
		return domain.NewCategorical(p.Name, p.Levels), nil
	case domain.KindFixed:
		return domain.NewFixed(p.Name, normalizeValue(p.Value)), nil
	case domain.KindSubstance:
		return domain.NewSubstance(p.Name, p.Smiles), nil
	default:
		return domain.Parameter{}, fmt.Errorf("parameter %q has unknown type %q", p.Name, p.Type)
	}
}

// normalizeValue coerces YAML numbers to float64 so fixed values and seed
// rows compare the way suggested rows store them.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64, string:
		return x
	default:
		return v
	}
}

func (s *specFile) initialDataset() []domain.Seed {
	var out []domain.Seed
	for _, seed := range s.InitialDataset {
		values := make(domain.Row, len(seed.Values))
		for k, v := range seed.Values {
			values[k] = normalizeValue(v)
		}
		out = append(out, domain.Seed{Values: values, Measurements: seed.Measurements})
	}
	return out
}

func (s *specFile) objectives() []domain.Objective {
	var out []domain.Objective
	for _, o := range s.Objectives {
		out = append(out, domain.Objective{
			Name:      o.Name,
			Direction: domain.Direction(o.Direction),
			Weight:    o.Weight,
			Min:       o.Min,
			Max:       o.Max,
		})
	}
	return out
}

func (s *specFile) engineSettings() domain.Settings {
	if s.Settings == nil {
		return domain.DefaultSettings()
	}
	out := domain.Settings{
		SurrogateModel:      s.Settings.SurrogateModel,
		AcquisitionFunction: s.Settings.AcquisitionFunction,
		Extra:               s.Settings.Extra,
	}
	if out.SurrogateModel == "" {
		out.SurrogateModel = domain.DefaultSurrogateModel
	}
	if out.AcquisitionFunction == "" {
		out.AcquisitionFunction = domain.DefaultAcquisitionFunction
	}
	return out
}
