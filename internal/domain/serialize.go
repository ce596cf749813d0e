package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the campaign config schema written by this build.
// Version 2 added the accessed_at timestamp.
const SchemaVersion = 2

type campaignJSON struct {
	SchemaVersion  int             `json:"schema_version"`
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Parameters     []parameterJSON `json:"parameters"`
	Objectives     []objectiveJSON `json:"objectives"`
	Settings       settingsJSON    `json:"settings"`
	InitialDataset []seedJSON      `json:"initial_dataset,omitempty"`
	Version        int             `json:"version"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	AccessedAt     string          `json:"accessed_at"`
}

type seedJSON struct {
	Values       map[string]any     `json:"values"`
	Measurements map[string]float64 `json:"measurements"`
}

type parameterJSON struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Constraints map[string]any `json:"constraints"`
}

type objectiveJSON struct {
	Name      string   `json:"name"`
	Direction string   `json:"direction"`
	Weight    float64  `json:"weight,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

type settingsJSON struct {
	SurrogateModel      string            `json:"surrogate_model"`
	AcquisitionFunction string            `json:"acquisition_function"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// EncodeCampaign serializes a campaign to its JSON wire form.
func EncodeCampaign(c *Campaign) ([]byte, error) {
	doc := campaignJSON{
		SchemaVersion: SchemaVersion,
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		Version:       c.Version,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     c.UpdatedAt.Format(time.RFC3339Nano),
		AccessedAt:    c.AccessedAt.Format(time.RFC3339Nano),
		Settings: settingsJSON{
			SurrogateModel:      c.Settings.SurrogateModel,
			AcquisitionFunction: c.Settings.AcquisitionFunction,
			Extra:               c.Settings.Extra,
		},
	}
	for _, p := range c.Space.Parameters {
		pj, err := encodeParameter(p)
		if err != nil {
			return nil, err
		}
		doc.Parameters = append(doc.Parameters, pj)
	}
	for _, o := range c.Objectives {
		doc.Objectives = append(doc.Objectives, objectiveJSON{
			Name:      o.Name,
			Direction: string(o.Direction),
			Weight:    o.Weight,
			Min:       o.Min,
			Max:       o.Max,
		})
	}
	for _, seed := range c.InitialDataset {
		doc.InitialDataset = append(doc.InitialDataset, seedJSON{
			Values:       seed.Values,
			Measurements: seed.Measurements,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

func encodeParameter(p Parameter) (parameterJSON, error) {
	pj := parameterJSON{Name: p.Name, Type: string(p.Kind)}
	switch p.Kind {
	case KindContinuous:
		pj.Constraints = map[string]any{"min": p.Low, "max": p.High}
	case KindDiscreteRegular:
		pj.Constraints = map[string]any{"min": p.Low, "max": p.High, "step": p.Step}
	case KindDiscreteIrregular:
		pj.Constraints = map[string]any{"values": p.Levels}
	case KindCategorical:
		pj.Constraints = map[string]any{"values": p.Categories}
	case KindFixed:
		pj.Constraints = map[string]any{"value": p.FixedValue}
	case KindSubstance:
		pj.Constraints = map[string]any{"values": p.Smiles}
	default:
		return pj, fmt.Errorf("cannot serialize parameter %q: unknown kind %q", p.Name, p.Kind)
	}
	return pj, nil
}

// DecodeCampaign parses a stored campaign, migrating older schema versions to
// the current one. Data written by a newer schema fails with
// ErrIncompatibleSchema. A successful migration bumps the campaign Version.
func DecodeCampaign(data []byte) (*Campaign, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing campaign config: %w", err)
	}
	if probe.SchemaVersion == 0 {
		// Version-1 files predate the schema_version field.
		probe.SchemaVersion = 1
	}
	if probe.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("stored schema version %d, supported up to %d: %w",
			probe.SchemaVersion, SchemaVersion, ErrIncompatibleSchema)
	}

	migrated := false
	if probe.SchemaVersion < SchemaVersion {
		var err error
		data, err = migrate(data, probe.SchemaVersion)
		if err != nil {
			return nil, err
		}
		migrated = true
	}

	var doc campaignJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing campaign config: %w", err)
	}

	c := &Campaign{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		Settings: Settings{
			SurrogateModel:      doc.Settings.SurrogateModel,
			AcquisitionFunction: doc.Settings.AcquisitionFunction,
			Extra:               doc.Settings.Extra,
		},
	}
	var err error
	if c.CreatedAt, err = parseTime(doc.CreatedAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if c.AccessedAt, err = parseTime(doc.AccessedAt); err != nil {
		return nil, fmt.Errorf("parsing accessed_at: %w", err)
	}
	for _, pj := range doc.Parameters {
		p, err := decodeParameter(pj)
		if err != nil {
			return nil, err
		}
		c.Space.Parameters = append(c.Space.Parameters, p)
	}
	for _, oj := range doc.Objectives {
		c.Objectives = append(c.Objectives, Objective{
			Name:      oj.Name,
			Direction: Direction(oj.Direction),
			Weight:    oj.Weight,
			Min:       oj.Min,
			Max:       oj.Max,
		})
	}
	for _, sj := range doc.InitialDataset {
		c.InitialDataset = append(c.InitialDataset, Seed{
			Values:       Row(sj.Values),
			Measurements: sj.Measurements,
		})
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if migrated {
		c.Version++
	}
	return c, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func decodeParameter(pj parameterJSON) (Parameter, error) {
	cons := pj.Constraints
	switch ParameterKind(pj.Type) {
	case KindContinuous:
		return NewContinuous(pj.Name, num(cons, "min"), num(cons, "max")), nil
	case KindDiscreteRegular:
		return NewDiscreteRegular(pj.Name, num(cons, "min"), num(cons, "max"), num(cons, "step")), nil
	case KindDiscreteIrregular:
		return NewDiscreteIrregular(pj.Name, nums(cons, "values")), nil
	case KindCategorical:
		return NewCategorical(pj.Name, strs(cons, "values")), nil
	case KindFixed:
		return NewFixed(pj.Name, cons["value"]), nil
	case KindSubstance:
		return NewSubstance(pj.Name, strs(cons, "values")), nil
	}
	return Parameter{}, fmt.Errorf("unknown parameter type %q for %q", pj.Type, pj.Name)
}

func num(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func nums(m map[string]any, key string) []float64 {
	raw, _ := m[key].([]any)
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

func strs(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
