package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default surrogate/acquisition settings.
const (
	DefaultSurrogateModel      = "GaussianProcess"
	DefaultAcquisitionFunction = "qLogEI"
)

// Settings is the opaque surrogate/acquisition configuration bag handed to
// the external engine. The core never interprets it beyond hashing.
type Settings struct {
	SurrogateModel      string
	AcquisitionFunction string
	Extra               map[string]string
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		SurrogateModel:      DefaultSurrogateModel,
		AcquisitionFunction: DefaultAcquisitionFunction,
	}
}

// Seed is one experiment imported from before the campaign existed:
// parameter values and the measurements taken for them. Seeds feed the
// engine's training data alongside recorded batch results.
type Seed struct {
	Values       Row
	Measurements map[string]float64
}

// Campaign aggregates a parameter space, objectives and engine settings into
// one versioned unit. Version starts at 1 and is bumped by every structural
// edit; renames and description changes touch only UpdatedAt.
type Campaign struct {
	ID             string
	Name           string
	Description    string
	Space          ParameterSpace
	Objectives     []Objective
	Settings       Settings
	InitialDataset []Seed
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AccessedAt     time.Time
}

// NewCampaign validates the sub-specs and assembles a version-1 campaign.
func NewCampaign(name string, space ParameterSpace, objectives []Objective, settings Settings) (*Campaign, error) {
	c := &Campaign{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		Space:      space,
		Objectives: objectives,
		Settings:   settings,
		Version:    1,
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.AccessedAt = now
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the campaign and both sub-specs. Objective names must not
// collide with parameter names: both become columns of the same run CSV.
func (c *Campaign) Validate() error {
	ve := &ValidationError{}
	if c.Name == "" {
		ve.Addf("campaign name cannot be empty")
	}
	if err := c.Space.Validate(); err != nil {
		appendProblems(ve, err)
	}
	if err := ValidateObjectives(c.Objectives); err != nil {
		appendProblems(ve, err)
	}
	for _, o := range c.Objectives {
		if _, clash := c.Space.Get(o.Name); clash {
			ve.Addf("objective %q collides with a parameter of the same name", o.Name)
		}
	}
	return ve.OrNil()
}

func appendProblems(ve *ValidationError, err error) {
	var pe *ValidationError
	if errors.As(err, &pe) {
		ve.Problems = append(ve.Problems, pe.Problems...)
		return
	}
	ve.Addf("%v", err)
}

// Edit describes a requested change to a campaign. Nil fields are left
// untouched. A nil Objectives or InitialDataset slice means "no change"; an
// empty non-nil Objectives slice is a (rejected) attempt to remove all
// objectives.
type Edit struct {
	Name           *string
	Description    *string
	Space          *ParameterSpace
	Objectives     []Objective
	Settings       *Settings
	InitialDataset []Seed
}

// Apply applies the edit, validates the result, and reports whether the edit
// was structural. Structural edits bump Version; the campaign is left
// unchanged when validation fails.
func (c *Campaign) Apply(e Edit) (structural bool, err error) {
	next := *c
	if e.Name != nil {
		next.Name = strings.TrimSpace(*e.Name)
	}
	if e.Description != nil {
		next.Description = *e.Description
	}
	if e.Space != nil {
		next.Space = *e.Space
	}
	if e.Objectives != nil {
		next.Objectives = e.Objectives
	}
	if e.Settings != nil {
		next.Settings = *e.Settings
	}
	if e.InitialDataset != nil {
		next.InitialDataset = e.InitialDataset
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	structural = next.Hash() != c.Hash()
	if structural {
		next.Version = c.Version + 1
	}
	next.UpdatedAt = time.Now()
	*c = next
	return structural, nil
}

// Hash returns a deterministic content hash over parameters, objectives and
// settings. Timestamps, identity and display fields are excluded, so two
// campaigns with the same optimization problem hash identically. Persisted
// optimizer state tagged with a different hash is stale.
func (c *Campaign) Hash() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, p := range c.Space.Parameters {
		enc.Encode(hashedParameter(p))
	}
	for _, o := range c.Objectives {
		enc.Encode(hashedObjective(o))
	}
	enc.Encode(hashedSettings(c.Settings))
	// Seeds are training data, so a changed initial dataset stales the state.
	// json.Encoder writes map keys sorted, which keeps this deterministic.
	for _, seed := range c.InitialDataset {
		enc.Encode(seed)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashedParameter projects a parameter into a canonical, order-stable form.
func hashedParameter(p Parameter) map[string]any {
	m := map[string]any{"name": p.Name, "type": string(p.Kind)}
	switch p.Kind {
	case KindContinuous:
		m["min"], m["max"] = p.Low, p.High
	case KindDiscreteRegular:
		m["min"], m["max"], m["step"] = p.Low, p.High, p.Step
	case KindDiscreteIrregular:
		m["values"] = p.Levels
	case KindCategorical:
		m["values"] = p.Categories
	case KindFixed:
		m["value"] = p.FixedValue
	case KindSubstance:
		m["values"] = p.Smiles
	}
	return m
}

func hashedObjective(o Objective) map[string]any {
	m := map[string]any{"name": o.Name, "direction": string(o.Direction), "weight": o.Weight}
	if o.Min != nil {
		m["min"] = *o.Min
	}
	if o.Max != nil {
		m["max"] = *o.Max
	}
	return m
}

func hashedSettings(s Settings) map[string]any {
	m := map[string]any{
		"surrogate_model":      s.SurrogateModel,
		"acquisition_function": s.AcquisitionFunction,
	}
	if len(s.Extra) > 0 {
		keys := make([]string, 0, len(s.Extra))
		for k := range s.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		extra := make([][2]string, len(keys))
		for i, k := range keys {
			extra[i] = [2]string{k, s.Extra[k]}
		}
		m["extra"] = extra
	}
	return m
}
