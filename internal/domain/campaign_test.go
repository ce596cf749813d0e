package domain

import (
	"testing"
)

func testSpace() ParameterSpace {
	return ParameterSpace{Parameters: []Parameter{
		NewContinuous("x", 0, 10),
		NewCategorical("y", []string{"A", "B", "C"}),
	}}
}

func testObjectives() []Objective {
	return []Objective{{Name: "z", Direction: Maximize}}
}

func TestNewCampaign(t *testing.T) {
	c, err := NewCampaign("test", testSpace(), testObjectives(), DefaultSettings())
	if err != nil {
		t.Fatalf("NewCampaign() error = %v", err)
	}
	if c.Version != 1 {
		t.Errorf("Version = %d, want 1", c.Version)
	}
	if c.ID == "" {
		t.Error("ID is empty")
	}
	if c.Settings.SurrogateModel != DefaultSurrogateModel {
		t.Errorf("SurrogateModel = %q, want %q", c.Settings.SurrogateModel, DefaultSurrogateModel)
	}
}

func TestNewCampaignValidation(t *testing.T) {
	tests := []struct {
		name       string
		campName   string
		space      ParameterSpace
		objectives []Objective
	}{
		{"bad parameter space", "c", ParameterSpace{}, testObjectives()},
		{"no objectives", "c", testSpace(), nil},
		{"empty name", "", testSpace(), testObjectives()},
		{"objective collides with parameter", "c", testSpace(), []Objective{{Name: "x", Direction: Maximize}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCampaign(tt.campName, tt.space, tt.objectives, DefaultSettings()); err == nil {
				t.Error("NewCampaign() = nil error, want ValidationError")
			}
		})
	}
}

func TestCampaignApply(t *testing.T) {
	t.Run("rename is not structural", func(t *testing.T) {
		c, _ := NewCampaign("old", testSpace(), testObjectives(), DefaultSettings())
		name := "new"
		structural, err := c.Apply(Edit{Name: &name})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if structural {
			t.Error("rename reported as structural")
		}
		if c.Version != 1 {
			t.Errorf("Version = %d, want 1", c.Version)
		}
		if c.Name != "new" {
			t.Errorf("Name = %q, want %q", c.Name, "new")
		}
	})

	t.Run("parameter change bumps version", func(t *testing.T) {
		c, _ := NewCampaign("c", testSpace(), testObjectives(), DefaultSettings())
		oldHash := c.Hash()
		space := ParameterSpace{Parameters: []Parameter{
			NewContinuous("x", 0, 20),
			NewCategorical("y", []string{"A", "B", "C"}),
		}}
		structural, err := c.Apply(Edit{Space: &space})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if !structural {
			t.Error("domain change not reported as structural")
		}
		if c.Version != 2 {
			t.Errorf("Version = %d, want 2", c.Version)
		}
		if c.Hash() == oldHash {
			t.Error("Hash() unchanged after structural edit")
		}
	})

	t.Run("settings change bumps version", func(t *testing.T) {
		c, _ := NewCampaign("c", testSpace(), testObjectives(), DefaultSettings())
		s := c.Settings
		s.AcquisitionFunction = "qEI"
		structural, err := c.Apply(Edit{Settings: &s})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if !structural || c.Version != 2 {
			t.Errorf("structural = %v, Version = %d, want true, 2", structural, c.Version)
		}
	})

	t.Run("initial dataset change bumps version", func(t *testing.T) {
		c, _ := NewCampaign("c", testSpace(), testObjectives(), DefaultSettings())
		seeds := []Seed{{
			Values:       Row{"x": 3.0, "y": "A"},
			Measurements: map[string]float64{"z": 0.9},
		}}
		structural, err := c.Apply(Edit{InitialDataset: seeds})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if !structural || c.Version != 2 {
			t.Errorf("structural = %v, Version = %d, want true, 2", structural, c.Version)
		}
	})

	t.Run("invalid edit leaves campaign untouched", func(t *testing.T) {
		c, _ := NewCampaign("c", testSpace(), testObjectives(), DefaultSettings())
		if _, err := c.Apply(Edit{Objectives: []Objective{}}); err == nil {
			t.Fatal("Apply() with empty objectives = nil error")
		}
		if c.Version != 1 || len(c.Objectives) != 1 {
			t.Error("failed edit mutated the campaign")
		}
	})
}

func TestCampaignHash(t *testing.T) {
	c1, _ := NewCampaign("a", testSpace(), testObjectives(), DefaultSettings())
	c2, _ := NewCampaign("b", testSpace(), testObjectives(), DefaultSettings())
	if c1.Hash() != c2.Hash() {
		t.Error("hash depends on identity or name; want content-only hash")
	}

	c3, _ := NewCampaign("a", testSpace(), []Objective{{Name: "z", Direction: Minimize}}, DefaultSettings())
	if c1.Hash() == c3.Hash() {
		t.Error("hash identical across different objectives")
	}

	s := DefaultSettings()
	s.Extra = map[string]string{"kernel": "matern52", "ard": "true"}
	c4, _ := NewCampaign("a", testSpace(), testObjectives(), s)
	if c1.Hash() == c4.Hash() {
		t.Error("hash identical across different settings")
	}
	// Hash must be stable across calls (map iteration must not leak in).
	if c4.Hash() != c4.Hash() {
		t.Error("hash not deterministic")
	}
}
