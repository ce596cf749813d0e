package domain

import (
	"math"
	"testing"
)

func f(v float64) *float64 { return &v }

func TestObjectiveValidate(t *testing.T) {
	tests := []struct {
		name    string
		obj     Objective
		wantErr bool
	}{
		{"valid maximize", Objective{Name: "yield", Direction: Maximize}, false},
		{"valid minimize with weight", Objective{Name: "cost", Direction: Minimize, Weight: 2}, false},
		{"valid match", Objective{Name: "ph", Direction: Match, Min: f(6), Max: f(8)}, false},
		{"match missing bounds", Objective{Name: "ph", Direction: Match}, true},
		{"inverted bounds", Objective{Name: "yield", Direction: Maximize, Min: f(5), Max: f(1)}, true},
		{"negative weight", Objective{Name: "yield", Direction: Maximize, Weight: -1}, true},
		{"empty name", Objective{Direction: Maximize}, true},
		{"bad direction", Objective{Name: "yield", Direction: "sideways"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obj.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateObjectives(t *testing.T) {
	if err := ValidateObjectives(nil); err == nil {
		t.Error("ValidateObjectives(nil) = nil, want error")
	}
	dup := []Objective{
		{Name: "yield", Direction: Maximize},
		{Name: "yield", Direction: Minimize},
	}
	if err := ValidateObjectives(dup); err == nil {
		t.Error("ValidateObjectives with duplicate names = nil, want error")
	}
}

func TestDesirabilityWeights(t *testing.T) {
	t.Run("unspecified weights default to equal shares", func(t *testing.T) {
		objs := []Objective{
			{Name: "yield", Direction: Maximize},
			{Name: "purity", Direction: Maximize},
		}
		w := DesirabilityWeights(objs)
		if math.Abs(w["yield"]-0.5) > 1e-12 || math.Abs(w["purity"]-0.5) > 1e-12 {
			t.Errorf("weights = %v, want 0.5 each", w)
		}
	})
	t.Run("explicit weights normalized", func(t *testing.T) {
		objs := []Objective{
			{Name: "yield", Direction: Maximize, Weight: 3},
			{Name: "cost", Direction: Minimize, Weight: 1},
		}
		w := DesirabilityWeights(objs)
		if math.Abs(w["yield"]-0.75) > 1e-12 {
			t.Errorf("yield weight = %v, want 0.75", w["yield"])
		}
	})
	t.Run("mixed zero weight uses default one", func(t *testing.T) {
		objs := []Objective{
			{Name: "yield", Direction: Maximize, Weight: 1},
			{Name: "cost", Direction: Minimize},
		}
		w := DesirabilityWeights(objs)
		if math.Abs(w["cost"]-0.5) > 1e-12 {
			t.Errorf("cost weight = %v, want 0.5", w["cost"])
		}
	})
}

func TestMatchValue(t *testing.T) {
	o := Objective{Name: "ph", Direction: Match, Min: f(6), Max: f(8)}
	if got := o.MatchValue(); got != 7 {
		t.Errorf("MatchValue() = %v, want 7", got)
	}
}
