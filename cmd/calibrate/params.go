package main

import (
	"github.com/pthm-cable/v2drift/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // YAML path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters. Defaults are
// taken from base so the search starts at the configured values.
func NewParamVector(base *config.Parameters) *ParamVector {
	pv := &ParamVector{
		Specs: []ParamSpec{
			{Name: "doubt_step", Path: "doubt.step", Min: 0.001, Max: 0.5, Default: 0.1},
			{Name: "doubt_influence", Path: "doubt.influence", Min: 0, Max: 5, Default: 1},
			{Name: "growth_vf", Path: "growth.vf", Min: 0, Max: 20, Default: 0},
			{Name: "growth_then", Path: "growth.then", Min: 0, Max: 20, Default: 0},
		},
	}
	if base != nil {
		for i, v := range pv.Clamp(pv.ExtractFromConfig(base)) {
			pv.Specs[i].Default = v
		}
	}
	return pv
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes parameter values into p. Order matches Specs.
func (pv *ParamVector) ApplyToConfig(p *config.Parameters, values []float64) {
	clamped := pv.Clamp(values)
	p.Doubt.Step = clamped[0]
	p.Doubt.Influence = clamped[1]
	p.Growth.Vf = clamped[2]
	p.Growth.Then = clamped[3]
}

// ExtractFromConfig reads the current parameter values from p.
func (pv *ParamVector) ExtractFromConfig(p *config.Parameters) []float64 {
	return []float64{
		p.Doubt.Step,
		p.Doubt.Influence,
		p.Growth.Vf,
		p.Growth.Then,
	}
}
