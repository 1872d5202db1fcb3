package config

import "time"

// Overrides is one layer of agent configuration. Nil fields are not set by
// the layer.
type Overrides struct {
	ShouldProfile        *bool
	SamplingInterval     *time.Duration
	ReportingInterval    *time.Duration
	MinimumTimeReporting *time.Duration
	MaxStackDepth        *int
	CPULimitPercent      *float64
}

// Overlay returns o with every field that top sets replaced.
func (o Overrides) Overlay(top Overrides) Overrides {
	if top.ShouldProfile != nil {
		o.ShouldProfile = top.ShouldProfile
	}
	if top.SamplingInterval != nil {
		o.SamplingInterval = top.SamplingInterval
	}
	if top.ReportingInterval != nil {
		o.ReportingInterval = top.ReportingInterval
	}
	if top.MinimumTimeReporting != nil {
		o.MinimumTimeReporting = top.MinimumTimeReporting
	}
	if top.MaxStackDepth != nil {
		o.MaxStackDepth = top.MaxStackDepth
	}
	if top.CPULimitPercent != nil {
		o.CPULimitPercent = top.CPULimitPercent
	}
	return o
}

// IsEmpty reports whether no field is set.
func (o Overrides) IsEmpty() bool {
	return o == Overrides{}
}

func ptr[T any](v T) *T {
	return &v
}
