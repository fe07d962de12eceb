package clopstate

import (
	"fmt"
	"strings"

	"github.com/clopstate/clop-go/pkg/wire"
)

// Feature is a bit of the cluster feature map.
type Feature uint32

const (
	FeaturePositioning      Feature = 1 << 0
	FeatureMotionLatching   Feature = 1 << 1
	FeatureInstantaneous    Feature = 1 << 2
	FeatureSpeed            Feature = 1 << 3
	FeatureVentilation      Feature = 1 << 4
	FeaturePedestrian       Feature = 1 << 5
	FeatureCalibration      Feature = 1 << 6
	FeatureProtection       Feature = 1 << 7
	FeatureManuallyOperable Feature = 1 << 8
	FeatureFallback         Feature = 1 << 9
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeaturePositioning, "Positioning"},
	{FeatureMotionLatching, "MotionLatching"},
	{FeatureInstantaneous, "Instantaneous"},
	{FeatureSpeed, "Speed"},
	{FeatureVentilation, "Ventilation"},
	{FeaturePedestrian, "Pedestrian"},
	{FeatureCalibration, "Calibration"},
	{FeatureProtection, "Protection"},
	{FeatureManuallyOperable, "ManuallyOperable"},
	{FeatureFallback, "Fallback"},
}

// Combination matches MoveTo fields. A nil field matches anything.
type Combination struct {
	Tag   *wire.Tag      `yaml:"tag,omitempty"`
	Latch *wire.Latching `yaml:"latch,omitempty"`
	Speed *wire.Speed    `yaml:"speed,omitempty"`
}

// Matches reports whether every non-nil field of c equals the command field.
// A command that omits a field c constrains does not match.
func (c Combination) Matches(m wire.MoveTo) bool {
	if c.Tag != nil && (m.Tag == nil || *m.Tag != *c.Tag) {
		return false
	}
	if c.Latch != nil && (m.Latch == nil || *m.Latch != *c.Latch) {
		return false
	}
	if c.Speed != nil && (m.Speed == nil || *m.Speed != *c.Speed) {
		return false
	}
	return c.Tag != nil || c.Latch != nil || c.Speed != nil
}

// FeatureSet is what a device declares it supports.
type FeatureSet struct {
	Map Feature

	// Unsupported lists field combinations the device rejects with NotFound
	// even though each field is individually supported.
	Unsupported []Combination
}

// DefaultFeatures is a fully featured closure.
func DefaultFeatures() FeatureSet {
	return FeatureSet{
		Map: FeaturePositioning | FeatureMotionLatching | FeatureSpeed |
			FeatureVentilation | FeaturePedestrian | FeatureCalibration |
			FeatureProtection | FeatureFallback,
	}
}

// Has reports whether every bit of f is set.
func (fs FeatureSet) Has(f Feature) bool {
	return fs.Map&f == f
}

// SupportsTag reports whether the device can move to t.
func (fs FeatureSet) SupportsTag(t wire.Tag) bool {
	if !fs.Has(FeaturePositioning) {
		return false
	}
	switch t {
	case wire.TagPedestrian, wire.TagPedestrianNextStep:
		return fs.Has(FeaturePedestrian)
	case wire.TagVentilation:
		return fs.Has(FeatureVentilation)
	}
	return true
}

// String lists the feature names, e.g. "Positioning|Speed".
func (fs FeatureSet) String() string {
	var names []string
	for _, fn := range featureNames {
		if fs.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// ParseFeatures parses a "|" or "," separated list of feature names.
func ParseFeatures(s string) (Feature, error) {
	var f Feature
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		found := false
		for _, fn := range featureNames {
			if strings.EqualFold(fn.name, part) {
				f |= fn.f
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown feature %q", part)
		}
	}
	return f, nil
}
