package clopstate

import "github.com/clopstate/clop-go/pkg/wire"

// ValidateMoveTo returns the status a device in state s with features fs
// answers to a MoveTo carrying m. Checks run in a fixed order: state gate,
// field presence, enum range, then feature support.
func ValidateMoveTo(s wire.OperationalState, m wire.MoveTo, fs FeatureSet) wire.Status {
	if IsBlocking(s) {
		return wire.StatusInvalidInState
	}
	if m.IsEmpty() {
		return wire.StatusInvalidCommand
	}

	if m.Tag != nil && !m.Tag.IsKnown() {
		return wire.StatusConstraintError
	}
	if m.Speed != nil && !m.Speed.IsKnown() {
		return wire.StatusConstraintError
	}
	// LatchedButNotSecured is only ever reported, never requested.
	if m.Latch != nil && (!m.Latch.IsKnown() || *m.Latch == wire.LatchedButNotSecured) {
		return wire.StatusConstraintError
	}

	if m.Tag != nil && !fs.SupportsTag(*m.Tag) {
		return wire.StatusNotFound
	}
	if m.Latch != nil && !fs.Has(FeatureMotionLatching) {
		return wire.StatusNotFound
	}
	if m.Speed != nil && !fs.Has(FeatureSpeed) {
		return wire.StatusNotFound
	}
	for _, c := range fs.Unsupported {
		if c.Matches(m) {
			return wire.StatusNotFound
		}
	}
	return wire.StatusSuccess
}

// ValidateConfigureFallback returns the status for a ConfigureFallback
// carrying c in state s.
func ValidateConfigureFallback(s wire.OperationalState, c wire.ConfigureFallback, fs FeatureSet) wire.Status {
	if !fs.Has(FeatureFallback) {
		return wire.StatusUnsupportedCommand
	}
	if tr, _ := Lookup(s, KindConfigureFallback); tr.Status != wire.StatusSuccess {
		return tr.Status
	}
	if c.IsEmpty() {
		return wire.StatusInvalidCommand
	}
	if c.RestingProcedure != nil && !c.RestingProcedure.IsKnown() {
		return wire.StatusConstraintError
	}
	if c.TriggerCondition != nil && !c.TriggerCondition.IsKnown() {
		return wire.StatusConstraintError
	}
	if c.TriggerPosition != nil && !c.TriggerPosition.IsKnown() {
		return wire.StatusConstraintError
	}
	return wire.StatusSuccess
}

// supportedCommand reports whether fs enables the command kind k.
func supportedCommand(k Kind, fs FeatureSet) bool {
	switch k {
	case KindCalibrate:
		return fs.Has(FeatureCalibration)
	case KindConfigureFallback, KindCancelFallback:
		return fs.Has(FeatureFallback)
	}
	return true
}
