package runner

import (
	"fmt"
	"time"

	"github.com/clopstate/clop-go/internal/testharness/loader"
	"github.com/clopstate/clop-go/pkg/clopstate"
	"github.com/clopstate/clop-go/pkg/closure"
)

// simulatedCalibrationStep is the PIXIT delay used for calibration steps
// against the simulated device, which enters and aborts calibration at once.
const simulatedCalibrationStep = 100 * time.Millisecond

// simulatorPICS describes the in-process simulated device. It is used in
// simulate mode when no PICS file is given.
func simulatorPICS(motion time.Duration) *loader.PICSFile {
	if motion <= 0 {
		motion = closure.DefaultFullMotionDuration
	}
	interval := progressInterval(motion)
	if interval == 0 {
		interval = closure.DefaultProgressInterval
	}

	features := clopstate.DefaultFeatures()
	items := map[string]any{
		"CLOPSTATE.S":                         true,
		"CLOPSTATE.S.M.ST_SETUPREQUIRED":      true,
		"CLOPSTATE.S.M.ST_STOPPED":            true,
		"CLOPSTATE.S.M.ST_ERROR":              true,
		"CLOPSTATE.S.M.MOVETO_LATCH_NOTFOUND": !features.Has(clopstate.FeatureMotionLatching),
		"CLOPSTATE.S.M.MOVETO_SPEED_NOTFOUND": !features.Has(clopstate.FeatureSpeed),
	}
	for bit := range 10 {
		items[fmt.Sprintf("CLOPSTATE.S.F%02d", bit)] = features.Has(clopstate.Feature(1 << bit))
	}

	seconds := func(d time.Duration) float64 { return d.Seconds() }
	return &loader.PICSFile{
		Name:  "simulated",
		Items: items,
		PIXIT: map[string]any{
			"CLOPSTATE.FullMotionDelay":          seconds(motion + motion/10 + 2*interval),
			"CLOPSTATE.HalfMotionDelay":          seconds(motion / 2),
			"CLOPSTATE.InitiateCalibrationDelay": seconds(simulatedCalibrationStep),
			"CLOPSTATE.ConcludeCalibrationDelay": seconds(simulatedCalibrationStep),
			"CLOPSTATE.AbortingCalibrationDelay": seconds(simulatedCalibrationStep),
		},
	}
}
