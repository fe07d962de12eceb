package closure

import (
	"log/slog"
	"time"

	"github.com/clopstate/clop-go/pkg/clopstate"
	"github.com/clopstate/clop-go/pkg/log"
	"github.com/clopstate/clop-go/pkg/wire"
)

// Defaults.
const (
	DefaultEndpoint           uint16 = 1
	DefaultFullMotionDuration        = 10 * time.Second
	DefaultProgressInterval          = 500 * time.Millisecond
)

// Config configures a Device.
type Config struct {
	// Endpoint hosting the cluster.
	Endpoint uint16

	// Features advertised in FeatureMap and enforced on MoveTo. A zero value
	// selects clopstate.DefaultFeatures.
	Features clopstate.FeatureSet

	// FullMotionDuration is the travel time from fully closed to fully open.
	FullMotionDuration time.Duration

	// ProgressInterval is the motion progress tick.
	ProgressInterval time.Duration

	// CalibrationDuration is how long Calibrate runs. Zero means calibration
	// only ends on a CalibrationEnded stimulus.
	CalibrationDuration time.Duration

	// TimedCommands must be invoked as timed requests.
	TimedCommands []wire.CommandID

	// Logger receives diagnostics. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives state-change and injection events.
	ProtocolLogger log.Logger

	// Metrics is optional.
	Metrics *Metrics
}

func (c *Config) applyDefaults() {
	if c.Endpoint == 0 {
		c.Endpoint = DefaultEndpoint
	}
	if c.Features.Map == 0 && len(c.Features.Unsupported) == 0 {
		c.Features = clopstate.DefaultFeatures()
	}
	if c.FullMotionDuration <= 0 {
		c.FullMotionDuration = DefaultFullMotionDuration
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
}

func (c *Config) isTimed(id wire.CommandID) bool {
	for _, t := range c.TimedCommands {
		if t == id {
			return true
		}
	}
	return false
}
