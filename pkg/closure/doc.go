// Package closure is a simulated closure device exposing the Closure
// Operational State cluster.
//
// A Device wraps a clopstate.Machine and answers Read and Invoke requests
// through interaction.Handler. Moves are simulated in time: a full stroke
// takes Config.FullMotionDuration and progress is reported every
// Config.ProgressInterval until the motion completes. Calibration and other
// environment changes arrive through Inject, normally fed by an
// apppipe.Listener.
package closure
