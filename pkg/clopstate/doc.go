// Package clopstate is the reference model of closure operational state.
//
// The model is an explicit transition table keyed by the current state and
// an input. Inputs are either commands sent by a harness or events raised by
// the device environment (motion finished, a fault, a simulation message).
// Each row gives the next state, the status returned for commands, and an
// effect the device must carry out, such as starting or aborting motion.
//
// The model also owns MoveTo field validation against a declared FeatureSet
// and can enumerate every (state, command, field combination) tuple so that
// a device implementation can be checked against it exhaustively.
package clopstate
