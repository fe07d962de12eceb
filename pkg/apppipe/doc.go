// Package apppipe is the out-of-band simulation channel of a closure
// device: a named pipe carrying one JSON object per line.
//
// The harness writes messages such as
//
//	{"Name": "SetSetupRequired", "SetupRequired": true}
//	{"Name": "ErrorEvent", "Error": "Blocked"}
//
// to /tmp/chip_closure_fifo_<pid>, and the device's Listener turns them
// into state stimuli.
package apppipe
