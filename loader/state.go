// SPDX-License-Identifier: Unlicense OR MIT

package loader

import "fmt"

// State is the progress of a boot.
type State int

const (
	StateInit State = iota
	StateFirmwareReady
	StateKernelLoaded
	StateMemoryMapped
	// StateBootExited is entered when boot services are gone. There
	// is no way back.
	StateBootExited
	StateTransferred
)

var stateNames = [...]string{
	StateInit:          "init",
	StateFirmwareReady: "firmware-ready",
	StateKernelLoaded:  "kernel-loaded",
	StateMemoryMapped:  "memory-mapped",
	StateBootExited:    "boot-exited",
	StateTransferred:   "transferred",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// advance moves to the next state.
func (l *Loader) advance(to State) error {
	if to != l.state+1 {
		return fmt.Errorf("loader: invalid transition %v -> %v", l.state, to)
	}
	l.log.Debugf("state %v", to)
	l.state = to
	return nil
}
