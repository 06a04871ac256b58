package audiograph

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContext is returned when a node outlived its context.
	ErrNoContext = errors.New("node has no context")
	// ErrNoDevice is returned when no hardware device is available.
	ErrNoDevice = errors.New("no device available")
	// ErrNoOutput is returned when context has no output node.
	ErrNoOutput = errors.New("context has no output")
	// ErrInvalidChannels is returned when a device or option asks for less
	// than one channel.
	ErrInvalidChannels = errors.New("invalid number of channels")
	// ErrInvalidFrames is returned when frames per block is not positive.
	ErrInvalidFrames = errors.New("invalid frames per block")
	// ErrInvalidSampleRate is returned when sample rate is not positive.
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	// ErrDeviceRunning is returned when an operation requires a stopped
	// device.
	ErrDeviceRunning = errors.New("device is running")
	// ErrSeekOutOfRange is returned when source file is seeked beyond its
	// frames.
	ErrSeekOutOfRange = errors.New("seek out of range")
)

// CycleError is returned by Connect when the new edge would close a loop
// that no node on it is able to handle.
type CycleError struct {
	Source string
	Dest   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclical connection between source: %s and dest: %s", e.Source, e.Dest)
}
