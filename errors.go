package lcdielectrics

import (
	"errors"
	"fmt"
)

var (
	ErrSweepActive = errors.New("sweep already in progress")
	ErrNoSweep     = errors.New("no sweep has been run")
	ErrWaitTimeout = errors.New("timed out waiting for hotstage")
)

// DeviceIOError is a transport or communication failure talking to an instrument.
// The sweep is halted when one surfaces from a device command.
type DeviceIOError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceIOError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means the device answered but the reply could not be
// interpreted. Reads that fail this way are skipped and retried on the next poll.
type MalformedResponseError struct {
	Device string
	Field  string
	Value  interface{}
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed %q in response: %v", e.Device, e.Field, e.Value)
}

// InvalidPlanError rejects a sweep before any device is touched.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return "invalid sweep plan: " + e.Reason
}

func isMalformed(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}
