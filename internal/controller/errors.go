package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrSensorRead marks a failed sensor read. The worst case was assumed
	// and the cycle continued.
	ErrSensorRead = errors.New("sensor read failure")

	// ErrActuationTimeout marks a refill or fill that hit its tick cap.
	ErrActuationTimeout = errors.New("actuation timeout")

	// ErrInterlocked marks watering vetoed by the safety interlock.
	ErrInterlocked = errors.New("safety interlock active")

	// ErrPersistence marks a failed history flush.
	ErrPersistence = errors.New("persistence failure")

	// ErrBusy is returned when a cycle of the same kind is already running.
	ErrBusy = errors.New("cycle already running")
)

// CycleError captures a failure that ends at the cycle boundary.
type CycleError struct {
	Cycle Cycle
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s cycle: %v", e.Cycle, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func wrapCycle(c Cycle, err error) error {
	if err == nil {
		return nil
	}
	return &CycleError{Cycle: c, Err: err}
}
