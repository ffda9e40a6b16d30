package replica

import (
	"errors"
	"fmt"
)

var (
	errMissingEventLog  = errors.New("event log is required")
	errMissingDeviceID  = errors.New("device identifier is required")
	errForeignDevice    = errors.New("event authored by another device")
	errDuplicateEventID = errors.New("event id already used")
	errBehindHistory    = errors.New("event timestamp breaks the local append order")
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opReplicaNew = "replica.new"
	opLoad       = "replica.load"
	opDispatch   = "replica.dispatch"
	opMerge      = "replica.merge"
	opRebuild    = "replica.rebuild"
	opCheckpoint = "replica.checkpoint"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
