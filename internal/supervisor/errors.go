package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrUnknownService = errors.New("unknown service")
	ErrSpawn          = errors.New("spawn failed")
)

// UnknownServiceError is returned for any operation on a name that is not in
// the catalog. No record is created for such names.
type UnknownServiceError struct {
	Name  string
	Known []string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service: %q (must be one of: %s)", e.Name, strings.Join(e.Known, ", "))
}

func (e *UnknownServiceError) Is(target error) bool { return target == ErrUnknownService }

// SpawnError means the executable is missing or could not be launched. The
// service stays not running.
type SpawnError struct {
	Name    string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s (%s): %v", e.Name, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }
