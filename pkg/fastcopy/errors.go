package fastcopy

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Step names the pipeline step an Error came from.
type Step string

const (
	StepTarget     Step = "target"
	StepScratch    Step = "scratch"
	StepFetch      Step = "fetch"
	StepDecompress Step = "decompress"
	StepOpen       Step = "open"
	StepCompress   Step = "compress"
	StepStore      Step = "store"
	StepRelease    Step = "release"
)

var (
	ErrInvalidTarget     = errors.New("invalid transfer target")
	ErrScratchAllocation = errors.New("scratch allocation failed")
	ErrFetch             = errors.New("fetch failed")
	ErrDecompression     = errors.New("decompression failed")
	ErrOpen              = errors.New("staging file access failed")
	ErrCompression       = errors.New("compression failed")
	ErrStore             = errors.New("store failed")
	ErrScratchRelease    = errors.New("scratch release failed")
)

var stepErrors = map[Step]error{
	StepTarget:     ErrInvalidTarget,
	StepScratch:    ErrScratchAllocation,
	StepFetch:      ErrFetch,
	StepDecompress: ErrDecompression,
	StepOpen:       ErrOpen,
	StepCompress:   ErrCompression,
	StepStore:      ErrStore,
	StepRelease:    ErrScratchRelease,
}

// Error is the failure of one transfer step. It matches the step's
// sentinel with errors.Is; tool and store details stay reachable through
// errors.As on the wrapped error (*runner.ExitError, *storage.Error).
type Error struct {
	Step   Step
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", stepErrors[e.Step], e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := stepErrors[e.Step]
	return ok && sentinel == target
}

func newError(step Step, target string, err error) *Error {
	return &Error{Step: step, Target: target, Err: err}
}

// appendErr joins secondary onto primary without letting it replace
// primary. Either may be nil.
func appendErr(primary, secondary error) error {
	switch {
	case secondary == nil:
		return primary
	case primary == nil:
		return secondary
	}
	merr := multierror.Append(primary, secondary)
	merr.ErrorFormat = func(errs []error) string {
		msg := errs[0].Error()
		for _, e := range errs[1:] {
			msg += "; " + e.Error()
		}
		return msg
	}
	return merr
}
