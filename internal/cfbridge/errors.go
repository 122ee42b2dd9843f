package cfbridge

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation runs before Init or
	// without a live connection.
	ErrNotInitialized = errors.New("cfbridge: not initialized")
	// ErrInvalidParam is returned for empty or out-of-range arguments.
	ErrInvalidParam = errors.New("cfbridge: invalid parameter")
	// ErrQueueFull means a notification was dropped.
	ErrQueueFull = errors.New("cfbridge: event queue full")
	// ErrQueueEmpty is the normal outcome of polling an empty queue.
	ErrQueueEmpty = errors.New("cfbridge: event queue empty")
	// ErrTimeout is the normal outcome of a wait that saw no event.
	ErrTimeout = errors.New("cfbridge: wait timed out")
	// ErrAPIFailed matches every *APIError.
	ErrAPIFailed = errors.New("cfbridge: cloud files api failed")
	// ErrTransferCanceled is the cause attached to a cancelled hydration.
	ErrTransferCanceled = errors.New("cfbridge: transfer canceled")
	// ErrUnexpectedEOF means the data source ran dry inside the required range.
	ErrUnexpectedEOF = errors.New("cfbridge: data source ended before required range")
)

// HRESULT is a Windows-style status code. Negative values (high bit set) are failures.
type HRESULT uint32

const (
	StatusOK              HRESULT = 0x00000000
	StatusFail            HRESULT = 0x80004005 // E_FAIL
	StatusInvalidArg      HRESULT = 0x80070057 // E_INVALIDARG
	StatusNotReady        HRESULT = 0x80070015 // HRESULT_FROM_WIN32(ERROR_NOT_READY)
	StatusHandleEOF       HRESULT = 0x80070026 // HRESULT_FROM_WIN32(ERROR_HANDLE_EOF)
	StatusRequestCanceled HRESULT = 0x8007018E // HRESULT_FROM_WIN32(ERROR_CLOUD_FILE_REQUEST_CANCELED)
)

// Failed reports whether the code denotes a failure.
func (h HRESULT) Failed() bool { return int32(h) < 0 }

func (h HRESULT) String() string { return fmt.Sprintf("0x%08X", uint32(h)) }

// APIError wraps a failed call into the Cloud Files subsystem.
type APIError struct {
	Op     string
	Status HRESULT
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cfbridge: %s failed: HRESULT %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("cfbridge: %s failed: HRESULT %s", e.Op, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is makes every APIError match ErrAPIFailed.
func (e *APIError) Is(target error) bool { return target == ErrAPIFailed }

// StatusCode exposes the wrapped status to StatusOf.
func (e *APIError) StatusCode() HRESULT { return e.Status }

// NewAPIError returns an *APIError for a failing status, or nil for success.
func NewAPIError(op string, status HRESULT) error {
	if !status.Failed() {
		return nil
	}
	return &APIError{Op: op, Status: status}
}

// wrapAPI normalizes a subsystem error into an *APIError.
func wrapAPI(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return &APIError{Op: op, Status: StatusOf(err), Err: err}
}

// StatusOf maps an error onto the status reported to the OS in a
// transfer-error completion. Errors may carry their own code by implementing
// StatusCode() HRESULT.
func StatusOf(err error) HRESULT {
	if err == nil {
		return StatusOK
	}
	var coded interface{ StatusCode() HRESULT }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	switch {
	case errors.Is(err, ErrTransferCanceled), errors.Is(err, context.Canceled):
		return StatusRequestCanceled
	case errors.Is(err, ErrUnexpectedEOF):
		return StatusHandleEOF
	case errors.Is(err, ErrInvalidParam):
		return StatusInvalidArg
	case errors.Is(err, ErrNotInitialized):
		return StatusNotReady
	default:
		return StatusFail
	}
}
