package queue

import (
	"context"
	"errors"
	"io/fs"

	"squeeze/internal/services"
)

// FailureCategory buckets stage failures for the failure ledger.
type FailureCategory string

const (
	FailureTimeout         FailureCategory = "timeout"
	FailureCommandError    FailureCategory = "command_error"
	FailureValidationError FailureCategory = "validation_error"
	FailureFileError       FailureCategory = "file_error"
	FailureProcessFailure  FailureCategory = "process_failure"
	FailureUnknown         FailureCategory = "unknown"
)

// ClassifyError maps a stage error onto the failure category the ledger
// should record. Timeouts win over every other marker so that an external
// command killed by its deadline lands in the timeout bucket rather than
// command_error.
func ClassifyError(err error) FailureCategory {
	switch {
	case err == nil:
		return FailureUnknown
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, services.ErrProcessFailure):
		return FailureProcessFailure
	case errors.Is(err, services.ErrValidation):
		return FailureValidationError
	case errors.Is(err, services.ErrExternalTool):
		return FailureCommandError
	case isFileError(err):
		return FailureFileError
	default:
		return FailureUnknown
	}
}

func isFileError(err error) bool {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrExist) {
		return true
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}
