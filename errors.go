package audioproc

import (
	"errors"
	"fmt"

	"github.com/opd-ai/audioproc/engine"
)

// The engine reports failures as negative status codes from a closed set.
// Each code maps to exactly one of the sentinel errors below; callers match
// with errors.Is. Codes outside the known range map to ErrUnspecified rather
// than failing translation.
var (
	// ErrUnspecified is an engine failure with no more specific cause.
	ErrUnspecified = errors.New("unspecified error")

	// ErrInitializationFailed indicates engine construction or
	// reinitialization failed.
	ErrInitializationFailed = errors.New("initialization failed")

	// ErrUnsupportedComponent indicates a requested submodule is not
	// supported by the engine build.
	ErrUnsupportedComponent = errors.New("unsupported component")

	// ErrUnsupportedFunction indicates a requested operation is not
	// supported by the engine build.
	ErrUnsupportedFunction = errors.New("unsupported function")

	// ErrNullPointer indicates the engine handle was invalid.
	ErrNullPointer = errors.New("null pointer")

	// ErrBadParameter indicates a parameter outside its accepted range.
	ErrBadParameter = errors.New("bad parameter")

	// ErrBadSampleRate indicates an unsupported sample rate.
	ErrBadSampleRate = errors.New("bad sample rate")

	// ErrBadDataLength indicates a frame whose per-channel length does not
	// match the configured sample rate.
	ErrBadDataLength = errors.New("bad data length")

	// ErrBadNumberChannels indicates an unsupported channel count, including
	// zero channels.
	ErrBadNumberChannels = errors.New("bad number of channels")

	// ErrFile indicates a file operation inside the engine failed.
	ErrFile = errors.New("file error")

	// ErrStreamParameterNotSet indicates a required runtime parameter, such
	// as the stream delay for the mobile echo canceller, was never provided.
	ErrStreamParameterNotSet = errors.New("stream parameter not set")

	// ErrNotEnabled indicates the operation requires a submodule that is not
	// enabled.
	ErrNotEnabled = errors.New("not enabled")
)

// statusErrors is the total mapping from engine status codes to sentinel
// errors. Status 0 never reaches this table.
var statusErrors = map[int]error{
	-1:  ErrUnspecified,
	-2:  ErrInitializationFailed,
	-3:  ErrUnsupportedComponent,
	-4:  ErrUnsupportedFunction,
	-5:  ErrNullPointer,
	-6:  ErrBadParameter,
	-7:  ErrBadSampleRate,
	-8:  ErrBadDataLength,
	-9:  ErrBadNumberChannels,
	-10: ErrFile,
	-11: ErrStreamParameterNotSet,
	-12: ErrNotEnabled,
}

// translateStatus converts an engine status code into an error. Success
// translates to nil without allocating.
func translateStatus(code int) error {
	if engine.IsSuccess(code) {
		return nil
	}
	if sentinel, ok := statusErrors[code]; ok {
		return fmt.Errorf("engine status %d: %w", code, sentinel)
	}
	return fmt.Errorf("engine status %d: %w", code, ErrUnspecified)
}
