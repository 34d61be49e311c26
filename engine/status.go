package engine

// Status codes returned by every engine operation that can fail. Zero is
// success; all failures are negative. The set is closed: the facade layer
// translates each code into a typed error and treats anything outside the
// known range as Unspecified.
const (
	StatusNoError                    = 0
	StatusUnspecifiedError           = -1
	StatusCreationFailedError        = -2
	StatusUnsupportedComponentError  = -3
	StatusUnsupportedFunctionError   = -4
	StatusNullPointerError           = -5
	StatusBadParameterError          = -6
	StatusBadSampleRateError         = -7
	StatusBadDataLengthError         = -8
	StatusBadNumberChannelsError     = -9
	StatusFileError                  = -10
	StatusStreamParameterNotSetError = -11
	StatusNotEnabledError            = -12
)

// IsSuccess reports whether a status code indicates a successful operation.
func IsSuccess(code int) bool {
	return code == StatusNoError
}
