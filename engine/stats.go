package engine

// The engine reports measurements through optional-encoded values: each raw
// value carries its own has-value flag so a single struct copy can transport
// a partially populated snapshot across the narrow API.

// OptionalInt is an int that may be absent.
type OptionalInt struct {
	HasValue bool
	Value    int
}

// OptionalBool is a bool that may be absent.
type OptionalBool struct {
	HasValue bool
	Value    bool
}

// OptionalDouble is a float64 that may be absent.
type OptionalDouble struct {
	HasValue bool
	Value    float64
}

func someInt(v int) OptionalInt        { return OptionalInt{HasValue: true, Value: v} }
func someBool(v bool) OptionalBool     { return OptionalBool{HasValue: true, Value: v} }
func someDouble(v float64) OptionalDouble {
	return OptionalDouble{HasValue: true, Value: v}
}

// Stats is the engine's aggregate measurement state at the time of the call.
// A field stays absent until the submodule that owns it has been enabled and
// has produced at least one measurement.
type Stats struct {
	// OutputRMSDBFS is the RMS level of the processed capture signal in
	// dBFS, constrained to [-127, 0] where -127 indicates muted.
	OutputRMSDBFS OptionalInt

	// VoiceDetected reports whether the last capture frame contained voice.
	VoiceDetected OptionalBool

	// EchoReturnLoss is ERL = 10*log10(P_far / P_echo).
	EchoReturnLoss OptionalDouble

	// EchoReturnLossEnhancement is ERLE = 10*log10(P_echo / P_out).
	EchoReturnLossEnhancement OptionalDouble

	// DivergentFilterFraction is the fraction of time the linear AEC filter
	// is divergent, over a one-second non-overlapped window.
	DivergentFilterFraction OptionalDouble

	// DelayMedianMS and DelayStandardDeviationMS aggregate the stream delay
	// over the last aggregation window.
	DelayMedianMS            OptionalInt
	DelayStandardDeviationMS OptionalInt

	// ResidualEchoLikelihood estimates how much echo remains after
	// cancellation, in [0, 1].
	ResidualEchoLikelihood          OptionalDouble
	ResidualEchoLikelihoodRecentMax OptionalDouble

	// DelayMS is the instantaneous delay estimate at the time of the call.
	DelayMS OptionalInt
}
