package audioproc

import "github.com/opd-ai/audioproc/engine"

// Stats is a snapshot of the processor's aggregate measurements. A nil field
// means the owning submodule has not produced that measurement yet, either
// because it is disabled or because too few frames have been processed.
type Stats struct {
	// OutputRMSDBFS is the root mean square level of the processed capture
	// signal in dBFS, in [-127, 0] where -127 indicates muted audio.
	OutputRMSDBFS *int

	// VoiceDetected reports whether voice was detected in the last processed
	// capture frame. Requires noise suppression to be enabled.
	VoiceDetected *bool

	// EchoReturnLoss is the attenuation between the far-end signal and its
	// echo in the capture signal, in dB.
	EchoReturnLoss *float64

	// EchoReturnLossEnhancement is the additional attenuation the echo
	// canceller achieves, in dB.
	EchoReturnLossEnhancement *float64

	// DivergentFilterFraction is the fraction of time the linear echo
	// canceller filter was divergent over the last aggregation window.
	DivergentFilterFraction *float64

	// DelayMedianMS and DelayStandardDeviationMS aggregate the stream delay
	// over the last aggregation window, in milliseconds.
	DelayMedianMS            *int
	DelayStandardDeviationMS *int

	// ResidualEchoLikelihood estimates the likelihood, in [0, 1], that echo
	// remains in the processed capture signal.
	ResidualEchoLikelihood *float64

	// ResidualEchoLikelihoodRecentMax is the maximum of the likelihood over
	// the last aggregation window.
	ResidualEchoLikelihoodRecentMax *float64

	// DelayMS is the instantaneous delay estimate in milliseconds.
	DelayMS *int
}

// translateStats converts the engine's optional-encoded measurement state
// into the snapshot form, field by field. Absent raw values stay nil.
func translateStats(raw engine.Stats) Stats {
	return Stats{
		OutputRMSDBFS:                   optInt(raw.OutputRMSDBFS),
		VoiceDetected:                   optBool(raw.VoiceDetected),
		EchoReturnLoss:                  optDouble(raw.EchoReturnLoss),
		EchoReturnLossEnhancement:       optDouble(raw.EchoReturnLossEnhancement),
		DivergentFilterFraction:         optDouble(raw.DivergentFilterFraction),
		DelayMedianMS:                   optInt(raw.DelayMedianMS),
		DelayStandardDeviationMS:        optInt(raw.DelayStandardDeviationMS),
		ResidualEchoLikelihood:          optDouble(raw.ResidualEchoLikelihood),
		ResidualEchoLikelihoodRecentMax: optDouble(raw.ResidualEchoLikelihoodRecentMax),
		DelayMS:                         optInt(raw.DelayMS),
	}
}

func optInt(v engine.OptionalInt) *int {
	if !v.HasValue {
		return nil
	}
	out := v.Value
	return &out
}

func optBool(v engine.OptionalBool) *bool {
	if !v.HasValue {
		return nil
	}
	out := v.Value
	return &out
}

func optDouble(v engine.OptionalDouble) *float64 {
	if !v.HasValue {
		return nil
	}
	out := v.Value
	return &out
}
