// Package config defines the hierarchical processor configuration: a tree of
// optional submodule blocks where presence enables a feature and absence
// disables it. The tree translates into the engine's flat parameter set, and
// can be loaded from and saved to YAML documents.
package config

import (
	"errors"
	"fmt"
)

// ErrConflictingVariants is returned when a choice block has more than one
// arm populated.
var ErrConflictingVariants = errors.New("conflicting configuration variants")

// ProcessingRate restricts the maximum rate used internally by the engine.
type ProcessingRate int

const (
	// Rate32000Hz limits internal processing to 32 kHz.
	Rate32000Hz ProcessingRate = 32000
	// Rate48000Hz limits internal processing to 48 kHz. This is the default.
	Rate48000Hz ProcessingRate = 48000
)

// DownmixMethod selects how multi-channel capture audio is reduced to mono.
type DownmixMethod string

const (
	// DownmixAverage mixes by averaging all channels. This is the default.
	DownmixAverage DownmixMethod = "average"
	// DownmixUseFirstChannel mixes by selecting the first channel.
	DownmixUseFirstChannel DownmixMethod = "use_first_channel"
)

// NoiseSuppressionLevel determines the aggressiveness of the suppression.
// Raising the level reduces the noise level at the expense of higher speech
// distortion.
type NoiseSuppressionLevel string

const (
	NoiseSuppressionLow      NoiseSuppressionLevel = "low"
	NoiseSuppressionModerate NoiseSuppressionLevel = "moderate"
	NoiseSuppressionHigh     NoiseSuppressionLevel = "high"
	NoiseSuppressionVeryHigh NoiseSuppressionLevel = "very_high"
)

// GainControllerMode selects the GainController1 operating mode.
type GainControllerMode string

const (
	// GainModeAdaptiveAnalog prescribes an analog gain for the capture device
	// plus a digital compression stage.
	GainModeAdaptiveAnalog GainControllerMode = "adaptive_analog"
	// GainModeAdaptiveDigital applies adaptive scaling in the digital domain.
	GainModeAdaptiveDigital GainControllerMode = "adaptive_digital"
	// GainModeFixedDigital enables only the digital compression stage.
	GainModeFixedDigital GainControllerMode = "fixed_digital"
)

// ClippingPredictorMode selects the clipping-prediction algorithm.
type ClippingPredictorMode string

const (
	ClippingEventPrediction            ClippingPredictorMode = "clipping_event_prediction"
	AdaptiveStepClippingPeakPrediction ClippingPredictorMode = "adaptive_step_clipping_peak_prediction"
	FixedStepClippingPeakPrediction    ClippingPredictorMode = "fixed_step_clipping_peak_prediction"
)

// Pipeline sets the properties of the processing pipeline. Unlike the
// submodule blocks it is always present.
type Pipeline struct {
	// MaximumInternalProcessingRate is the maximum rate used internally.
	// Zero means Rate48000Hz.
	MaximumInternalProcessingRate ProcessingRate `yaml:"maximum_internal_processing_rate,omitempty"`

	// MultiChannelRender allows multi-channel processing of render audio.
	MultiChannelRender bool `yaml:"multi_channel_render,omitempty"`

	// MultiChannelCapture allows multi-channel processing of capture audio.
	// When false, multi-channel capture frames are downmixed to mono for
	// processing and the result is copied to every channel.
	MultiChannelCapture bool `yaml:"multi_channel_capture,omitempty"`

	// CaptureDownmixMethod selects the downmix used when multi-channel
	// capture processing is not allowed. Empty means DownmixAverage.
	CaptureDownmixMethod DownmixMethod `yaml:"capture_downmix_method,omitempty"`
}

// PreAmplifier amplifies the capture signal before any other processing.
// Deprecated in favor of the pre-gain in CaptureLevelAdjustment.
type PreAmplifier struct {
	// FixedGainFactor is a fixed linear gain multiplier. 1.0 has no effect.
	FixedGainFactor float32 `yaml:"fixed_gain_factor"`
}

// DefaultPreAmplifier returns a PreAmplifier with the default unit gain.
func DefaultPreAmplifier() PreAmplifier {
	return PreAmplifier{FixedGainFactor: 1.0}
}

// AnalogMicGainEmulation emulates an analog microphone gain stage in the
// capture level adjustment.
type AnalogMicGainEmulation struct {
	// InitialLevel is the initial emulated analog gain level, in [0, 255].
	InitialLevel int `yaml:"initial_level"`
}

// CaptureLevelAdjustment scales the capture signal before any processing is
// done and again after all processing is done. Not meant to be combined with
// the legacy PreAmplifier.
type CaptureLevelAdjustment struct {
	PreGainFactor  float32 `yaml:"pre_gain_factor"`
	PostGainFactor float32 `yaml:"post_gain_factor"`

	AnalogMicGainEmulation *AnalogMicGainEmulation `yaml:"analog_mic_gain_emulation,omitempty"`
}

// DefaultCaptureLevelAdjustment returns a CaptureLevelAdjustment with unit
// gains and no mic gain emulation.
func DefaultCaptureLevelAdjustment() CaptureLevelAdjustment {
	return CaptureLevelAdjustment{PreGainFactor: 1.0, PostGainFactor: 1.0}
}

// CaptureAmplifier is a choice of capture-side level adjustment. At most one
// arm may be populated.
type CaptureAmplifier struct {
	// PreAmplifier selects the legacy pre-amplifier.
	PreAmplifier *PreAmplifier `yaml:"pre_amplifier,omitempty"`
	// CaptureLevelAdjustment selects the newer level adjustment.
	CaptureLevelAdjustment *CaptureLevelAdjustment `yaml:"capture_level_adjustment,omitempty"`
}

// HighPassFilter removes DC offset and low-frequency noise from the capture
// signal.
type HighPassFilter struct {
	// ApplyInFullBand applies the filter in the full band (20 Hz to 20 kHz)
	// instead of the split lower band only.
	ApplyInFullBand bool `yaml:"apply_in_full_band"`
}

// DefaultHighPassFilter returns a HighPassFilter applied in the full band.
func DefaultHighPassFilter() HighPassFilter {
	return HighPassFilter{ApplyInFullBand: true}
}

// MobileEchoCanceller selects the low-complexity echo canceller optimized
// for mobile hardware. It does not estimate the echo path delay itself, so
// the stream delay is mandatory.
type MobileEchoCanceller struct {
	// StreamDelayMS is the delay in ms between a render frame being queued
	// for playback and its echo arriving in a capture frame.
	StreamDelayMS uint16 `yaml:"stream_delay_ms"`
}

// FullEchoCanceller selects the full echo canceller implementation.
type FullEchoCanceller struct {
	// StreamDelayMS optionally seeds the delay estimator. When nil the
	// canceller estimates the delay itself.
	StreamDelayMS *uint16 `yaml:"stream_delay_ms,omitempty"`
}

// EchoCanceller is a choice of echo-canceller variant. At most one arm may
// be populated.
type EchoCanceller struct {
	Mobile *MobileEchoCanceller `yaml:"mobile,omitempty"`
	Full   *FullEchoCanceller   `yaml:"full,omitempty"`
}

// DefaultEchoCanceller returns the Full variant with delay estimation.
func DefaultEchoCanceller() EchoCanceller {
	return EchoCanceller{Full: &FullEchoCanceller{}}
}

// NoiseSuppression enables background noise suppression.
type NoiseSuppression struct {
	// Level determines the aggressiveness of the suppression. Empty means
	// NoiseSuppressionModerate.
	Level NoiseSuppressionLevel `yaml:"level,omitempty"`

	// AnalyzeLinearAECOutput analyzes the output of the linear AEC instead
	// of the capture frame. Activates the linear AEC output export in the
	// echo canceller. No effect if echo cancellation is disabled or of the
	// mobile variant.
	AnalyzeLinearAECOutput bool `yaml:"analyze_linear_aec_output,omitempty"`
}

// DefaultNoiseSuppression returns moderate suppression of the capture frame.
func DefaultNoiseSuppression() NoiseSuppression {
	return NoiseSuppression{Level: NoiseSuppressionModerate}
}

// ClippingPredictor enables clipping prediction in the analog gain
// controller.
type ClippingPredictor struct {
	Mode                  ClippingPredictorMode `yaml:"mode,omitempty"`
	WindowLength          int                   `yaml:"window_length"`
	ReferenceWindowLength int                   `yaml:"reference_window_length"`
	ReferenceWindowDelay  int                   `yaml:"reference_window_delay"`
	ClippingThreshold     float32               `yaml:"clipping_threshold"`
	CrestFactorMargin     float32               `yaml:"crest_factor_margin"`
	// UsePredictedStep applies the recommended clipped level step to the
	// analog gain. Otherwise the predictor runs without affecting it.
	UsePredictedStep bool `yaml:"use_predicted_step"`
}

// DefaultClippingPredictor returns the clipping-event prediction defaults.
func DefaultClippingPredictor() ClippingPredictor {
	return ClippingPredictor{
		Mode:                  ClippingEventPrediction,
		WindowLength:          5,
		ReferenceWindowLength: 5,
		ReferenceWindowDelay:  5,
		ClippingThreshold:     -1.0,
		CrestFactorMargin:     3.0,
		UsePredictedStep:      true,
	}
}

// AnalogGainController enables the analog stage of GainController1.
type AnalogGainController struct {
	StartupMinVolume int `yaml:"startup_min_volume,omitempty"`

	// ClippedLevelMin is the lowest analog microphone level applied in
	// response to clipping.
	ClippedLevelMin int `yaml:"clipped_level_min"`

	// EnableDigitalAdaptive applies an adaptive digital gain.
	EnableDigitalAdaptive bool `yaml:"enable_digital_adaptive"`

	// ClippedLevelStep is the amount the microphone level is lowered with
	// every clipping event, in (0, 255].
	ClippedLevelStep int `yaml:"clipped_level_step"`

	// ClippedRatioThreshold is the proportion of clipped samples required to
	// declare a clipping event, in (0, 1).
	ClippedRatioThreshold float32 `yaml:"clipped_ratio_threshold"`

	// ClippedWaitFrames is the number of frames to wait after a clipping
	// event before checking again. Must be positive.
	ClippedWaitFrames int `yaml:"clipped_wait_frames"`

	ClippingPredictor *ClippingPredictor `yaml:"clipping_predictor,omitempty"`
}

// DefaultAnalogGainController returns the analog gain controller defaults.
func DefaultAnalogGainController() AnalogGainController {
	return AnalogGainController{
		ClippedLevelMin:       70,
		EnableDigitalAdaptive: true,
		ClippedLevelStep:      15,
		ClippedRatioThreshold: 0.1,
		ClippedWaitFrames:     300,
	}
}

// GainController1 configures the legacy automatic gain control. It brings
// the signal to an appropriate range by applying a digital gain directly
// and, in the analog mode, prescribing an analog gain for the audio device.
type GainController1 struct {
	Mode GainControllerMode `yaml:"mode,omitempty"`

	// TargetLevelDBFS sets the target peak level of the AGC in dB below
	// digital full-scale, using positive values: 3 means -3 dBFS. Limited
	// to [0, 31].
	TargetLevelDBFS int `yaml:"target_level_dbfs"`

	// CompressionGainDB sets the maximum gain the digital compression stage
	// may apply, in dB. Zero leaves the signal uncompressed. Limited to
	// [0, 90].
	CompressionGainDB int `yaml:"compression_gain_db"`

	// EnableLimiter hard-limits the signal to the target level. Otherwise
	// the signal is compressed but not limited above the target.
	EnableLimiter bool `yaml:"enable_limiter"`

	AnalogGainController *AnalogGainController `yaml:"analog_gain_controller,omitempty"`
}

// DefaultGainController1 returns the adaptive-analog defaults.
func DefaultGainController1() GainController1 {
	return GainController1{
		Mode:              GainModeAdaptiveAnalog,
		TargetLevelDBFS:   3,
		CompressionGainDB: 9,
		EnableLimiter:     true,
	}
}

// AdaptiveDigital configures the adaptive digital controller of
// GainController2, which adjusts and applies a digital gain after echo
// cancellation and noise suppression.
type AdaptiveDigital struct {
	HeadroomDB               float32 `yaml:"headroom_db"`
	MaxGainDB                float32 `yaml:"max_gain_db"`
	InitialGainDB            float32 `yaml:"initial_gain_db"`
	MaxGainChangeDBPerSecond float32 `yaml:"max_gain_change_db_per_second"`
	MaxOutputNoiseLevelDBFS  float32 `yaml:"max_output_noise_level_dbfs"`
}

// DefaultAdaptiveDigital returns the adaptive digital controller defaults.
func DefaultAdaptiveDigital() AdaptiveDigital {
	return AdaptiveDigital{
		HeadroomDB:               5.0,
		MaxGainDB:                50.0,
		InitialGainDB:            15.0,
		MaxGainChangeDBPerSecond: 6.0,
		MaxOutputNoiseLevelDBFS:  -50.0,
	}
}

// FixedDigital configures the fixed digital controller of GainController2,
// applied after the adaptive digital controller and before the limiter.
type FixedDigital struct {
	// GainDB greater than zero turns the limiter into a compressor that
	// first applies a fixed gain.
	GainDB float32 `yaml:"gain_db"`
}

// GainController2 configures the automatic gain control that replaces
// GainController1. It combines an input volume controller, an adaptive
// digital controller and a fixed digital controller with a limiter.
type GainController2 struct {
	// InputVolumeControllerEnabled adjusts the input volume applied when the
	// audio is captured.
	InputVolumeControllerEnabled bool `yaml:"input_volume_controller_enabled,omitempty"`

	AdaptiveDigital *AdaptiveDigital `yaml:"adaptive_digital,omitempty"`

	FixedDigital FixedDigital `yaml:"fixed_digital,omitempty"`
}

// GainController is a choice of gain-controller implementation. At most one
// arm may be populated.
type GainController struct {
	GainController1 *GainController1 `yaml:"gain_controller1,omitempty"`
	GainController2 *GainController2 `yaml:"gain_controller2,omitempty"`
}

// Config is the full hierarchical processor configuration. A nil submodule
// block disables that feature entirely; a present block enables it with the
// block's parameters.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline,omitempty"`

	CaptureAmplifier *CaptureAmplifier `yaml:"capture_amplifier,omitempty"`
	HighPassFilter   *HighPassFilter   `yaml:"high_pass_filter,omitempty"`
	EchoCanceller    *EchoCanceller    `yaml:"echo_canceller,omitempty"`
	NoiseSuppression *NoiseSuppression `yaml:"noise_suppression,omitempty"`
	GainController   *GainController   `yaml:"gain_controller,omitempty"`
}

// Default returns the recommended starting tree: full echo canceller with
// delay estimation, moderate noise suppression, full-band high pass filter
// and the legacy gain controller defaults. Capture amplification stays
// disabled.
func Default() Config {
	hpf := DefaultHighPassFilter()
	ec := DefaultEchoCanceller()
	ns := DefaultNoiseSuppression()
	gc1 := DefaultGainController1()
	return Config{
		HighPassFilter:   &hpf,
		EchoCanceller:    &ec,
		NoiseSuppression: &ns,
		GainController:   &GainController{GainController1: &gc1},
	}
}

// Validate checks the structural invariants of the tree: every choice block
// must have at most one arm populated. It does not range-check parameter
// values; the engine clamps those at apply time.
func (c *Config) Validate() error {
	if ca := c.CaptureAmplifier; ca != nil {
		if ca.PreAmplifier != nil && ca.CaptureLevelAdjustment != nil {
			return fmt.Errorf("capture_amplifier: %w", ErrConflictingVariants)
		}
	}
	if ec := c.EchoCanceller; ec != nil {
		if ec.Mobile != nil && ec.Full != nil {
			return fmt.Errorf("echo_canceller: %w", ErrConflictingVariants)
		}
	}
	if gc := c.GainController; gc != nil {
		if gc.GainController1 != nil && gc.GainController2 != nil {
			return fmt.Errorf("gain_controller: %w", ErrConflictingVariants)
		}
	}
	return nil
}
