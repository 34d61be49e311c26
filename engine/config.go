package engine

import (
	"github.com/sirupsen/logrus"
)

// FrameMS is the fixed frame duration the engine processes per call.
// Every frame handed to the engine must carry sampleRateHz/100 samples
// per channel.
const FrameMS = 10

// DownmixMethod selects how multi-channel capture audio is reduced to mono
// when multi-channel capture processing is not allowed.
type DownmixMethod int

const (
	// DownmixAverageChannels mixes by averaging all channels.
	DownmixAverageChannels DownmixMethod = iota
	// DownmixUseFirstChannel mixes by selecting the first channel.
	DownmixUseFirstChannel
)

// NoiseSuppressionLevel determines the aggressiveness of the suppressor.
type NoiseSuppressionLevel int

const (
	// NoiseSuppressionLow applies the mildest suppression.
	NoiseSuppressionLow NoiseSuppressionLevel = iota
	// NoiseSuppressionModerate is the default suppression level.
	NoiseSuppressionModerate
	// NoiseSuppressionHigh trades speech distortion for lower noise.
	NoiseSuppressionHigh
	// NoiseSuppressionVeryHigh applies the strongest suppression.
	NoiseSuppressionVeryHigh
)

// GainControllerMode selects the AGC1 operating mode.
type GainControllerMode int

const (
	// GainModeAdaptiveAnalog prescribes analog gain for the capture device
	// plus a digital compression stage.
	GainModeAdaptiveAnalog GainControllerMode = iota
	// GainModeAdaptiveDigital applies adaptive scaling in the digital domain.
	GainModeAdaptiveDigital
	// GainModeFixedDigital enables only the digital compression stage.
	GainModeFixedDigital
)

// ClippingPredictorMode selects the AGC1 clipping-prediction algorithm.
type ClippingPredictorMode int

const (
	// ClippingEventPrediction predicts clipping events with fixed steps.
	ClippingEventPrediction ClippingPredictorMode = iota
	// AdaptiveStepClippingPeakPrediction estimates clipped peaks with
	// adaptive step estimation.
	AdaptiveStepClippingPeakPrediction
	// FixedStepClippingPeakPrediction estimates clipped peaks with fixed
	// step estimation.
	FixedStepClippingPeakPrediction
)

// Pipeline holds engine-wide pipeline properties.
type Pipeline struct {
	// MaximumInternalProcessingRate may only be 32000 or 48000; any other
	// value is treated as 48000 at apply time.
	MaximumInternalProcessingRate int
	MultiChannelRender            bool
	MultiChannelCapture           bool
	CaptureDownmixMethod          DownmixMethod
}

// PreAmplifier amplifies the capture signal before any other processing.
type PreAmplifier struct {
	Enabled         bool
	FixedGainFactor float32
}

// AnalogMicGainEmulation emulates an analog microphone gain stage.
type AnalogMicGainEmulation struct {
	Enabled bool
	// InitialLevel is clamped to [0, 255] at apply time.
	InitialLevel int
}

// CaptureLevelAdjustment scales the capture signal before and after
// processing. Not meant to be combined with the legacy PreAmplifier.
type CaptureLevelAdjustment struct {
	Enabled                bool
	PreGainFactor          float32
	PostGainFactor         float32
	AnalogMicGainEmulation AnalogMicGainEmulation
}

// HighPassFilter removes DC offset and low-frequency noise.
type HighPassFilter struct {
	Enabled         bool
	ApplyInFullBand bool
}

// EchoCanceller configures acoustic echo cancellation.
type EchoCanceller struct {
	Enabled bool
	// MobileMode selects the low-complexity mobile canceller instead of the
	// full implementation. The mobile canceller requires the stream delay to
	// be reported before every capture frame.
	MobileMode               bool
	EnforceHighPassFiltering bool
	ExportLinearAECOutput    bool
}

// NoiseSuppression configures background noise suppression.
type NoiseSuppression struct {
	Enabled                             bool
	Level                               NoiseSuppressionLevel
	AnalyzeLinearAECOutputWhenAvailable bool
}

// TransientSuppression is deprecated upstream and always disabled by the
// facade; the field is kept so the flat config stays a faithful mirror.
type TransientSuppression struct {
	Enabled bool
}

// ClippingPredictor configures AGC1 clipping prediction.
type ClippingPredictor struct {
	Enabled               bool
	Mode                  ClippingPredictorMode
	WindowLength          int
	ReferenceWindowLength int
	ReferenceWindowDelay  int
	ClippingThreshold     float32
	CrestFactorMargin     float32
	UsePredictedStep      bool
}

// AnalogGainController configures the analog stage of AGC1.
type AnalogGainController struct {
	Enabled               bool
	StartupMinVolume      int
	ClippedLevelMin       int
	EnableDigitalAdaptive bool
	// ClippedLevelStep is clamped to (0, 255] at apply time.
	ClippedLevelStep int
	// ClippedRatioThreshold is clamped to (0, 1) at apply time.
	ClippedRatioThreshold float32
	ClippedWaitFrames     int
	ClippingPredictor     ClippingPredictor
}

// GainController1 configures the legacy single-stage gain controller.
type GainController1 struct {
	Enabled bool
	Mode    GainControllerMode
	// TargetLevelDBFS is clamped to [0, 31] at apply time.
	TargetLevelDBFS int
	// CompressionGainDB is clamped to [0, 90] at apply time.
	CompressionGainDB    int
	EnableLimiter        bool
	AnalogGainController AnalogGainController
}

// InputVolumeController configures AGC2 input volume adjustment.
type InputVolumeController struct {
	Enabled bool
}

// AdaptiveDigital configures the AGC2 adaptive digital controller.
type AdaptiveDigital struct {
	Enabled                  bool
	HeadroomDB               float32
	MaxGainDB                float32
	InitialGainDB            float32
	MaxGainChangeDBPerSecond float32
	MaxOutputNoiseLevelDBFS  float32
}

// FixedDigital configures the AGC2 fixed digital controller.
type FixedDigital struct {
	GainDB float32
}

// GainController2 configures the two-stage gain controller that replaces
// GainController1.
type GainController2 struct {
	Enabled               bool
	InputVolumeController InputVolumeController
	AdaptiveDigital       AdaptiveDigital
	FixedDigital          FixedDigital
}

// Config is the flat parameter set consumed by ApplyConfig. Every submodule
// carries its own explicit enable flag; a disabled submodule still holds its
// default parameters.
type Config struct {
	Pipeline               Pipeline
	PreAmplifier           PreAmplifier
	CaptureLevelAdjustment CaptureLevelAdjustment
	HighPassFilter         HighPassFilter
	EchoCanceller          EchoCanceller
	NoiseSuppression       NoiseSuppression
	TransientSuppression   TransientSuppression
	GainController1        GainController1
	GainController2        GainController2
}

// DefaultConfig returns the engine defaults: every submodule disabled, with
// the default parameter values each submodule ships with.
func DefaultConfig() Config {
	return Config{
		Pipeline: Pipeline{
			MaximumInternalProcessingRate: 48000,
		},
		PreAmplifier: PreAmplifier{
			FixedGainFactor: 1.0,
		},
		CaptureLevelAdjustment: CaptureLevelAdjustment{
			PreGainFactor:  1.0,
			PostGainFactor: 1.0,
			AnalogMicGainEmulation: AnalogMicGainEmulation{
				InitialLevel: 255,
			},
		},
		HighPassFilter: HighPassFilter{
			ApplyInFullBand: true,
		},
		EchoCanceller: EchoCanceller{
			EnforceHighPassFiltering: true,
		},
		NoiseSuppression: NoiseSuppression{
			Level: NoiseSuppressionModerate,
		},
		GainController1: GainController1{
			Mode:              GainModeAdaptiveAnalog,
			TargetLevelDBFS:   3,
			CompressionGainDB: 9,
			EnableLimiter:     true,
			AnalogGainController: AnalogGainController{
				Enabled:               true,
				ClippedLevelMin:       70,
				EnableDigitalAdaptive: true,
				ClippedLevelStep:      15,
				ClippedRatioThreshold: 0.1,
				ClippedWaitFrames:     300,
				ClippingPredictor: ClippingPredictor{
					Mode:                  ClippingEventPrediction,
					WindowLength:          5,
					ReferenceWindowLength: 5,
					ReferenceWindowDelay:  5,
					ClippingThreshold:     -1.0,
					CrestFactorMargin:     3.0,
					UsePredictedStep:      true,
				},
			},
		},
		GainController2: GainController2{
			AdaptiveDigital: AdaptiveDigital{
				HeadroomDB:               5.0,
				MaxGainDB:                50.0,
				InitialGainDB:            15.0,
				MaxGainChangeDBPerSecond: 6.0,
				MaxOutputNoiseLevelDBFS:  -50.0,
			},
		},
	}
}

// clamp sanitizes the documented bounds of a config in place. Out-of-range
// values are pulled to the nearest bound with a warning; applying a config
// never fails.
func (c *Config) clamp() {
	if c.Pipeline.MaximumInternalProcessingRate != 32000 &&
		c.Pipeline.MaximumInternalProcessingRate != 48000 {
		logrus.WithFields(logrus.Fields{
			"function": "Config.clamp",
			"rate":     c.Pipeline.MaximumInternalProcessingRate,
		}).Warn("Unsupported maximum internal processing rate, using 48000")
		c.Pipeline.MaximumInternalProcessingRate = 48000
	}

	c.GainController1.TargetLevelDBFS = clampInt(
		"gain_controller1.target_level_dbfs", c.GainController1.TargetLevelDBFS, 0, 31)
	c.GainController1.CompressionGainDB = clampInt(
		"gain_controller1.compression_gain_db", c.GainController1.CompressionGainDB, 0, 90)

	agc := &c.GainController1.AnalogGainController
	agc.ClippedLevelStep = clampInt(
		"analog_gain_controller.clipped_level_step", agc.ClippedLevelStep, 1, 255)
	if agc.ClippedRatioThreshold <= 0 || agc.ClippedRatioThreshold >= 1 {
		logrus.WithFields(logrus.Fields{
			"function": "Config.clamp",
			"field":    "analog_gain_controller.clipped_ratio_threshold",
			"value":    agc.ClippedRatioThreshold,
		}).Warn("Config value outside (0, 1), using default 0.1")
		agc.ClippedRatioThreshold = 0.1
	}
	if agc.ClippedWaitFrames < 1 {
		agc.ClippedWaitFrames = 1
	}

	emu := &c.CaptureLevelAdjustment.AnalogMicGainEmulation
	emu.InitialLevel = clampInt(
		"analog_mic_gain_emulation.initial_level", emu.InitialLevel, 0, 255)
}

func clampInt(field string, v, lo, hi int) int {
	if v < lo {
		logrus.WithFields(logrus.Fields{
			"function": "Config.clamp",
			"field":    field,
			"value":    v,
			"min":      lo,
		}).Warn("Config value below bound, clamping")
		return lo
	}
	if v > hi {
		logrus.WithFields(logrus.Fields{
			"function": "Config.clamp",
			"field":    field,
			"value":    v,
			"max":      hi,
		}).Warn("Config value above bound, clamping")
		return hi
	}
	return v
}
