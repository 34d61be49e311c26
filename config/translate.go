package config

import (
	"github.com/opd-ai/audioproc/engine"
)

// Translate flattens the hierarchical tree into the engine's flat parameter
// set. The second return value is the stream delay the tree prescribes, or
// nil when it leaves delay estimation to the engine.
//
// Translate assumes a tree that passed Validate; on a tree with conflicting
// variant arms the first arm wins.
func Translate(c Config) (engine.Config, *int) {
	out := engine.DefaultConfig()

	out.Pipeline.MaximumInternalProcessingRate = int(c.Pipeline.MaximumInternalProcessingRate)
	if out.Pipeline.MaximumInternalProcessingRate == 0 {
		out.Pipeline.MaximumInternalProcessingRate = int(Rate48000Hz)
	}
	out.Pipeline.MultiChannelRender = c.Pipeline.MultiChannelRender
	out.Pipeline.MultiChannelCapture = c.Pipeline.MultiChannelCapture
	out.Pipeline.CaptureDownmixMethod = translateDownmix(c.Pipeline.CaptureDownmixMethod)

	if ca := c.CaptureAmplifier; ca != nil {
		switch {
		case ca.PreAmplifier != nil:
			out.PreAmplifier.Enabled = true
			out.PreAmplifier.FixedGainFactor = ca.PreAmplifier.FixedGainFactor
		case ca.CaptureLevelAdjustment != nil:
			cla := ca.CaptureLevelAdjustment
			out.CaptureLevelAdjustment.Enabled = true
			out.CaptureLevelAdjustment.PreGainFactor = cla.PreGainFactor
			out.CaptureLevelAdjustment.PostGainFactor = cla.PostGainFactor
			if emu := cla.AnalogMicGainEmulation; emu != nil {
				out.CaptureLevelAdjustment.AnalogMicGainEmulation.Enabled = true
				out.CaptureLevelAdjustment.AnalogMicGainEmulation.InitialLevel = emu.InitialLevel
			}
		}
	}

	if hpf := c.HighPassFilter; hpf != nil {
		out.HighPassFilter.Enabled = true
		out.HighPassFilter.ApplyInFullBand = hpf.ApplyInFullBand
	}

	var delay *int
	if ec := c.EchoCanceller; ec != nil {
		out.EchoCanceller.Enabled = true
		if ec.Mobile != nil {
			out.EchoCanceller.MobileMode = true
			out.EchoCanceller.EnforceHighPassFiltering = false
			d := int(ec.Mobile.StreamDelayMS)
			delay = &d
		} else {
			// The full variant, also chosen when both arms are empty.
			out.EchoCanceller.MobileMode = false
			out.EchoCanceller.EnforceHighPassFiltering = true
			if ec.Full != nil && ec.Full.StreamDelayMS != nil {
				d := int(*ec.Full.StreamDelayMS)
				delay = &d
			}
		}
	}

	if ns := c.NoiseSuppression; ns != nil {
		out.NoiseSuppression.Enabled = true
		out.NoiseSuppression.Level = translateNSLevel(ns.Level)
		out.NoiseSuppression.AnalyzeLinearAECOutputWhenAvailable = ns.AnalyzeLinearAECOutput
		// Linear AEC output export only exists on the full canceller.
		out.EchoCanceller.ExportLinearAECOutput = ns.AnalyzeLinearAECOutput &&
			out.EchoCanceller.Enabled && !out.EchoCanceller.MobileMode
	}

	if gc := c.GainController; gc != nil {
		switch {
		case gc.GainController1 != nil:
			translateGC1(gc.GainController1, &out.GainController1)
		case gc.GainController2 != nil:
			translateGC2(gc.GainController2, &out.GainController2)
		}
	}

	return out, delay
}

func translateDownmix(m DownmixMethod) engine.DownmixMethod {
	if m == DownmixUseFirstChannel {
		return engine.DownmixUseFirstChannel
	}
	return engine.DownmixAverageChannels
}

func translateNSLevel(l NoiseSuppressionLevel) engine.NoiseSuppressionLevel {
	switch l {
	case NoiseSuppressionLow:
		return engine.NoiseSuppressionLow
	case NoiseSuppressionHigh:
		return engine.NoiseSuppressionHigh
	case NoiseSuppressionVeryHigh:
		return engine.NoiseSuppressionVeryHigh
	default:
		return engine.NoiseSuppressionModerate
	}
}

func translateGCMode(m GainControllerMode) engine.GainControllerMode {
	switch m {
	case GainModeAdaptiveDigital:
		return engine.GainModeAdaptiveDigital
	case GainModeFixedDigital:
		return engine.GainModeFixedDigital
	default:
		return engine.GainModeAdaptiveAnalog
	}
}

func translateClippingMode(m ClippingPredictorMode) engine.ClippingPredictorMode {
	switch m {
	case AdaptiveStepClippingPeakPrediction:
		return engine.AdaptiveStepClippingPeakPrediction
	case FixedStepClippingPeakPrediction:
		return engine.FixedStepClippingPeakPrediction
	default:
		return engine.ClippingEventPrediction
	}
}

func translateGC1(in *GainController1, out *engine.GainController1) {
	out.Enabled = true
	out.Mode = translateGCMode(in.Mode)
	out.TargetLevelDBFS = in.TargetLevelDBFS
	out.CompressionGainDB = in.CompressionGainDB
	out.EnableLimiter = in.EnableLimiter

	agc := &out.AnalogGainController
	if in.AnalogGainController == nil {
		agc.Enabled = false
		return
	}
	src := in.AnalogGainController
	agc.Enabled = true
	agc.StartupMinVolume = src.StartupMinVolume
	agc.ClippedLevelMin = src.ClippedLevelMin
	agc.EnableDigitalAdaptive = src.EnableDigitalAdaptive
	agc.ClippedLevelStep = src.ClippedLevelStep
	agc.ClippedRatioThreshold = src.ClippedRatioThreshold
	agc.ClippedWaitFrames = src.ClippedWaitFrames

	cp := &agc.ClippingPredictor
	if src.ClippingPredictor == nil {
		cp.Enabled = false
		return
	}
	cp.Enabled = true
	cp.Mode = translateClippingMode(src.ClippingPredictor.Mode)
	cp.WindowLength = src.ClippingPredictor.WindowLength
	cp.ReferenceWindowLength = src.ClippingPredictor.ReferenceWindowLength
	cp.ReferenceWindowDelay = src.ClippingPredictor.ReferenceWindowDelay
	cp.ClippingThreshold = src.ClippingPredictor.ClippingThreshold
	cp.CrestFactorMargin = src.ClippingPredictor.CrestFactorMargin
	cp.UsePredictedStep = src.ClippingPredictor.UsePredictedStep
}

func translateGC2(in *GainController2, out *engine.GainController2) {
	out.Enabled = true
	out.InputVolumeController.Enabled = in.InputVolumeControllerEnabled
	out.FixedDigital.GainDB = in.FixedDigital.GainDB

	ad := &out.AdaptiveDigital
	if in.AdaptiveDigital == nil {
		ad.Enabled = false
		return
	}
	ad.Enabled = true
	ad.HeadroomDB = in.AdaptiveDigital.HeadroomDB
	ad.MaxGainDB = in.AdaptiveDigital.MaxGainDB
	ad.InitialGainDB = in.AdaptiveDigital.InitialGainDB
	ad.MaxGainChangeDBPerSecond = in.AdaptiveDigital.MaxGainChangeDBPerSecond
	ad.MaxOutputNoiseLevelDBFS = in.AdaptiveDigital.MaxOutputNoiseLevelDBFS
}
