// Package aec3 exposes the full internal parameter tree of the advanced
// echo-canceller variant for direct mutation.
//
// This is an escape hatch: the fields are minimally documented and map
// one-to-one onto the engine's internal tuning knobs. The contract is a
// two-phase protocol: mutate any fields freely, then call [Config.Validate]
// before handing the tree to the processor constructor. Validate clamps
// out-of-range values into their documented bounds and reports whether the
// tree was already valid. Skipping validation risks rejection at
// construction time.
//
//	cfg := aec3.Default()
//	cfg.Suppressor.DominantNearendDetection.ENRThreshold = 0.25
//	cfg.Suppressor.DominantNearendDetection.SNRThreshold = 30.0
//	if !cfg.Validate() {
//	    // some fields were clamped
//	}
package aec3

import "github.com/sirupsen/logrus"

// Buffering controls render-buffer bookkeeping.
type Buffering struct {
	ExcessRenderDetectionIntervalBlocks int
	MaxAllowedExcessRenderBlocks        int
}

// AlignmentMixing selects how multi-channel audio is mixed down for delay
// estimation.
type AlignmentMixing struct {
	Downmix                bool
	AdaptiveSelection      bool
	ActivityPowerThreshold float32
	PreferFirstTwoChannels bool
}

// DelaySelectionThresholds hold the delay estimator trigger counts.
type DelaySelectionThresholds struct {
	Initial   int
	Converged int
}

// Delay controls the render/capture delay estimator.
type Delay struct {
	DefaultDelay                       int
	DownSamplingFactor                 int
	NumFilters                         int
	DelayHeadroomSamples               int
	HysteresisLimitBlocks              int
	FixedCaptureDelaySamples           int
	DelayEstimateSmoothing             float32
	DelayEstimateSmoothingDelayFound   float32
	DelayCandidateDetectionThreshold   float32
	DelaySelectionThresholds           DelaySelectionThresholds
	UseExternalDelayEstimator          bool
	LogWarningOnDelayChanges           bool
	RenderAlignmentMixing              AlignmentMixing
	CaptureAlignmentMixing             AlignmentMixing
	DetectPreEcho                      bool
}

// FilterRefinedConfiguration tunes the refined adaptive filter.
type FilterRefinedConfiguration struct {
	LengthBlocks     int
	LeakageConverged float32
	LeakageDiverged  float32
	ErrorFloor       float32
	ErrorCeil        float32
	NoiseGate        float32
}

// FilterCoarseConfiguration tunes the coarse adaptive filter.
type FilterCoarseConfiguration struct {
	LengthBlocks int
	Rate         float32
	NoiseGate    float32
}

// Filter controls the linear adaptive filters.
type Filter struct {
	Refined                       FilterRefinedConfiguration
	Coarse                        FilterCoarseConfiguration
	RefinedInitial                FilterRefinedConfiguration
	CoarseInitial                 FilterCoarseConfiguration
	ConfigChangeDurationBlocks    int
	InitialStateSeconds           float32
	CoarseResetHangoverBlocks     int
	ConservativeInitialPhase      bool
	EnableCoarseFilterOutputUsage bool
	UseLinearFilter               bool
	HighPassFilterEchoReference   bool
	ExportLinearAECOutput         bool
}

// Erle bounds the echo-return-loss-enhancement estimator.
type Erle struct {
	Min                       float32
	MaxL                      float32
	MaxH                      float32
	OnsetDetection            bool
	NumSections               int
	ClampQualityEstimateToZero bool
	ClampQualityEstimateToOne  bool
}

// EpStrength tunes the echo-path strength model.
type EpStrength struct {
	DefaultGain                                float32
	DefaultLen                                 float32
	NearendLen                                 float32
	EchoCanSaturate                            bool
	BoundedErl                                 bool
	ErleOnsetCompensationInDominantNearend     bool
	UseConservativeTailFrequencyResponse       bool
}

// EchoAudibility tunes the audibility-based echo gating.
type EchoAudibility struct {
	LowRenderLimit                   float32
	NormalRenderLimit                float32
	FloorPower                       float32
	AudibilityThresholdLF            float32
	AudibilityThresholdMF            float32
	AudibilityThresholdHF            float32
	UseStationarityProperties        bool
	UseStationarityPropertiesAtInit  bool
}

// RenderLevels classifies render signal activity.
type RenderLevels struct {
	ActiveRenderLimit           float32
	PoorExcitationRenderLimit   float32
	PoorExcitationRenderLimitDS8 float32
	RenderPowerGainDB           float32
}

// EchoRemovalControl toggles echo-removal behaviors.
type EchoRemovalControl struct {
	HasClockDrift            bool
	LinearAndStableEchoPath  bool
}

// EchoModel tunes the nonlinear echo power model.
type EchoModel struct {
	NoiseFloorHold             int
	MinNoiseFloorPower         float32
	StationaryGateSlope        float32
	NoiseGatePower             float32
	NoiseGateSlope             float32
	RenderPreWindowSize        int
	RenderPostWindowSize       int
	ModelReverbInNonlinearMode bool
}

// ComfortNoise sets the comfort noise injection floor.
type ComfortNoise struct {
	NoiseFloorDBFS float32
}

// MaskingThresholds hold suppressor masking tuning points.
type MaskingThresholds struct {
	ENRTransparent float32
	ENRSuppress    float32
	EMRTransparent float32
}

// SuppressorTuning groups the masking thresholds with gain-change limits.
type SuppressorTuning struct {
	MaskLF         MaskingThresholds
	MaskHF         MaskingThresholds
	MaxIncFactor   float32
	MaxDecFactorLF float32
}

// DominantNearendDetection tunes the dominant-nearend detector.
type DominantNearendDetection struct {
	ENRThreshold             float32
	ENRExitThreshold         float32
	SNRThreshold             float32
	HoldDuration             int
	TriggerThreshold         int
	UseDuringInitialPhase    bool
	UseUnboundedEchoSpectrum bool
}

// SubbandRegion is an inclusive subband index range.
type SubbandRegion struct {
	Low  int
	High int
}

// SubbandNearendDetection tunes the subband nearend detector.
type SubbandNearendDetection struct {
	NearendAverageBlocks int
	Subband1             SubbandRegion
	Subband2             SubbandRegion
	NearendThreshold     float32
	SNRThreshold         float32
}

// HighBandsSuppression tunes suppression above the modelled bands.
type HighBandsSuppression struct {
	ENRThreshold                   float32
	MaxGainDuringEcho              float32
	AntiHowlingActivationThreshold float32
	AntiHowlingGain                float32
}

// Suppressor tunes the echo suppressor.
type Suppressor struct {
	NearendAverageBlocks           int
	NormalTuning                   SuppressorTuning
	NearendTuning                  SuppressorTuning
	LFSmoothingDuringInitialPhase  bool
	LastPermanentLFSmoothingBand   int
	LastLFSmoothingBand            int
	LastLFBand                     int
	FirstHFBand                    int
	DominantNearendDetection       DominantNearendDetection
	SubbandNearendDetection        SubbandNearendDetection
	UseSubbandNearendDetection     bool
	HighBandsSuppression           HighBandsSuppression
	FloorFirstIncrease             float32
	ConservativeHFSuppression      bool
}

// MultiChannel controls stereo content detection.
type MultiChannel struct {
	DetectStereoContent                     bool
	StereoDetectionThreshold                float32
	StereoDetectionTimeoutThresholdSeconds  int
	StereoDetectionHysteresisSeconds        float32
}

// Config is the complete advanced echo-canceller parameter tree.
type Config struct {
	Buffering          Buffering
	Delay              Delay
	Filter             Filter
	Erle               Erle
	EpStrength         EpStrength
	EchoAudibility     EchoAudibility
	RenderLevels       RenderLevels
	EchoRemovalControl EchoRemovalControl
	EchoModel          EchoModel
	ComfortNoise       ComfortNoise
	Suppressor         Suppressor
	MultiChannel       MultiChannel
}

// Default returns the single-channel default parameter set.
func Default() Config {
	return Config{
		Buffering: Buffering{
			ExcessRenderDetectionIntervalBlocks: 250,
			MaxAllowedExcessRenderBlocks:        8,
		},
		Delay: Delay{
			DefaultDelay:                     5,
			DownSamplingFactor:               4,
			NumFilters:                       5,
			DelayHeadroomSamples:             32,
			HysteresisLimitBlocks:            1,
			DelayEstimateSmoothing:           0.7,
			DelayEstimateSmoothingDelayFound: 0.97,
			DelayCandidateDetectionThreshold: 0.2,
			DelaySelectionThresholds:         DelaySelectionThresholds{Initial: 5, Converged: 20},
			RenderAlignmentMixing: AlignmentMixing{
				AdaptiveSelection:      true,
				ActivityPowerThreshold: 10000,
				PreferFirstTwoChannels: true,
			},
			CaptureAlignmentMixing: AlignmentMixing{
				AdaptiveSelection:      true,
				ActivityPowerThreshold: 10000,
			},
			DetectPreEcho: true,
		},
		Filter: Filter{
			Refined: FilterRefinedConfiguration{
				LengthBlocks: 13, LeakageConverged: 0.00005, LeakageDiverged: 0.05,
				ErrorFloor: 0.001, ErrorCeil: 2, NoiseGate: 20075344,
			},
			Coarse: FilterCoarseConfiguration{
				LengthBlocks: 13, Rate: 0.7, NoiseGate: 20075344,
			},
			RefinedInitial: FilterRefinedConfiguration{
				LengthBlocks: 12, LeakageConverged: 0.005, LeakageDiverged: 0.5,
				ErrorFloor: 0.001, ErrorCeil: 2, NoiseGate: 20075344,
			},
			CoarseInitial: FilterCoarseConfiguration{
				LengthBlocks: 12, Rate: 0.9, NoiseGate: 20075344,
			},
			ConfigChangeDurationBlocks:    250,
			InitialStateSeconds:           2.5,
			CoarseResetHangoverBlocks:     25,
			EnableCoarseFilterOutputUsage: true,
			UseLinearFilter:               true,
		},
		Erle: Erle{
			Min: 1, MaxL: 4, MaxH: 1.5,
			OnsetDetection:             true,
			NumSections:                1,
			ClampQualityEstimateToZero: true,
			ClampQualityEstimateToOne:  true,
		},
		EpStrength: EpStrength{
			DefaultGain:                          1,
			DefaultLen:                           0.83,
			NearendLen:                           0.83,
			EchoCanSaturate:                      true,
			UseConservativeTailFrequencyResponse: true,
		},
		EchoAudibility: EchoAudibility{
			LowRenderLimit:        256,
			NormalRenderLimit:     64,
			FloorPower:            128,
			AudibilityThresholdLF: 10,
			AudibilityThresholdMF: 10,
			AudibilityThresholdHF: 10,
		},
		RenderLevels: RenderLevels{
			ActiveRenderLimit:            100,
			PoorExcitationRenderLimit:    150,
			PoorExcitationRenderLimitDS8: 20,
		},
		EchoModel: EchoModel{
			NoiseFloorHold:             50,
			MinNoiseFloorPower:         1638400,
			StationaryGateSlope:        10,
			NoiseGatePower:             27509.42,
			NoiseGateSlope:             0.3,
			RenderPreWindowSize:        1,
			RenderPostWindowSize:       1,
			ModelReverbInNonlinearMode: true,
		},
		ComfortNoise: ComfortNoise{NoiseFloorDBFS: -96.03406},
		Suppressor: Suppressor{
			NearendAverageBlocks: 4,
			NormalTuning: SuppressorTuning{
				MaskLF:         MaskingThresholds{ENRTransparent: 0.3, ENRSuppress: 0.4, EMRTransparent: 0.3},
				MaskHF:         MaskingThresholds{ENRTransparent: 0.07, ENRSuppress: 0.1, EMRTransparent: 0.3},
				MaxIncFactor:   2.0,
				MaxDecFactorLF: 0.25,
			},
			NearendTuning: SuppressorTuning{
				MaskLF:         MaskingThresholds{ENRTransparent: 1.09, ENRSuppress: 1.1, EMRTransparent: 0.3},
				MaskHF:         MaskingThresholds{ENRTransparent: 0.1, ENRSuppress: 0.3, EMRTransparent: 0.3},
				MaxIncFactor:   2.0,
				MaxDecFactorLF: 0.25,
			},
			LFSmoothingDuringInitialPhase: true,
			LastLFSmoothingBand:           5,
			LastLFBand:                    5,
			FirstHFBand:                   8,
			DominantNearendDetection: DominantNearendDetection{
				ENRThreshold:             0.25,
				ENRExitThreshold:         10,
				SNRThreshold:             30,
				HoldDuration:             50,
				TriggerThreshold:         12,
				UseDuringInitialPhase:    true,
				UseUnboundedEchoSpectrum: true,
			},
			SubbandNearendDetection: SubbandNearendDetection{
				NearendAverageBlocks: 1,
				Subband1:             SubbandRegion{Low: 1, High: 1},
				Subband2:             SubbandRegion{Low: 1, High: 1},
				NearendThreshold:     1,
				SNRThreshold:         1,
			},
			HighBandsSuppression: HighBandsSuppression{
				ENRThreshold:                   1,
				MaxGainDuringEcho:              1,
				AntiHowlingActivationThreshold: 400,
				AntiHowlingGain:                1,
			},
			FloorFirstIncrease: 0.00001,
		},
		MultiChannel: MultiChannel{
			DetectStereoContent:                    true,
			StereoDetectionTimeoutThresholdSeconds: 300,
			StereoDetectionHysteresisSeconds:       2,
		},
	}
}

// MultichannelDefault returns the default parameter set tuned for
// multichannel topologies: a shorter, faster-adapting coarse filter and a
// more conservative suppressor.
func MultichannelDefault() Config {
	cfg := Default()
	cfg.Filter.Coarse.LengthBlocks = 11
	cfg.Filter.Coarse.Rate = 0.95
	cfg.Filter.CoarseInitial.LengthBlocks = 11
	cfg.Filter.CoarseInitial.Rate = 0.95
	cfg.Suppressor.NormalTuning.MaxIncFactor = 1.5
	cfg.Suppressor.NormalTuning.MaxDecFactorLF = 0.35
	return cfg
}

// Validate clamps out-of-range parameters into their documented bounds.
// It returns true if and only if the config did not need to be changed.
// Callers must validate after mutating and before passing the tree to a
// processor constructor.
func (c *Config) Validate() bool {
	ok := true

	limInt(&ok, &c.Buffering.ExcessRenderDetectionIntervalBlocks, 0, 250)
	limInt(&ok, &c.Buffering.MaxAllowedExcessRenderBlocks, 0, 8)

	limInt(&ok, &c.Delay.DefaultDelay, 0, 5)
	limIntSet(&ok, &c.Delay.DownSamplingFactor, 4, []int{4, 8})
	limIntMin(&ok, &c.Delay.NumFilters, 0)
	limIntMin(&ok, &c.Delay.DelayHeadroomSamples, 0)
	limIntMin(&ok, &c.Delay.HysteresisLimitBlocks, 0)
	limIntMin(&ok, &c.Delay.FixedCaptureDelaySamples, 0)
	limFloat(&ok, &c.Delay.DelayEstimateSmoothing, 0, 1)
	limFloat(&ok, &c.Delay.DelayEstimateSmoothingDelayFound, 0, 1)
	limFloat(&ok, &c.Delay.DelayCandidateDetectionThreshold, 0, 1)
	limIntMin(&ok, &c.Delay.DelaySelectionThresholds.Initial, 1)
	limIntMin(&ok, &c.Delay.DelaySelectionThresholds.Converged, 1)

	validateFilterRefined(&ok, &c.Filter.Refined)
	validateFilterRefined(&ok, &c.Filter.RefinedInitial)
	validateFilterCoarse(&ok, &c.Filter.Coarse)
	validateFilterCoarse(&ok, &c.Filter.CoarseInitial)
	limIntMin(&ok, &c.Filter.ConfigChangeDurationBlocks, 1)
	limFloatMin(&ok, &c.Filter.InitialStateSeconds, 0)
	limIntMin(&ok, &c.Filter.CoarseResetHangoverBlocks, 0)

	limFloatMin(&ok, &c.Erle.Min, 1)
	limFloatMin(&ok, &c.Erle.MaxL, c.Erle.Min)
	limFloatMin(&ok, &c.Erle.MaxH, c.Erle.Min)
	limInt(&ok, &c.Erle.NumSections, 1, c.Filter.Refined.LengthBlocks)

	limFloat(&ok, &c.EpStrength.DefaultGain, 0, 1000000)
	limFloat(&ok, &c.EpStrength.DefaultLen, -1, 1)
	limFloat(&ok, &c.EpStrength.NearendLen, -1, 1)

	limFloatMin(&ok, &c.EchoAudibility.LowRenderLimit, 0)
	limFloatMin(&ok, &c.EchoAudibility.NormalRenderLimit, 0)
	limFloatMin(&ok, &c.EchoAudibility.FloorPower, 0)
	limFloatMin(&ok, &c.EchoAudibility.AudibilityThresholdLF, 0)
	limFloatMin(&ok, &c.EchoAudibility.AudibilityThresholdMF, 0)
	limFloatMin(&ok, &c.EchoAudibility.AudibilityThresholdHF, 0)

	limFloatMin(&ok, &c.RenderLevels.ActiveRenderLimit, 0)
	limFloatMin(&ok, &c.RenderLevels.PoorExcitationRenderLimit, 0)
	limFloatMin(&ok, &c.RenderLevels.PoorExcitationRenderLimitDS8, 0)
	limFloat(&ok, &c.RenderLevels.RenderPowerGainDB, -40, 40)

	limIntMin(&ok, &c.EchoModel.NoiseFloorHold, 0)
	limFloatMin(&ok, &c.EchoModel.MinNoiseFloorPower, 0)
	limFloatMin(&ok, &c.EchoModel.StationaryGateSlope, 0)
	limFloatMin(&ok, &c.EchoModel.NoiseGatePower, 0)
	limFloatMin(&ok, &c.EchoModel.NoiseGateSlope, 0)
	limIntMin(&ok, &c.EchoModel.RenderPreWindowSize, 0)
	limIntMin(&ok, &c.EchoModel.RenderPostWindowSize, 0)

	limFloat(&ok, &c.ComfortNoise.NoiseFloorDBFS, -200, 0)

	limIntMin(&ok, &c.Suppressor.NearendAverageBlocks, 1)
	validateTuning(&ok, &c.Suppressor.NormalTuning)
	validateTuning(&ok, &c.Suppressor.NearendTuning)
	dnd := &c.Suppressor.DominantNearendDetection
	limFloatMin(&ok, &dnd.ENRThreshold, 0)
	limFloatMin(&ok, &dnd.ENRExitThreshold, 0)
	limFloatMin(&ok, &dnd.SNRThreshold, 0)
	limIntMin(&ok, &dnd.HoldDuration, 0)
	limIntMin(&ok, &dnd.TriggerThreshold, 0)
	snd := &c.Suppressor.SubbandNearendDetection
	limIntMin(&ok, &snd.NearendAverageBlocks, 1)
	limFloatMin(&ok, &snd.NearendThreshold, 0)
	limFloatMin(&ok, &snd.SNRThreshold, 0)
	hbs := &c.Suppressor.HighBandsSuppression
	limFloatMin(&ok, &hbs.ENRThreshold, 0)
	limFloat(&ok, &hbs.MaxGainDuringEcho, 0, 1)
	limFloatMin(&ok, &hbs.AntiHowlingActivationThreshold, 0)
	limFloat(&ok, &hbs.AntiHowlingGain, 0, 1)
	limFloatMin(&ok, &c.Suppressor.FloorFirstIncrease, 0)

	limFloatMin(&ok, &c.MultiChannel.StereoDetectionThreshold, 0)
	limIntMin(&ok, &c.MultiChannel.StereoDetectionTimeoutThresholdSeconds, 0)
	limFloatMin(&ok, &c.MultiChannel.StereoDetectionHysteresisSeconds, 0)

	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Config.Validate",
		}).Warn("AEC3 config contained out-of-range values, clamped")
	}
	return ok
}

func validateFilterRefined(ok *bool, f *FilterRefinedConfiguration) {
	limInt(ok, &f.LengthBlocks, 1, 26)
	limFloat(ok, &f.LeakageConverged, 0, 1)
	limFloat(ok, &f.LeakageDiverged, 0, 1)
	limFloatMin(ok, &f.ErrorFloor, 0)
	limFloatMin(ok, &f.ErrorCeil, 0)
	limFloatMin(ok, &f.NoiseGate, 0)
}

func validateFilterCoarse(ok *bool, f *FilterCoarseConfiguration) {
	limInt(ok, &f.LengthBlocks, 1, 26)
	limFloat(ok, &f.Rate, 0, 1)
	limFloatMin(ok, &f.NoiseGate, 0)
}

func validateTuning(ok *bool, t *SuppressorTuning) {
	limFloatMin(ok, &t.MaskLF.ENRTransparent, 0)
	limFloatMin(ok, &t.MaskLF.ENRSuppress, 0)
	limFloatMin(ok, &t.MaskLF.EMRTransparent, 0)
	limFloatMin(ok, &t.MaskHF.ENRTransparent, 0)
	limFloatMin(ok, &t.MaskHF.ENRSuppress, 0)
	limFloatMin(ok, &t.MaskHF.EMRTransparent, 0)
	limFloatMin(ok, &t.MaxIncFactor, 0)
	limFloat(ok, &t.MaxDecFactorLF, 0, 1)
}

func limInt(ok *bool, v *int, lo, hi int) {
	if *v < lo {
		*v = lo
		*ok = false
	} else if *v > hi {
		*v = hi
		*ok = false
	}
}

func limIntMin(ok *bool, v *int, lo int) {
	if *v < lo {
		*v = lo
		*ok = false
	}
}

func limIntSet(ok *bool, v *int, fallback int, allowed []int) {
	for _, a := range allowed {
		if *v == a {
			return
		}
	}
	*v = fallback
	*ok = false
}

func limFloat(ok *bool, v *float32, lo, hi float32) {
	if *v < lo {
		*v = lo
		*ok = false
	} else if *v > hi {
		*v = hi
		*ok = false
	}
}

func limFloatMin(ok *bool, v *float32, lo float32) {
	if *v < lo {
		*v = lo
		*ok = false
	}
}
