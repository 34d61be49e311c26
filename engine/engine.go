// Package engine implements the real-time audio processing engine behind the
// audioproc facade: acoustic echo cancellation, noise suppression, automatic
// gain control and voice activity detection over fixed 10 ms frames.
//
// The package has two faces. The narrow frame API (New, ProcessCaptureFrame,
// ProcessRenderFrame, AnalyzeRenderFrame, ApplyConfig, SetStreamDelayMS,
// GetStats, Initialize, Close) is the contract the facade programs against;
// every fallible call reports an integer status code from the closed set in
// status.go. The rest of the package is a reference pure-Go implementation
// of that contract.
//
// The Engine itself is not safe for arbitrary concurrent use: the caller
// must serialize capture-path calls against each other, render-path calls
// against each other, and configuration calls against everything. The
// audioproc facade provides exactly that discipline. The only internally
// synchronized state is the far-end reference ring, which the render path
// writes while the capture path reads.
package engine

import (
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audioproc/aec3"
)

// statsWindowFrames is the aggregation window for windowed statistics
// (divergent-filter fraction, residual-echo recent max, delay spread):
// one second of 10 ms frames.
const statsWindowFrames = 100

// InitConfig carries the construction-time parameters. Everything else is
// supplied later through ApplyConfig.
type InitConfig struct {
	// SampleRateHz must be positive and divisible by 100 so that a 10 ms
	// frame holds a whole number of samples.
	SampleRateHz int

	// AEC3 optionally seeds the advanced echo canceller with an externally
	// prepared parameter tree. The tree must already have been validated;
	// a tree that still needs clamping is rejected with BadParameter.
	AEC3 *aec3.Config
}

// captureChannel bundles the per-channel adaptive state of the capture
// processing chain.
type captureChannel struct {
	hpf dcBlocker
	aec *nlmsCanceller
	ns  *noiseSuppressor
	ag1 *agc1
	ag2 *agc2
}

// Engine processes capture and render streams frame by frame.
type Engine struct {
	sampleRate      int
	samplesPerFrame int
	aec3Config      *aec3.Config

	cfg    Config
	closed bool

	// Far-end reference, shared between the render path (writes) and the
	// capture path (reads).
	refMu sync.Mutex
	ref   *referenceRing

	// Capture-side state. Serialized by the facade's capture lock.
	channels       []*captureChannel
	monoScratch    []float32
	refScratch     []float32
	captureSamples int64
	vad            voiceDetector

	// Render-side downmix scratch, guarded by refMu.
	renderMix []float32

	streamDelayMS  int
	streamDelaySet bool

	outputMuted bool
	keyPressed  bool

	stats statsAggregator
}

// New constructs an engine for the given sample rate. On failure it returns
// a nil engine and a non-zero status code; no resources are retained.
func New(cfg InitConfig) (*Engine, int) {
	if cfg.SampleRateHz <= 0 || cfg.SampleRateHz%100 != 0 {
		logrus.WithFields(logrus.Fields{
			"function":       "engine.New",
			"sample_rate_hz": cfg.SampleRateHz,
		}).Error("Unsupported sample rate")
		return nil, StatusBadSampleRateError
	}
	if cfg.SampleRateHz > 384000 {
		logrus.WithFields(logrus.Fields{
			"function":       "engine.New",
			"sample_rate_hz": cfg.SampleRateHz,
		}).Error("Sample rate beyond initialization limit")
		return nil, StatusCreationFailedError
	}

	var aec3Config *aec3.Config
	if cfg.AEC3 != nil {
		// Validate a copy: a tree that still needs clamping was not taken
		// through the documented validate-before-use protocol.
		probe := *cfg.AEC3
		if !probe.Validate() {
			logrus.WithFields(logrus.Fields{
				"function": "engine.New",
			}).Error("AEC3 config rejected: requires clamping, validate before use")
			return nil, StatusBadParameterError
		}
		c := *cfg.AEC3
		aec3Config = &c
	}

	samplesPerFrame := cfg.SampleRateHz * FrameMS / 1000
	e := &Engine{
		sampleRate:      cfg.SampleRateHz,
		samplesPerFrame: samplesPerFrame,
		aec3Config:      aec3Config,
		cfg:             DefaultConfig(),
		// Two seconds of reference history bounds the largest usable
		// stream delay hint.
		ref:   newReferenceRing(2 * cfg.SampleRateHz),
		stats: newStatsAggregator(),
	}

	logrus.WithFields(logrus.Fields{
		"function":          "engine.New",
		"sample_rate_hz":    e.sampleRate,
		"samples_per_frame": e.samplesPerFrame,
		"aec3_seeded":       aec3Config != nil,
	}).Debug("Engine created")

	return e, StatusNoError
}

// SamplesPerFrame returns the fixed per-channel frame length.
func (e *Engine) SamplesPerFrame() int {
	return e.samplesPerFrame
}

// aecTaps returns the adaptive filter length for the configured canceller
// variant. The mobile canceller runs a shorter filter; it relies entirely on
// the reported stream delay for alignment.
func (e *Engine) aecTaps() int {
	if e.cfg.EchoCanceller.MobileMode {
		return e.samplesPerFrame / 2
	}
	return e.samplesPerFrame
}

// ensureChannels rebuilds per-channel state when the caller switches channel
// counts between frames. This is the partial reinitialization cost of
// dynamic channel topologies: adaptive state for the capture chain does not
// survive the switch.
func (e *Engine) ensureChannels(n int) {
	if len(e.channels) == n && len(e.channels) > 0 && len(e.channels[0].aec.taps) == e.aecTaps() {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":     "Engine.ensureChannels",
		"old_channels": len(e.channels),
		"new_channels": n,
	}).Debug("Rebuilding capture channel state")

	taps := e.aecTaps()
	e.channels = make([]*captureChannel, n)
	for i := range e.channels {
		e.channels[i] = &captureChannel{
			aec: newNLMSCanceller(taps),
			ns:  newNoiseSuppressor(),
			ag1: newAGC1(),
			ag2: newAGC2(),
		}
	}
	if cap(e.refScratch) < e.samplesPerFrame+taps {
		e.refScratch = make([]float32, e.samplesPerFrame+taps)
	}
	e.refScratch = e.refScratch[:e.samplesPerFrame+taps]
	if e.monoScratch == nil {
		e.monoScratch = make([]float32, e.samplesPerFrame)
	}
}

// ProcessCaptureFrame runs the capture chain over one 10 ms frame, mutating
// the samples in place.
func (e *Engine) ProcessCaptureFrame(channels [][]float32) int {
	if e.closed {
		return StatusUnspecifiedError
	}
	if code := e.checkFrame(channels); code != StatusNoError {
		return code
	}
	if e.cfg.EchoCanceller.Enabled && e.cfg.EchoCanceller.MobileMode && !e.streamDelaySet {
		return StatusStreamParameterNotSetError
	}

	mono := len(channels) > 1 && !e.cfg.Pipeline.MultiChannelCapture
	if mono {
		e.ensureChannels(1)
		e.downmixCapture(channels, e.monoScratch)
		e.processCaptureChannel(0, e.monoScratch)
		for _, ch := range channels {
			copy(ch, e.monoScratch)
		}
	} else {
		e.ensureChannels(len(channels))
		for i, ch := range channels {
			e.processCaptureChannel(i, ch)
		}
	}

	e.captureSamples += int64(e.samplesPerFrame)
	e.updateStats(channels[0])
	return StatusNoError
}

// processCaptureChannel runs the configured submodule chain over a single
// channel. Order mirrors the engine pipeline: level pre-adjustment, high
// pass, echo cancellation, noise suppression, gain control, post gain.
func (e *Engine) processCaptureChannel(idx int, samples []float32) {
	st := e.channels[idx]

	if e.cfg.PreAmplifier.Enabled {
		scale(samples, e.cfg.PreAmplifier.FixedGainFactor)
	}
	if e.cfg.CaptureLevelAdjustment.Enabled {
		scale(samples, e.cfg.CaptureLevelAdjustment.PreGainFactor)
	}

	if e.cfg.HighPassFilter.Enabled ||
		(e.cfg.EchoCanceller.Enabled && e.cfg.EchoCanceller.EnforceHighPassFiltering) {
		st.hpf.process(samples)
	}

	if e.cfg.EchoCanceller.Enabled {
		taps := len(st.aec.taps)
		delaySamples := 0
		if e.streamDelaySet {
			delaySamples = e.streamDelayMS * e.sampleRate / 1000
		}
		start := e.captureSamples - int64(delaySamples) - int64(taps-1)
		e.refMu.Lock()
		e.ref.copySpan(e.refScratch, start)
		e.refMu.Unlock()
		st.aec.cancel(samples, e.refScratch, !e.keyPressed)
	}

	if e.cfg.NoiseSuppression.Enabled {
		st.ns.process(samples, e.cfg.NoiseSuppression.Level)
	}

	if e.cfg.GainController1.Enabled {
		st.ag1.process(samples, &e.cfg.GainController1, e.outputMuted)
	}
	if e.cfg.GainController2.Enabled {
		st.ag2.process(samples, &e.cfg.GainController2, e.sampleRate, e.outputMuted)
	}

	if e.cfg.CaptureLevelAdjustment.Enabled {
		scale(samples, e.cfg.CaptureLevelAdjustment.PostGainFactor)
	}
}

// ProcessRenderFrame feeds one render frame into the far-end reference. The
// render chain may modify the samples; the reference implementation leaves
// them untouched.
func (e *Engine) ProcessRenderFrame(channels [][]float32) int {
	return e.recordRender(channels)
}

// AnalyzeRenderFrame observes one render frame without modifying it.
func (e *Engine) AnalyzeRenderFrame(channels [][]float32) int {
	return e.recordRender(channels)
}

func (e *Engine) recordRender(channels [][]float32) int {
	if e.closed {
		return StatusUnspecifiedError
	}
	if code := e.checkFrame(channels); code != StatusNoError {
		return code
	}

	// Downmix by averaging for alignment; the reference ring is mono.
	e.refMu.Lock()
	defer e.refMu.Unlock()
	if e.renderMix == nil {
		e.renderMix = make([]float32, e.samplesPerFrame)
	}
	for i := 0; i < e.samplesPerFrame; i++ {
		var sum float32
		for _, ch := range channels {
			sum += ch[i]
		}
		e.renderMix[i] = sum / float32(len(channels))
	}
	e.ref.write(e.renderMix)
	return StatusNoError
}

func (e *Engine) checkFrame(channels [][]float32) int {
	if len(channels) == 0 {
		return StatusBadNumberChannelsError
	}
	for _, ch := range channels {
		if len(ch) != e.samplesPerFrame {
			return StatusBadDataLengthError
		}
	}
	return StatusNoError
}

// downmixCapture reduces a multi-channel frame to mono per the configured
// downmix method.
func (e *Engine) downmixCapture(channels [][]float32, dst []float32) {
	if e.cfg.Pipeline.CaptureDownmixMethod == DownmixUseFirstChannel {
		copy(dst, channels[0])
		return
	}
	n := float32(len(channels))
	for i := range dst {
		var sum float32
		for _, ch := range channels {
			sum += ch[i]
		}
		dst[i] = sum / n
	}
}

// ApplyConfig installs a new flat configuration. Out-of-range values are
// clamped, never rejected. Switching the echo canceller variant resizes the
// adaptive filters, which resets their state.
func (e *Engine) ApplyConfig(cfg Config) {
	if e.closed {
		return
	}
	cfg.clamp()
	oldTaps := e.aecTaps()
	e.cfg = cfg
	if len(e.channels) > 0 && e.aecTaps() != oldTaps {
		e.ensureChannels(len(e.channels))
	}
	logrus.WithFields(logrus.Fields{
		"function":          "Engine.ApplyConfig",
		"echo_canceller":    cfg.EchoCanceller.Enabled,
		"mobile_mode":       cfg.EchoCanceller.MobileMode,
		"noise_suppression": cfg.NoiseSuppression.Enabled,
		"gain_controller1":  cfg.GainController1.Enabled,
		"gain_controller2":  cfg.GainController2.Enabled,
		"high_pass_filter":  cfg.HighPassFilter.Enabled,
		"multi_ch_capture":  cfg.Pipeline.MultiChannelCapture,
		"multi_ch_render":   cfg.Pipeline.MultiChannelRender,
	}).Debug("Engine config applied")
}

// SetStreamDelayMS reports the delay between a render frame being queued for
// playback and its echo arriving in a capture frame. It applies to every
// subsequent capture frame until changed.
func (e *Engine) SetStreamDelayMS(delay int) {
	if e.closed {
		return
	}
	if delay < 0 {
		delay = 0
	}
	maxDelay := 1000 * (len(e.ref.buf) - e.samplesPerFrame) / e.sampleRate
	if delay > maxDelay {
		delay = maxDelay
	}
	e.streamDelayMS = delay
	e.streamDelaySet = true
}

// SetOutputWillBeMuted hints that the processed output is or will be muted;
// gain adaptation pauses while the hint is active.
func (e *Engine) SetOutputWillBeMuted(muted bool) {
	e.outputMuted = muted
}

// SetStreamKeyPressed hints that the next frames contain key-press
// transients; echo-path adaptation pauses while the hint is active.
func (e *Engine) SetStreamKeyPressed(pressed bool) {
	e.keyPressed = pressed
}

// Initialize discards all adaptive state (echo-path estimates, noise floors,
// gain trajectories, aggregated statistics) while keeping the applied
// configuration and the reported stream delay.
func (e *Engine) Initialize() {
	if e.closed {
		return
	}
	for _, ch := range e.channels {
		ch.hpf.reset()
		ch.aec.reset()
		ch.ns.reset()
		ch.ag1.reset()
		ch.ag2.reset()
	}
	e.vad.reset()
	e.refMu.Lock()
	e.ref.reset()
	e.refMu.Unlock()
	e.captureSamples = 0
	e.stats = newStatsAggregator()
	logrus.WithFields(logrus.Fields{
		"function": "Engine.Initialize",
	}).Debug("Engine adaptive state discarded")
}

// Close releases the engine. Further calls are no-ops or report failure.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.channels = nil
	e.ref = nil
	e.refScratch = nil
	e.monoScratch = nil
	e.renderMix = nil
	logrus.WithFields(logrus.Fields{
		"function": "Engine.Close",
	}).Debug("Engine closed")
}

// GetStats snapshots the aggregate measurement state.
func (e *Engine) GetStats() Stats {
	if e.closed {
		return Stats{}
	}
	return e.stats.snapshot()
}

func scale(samples []float32, factor float32) {
	if factor == 1 {
		return
	}
	for i := range samples {
		samples[i] *= factor
	}
}

// statsAggregator folds per-frame measurements into the engine's aggregate
// statistics. Windowed values aggregate over one second of frames.
type statsAggregator struct {
	haveRMS   bool
	rms       int
	haveVoice bool
	voice     bool

	haveEcho      bool
	haveERL       bool
	erl           float64
	erle          float64
	residual      float64
	haveResidual  bool
	residualMax   float64
	windowMax     float64
	divergent     int
	windowFrames  int
	divergentFrac float64
	haveDivergent bool

	haveDelay bool
	delayMS   int
	delays    []int
}

// newStatsAggregator preallocates the delay window so the capture path never
// allocates while aggregating.
func newStatsAggregator() statsAggregator {
	return statsAggregator{delays: make([]int, 0, statsWindowFrames)}
}

func (s *statsAggregator) snapshot() Stats {
	var out Stats
	if s.haveRMS {
		out.OutputRMSDBFS = someInt(s.rms)
	}
	if s.haveVoice {
		out.VoiceDetected = someBool(s.voice)
	}
	if s.haveEcho {
		out.EchoReturnLossEnhancement = someDouble(s.erle)
	}
	if s.haveERL {
		out.EchoReturnLoss = someDouble(s.erl)
	}
	if s.haveDivergent {
		out.DivergentFilterFraction = someDouble(s.divergentFrac)
	}
	if s.haveResidual {
		out.ResidualEchoLikelihood = someDouble(s.residual)
		out.ResidualEchoLikelihoodRecentMax = someDouble(s.residualMax)
	}
	if s.haveDelay {
		out.DelayMS = someInt(s.delayMS)
		out.DelayMedianMS = someInt(medianInt(s.delays))
		out.DelayStandardDeviationMS = someInt(stddevInt(s.delays))
	}
	return out
}

// updateStats derives the per-frame measurements from the first output
// channel and the echo canceller's frame accumulators.
func (e *Engine) updateStats(out []float32) {
	s := &e.stats

	rms := frameRMS(out)
	s.rms = rmsDBFS(rms)
	s.haveRMS = true

	if e.cfg.NoiseSuppression.Enabled {
		s.voice = e.vad.detect(out)
		s.haveVoice = true
	}

	if e.cfg.EchoCanceller.Enabled && len(e.channels) > 0 {
		aec := e.channels[0].aec
		const eps = 1e-12

		erle := 0.0
		if aec.framePowerOut > eps && aec.framePowerIn > eps {
			erle = 10 * math.Log10(aec.framePowerIn/aec.framePowerOut)
		}
		if erle < 0 {
			erle = 0
		}
		if erle > 60 {
			erle = 60
		}
		if s.haveEcho {
			s.erle = 0.9*s.erle + 0.1*erle
		} else {
			s.erle = erle
		}
		s.haveEcho = true

		if aec.framePowerFar > eps && aec.framePowerEcho > eps {
			erl := 10 * math.Log10(aec.framePowerFar/aec.framePowerEcho)
			if s.haveERL {
				s.erl = 0.9*s.erl + 0.1*erl
			} else {
				s.erl = erl
			}
			s.haveERL = true
		}

		likelihood := 0.0
		if aec.framePowerOut > eps && aec.framePowerFar > eps {
			likelihood = math.Abs(aec.frameCrossRef) /
				math.Sqrt(aec.framePowerOut*aec.framePowerFar)
			if likelihood > 1 {
				likelihood = 1
			}
		}
		s.residual = 0.9*s.residual + 0.1*likelihood
		s.haveResidual = true
		if likelihood > s.windowMax {
			s.windowMax = likelihood
		}

		if aec.framePowerOut > aec.framePowerIn*1.05 {
			s.divergent++
		}
		s.windowFrames++
		if s.windowFrames >= statsWindowFrames {
			s.divergentFrac = float64(s.divergent) / float64(s.windowFrames)
			s.residualMax = s.windowMax
			s.haveDivergent = true
			s.divergent = 0
			s.windowFrames = 0
			s.windowMax = 0
		} else if !s.haveDivergent {
			// Before the first full window, expose the running fraction so
			// early polls are not blind.
			s.divergentFrac = float64(s.divergent) / float64(s.windowFrames)
			s.residualMax = s.windowMax
		}

		if e.streamDelaySet {
			s.delayMS = e.streamDelayMS
			s.haveDelay = true
			if len(s.delays) == cap(s.delays) {
				copy(s.delays, s.delays[1:])
				s.delays = s.delays[:len(s.delays)-1]
			}
			s.delays = append(s.delays, e.streamDelayMS)
		}
	}
}

func medianInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	return sorted[len(sorted)/2]
}

func stddevInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += float64(v)
	}
	mean /= float64(len(values))
	var varSum float64
	for _, v := range values {
		d := float64(v) - mean
		varSum += d * d
	}
	return int(math.Round(math.Sqrt(varSum / float64(len(values)))))
}
