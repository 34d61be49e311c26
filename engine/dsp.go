package engine

import "math"

// referenceRing stores the downmixed far-end (render) signal so the echo
// canceller can look back at the samples that were played `delay` ago.
// Samples are addressed by absolute index: index n is the n-th render sample
// ever written. Reads outside the retained span return silence.
type referenceRing struct {
	buf     []float32
	written int64
}

func newReferenceRing(capacity int) *referenceRing {
	return &referenceRing{buf: make([]float32, capacity)}
}

func (r *referenceRing) write(samples []float32) {
	for _, s := range samples {
		r.buf[r.written%int64(len(r.buf))] = s
		r.written++
	}
}

// copySpan fills dst with samples [start, start+len(dst)) of the absolute
// sample timeline, substituting zeroes for anything not retained.
func (r *referenceRing) copySpan(dst []float32, start int64) {
	lo := r.written - int64(len(r.buf))
	for i := range dst {
		idx := start + int64(i)
		if idx < 0 || idx < lo || idx >= r.written {
			dst[i] = 0
			continue
		}
		dst[i] = r.buf[idx%int64(len(r.buf))]
	}
}

func (r *referenceRing) reset() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.written = 0
}

// dcBlocker is a first-order high-pass filter removing DC offset and
// low-frequency noise from the capture signal.
type dcBlocker struct {
	lastIn  float32
	lastOut float32
}

func (f *dcBlocker) process(samples []float32) {
	const r = 0.995
	for i, x := range samples {
		y := x - f.lastIn + r*f.lastOut
		f.lastIn = x
		f.lastOut = y
		samples[i] = y
	}
}

func (f *dcBlocker) reset() {
	f.lastIn = 0
	f.lastOut = 0
}

// nlmsCanceller is a normalized-LMS adaptive filter that estimates the echo
// path from the delay-aligned far-end reference and subtracts the estimated
// echo from the capture signal. Adaptation freezes when the reference is
// silent or when the capture side reports a key press.
type nlmsCanceller struct {
	taps []float64

	// frame measurements for the stats aggregator
	framePowerIn   float64
	framePowerOut  float64
	framePowerFar  float64
	framePowerEcho float64
	frameCrossRef  float64
}

func newNLMSCanceller(numTaps int) *nlmsCanceller {
	return &nlmsCanceller{taps: make([]float64, numTaps)}
}

// cancel processes one capture frame in place. ref holds the aligned far-end
// span: ref[len(taps)-1+i] is the reference sample aligned with capture
// sample i, and the len(taps)-1 samples before it form the filter history.
func (c *nlmsCanceller) cancel(capture []float32, ref []float32, adapt bool) {
	const mu = 0.8
	const minPower = 1e-6

	numTaps := len(c.taps)

	c.framePowerIn = 0
	c.framePowerOut = 0
	c.framePowerFar = 0
	c.framePowerEcho = 0
	c.frameCrossRef = 0

	// Running power of the reference window, updated incrementally.
	var power float64
	for j := 0; j < numTaps; j++ {
		v := float64(ref[j])
		power += v * v
	}

	for i, d := range capture {
		var estimate float64
		base := i + numTaps - 1
		for j := 0; j < numTaps; j++ {
			estimate += c.taps[j] * float64(ref[base-j])
		}

		e := float64(d) - estimate
		capture[i] = float32(e)

		far := float64(ref[base])
		c.framePowerIn += float64(d) * float64(d)
		c.framePowerOut += e * e
		c.framePowerFar += far * far
		c.framePowerEcho += estimate * estimate
		c.frameCrossRef += e * far

		if adapt && power > minPower {
			step := mu * e / (power + minPower)
			for j := 0; j < numTaps; j++ {
				c.taps[j] += step * float64(ref[base-j])
			}
		}

		// Slide the reference window by one sample.
		out := float64(ref[i])
		in := float64(ref[i+numTaps])
		power += in*in - out*out
		if power < 0 {
			power = 0
		}
	}
}

func (c *nlmsCanceller) reset() {
	for i := range c.taps {
		c.taps[i] = 0
	}
}

// noiseSuppressor attenuates frames whose level sits near the tracked noise
// floor. The aggressiveness (maximum attenuation) follows the configured
// suppression level.
type noiseSuppressor struct {
	noiseFloor float64
	seeded     bool
	gain       float64
}

func newNoiseSuppressor() *noiseSuppressor {
	return &noiseSuppressor{gain: 1}
}

// maxAttenuation maps a suppression level to a minimum gain.
func maxAttenuation(level NoiseSuppressionLevel) float64 {
	switch level {
	case NoiseSuppressionLow:
		return 0.5 // ~6 dB
	case NoiseSuppressionModerate:
		return 0.25 // ~12 dB
	case NoiseSuppressionHigh:
		return 0.125 // ~18 dB
	default:
		return 0.09 // ~21 dB
	}
}

func (n *noiseSuppressor) process(samples []float32, level NoiseSuppressionLevel) {
	rms := frameRMS(samples)

	// Minimum-tracking noise floor, seeded from the first frame, with a slow
	// upward drift so the estimate recovers after transient dips.
	if !n.seeded {
		n.noiseFloor = rms
		n.seeded = true
	} else if rms < n.noiseFloor {
		n.noiseFloor = rms
	} else {
		n.noiseFloor *= 1.008
	}
	if n.noiseFloor < 1e-6 {
		n.noiseFloor = 1e-6
	}

	target := 1.0
	if rms < n.noiseFloor*3 {
		target = maxAttenuation(level)
	}
	// Smooth gain changes to avoid gating artifacts.
	n.gain += 0.3 * (target - n.gain)

	g := float32(n.gain)
	for i := range samples {
		samples[i] *= g
	}
}

func (n *noiseSuppressor) reset() {
	n.noiseFloor = 0
	n.seeded = false
	n.gain = 1
}

// agc1 implements the legacy single-stage gain controller: a digital gain
// toward the target peak level, bounded by the compression gain, with an
// optional hard limiter at the target.
type agc1 struct {
	gain     float64
	envelope float64
}

func newAGC1() *agc1 {
	return &agc1{gain: 1}
}

func (a *agc1) process(samples []float32, cfg *GainController1, muted bool) {
	targetAmp := math.Pow(10, -float64(cfg.TargetLevelDBFS)/20)
	maxGain := math.Pow(10, float64(cfg.CompressionGainDB)/20)

	switch cfg.Mode {
	case GainModeFixedDigital:
		a.gain = maxGain
	default:
		// Adaptive modes track the peak envelope and pull the signal
		// toward the target level. Adaptation pauses while the output is
		// known to be muted.
		peak := framePeak(samples)
		if peak > a.envelope {
			a.envelope += 0.5 * (peak - a.envelope)
		} else {
			a.envelope += 0.05 * (peak - a.envelope)
		}
		if !muted && a.envelope > 1e-5 {
			desired := targetAmp / a.envelope
			if desired > maxGain {
				desired = maxGain
			}
			if desired < 1 {
				desired = 1
			}
			a.gain += 0.1 * (desired - a.gain)
		}
	}

	g := float32(a.gain)
	limit := float32(targetAmp)
	for i := range samples {
		v := samples[i] * g
		if cfg.EnableLimiter {
			if v > limit {
				v = limit
			} else if v < -limit {
				v = -limit
			}
		}
		samples[i] = v
	}
}

func (a *agc1) reset() {
	a.gain = 1
	a.envelope = 0
}

// agc2 implements the two-stage gain controller: an adaptive digital gain
// toward the configured headroom, a fixed digital gain, and a full-scale
// limiter.
type agc2 struct {
	adaptiveGainDB float64
	envelope       float64
	initialized    bool
}

func newAGC2() *agc2 {
	return &agc2{}
}

func (a *agc2) process(samples []float32, cfg *GainController2, sampleRate int, muted bool) {
	if cfg.AdaptiveDigital.Enabled {
		if !a.initialized {
			a.adaptiveGainDB = float64(cfg.AdaptiveDigital.InitialGainDB)
			a.initialized = true
		}
		peak := framePeak(samples)
		if peak > a.envelope {
			a.envelope += 0.5 * (peak - a.envelope)
		} else {
			a.envelope += 0.05 * (peak - a.envelope)
		}
		if !muted && a.envelope > 1e-5 {
			targetAmp := math.Pow(10, -float64(cfg.AdaptiveDigital.HeadroomDB)/20)
			desiredDB := 20 * math.Log10(targetAmp/a.envelope)
			if desiredDB > float64(cfg.AdaptiveDigital.MaxGainDB) {
				desiredDB = float64(cfg.AdaptiveDigital.MaxGainDB)
			}
			if desiredDB < 0 {
				desiredDB = 0
			}
			// Slew limit: MaxGainChangeDBPerSecond across 100 frames/s.
			maxStep := float64(cfg.AdaptiveDigital.MaxGainChangeDBPerSecond) / 100
			diff := desiredDB - a.adaptiveGainDB
			if diff > maxStep {
				diff = maxStep
			} else if diff < -maxStep {
				diff = -maxStep
			}
			a.adaptiveGainDB += diff
		}
	}

	totalDB := float64(cfg.FixedDigital.GainDB)
	if cfg.AdaptiveDigital.Enabled {
		totalDB += a.adaptiveGainDB
	}
	g := float32(math.Pow(10, totalDB/20))
	for i := range samples {
		v := samples[i] * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = v
	}
}

func (a *agc2) reset() {
	a.adaptiveGainDB = 0
	a.envelope = 0
	a.initialized = false
}

// voiceDetector is an RMS-level voice activity detector with hysteresis to
// avoid flickering between speech and silence.
type voiceDetector struct {
	inSpeech     bool
	speechCount  int
	silenceCount int
}

const (
	vadSpeechThreshold  = 0.015
	vadSilenceThreshold = 0.008
	vadSpeechFrames     = 3
	vadSilenceFrames    = 30
)

func (v *voiceDetector) detect(samples []float32) bool {
	level := frameRMS(samples)

	if v.inSpeech {
		if level < vadSilenceThreshold {
			v.silenceCount++
			v.speechCount = 0
			if v.silenceCount >= vadSilenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
			}
		} else {
			v.silenceCount = 0
		}
	} else {
		if level >= vadSpeechThreshold {
			v.speechCount++
			v.silenceCount = 0
			if v.speechCount >= vadSpeechFrames {
				v.inSpeech = true
				v.speechCount = 0
			}
		} else {
			v.speechCount = 0
		}
	}

	return v.inSpeech
}

func (v *voiceDetector) reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

func frameRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func framePeak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// rmsDBFS converts an RMS level to the integer dBFS scale used by the stats,
// constrained to [-127, 0] where -127 means muted.
func rmsDBFS(rms float64) int {
	if rms <= 0 {
		return -127
	}
	db := 20 * math.Log10(rms)
	v := int(math.Round(db))
	if v < -127 {
		v = -127
	}
	if v > 0 {
		v = 0
	}
	return v
}
