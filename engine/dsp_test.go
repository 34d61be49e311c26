package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceRingAbsoluteIndexing(t *testing.T) {
	r := newReferenceRing(8)

	r.write([]float32{1, 2, 3, 4})
	dst := make([]float32, 4)

	r.copySpan(dst, 0)
	assert.Equal(t, []float32{1, 2, 3, 4}, dst)

	// Reads before the first sample and past the write head are silence.
	r.copySpan(dst, -2)
	assert.Equal(t, []float32{0, 0, 1, 2}, dst)
	r.copySpan(dst, 2)
	assert.Equal(t, []float32{3, 4, 0, 0}, dst)
}

func TestReferenceRingEviction(t *testing.T) {
	r := newReferenceRing(4)

	r.write([]float32{1, 2, 3, 4})
	r.write([]float32{5, 6})

	dst := make([]float32, 6)
	r.copySpan(dst, 0)
	// Samples 0 and 1 fell out of the retained span.
	assert.Equal(t, []float32{0, 0, 3, 4, 5, 6}, dst)
}

func TestReferenceRingReset(t *testing.T) {
	r := newReferenceRing(4)
	r.write([]float32{1, 2, 3})
	r.reset()

	dst := make([]float32, 3)
	r.copySpan(dst, 0)
	assert.Equal(t, []float32{0, 0, 0}, dst)
	assert.Equal(t, int64(0), r.written)
}

func TestDCBlockerRemovesOffset(t *testing.T) {
	var f dcBlocker

	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.5 // pure DC
	}
	for frame := 0; frame < 10; frame++ {
		f.process(samples)
	}

	assert.InDelta(t, 0, samples[len(samples)-1], 0.01,
		"DC offset should decay toward zero")
}

func TestDCBlockerPassesAudioBand(t *testing.T) {
	var f dcBlocker

	const rate = 16000
	samples := make([]float32, rate/100)
	var phase float64
	var inRMS, outRMS float64
	for frame := 0; frame < 50; frame++ {
		fillTone(samples, 1000, rate, 0.5, &phase)
		inRMS += frameRMS(samples)
		f.process(samples)
		outRMS += frameRMS(samples)
	}

	assert.InDelta(t, inRMS, outRMS, inRMS*0.05,
		"a 1 kHz tone should pass nearly unattenuated")
}

func TestNLMSCancellerConvergence(t *testing.T) {
	const numTaps = 64
	const frameLen = 160
	c := newNLMSCanceller(numTaps)

	ref := make([]float32, frameLen+numTaps)
	capture := make([]float32, frameLen)

	// Echo path: attenuated copy of the reference, 3 samples late.
	var phase float64
	history := make([]float32, 0, 100*frameLen+numTaps)
	history = append(history, make([]float32, numTaps)...)

	var tailIn, tailOut float64
	for frame := 0; frame < 100; frame++ {
		chunk := make([]float32, frameLen)
		fillTone(chunk, 440, 16000, 0.5, &phase)
		history = append(history, chunk...)

		// Aligned span: ref[numTaps-1+i] is the sample aligned with capture i.
		base := len(history) - frameLen - numTaps
		copy(ref, history[base:base+frameLen+numTaps])

		for i := range capture {
			capture[i] = 0.4 * ref[numTaps-1+i-3]
		}
		in := frameRMS(capture)
		c.cancel(capture, ref, true)
		if frame >= 50 {
			tailIn += in
			tailOut += frameRMS(capture)
		}
	}

	require.Positive(t, tailIn)
	assert.Less(t, tailOut, tailIn/10)
}

func TestNLMSCancellerFreezesOnSilentReference(t *testing.T) {
	c := newNLMSCanceller(16)

	ref := make([]float32, 160+16)
	capture := make([]float32, 160)
	for i := range capture {
		capture[i] = 0.3
	}

	c.cancel(capture, ref, true)

	for _, tap := range c.taps {
		assert.Zero(t, tap, "taps must not adapt against a silent reference")
	}
	assert.InDelta(t, 0.3, capture[80], 1e-6, "signal passes through unchanged")
}

func TestNLMSCancellerAdaptFlag(t *testing.T) {
	c := newNLMSCanceller(8)

	ref := make([]float32, 160+8)
	for i := range ref {
		ref[i] = float32(math.Sin(float64(i) * 0.3))
	}
	capture := make([]float32, 160)
	for i := range capture {
		capture[i] = ref[7+i] * 0.5
	}

	c.cancel(capture, ref, false)
	for _, tap := range c.taps {
		assert.Zero(t, tap)
	}
}

func TestVoiceDetectorHysteresis(t *testing.T) {
	var v voiceDetector

	loud := make([]float32, 160)
	for i := range loud {
		loud[i] = 0.1
	}
	quiet := make([]float32, 160)

	// Below the attack count: still silence.
	assert.False(t, v.detect(loud))
	assert.False(t, v.detect(loud))
	// Third consecutive loud frame trips speech.
	assert.True(t, v.detect(loud))

	// A short dip does not release.
	for i := 0; i < vadSilenceFrames-1; i++ {
		assert.True(t, v.detect(quiet))
	}
	assert.True(t, v.detect(loud))

	// A long enough stretch of silence releases.
	for i := 0; i < vadSilenceFrames-1; i++ {
		assert.True(t, v.detect(quiet))
	}
	assert.False(t, v.detect(quiet))
}

func TestRMSDBFS(t *testing.T) {
	tests := []struct {
		name string
		rms  float64
		want int
	}{
		{name: "silence", rms: 0, want: -127},
		{name: "full scale", rms: 1, want: 0},
		{name: "above full scale clamps", rms: 2, want: 0},
		{name: "half scale", rms: 0.5, want: -6},
		{name: "tiny clamps to muted", rms: 1e-10, want: -127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rmsDBFS(tt.rms))
		})
	}
}

func TestMaxAttenuationOrdering(t *testing.T) {
	low := maxAttenuation(NoiseSuppressionLow)
	moderate := maxAttenuation(NoiseSuppressionModerate)
	high := maxAttenuation(NoiseSuppressionHigh)
	veryHigh := maxAttenuation(NoiseSuppressionVeryHigh)

	assert.Greater(t, low, moderate)
	assert.Greater(t, moderate, high)
	assert.Greater(t, high, veryHigh)
}

func TestMedianAndStddev(t *testing.T) {
	assert.Equal(t, 0, medianInt(nil))
	assert.Equal(t, 0, stddevInt(nil))
	assert.Equal(t, 5, medianInt([]int{5}))
	assert.Equal(t, 3, medianInt([]int{1, 3, 9}))
	assert.Equal(t, 0, stddevInt([]int{7, 7, 7}))
	assert.Equal(t, 2, stddevInt([]int{2, 4, 6, 8})) // sqrt(5) rounds to 2
}
