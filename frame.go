package audioproc

import "fmt"

// checkFrame asserts that every channel buffer carries exactly one 10 ms
// quantum of samples. A mismatch is a caller programming defect (wrong
// buffer size for the configured sample rate), not a runtime condition, so
// it panics instead of returning an error. An empty channel sequence is not
// checked here; the engine reports it as a recoverable error.
func checkFrame(frame [][]float32, samplesPerChannel int) {
	for i, ch := range frame {
		if len(ch) != samplesPerChannel {
			panic(fmt.Sprintf(
				"audioproc: channel %d carries %d samples, the configured sample rate requires exactly %d per 10 ms frame",
				i, len(ch), samplesPerChannel))
		}
	}
}

// Deinterleave splits an interleaved sample buffer into per-channel buffers
// shaped for the frame-processing calls. dst must hold one buffer per
// channel, each with len(src)/len(dst) samples.
func Deinterleave(src []float32, dst [][]float32) {
	channels := len(dst)
	if channels == 0 {
		return
	}
	samples := len(src) / channels
	for c, ch := range dst {
		if len(ch) != samples {
			panic(fmt.Sprintf(
				"audioproc: deinterleave destination channel %d has %d samples, expected %d",
				c, len(ch), samples))
		}
		for i := 0; i < samples; i++ {
			ch[i] = src[i*channels+c]
		}
	}
}

// Interleave packs per-channel buffers back into a single interleaved
// buffer. dst must hold len(src) * samples-per-channel entries.
func Interleave(src [][]float32, dst []float32) {
	channels := len(src)
	if channels == 0 {
		return
	}
	samples := len(src[0])
	if len(dst) != channels*samples {
		panic(fmt.Sprintf(
			"audioproc: interleave destination has %d samples, expected %d",
			len(dst), channels*samples))
	}
	for c, ch := range src {
		if len(ch) != samples {
			panic(fmt.Sprintf(
				"audioproc: interleave source channel %d has %d samples, expected %d",
				c, len(ch), samples))
		}
		for i := 0; i < samples; i++ {
			dst[i*channels+c] = ch[i]
		}
	}
}
