// Package audioproc implements a control facade for a real-time audio
// processing engine: acoustic echo cancellation (AEC), noise suppression
// (NS), automatic gain control (AGC) and voice activity detection (VAD)
// over fixed 10 ms float32 frames.
//
// The facade owns the engine's lifetime, enforces the frame invariant
// (every channel buffer carries exactly sampleRateHz/100 samples),
// translates the hierarchical configuration tree into the engine's flat
// parameter set, caches the stream-delay runtime hint, and exposes the
// engine's aggregate measurements as an optional-field snapshot.
//
// # Getting Started
//
// Create a processor for your sample rate, enable the submodules you need
// through a configuration tree, and drive the two frame paths:
//
//	processor, err := audioproc.New(48000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer processor.Close()
//
//	ec := config.DefaultEchoCanceller()
//	ns := config.DefaultNoiseSuppression()
//	if err := processor.SetConfig(config.Config{
//	    EchoCanceller:    &ec,
//	    NoiseSuppression: &ns,
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	n := processor.NumSamplesPerChannelPerFrame() // 480 at 48 kHz
//	capture := [][]float32{make([]float32, n)}
//	render := [][]float32{make([]float32, n)}
//
//	for pumping() {
//	    fillFromSpeaker(render[0])
//	    _ = processor.ProcessRenderFrame(render)
//
//	    fillFromMicrophone(capture[0])
//	    if err := processor.ProcessCaptureFrame(capture); err != nil {
//	        log.Print(err)
//	    }
//	    // capture[0] now holds the echo-free, denoised, gain-adjusted frame
//	}
//
// # Core Types
//
//   - [Processor]: the facade; owns the engine, safe for concurrent use
//   - [config.Config]: hierarchical configuration where a present block
//     enables a feature and a nil block disables it
//   - [Stats]: optional-field snapshot of the engine's measurements
//   - [aec3.Config]: the advanced echo canceller's full parameter tree,
//     for NewWithAEC3Config
//
// # Concurrency
//
// A Processor may be shared across goroutines: one driving the capture
// path, one driving the render path, and another issuing configuration
// calls, hints and stats reads. Configuration calls serialize against both
// frame paths. Frame calls perform no heap allocation on success; all
// buffers are caller-supplied and reused.
//
// # Errors and invariants
//
// Engine failures are reported as errors wrapping a closed set of
// sentinels (ErrBadNumberChannels, ErrStreamParameterNotSet, ...) matched
// with errors.Is. A channel buffer whose length does not equal the 10 ms
// quantum is a caller defect and panics instead.
package audioproc
