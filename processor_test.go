package audioproc

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/opd-ai/audioproc/aec3"
	"github.com/opd-ai/audioproc/config"
)

func newTestProcessor(t *testing.T, rate int) *Processor {
	t.Helper()
	p, err := New(rate)
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(p.Close)
	return p
}

func makeFrame(p *Processor, channels int) [][]float32 {
	frame := make([][]float32, channels)
	for i := range frame {
		frame[i] = make([]float32, p.NumSamplesPerChannelPerFrame())
	}
	return frame
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		rate        int
		wantErr     error
		wantSamples int
	}{
		{name: "48kHz", rate: 48000, wantSamples: 480},
		{name: "16kHz", rate: 16000, wantSamples: 160},
		{name: "8kHz", rate: 8000, wantSamples: 80},
		{name: "zero", rate: 0, wantErr: ErrBadSampleRate},
		{name: "negative", rate: -8000, wantErr: ErrBadSampleRate},
		{name: "not divisible by 100", rate: 44101, wantErr: ErrBadSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.rate)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.wantSamples, p.NumSamplesPerChannelPerFrame())
		})
	}
}

func TestNewWithAEC3Config(t *testing.T) {
	cfg := aec3.Default()
	cfg.Suppressor.DominantNearendDetection.ENRThreshold = 0.25
	require.True(t, cfg.Validate())

	p, err := NewWithAEC3Config(48000, cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 480, p.NumSamplesPerChannelPerFrame())
}

func TestNewWithAEC3ConfigRejectsUnvalidatedTree(t *testing.T) {
	cfg := aec3.Default()
	cfg.Filter.Refined.LengthBlocks = 999 // needs clamping

	p, err := NewWithAEC3Config(48000, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadParameter)
	assert.Nil(t, p)
}

func TestAEC3SeedingForcesFullCanceller(t *testing.T) {
	cfg := aec3.Default()
	require.True(t, cfg.Validate())
	p, err := NewWithAEC3Config(16000, cfg)
	require.NoError(t, err)
	defer p.Close()

	// Requesting the mobile variant is overridden; the full canceller does
	// not require the stream delay, so capture must succeed even though the
	// mobile variant would demand it per call.
	require.NoError(t, p.SetConfig(config.Config{
		EchoCanceller: &config.EchoCanceller{
			Mobile: &config.MobileEchoCanceller{StreamDelayMS: 20},
		},
	}))
	assert.NoError(t, p.ProcessCaptureFrame(makeFrame(p, 1)))
}

func TestFrameLengthMismatchPanics(t *testing.T) {
	p := newTestProcessor(t, 48000)

	bad := [][]float32{make([]float32, 100)}
	assert.Panics(t, func() { _ = p.ProcessCaptureFrame(bad) })
	assert.Panics(t, func() { _ = p.ProcessRenderFrame(bad) })
	assert.Panics(t, func() { _ = p.AnalyzeRenderFrame(bad) })
}

func TestZeroChannelsIsRecoverable(t *testing.T) {
	p := newTestProcessor(t, 48000)

	err := p.ProcessCaptureFrame([][]float32{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadNumberChannels)

	err = p.ProcessRenderFrame(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadNumberChannels)
}

func TestAnalyzeRenderFrameNeverMutates(t *testing.T) {
	p := newTestProcessor(t, 16000)

	frame := makeFrame(p, 2)
	var phase float64
	fillTone(frame[0], 440, 16000, 0.5, &phase)
	fillTone(frame[1], 880, 16000, 0.25, &phase)

	before := [][]float32{
		append([]float32(nil), frame[0]...),
		append([]float32(nil), frame[1]...),
	}

	require.NoError(t, p.AnalyzeRenderFrame(frame))
	assert.Equal(t, before[0], frame[0])
	assert.Equal(t, before[1], frame[1])
}

func TestGetStatsOnFreshSession(t *testing.T) {
	p := newTestProcessor(t, 48000)

	stats := p.GetStats()
	assert.Nil(t, stats.OutputRMSDBFS)
	assert.Nil(t, stats.VoiceDetected)
	assert.Nil(t, stats.EchoReturnLoss)
	assert.Nil(t, stats.EchoReturnLossEnhancement)
	assert.Nil(t, stats.DivergentFilterFraction)
	assert.Nil(t, stats.DelayMedianMS)
	assert.Nil(t, stats.DelayStandardDeviationMS)
	assert.Nil(t, stats.ResidualEchoLikelihood)
	assert.Nil(t, stats.ResidualEchoLikelihoodRecentMax)
	assert.Nil(t, stats.DelayMS)
}

func TestERLEBecomesSetUnderEcho(t *testing.T) {
	const rate = 16000
	p := newTestProcessor(t, rate)

	ec := config.DefaultEchoCanceller()
	require.NoError(t, p.SetConfig(config.Config{EchoCanceller: &ec}))

	n := p.NumSamplesPerChannelPerFrame()
	render := [][]float32{make([]float32, n)}
	capture := [][]float32{make([]float32, n)}
	var renderPhase, nearPhase float64

	for f := 0; f < 60; f++ {
		fillTone(render[0], 440, rate, 0.5, &renderPhase)
		require.NoError(t, p.ProcessRenderFrame(render))

		// Near end: echo plus an independent signal.
		fillTone(capture[0], 1330, rate, 0.1, &nearPhase)
		for i := range capture[0] {
			capture[0][i] += 0.2 * render[0][i]
		}
		require.NoError(t, p.ProcessCaptureFrame(capture))
	}

	stats := p.GetStats()
	require.NotNil(t, stats.EchoReturnLossEnhancement)
	assert.GreaterOrEqual(t, *stats.EchoReturnLossEnhancement, 0.0)
}

func TestSetConfigUpdatesDelayCache(t *testing.T) {
	p := newTestProcessor(t, 48000)

	delay := uint16(60)
	require.NoError(t, p.SetConfig(config.Config{
		EchoCanceller: &config.EchoCanceller{
			Full: &config.FullEchoCanceller{StreamDelayMS: &delay},
		},
	}))
	require.NotNil(t, p.streamDelayMS.Load())
	assert.Equal(t, 60, *p.streamDelayMS.Load())

	// A config without a delay clears the cache back to unset.
	ec := config.DefaultEchoCanceller()
	require.NoError(t, p.SetConfig(config.Config{EchoCanceller: &ec}))
	assert.Nil(t, p.streamDelayMS.Load())
}

func TestSetConfigRejectsConflictingVariants(t *testing.T) {
	p := newTestProcessor(t, 48000)

	err := p.SetConfig(config.Config{
		EchoCanceller: &config.EchoCanceller{
			Mobile: &config.MobileEchoCanceller{},
			Full:   &config.FullEchoCanceller{},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConflictingVariants)
}

func TestMobileCancellerUsesCachedDelay(t *testing.T) {
	p := newTestProcessor(t, 16000)

	// The mobile variant demands a per-call delay; the facade injects the
	// cached value before every capture call, so processing succeeds.
	require.NoError(t, p.SetConfig(config.Config{
		EchoCanceller: &config.EchoCanceller{
			Mobile: &config.MobileEchoCanceller{StreamDelayMS: 20},
		},
	}))
	assert.NoError(t, p.ProcessCaptureFrame(makeFrame(p, 1)))
}

func TestReinitializeKeepsConfigAndDelay(t *testing.T) {
	p := newTestProcessor(t, 16000)

	require.NoError(t, p.SetConfig(config.Config{
		EchoCanceller: &config.EchoCanceller{
			Mobile: &config.MobileEchoCanceller{StreamDelayMS: 40},
		},
	}))
	require.NoError(t, p.ProcessCaptureFrame(makeFrame(p, 1)))

	p.Reinitialize()
	assert.Nil(t, p.GetStats().EchoReturnLossEnhancement,
		"aggregated stats are discarded on reinitialize")

	// The mobile canceller still has its mandatory delay from the cache, so
	// capture keeps working after the adaptive state is discarded.
	assert.NoError(t, p.ProcessCaptureFrame(makeFrame(p, 1)))
}

func TestHintsAreForwarded(t *testing.T) {
	p := newTestProcessor(t, 16000)

	p.SetOutputWillBeMuted(true)
	p.SetStreamKeyPressed(true)
	assert.NoError(t, p.ProcessCaptureFrame(makeFrame(p, 1)))

	p.SetOutputWillBeMuted(false)
	p.SetStreamKeyPressed(false)
	assert.NoError(t, p.ProcessCaptureFrame(makeFrame(p, 1)))
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	p, err := New(16000)
	require.NoError(t, err)

	p.Close()
	p.Close()

	err = p.ProcessCaptureFrame(makeFrame(p, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNullPointer)

	err = p.ProcessRenderFrame(makeFrame(p, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNullPointer)

	assert.Equal(t, Stats{}, p.GetStats())
	assert.ErrorIs(t, p.SetConfig(config.Config{}), ErrNullPointer)
	p.Reinitialize() // must not panic
}

func TestConcurrentStress(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newTestProcessor(t, 48000)
	ec := config.DefaultEchoCanceller()
	ns := config.DefaultNoiseSuppression()
	require.NoError(t, p.SetConfig(config.Config{
		EchoCanceller:    &ec,
		NoiseSuppression: &ns,
	}))

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		frame := makeFrame(p, 1)
		for i := 0; i < 1000; i++ {
			if err := p.ProcessCaptureFrame(frame); err != nil {
				t.Errorf("capture frame %d: %v", i, err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		frame := makeFrame(p, 1)
		for i := 0; i < 1000; i++ {
			if err := p.ProcessRenderFrame(frame); err != nil {
				t.Errorf("render frame %d: %v", i, err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			cfg := config.Config{EchoCanceller: &config.EchoCanceller{}}
			if i%2 == 0 {
				delay := uint16(i * 10)
				cfg.EchoCanceller.Full = &config.FullEchoCanceller{StreamDelayMS: &delay}
			} else {
				cfg.EchoCanceller.Full = &config.FullEchoCanceller{}
			}
			if err := p.SetConfig(cfg); err != nil {
				t.Errorf("set config %d: %v", i, err)
				return
			}
			_ = p.GetStats()
		}
	}()

	wg.Wait()

	// The delay cache is either unset or holds an uncorrupted value written
	// by one of the SetConfig calls.
	if d := p.streamDelayMS.Load(); d != nil {
		assert.GreaterOrEqual(t, *d, 0)
		assert.LessOrEqual(t, *d, 190)
		assert.Zero(t, *d%10)
	}
}

// fillTone writes a sine tone into samples, advancing phase across calls.
func fillTone(samples []float32, freq float64, rate int, amp float64, phase *float64) {
	step := 2 * math.Pi * freq / float64(rate)
	for i := range samples {
		samples[i] = float32(amp * math.Sin(*phase))
		*phase += step
	}
}

// TestEchoCancellationEndToEnd plays a burst-modulated tone through the
// render path and feeds a delayed, attenuated copy as capture. With a delay
// hint matching the true echo path the output energy must drop well below
// the input energy; with a deliberately wrong hint the canceller must do
// visibly worse. Bursts keep the reference non-stationary so a mismatched
// hint cannot be compensated by exploiting tone periodicity.
func TestEchoCancellationEndToEnd(t *testing.T) {
	const (
		rate        = 48000
		echoDelayMS = 200
		frames      = 200
	)

	run := func(hintMS uint16) (inEnergy, outEnergy float64) {
		p := newTestProcessor(t, rate)
		require.NoError(t, p.SetConfig(config.Config{
			EchoCanceller: &config.EchoCanceller{
				Mobile: &config.MobileEchoCanceller{StreamDelayMS: hintMS},
			},
		}))

		n := p.NumSamplesPerChannelPerFrame()
		delaySamples := echoDelayMS * rate / 1000
		history := make([]float32, 0, frames*n)

		render := [][]float32{make([]float32, n)}
		capture := [][]float32{make([]float32, n)}
		var phase float64

		for f := 0; f < frames; f++ {
			// 30 ms tone bursts in a 70 ms cycle. The cycle does not divide
			// the echo delay, so with a wrong hint the delayed echo envelope
			// never lines up with the live reference.
			if f%7 < 3 {
				fillTone(render[0], 440, rate, 0.5, &phase)
			} else {
				for i := range render[0] {
					render[0][i] = 0
				}
			}
			require.NoError(t, p.ProcessRenderFrame(render))
			history = append(history, render[0]...)

			// Capture hears the echo of what played echoDelayMS ago.
			base := f*n - delaySamples
			for i := range capture[0] {
				idx := base + i
				if idx >= 0 {
					capture[0][i] = 0.8 * history[idx]
				} else {
					capture[0][i] = 0
				}
			}

			for _, s := range capture[0] {
				inEnergy += float64(s) * float64(s)
			}
			require.NoError(t, p.ProcessCaptureFrame(capture))
			for _, s := range capture[0] {
				outEnergy += float64(s) * float64(s)
			}
		}
		return inEnergy, outEnergy
	}

	inMatched, outMatched := run(echoDelayMS)
	require.Positive(t, inMatched)
	assert.Less(t, outMatched, inMatched/10,
		"a matching delay hint must cancel at least 10x of the echo energy")

	_, outMismatched := run(0)
	assert.Greater(t, outMismatched, outMatched,
		"a mismatched delay hint must cancel visibly less")
}
