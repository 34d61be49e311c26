package audioproc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audioproc/aec3"
	"github.com/opd-ai/audioproc/config"
	"github.com/opd-ai/audioproc/engine"
)

// Processor owns an audio processing engine and exposes its capture and
// render frame entry points, configuration, runtime hints and statistics.
//
// A single Processor is safe to share across goroutines: the intended usage
// is one goroutine driving ProcessCaptureFrame, another driving
// ProcessRenderFrame or AnalyzeRenderFrame, and a third occasionally calling
// SetConfig, Reinitialize, the hint setters or GetStats. Configuration calls
// serialize against both frame paths; the two frame paths only serialize
// against calls on their own side.
type Processor struct {
	id              string
	sampleRate      int
	samplesPerFrame int

	// forceFullAEC pins the echo canceller to the full variant when the
	// engine was seeded with a raw AEC parameter tree, since that tree only
	// applies to the full implementation.
	forceFullAEC bool

	// Lock order: captureMu before renderMu, always.
	captureMu sync.Mutex
	renderMu  sync.Mutex

	engine *engine.Engine
	closed bool

	// streamDelayMS caches the delay prescribed by the last SetConfig. It is
	// written only by SetConfig and read once per capture frame; nil means
	// the configuration leaves delay estimation to the engine. The pointer
	// swap keeps the set/unset distinction atomic against concurrent frames.
	streamDelayMS atomic.Pointer[int]
}

// New constructs a processor with engine defaults applied: every submodule
// disabled until a SetConfig call enables it. The sample rate is fixed for
// the processor's lifetime and must be positive and divisible by 100.
func New(sampleRateHz int) (*Processor, error) {
	return newProcessor(sampleRateHz, nil)
}

// NewWithAEC3Config constructs a processor whose echo canceller is seeded
// with an externally prepared advanced parameter tree. The tree must have
// been taken through aec3.Config.Validate; an unvalidated tree is rejected
// with ErrBadParameter.
//
// Seeding pins the echo canceller to the full variant: later SetConfig calls
// that request the mobile variant keep their other echo settings but the
// mobile implementation is not activated.
func NewWithAEC3Config(sampleRateHz int, aec3Config aec3.Config) (*Processor, error) {
	p, err := newProcessor(sampleRateHz, &aec3Config)
	if err != nil {
		return nil, err
	}
	p.forceFullAEC = true
	return p, nil
}

func newProcessor(sampleRateHz int, aec3Config *aec3.Config) (*Processor, error) {
	eng, code := engine.New(engine.InitConfig{
		SampleRateHz: sampleRateHz,
		AEC3:         aec3Config,
	})
	if err := translateStatus(code); err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}
	if eng == nil {
		// A success status with no engine would leak an unusable session.
		return nil, fmt.Errorf("failed to create processor: %w", ErrNullPointer)
	}

	p := &Processor{
		id:              uuid.New().String(),
		sampleRate:      sampleRateHz,
		samplesPerFrame: eng.SamplesPerFrame(),
		engine:          eng,
	}

	logrus.WithFields(logrus.Fields{
		"function":          "New",
		"processor_id":      p.id,
		"sample_rate_hz":    sampleRateHz,
		"samples_per_frame": p.samplesPerFrame,
		"aec3_seeded":       aec3Config != nil,
	}).Info("Processor created")

	return p, nil
}

// NumSamplesPerChannelPerFrame returns the per-channel sample count every
// frame must carry: sampleRateHz / 100.
func (p *Processor) NumSamplesPerChannelPerFrame() int {
	return p.samplesPerFrame
}

// ProcessCaptureFrame processes one 10 ms near-end frame in place: echo is
// removed, noise suppressed and gain applied per the active configuration.
// Every channel buffer must carry exactly NumSamplesPerChannelPerFrame
// samples; a wrong length panics. Zero channels returns
// ErrBadNumberChannels.
func (p *Processor) ProcessCaptureFrame(frame [][]float32) error {
	checkFrame(frame, p.samplesPerFrame)

	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	if p.closed {
		return fmt.Errorf("process capture frame: %w", ErrNullPointer)
	}

	// Some engine paths only honor a per-call delay hint, so the cached
	// delay is injected before every capture call.
	if delay := p.streamDelayMS.Load(); delay != nil {
		p.engine.SetStreamDelayMS(*delay)
	}

	return translateStatus(p.engine.ProcessCaptureFrame(frame))
}

// ProcessRenderFrame feeds one 10 ms far-end frame to the engine, which may
// modify it in place. The same frame shape rules as ProcessCaptureFrame
// apply.
func (p *Processor) ProcessRenderFrame(frame [][]float32) error {
	checkFrame(frame, p.samplesPerFrame)

	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return fmt.Errorf("process render frame: %w", ErrNullPointer)
	}

	return translateStatus(p.engine.ProcessRenderFrame(frame))
}

// AnalyzeRenderFrame lets the engine observe one 10 ms far-end frame without
// modifying it.
func (p *Processor) AnalyzeRenderFrame(frame [][]float32) error {
	checkFrame(frame, p.samplesPerFrame)

	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return fmt.Errorf("analyze render frame: %w", ErrNullPointer)
	}

	return translateStatus(p.engine.AnalyzeRenderFrame(frame))
}

// SetConfig applies a new configuration tree. Out-of-range values are
// clamped by the engine, never rejected; the only error condition is a tree
// with conflicting variant arms. The stream delay prescribed by the tree
// replaces the cached value, including clearing it when the new tree
// specifies none.
func (p *Processor) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("set config: %w", err)
	}

	flat, delay := config.Translate(cfg)
	if p.forceFullAEC && flat.EchoCanceller.Enabled {
		flat.EchoCanceller.MobileMode = false
		flat.EchoCanceller.EnforceHighPassFiltering = true
	}

	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return fmt.Errorf("set config: %w", ErrNullPointer)
	}

	p.engine.ApplyConfig(flat)
	p.streamDelayMS.Store(delay)

	logrus.WithFields(logrus.Fields{
		"function":     "Processor.SetConfig",
		"processor_id": p.id,
		"delay_set":    delay != nil,
	}).Debug("Configuration applied")
	return nil
}

// Reinitialize discards all engine-internal adaptive state, such as echo
// path estimates and gain trajectories, while keeping the currently applied
// configuration and the cached stream delay.
func (p *Processor) Reinitialize() {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return
	}

	p.engine.Initialize()
	logrus.WithFields(logrus.Fields{
		"function":     "Processor.Reinitialize",
		"processor_id": p.id,
	}).Info("Processor reinitialized")
}

// SetOutputWillBeMuted hints that the processed capture output is or will be
// muted. Gain adaptation pauses while the hint is active.
func (p *Processor) SetOutputWillBeMuted(muted bool) {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return
	}
	p.engine.SetOutputWillBeMuted(muted)
}

// SetStreamKeyPressed hints that upcoming capture frames contain key-press
// transients. Echo-path adaptation pauses while the hint is active.
func (p *Processor) SetStreamKeyPressed(pressed bool) {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return
	}
	p.engine.SetStreamKeyPressed(pressed)
}

// GetStats snapshots the engine's aggregate measurements. Fields stay nil
// until their owning submodule has produced a measurement.
func (p *Processor) GetStats() Stats {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	if p.closed {
		return Stats{}
	}
	return translateStats(p.engine.GetStats())
}

// Close releases the engine. Close is idempotent; frame calls after Close
// return ErrNullPointer.
func (p *Processor) Close() {
	p.captureMu.Lock()
	defer p.captureMu.Unlock()
	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if p.closed {
		return
	}

	p.engine.Close()
	p.closed = true
	logrus.WithFields(logrus.Fields{
		"function":     "Processor.Close",
		"processor_id": p.id,
	}).Info("Processor closed")
}
