package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audioproc"
	"github.com/opd-ai/audioproc/config"
)

func TestCollectorRegisters(t *testing.T) {
	p, err := audioproc.New(16000)
	require.NoError(t, err)
	defer p.Close()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(p, "test")))
}

func TestCollectorEmitsNothingOnFreshProcessor(t *testing.T) {
	p, err := audioproc.New(16000)
	require.NoError(t, err)
	defer p.Close()

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(p, "")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families, "no frames processed means no measurements")
}

func TestCollectorEmitsMeasuredStats(t *testing.T) {
	p, err := audioproc.New(16000)
	require.NoError(t, err)
	defer p.Close()

	ns := config.DefaultNoiseSuppression()
	require.NoError(t, p.SetConfig(config.Config{NoiseSuppression: &ns}))

	frame := [][]float32{make([]float32, p.NumSamplesPerChannelPerFrame())}
	require.NoError(t, p.ProcessCaptureFrame(frame))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(p, "")))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			byName[mf.GetName()] = m.GetGauge().GetValue()
		}
	}

	rms, ok := byName["audioproc_output_rms_dbfs"]
	require.True(t, ok, "RMS level is measured after the first frame")
	assert.Equal(t, float64(-127), rms, "silence reports the muted level")

	voice, ok := byName["audioproc_voice_detected"]
	require.True(t, ok, "voice detection is measured while suppression is on")
	assert.Equal(t, float64(0), voice)

	_, ok = byName["audioproc_echo_return_loss_enhancement_db"]
	assert.False(t, ok, "echo stats stay absent while the canceller is off")
}
