package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFullDocument(t *testing.T) {
	doc := `
pipeline:
  maximum_internal_processing_rate: 32000
  multi_channel_capture: true
  capture_downmix_method: use_first_channel
echo_canceller:
  full:
    stream_delay_ms: 150
noise_suppression:
  level: high
  analyze_linear_aec_output: true
gain_controller:
  gain_controller2:
    adaptive_digital:
      headroom_db: 5.0
      max_gain_db: 50.0
      initial_gain_db: 15.0
      max_gain_change_db_per_second: 6.0
      max_output_noise_level_dbfs: -50.0
    fixed_digital:
      gain_db: 3.0
`
	cfg, diags, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.Equal(t, Rate32000Hz, cfg.Pipeline.MaximumInternalProcessingRate)
	assert.True(t, cfg.Pipeline.MultiChannelCapture)
	assert.Equal(t, DownmixUseFirstChannel, cfg.Pipeline.CaptureDownmixMethod)

	require.NotNil(t, cfg.EchoCanceller)
	require.NotNil(t, cfg.EchoCanceller.Full)
	assert.Nil(t, cfg.EchoCanceller.Mobile)
	require.NotNil(t, cfg.EchoCanceller.Full.StreamDelayMS)
	assert.Equal(t, uint16(150), *cfg.EchoCanceller.Full.StreamDelayMS)

	require.NotNil(t, cfg.NoiseSuppression)
	assert.Equal(t, NoiseSuppressionHigh, cfg.NoiseSuppression.Level)
	assert.True(t, cfg.NoiseSuppression.AnalyzeLinearAECOutput)

	require.NotNil(t, cfg.GainController)
	require.NotNil(t, cfg.GainController.GainController2)
	require.NotNil(t, cfg.GainController.GainController2.AdaptiveDigital)
	assert.InDelta(t, 3.0, cfg.GainController.GainController2.FixedDigital.GainDB, 1e-6)
}

func TestLoadEmptyDocument(t *testing.T) {
	cfg, diags, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadReportsMisspelledFields(t *testing.T) {
	doc := `
noise_supression:
  level: high
`
	cfg, diags, err := Load(strings.NewReader(doc))
	require.NoError(t, err, "a misspelled submodule name is a diagnostic, not a load failure")
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "noise_supression")
	assert.Nil(t, cfg.NoiseSuppression, "the misspelled submodule stays disabled")
}

func TestLoadKeepsKnownFieldsAlongsideUnknownOnes(t *testing.T) {
	doc := `
noise_suppression:
  level: high
future_new_submodule:
  some_knob: 3
`
	cfg, diags, err := Load(strings.NewReader(doc))
	require.NoError(t, err, "documents written by newer versions must still load")
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "future_new_submodule")

	require.NotNil(t, cfg.NoiseSuppression)
	assert.Equal(t, NoiseSuppressionHigh, cfg.NoiseSuppression.Level)
}

func TestLoadStillFailsOnMalformedValues(t *testing.T) {
	doc := `
noise_suppression:
  analyze_linear_aec_output: "not a bool"
`
	_, _, err := Load(strings.NewReader(doc))
	require.Error(t, err, "type mismatches are real failures, not diagnostics")
}

func TestLoadRejectsConflictingVariants(t *testing.T) {
	doc := `
echo_canceller:
  mobile:
    stream_delay_ms: 20
  full: {}
`
	_, _, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingVariants)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	delay := uint16(80)
	ns := DefaultNoiseSuppression()
	hpf := DefaultHighPassFilter()
	gc1 := DefaultGainController1()
	original := Config{
		Pipeline: Pipeline{
			MaximumInternalProcessingRate: Rate48000Hz,
			MultiChannelRender:            true,
		},
		HighPassFilter: &hpf,
		EchoCanceller: &EchoCanceller{
			Full: &FullEchoCanceller{StreamDelayMS: &delay},
		},
		NoiseSuppression: &NoiseSuppression{
			Level:                  ns.Level,
			AnalyzeLinearAECOutput: true,
		},
		GainController: &GainController{GainController1: &gc1},
	}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, original))

	loaded, diags, err := Load(&buf)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, original, loaded)
}

func TestSaveOmitsDisabledSubmodules(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, Config{}))

	out := buf.String()
	assert.NotContains(t, out, "echo_canceller")
	assert.NotContains(t, out, "noise_suppression")
	assert.NotContains(t, out, "gain_controller")
	assert.NotContains(t, out, "capture_amplifier")
}

func TestSaveRejectsInvalidTree(t *testing.T) {
	bad := Config{EchoCanceller: &EchoCanceller{
		Mobile: &MobileEchoCanceller{},
		Full:   &FullEchoCanceller{},
	}}

	var buf bytes.Buffer
	err := Save(&buf, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingVariants)
}

func TestDefaultDocumentIsStable(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, Save(&first, Default()))
	require.NoError(t, Save(&second, Default()))

	assert.Equal(t, first.Bytes(), second.Bytes(),
		"the default tree must serialize byte-identically across runs")

	out := first.String()
	assert.Contains(t, out, "level: moderate")
	assert.Contains(t, out, "target_level_dbfs: 3")
	assert.Contains(t, out, "compression_gain_db: 9")
	assert.Contains(t, out, "enable_limiter: true")
	assert.Contains(t, out, "full: {}", "echo canceller defaults to full with delay unset")
	assert.NotContains(t, out, "stream_delay_ms")
}

func TestLoadSaveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processor.yaml")

	ec := DefaultEchoCanceller()
	cfg := Config{EchoCanceller: &ec}
	require.NoError(t, SaveFile(path, cfg))

	loaded, diags, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, cfg, loaded)

	_, _, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
