// Package metrics exposes a processor's aggregate measurements as
// Prometheus metrics. The collector snapshots the stats on every scrape;
// fields the engine has not produced yet are simply not emitted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/audioproc"
)

// Collector adapts an audioproc.Processor to the prometheus.Collector
// interface. Register it with a prometheus.Registerer; each scrape calls
// GetStats once.
type Collector struct {
	processor *audioproc.Processor

	outputRMS         *prometheus.Desc
	voiceDetected     *prometheus.Desc
	echoReturnLoss    *prometheus.Desc
	erle              *prometheus.Desc
	divergentFraction *prometheus.Desc
	residualEcho      *prometheus.Desc
	residualEchoMax   *prometheus.Desc
	delay             *prometheus.Desc
	delayMedian       *prometheus.Desc
	delayStddev       *prometheus.Desc
}

// NewCollector builds a collector for the given processor. The namespace
// prefixes every metric name; pass "" for none.
func NewCollector(p *audioproc.Processor, namespace string) *Collector {
	name := func(s string) string {
		return prometheus.BuildFQName(namespace, "audioproc", s)
	}
	return &Collector{
		processor: p,
		outputRMS: prometheus.NewDesc(name("output_rms_dbfs"),
			"RMS level of the processed capture signal in dBFS, -127 means muted.", nil, nil),
		voiceDetected: prometheus.NewDesc(name("voice_detected"),
			"Whether voice was detected in the last capture frame (1) or not (0).", nil, nil),
		echoReturnLoss: prometheus.NewDesc(name("echo_return_loss_db"),
			"Attenuation between the far-end signal and its echo, in dB.", nil, nil),
		erle: prometheus.NewDesc(name("echo_return_loss_enhancement_db"),
			"Additional attenuation achieved by the echo canceller, in dB.", nil, nil),
		divergentFraction: prometheus.NewDesc(name("divergent_filter_fraction"),
			"Fraction of time the linear echo filter was divergent over the last window.", nil, nil),
		residualEcho: prometheus.NewDesc(name("residual_echo_likelihood"),
			"Likelihood that echo remains after cancellation, in [0, 1].", nil, nil),
		residualEchoMax: prometheus.NewDesc(name("residual_echo_likelihood_recent_max"),
			"Maximum residual echo likelihood over the last window.", nil, nil),
		delay: prometheus.NewDesc(name("stream_delay_ms"),
			"Instantaneous render-to-capture delay estimate, in milliseconds.", nil, nil),
		delayMedian: prometheus.NewDesc(name("stream_delay_median_ms"),
			"Median render-to-capture delay over the last window, in milliseconds.", nil, nil),
		delayStddev: prometheus.NewDesc(name("stream_delay_stddev_ms"),
			"Standard deviation of the render-to-capture delay over the last window.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.outputRMS
	ch <- c.voiceDetected
	ch <- c.echoReturnLoss
	ch <- c.erle
	ch <- c.divergentFraction
	ch <- c.residualEcho
	ch <- c.residualEchoMax
	ch <- c.delay
	ch <- c.delayMedian
	ch <- c.delayStddev
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.processor.GetStats()

	if v := stats.OutputRMSDBFS; v != nil {
		ch <- prometheus.MustNewConstMetric(c.outputRMS, prometheus.GaugeValue, float64(*v))
	}
	if v := stats.VoiceDetected; v != nil {
		val := 0.0
		if *v {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.voiceDetected, prometheus.GaugeValue, val)
	}
	if v := stats.EchoReturnLoss; v != nil {
		ch <- prometheus.MustNewConstMetric(c.echoReturnLoss, prometheus.GaugeValue, *v)
	}
	if v := stats.EchoReturnLossEnhancement; v != nil {
		ch <- prometheus.MustNewConstMetric(c.erle, prometheus.GaugeValue, *v)
	}
	if v := stats.DivergentFilterFraction; v != nil {
		ch <- prometheus.MustNewConstMetric(c.divergentFraction, prometheus.GaugeValue, *v)
	}
	if v := stats.ResidualEchoLikelihood; v != nil {
		ch <- prometheus.MustNewConstMetric(c.residualEcho, prometheus.GaugeValue, *v)
	}
	if v := stats.ResidualEchoLikelihoodRecentMax; v != nil {
		ch <- prometheus.MustNewConstMetric(c.residualEchoMax, prometheus.GaugeValue, *v)
	}
	if v := stats.DelayMS; v != nil {
		ch <- prometheus.MustNewConstMetric(c.delay, prometheus.GaugeValue, float64(*v))
	}
	if v := stats.DelayMedianMS; v != nil {
		ch <- prometheus.MustNewConstMetric(c.delayMedian, prometheus.GaugeValue, float64(*v))
	}
	if v := stats.DelayStandardDeviationMS; v != nil {
		ch <- prometheus.MustNewConstMetric(c.delayStddev, prometheus.GaugeValue, float64(*v))
	}
}
