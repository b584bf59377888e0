// Package metrics exports pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lehigh-university-libraries/imagepicker/internal/preview"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// Collector implements preview.Observer on top of Prometheus counters.
type Collector struct {
	rejections  *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	completions *prometheus.CounterVec
	submissions *prometheus.CounterVec
}

// New registers the pipeline counters with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepicker",
			Name:      "rejections_total",
			Help:      "Image sources rejected, by error kind.",
		}, []string{"kind"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepicker",
			Name:      "preview_attempts_total",
			Help:      "Preview attempts started, by source kind.",
		}, []string{"source"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepicker",
			Name:      "preview_completions_total",
			Help:      "Preview attempts finished, by outcome.",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepicker",
			Name:      "submissions_total",
			Help:      "Forms submitted, by source kind.",
		}, []string{"source"}),
	}
	reg.MustRegister(c.rejections, c.attempts, c.completions, c.submissions)
	return c
}

func (c *Collector) Rejected(kind source.ErrorKind) {
	c.rejections.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) AttemptStarted(kind source.Kind) {
	c.attempts.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) AttemptFinished(status preview.Status, stale bool) {
	outcome := status.String()
	if stale {
		outcome = "stale"
	}
	c.completions.WithLabelValues(outcome).Inc()
}

func (c *Collector) Submitted(kind source.Kind) {
	c.submissions.WithLabelValues(kind.String()).Inc()
}
