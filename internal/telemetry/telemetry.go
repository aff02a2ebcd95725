// Package telemetry keeps per-run Prometheus metrics and optionally pushes them
// to a Pushgateway when the CLI exits.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/3cpo-dev/rdeploy/pkg/api"
)

const namespace = "rdeploy"

// Collector owns a private registry so a run never mixes with global state.
type Collector struct {
	reg *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.CounterVec
	runs          *prometheus.CounterVec
	changedFiles  prometheus.Gauge
	lastRun       prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Wall time of each workflow stage.",
				Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			}, []string{"stage"},
		),
		stageResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "results_total",
				Help:      "Finished stages by outcome.",
			}, []string{"stage", "result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished workflow runs by outcome.",
			}, []string{"workflow", "result"},
		),
		changedFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "changed_files",
			Help:      "Files reported changed by the last detection run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last workflow finished.",
		}),
	}
	c.reg.MustRegister(c.stageDuration, c.stageResults, c.runs, c.changedFiles, c.lastRun)
	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveStage records a finished stage.
func (c *Collector) ObserveStage(stage api.Stage, d time.Duration, err error) {
	c.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	c.stageResults.WithLabelValues(string(stage), result(err)).Inc()
}

// ObserveRun records a finished workflow.
func (c *Collector) ObserveRun(w api.Workflow, finished time.Time, err error) {
	c.runs.WithLabelValues(string(w), result(err)).Inc()
	c.lastRun.Set(float64(finished.Unix()))
}

func (c *Collector) SetChangedFiles(n int) { c.changedFiles.Set(float64(n)) }

// Push sends every collected metric to the Pushgateway at url under job,
// grouped by host.
func (c *Collector) Push(ctx context.Context, url, job, host string) error {
	p := push.New(url, job).Gatherer(c.reg)
	if host != "" {
		p = p.Grouping("host", host)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
