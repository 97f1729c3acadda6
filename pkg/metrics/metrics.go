// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-aper.
//
// go-aper is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics records per-run merge metrics and writes them in the
// Prometheus text format for the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeremyhahn/go-aper/pkg/aper"
)

const namespace = "aper"

// Run status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder holds the metrics of one aper process on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	RecordsTotal       *prometheus.GaugeVec
	LiveRecords        *prometheus.GaugeVec
	MergedRecordsTotal *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	LastSuccess        *prometheus.GaugeVec
	RunDuration        *prometheus.HistogramVec
}

// New creates a Recorder with its metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		RecordsTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Number of records held in memory after the last merge, cleared ones included",
		}, []string{"list"}),

		LiveRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_records",
			Help:      "Number of records written to the database by the last merge",
		}, []string{"list"}),

		MergedRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_records_total",
			Help:      "Submitted records merged, by outcome",
		}, []string{"list", "outcome"}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Merge runs, by status",
		}, []string{"list", "status"}),

		LastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful merge",
		}, []string{"list"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of merge runs in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"list"}),
	}
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveSuccess records a completed run. stats counts the batch records;
// total and live describe the store that was written.
func (r *Recorder) ObserveSuccess(list aper.List, stats aper.MergeStats, total, live int, elapsed time.Duration, now time.Time) {
	l := list.String()

	r.RecordsTotal.WithLabelValues(l).Set(float64(total))
	r.LiveRecords.WithLabelValues(l).Set(float64(live))

	outcomes := map[aper.Outcome]int{
		aper.OutcomeInserted:    stats.Inserted,
		aper.OutcomeUpdated:     stats.Updated,
		aper.OutcomeReactivated: stats.Reactivated,
		aper.OutcomeCleared:     stats.Cleared,
		aper.OutcomeUnchanged:   stats.Unchanged,
	}
	for outcome, n := range outcomes {
		r.MergedRecordsTotal.WithLabelValues(l, outcome.String()).Add(float64(n))
	}

	r.RunsTotal.WithLabelValues(l, StatusSuccess).Inc()
	r.LastSuccess.WithLabelValues(l).Set(float64(now.Unix()))
	r.RunDuration.WithLabelValues(l).Observe(elapsed.Seconds())
}

// ObserveFailure records a failed run.
func (r *Recorder) ObserveFailure(list aper.List, elapsed time.Duration) {
	r.RunsTotal.WithLabelValues(list.String(), StatusFailure).Inc()
	r.RunDuration.WithLabelValues(list.String()).Observe(elapsed.Seconds())
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
