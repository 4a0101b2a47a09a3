// Package metrics records per-run Prometheus metrics for the migration and
// backup commands.
//
// Nothing is scraped. Each Recorder owns a private registry which is written
// after every run in the text exposition format for the node_exporter
// textfile collector. The schedule command keeps one Recorder for the life of
// the process so counters accumulate across runs:
//
//	rec := metrics.NewRecorder()
//	timer := metrics.NewTimer("extract")
//	ds, err := src.Extract(ctx, query)
//	rec.ObserveTimer(timer)
//	...
//	if err := rec.WriteTextfile("/var/lib/node_exporter/snowlift.prom"); err != nil {
//		log.Warn("failed to write metrics", zap.Error(err))
//	}
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snowlift"

// Recorder collects the metrics of one run
type Recorder struct {
	registry *prometheus.Registry
	// serializes textfile writes from concurrent scheduled jobs
	writeMu sync.Mutex

	stageDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
	rowsExtracted prometheus.Gauge
	rowsLoaded    prometheus.Gauge
	stagedBytes   prometheus.Gauge
	backupBytes   prometheus.Gauge
	memoryRSS     prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"stage"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Number of runs by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"command", "outcome"},
		),
		rowsExtracted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_extracted",
			Help:      "Rows returned by the extraction query",
		}),
		rowsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_loaded",
			Help:      "Rows reported loaded by COPY INTO",
		}),
		stagedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staged_bytes",
			Help:      "Size of the staged file in bytes",
		}),
		backupBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_bytes",
			Help:      "Size of the last database dump in bytes",
		}),
		memoryRSS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_rss_bytes",
			Help:      "Resident set size after extraction",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveTimer stops t and records it as the duration of the stage it names
func (r *Recorder) ObserveTimer(t *Timer) time.Duration {
	d := t.Stop()
	r.ObserveStage(t.Name(), d)
	return d
}

// RecordRun counts a finished run and stamps its completion time
func (r *Recorder) RecordRun(command, outcome string, finished time.Time) {
	r.runs.WithLabelValues(command, outcome).Inc()
	r.lastRun.WithLabelValues(command, outcome).Set(float64(finished.Unix()))
}

// SetRowsExtracted records the extracted row count
func (r *Recorder) SetRowsExtracted(n int) {
	r.rowsExtracted.Set(float64(n))
}

// SetRowsLoaded records the loaded row count
func (r *Recorder) SetRowsLoaded(n int64) {
	r.rowsLoaded.Set(float64(n))
}

// SetStagedBytes records the staged file size
func (r *Recorder) SetStagedBytes(n int64) {
	r.stagedBytes.Set(float64(n))
}

// SetBackupBytes records the dump size
func (r *Recorder) SetBackupBytes(n int64) {
	r.backupBytes.Set(float64(n))
}

// SetMemoryRSS records resident memory
func (r *Recorder) SetMemoryRSS(n uint64) {
	r.memoryRSS.Set(float64(n))
}

// WriteTextfile writes every metric to path atomically. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return prometheus.WriteToTextfile(path, r.registry)
}

// Timer measures the duration of one operation
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the operation name given at creation
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed time since creation. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
