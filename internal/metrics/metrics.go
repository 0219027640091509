package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmscan",
			Name:      "pages_processed_total",
			Help:      "Total pages processed by result (success, render_error, decode_error)",
		},
		[]string{"result"},
	)

	codesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dmscan",
			Name:      "codes_decoded_total",
			Help:      "Total Data Matrix payloads decoded",
		},
	)

	pageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dmscan",
			Name:      "page_duration_seconds",
			Help:      "Duration of each page stage",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmscan",
			Name:      "runs_total",
			Help:      "Completed runs by result (success, failure)",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dmscan",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// Init registers collectors on the package registry. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		registry.MustRegister(pagesProcessed, codesDecoded, pageDuration, runsTotal, cacheLookups)
	})
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}

func IncProcessed(result string) { pagesProcessed.WithLabelValues(result).Inc() }
func AddCodes(n int)             { codesDecoded.Add(float64(n)) }
func IncRun(result string)       { runsTotal.WithLabelValues(result).Inc() }
func IncCache(result string)     { cacheLookups.WithLabelValues(result).Inc() }

func ObserveStage(stage string, dur time.Duration) {
	pageDuration.WithLabelValues(stage).Observe(dur.Seconds())
}
