package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    renders = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "thumbnail_renders_total",
            Help:      "Thumbnails produced by path (embedded, raster, cache, placeholder)",
        },
        []string{"path"},
    )

    renderLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdfsnip",
            Name:      "thumbnail_render_duration_seconds",
            Help:      "Duration of a single thumbnail render by document kind",
            Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
        },
        []string{"kind"},
    )

    scanPasses = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "scan_passes_total",
            Help:      "Completed renderer scan passes",
        },
    )

    scanRestarts = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "scan_restarts_total",
            Help:      "Scan passes abandoned because the list generation changed",
        },
    )

    staleEntries = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "pdfsnip",
            Name:      "stale_entries",
            Help:      "Entries requested for render but not yet rendered at the end of the last pass",
        },
    )

    exports = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "exports_total",
            Help:      "Exports by engine and result",
        },
        []string{"engine", "result"},
    )

    pagesExported = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "pages_exported_total",
            Help:      "Pages written by export engine",
        },
        []string{"engine"},
    )

    droppedTransforms = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "export_dropped_transforms_total",
            Help:      "Per-page rotations or crops an engine could not apply",
        },
        []string{"engine"},
    )

    imports = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "imports_total",
            Help:      "Document imports by kind and result (new, reused, unsupported, error)",
        },
        []string{"kind", "result"},
    )

    cacheOps = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfsnip",
            Name:      "thumbnail_cache_total",
            Help:      "Thumbnail cache lookups by result (hit, miss, error)",
        },
        []string{"result"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(renders, renderLatency, scanPasses, scanRestarts, staleEntries, exports, pagesExported, droppedTransforms, imports, cacheOps)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRender(path, kind string, dur time.Duration) {
    renders.WithLabelValues(path).Inc()
    if path != "cache" {
        renderLatency.WithLabelValues(kind).Observe(dur.Seconds())
    }
}

func IncScanPass()             { scanPasses.Inc() }
func IncScanRestart()          { scanRestarts.Inc() }
func SetStaleEntries(n int)    { staleEntries.Set(float64(n)) }
func IncCache(result string)   { cacheOps.WithLabelValues(result).Inc() }
func IncImport(kind, result string) { imports.WithLabelValues(kind, result).Inc() }

// ObserveExport records one export attempt.
func ObserveExport(engine, result string, pages, dropped int) {
    exports.WithLabelValues(engine, result).Inc()
    if pages > 0 { pagesExported.WithLabelValues(engine).Add(float64(pages)) }
    if dropped > 0 { droppedTransforms.WithLabelValues(engine).Add(float64(dropped)) }
}
