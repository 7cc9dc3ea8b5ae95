// Package metrics registers the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GenerationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stationmap_generations_total",
		Help: "Pipeline runs by outcome (ready, failed)",
	}, []string{"outcome"})
	GenerationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stationmap_generation_duration_seconds",
		Help:    "Duration of pipeline runs including source loading",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stationmap_cache_hits_total",
		Help: "Map requests answered without running the pipeline",
	})
	SourceFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stationmap_source_fetches_total",
		Help: "Station source calls by result (ok, error)",
	}, []string{"result"})
	NearestQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stationmap_nearest_queries_total",
		Help: "Nearest-station queries by match type (inside, fallback)",
	}, []string{"match"})
)

func init() {
	prometheus.MustRegister(GenerationsTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(SourceFetchesTotal)
	prometheus.MustRegister(NearestQueriesTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
