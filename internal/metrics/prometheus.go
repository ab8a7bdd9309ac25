package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medterm_search_duration_seconds",
			Help:    "Search request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medterm_search_total",
			Help: "Total number of searches processed",
		},
		[]string{"operation", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medterm_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	DirectoryRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medterm_directory_requests_total",
			Help: "Total requests to the concept directory",
		},
		[]string{"status"},
	)

	ConceptResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medterm_concept_results_count",
			Help:    "Number of concepts returned per lookup",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medterm_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medterm_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	LanguagesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medterm_languages_total",
			Help: "Number of supported languages",
		},
	)
)

func Init() {
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(DirectoryRequests)
	prometheus.MustRegister(ConceptResultsCount)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(LanguagesTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
