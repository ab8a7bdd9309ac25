package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/medterm/backend/internal/analytics"
)

const (
	trendDays         = 30
	commonTermsLimit  = 50
	groupedCountLimit = 10
)

type MetricsHandler struct {
	store *analytics.Store
}

func NewMetricsHandler(store *analytics.Store) *MetricsHandler {
	return &MetricsHandler{store: store}
}

// Snapshot collects every chart metric in one shot. Shared by the REST
// endpoint and the websocket stream.
func (h *MetricsHandler) Snapshot(ctx context.Context) fiber.Map {
	return fiber.Map{
		"language_distribution":     h.store.GetLanguageDistribution(ctx),
		"total_searches":            h.store.GetTotalSearches(ctx),
		"search_trend":              h.store.GetSearchTrend(ctx, trendDays),
		"common_search_terms":       h.store.GetCommonSearchTerms(ctx, commonTermsLimit),
		"concept_lookup_percentage": h.store.GetConceptLookupPercentage(ctx),
		"most_viewed_concepts":      h.store.GetMostViewedConcepts(ctx, groupedCountLimit),
		"most_selected_synonyms":    h.store.GetMostSelectedSynonyms(ctx, groupedCountLimit),
	}
}

func (h *MetricsHandler) GetAllMetrics(c *fiber.Ctx) error {
	return c.JSON(h.Snapshot(c.Context()))
}

func (h *MetricsHandler) GetMetric(c *fiber.Ctx) error {
	metricType := c.Params("metric_type")

	var data interface{}
	switch metricType {
	case "language_distribution":
		data = h.store.GetLanguageDistribution(c.Context())
	case "total_searches":
		data = h.store.GetTotalSearches(c.Context())
	case "search_trend":
		data = h.store.GetSearchTrend(c.Context(), trendDays)
	case "common_search_terms":
		data = h.store.GetCommonSearchTerms(c.Context(), commonTermsLimit)
	case "concept_lookup_percentage":
		data = h.store.GetConceptLookupPercentage(c.Context())
	case "most_viewed_concepts":
		data = h.store.GetMostViewedConcepts(c.Context(), groupedCountLimit)
	case "most_selected_synonyms":
		data = h.store.GetMostSelectedSynonyms(c.Context(), groupedCountLimit)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid metric type",
		})
	}

	return c.JSON(fiber.Map{
		metricType: data,
	})
}

func (h *MetricsHandler) GetSearchPaths(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"search_paths": h.store.GetSearchPaths(c.Context()),
	})
}
