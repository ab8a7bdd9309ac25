package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/medterm/backend/internal/analytics"
	"github.com/medterm/backend/internal/metrics"
	"github.com/medterm/backend/internal/workflow"
	"github.com/medterm/backend/pkg/logger"
	"github.com/medterm/backend/pkg/utils"
)

// LookupCache is the slice of the redis cache the search endpoints use.
// Satisfied by *redis.Client.
type LookupCache interface {
	GetLookup(ctx context.Context, queryHash string, response interface{}) (bool, error)
	SetLookup(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error
	GetSynonyms(ctx context.Context, queryHash string, response interface{}) (bool, error)
	SetSynonyms(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error
	InvalidateLookupCache(ctx context.Context) error
}

type SearchHandler struct {
	store    *analytics.Store
	workflow Workflow
	cache    LookupCache
	cacheTTL time.Duration
}

// NewSearchHandler wires the search endpoints. cache may be nil, in which
// case every lookup goes to the workflow.
func NewSearchHandler(store *analytics.Store, wf Workflow, cache LookupCache, cacheTTL time.Duration) *SearchHandler {
	return &SearchHandler{
		store:    store,
		workflow: wf,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// HandleSearch disambiguates a term. The validation middleware has already
// rejected requests with a missing or suspicious term.
func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	term := c.Query("term")
	language := c.Query("language", "en")

	logger.Info("Search request", zap.String("term", term), zap.String("language", language))

	timer := time.Now()
	results, err := h.workflow.Disambiguate(c.Context(), term, language)
	if err != nil {
		logger.Error("Disambiguation failed", zap.Error(err))
		metrics.SearchTotal.WithLabelValues("search", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to disambiguate term",
		})
	}
	metrics.SearchDuration.WithLabelValues("search").Observe(time.Since(timer).Seconds())
	metrics.SearchTotal.WithLabelValues("search", "success").Inc()

	searchID, err := h.store.AddSearch(c.Context(), language, term, false)
	if err != nil {
		logger.Error("Failed to record search", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record search",
		})
	}

	return c.JSON(fiber.Map{
		"results":   results,
		"search_id": searchID,
	})
}

func (h *SearchHandler) GetSynonyms(c *fiber.Ctx) error {
	term := c.Query("term")
	language := c.Query("language", "en")
	termContext := c.Query("context")

	cacheKey := utils.HashFields(term, language, termContext)

	var resp *workflow.SynonymResponse
	if h.cache != nil {
		var cached workflow.SynonymResponse
		hit, err := h.cache.GetSynonyms(c.Context(), cacheKey, &cached)
		if err != nil {
			logger.Warn("Synonym cache read failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("synonyms").Inc()
			resp = &cached
		} else {
			metrics.CacheMisses.WithLabelValues("synonyms").Inc()
		}
	}

	if resp == nil {
		var err error
		resp, err = h.workflow.GenerateSynonyms(c.Context(), term, language, termContext)
		if err != nil {
			logger.Error("Synonym generation failed", zap.Error(err))
			metrics.SearchTotal.WithLabelValues("synonyms", "error").Inc()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to generate synonyms",
			})
		}
		metrics.SearchTotal.WithLabelValues("synonyms", "success").Inc()

		if h.cache != nil {
			if err := h.cache.SetSynonyms(c.Context(), cacheKey, resp, h.cacheTTL); err != nil {
				logger.Warn("Synonym cache write failed", zap.Error(err))
			}
		}
	}

	if _, err := h.store.AddSearch(c.Context(), language, term, false); err != nil {
		logger.Error("Failed to record search", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record search",
		})
	}

	return c.JSON(resp)
}

func (h *SearchHandler) ConceptLookup(c *fiber.Ctx) error {
	term := c.Query("term")
	termContext := c.Query("context")
	language := c.Query("language", "en")

	cacheKey := utils.HashFields(term, termContext, language)

	var rows []workflow.ConceptRow
	cached := false
	if h.cache != nil {
		hit, err := h.cache.GetLookup(c.Context(), cacheKey, &rows)
		if err != nil {
			logger.Warn("Lookup cache read failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("lookup").Inc()
			cached = true
		} else {
			metrics.CacheMisses.WithLabelValues("lookup").Inc()
		}
	}

	if !cached {
		var err error
		rows, err = h.workflow.ConceptLookup(c.Context(), term, termContext, language)
		if err != nil {
			logger.Error("Concept lookup failed", zap.Error(err))
			metrics.DirectoryRequests.WithLabelValues("error").Inc()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to look up concepts",
			})
		}
		metrics.DirectoryRequests.WithLabelValues("success").Inc()
		metrics.ConceptResultsCount.Observe(float64(len(rows)))

		if h.cache != nil {
			if err := h.cache.SetLookup(c.Context(), cacheKey, rows, h.cacheTTL); err != nil {
				logger.Warn("Lookup cache write failed", zap.Error(err))
			}
		}
	}

	if _, err := h.store.AddSearch(c.Context(), language, term, true); err != nil {
		logger.Error("Failed to record search", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record search",
		})
	}
	for _, row := range rows {
		if err := h.store.AddViewedConcept(c.Context(), row.Name); err != nil {
			logger.Error("Failed to record viewed concept", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to record viewed concepts",
			})
		}
	}

	return c.JSON(fiber.Map{
		"concepts": rows,
	})
}

// InvalidateCache drops every cached concept-lookup response, e.g. after the
// upstream directory publishes a new vocabulary release.
func (h *SearchHandler) InvalidateCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Cache is not configured",
		})
	}

	if err := h.cache.InvalidateLookupCache(c.Context()); err != nil {
		logger.Error("Failed to invalidate lookup cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate lookup cache",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (h *SearchHandler) SelectSynonym(c *fiber.Ctx) error {
	var req struct {
		SearchID uint   `json:"search_id"`
		Synonym  string `json:"synonym"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SearchID == 0 || req.Synonym == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "search_id and synonym are required",
		})
	}

	err := h.store.AddSelectedSynonym(c.Context(), req.SearchID, req.Synonym)
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "search_id does not reference an existing search",
		})
	}
	if err != nil {
		logger.Error("Failed to record synonym selection", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record synonym selection",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}
