package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/medterm/backend/internal/analytics"
	"github.com/medterm/backend/internal/metrics"
	"github.com/medterm/backend/internal/workflow"
	"github.com/medterm/backend/pkg/logger"
)

// Workflow is the slice of the LLM workflow the handlers need. Satisfied by
// *workflow.Service.
type Workflow interface {
	Disambiguate(ctx context.Context, term, language string) ([]workflow.DisambiguationResult, error)
	GenerateSynonyms(ctx context.Context, term, language, termContext string) (*workflow.SynonymResponse, error)
	LanguageInfo(ctx context.Context, input string) (*workflow.LanguageDetails, error)
	ConceptLookup(ctx context.Context, term, termContext, language string) ([]workflow.ConceptRow, error)
}

type LanguageHandler struct {
	store    *analytics.Store
	workflow Workflow
}

func NewLanguageHandler(store *analytics.Store, wf Workflow) *LanguageHandler {
	return &LanguageHandler{
		store:    store,
		workflow: wf,
	}
}

func (h *LanguageHandler) CreateLanguage(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	logger.Info("Creating language", zap.String("name", req.Name))

	info, err := h.workflow.LanguageInfo(c.Context(), req.Name)
	if err != nil {
		logger.Error("Failed to resolve language", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "An error occurred while creating the language. Please try again.",
		})
	}

	if existing := h.store.GetLanguageByCode(c.Context(), info.Code); existing != nil {
		return c.JSON(fiber.Map{
			"success": false,
			"message": "A language with this code already exists.",
		})
	}

	// Two requests can pass the check above at the same time; the unique
	// index on the code settles it.
	err = h.store.AddLanguage(c.Context(), info.Name, info.Code, info.NativeName)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return c.JSON(fiber.Map{
			"success": false,
			"message": "A language with this code already exists.",
		})
	}
	if err != nil {
		logger.Error("Failed to create language", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "An error occurred while creating the language. Please try again.",
		})
	}

	metrics.LanguagesTotal.Inc()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Language created successfully!",
	})
}

func (h *LanguageHandler) GetLanguages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"languages": h.store.GetAllLanguages(c.Context()),
	})
}

func (h *LanguageHandler) GetLanguageInfo(c *fiber.Ctx) error {
	inputText := c.Query("input_text")

	info, err := h.workflow.LanguageInfo(c.Context(), inputText)
	if err != nil {
		logger.Error("Failed to resolve language", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve language info",
		})
	}

	if _, err := h.store.AddSearch(c.Context(), info.Code, inputText, false); err != nil {
		logger.Error("Failed to record language info search", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record search",
		})
	}

	return c.JSON(fiber.Map{
		"name":       info.Name,
		"code":       info.Code,
		"nativeName": info.NativeName,
	})
}
