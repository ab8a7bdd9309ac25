package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|insert\s+into|update\s+\w+\s+set|delete\s+from|drop\s+table|exec\s|<script|javascript:)`)
	xssPattern          = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

// termEndpoints maps GET endpoints to the query parameter that carries
// user-entered text and must be screened.
var termEndpoints = map[string]string{
	"/api/search":         "term",
	"/api/synonyms":       "term",
	"/api/concept_lookup": "term",
	"/api/language_info":  "input_text",
}

type Config struct {
	MaxTermLength       int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxTermLength == 0 {
		cfg.MaxTermLength = 200
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if param, ok := termEndpoints[c.Path()]; ok {
			term := strings.TrimSpace(c.Query(param))
			if term == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": param + " is required",
				})
			}

			if len(term) > cfg.MaxTermLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Search term exceeds maximum length",
				})
			}

			if containsSQLInjection(term) || containsXSS(term) {
				cfg.Logger.Warn("Rejected suspicious search term",
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid search term",
				})
			}
		}

		return c.Next()
	}
}

func containsSQLInjection(input string) bool {
	return sqlInjectionPattern.MatchString(input)
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
