package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/medterm/backend/internal/athena"
	"github.com/medterm/backend/internal/llm"
	"github.com/medterm/backend/pkg/logger"
)

// Completer generates chat completions. Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// ConceptDirectory searches the external OMOP concept directory. Satisfied by
// *athena.Client and *athena.SessionPerCallClient.
type ConceptDirectory interface {
	GetMedicalConcepts(ctx context.Context, req athena.ConceptSearchRequest) (*athena.ConceptSearchResult, error)
}

type DisambiguationResult struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Usage      string `json:"usage"`
	Context    string `json:"context"`
	Category   string `json:"category"`
}

type SynonymResult struct {
	Synonym   string  `json:"synonym"`
	Relevance float64 `json:"relevance"`
}

type SynonymResponse struct {
	Synonyms []SynonymResult `json:"synonyms"`
}

type LanguageDetails struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	NativeName string `json:"nativeName"`
}

type ConceptRow struct {
	ConceptID       int64    `json:"concept_id"`
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	ClassName       string   `json:"class_name"`
	StandardConcept string   `json:"standard_concept"`
	InvalidReason   *string  `json:"invalid_reason"`
	Domain          string   `json:"domain"`
	Vocabulary      string   `json:"vocabulary"`
	Score           *float64 `json:"score"`
}

const conceptPageSize = 20

// Service runs the LLM-backed disambiguation workflows and the concept
// directory lookup.
type Service struct {
	completer Completer
	directory ConceptDirectory
}

func NewService(completer Completer, directory ConceptDirectory) *Service {
	return &Service{completer: completer, directory: directory}
}

// Disambiguate asks the model for the possible meanings of a medical term in
// the given language. Entries the model returns without a term or definition
// are skipped rather than failing the whole response.
func (s *Service) Disambiguate(ctx context.Context, term, language string) ([]DisambiguationResult, error) {
	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(`You are a helpful medical assistant. Explain a potentially ambiguous medical term to a user in %s.
Respond with a JSON array. Each element describes one possible interpretation of the term and has exactly these string fields:
"term", "definition", "usage", "context", "category".
The definition, usage, context and category must be written in %s. The category is e.g. Symptom, Diagnosis or Procedure.
Respond with the JSON array only, no prose.`, language, language),
		UserPrompt: fmt.Sprintf("Disambiguate the following medical term in %s: %s", language, term),
	})
	if err != nil {
		return nil, fmt.Errorf("disambiguation failed: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &raw); err != nil {
		logger.Error("Failed to parse disambiguation response",
			zap.Error(err),
			zap.String("raw", resp.Content),
		)
		return nil, fmt.Errorf("failed to parse disambiguation response: %w", err)
	}

	results := make([]DisambiguationResult, 0, len(raw))
	for _, entry := range raw {
		var result DisambiguationResult
		if err := json.Unmarshal(entry, &result); err != nil || result.Term == "" || result.Definition == "" {
			logger.Warn("Skipping invalid disambiguation entry", zap.String("entry", string(entry)))
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// GenerateSynonyms returns up to five synonyms for a term, each with a
// relevance score between 0 and 1.
func (s *Service) GenerateSynonyms(ctx context.Context, term, language, termContext string) (*SynonymResponse, error) {
	userPrompt := fmt.Sprintf("Generate synonyms for the medical term '%s' in %s.", term, language)
	if termContext != "" {
		userPrompt += fmt.Sprintf(" The term is used in the following context: %s.", termContext)
	}

	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(`You are a medical language expert. Generate up to 5 synonyms for the given medical term in %s.
Provide each synonym with a relevance score between 0 and 1, where 1 is highly relevant and 0 is less relevant.
Respond with a JSON object of the shape {"synonyms": [{"synonym": "...", "relevance": 0.9}]}.`, language),
		UserPrompt: userPrompt,
		JSONMode:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("synonym generation failed: %w", err)
	}

	var result SynonymResponse
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse synonym response: %w", err)
	}
	if len(result.Synonyms) > 5 {
		result.Synonyms = result.Synonyms[:5]
	}
	return &result, nil
}

// LanguageInfo resolves a language name, ISO code or native name into its
// canonical details.
func (s *Service) LanguageInfo(ctx context.Context, input string) (*LanguageDetails, error) {
	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: `You identify human languages. Given a language name, ISO 639-1 code or native name, respond with a JSON object
{"name": "<English name>", "code": "<lowercase ISO 639-1 code>", "nativeName": "<name in the language itself>"}.
Respond with the JSON object only.`,
		UserPrompt: input,
		JSONMode:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("language lookup failed: %w", err)
	}

	var details LanguageDetails
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &details); err != nil {
		return nil, fmt.Errorf("failed to parse language response: %w", err)
	}
	if details.Code == "" || details.Name == "" {
		return nil, fmt.Errorf("language response missing name or code: %q", resp.Content)
	}
	details.Code = strings.ToLower(details.Code)
	return &details, nil
}

// ConceptLookup translates the term to English, searches the concept
// directory and returns the matching rows. A search that matches nothing is
// an empty slice, not an error.
func (s *Service) ConceptLookup(ctx context.Context, term, termContext, language string) ([]ConceptRow, error) {
	query, err := s.translate(ctx, term, termContext)
	if err != nil {
		return nil, err
	}

	return s.searchConcepts(ctx, query)
}

// FindConcepts searches the directory for a chosen term together with its
// synonyms, OR-joined into a single query.
func (s *Service) FindConcepts(ctx context.Context, chosenTerm string, synonyms []string) ([]ConceptRow, error) {
	query := chosenTerm
	if len(synonyms) > 0 {
		query += " OR " + strings.Join(synonyms, " OR ")
	}
	return s.searchConcepts(ctx, query)
}

func (s *Service) searchConcepts(ctx context.Context, query string) ([]ConceptRow, error) {
	result, err := s.directory.GetMedicalConcepts(ctx, athena.ConceptSearchRequest{
		Query:    query,
		PageSize: conceptPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("concept directory search failed: %w", err)
	}

	rows := make([]ConceptRow, 0, len(result.Content))
	for _, concept := range result.Content {
		rows = append(rows, ConceptRow{
			ConceptID:       concept.ID,
			Code:            concept.Code,
			Name:            concept.Name,
			ClassName:       concept.ClassName,
			StandardConcept: concept.StandardConcept,
			InvalidReason:   optionalString(concept.InvalidReason),
			Domain:          concept.Domain,
			Vocabulary:      concept.Vocabulary,
			Score:           optionalScore(concept.Score),
		})
	}
	return rows, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalScore(s string) *float64 {
	score, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &score
}

// translate collapses the term (plus optional context) into an English search
// string for the directory, which only indexes English concept names.
func (s *Service) translate(ctx context.Context, term, termContext string) (string, error) {
	userPrompt := term
	if termContext != "" {
		userPrompt = fmt.Sprintf("%s (context: %s)", term, termContext)
	}

	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Translate the given medical term to English. Answer only with the translated term and nothing else.",
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	translated := strings.TrimSpace(stripFences(resp.Content))
	if translated == "" {
		return term, nil
	}
	return translated, nil
}

// stripFences removes markdown code fences the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
