package workflow

import (
	"context"
	"testing"

	"github.com/medterm/backend/internal/athena"
	"github.com/medterm/backend/internal/llm"
)

type stubCompleter struct {
	responses []string
	prompts   []llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.prompts = append(s.prompts, req)
	content := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

type stubDirectory struct {
	lastRequest athena.ConceptSearchRequest
	result      *athena.ConceptSearchResult
}

func (s *stubDirectory) GetMedicalConcepts(_ context.Context, req athena.ConceptSearchRequest) (*athena.ConceptSearchResult, error) {
	s.lastRequest = req
	return s.result, nil
}

func TestDisambiguateStripsFencesAndSkipsInvalidEntries(t *testing.T) {
	completer := &stubCompleter{responses: []string{"```json\n" + `[
		{"term": "cold", "definition": "a viral infection", "usage": "common", "context": "general", "category": "Diagnosis"},
		{"definition": "missing the term field"},
		{"term": "cold", "definition": "low temperature sensation", "usage": "common", "context": "symptom", "category": "Symptom"}
	]` + "\n```"}}
	svc := NewService(completer, nil)

	results, err := svc.Disambiguate(context.Background(), "cold", "en")
	if err != nil {
		t.Fatalf("Disambiguate returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 valid results, got %d", len(results))
	}
	if results[0].Category != "Diagnosis" || results[1].Category != "Symptom" {
		t.Fatalf("unexpected categories: %+v", results)
	}
}

func TestDisambiguateRejectsNonJSON(t *testing.T) {
	completer := &stubCompleter{responses: []string{"Sorry, I cannot help with that."}}
	svc := NewService(completer, nil)

	if _, err := svc.Disambiguate(context.Background(), "cold", "en"); err == nil {
		t.Fatal("expected parse error for non-JSON response")
	}
}

func TestGenerateSynonymsCapsAtFive(t *testing.T) {
	completer := &stubCompleter{responses: []string{`{"synonyms": [
		{"synonym": "a", "relevance": 0.9}, {"synonym": "b", "relevance": 0.8},
		{"synonym": "c", "relevance": 0.7}, {"synonym": "d", "relevance": 0.6},
		{"synonym": "e", "relevance": 0.5}, {"synonym": "f", "relevance": 0.4}
	]}`}}
	svc := NewService(completer, nil)

	resp, err := svc.GenerateSynonyms(context.Background(), "myocardial infarction", "en", "cardiology")
	if err != nil {
		t.Fatalf("GenerateSynonyms returned error: %v", err)
	}
	if len(resp.Synonyms) != 5 {
		t.Fatalf("expected 5 synonyms, got %d", len(resp.Synonyms))
	}
	if resp.Synonyms[0].Synonym != "a" || resp.Synonyms[0].Relevance != 0.9 {
		t.Fatalf("unexpected first synonym: %+v", resp.Synonyms[0])
	}
	if len(completer.prompts) != 1 || !completer.prompts[0].JSONMode {
		t.Fatal("expected a single JSON-mode completion request")
	}
}

func TestLanguageInfoNormalizesCode(t *testing.T) {
	completer := &stubCompleter{responses: []string{`{"name": "German", "code": "DE", "nativeName": "Deutsch"}`}}
	svc := NewService(completer, nil)

	details, err := svc.LanguageInfo(context.Background(), "Deutsch")
	if err != nil {
		t.Fatalf("LanguageInfo returned error: %v", err)
	}
	if details.Code != "de" {
		t.Fatalf("expected lowercased code de, got %q", details.Code)
	}
	if details.Name != "German" || details.NativeName != "Deutsch" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestLanguageInfoRequiresCode(t *testing.T) {
	completer := &stubCompleter{responses: []string{`{"name": "German"}`}}
	svc := NewService(completer, nil)

	if _, err := svc.LanguageInfo(context.Background(), "Deutsch"); err == nil {
		t.Fatal("expected error for response without a code")
	}
}

func TestConceptLookupTranslatesAndMapsRows(t *testing.T) {
	completer := &stubCompleter{responses: []string{"Headache\n"}}
	directory := &stubDirectory{result: &athena.ConceptSearchResult{
		Content: []athena.Concept{
			{ID: 378253, Code: "25064002", Name: "Headache", ClassName: "Clinical Finding", StandardConcept: "Standard", Domain: "Condition", Vocabulary: "SNOMED", Score: "0.95"},
			{ID: 378254, Code: "25064003", Name: "Chronic headache", ClassName: "Clinical Finding", Domain: "Condition", Vocabulary: "SNOMED"},
		},
	}}
	svc := NewService(completer, directory)

	rows, err := svc.ConceptLookup(context.Background(), "Kopfschmerzen", "neurology", "de")
	if err != nil {
		t.Fatalf("ConceptLookup returned error: %v", err)
	}
	if directory.lastRequest.Query != "Headache" {
		t.Fatalf("expected translated query, got %q", directory.lastRequest.Query)
	}
	if directory.lastRequest.PageSize != 20 {
		t.Fatalf("expected page size 20, got %d", directory.lastRequest.PageSize)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Score == nil || *rows[0].Score != 0.95 {
		t.Fatalf("expected parsed score 0.95, got %v", rows[0].Score)
	}
	if rows[1].Score != nil {
		t.Fatalf("expected nil score for row without one, got %v", rows[1].Score)
	}
	if rows[0].InvalidReason != nil {
		t.Fatalf("expected nil invalid reason, got %v", rows[0].InvalidReason)
	}
}

func TestFindConceptsJoinsSynonyms(t *testing.T) {
	directory := &stubDirectory{result: &athena.ConceptSearchResult{}}
	svc := NewService(nil, directory)

	if _, err := svc.FindConcepts(context.Background(), "headache", []string{"cephalgia", "head pain"}); err != nil {
		t.Fatalf("FindConcepts returned error: %v", err)
	}
	if got := directory.lastRequest.Query; got != "headache OR cephalgia OR head pain" {
		t.Fatalf("unexpected query: %q", got)
	}
}
