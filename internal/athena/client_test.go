package athena

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:       srv.URL,
		BackoffFactor: 0.001, // keep transport retries fast in tests
	})
	t.Cleanup(c.Close)
	return c
}

const conceptPage = `{
	"size": 20, "number": 1, "numberOfElements": 2, "empty": false,
	"content": [
		{"id": 201826, "code": "73211009", "name": "Type 2 diabetes mellitus",
		 "className": "Clinical Finding", "standardConcept": "Standard",
		 "domain": "Condition", "vocabulary": "SNOMED", "score": "1.0"},
		{"id": 4193704, "code": "44054006", "name": "Diabetes mellitus",
		 "className": "Clinical Finding"}
	]
}`

func TestGetMedicalConcepts(t *testing.T) {
	var gotQuery, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/concepts" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(conceptPage))
	}))

	result, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{
		Query:    "diabetes",
		PageSize: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Size != 20 || result.NumberOfElements != 2 || len(result.Content) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	first := result.Content[0]
	if first.ID != 201826 || first.Vocabulary != "SNOMED" || first.StandardConcept != "Standard" {
		t.Fatalf("unexpected first concept: %+v", first)
	}
	// Optional fields absent on the wire come back empty.
	if result.Content[1].Domain != "" || result.Content[1].Score != "" {
		t.Fatalf("expected empty optional fields: %+v", result.Content[1])
	}
	if gotQuery != "pageSize=20&query=diabetes" {
		t.Fatalf("unexpected query string %q", gotQuery)
	}
	if gotAuth != "" {
		t.Fatalf("no API key configured, but Authorization header sent: %q", gotAuth)
	}
}

func TestOptionalParamsOmitted(t *testing.T) {
	var gotQuery string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"size":0,"number":0,"numberOfElements":0,"empty":true,"content":[]}`))
	}))

	if _, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "flu"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "query=flu" {
		t.Fatalf("optional params must not be sent when unset, got %q", gotQuery)
	}
}

func TestEmptyContentIsNotAnError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"size":20,"number":1,"numberOfElements":0,"empty":true,"content":[]}`))
	}))

	result, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "xyzzy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content == nil || len(result.Content) != 0 {
		t.Fatalf("expected empty content slice, got %+v", result.Content)
	}
	if !result.Empty {
		t.Fatal("expected empty flag set")
	}
}

func TestMissingRequiredFieldIsValidationError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number":1,"numberOfElements":0,"empty":true,"content":[]}`))
	}))

	_, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "flu"})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if valErr.Field != "size" {
		t.Fatalf("expected missing field size, got %q", valErr.Field)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Fatal("validation error must not be an HTTPError")
	}
}

func TestTransportRetriesOn503(t *testing.T) {
	var calls int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"size":1,"number":1,"numberOfElements":0,"empty":true,"content":[]}`))
	}))

	result, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "flu"})
	if err != nil {
		t.Fatalf("expected transparent retry, got %v", err)
	}
	if result.Size != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
}

func TestHTTPErrorCarriesStatusAndBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"token expired"}`))
	}))

	_, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "flu"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", httpErr.StatusCode)
	}
	if httpErr.Body != `{"error":"token expired"}` {
		t.Fatalf("expected response body captured, got %q", httpErr.Body)
	}
}

func TestAuthorizationHeaderSentWhenConfigured(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"size":0,"number":0,"numberOfElements":0,"empty":true,"content":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sekrit"})
	defer c.Close()

	if _, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "flu"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
}

func TestGetConceptRelationships(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/concepts/4220821/relationships" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{
			"count": 1,
			"items": [{
				"relationshipName": "Is a",
				"relationships": [{
					"targetConceptId": 201826,
					"targetConceptName": "Type 2 diabetes mellitus",
					"targetVocabularyId": "SNOMED",
					"relationshipId": "116680003",
					"relationshipName": "Is a"
				}]
			}]
		}`))
	}))

	rels, err := c.GetConceptRelationships(context.Background(), 4220821)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rels.Count != 1 || len(rels.Items) != 1 {
		t.Fatalf("unexpected relationships: %+v", rels)
	}
	detail := rels.Items[0].Relationships[0]
	if detail.TargetConceptID != 201826 || detail.TargetVocabularyID != "SNOMED" {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func TestRelationshipsMissingCountIsValidationError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))

	_, err := c.GetConceptRelationships(context.Background(), 1)
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if valErr.Field != "count" {
		t.Fatalf("expected missing field count, got %q", valErr.Field)
	}
}

func TestTimeoutSurfacesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:       srv.URL,
		Timeout:       20 * time.Millisecond,
		Retries:       1,
		BackoffFactor: 0.001,
	})
	defer c.Close()

	_, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "flu"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Fatalf("expected IsTimeout to report true for %v", err)
	}
}

func TestSessionPerCallClientSharesSemantics(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(conceptPage))
	}))
	defer srv.Close()

	c := NewSessionPerCallClient(Config{BaseURL: srv.URL})

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := c.GetMedicalConcepts(context.Background(), ConceptSearchRequest{Query: "diabetes"})
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent call failed: %v", err)
		}
	}
	if atomic.LoadInt32(&calls) != 4 {
		t.Fatalf("expected 4 requests, got %d", calls)
	}
}
