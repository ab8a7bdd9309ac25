package athena

import "fmt"

// Concept is one standardized vocabulary entry returned by the directory.
// Optional fields are empty strings when the directory omits them.
type Concept struct {
	ID              int64  `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	ClassName       string `json:"className"`
	StandardConcept string `json:"standardConcept,omitempty"`
	InvalidReason   string `json:"invalidReason,omitempty"`
	Domain          string `json:"domain,omitempty"`
	Vocabulary      string `json:"vocabulary,omitempty"`
	Score           string `json:"score,omitempty"`
}

// ConceptSearchResult is one page of a concept search.
type ConceptSearchResult struct {
	Size             int       `json:"size"`
	Number           int       `json:"number"`
	NumberOfElements int       `json:"numberOfElements"`
	Empty            bool      `json:"empty"`
	Content          []Concept `json:"content"`
}

// RelationshipDetail is one edge of a concept's relationship graph.
type RelationshipDetail struct {
	TargetConceptID    int64  `json:"targetConceptId"`
	TargetConceptName  string `json:"targetConceptName"`
	TargetVocabularyID string `json:"targetVocabularyId"`
	RelationshipID     string `json:"relationshipId"`
	RelationshipName   string `json:"relationshipName"`
}

// RelationshipGroup holds all edges of one relationship type.
type RelationshipGroup struct {
	RelationshipName string               `json:"relationshipName"`
	Relationships    []RelationshipDetail `json:"relationships"`
}

// ConceptRelationships is the full relationship graph of one concept.
type ConceptRelationships struct {
	Count int                 `json:"count"`
	Items []RelationshipGroup `json:"items"`
}

// Wire shapes use pointers so that a missing required field is
// distinguishable from its zero value during validation.

type conceptWire struct {
	ID              *int64  `json:"id"`
	Code            *string `json:"code"`
	Name            *string `json:"name"`
	ClassName       *string `json:"className"`
	StandardConcept *string `json:"standardConcept"`
	InvalidReason   *string `json:"invalidReason"`
	Domain          *string `json:"domain"`
	Vocabulary      *string `json:"vocabulary"`
	Score           *string `json:"score"`
}

type conceptSearchWire struct {
	Size             *int           `json:"size"`
	Number           *int           `json:"number"`
	NumberOfElements *int           `json:"numberOfElements"`
	Empty            *bool          `json:"empty"`
	Content          *[]conceptWire `json:"content"`
}

func (w *conceptSearchWire) validate() error {
	switch {
	case w.Size == nil:
		return missingField("size")
	case w.Number == nil:
		return missingField("number")
	case w.NumberOfElements == nil:
		return missingField("numberOfElements")
	case w.Empty == nil:
		return missingField("empty")
	case w.Content == nil:
		return missingField("content")
	}
	for i, c := range *w.Content {
		if err := c.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (w *conceptWire) validate(index int) error {
	switch {
	case w.ID == nil:
		return missingField(fmt.Sprintf("content[%d].id", index))
	case w.Code == nil:
		return missingField(fmt.Sprintf("content[%d].code", index))
	case w.Name == nil:
		return missingField(fmt.Sprintf("content[%d].name", index))
	case w.ClassName == nil:
		return missingField(fmt.Sprintf("content[%d].className", index))
	}
	return nil
}

func (w *conceptSearchWire) result() *ConceptSearchResult {
	content := make([]Concept, 0, len(*w.Content))
	for _, c := range *w.Content {
		content = append(content, Concept{
			ID:              *c.ID,
			Code:            *c.Code,
			Name:            *c.Name,
			ClassName:       *c.ClassName,
			StandardConcept: strOrEmpty(c.StandardConcept),
			InvalidReason:   strOrEmpty(c.InvalidReason),
			Domain:          strOrEmpty(c.Domain),
			Vocabulary:      strOrEmpty(c.Vocabulary),
			Score:           strOrEmpty(c.Score),
		})
	}
	return &ConceptSearchResult{
		Size:             *w.Size,
		Number:           *w.Number,
		NumberOfElements: *w.NumberOfElements,
		Empty:            *w.Empty,
		Content:          content,
	}
}

type relationshipDetailWire struct {
	TargetConceptID    *int64  `json:"targetConceptId"`
	TargetConceptName  *string `json:"targetConceptName"`
	TargetVocabularyID *string `json:"targetVocabularyId"`
	RelationshipID     *string `json:"relationshipId"`
	RelationshipName   *string `json:"relationshipName"`
}

type relationshipGroupWire struct {
	RelationshipName *string                   `json:"relationshipName"`
	Relationships    *[]relationshipDetailWire `json:"relationships"`
}

type conceptRelationshipsWire struct {
	Count *int                     `json:"count"`
	Items *[]relationshipGroupWire `json:"items"`
}

func (w *conceptRelationshipsWire) validate() error {
	if w.Count == nil {
		return missingField("count")
	}
	if w.Items == nil {
		return missingField("items")
	}
	for i, item := range *w.Items {
		if item.RelationshipName == nil {
			return missingField(fmt.Sprintf("items[%d].relationshipName", i))
		}
		if item.Relationships == nil {
			return missingField(fmt.Sprintf("items[%d].relationships", i))
		}
		for j, rel := range *item.Relationships {
			if err := rel.validate(i, j); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *relationshipDetailWire) validate(group, index int) error {
	field := func(name string) error {
		return missingField(fmt.Sprintf("items[%d].relationships[%d].%s", group, index, name))
	}
	switch {
	case w.TargetConceptID == nil:
		return field("targetConceptId")
	case w.TargetConceptName == nil:
		return field("targetConceptName")
	case w.TargetVocabularyID == nil:
		return field("targetVocabularyId")
	case w.RelationshipID == nil:
		return field("relationshipId")
	case w.RelationshipName == nil:
		return field("relationshipName")
	}
	return nil
}

func (w *conceptRelationshipsWire) result() *ConceptRelationships {
	items := make([]RelationshipGroup, 0, len(*w.Items))
	for _, item := range *w.Items {
		rels := make([]RelationshipDetail, 0, len(*item.Relationships))
		for _, rel := range *item.Relationships {
			rels = append(rels, RelationshipDetail{
				TargetConceptID:    *rel.TargetConceptID,
				TargetConceptName:  *rel.TargetConceptName,
				TargetVocabularyID: *rel.TargetVocabularyID,
				RelationshipID:     *rel.RelationshipID,
				RelationshipName:   *rel.RelationshipName,
			})
		}
		items = append(items, RelationshipGroup{
			RelationshipName: *item.RelationshipName,
			Relationships:    rels,
		})
	}
	return &ConceptRelationships{Count: *w.Count, Items: items}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
