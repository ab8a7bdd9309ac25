package analytics

import "time"

// Language is a UI/search language supported by the service.
// Code is a two-letter ISO 639-1 code, stored lower-case.
type Language struct {
	ID         uint      `gorm:"primaryKey"`
	Code       string    `gorm:"size:2;uniqueIndex;not null"`
	Name       string    `gorm:"not null"`
	NativeName string    `gorm:"not null"`
	Timestamp  time.Time `gorm:"not null"`
}

func (Language) TableName() string { return "languages" }

// Search is one user search action. Searches are append-only and own the
// synonyms selected in their course.
type Search struct {
	ID                 uint      `gorm:"primaryKey"`
	Timestamp          time.Time `gorm:"not null"`
	Language           string    `gorm:"not null"`
	Term               string    `gorm:"not null"`
	LedToConceptLookup bool      `gorm:"default:false"`

	SelectedSynonyms []SelectedSynonym `gorm:"foreignKey:SearchID"`
}

func (Search) TableName() string { return "searches" }

// ViewedConcept records a concept name that was displayed to a user. The name
// is free text, not normalized against an external concept id.
type ViewedConcept struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"not null"`
	Concept   string    `gorm:"not null"`
}

func (ViewedConcept) TableName() string { return "viewed_concepts" }

// SelectedSynonym records that a user chose a synonym during a search. It
// cannot exist without its parent search.
type SelectedSynonym struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"not null"`
	SearchID  uint      `gorm:"not null"`
	Synonym   string    `gorm:"not null"`
}

func (SelectedSynonym) TableName() string { return "selected_synonyms" }

// LanguageOption is the shape the language picker consumes.
type LanguageOption struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	NativeName string `json:"nativeName"`
}

// TermCount is one grouped-count row, ordered by descending count wherever a
// slice of them is returned.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// TrendPoint is the number of searches on one calendar day.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// SearchPath is a search together with every synonym selected for it.
type SearchPath struct {
	Term             string   `json:"term"`
	Language         string   `json:"language"`
	Timestamp        string   `json:"timestamp"`
	SelectedSynonyms []string `json:"selected_synonyms"`
}

// InitialLanguages is seeded at store construction; seeding only inserts codes
// not already present.
var InitialLanguages = []Language{
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "es", Name: "Spanish", NativeName: "Español"},
	{Code: "fr", Name: "French", NativeName: "Français"},
	{Code: "de", Name: "German", NativeName: "Deutsch"},
	{Code: "it", Name: "Italian", NativeName: "Italiano"},
	{Code: "pt", Name: "Portuguese", NativeName: "Português"},
	{Code: "ru", Name: "Russian", NativeName: "Русский"},
	{Code: "zh", Name: "Chinese", NativeName: "中文"},
	{Code: "ja", Name: "Japanese", NativeName: "日本語"},
	{Code: "ko", Name: "Korean", NativeName: "한국어"},
	{Code: "ar", Name: "Arabic", NativeName: "العربية"},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी"},
	{Code: "pl", Name: "Polish", NativeName: "Polski"},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe"},
}
