package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/medterm/backend/pkg/logger"
)

// Connection pool bounds: 5 base connections plus 10 overflow, recycled after
// 30 minutes so load balancers cannot hand us stale sockets.
const (
	maxIdleConns    = 5
	maxOpenConns    = 15
	connMaxLifetime = 1800 * time.Second
)

// Store is the durable, queryable log of search, view and selection events.
//
// Every operation opens its own short-lived transactional scope and runs under
// the reconnect-retry policy. Write operations propagate errors; read
// operations degrade to empty/zero defaults after logging, so a dashboard
// never hard-fails on a transient read error.
type Store struct {
	mu   sync.RWMutex
	db   *gorm.DB
	open func() (*gorm.DB, error)
}

// New connects to Postgres at the given URL, migrates the schema and seeds the
// builtin languages.
func New(databaseURL string) (*Store, error) {
	return newStore(func() (*gorm.DB, error) {
		return openPostgres(databaseURL)
	})
}

// NewWithOpener builds a store over a caller-supplied connection opener.
// Lets tests run the store against sqlite.
func NewWithOpener(open func() (*gorm.DB, error)) (*Store, error) {
	return newStore(open)
}

func newStore(open func() (*gorm.DB, error)) (*Store, error) {
	db, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, open: open}

	if err := s.db.AutoMigrate(&Language{}, &Search{}, &ViewedConcept{}, &SelectedSynonym{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := s.SeedInitialLanguages(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to seed languages: %w", err)
	}

	logger.Info("Analytics store initialized")
	return s, nil
}

func openPostgres(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	// Liveness check up front; stale connections after this point are caught
	// by the reconnect policy.
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func (s *Store) handle(ctx context.Context) *gorm.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.WithContext(ctx)
}

// reconnect discards the current connection pool and builds a fresh one.
func (s *Store) reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
	db, err := s.open()
	if err != nil {
		return err
	}
	s.db = db
	logger.Info("Database connection pool recreated")
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SeedInitialLanguages inserts every builtin language whose code is not
// already present. Idempotent, safe to call on every process start.
func (s *Store) SeedInitialLanguages(ctx context.Context) error {
	err := s.run(ctx, "seed_initial_languages", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var existing []string
			if err := tx.Model(&Language{}).Pluck("code", &existing).Error; err != nil {
				return err
			}
			present := make(map[string]struct{}, len(existing))
			for _, code := range existing {
				present[code] = struct{}{}
			}

			var missing []Language
			now := time.Now().UTC()
			for _, lang := range InitialLanguages {
				if _, ok := present[lang.Code]; ok {
					continue
				}
				lang.Timestamp = now
				missing = append(missing, lang)
			}
			if len(missing) == 0 {
				logger.Info("Initial languages already seeded")
				return nil
			}
			if err := tx.Create(&missing).Error; err != nil {
				return err
			}

			codes := make([]string, 0, len(missing))
			for _, lang := range missing {
				codes = append(codes, lang.Code)
			}
			logger.Info("Seeded initial languages", zap.Strings("codes", codes))
			return nil
		})
	})
	if err != nil {
		logger.Error("Failed to seed initial languages", zap.Error(err))
		return err
	}
	return nil
}

// AddSearch records one search event and returns its generated id so callers
// can attach selected synonyms to it later.
func (s *Store) AddSearch(ctx context.Context, language, term string, ledToConceptLookup bool) (uint, error) {
	var id uint
	err := s.run(ctx, "add_search", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			search := Search{
				Timestamp:          time.Now().UTC(),
				Language:           language,
				Term:               term,
				LedToConceptLookup: ledToConceptLookup,
			}
			if err := tx.Create(&search).Error; err != nil {
				return err
			}
			id = search.ID
			return nil
		})
	})
	if err != nil {
		logger.Error("Failed to add search", zap.String("term", term), zap.Error(err))
		return 0, err
	}
	logger.Info("Added search", zap.String("term", term), zap.String("language", language))
	return id, nil
}

// AddViewedConcept records that a concept name was displayed to a user.
func (s *Store) AddViewedConcept(ctx context.Context, concept string) error {
	err := s.run(ctx, "add_viewed_concept", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&ViewedConcept{Timestamp: time.Now().UTC(), Concept: concept}).Error
		})
	})
	if err != nil {
		logger.Error("Failed to add viewed concept", zap.String("concept", concept), zap.Error(err))
		return err
	}
	logger.Info("Added viewed concept", zap.String("concept", concept))
	return nil
}

// AddSelectedSynonym records a synonym selection against an existing search.
// A non-existent search id surfaces as gorm.ErrForeignKeyViolated.
func (s *Store) AddSelectedSynonym(ctx context.Context, searchID uint, synonym string) error {
	err := s.run(ctx, "add_selected_synonym", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&SelectedSynonym{
				Timestamp: time.Now().UTC(),
				SearchID:  searchID,
				Synonym:   synonym,
			}).Error
		})
	})
	if err != nil {
		logger.Error("Failed to add selected synonym",
			zap.Uint("search_id", searchID),
			zap.Error(err),
		)
		return err
	}
	logger.Info("Added selected synonym",
		zap.String("synonym", synonym),
		zap.Uint("search_id", searchID),
	)
	return nil
}

// AddLanguage inserts a new language; the code is lower-cased before storage.
// Inserting an existing code surfaces as gorm.ErrDuplicatedKey — callers are
// expected to pre-check with GetLanguageByCode, and to treat the duplicate
// error as "already exists" when the pre-check races a concurrent insert.
func (s *Store) AddLanguage(ctx context.Context, name, code, nativeName string) error {
	err := s.run(ctx, "add_language", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&Language{
				Code:       strings.ToLower(code),
				Name:       name,
				NativeName: nativeName,
				Timestamp:  time.Now().UTC(),
			}).Error
		})
	})
	if err != nil {
		logger.Error("Failed to add language", zap.String("code", code), zap.Error(err))
		return err
	}
	logger.Info("Added language", zap.String("name", name), zap.String("code", code))
	return nil
}

// GetLanguageByCode looks a language up case-insensitively. Returns nil when
// no such language exists (or the read failed).
func (s *Store) GetLanguageByCode(ctx context.Context, code string) *Language {
	var lang Language
	found := false
	err := s.run(ctx, "get_language_by_code", func(db *gorm.DB) error {
		result := db.Where("code = ?", strings.ToLower(code)).Limit(1).Find(&lang)
		if result.Error != nil {
			return result.Error
		}
		found = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		logger.Error("Failed to retrieve language", zap.String("code", code), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	return &lang
}

// GetAllLanguages returns every language in picker shape. Empty on failure.
func (s *Store) GetAllLanguages(ctx context.Context) []LanguageOption {
	var langs []Language
	err := s.run(ctx, "get_all_languages", func(db *gorm.DB) error {
		return db.Order("id").Find(&langs).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve languages", zap.Error(err))
		return []LanguageOption{}
	}
	options := make([]LanguageOption, 0, len(langs))
	for _, lang := range langs {
		options = append(options, LanguageOption{
			Value:      lang.Code,
			Label:      lang.Name,
			NativeName: lang.NativeName,
		})
	}
	return options
}

// GetLanguageDistribution groups all searches by language code.
func (s *Store) GetLanguageDistribution(ctx context.Context) map[string]int64 {
	type row struct {
		Language string
		Count    int64
	}
	var rows []row
	err := s.run(ctx, "get_language_distribution", func(db *gorm.DB) error {
		return db.Model(&Search{}).
			Select("language, count(id) AS count").
			Group("language").
			Scan(&rows).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve language distribution", zap.Error(err))
		return map[string]int64{}
	}
	dist := make(map[string]int64, len(rows))
	for _, r := range rows {
		dist[r.Language] = r.Count
	}
	return dist
}

// GetTotalSearches returns the total number of recorded searches, 0 on failure.
func (s *Store) GetTotalSearches(ctx context.Context) int64 {
	var total int64
	err := s.run(ctx, "get_total_searches", func(db *gorm.DB) error {
		return db.Model(&Search{}).Count(&total).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve total searches", zap.Error(err))
		return 0
	}
	return total
}

// GetSearchTrend counts searches per calendar day over the trailing window,
// ordered chronologically ascending.
func (s *Store) GetSearchTrend(ctx context.Context, days int) []TrendPoint {
	type row struct {
		Day   string
		Count int64
	}
	var rows []row
	start := time.Now().UTC().AddDate(0, 0, -days)
	err := s.run(ctx, "get_search_trend", func(db *gorm.DB) error {
		return db.Model(&Search{}).
			Select("date(timestamp) AS day, count(id) AS count").
			Where("timestamp >= ?", start).
			Group("day").
			Order("day").
			Scan(&rows).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve search trend", zap.Error(err))
		return []TrendPoint{}
	}
	trend := make([]TrendPoint, 0, len(rows))
	for _, r := range rows {
		trend = append(trend, TrendPoint{Date: dayString(r.Day), Count: r.Count})
	}
	return trend
}

// dayString normalizes a scanned date to YYYY-MM-DD. Postgres dates come back
// through database/sql as RFC 3339 timestamps, sqlite as bare dates.
func dayString(raw string) string {
	if len(raw) > 10 {
		return raw[:10]
	}
	return raw
}

// GetCommonSearchTerms counts lower-cased search terms, excluding stopwords,
// and returns the most frequent ones in descending order.
func (s *Store) GetCommonSearchTerms(ctx context.Context, limit int) []TermCount {
	var terms []string
	err := s.run(ctx, "get_common_search_terms", func(db *gorm.DB) error {
		return db.Model(&Search{}).Pluck("term", &terms).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve common search terms", zap.Error(err))
		return []TermCount{}
	}

	counts := make(map[string]int64, len(terms))
	for _, term := range terms {
		term = strings.ToLower(term)
		if isStopword(term) {
			continue
		}
		counts[term]++
	}

	common := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		common = append(common, TermCount{Term: term, Count: count})
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Count != common[j].Count {
			return common[i].Count > common[j].Count
		}
		return common[i].Term < common[j].Term
	})
	if len(common) > limit {
		common = common[:limit]
	}
	return common
}

// GetConceptLookupPercentage returns the share of searches that led to a
// concept lookup, in [0,100]. Exactly 0.0 when there are no searches.
func (s *Store) GetConceptLookupPercentage(ctx context.Context) float64 {
	total := s.GetTotalSearches(ctx)
	if total == 0 {
		logger.Warn("Total searches is zero, cannot calculate percentage")
		return 0.0
	}
	var lookups int64
	err := s.run(ctx, "get_concept_lookup_percentage", func(db *gorm.DB) error {
		return db.Model(&Search{}).
			Where("led_to_concept_lookup = ?", true).
			Count(&lookups).Error
	})
	if err != nil {
		logger.Error("Failed to calculate concept lookup percentage", zap.Error(err))
		return 0.0
	}
	return float64(lookups) / float64(total) * 100
}

// GetMostViewedConcepts returns the most frequently viewed concept names.
func (s *Store) GetMostViewedConcepts(ctx context.Context, limit int) []TermCount {
	return s.groupedCount(ctx, "get_most_viewed_concepts", &ViewedConcept{}, "concept", limit)
}

// GetMostSelectedSynonyms returns the most frequently selected synonyms.
func (s *Store) GetMostSelectedSynonyms(ctx context.Context, limit int) []TermCount {
	return s.groupedCount(ctx, "get_most_selected_synonyms", &SelectedSynonym{}, "synonym", limit)
}

func (s *Store) groupedCount(ctx context.Context, op string, model interface{}, column string, limit int) []TermCount {
	type row struct {
		Term  string
		Count int64
	}
	var rows []row
	err := s.run(ctx, op, func(db *gorm.DB) error {
		return db.Model(model).
			Select(column + " AS term, count(id) AS count").
			Group(column).
			Order("count DESC").
			Limit(limit).
			Scan(&rows).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve grouped counts",
			zap.String("operation", op),
			zap.Error(err),
		)
		return []TermCount{}
	}
	counts := make([]TermCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, TermCount{Term: r.Term, Count: r.Count})
	}
	return counts
}

// GetSearchPaths returns every search with the synonyms selected for it.
func (s *Store) GetSearchPaths(ctx context.Context) []SearchPath {
	var searches []Search
	err := s.run(ctx, "get_search_paths", func(db *gorm.DB) error {
		return db.Preload("SelectedSynonyms").Order("id").Find(&searches).Error
	})
	if err != nil {
		logger.Error("Failed to retrieve search paths", zap.Error(err))
		return []SearchPath{}
	}
	paths := make([]SearchPath, 0, len(searches))
	for _, search := range searches {
		synonyms := make([]string, 0, len(search.SelectedSynonyms))
		for _, sel := range search.SelectedSynonyms {
			synonyms = append(synonyms, sel.Synonym)
		}
		paths = append(paths, SearchPath{
			Term:             search.Term,
			Language:         search.Language,
			Timestamp:        search.Timestamp.Format(time.RFC3339),
			SelectedSynonyms: synonyms,
		})
	}
	return paths
}
