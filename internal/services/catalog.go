package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/state"
	"github.com/estofados/storefront/internal/storeapi"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const msgCatalogFailed = "Erro ao carregar alguns dados da loja. Tente novamente."

// Catalog slices loaded independently by LoadAll
const (
	SliceCategories = "categories"
	SliceProducts   = "products"
	SliceReviews    = "reviews"
)

// SliceStatus is the outcome of the latest load of one catalog slice
type SliceStatus struct {
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// LoadStatus reports each slice of the catalog
type LoadStatus struct {
	Categories SliceStatus `json:"categories"`
	Products   SliceStatus `json:"products"`
	Reviews    SliceStatus `json:"reviews"`
}

// Failed reports whether the latest load of any slice failed
func (l LoadStatus) Failed() bool {
	return l.Categories.Error != "" || l.Products.Error != "" || l.Reviews.Error != ""
}

// CatalogOption configures a CatalogService
type CatalogOption func(*CatalogService)

// WithRand sets the source of the "popular" ordering
func WithRand(r *rand.Rand) CatalogOption {
	return func(s *CatalogService) { s.rng = r }
}

// WithAfterLoad runs fn once every LoadAll has joined
func WithAfterLoad(fn func(ctx context.Context)) CatalogOption {
	return func(s *CatalogService) { s.afterLoad = fn }
}

// CatalogService holds categories, products and reviews plus the filtered,
// sorted product view derived from them
type CatalogService struct {
	mu         sync.RWMutex
	categories []models.Category
	products   []models.Product
	reviews    []models.Review
	filter     models.FilterState
	visible    []models.Product
	status     LoadStatus

	// not safe for concurrent use; guarded by mu
	fold     cases.Caser
	collator *collate.Collator
	rng      *rand.Rand

	client    *storeapi.Client
	notifier  notify.Notifier
	publisher state.Publisher
	metrics   *metrics.AppMetrics
	logger    *slog.Logger
	afterLoad func(ctx context.Context)
}

// NewCatalogService creates an empty catalog with the default filter
func NewCatalogService(
	client *storeapi.Client,
	notifier notify.Notifier,
	publisher state.Publisher,
	m *metrics.AppMetrics,
	logger *slog.Logger,
	opts ...CatalogOption,
) *CatalogService {
	if publisher == nil {
		publisher = state.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &CatalogService{
		categories: []models.Category{},
		products:   []models.Product{},
		reviews:    []models.Review{},
		filter:     models.DefaultFilter(),
		visible:    []models.Product{},
		fold:       cases.Fold(),
		collator:   collate.New(language.BrazilianPortuguese, collate.IgnoreCase),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		client:     client,
		notifier:   notifier,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoadAll fetches the three slices concurrently. Each slice is assigned as
// soon as its own call completes; a failed slice keeps its previous value.
// A single notice is raised when anything failed.
func (s *CatalogService) LoadAll(ctx context.Context) LoadStatus {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		categories, err := s.client.ListCategories(ctx)
		s.finish(ctx, SliceCategories, err, func() {
			s.categories = nonNil(categories)
		})
	}()

	go func() {
		defer wg.Done()
		products, err := s.client.ListProducts(ctx)
		s.finish(ctx, SliceProducts, err, func() {
			s.products = nonNil(products)
			s.recomputeLocked()
		})
	}()

	go func() {
		defer wg.Done()
		reviews, err := s.client.ListReviews(ctx)
		s.finish(ctx, SliceReviews, err, func() {
			s.reviews = nonNil(reviews)
		})
	}()

	wg.Wait()

	status := s.LoadStatus()
	if status.Failed() {
		s.notifier.Notify(notify.KindError, msgCatalogFailed)
	}
	if s.afterLoad != nil {
		s.afterLoad(ctx)
	}
	return status
}

// finish records the outcome of one slice and applies it under the lock
func (s *CatalogService) finish(ctx context.Context, slice string, err error, apply func()) {
	s.metrics.RecordCatalogLoad(ctx, slice, err == nil)

	s.mu.Lock()
	st := s.sliceStatusLocked(slice)
	if err != nil {
		st.Error = err.Error()
		s.mu.Unlock()
		s.logger.Warn("catalog load failed", slog.String("slice", slice), slog.String("error", err.Error()))
		return
	}
	apply()
	*st = SliceStatus{Loaded: true, LoadedAt: time.Now()}
	s.mu.Unlock()

	s.publisher.Publish(state.TopicCatalog)
}

func (s *CatalogService) sliceStatusLocked(slice string) *SliceStatus {
	switch slice {
	case SliceCategories:
		return &s.status.Categories
	case SliceProducts:
		return &s.status.Products
	default:
		return &s.status.Reviews
	}
}

// LoadStatus returns the outcome of the latest load of each slice
func (s *CatalogService) LoadStatus() LoadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetSearchTerm filters the view by a case-insensitive substring of name or description
func (s *CatalogService) SetSearchTerm(term string) {
	s.mu.Lock()
	s.filter.SearchTerm = term
	s.recomputeLocked()
	s.mu.Unlock()
	s.publisher.Publish(state.TopicFilter)
}

// SetCategoryFilter restricts the view to one category id, or "all"
func (s *CatalogService) SetCategoryFilter(categoryID string) {
	if categoryID == "" {
		categoryID = models.AllCategories
	}
	s.mu.Lock()
	s.filter.Category = categoryID
	s.recomputeLocked()
	s.mu.Unlock()
	s.publisher.Publish(state.TopicFilter)
}

// SetSortKey orders the view by name, newest or popular
func (s *CatalogService) SetSortKey(key string) error {
	k, err := models.ParseSortKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.filter.SortKey = k
	s.recomputeLocked()
	s.mu.Unlock()
	s.publisher.Publish(state.TopicFilter)
	return nil
}

// SetFilter replaces the whole filter state at once
func (s *CatalogService) SetFilter(f models.FilterState) error {
	k, err := models.ParseSortKey(string(f.SortKey))
	if err != nil {
		return err
	}
	f.SortKey = k
	if f.Category == "" {
		f.Category = models.AllCategories
	}
	s.mu.Lock()
	s.filter = f
	s.recomputeLocked()
	s.mu.Unlock()
	s.publisher.Publish(state.TopicFilter)
	return nil
}

// Filter returns the current filter state
func (s *CatalogService) Filter() models.FilterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// VisibleProducts returns the derived product view
func (s *CatalogService) VisibleProducts() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.visible)
}

// Categories returns the loaded categories
func (s *CatalogService) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories)
}

// Products returns the full product set, unfiltered
func (s *CatalogService) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.products)
}

// Reviews returns the loaded reviews
func (s *CatalogService) Reviews() []models.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.reviews)
}

// Product looks a product up locally and falls back to the API
func (s *CatalogService) Product(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	for i := range s.products {
		if s.products[i].ID == id {
			p := s.products[i]
			s.mu.RUnlock()
			return &p, nil
		}
	}
	s.mu.RUnlock()

	p, err := s.client.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Warn("product lookup failed", slog.String("product_id", id), slog.String("error", err.Error()))
		return nil, err
	}
	return p, nil
}

// recomputeLocked rebuilds the derived view. Callers hold mu.
func (s *CatalogService) recomputeLocked() {
	term := s.fold.String(s.filter.SearchTerm)

	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		if s.filter.Category != models.AllCategories && p.CategoryID != s.filter.Category {
			continue
		}
		if term != "" &&
			!strings.Contains(s.fold.String(p.Name), term) &&
			!strings.Contains(s.fold.String(p.Description), term) {
			continue
		}
		out = append(out, p)
	}

	switch s.filter.SortKey {
	case models.SortByNewest:
		slices.SortStableFunc(out, func(a, b models.Product) int {
			return b.CreatedAt.Compare(a.CreatedAt.Time)
		})
	case models.SortByPopular:
		// No popularity signal exists; the order is reshuffled on every recomputation
		s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	default:
		slices.SortStableFunc(out, func(a, b models.Product) int {
			return s.collator.CompareString(a.Name, b.Name)
		})
	}

	s.visible = out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
