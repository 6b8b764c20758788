package services

import (
	"context"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}

func product(id, name, category string, created time.Time) models.Product {
	return models.Product{ID: id, Name: name, CategoryID: category, CreatedAt: models.Timestamp{Time: created}}
}

func TestCatalog_LoadAllPopulatesEverySlice(t *testing.T) {
	f := newFixture(t)

	status := f.catalog.LoadAll(context.Background())

	assert.False(t, status.Failed())
	assert.True(t, status.Categories.Loaded)
	assert.Len(t, f.catalog.Categories(), 2)
	assert.Len(t, f.catalog.Products(), 3)
	assert.Len(t, f.catalog.Reviews(), 1)
	assert.Zero(t, f.notices.Count(notify.KindError))
}

func TestCatalog_EmptyFilterShowsEverythingByName(t *testing.T) {
	f := newFixture(t)
	f.catalog.LoadAll(context.Background())

	assert.Equal(t, models.DefaultFilter(), f.catalog.Filter())
	assert.Equal(t,
		[]string{"Poltrona Couro Marrom", "Sofá Branco Clean", "Sofá Moderno Verde"},
		names(f.catalog.VisibleProducts()))
}

func TestCatalog_SearchIsCaseInsensitiveOnNameOrDescription(t *testing.T) {
	f := newFixture(t)
	f.srv.SetProducts([]models.Product{
		{ID: "1", Name: "Sofa A", Description: "three seats"},
		{ID: "2", Name: "Chair B", Description: "leather"},
		{ID: "3", Name: "Bench C", Description: "fits next to any SOFA"},
	})
	f.catalog.LoadAll(context.Background())

	f.catalog.SetSearchTerm("sofa")
	assert.Equal(t, []string{"Bench C", "Sofa A"}, names(f.catalog.VisibleProducts()))

	f.catalog.SetSearchTerm("CHAIR")
	assert.Equal(t, []string{"Chair B"}, names(f.catalog.VisibleProducts()))

	f.catalog.SetSearchTerm("")
	assert.Len(t, f.catalog.VisibleProducts(), 3)
}

func TestCatalog_SearchFoldsAccentedCapitals(t *testing.T) {
	f := newFixture(t)
	f.catalog.LoadAll(context.Background())

	f.catalog.SetSearchTerm("SOFÁ")
	assert.Equal(t, []string{"Sofá Branco Clean", "Sofá Moderno Verde"}, names(f.catalog.VisibleProducts()))
}

func TestCatalog_CategoryFilter(t *testing.T) {
	f := newFixture(t)
	f.catalog.LoadAll(context.Background())

	f.catalog.SetCategoryFilter("cat-poltronas")
	assert.Equal(t, []string{"Poltrona Couro Marrom"}, names(f.catalog.VisibleProducts()))

	f.catalog.SetCategoryFilter(models.AllCategories)
	assert.Len(t, f.catalog.VisibleProducts(), 3)

	f.catalog.SetCategoryFilter("")
	assert.Equal(t, models.AllCategories, f.catalog.Filter().Category)
}

func TestCatalog_SortByName(t *testing.T) {
	f := newFixture(t)
	f.srv.SetProducts([]models.Product{{ID: "z", Name: "Zeta"}, {ID: "a", Name: "Alpha"}, {ID: "r", Name: "Árvore"}})
	f.catalog.LoadAll(context.Background())

	require.NoError(t, f.catalog.SetSortKey("name"))
	assert.Equal(t, []string{"Alpha", "Árvore", "Zeta"}, names(f.catalog.VisibleProducts()))
}

func TestCatalog_SortByNewest(t *testing.T) {
	f := newFixture(t)
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	f.srv.SetProducts([]models.Product{product("old", "Old", "c", t1), product("new", "New", "c", t2)})
	f.catalog.LoadAll(context.Background())

	require.NoError(t, f.catalog.SetSortKey("newest"))
	assert.Equal(t, []string{"New", "Old"}, names(f.catalog.VisibleProducts()))
}

func TestCatalog_SortByPopularIsAPermutation(t *testing.T) {
	f := newFixture(t, WithRand(rand.New(rand.NewPCG(1, 2))))
	f.catalog.LoadAll(context.Background())
	all := names(f.catalog.Products())

	require.NoError(t, f.catalog.SetSortKey("popular"))
	assert.ElementsMatch(t, all, names(f.catalog.VisibleProducts()))
	assert.Equal(t, models.SortByPopular, f.catalog.Filter().SortKey)
}

func TestCatalog_RejectsUnknownSortKey(t *testing.T) {
	f := newFixture(t)

	err := f.catalog.SetSortKey("price")
	assert.ErrorIs(t, err, models.ErrInvalidSortKey)
	assert.Equal(t, models.SortByName, f.catalog.Filter().SortKey)

	err = f.catalog.SetFilter(models.FilterState{SortKey: "cheapest"})
	assert.ErrorIs(t, err, models.ErrInvalidSortKey)
}

func TestCatalog_SetFilter(t *testing.T) {
	f := newFixture(t)
	f.catalog.LoadAll(context.Background())

	require.NoError(t, f.catalog.SetFilter(models.FilterState{SearchTerm: "verde", SortKey: models.SortByNewest}))
	assert.Equal(t, models.AllCategories, f.catalog.Filter().Category)
	assert.Equal(t, []string{"Sofá Moderno Verde"}, names(f.catalog.VisibleProducts()))
}

func TestCatalog_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail("GET /reviews", http.StatusInternalServerError, "down")

	var status LoadStatus
	require.NotPanics(t, func() { status = f.catalog.LoadAll(context.Background()) })

	assert.Len(t, f.catalog.Categories(), 2)
	assert.Len(t, f.catalog.Products(), 3)
	assert.Empty(t, f.catalog.Reviews())
	assert.True(t, status.Failed())
	assert.NotEmpty(t, status.Reviews.Error)
	assert.Empty(t, status.Products.Error)
	assert.Equal(t, 1, f.notices.Count(notify.KindError))

	f.srv.Recover("GET /reviews")
	status = f.catalog.LoadAll(context.Background())
	assert.False(t, status.Failed())
	assert.Len(t, f.catalog.Reviews(), 1)
}

func TestCatalog_FailedReloadKeepsPreviousSlice(t *testing.T) {
	f := newFixture(t)
	f.catalog.LoadAll(context.Background())

	f.srv.Fail("GET /products", http.StatusBadGateway, "")
	status := f.catalog.LoadAll(context.Background())

	assert.NotEmpty(t, status.Products.Error)
	assert.Len(t, f.catalog.Products(), 3)
	assert.Len(t, f.catalog.VisibleProducts(), 3)
}

func TestCatalog_AfterLoadHookRunsAfterJoin(t *testing.T) {
	var seen int
	var f *fixture
	f = newFixture(t, WithAfterLoad(func(context.Context) {
		seen = len(f.catalog.Products())
	}))

	f.catalog.LoadAll(context.Background())
	assert.Equal(t, 3, seen)
}

func TestCatalog_ProductLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.catalog.Product(ctx, "p-sofa-verde")
	require.NoError(t, err)
	assert.Equal(t, "Sofá Moderno Verde", p.Name)
	assert.Equal(t, 1, f.srv.Calls("GET /products/{id}"))

	f.catalog.LoadAll(ctx)
	_, err = f.catalog.Product(ctx, "p-sofa-verde")
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.Calls("GET /products/{id}"), "loaded products are served locally")

	_, err = f.catalog.Product(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
