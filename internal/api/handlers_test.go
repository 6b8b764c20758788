package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/estofados/storefront/internal/app"
	"github.com/estofados/storefront/internal/logger"
	"github.com/estofados/storefront/internal/models"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/storeapi/storeapitest"
	"github.com/estofados/storefront/internal/tokenstore"
	"github.com/estofados/storefront/pkg/config"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	srv    *storeapitest.Server
	core   *app.App
	router *mux.Router
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	srv := storeapitest.New(t)
	srv.AddUser("Ana", "ana@example.com", "secret", "21 98888-0000")
	cfg := &config.Config{
		StoreAPIURL:     srv.BaseURL(),
		StoreAPITimeout: 5 * time.Second,
		AuthVerifyPath:  "/auth/me",
		WhatsAppNumber:  "5521999999999",
		StoreName:       "Estofados Premium Outlet",
	}
	core := app.New(cfg, tokenstore.NewMemoryStore(), nil, logger.Discard())
	router := mux.NewRouter()
	NewApp(core).SetupRoutes(router)
	return &gateway{srv: srv, core: core, router: router}
}

func (g *gateway) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (g *gateway) login(t *testing.T) {
	t.Helper()
	rec := g.do(t, http.MethodPost, "/api/v1/session/login", `{"email":"ana@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	g := newGateway(t)
	rec := g.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPreflightReachesCORS(t *testing.T) {
	g := newGateway(t)

	for _, tc := range []struct{ path, method string }{
		{"/api/v1/filters", http.MethodPut},
		{"/api/v1/cart/items", http.MethodPost},
		{"/api/v1/cart/items/p-sofa-verde", http.MethodDelete},
		{"/api/v1/session/login", http.MethodPost},
	} {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, tc.path, nil)
			req.Header.Set("Origin", "http://localhost:5173")
			req.Header.Set("Access-Control-Request-Method", tc.method)
			rec := httptest.NewRecorder()
			g.router.ServeHTTP(rec, req)

			assert.Less(t, rec.Code, 300)
			assert.GreaterOrEqual(t, rec.Code, 200)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), tc.method)
		})
	}

	rec := g.do(t, http.MethodGet, "/api/v1/filters", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogin(t *testing.T) {
	g := newGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/session/login", `{"email":"ana@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	failed := decode[actionResponse](t, rec)
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Notice)
	assert.Equal(t, "Incorrect email or password", failed.Notice.Message)

	rec = g.do(t, http.MethodPost, "/api/v1/session/login", `{"email":"ana@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	ok := decode[actionResponse](t, rec)
	assert.True(t, ok.Success)
	require.NotNil(t, ok.Session.User)
	assert.Equal(t, "Ana", ok.Session.User.Name)
	assert.NotContains(t, rec.Body.String(), "access_token")

	rec = g.do(t, http.MethodGet, "/api/v1/session", "")
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)
}

func TestLogin_BadBody(t *testing.T) {
	g := newGateway(t)
	rec := g.do(t, http.MethodPost, "/api/v1/session/login", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterAndLogout(t *testing.T) {
	g := newGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/session/register", `{"name":"Bruno","email":"bruno@example.com","password":"pw","phone":"21"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	registered := decode[actionResponse](t, rec)
	require.NotNil(t, registered.Notice)
	assert.Equal(t, "Cadastro realizado com sucesso!", registered.Notice.Message)

	g.core.Notices.Notify(notify.KindInfo, "unrelated")

	rec = g.do(t, http.MethodPost, "/api/v1/session/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[actionResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Session.User)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, notify.KindSuccess, resp.Notice.Kind)
	assert.Equal(t, "Logout realizado com sucesso", resp.Notice.Message)
	assert.False(t, g.core.Session.Authenticated())
}

func TestCartRequiresSession(t *testing.T) {
	g := newGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p-sofa-verde","quantity":1}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, g.srv.Calls("POST /cart/add"))

	rec = g.do(t, http.MethodPost, "/api/v1/cart/items", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartAddAndRemove(t *testing.T) {
	g := newGateway(t)
	g.login(t)

	rec := g.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p-sofa-verde","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decode[models.Cart](t, rec)
	require.Len(t, cart.Items, 1)
	assert.InDelta(t, 4999.80, cart.Total, 0.001)

	rec = g.do(t, http.MethodGet, "/api/v1/cart", "")
	assert.Equal(t, cart, decode[models.Cart](t, rec))

	rec = g.do(t, http.MethodDelete, "/api/v1/cart/items/p-sofa-verde", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Cart](t, rec).Items)

	g.srv.Fail("GET /cart", http.StatusServiceUnavailable, "maintenance")
	rec = g.do(t, http.MethodPost, "/api/v1/cart/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	g := newGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/catalog/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loaded":true`)

	assert.Len(t, decode[[]models.Product](t, g.do(t, http.MethodGet, "/api/v1/products", "")), 3)
	assert.Len(t, decode[[]models.Category](t, g.do(t, http.MethodGet, "/api/v1/categories", "")), 2)
	assert.Len(t, decode[[]models.Review](t, g.do(t, http.MethodGet, "/api/v1/reviews", "")), 1)

	rec = g.do(t, http.MethodPut, "/api/v1/filters", `{"search_term":"verde"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Product](t, g.do(t, http.MethodGet, "/api/v1/products", "")), 1)

	filter := decode[models.FilterState](t, g.do(t, http.MethodGet, "/api/v1/filters", ""))
	assert.Equal(t, models.FilterState{SearchTerm: "verde", Category: models.AllCategories, SortKey: models.SortByName}, filter)

	rec = g.do(t, http.MethodPut, "/api/v1/filters", `{"sort_key":"price"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/products/p-poltrona-couro", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Poltrona Couro Marrom", decode[models.Product](t, rec).Name)

	rec = g.do(t, http.MethodGet, "/api/v1/products/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutRoutes(t *testing.T) {
	g := newGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/checkout/cart", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	g.login(t)
	g.do(t, http.MethodPost, "/api/v1/cart/items", `{"product_id":"p-sofa-verde"}`)

	rec = g.do(t, http.MethodGet, "/api/v1/checkout/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	link := decode[map[string]string](t, rec)["url"]
	assert.True(t, strings.HasPrefix(link, "https://wa.me/5521999999999?text="))

	rec = g.do(t, http.MethodGet, "/api/v1/checkout/products/p-sofa-branco", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["url"], "Sof%C3%A1%20Branco%20Clean")
}

func TestNotifications(t *testing.T) {
	g := newGateway(t)
	g.login(t)

	notices := decode[[]notify.Notice](t, g.do(t, http.MethodGet, "/api/v1/notifications?drain=true", ""))
	require.NotEmpty(t, notices)
	assert.Equal(t, notify.KindSuccess, notices[len(notices)-1].Kind)

	assert.Empty(t, decode[[]notify.Notice](t, g.do(t, http.MethodGet, "/api/v1/notifications", "")))
}

func TestState(t *testing.T) {
	g := newGateway(t)
	g.core.Bootstrap(context.Background())

	st := decode[app.State](t, g.do(t, http.MethodGet, "/api/v1/state", ""))
	assert.Len(t, st.Products, 3)
	assert.Equal(t, models.DefaultFilter(), st.Filter)
	assert.Empty(t, st.Cart.Items)
}

func TestEventsStream(t *testing.T) {
	g := newGateway(t)
	server := httptest.NewServer(g.router)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "" && event != "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, data := readEvent()
	assert.Equal(t, "state", event)
	assert.Contains(t, data, `"filter"`)

	g.core.Catalog.SetSearchTerm("sofa")

	event, data = readEvent()
	assert.Equal(t, "change", event)
	assert.Contains(t, data, `"topic":"filter"`)
}
