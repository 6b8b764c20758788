package services

import (
	"context"
	"testing"

	"github.com/estofados/storefront/internal/logger"
	"github.com/estofados/storefront/internal/notify"
	"github.com/estofados/storefront/internal/storeapi"
	"github.com/estofados/storefront/internal/storeapi/storeapitest"
	"github.com/estofados/storefront/internal/tokenstore"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "secret"
)

type fixture struct {
	srv     *storeapitest.Server
	client  *storeapi.Client
	store   *tokenstore.MemoryStore
	notices *notify.Recorder
	session *SessionService
	cart    *CartService
	catalog *CatalogService
}

func newFixture(t *testing.T, opts ...CatalogOption) *fixture {
	t.Helper()
	srv := storeapitest.New(t)
	log := logger.Discard()
	client := storeapi.New(srv.BaseURL(), storeapi.NewCredentials(), storeapi.WithLogger(log))
	rec := &notify.Recorder{}
	store := tokenstore.NewMemoryStore()

	cart := NewCartService(client, rec, nil, nil, log)
	session := NewSessionService(client, store, rec, nil, nil, log)
	session.BindCart(cart)

	return &fixture{
		srv:     srv,
		client:  client,
		store:   store,
		notices: rec,
		session: session,
		cart:    cart,
		catalog: NewCatalogService(client, rec, nil, nil, log, opts...),
	}
}

// login registers the test account on the fake and signs it in
func (f *fixture) login(t *testing.T) {
	t.Helper()
	f.srv.AddUser("Ana", testEmail, testPassword, "21 99999-0000")
	require.True(t, f.session.Login(context.Background(), testEmail, testPassword))
}
