package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/auth"
	"github.com/florianilch/storefront/internal/credstore"
	"github.com/florianilch/storefront/internal/session"
	"github.com/florianilch/storefront/internal/storefront"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock   *clock
	server  *Server
	srv     *httptest.Server
	session *session.Session
	auth    *auth.Service
	shop    *storefront.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: &clock{now: time.Now()}}

	var err error
	h.server, err = New(Config{
		JWTSecret:     []byte("test-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		AdminEmail:    "admin@shop.test",
		AdminPassword: "admin-pass",
		Now:           h.clock.Now,
	})
	require.NoError(t, err)

	h.srv = httptest.NewServer(h.server)
	t.Cleanup(h.srv.Close)

	h.session = session.New(credstore.NewMemoryStore(nil))
	h.session.Load(context.Background())

	client, err := api.New(h.srv.URL, h.session, api.WithHTTPClient(h.srv.Client()))
	require.NoError(t, err)
	h.auth, err = auth.NewService(client, h.session)
	require.NoError(t, err)
	h.shop = storefront.New(client)
	return h
}

func (h *harness) post(t *testing.T, path, body string) (int, api.Envelope) {
	t.Helper()
	resp, err := h.srv.Client().Post(h.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env api.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRegisterLoginAndProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.auth.Register(ctx, auth.Registration{Name: "Ada", Email: "ada@shop.test", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "ada@shop.test", user.Email)
	require.Equal(t, "USER", user.Role)

	claims, err := h.session.Claims()
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, "ada@shop.test", claims.Email)

	h.auth.Logout(ctx)
	require.False(t, h.session.IsAuthenticated())

	_, err = h.auth.Login(ctx, auth.Credentials{Email: "ada@shop.test", Password: "wrong"})
	require.EqualError(t, err, "Invalid credentials")

	_, err = h.auth.Login(ctx, auth.Credentials{Email: "ADA@shop.test", Password: "secret1"})
	require.NoError(t, err)

	profile, err := h.auth.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ada", profile.Name)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{name: "missing email", body: `{"name":"A","password":"secret1"}`, status: http.StatusBadRequest, message: "email is required"},
		{name: "bad email", body: `{"name":"A","email":"nope","password":"secret1"}`, status: http.StatusBadRequest, message: "email must be a valid email address"},
		{name: "short password", body: `{"name":"A","email":"a@b.test","password":"x"}`, status: http.StatusBadRequest, message: "password must be at least 6"},
		{name: "malformed", body: `{`, status: http.StatusBadRequest, message: "invalid JSON body"},
		{name: "taken", body: `{"name":"A","email":"admin@shop.test","password":"secret1"}`, status: http.StatusConflict, message: "Email already registered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := h.post(t, "/auth/register", tt.body)
			require.Equal(t, tt.status, status)
			require.False(t, env.Success)
			require.Equal(t, tt.message, env.Error)
		})
	}
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	h := newHarness(t)

	status, env := h.post(t, "/auth/login", `{"email":"admin@shop.test","password":"admin-pass"}`)
	require.Equal(t, http.StatusOK, status)
	var pair api.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	require.Len(t, pair.RefreshToken, 64)

	body := `{"refreshToken":"` + pair.RefreshToken + `"}`
	status, env = h.post(t, "/auth/refresh", body)
	require.Equal(t, http.StatusOK, status)
	var rotated api.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	status, env = h.post(t, "/auth/refresh", body)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid refresh token", env.Error)
}

func TestExpiredAccessTokenIsRefreshed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, auth.Registration{Name: "Ada", Email: "ada@shop.test", Password: "secret1"})
	require.NoError(t, err)
	before := h.session.Credential()

	h.clock.Advance(2 * time.Minute)

	cart, err := h.shop.Cart.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, cart.Items)

	after := h.session.Credential()
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.NotEqual(t, before.RefreshToken, after.RefreshToken)
	require.True(t, h.session.IsAuthenticated())
}

func TestExpiredRefreshTokenEndsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Login(ctx, auth.Credentials{Email: "admin@shop.test", Password: "admin-pass"})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	_, err = h.shop.Orders.List(ctx)
	require.ErrorIs(t, err, api.ErrSessionExpired)
	require.False(t, h.session.IsAuthenticated())
}

func TestCatalogListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	categories, err := h.shop.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)

	page, err := h.shop.Products.List(ctx, storefront.ProductQuery{Category: "kitchen"})
	require.NoError(t, err)
	require.Equal(t, 2, page.Pagination.Total)
	for _, p := range page.Products {
		require.Equal(t, "kitchen", p.Category.Slug)
	}

	page, err = h.shop.Products.List(ctx, storefront.ProductQuery{Search: "LAMP"})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	require.Equal(t, "Desk Lamp", page.Products[0].Name)

	page, err = h.shop.Products.List(ctx, storefront.ProductQuery{Page: 2, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	require.Equal(t, 2, page.Pagination.TotalPages)

	got, err := h.shop.Products.Get(ctx, page.Products[0].ID)
	require.NoError(t, err)
	require.Equal(t, page.Products[0].ID, got.ID)

	_, err = h.shop.Products.Get(ctx, "missing")
	require.EqualError(t, err, "Product not found")
}

func TestAdminProductManagement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Login(ctx, auth.Credentials{Email: "admin@shop.test", Password: "admin-pass"})
	require.NoError(t, err)

	created, err := h.shop.Products.Create(ctx, storefront.ProductInput{Name: "Teapot", Price: 30, Stock: 5})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := h.shop.Products.Update(ctx, created.ID, storefront.ProductInput{Name: "Teapot", Price: 28, Stock: 5})
	require.NoError(t, err)
	require.Equal(t, 28.0, updated.Price)

	_, err = h.shop.Products.Create(ctx, storefront.ProductInput{Name: "Free", Price: 0})
	require.EqualError(t, err, "price is invalid")

	result, err := h.shop.Products.Import(ctx, "products.csv",
		strings.NewReader("name,price,stock\nKettle,40,3\n,5,1\nSpoon,2,100\n"))
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, []string{"row 2: name is required"}, result.Errors)

	require.NoError(t, h.shop.Products.Delete(ctx, created.ID))
	_, err = h.shop.Products.Get(ctx, created.ID)
	require.EqualError(t, err, "Product not found")
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, auth.Registration{Name: "Ada", Email: "ada@shop.test", Password: "secret1"})
	require.NoError(t, err)

	// Bypass the client-side role check to reach the server
	client, err := api.New(h.srv.URL, h.session, api.WithHTTPClient(h.srv.Client()))
	require.NoError(t, err)
	err = client.Do(ctx, api.Request{Method: http.MethodPost, Path: "/products", Body: storefront.ProductInput{Name: "x", Price: 1}}, nil)
	require.EqualError(t, err, "Admin access required")

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestCartAndCheckout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, auth.Registration{Name: "Ada", Email: "ada@shop.test", Password: "secret1"})
	require.NoError(t, err)

	page, err := h.shop.Products.List(ctx, storefront.ProductQuery{Search: "mug"})
	require.NoError(t, err)
	mug := page.Products[0]

	cart, err := h.shop.Cart.AddItem(ctx, mug.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 25.0, cart.Total)

	cart, err = h.shop.Cart.UpdateItem(ctx, cart.Items[0].ID, 3)
	require.NoError(t, err)
	require.Equal(t, 37.5, cart.Total)

	_, err = h.shop.Cart.AddItem(ctx, mug.ID, 1000)
	require.EqualError(t, err, "Insufficient stock")

	order, err := h.shop.Orders.Create(ctx, storefront.CreateOrder{
		AddressID: "home",
		Items:     []storefront.OrderItem{{ProductID: mug.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, "PENDING", order.Status)
	require.Equal(t, 37.5, order.Total)

	cart, err = h.shop.Cart.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, cart.Items)

	after, err := h.shop.Products.Get(ctx, mug.ID)
	require.NoError(t, err)
	require.Equal(t, mug.Stock-3, after.Stock)

	orders, err := h.shop.Orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	got, err := h.shop.Orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, got.ID)
}

func TestRejectedAddLeavesCartUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, auth.Registration{Name: "Ada", Email: "ada@shop.test", Password: "secret1"})
	require.NoError(t, err)

	page, err := h.shop.Products.List(ctx, storefront.ProductQuery{Search: "knife"})
	require.NoError(t, err)
	knife := page.Products[0]

	_, err = h.shop.Cart.AddItem(ctx, knife.ID, knife.Stock+1)
	require.EqualError(t, err, "Insufficient stock")

	cart, err := h.shop.Cart.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, cart.Items)

	_, err = h.shop.Cart.AddItem(ctx, knife.ID, knife.Stock)
	require.NoError(t, err)
	_, err = h.shop.Cart.AddItem(ctx, knife.ID, 1)
	require.EqualError(t, err, "Insufficient stock")

	cart, err = h.shop.Cart.Get(ctx)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, knife.Stock, cart.Items[0].Quantity)
}

func TestPageBeyondLastIsEmpty(t *testing.T) {
	h := newHarness(t)

	for _, page := range []string{"3", "9223372036854775807"} {
		t.Run(page, func(t *testing.T) {
			resp, err := h.srv.Client().Get(h.srv.URL + "/products?limit=50&page=" + page)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var env api.Envelope
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
			var got storefront.ProductPage
			require.NoError(t, json.Unmarshal(env.Data, &got))
			require.Empty(t, got.Products)
			require.Equal(t, 4, got.Pagination.Total)
		})
	}
}

func TestExpiredRefreshGrantsArePruned(t *testing.T) {
	c := &clock{now: time.Now()}
	issuer := newTokenIssuer([]byte("test-secret"), time.Minute, time.Hour, c.Now)
	user := session.User{ID: "u1", Email: "ada@shop.test"}

	first, err := issuer.issue(user)
	require.NoError(t, err)
	_, err = issuer.issue(user)
	require.NoError(t, err)

	c.Advance(2 * time.Hour)
	latest, err := issuer.issue(user)
	require.NoError(t, err)

	issuer.mu.Lock()
	require.Len(t, issuer.refresh, 1)
	_, ok := issuer.refresh[latest.RefreshToken]
	issuer.mu.Unlock()
	require.True(t, ok)

	_, err = issuer.redeem(first.RefreshToken)
	require.ErrorIs(t, err, errInvalidRefreshToken)
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env api.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
}

func TestStartAndShutdown(t *testing.T) {
	s, err := New(Config{JWTSecret: []byte("k")})
	require.NoError(t, err)

	errCh, err := s.Start(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, open := <-errCh
	require.False(t, open)
}
