package storefront

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/credstore"
	"github.com/florianilch/storefront/internal/session"
)

func respond(w http.ResponseWriter, status int, env map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func ok(w http.ResponseWriter, data any) {
	respond(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func newClient(t *testing.T, handler http.Handler, user *session.User) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	sess := session.New(credstore.NewMemoryStore(nil))
	sess.Load(ctx)
	if user != nil {
		require.NoError(t, sess.Set(ctx, user, "A", "R"))
	}

	c, err := api.New(srv.URL, sess, api.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return New(c)
}

func TestProductListQuery(t *testing.T) {
	var (
		mu    sync.Mutex
		query string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.RawQuery
		mu.Unlock()
		ok(w, map[string]any{
			"products":   []map[string]any{{"id": "p1", "name": "Mug", "price": 9.5, "stock": 3}},
			"pagination": map[string]int{"page": 2, "limit": 10, "total": 11, "totalPages": 2},
		})
	})
	c := newClient(t, mux, nil)

	page, err := c.Products.List(context.Background(), ProductQuery{Page: 2, Limit: 10, Search: "mug"})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	require.Equal(t, "Mug", page.Products[0].Name)
	require.Equal(t, 9.5, page.Products[0].Price)
	require.Equal(t, 2, page.Pagination.TotalPages)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "limit=10&page=2&search=mug", query)
}

func TestProductGetNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, map[string]any{"success": false, "error": "Product not found"})
	})
	c := newClient(t, mux, nil)

	_, err := c.Products.Get(context.Background(), "missing")
	require.EqualError(t, err, "Product not found")
	require.ErrorIs(t, err, api.ErrLogical)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	c := newClient(t, http.NotFoundHandler(), &session.User{ID: "u1", Role: "USER"})
	ctx := context.Background()

	_, err := c.Products.Create(ctx, ProductInput{Name: "x"})
	require.ErrorIs(t, err, ErrAdminRequired)
	require.ErrorIs(t, c.Products.Delete(ctx, "p1"), ErrAdminRequired)
	_, err = c.Products.Import(ctx, "products.csv", strings.NewReader("name\n"))
	require.ErrorIs(t, err, ErrAdminRequired)
}

func TestProductImportMultipart(t *testing.T) {
	var (
		mu       sync.Mutex
		filename string
		content  string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /products/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		mu.Lock()
		filename, content = header.Filename, string(data)
		mu.Unlock()
		ok(w, map[string]any{"created": 2, "failed": 0})
	})
	c := newClient(t, mux, &session.User{ID: "admin", Role: session.RoleAdmin})

	result, err := c.Products.Import(context.Background(), "products.csv", strings.NewReader("name,price\nMug,9.5\nCup,4\n"))
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "products.csv", filename)
	require.Equal(t, "name,price\nMug,9.5\nCup,4\n", content)
}

func TestCartOperations(t *testing.T) {
	var (
		mu    sync.Mutex
		items = map[string]int{}
	)
	cart := func() map[string]any {
		list := []map[string]any{}
		for id, qty := range items {
			list = append(list, map[string]any{"id": "i-" + id, "productId": id, "quantity": qty})
		}
		return map[string]any{"items": list, "total": 0}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		ok(w, cart())
	})
	mux.HandleFunc("POST /cart/items", func(w http.ResponseWriter, r *http.Request) {
		var req cartItemRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		defer mu.Unlock()
		items[req.ProductID] += req.Quantity
		ok(w, cart())
	})
	mux.HandleFunc("PUT /cart/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req cartItemRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		defer mu.Unlock()
		items[strings.TrimPrefix(r.PathValue("id"), "i-")] = req.Quantity
		ok(w, cart())
	})
	mux.HandleFunc("DELETE /cart", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		clear(items)
		ok(w, nil)
	})
	c := newClient(t, mux, &session.User{ID: "u1"})
	ctx := context.Background()

	got, err := c.Cart.AddItem(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, 2, got.Items[0].Quantity)

	got, err = c.Cart.UpdateItem(ctx, "i-p1", 5)
	require.NoError(t, err)
	require.Equal(t, 5, got.Items[0].Quantity)

	_, err = c.Cart.AddItem(ctx, "p1", 0)
	require.Error(t, err)

	require.NoError(t, c.Cart.Clear(ctx))
	got, err = c.Cart.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, got.Items)
}

func TestCartExpiredSessionRedirectsToCart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Token expired"})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid refresh token"})
	})
	c := newClient(t, mux, &session.User{ID: "u1"})

	_, err := c.Cart.Get(context.Background())
	require.ErrorIs(t, err, api.ErrSessionExpired)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "/login?redirect=%2Fcart", apiErr.LoginURL)
}

func TestOrderCreateValidation(t *testing.T) {
	c := newClient(t, http.NotFoundHandler(), &session.User{ID: "u1"})
	ctx := context.Background()

	_, err := c.Orders.Create(ctx, CreateOrder{Items: []OrderItem{{ProductID: "p1", Quantity: 1}}})
	require.Error(t, err)
	_, err = c.Orders.Create(ctx, CreateOrder{AddressID: "a1"})
	require.Error(t, err)
}

func TestOrderCreate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var in CreateOrder
		_ = json.NewDecoder(r.Body).Decode(&in)
		respond(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{
			"id": "o1", "status": "PENDING", "total": 19, "addressId": in.AddressID, "items": in.Items,
		}})
	})
	c := newClient(t, mux, &session.User{ID: "u1"})

	order, err := c.Orders.Create(context.Background(), CreateOrder{
		AddressID: "a1",
		Items:     []OrderItem{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, "o1", order.ID)
	require.Equal(t, "a1", order.AddressID)
	require.Equal(t, []OrderItem{{ProductID: "p1", Quantity: 2}}, order.Items)
}

func TestCategoriesList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		ok(w, []map[string]string{{"id": "c1", "name": "Kitchen", "slug": "kitchen"}})
	})
	c := newClient(t, mux, nil)

	cats, err := c.Categories.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Category{{ID: "c1", Name: "Kitchen", Slug: "kitchen"}}, cats)
}

func TestIDsStayInOneSegment(t *testing.T) {
	var (
		mu   sync.Mutex
		ids  []string
		raws []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.PathValue("id"))
		raws = append(raws, r.URL.EscapedPath())
		mu.Unlock()
		ok(w, map[string]any{"id": r.PathValue("id"), "name": "x"})
	})
	mux.HandleFunc("GET /products/{id}/reviews", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusTeapot, map[string]any{"success": false, "error": "wrong route"})
	})
	c := newClient(t, mux, nil)

	product, err := c.Products.Get(context.Background(), "p1/reviews")
	require.NoError(t, err)
	require.Equal(t, "p1/reviews", product.ID)

	_, err = c.Products.Get(context.Background(), "mug cup")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"p1/reviews", "mug cup"}, ids)
	require.Equal(t, []string{"/products/p1%2Freviews", "/products/mug%20cup"}, raws)
}
