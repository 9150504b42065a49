// Package storefront provides typed access to the catalog, cart and order endpoints.
// Every call goes through the authenticated pipeline in package api.
package storefront

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/florianilch/storefront/internal/api"
)

// ErrAdminRequired is returned before calling admin endpoints without an admin session.
var ErrAdminRequired = errors.New("admin access required")

// Client groups the storefront resources.
type Client struct {
	Products   *ProductService
	Categories *CategoryService
	Cart       *CartService
	Orders     *OrderService
}

// New creates a Client on top of an api.Client.
func New(c *api.Client) *Client {
	return &Client{
		Products:   &ProductService{api: c},
		Categories: &CategoryService{api: c},
		Cart:       &CartService{api: c},
		Orders:     &OrderService{api: c},
	}
}

func get(path string, query url.Values) api.Request {
	return api.Request{Method: http.MethodGet, Path: path, Query: query}
}

// ProductService reads the catalog and manages products for admins.
type ProductService struct {
	api *api.Client
}

// List returns one page of products.
func (s *ProductService) List(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	page, err := api.Call[ProductPage](ctx, s.api, get("/products", q.values()))
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns a single product.
func (s *ProductService) Get(ctx context.Context, id string) (*Product, error) {
	product, err := api.Call[Product](ctx, s.api, get("/products/"+url.PathEscape(id), nil))
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Create adds a product. Admin only.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	product, err := api.Call[Product](ctx, s.api, api.Request{
		Method:   http.MethodPost,
		Path:     "/products",
		Body:     in,
		ReturnTo: "/admin/products",
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Update replaces a product's attributes. Admin only.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}
	product, err := api.Call[Product](ctx, s.api, api.Request{
		Method:   http.MethodPut,
		Path:     "/products/" + url.PathEscape(id),
		Body:     in,
		ReturnTo: "/admin/products",
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Delete removes a product. Admin only.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	return s.api.Do(ctx, api.Request{
		Method:   http.MethodDelete,
		Path:     "/products/" + url.PathEscape(id),
		ReturnTo: "/admin/products",
	}, nil)
}

// Import uploads a product file (CSV or JSON) for bulk creation. Admin only.
// The file is buffered so it can be replayed if the token has to be refreshed.
func (s *ProductService) Import(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	if err := s.requireAdmin(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("creating upload: %w", err)
	}

	result, err := api.Call[ImportResult](ctx, s.api, api.Request{
		Method:      http.MethodPost,
		Path:        "/products/upload",
		RawBody:     buf.Bytes(),
		ContentType: mw.FormDataContentType(),
		ReturnTo:    "/admin/products",
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ProductService) requireAdmin() error {
	if !s.api.Session().User().IsAdmin() {
		return ErrAdminRequired
	}
	return nil
}

// CategoryService reads product categories.
type CategoryService struct {
	api *api.Client
}

// List returns all categories.
func (s *CategoryService) List(ctx context.Context) ([]Category, error) {
	return api.Call[[]Category](ctx, s.api, get("/categories", nil))
}

// CartService manages the authenticated user's cart.
type CartService struct {
	api *api.Client
}

type cartItemRequest struct {
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Get returns the current cart.
func (s *CartService) Get(ctx context.Context) (*Cart, error) {
	return s.call(ctx, api.Request{Method: http.MethodGet, Path: "/cart"})
}

// AddItem adds quantity units of a product to the cart.
func (s *CartService) AddItem(ctx context.Context, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	return s.call(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/cart/items",
		Body:   cartItemRequest{ProductID: productID, Quantity: quantity},
	})
}

// UpdateItem sets the quantity of a cart line.
func (s *CartService) UpdateItem(ctx context.Context, itemID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	return s.call(ctx, api.Request{
		Method: http.MethodPut,
		Path:   "/cart/items/" + url.PathEscape(itemID),
		Body:   cartItemRequest{Quantity: quantity},
	})
}

// RemoveItem deletes a cart line.
func (s *CartService) RemoveItem(ctx context.Context, itemID string) (*Cart, error) {
	return s.call(ctx, api.Request{
		Method: http.MethodDelete,
		Path:   "/cart/items/" + url.PathEscape(itemID),
	})
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context) error {
	return s.api.Do(ctx, api.Request{Method: http.MethodDelete, Path: "/cart", ReturnTo: "/cart"}, nil)
}

func (s *CartService) call(ctx context.Context, req api.Request) (*Cart, error) {
	req.ReturnTo = "/cart"
	cart, err := api.Call[Cart](ctx, s.api, req)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// OrderService places and lists orders.
type OrderService struct {
	api *api.Client
}

// Create places an order.
func (s *OrderService) Create(ctx context.Context, in CreateOrder) (*Order, error) {
	if in.AddressID == "" {
		return nil, errors.New("address is required")
	}
	if len(in.Items) == 0 {
		return nil, errors.New("order has no items")
	}
	order, err := api.Call[Order](ctx, s.api, api.Request{
		Method:   http.MethodPost,
		Path:     "/orders",
		Body:     in,
		ReturnTo: "/checkout",
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns the user's orders.
func (s *OrderService) List(ctx context.Context) ([]Order, error) {
	req := get("/orders", nil)
	req.ReturnTo = "/orders"
	return api.Call[[]Order](ctx, s.api, req)
}

// Get returns a single order.
func (s *OrderService) Get(ctx context.Context, id string) (*Order, error) {
	req := get("/orders/"+url.PathEscape(id), nil)
	req.ReturnTo = "/orders"
	order, err := api.Call[Order](ctx, s.api, req)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
