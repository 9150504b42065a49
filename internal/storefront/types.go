package storefront

import (
	"net/url"
	"strconv"
	"time"
)

// Category groups products in the catalog.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

// Product is a catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Category    *Category `json:"category,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// ProductInput is the admin payload for creating or updating a product.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	CategoryID  string  `json:"categoryId,omitempty"`
}

// Pagination describes the position of a page within a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

// ProductQuery filters a product listing. Zero values are omitted.
type ProductQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

// ImportResult summarizes a bulk product upload.
type ImportResult struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// CartItem is a product line in the cart.
type CartItem struct {
	ID        string   `json:"id"`
	ProductID string   `json:"productId"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// Cart is the authenticated user's shopping cart.
type Cart struct {
	ID    string     `json:"id,omitempty"`
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

// OrderItem is a product line in an order, priced at checkout.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
}

// Order is a placed order.
type Order struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Total     float64     `json:"total"`
	AddressID string      `json:"addressId,omitempty"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt,omitzero"`
}

// CreateOrder is the checkout payload.
type CreateOrder struct {
	AddressID string      `json:"addressId"`
	Items     []OrderItem `json:"items"`
}
