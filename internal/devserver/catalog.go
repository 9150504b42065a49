package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/florianilch/storefront/internal/storefront"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

type productRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gt=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	ImageURL    string  `json:"imageUrl" validate:"omitempty,url"`
	CategoryID  string  `json:"categoryId"`
}

func (p productRequest) input() storefront.ProductInput {
	return storefront.ProductInput(p)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeData(r.Context(), w, s.store.listCategories(), http.StatusOK)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := positiveInt(query.Get("page"), 1)
	if err != nil {
		writeError(ctx, w, "page must be a positive integer", http.StatusBadRequest)
		return
	}
	limit, err := positiveInt(query.Get("limit"), defaultPageSize)
	if err != nil {
		writeError(ctx, w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}

	writeData(ctx, w, s.store.listProducts(storefront.ProductQuery{
		Page:     page,
		Limit:    min(limit, maxPageSize),
		Category: query.Get("category"),
		Search:   query.Get("search"),
	}), http.StatusOK)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.store.product(r.PathValue("id"))
	if !ok {
		writeError(r.Context(), w, "Product not found", http.StatusNotFound)
		return
	}
	writeData(r.Context(), w, p, http.StatusOK)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	s.saveProduct(w, r, "", http.StatusCreated)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	s.saveProduct(w, r, r.PathValue("id"), http.StatusOK)
}

func (s *Server) saveProduct(w http.ResponseWriter, r *http.Request, id string, status int) {
	ctx := r.Context()

	var req productRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := s.store.saveProduct(id, req.input())
	if errors.Is(err, errNotFound) {
		writeError(ctx, w, "Product not found", http.StatusNotFound)
		return
	}
	writeData(ctx, w, p, status)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.store.deleteProduct(r.PathValue("id")); err != nil {
		writeError(r.Context(), w, "Product not found", http.StatusNotFound)
		return
	}
	writeData(r.Context(), w, nil, http.StatusOK)
}

func positiveInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
