package devserver

import (
	"errors"
	"net/http"

	"github.com/florianilch/storefront/internal/storefront"
)

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

type orderLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type orderRequest struct {
	AddressID string      `json:"addressId" validate:"required"`
	Items     []orderLine `json:"items" validate:"required,min=1,dive"`
}

// writeStoreError maps store errors to responses. what names the missing resource.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(r.Context(), w, what+" not found", http.StatusNotFound)
	case errors.Is(err, errInsufficientStock):
		writeError(r.Context(), w, "Insufficient stock", http.StatusConflict)
	default:
		writeError(r.Context(), w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func userID(r *http.Request) string {
	return claimsFrom(r.Context()).Subject
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	writeData(r.Context(), w, s.store.cart(userID(r)), http.StatusOK)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	s.store.clearCart(userID(r))
	writeData(r.Context(), w, nil, http.StatusOK)
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}

	cart, err := s.store.addCartItem(userID(r), req.ProductID, req.Quantity)
	if err != nil {
		writeStoreError(w, r, err, "Product")
		return
	}
	writeData(r.Context(), w, cart, http.StatusOK)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}

	cart, err := s.store.updateCartItem(userID(r), r.PathValue("id"), req.Quantity)
	if err != nil {
		writeStoreError(w, r, err, "Cart item")
		return
	}
	writeData(r.Context(), w, cart, http.StatusOK)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := s.store.removeCartItem(userID(r), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err, "Cart item")
		return
	}
	writeData(r.Context(), w, cart, http.StatusOK)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err.Error(), http.StatusBadRequest)
		return
	}

	in := storefront.CreateOrder{AddressID: req.AddressID}
	for _, line := range req.Items {
		in.Items = append(in.Items, storefront.OrderItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	order, err := s.store.placeOrder(userID(r), in)
	if err != nil {
		writeStoreError(w, r, err, "Product")
		return
	}
	writeData(r.Context(), w, order, http.StatusCreated)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	writeData(r.Context(), w, s.store.listOrders(userID(r)), http.StatusOK)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.store.order(userID(r), r.PathValue("id"))
	if !ok {
		writeError(r.Context(), w, "Order not found", http.StatusNotFound)
		return
	}
	writeData(r.Context(), w, order, http.StatusOK)
}
