// Package handler exposes the sale engine over HTTP with a jx codec.
package handler

import (
	"net/http"

	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the sale and catalog API.
type Handler struct {
	sales    *sale.Service
	products product.Repository
}

// New returns a Handler backed by the sale service and product catalog.
func New(sales *sale.Service, products product.Repository) *Handler {
	return &Handler{sales: sales, products: products}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sales", h.CreateSale)
	mux.HandleFunc("GET /api/sales/{id}", h.GetSale)
	mux.HandleFunc("PATCH /api/sales/{id}/status", h.TransitionStatus)
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
}
