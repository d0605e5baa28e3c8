// Package api implements the HTTP surface of the checkout service.
// Requests and responses are encoded by hand with go-faster/jx.
package api

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/retail-checkout/internal/checkout"
	"github.com/xenking/retail-checkout/internal/domain/product"
	"github.com/xenking/retail-checkout/internal/history"
)

// Handler serves the API routes, delegating business logic to the checkout
// engine and the domain repositories.
type Handler struct {
	products  product.Repository
	histories history.Repository
	engine    *checkout.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	histories history.Repository,
	engine *checkout.Service,
) *Handler {
	return &Handler{
		products:  products,
		histories: histories,
		engine:    engine,
	}
}

// Routes registers all API endpoints on the given mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/members/{id}/history", h.GetHistory)
}

// writeJSON sends the encoder's buffer with the given status code.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError sends a {"code": ..., "message": ...} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// internalError logs the error and sends an opaque 500.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
