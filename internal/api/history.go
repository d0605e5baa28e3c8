package api

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/retail-checkout/internal/history"
)

// GetHistory returns the member's purchase history with its merged orders.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member id")
		return
	}

	hist, err := h.histories.FindByMember(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "purchase history not found")
			return
		}
		internalError(w, r, errors.Wrap(err, "get history"))
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("memberId")
	e.Int64(hist.MemberID())
	e.FieldStart("time")
	e.Str(hist.Time())
	e.FieldStart("orders")
	e.ArrStart()
	for o := range hist.Orders() {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(o.Product.ID)
		e.FieldStart("name")
		e.Str(o.Product.Name)
		e.FieldStart("quantity")
		e.Int(o.Quantity)
		e.FieldStart("purchaseDate")
		e.Int64(o.PurchaseDate)
		e.FieldStart("totalCost")
		e.Float64(o.TotalCost.InexactFloat64())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
