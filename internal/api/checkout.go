package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/retail-checkout/internal/cart"
	"github.com/xenking/retail-checkout/internal/checkout"
	"github.com/xenking/retail-checkout/internal/domain/member"
	"github.com/xenking/retail-checkout/internal/domain/order"
	"github.com/xenking/retail-checkout/internal/domain/product"
)

// checkoutRequest is the decoded POST /api/checkout body.
type checkoutRequest struct {
	MemberID     int64
	Confirmed    bool
	PurchaseDate int64
	Items        []checkoutItem
}

type checkoutItem struct {
	ProductID string
	Quantity  int
}

// Checkout builds a cart from the requested items (snapshotting current
// catalog state) and runs it through the settlement engine. The confirmed
// flag in the body is the caller's answer to the confirmation gate.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	req, err := decodeCheckoutRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			writeError(w, http.StatusUnprocessableEntity,
				"quantity must be greater than 0 for product "+item.ProductID)
			return
		}
	}
	if req.PurchaseDate == 0 {
		req.PurchaseDate = time.Now().Unix()
	}

	// Snapshot products into cart orders. Unknown products fail here, before
	// the engine ever runs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		internalError(w, r, errors.Wrap(err, "get products"))
		return
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	c := cart.New()
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			writeError(w, http.StatusUnprocessableEntity,
				"product "+item.ProductID+" not found")
			return
		}
		c.AddOrder(order.New(p, req.PurchaseDate, item.Quantity))
	}

	res, err := h.engine.Process(r.Context(), checkout.Request{
		MemberID:  req.MemberID,
		Cart:      c,
		Confirmed: req.Confirmed,
	})
	if err != nil {
		switch {
		case errors.Is(err, member.ErrNotFound):
			writeError(w, http.StatusNotFound, "member not found")
		case errors.Is(err, checkout.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, "cart is empty")
		default:
			internalError(w, r, errors.Wrap(err, "process checkout"))
		}
		return
	}

	status := http.StatusOK
	if res.Rejected() {
		status = http.StatusUnprocessableEntity
	}

	var e jx.Encoder
	encodeResult(&e, res)
	writeJSON(w, status, &e)
}

func decodeCheckoutRequest(body []byte) (checkoutRequest, error) {
	var req checkoutRequest
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "memberId":
			v, err := d.Int64()
			req.MemberID = v
			return err
		case "confirmed":
			v, err := d.Bool()
			req.Confirmed = v
			return err
		case "purchaseDate":
			v, err := d.Int64()
			req.PurchaseDate = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item checkoutItem
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "productId":
						v, err := d.Str()
						item.ProductID = v
						return err
					case "quantity":
						v, err := d.Int()
						item.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func encodeResult(e *jx.Encoder, res *checkout.Result) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(string(res.Status))
	if res.ReceiptID != "" {
		e.FieldStart("receiptId")
		e.Str(res.ReceiptID)
	}
	e.FieldStart("subtotal")
	e.Float64(res.Subtotal.InexactFloat64())
	e.FieldStart("tax")
	e.Float64(res.Tax.InexactFloat64())
	e.FieldStart("total")
	e.Float64(res.Total.InexactFloat64())

	if len(res.OutOfStock) > 0 {
		e.FieldStart("outOfStock")
		e.ArrStart()
		for _, v := range res.OutOfStock {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(v.ProductID)
			e.FieldStart("name")
			e.Str(v.Name)
			e.FieldStart("requested")
			e.Int(v.Requested)
			e.FieldStart("available")
			e.Int(v.Available)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	if len(res.Missing) > 0 {
		e.FieldStart("missingProducts")
		e.ArrStart()
		for _, id := range res.Missing {
			e.Str(id)
		}
		e.ArrEnd()
	}
	if res.Funds != nil {
		e.FieldStart("insufficientFunds")
		e.ObjStart()
		e.FieldStart("required")
		e.Float64(res.Funds.Required.InexactFloat64())
		e.FieldStart("available")
		e.Float64(res.Funds.Available.InexactFloat64())
		e.ObjEnd()
	}
	if res.Status == checkout.StatusSettled {
		e.FieldStart("manifest")
		e.ArrStart()
		for _, p := range res.Manifest {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(p.ProductID)
			e.FieldStart("name")
			e.Str(p.Name)
			e.FieldStart("quantity")
			e.Int(p.Quantity)
			e.FieldStart("totalCost")
			e.Float64(p.TotalCost.InexactFloat64())
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}
