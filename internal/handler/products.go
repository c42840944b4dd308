package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/order-service/internal/domain/money"
	"github.com/xenking/order-service/internal/domain/product"
)

func encodeProduct(e *jx.Encoder, p product.Product) { p.Encode(e) }

// CreateProduct handles POST /api/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.CreateRequest
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				req.ProductID, err = d.Str()
			case "productName":
				req.Name, err = d.Str()
			case "quantity":
				req.Quantity, err = d.Int()
			case "unitPrice":
				req.UnitPrice, err = money.Decode(d)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.ProductID) > maxIDLength {
		writeError(w, r, badRequest("productId must be at most 50 characters"))
		return
	}

	p, err := h.products.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/products/"+p.ProductID)
	writeJSON(w, http.StatusCreated, p.Encode)
}

// GetProduct handles GET /api/products/{productId}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByProductID(r.Context(), r.PathValue("productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Encode)
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.products.List(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePage(res, encodeProduct))
}
