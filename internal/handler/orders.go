package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/order-service/internal/domain/order"
)

func encodeOrder(e *jx.Encoder, o order.Order) { o.Encode(e) }

// CreateOrder handles POST /api/orders. The order is returned in
// PROCESSING with 201.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.AssembleRequest
	if err := decodeBody(w, r, func(d *jx.Decoder) error { return decodeAssembleRequest(d, &req) }); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateAssembleRequest(req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.intake.Assemble(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(o.ID, 10))
	writeJSON(w, http.StatusCreated, o.Encode)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Encode)
}

// GetOrderByExternalID handles GET /api/orders/external/{externalId}.
func (h *Handler) GetOrderByExternalID(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByExternalID(r.Context(), r.PathValue("externalId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Encode)
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.List(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePage(res, encodeOrder))
}

// ListOrdersByStatus handles GET /api/orders/status/{status}.
func (h *Handler) ListOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := order.ParseStatus(strings.ToUpper(r.PathValue("status")))
	if err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.ListByStatus(r.Context(), status, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePage(res, encodeOrder))
}

// ListOrdersByDateRange handles GET /api/orders/range?start=&end=.
func (h *Handler) ListOrdersByDateRange(w http.ResponseWriter, r *http.Request) {
	start, err := timeParam(r, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := timeParam(r, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.ListByDateRange(r.Context(), start, end, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodePage(res, encodeOrder))
}

// CountToday handles GET /api/orders/metrics/today.
func (h *Handler) CountToday(w http.ResponseWriter, r *http.Request) {
	n, err := h.orders.CountToday(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("count")
		e.Int64(n)
		e.ObjEnd()
	})
}

// UpdateOrderStatus handles PUT /api/orders/{id}/status/{status}.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(strings.ToUpper(r.PathValue("status")))
	if err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}
	if err := h.orders.UpdateStatus(r.Context(), id, status); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeAssembleRequest(d *jx.Decoder, req *order.AssembleRequest) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "externalId":
			req.ExternalID, err = d.Str()
		case "customerId":
			req.CustomerID, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var line order.LineRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						line.ProductID, err = d.Str()
					case "quantity":
						line.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
}

func validateAssembleRequest(req order.AssembleRequest) error {
	switch {
	case strings.TrimSpace(req.ExternalID) == "":
		return badRequest("externalId is required")
	case len(req.ExternalID) > maxIDLength:
		return badRequest("externalId must be at most 50 characters")
	case strings.TrimSpace(req.CustomerID) == "":
		return badRequest("customerId is required")
	case len(req.Items) == 0:
		return order.ErrEmptyItems
	}
	for _, it := range req.Items {
		switch {
		case strings.TrimSpace(it.ProductID) == "":
			return badRequest("productId is required")
		case len(it.ProductID) > maxIDLength:
			return badRequest("productId must be at most 50 characters")
		case it.Quantity < 1:
			return &order.InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	return nil
}
