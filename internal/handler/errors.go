package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-service/internal/domain/auth"
	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/product"
)

// badRequestError is a malformed or invalid request.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// writeError maps err to a status code and writes the {code, message} body.
// Unclassified errors are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad   *badRequestError
		dup   *order.DuplicateError
		stock *product.InsufficientStockError
		pnf   *product.NotFoundError
		onf   *order.NotFoundError
		qty   *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &bad), errors.As(err, &qty),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidRange),
		errors.Is(err, product.ErrInvalidQuantity),
		errors.Is(err, product.ErrEmptyProductID),
		errors.Is(err, product.ErrEmptyName),
		errors.Is(err, product.ErrNegativeQuantity),
		errors.Is(err, product.ErrInvalidUnitPrice):
		writeJSON(w, http.StatusBadRequest, errorBody(http.StatusBadRequest, err.Error(), nil))
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, errorBody(http.StatusConflict, dup.Error(), nil))
	case errors.Is(err, product.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody(http.StatusConflict, err.Error(), nil))
	case errors.As(err, &stock):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(http.StatusUnprocessableEntity, stock.Error(), func(e *jx.Encoder) {
			e.FieldStart("productId")
			e.Str(stock.ProductID)
			e.FieldStart("available")
			e.Int(stock.Available)
			e.FieldStart("requested")
			e.Int(stock.Requested)
		}))
	case errors.As(err, &pnf):
		writeJSON(w, http.StatusNotFound, errorBody(http.StatusNotFound, pnf.Error(), nil))
	case errors.As(err, &onf):
		writeJSON(w, http.StatusNotFound, errorBody(http.StatusNotFound, onf.Error(), nil))
	case errors.Is(err, auth.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "unauthorized", nil))
	case errors.Is(err, auth.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody(http.StatusForbidden, "forbidden", nil))
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "internal server error", nil))
	}
}

func errorBody(code int, msg string, extra func(e *jx.Encoder)) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(code)
		e.FieldStart("message")
		e.Str(msg)
		if extra != nil {
			extra(e)
		}
		e.ObjEnd()
	}
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
