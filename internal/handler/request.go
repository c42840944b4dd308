package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/order-service/internal/domain/paging"
)

const (
	maxBodySize = 1 << 20
	maxIDLength = 50
)

// decodeBody decodes the JSON object body with fn, turning syntax errors
// into a 400.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodySize), 4096)
	if err := fn(d); err != nil {
		return badRequest("malformed request body: " + err.Error())
	}
	return nil
}

func pageParams(r *http.Request) (paging.Request, error) {
	var (
		page paging.Request
		err  error
	)
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page.Page, err = strconv.Atoi(v); err != nil || page.Page < 0 {
			return page, badRequest("page must be a non-negative integer")
		}
		if page.Page > paging.MaxPage {
			return page, badRequest("page must not exceed " + strconv.Itoa(paging.MaxPage))
		}
	}
	if v := q.Get("size"); v != "" {
		if page.Size, err = strconv.Atoi(v); err != nil || page.Size <= 0 {
			return page, badRequest("size must be a positive integer")
		}
	}
	return page, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("id must be a positive integer")
	}
	return id, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, badRequest(name + " is required")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequest(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}

func encodePage[T any](p paging.Page[T], item func(e *jx.Encoder, v T)) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for _, v := range p.Items {
			item(e, v)
		}
		e.ArrEnd()
		e.FieldStart("page")
		e.Int(p.Page)
		e.FieldStart("size")
		e.Int(p.Size)
		e.FieldStart("totalItems")
		e.Int64(p.TotalItems)
		e.FieldStart("totalPages")
		e.Int(p.TotalPages)
		e.ObjEnd()
	}
}
