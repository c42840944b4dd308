package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// HeaderAPIKey carries the administrative API key.
const HeaderAPIKey = "api_key"

// RequireScope only lets requests through whose API key grants scope.
func (h *Handler) RequireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey), scope)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
