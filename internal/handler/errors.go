package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-engine/internal/domain/sale"
)

func statusOf(kind sale.Kind) int {
	switch kind {
	case sale.KindValidation:
		return http.StatusBadRequest
	case sale.KindNotFound:
		return http.StatusNotFound
	case sale.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"kind":..,"message":..}. Internal errors are logged and
// their details are not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := sale.KindOf(err)
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		kind = sale.KindValidation
	}

	msg := err.Error()
	switch kind {
	case sale.KindInternal:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	case sale.KindConflict:
		zctx.From(r.Context()).Warn("Request conflicted", zap.Error(err))
	}

	writeJSON(w, statusOf(kind), func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(string(kind))
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}
