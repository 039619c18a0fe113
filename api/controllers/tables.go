package controllers

import (
	"net/http"

	"github.com/aruvi/kot-gateway/api/responses"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

func ListTables(board TableBoard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if board == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "table board unavailable"))
			return
		}
		responses.WriteSuccess(w, board.List(r.Context()))
	}
}
