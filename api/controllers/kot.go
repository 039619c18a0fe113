package controllers

import (
	"net/http"

	"github.com/aruvi/kot-gateway/api/middleware"
	"github.com/aruvi/kot-gateway/api/responses"
	"github.com/aruvi/kot-gateway/api/validators"
	"github.com/aruvi/kot-gateway/internal/kitchen"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type sendKOTRequest struct {
	PendingOnly bool `json:"pendingOnly"`
}

// SendKOT prints the table's order on the kitchen printer. The body is
// optional; {"pendingOnly":true} prints only what was added since the last
// ticket.
func SendKOT(svc KitchenService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := kitchenRequest(w, r, svc, logg)
		if !ok {
			return
		}

		var body sendKOTRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.PendingOnly = body.PendingOnly

		receipt, err := svc.Send(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}

func PreviewKOT(svc KitchenService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := kitchenRequest(w, r, svc, logg)
		if !ok {
			return
		}
		pending, err := validators.ParseQueryBool(r, "pendingOnly")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.PendingOnly = pending

		preview, err := svc.Preview(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

func KOTHistory(svc KitchenService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := kitchenRequest(w, r, svc, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.History(r.Context(), req.TableID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}

func kitchenRequest(w http.ResponseWriter, r *http.Request, svc KitchenService, logg *logger.Logger) (kitchen.Request, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "kitchen service unavailable"))
		return kitchen.Request{}, false
	}
	tableID, err := validators.PathID(r, "tableId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return kitchen.Request{}, false
	}
	return kitchen.Request{
		TableID:    tableID,
		WaiterID:   middleware.WaiterIDFromContext(r.Context()),
		WaiterName: middleware.WaiterNameFromContext(r.Context()),
	}, true
}
