package controllers

import (
	"net/http"

	"github.com/aruvi/kot-gateway/api/responses"
	"github.com/aruvi/kot-gateway/api/validators"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

type waiterLoginRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
}

// WaiterLogin looks a waiter up by phone number. The handset keeps the
// returned identity and sends it back as X-Waiter-Id / X-Waiter-Name.
func WaiterLogin(svc WaiterLoginService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "waiter directory unavailable"))
			return
		}

		var body waiterLoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identity, err := svc.Login(r.Context(), body.Phone)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, identity)
	}
}
