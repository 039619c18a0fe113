package controllers

import (
	"net/http"

	"github.com/aruvi/kot-gateway/api/responses"
	"github.com/aruvi/kot-gateway/api/validators"
	"github.com/aruvi/kot-gateway/internal/printer"
	"github.com/aruvi/kot-gateway/internal/settings"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

type printerEndpointRequest struct {
	Host string `json:"host" validate:"required,max=253"`
	Port int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
}

type printerTestRequest struct {
	Host string `json:"host" validate:"omitempty,max=253"`
	Port int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
}

// PrinterView is the printer settings screen.
type PrinterView struct {
	Endpoint printer.Endpoint `json:"endpoint"`
	Defaults printer.Endpoint `json:"defaults"`
	Status   printer.Status   `json:"status"`
}

func GetPrinter(session PrinterSession, store PrinterSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session == nil || store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "printer unavailable"))
			return
		}
		ep, err := store.Endpoint(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, PrinterView{Endpoint: ep, Defaults: store.Defaults(), Status: session.Status()})
	}
}

func UpdatePrinter(store PrinterSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "printer settings unavailable"))
			return
		}
		var body printerEndpointRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ep, err := store.Save(r.Context(), printer.Endpoint{Host: body.Host, Port: body.Port})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ep)
	}
}

// TestPrinter prints the diagnostic ticket. Without a body the saved
// endpoint is used; a host in the body tests it before it is saved.
func TestPrinter(session PrinterSession, store PrinterSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session == nil || store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "printer unavailable"))
			return
		}
		var body printerTestRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ep, err := store.Endpoint(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Host != "" {
			ep = printer.Endpoint{Host: body.Host, Port: body.Port}
			if ep.Port == 0 {
				ep.Port = store.Defaults().Port
			}
			ep = ep.Normalize()
			if err := settings.ValidateEndpoint(ep); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if err := session.Test(r.Context(), ep); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"printed": true, "endpoint": ep})
	}
}

func ResetPrinter(store PrinterSettings, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "printer settings unavailable"))
			return
		}
		ep, err := store.Reset(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ep)
	}
}
