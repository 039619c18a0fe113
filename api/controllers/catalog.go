package controllers

import (
	"net/http"

	"github.com/aruvi/kot-gateway/api/responses"
	"github.com/aruvi/kot-gateway/api/validators"
	"github.com/aruvi/kot-gateway/internal/catalog"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

const maxSearchLen = 64

// ListProducts supports ?q= for a name search and ?category= for a category filter.
func ListProducts(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		q := r.URL.Query()
		products, err := svc.Products(r.Context(), catalog.Query{
			Search:     validators.SanitizeString(q.Get("q"), maxSearchLen),
			CategoryID: validators.SanitizeString(q.Get("category"), maxSearchLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

func ListCategories(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}
		categories, err := svc.Categories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, categories)
	}
}
