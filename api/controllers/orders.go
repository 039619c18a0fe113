package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/aruvi/kot-gateway/api/middleware"
	"github.com/aruvi/kot-gateway/api/responses"
	"github.com/aruvi/kot-gateway/api/validators"
	"github.com/aruvi/kot-gateway/internal/orders"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

const maxProductNameLen = 120

// LineView is an order line as the handset renders it.
type LineView struct {
	orders.Line
	Subtotal     decimal.Decimal `json:"subtotal"`
	SentQuantity int             `json:"sentQuantity"`
}

// OrderView is a table's order with its totals and session state.
type OrderView struct {
	TableID       string          `json:"tableId"`
	State         orders.State    `json:"state"`
	Source        orders.Source   `json:"source"`
	Lines         []LineView      `json:"lines"`
	LineCount     int             `json:"lineCount"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

func newOrderView(e *orders.Engine, o orders.Order) OrderView {
	view := OrderView{
		TableID:       e.TableID(),
		State:         e.State(),
		Source:        o.Source,
		Lines:         make([]LineView, 0, len(o.Lines)),
		LineCount:     o.LineCount(),
		TotalQuantity: o.TotalQuantity(),
		TotalAmount:   o.TotalAmount(),
	}
	for _, l := range o.Lines {
		view.Lines = append(view.Lines, LineView{Line: l, Subtotal: l.Subtotal(), SentQuantity: e.SentQuantity(l.ProductID)})
	}
	return view
}

type addLineRequest struct {
	ProductID   string          `json:"productId" validate:"required,max=64"`
	ProductName string          `json:"productName" validate:"required"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetOrder fetches the table's order from the store. An unreachable store
// still answers 200 with an empty order whose source is "unavailable".
func GetOrder(sessions OrderSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := tableSession(w, r, sessions, logg)
		if !ok {
			return
		}
		order := engine.Load(r.Context())
		responses.WriteSuccess(w, newOrderView(engine, order))
	}
}

func AddOrderLine(sessions OrderSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := tableSession(w, r, sessions, logg)
		if !ok {
			return
		}

		var body addLineRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := engine.AddLine(r.Context(), orders.Line{
			ProductID:   validators.SanitizeString(body.ProductID, 64),
			ProductName: validators.SanitizeString(body.ProductName, maxProductNameLen),
			Quantity:    body.Quantity,
			UnitPrice:   body.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderView(engine, order))
	}
}

func UpdateOrderLine(sessions OrderSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := tableSession(w, r, sessions, logg)
		if !ok {
			return
		}
		productID, err := validators.PathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := engine.UpdateQuantity(r.Context(), productID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(engine, order))
	}
}

func RemoveOrderLine(sessions OrderSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := tableSession(w, r, sessions, logg)
		if !ok {
			return
		}
		productID, err := validators.PathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := engine.RemoveLine(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(engine, order))
	}
}

func ClearOrder(sessions OrderSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := tableSession(w, r, sessions, logg)
		if !ok {
			return
		}
		order, err := engine.Clear(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(engine, order))
	}
}

// CompleteOrder finalises the table's order through the kitchen service so
// the completion is announced.
func CompleteOrder(svc KitchenService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "kitchen service unavailable"))
			return
		}
		tableID, err := validators.PathID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ack, err := svc.Complete(r.Context(), tableID, middleware.WaiterIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ack)
	}
}

// AbandonSession drops the gateway's session for a table without touching
// the remote order.
func AbandonSession(sessions OrderSessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order sessions unavailable"))
			return
		}
		tableID, err := validators.PathID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"tableId": tableID, "abandoned": sessions.Abandon(tableID)})
	}
}

func tableSession(w http.ResponseWriter, r *http.Request, sessions OrderSessions, logg *logger.Logger) (*orders.Engine, bool) {
	if sessions == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order sessions unavailable"))
		return nil, false
	}
	tableID, err := validators.PathID(r, "tableId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	engine, err := sessions.Session(tableID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	return engine, true
}
