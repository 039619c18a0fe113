package controllers

import (
	"context"

	"github.com/aruvi/kot-gateway/internal/catalog"
	"github.com/aruvi/kot-gateway/internal/journal"
	"github.com/aruvi/kot-gateway/internal/kitchen"
	"github.com/aruvi/kot-gateway/internal/orders"
	"github.com/aruvi/kot-gateway/internal/printer"
	"github.com/aruvi/kot-gateway/internal/tables"
	"github.com/aruvi/kot-gateway/internal/waiters"
)

type WaiterLoginService interface {
	Login(ctx context.Context, phone string) (waiters.Identity, error)
}

type TableBoard interface {
	List(ctx context.Context) []tables.Table
}

type CatalogService interface {
	Products(ctx context.Context, q catalog.Query) ([]catalog.Product, error)
	Categories(ctx context.Context) ([]catalog.Category, error)
}

type OrderSessions interface {
	Session(tableID string) (*orders.Engine, error)
	Abandon(tableID string) bool
}

type KitchenService interface {
	Send(ctx context.Context, req kitchen.Request) (kitchen.Receipt, error)
	Preview(ctx context.Context, req kitchen.Request) (kitchen.Preview, error)
	Complete(ctx context.Context, tableID, waiterID string) (orders.Completion, error)
	History(ctx context.Context, tableID string, limit int) ([]journal.Record, error)
}

type PrinterSession interface {
	Status() printer.Status
	Test(ctx context.Context, ep printer.Endpoint) error
}

type PrinterSettings interface {
	Endpoint(ctx context.Context) (printer.Endpoint, error)
	Save(ctx context.Context, ep printer.Endpoint) (printer.Endpoint, error)
	Reset(ctx context.Context) (printer.Endpoint, error)
	Defaults() printer.Endpoint
}
