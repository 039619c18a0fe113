package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aruvi/kot-gateway/pkg/apiclient"
)

type requester interface {
	Do(ctx context.Context, operation, method, path string, body, out any) error
}

// HTTPStore implements Store against the remote order backend.
type HTTPStore struct {
	client requester
}

// NewHTTPStore wraps a configured api client.
func NewHTTPStore(client requester) (*HTTPStore, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	return &HTTPStore{client: client}, nil
}

func (s *HTTPStore) Fetch(ctx context.Context, tableID string) (Order, error) {
	var payload remoteOrder
	if err := s.client.Do(ctx, "orders.get", http.MethodGet, apiclient.Path("orders", tableID), nil, &payload); err != nil {
		return Order{}, err
	}
	return payload.toOrder(tableID), nil
}

func (s *HTTPStore) List(ctx context.Context) ([]Order, error) {
	var payload []remoteOrder
	if err := s.client.Do(ctx, "orders.list", http.MethodGet, "orders", nil, &payload); err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(payload))
	for _, o := range payload {
		out = append(out, o.toOrder(""))
	}
	return out, nil
}

func (s *HTTPStore) AddItem(ctx context.Context, tableID string, line Line) error {
	body := addItemRequest{
		ProductID:   line.ProductID,
		ProductName: line.ProductName,
		Quantity:    line.Quantity,
		Price:       json.Number(line.UnitPrice.String()),
	}
	return s.client.Do(ctx, "orders.add_item", http.MethodPost, apiclient.Path("orders", tableID, "items"), body, nil)
}

func (s *HTTPStore) UpdateItem(ctx context.Context, tableID, productID string, quantity int) error {
	path := apiclient.Path("orders", tableID, "items", productID)
	return s.client.Do(ctx, "orders.update_item", http.MethodPut, path, updateItemRequest{Quantity: quantity}, nil)
}

func (s *HTTPStore) RemoveItem(ctx context.Context, tableID, productID string) error {
	path := apiclient.Path("orders", tableID, "items", productID)
	return s.client.Do(ctx, "orders.remove_item", http.MethodDelete, path, nil, nil)
}

func (s *HTTPStore) Clear(ctx context.Context, tableID string) error {
	return s.client.Do(ctx, "orders.clear", http.MethodDelete, apiclient.Path("orders", tableID), nil, nil)
}

func (s *HTTPStore) Complete(ctx context.Context, tableID string) (Completion, error) {
	var ack Completion
	path := apiclient.Path("orders", tableID, "complete")
	if err := s.client.Do(ctx, "orders.complete", http.MethodPost, path, completeRequest{Completed: true}, &ack); err != nil {
		return Completion{}, err
	}
	if ack.TableID == "" {
		ack.TableID = FlexibleID(tableID)
	}
	return ack, nil
}
