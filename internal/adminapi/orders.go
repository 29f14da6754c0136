package adminapi

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/cutroom-admin/internal/session"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
)

const ordersEndpoint = "/admin/orders"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusDisputed   OrderStatus = "disputed"
)

type Order struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Status     OrderStatus `json:"status"`
	Amount     float64     `json:"amount"`
	ClientID   string      `json:"clientId"`
	ClientName string      `json:"clientName"`
	EditorID   string      `json:"editorId,omitempty"`
	EditorName string      `json:"editorName,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type OrderListParams struct {
	Page   int
	Limit  int
	Status OrderStatus
}

type Orders struct {
	client *session.Client
}

func NewOrders(client *session.Client) *Orders {
	return &Orders{client: client}
}

func (o *Orders) List(ctx context.Context, params OrderListParams) (*Page[Order], error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "adminapi.orders.list")
	defer span.End()

	query := pagingQuery(params.Page, params.Limit)
	if params.Status != "" {
		query.Set("status", string(params.Status))
	}

	page, err := getPage[Order](ctx, o.client, ordersEndpoint, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return page, nil
}
