package ports

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"time"
)

// OrderCounter is the only order-store access the load model needs.
type OrderCounter interface {
	CountOrdersInStates(ctx context.Context, states []domain.OrderState) (int, error)
}

type OrderRepository interface {
	OrderCounter
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersInStates(ctx context.Context, states []domain.OrderState) ([]*domain.Order, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) (*domain.Order, error)
}
