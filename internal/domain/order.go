package domain

import "time"

type OrderState string

const (
	OrderPending          OrderState = "pending"
	OrderPaymentConfirmed OrderState = "payment_confirmed"
	OrderPreparing        OrderState = "preparing"
	OrderOutForDelivery   OrderState = "out_for_delivery"
	OrderDelivered        OrderState = "delivered"
	OrderCancelled        OrderState = "cancelled"
)

// ActiveOrderStates are orders occupying kitchen or driver capacity.
var ActiveOrderStates = []OrderState{OrderPreparing, OrderOutForDelivery, OrderPaymentConfirmed}

// PendingOrderStates are orders waiting to enter the kitchen.
var PendingOrderStates = []OrderState{OrderPending}

// ReestimateOrderStates are orders whose ETA changes when load drops.
var ReestimateOrderStates = []OrderState{OrderPending, OrderPaymentConfirmed, OrderPreparing}

type Pizza struct {
	Size     string   `json:"size"`
	Crust    string   `json:"crust,omitempty"`
	Toppings []string `json:"toppings,omitempty"`
	Quantity int      `json:"quantity,omitempty"`
}

// OrderContext describes the order being estimated.
type OrderContext struct {
	Pizzas []Pizza `json:"pizzas"`
}

type Order struct {
	ID           int64
	CustomerName string
	Address      string
	Details      OrderContext
	Status       OrderState
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeliveredAt  *time.Time
}
