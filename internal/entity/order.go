package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus is the lifecycle state of an order. Transitions only move
// forward: active -> completed or active -> cancelled.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// LineItem is a single purchased position. Stored inside the order row as JSON.
type LineItem struct {
	Name      string          `json:"name" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Subtotal returns quantity * unit price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Contact is the buyer supplied delivery metadata.
type Contact struct {
	Name          string `json:"name"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address"`
	PaymentMethod string `json:"paymentMethod"`
	DeliveryType  string `json:"deliveryType"`
}

// Order is the system of record for a buyer/seller transaction.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID               string          `bun:"id,pk"`
	Number           string          `bun:"order_number,notnull"`
	BuyerID          int64           `bun:"buyer_id,notnull"`
	SellerID         int64           `bun:"seller_id,notnull"`
	PickupLocationID *int64          `bun:"pickup_location_id"`
	Items            []LineItem      `bun:"line_items,type:json,notnull"`
	Total            decimal.Decimal `bun:"total,type:decimal(12,2),notnull"`
	Contact          Contact         `bun:"contact,type:json,notnull"`
	Status           OrderStatus     `bun:"status,notnull"`
	IdempotencyKey   *string         `bun:"idempotency_key"`
	CreatedAt        time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `bun:"updated_at,nullzero"`
	CompletedAt      *time.Time      `bun:"completed_at"`
}

// Active reports whether the order still routes buyer messages.
func (o *Order) Active() bool {
	return o != nil && o.Status == OrderStatusActive
}
