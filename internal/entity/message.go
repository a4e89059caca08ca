package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// SenderRole identifies which side of the conversation wrote a message.
type SenderRole string

const (
	SenderRoleBuyer  SenderRole = "buyer"
	SenderRoleSeller SenderRole = "seller"
)

// Message is an append-only conversation log entry owned by an order.
type Message struct {
	bun.BaseModel `bun:"table:messages"`

	ID         string     `bun:"id,pk"`
	OrderID    string     `bun:"order_id,notnull"`
	SenderID   int64      `bun:"sender_id,notnull"`
	SenderRole SenderRole `bun:"sender_role,notnull"`
	Text       string     `bun:"text,notnull"`
	SentAt     time.Time  `bun:"sent_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
