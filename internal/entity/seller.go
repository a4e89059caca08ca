package entity

import "github.com/uptrace/bun"

// Seller is a registered counterpart. ParticipantID is the identity used on
// the conversational channel.
type Seller struct {
	bun.BaseModel `bun:"table:sellers"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	Name          string `bun:"name,notnull" json:"name"`
	ParticipantID int64  `bun:"participant_id,notnull" json:"participant_id"`
}

// PickupLocation maps a storefront address onto the seller serving it.
type PickupLocation struct {
	bun.BaseModel `bun:"table:pickup_locations"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Address  string `bun:"address,notnull"`
	SellerID *int64 `bun:"seller_id"`
}

// OrderCounter holds the last issued sequence for an order number prefix.
type OrderCounter struct {
	bun.BaseModel `bun:"table:order_counters"`

	Prefix    string `bun:"prefix,pk"`
	LastValue int64  `bun:"last_value,notnull"`
}
