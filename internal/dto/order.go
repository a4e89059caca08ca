package dto

import "time"

// LineItem mirrors entity.LineItem on the wire; prices travel as decimal strings.
type LineItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID          string     `json:"id"`
	Number      string     `json:"orderNumber"`
	Status      string     `json:"status"`
	BuyerID     int64      `json:"buyerId"`
	SellerID    int64      `json:"sellerId"`
	BuyerName   string     `json:"buyerName"`
	Address     string     `json:"address"`
	Items       []LineItem `json:"items"`
	Total       string     `json:"total"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CreateOrderResponse is returned by the creation channel.
type CreateOrderResponse struct {
	Status      string `json:"status"`
	OrderNumber string `json:"orderNumber"`
}

// RelayReply carries the text the conversational gateway should show the sender.
type RelayReply struct {
	Reply string `json:"reply"`
}
