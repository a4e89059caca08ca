package order

import (
	"fmt"
	"strings"

	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
)

const completeLabel = "✅ Complete"

func sellerNewOrder(seller *entity.Seller, order *entity.Order, sigil string) delivery.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 NEW ORDER %s\n\n", order.Number)
	fmt.Fprintf(&b, "👤 Buyer: %s\n", order.Contact.Name)
	fmt.Fprintf(&b, "📍 %s\n", order.Contact.Address)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "• %s x%d = %s\n", item.Name, item.Quantity, item.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", order.Total.StringFixed(2))
	fmt.Fprintf(&b, "Payment: %s\n", paymentLabel(order.Contact.PaymentMethod))
	fmt.Fprintf(&b, "Delivery: %s\n\n", order.Contact.DeliveryType)
	fmt.Fprintf(&b, "💬 To reply to the buyer send %s%s <text>", sigil, order.Number)

	return delivery.Notification{
		Recipient:   seller.ParticipantID,
		Kind:        delivery.KindSellerNewOrder,
		OrderNumber: order.Number,
		Text:        b.String(),
		Action: &delivery.Action{
			Kind:        delivery.ActionComplete,
			Label:       completeLabel,
			OrderNumber: order.Number,
		},
	}
}

func observerNewOrder(observer int64, seller *entity.Seller, order *entity.Order) delivery.Notification {
	return delivery.Notification{
		Recipient:   observer,
		Kind:        delivery.KindObserverCopy,
		OrderNumber: order.Number,
		Text: fmt.Sprintf("🆕 New order %s\nSeller: %s\nBuyer: %s\nAddress: %s\nTotal: %s",
			order.Number, seller.Name, order.Contact.Name, order.Contact.Address, order.Total.StringFixed(2)),
	}
}

func buyerOrderCompleted(order *entity.Order) delivery.Notification {
	return delivery.Notification{
		Recipient:   order.BuyerID,
		Kind:        delivery.KindBuyerOrderCompleted,
		OrderNumber: order.Number,
		Text:        fmt.Sprintf("✅ Your order %s is fulfilled. Thank you for your purchase!", order.Number),
	}
}

func observerOrderCompleted(observer int64, seller *entity.Seller, order *entity.Order) delivery.Notification {
	return delivery.Notification{
		Recipient:   observer,
		Kind:        delivery.KindObserverCopy,
		OrderNumber: order.Number,
		Text:        fmt.Sprintf("✅ Seller %s completed order %s.", seller.Name, order.Number),
	}
}

func sellerOrderCancelled(seller *entity.Seller, order *entity.Order) delivery.Notification {
	return delivery.Notification{
		Recipient:   seller.ParticipantID,
		Kind:        delivery.KindSellerOrderCancelled,
		OrderNumber: order.Number,
		Text:        fmt.Sprintf("❌ The buyer cancelled order %s.", order.Number),
	}
}

func completeActionRef(number, messageRef string) delivery.ActionRef {
	return delivery.ActionRef{Kind: delivery.ActionComplete, OrderNumber: number, MessageRef: messageRef}
}

func paymentLabel(method string) string {
	if method == "cash" {
		return "Cash"
	}
	return "Transfer"
}
