package relay

import (
	"fmt"
	"strings"

	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
)

const (
	textGreeting = "👋 Hi! I relay messages between buyers and sellers.\n" +
		"Place an order first, then simply write here to talk to your seller."
	textGuidance = "ℹ️ I could not find an active order for you.\n" +
		"Place an order first, then write here to talk to your seller."
	textSentToSeller   = "✅ Message sent to the seller."
	textNoActiveOrders = "You have no active orders."
	textEmptyMessage   = "Message text is empty."
	textEmptyReply     = "Reply text is empty."
	textNotYourOrder   = "This order does not belong to you."
)

func usage(sigil string) string {
	return fmt.Sprintf("To reply to a buyer send: %s<order number> <text>\nExample: %sE1 on its way", sigil, sigil)
}

func orderNotFound(number string) string {
	return fmt.Sprintf("Order %s not found.", number)
}

func sentToBuyer(number string) string {
	return fmt.Sprintf("✅ Message sent to the buyer (order %s).", number)
}

func activeOrdersList(orders []entity.Order, sigil string) string {
	var b strings.Builder
	b.WriteString("📋 Your active orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "• Order %s – %s\n", o.Number, o.Contact.Name)
	}
	b.WriteString("\n")
	b.WriteString(usage(sigil))
	return b.String()
}

func forwardToSeller(recipient int64, number, text string) delivery.Notification {
	return delivery.Notification{
		Recipient:   recipient,
		Kind:        delivery.KindBuyerMessageForwarded,
		OrderNumber: number,
		Text:        fmt.Sprintf("💬 Buyer (order %s):\n%s", number, text),
	}
}

func forwardToBuyer(order *entity.Order, text string) delivery.Notification {
	return delivery.Notification{
		Recipient:   order.BuyerID,
		Kind:        delivery.KindSellerMessageForwarded,
		OrderNumber: order.Number,
		Text:        fmt.Sprintf("💬 Seller (order %s):\n%s", order.Number, text),
	}
}

func observerBuyerCopy(observer int64, order *entity.Order, text string) delivery.Notification {
	return delivery.Notification{
		Recipient:   observer,
		Kind:        delivery.KindObserverCopy,
		OrderNumber: order.Number,
		Text:        fmt.Sprintf("👁 Buyer %s → order %s:\n%s", order.Contact.Name, order.Number, text),
	}
}

func observerSellerCopy(observer int64, seller *entity.Seller, order *entity.Order, text string) delivery.Notification {
	return delivery.Notification{
		Recipient:   observer,
		Kind:        delivery.KindObserverCopy,
		OrderNumber: order.Number,
		Text:        fmt.Sprintf("👁 Seller %s → order %s:\n%s", seller.Name, order.Number, text),
	}
}
