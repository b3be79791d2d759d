package notify

import (
	"fmt"
	"strings"

	"github.com/centromex/shopping-buddy/internal/models"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Subject is a one-line summary of n.
func Subject(n Notice) string {
	id := n.Request.ID
	switch n.Event {
	case EventCreated:
		return fmt.Sprintf("Shopping Request Created - #%d", id)
	case EventAccepted:
		return fmt.Sprintf("Shopping Request Accepted - #%d", id)
	case EventStarted:
		return fmt.Sprintf("Shopping Started for Your Request - #%d", id)
	case EventCompleted:
		return fmt.Sprintf("Shopping Completed - #%d", id)
	case EventAbandoned:
		return fmt.Sprintf("Shopping Request Available Again - #%d", id)
	case EventCancelled:
		return fmt.Sprintf("Shopping Request Cancelled - #%d", id)
	case EventUpdated:
		return fmt.Sprintf("Shopping Request Updated - #%d", id)
	}
	return fmt.Sprintf("Shopping Request #%d", id)
}

// Format renders the message sent to one recipient.
func Format(to Recipient, n Notice) string {
	var sb strings.Builder

	sb.WriteString(rule + "\n")
	sb.WriteString(Subject(n) + "\n")
	sb.WriteString(rule + "\n\n")

	if to.Name != "" {
		sb.WriteString(fmt.Sprintf("Hello %s,\n\n", to.Name))
	}
	sb.WriteString(headline(to, n))
	sb.WriteString("\n\n")

	writeRequest(&sb, n.Request)

	if other := counterpart(to, n); other != nil {
		label := "Shopper"
		if other.Role == models.RoleCustomer {
			label = "Customer"
		}
		sb.WriteString(fmt.Sprintf("\n%s: %s (%s)\n", label, other.Name, other.Email))
	}

	sb.WriteString(rule)
	return sb.String()
}

// FormatAnnouncement renders an open request for the shared shopper channel.
func FormatAnnouncement(n Notice) string {
	var sb strings.Builder
	r := n.Request

	sb.WriteString(rule + "\n")
	sb.WriteString(fmt.Sprintf("📋 REQUEST #%d", r.ID))
	if r.StoreName != "" {
		sb.WriteString(fmt.Sprintf(" • %s", r.StoreName))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("💵 %s + %s delivery\n",
		models.FormatMoney(r.EstimatedPrice), models.FormatMoney(r.DeliveryFee)))
	sb.WriteString(rule + "\n\n")

	for _, it := range r.Items {
		sb.WriteString(fmt.Sprintf("• %d × %s\n", it.Quantity, it.Name))
	}

	sb.WriteString("\n" + rule + "\n")
	sb.WriteString(fmt.Sprintf("Reply /accept %d to take this request\n", r.ID))
	sb.WriteString(rule)
	return sb.String()
}

func headline(to Recipient, n Notice) string {
	customer := to.Role == models.RoleCustomer
	switch n.Event {
	case EventCreated:
		return "Your shopping request has been created and is now available for shoppers to accept."
	case EventAccepted:
		if customer {
			return "Great news! Your shopping request has been accepted by a shopper."
		}
		return "You have accepted this shopping request."
	case EventStarted:
		return "Your shopper has started shopping for your items."
	case EventCompleted:
		if customer {
			return "Your shopping has been completed and the payment was collected."
		}
		return fmt.Sprintf("Shopping completed. %s has been credited to your balance.",
			models.FormatMoney(n.Request.Total()))
	case EventAbandoned:
		return "Your shopper is no longer able to fulfill this request. It is available to other shoppers again."
	case EventCancelled:
		if customer {
			return "Your shopper has cancelled this shopping request."
		}
		return "This shopping request has been cancelled by the customer."
	case EventUpdated:
		return "The customer has updated this shopping request. Please review the changes."
	}
	return ""
}

func writeRequest(sb *strings.Builder, r models.ShoppingRequest) {
	sb.WriteString(fmt.Sprintf("Request #%d • %s\n", r.ID, r.Status))
	sb.WriteString(fmt.Sprintf("Store: %s\n", orNotSpecified(r.StoreName)))
	sb.WriteString(fmt.Sprintf("Store address: %s\n", orNotSpecified(r.StoreAddress)))
	sb.WriteString(fmt.Sprintf("Delivery address: %s\n", r.DeliveryAddress))
	sb.WriteString(fmt.Sprintf("Items price: %s\n", models.FormatMoney(r.EstimatedPrice)))
	sb.WriteString(fmt.Sprintf("Delivery fee: %s\n", models.FormatMoney(r.DeliveryFee)))

	if len(r.Items) > 0 {
		sb.WriteString("\nSHOPPING LIST:\n")
		for _, it := range r.Items {
			sb.WriteString(fmt.Sprintf("• %d × %s", it.Quantity, it.Name))
			if it.Description != "" {
				sb.WriteString(" (" + it.Description + ")")
			}
			sb.WriteString("\n")
		}
	}
}

func counterpart(to Recipient, n Notice) *Recipient {
	if to.Role == models.RoleShopper {
		return &n.Customer
	}
	return n.Shopper
}

func orNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}
