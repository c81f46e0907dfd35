// Package billing reconciles local subscription state with Stripe.
package billing

import (
	"encoding/json"
	"time"
)

// Event is one of the webhook variants the reconciler understands.
type Event interface {
	eventName() string
}

// CheckoutCompleted binds a user to the subscription bought in a checkout session.
type CheckoutCompleted struct {
	UserID         string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionUpdated carries the current state of a Stripe subscription.
type SubscriptionUpdated struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
}

// SubscriptionDeleted ends a Stripe subscription.
type SubscriptionDeleted struct {
	SubscriptionID string
}

// ProductUpdated refreshes tier display fields from a Stripe product.
type ProductUpdated struct {
	ProductID   string
	Name        string
	Description string
	Features    json.RawMessage // Nil when the product carries no features metadata.
}

// PriceUpdated refreshes tier pricing from a Stripe price.
type PriceUpdated struct {
	PriceID      string
	ProductID    string
	UnitAmount   int64
	Currency     string
	MonthlyQuota *int
	Active       bool
	Recurring    bool
}

func (CheckoutCompleted) eventName() string   { return "checkout-completed" }
func (SubscriptionUpdated) eventName() string { return "subscription-updated" }
func (SubscriptionDeleted) eventName() string { return "subscription-deleted" }
func (ProductUpdated) eventName() string      { return "product-updated" }
func (PriceUpdated) eventName() string        { return "price-updated" }

// Name returns a short label for logs.
func Name(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventName()
}
