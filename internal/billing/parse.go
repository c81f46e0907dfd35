package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
)

var (
	// ErrMalformedEvent reports a webhook payload missing required fields.
	ErrMalformedEvent = errors.New("billing: malformed event")
	// ErrLookupMiss reports a tier or subscription that could not be matched.
	ErrLookupMiss = errors.New("billing: lookup miss")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// ParseEvent converts a verified Stripe event into a reconciler variant.
// Unhandled event types return (nil, nil).
func ParseEvent(ev stripe.Event) (Event, error) {
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeProductCreated,
		stripe.EventTypeProductUpdated,
		stripe.EventTypePriceCreated,
		stripe.EventTypePriceUpdated:
	default:
		return nil, nil
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, malformed("%s: empty data", ev.Type)
	}
	raw := ev.Data.Raw

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if errUnmarshal := json.Unmarshal(raw, &sess); errUnmarshal != nil {
			return nil, malformed("checkout session: %v", errUnmarshal)
		}
		return parseCheckoutSession(&sess)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if errUnmarshal := json.Unmarshal(raw, &sub); errUnmarshal != nil {
			return nil, malformed("subscription: %v", errUnmarshal)
		}
		return parseSubscriptionUpdated(&sub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if errUnmarshal := json.Unmarshal(raw, &sub); errUnmarshal != nil {
			return nil, malformed("subscription: %v", errUnmarshal)
		}
		if strings.TrimSpace(sub.ID) == "" {
			return nil, malformed("subscription deleted: missing id")
		}
		return SubscriptionDeleted{SubscriptionID: sub.ID}, nil
	case stripe.EventTypeProductCreated, stripe.EventTypeProductUpdated:
		var product stripe.Product
		if errUnmarshal := json.Unmarshal(raw, &product); errUnmarshal != nil {
			return nil, malformed("product: %v", errUnmarshal)
		}
		return parseProduct(&product)
	default:
		var price stripe.Price
		if errUnmarshal := json.Unmarshal(raw, &price); errUnmarshal != nil {
			return nil, malformed("price: %v", errUnmarshal)
		}
		return parsePrice(&price)
	}
}

func parseCheckoutSession(sess *stripe.CheckoutSession) (Event, error) {
	userID := strings.TrimSpace(sess.ClientReferenceID)
	if userID == "" && sess.Metadata != nil {
		userID = strings.TrimSpace(sess.Metadata["userId"])
	}
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = strings.TrimSpace(sess.Subscription.ID)
	}
	if subscriptionID == "" || userID == "" {
		return nil, malformed("checkout session %s: missing subscription or user id", sess.ID)
	}
	customerID := ""
	if sess.Customer != nil {
		customerID = strings.TrimSpace(sess.Customer.ID)
	}
	return CheckoutCompleted{UserID: userID, CustomerID: customerID, SubscriptionID: subscriptionID}, nil
}

func parseSubscriptionUpdated(sub *stripe.Subscription) (Event, error) {
	snapshot, errSnapshot := snapshotFromSubscription(sub)
	if errSnapshot != nil {
		return nil, errSnapshot
	}
	return SubscriptionUpdated{
		SubscriptionID:    sub.ID,
		CustomerID:        snapshot.CustomerID,
		PriceID:           snapshot.PriceID,
		Status:            snapshot.Status,
		PeriodStart:       snapshot.PeriodStart,
		PeriodEnd:         snapshot.PeriodEnd,
		CancelAtPeriodEnd: snapshot.CancelAtPeriodEnd,
	}, nil
}

func parseProduct(product *stripe.Product) (Event, error) {
	if strings.TrimSpace(product.ID) == "" {
		return nil, malformed("product: missing id")
	}
	ev := ProductUpdated{
		ProductID:   product.ID,
		Name:        product.Name,
		Description: product.Description,
	}
	if raw := strings.TrimSpace(product.Metadata["features"]); raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, malformed("product %s: features metadata is not JSON", product.ID)
		}
		ev.Features = json.RawMessage(raw)
	}
	return ev, nil
}

func parsePrice(price *stripe.Price) (Event, error) {
	productID := ""
	if price.Product != nil {
		productID = strings.TrimSpace(price.Product.ID)
	}
	if strings.TrimSpace(price.ID) == "" || productID == "" {
		return nil, malformed("price: missing id or product")
	}
	ev := PriceUpdated{
		PriceID:    price.ID,
		ProductID:  productID,
		UnitAmount: price.UnitAmount,
		Currency:   string(price.Currency),
		Active:     price.Active,
		Recurring:  price.Recurring != nil || price.Type == stripe.PriceTypeRecurring,
	}
	if raw := strings.TrimSpace(price.Metadata["monthly_quota"]); raw != "" {
		quota, errAtoi := strconv.Atoi(raw)
		if errAtoi != nil || quota < 0 {
			return nil, malformed("price %s: invalid monthly_quota %q", price.ID, raw)
		}
		ev.MonthlyQuota = &quota
	}
	return ev, nil
}

// SubscriptionSnapshot is the subset of a Stripe subscription the reconciler reads.
type SubscriptionSnapshot struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
}

func snapshotFromSubscription(sub *stripe.Subscription) (SubscriptionSnapshot, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return SubscriptionSnapshot{}, malformed("subscription: missing id")
	}
	priceID := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil && sub.Items.Data[0].Price != nil {
		priceID = strings.TrimSpace(sub.Items.Data[0].Price.ID)
	}
	if priceID == "" {
		return SubscriptionSnapshot{}, malformed("subscription %s: missing price", sub.ID)
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	return SubscriptionSnapshot{
		ID:                sub.ID,
		CustomerID:        customerID,
		PriceID:           priceID,
		Status:            string(sub.Status),
		PeriodStart:       unixTime(sub.CurrentPeriodStart),
		PeriodEnd:         unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, nil
}

func unixTime(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}
