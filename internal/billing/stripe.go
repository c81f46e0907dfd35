package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeClient wraps the Stripe API calls the service makes.
type StripeClient struct {
	api *client.API
}

// NewStripeClient constructs a client for secretKey. Nil backends use the Stripe defaults.
func NewStripeClient(secretKey string, backends *stripe.Backends) (*StripeClient, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("billing: stripe secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeClient{api: api}, nil
}

// Subscription fetches a subscription and reduces it to a snapshot.
func (c *StripeClient) Subscription(ctx context.Context, subscriptionID string) (SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return SubscriptionSnapshot{}, err
	}
	return snapshotFromSubscription(sub)
}

// CheckoutRequest describes a subscription checkout.
type CheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession starts a subscription checkout and returns its URL.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)
	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	if sess.URL == "" {
		return "", fmt.Errorf("billing: checkout session %s has no url", sess.ID)
	}
	return sess.URL, nil
}

// CreatePortalSession opens the customer billing portal and returns its URL.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
