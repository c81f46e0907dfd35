package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/auth"
	"github.com/promptarchitect/server/internal/billing"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/store"
	log "github.com/sirupsen/logrus"
)

// CheckoutProvider opens hosted payment pages.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// BillingHandler starts checkouts and billing portal sessions.
type BillingHandler struct {
	store      *store.Store
	payments   CheckoutProvider
	appURL     string
	freeTierID string
}

// NewBillingHandler constructs a BillingHandler. appURL is the dashboard origin used for redirects.
func NewBillingHandler(s *store.Store, payments CheckoutProvider, appURL, freeTierID string) *BillingHandler {
	if freeTierID == "" {
		freeTierID = models.FreeTierID
	}
	return &BillingHandler{
		store:      s,
		payments:   payments,
		appURL:     strings.TrimRight(strings.TrimSpace(appURL), "/"),
		freeTierID: freeTierID,
	}
}

type checkoutRequest struct {
	PriceID string `json:"price_id" binding:"required"`
}

// Checkout creates a subscription checkout for a tier price.
func (h *BillingHandler) Checkout(c *gin.Context) {
	if h.payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing is not configured"})
		return
	}
	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_id is required"})
		return
	}

	ctx := c.Request.Context()
	priceID := strings.TrimSpace(body.PriceID)
	if _, errTier := h.store.TierByStripePrice(ctx, priceID); errTier != nil {
		if errors.Is(errTier, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown price"})
			return
		}
		log.WithError(errTier).Warn("front: load tier by price failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout failed"})
		return
	}

	userID := auth.UserID(c)
	req := billing.CheckoutRequest{
		UserID:     userID,
		Email:      auth.UserEmail(c),
		PriceID:    priceID,
		SuccessURL: h.appURL + "/dashboard?checkout=success",
		CancelURL:  h.appURL + "/pricing?checkout=canceled",
	}
	if sub, errSub := h.store.Subscription(ctx, userID); errSub == nil && sub.StripeCustomerID != nil {
		req.CustomerID = *sub.StripeCustomerID
	}

	url, errCheckout := h.payments.CreateCheckoutSession(ctx, req)
	if errCheckout != nil {
		log.WithError(errCheckout).WithField("user_id", userID).Warn("front: create checkout session failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "checkout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Portal opens the billing portal for the caller's Stripe customer.
func (h *BillingHandler) Portal(c *gin.Context) {
	if h.payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing is not configured"})
		return
	}
	ctx := c.Request.Context()
	userID := auth.UserID(c)
	sub, errSub := h.store.Subscription(ctx, userID)
	if errSub != nil && !errors.Is(errSub, store.ErrNotFound) {
		log.WithError(errSub).Warn("front: load subscription failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "portal failed"})
		return
	}
	if sub == nil || sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no billing account"})
		return
	}

	url, errPortal := h.payments.CreatePortalSession(ctx, *sub.StripeCustomerID, h.appURL+"/dashboard")
	if errPortal != nil {
		log.WithError(errPortal).WithField("user_id", userID).Warn("front: create portal session failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "portal failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
