package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dbutil "github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/store"
	"gorm.io/gorm"
)

// SubscriptionHandler exposes user subscriptions to operators.
type SubscriptionHandler struct {
	db    *gorm.DB
	store *store.Store
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(db *gorm.DB) *SubscriptionHandler {
	return &SubscriptionHandler{db: db, store: store.New(db)}
}

// listQuery holds paging parameters shared by admin list endpoints.
type listQuery struct {
	Page   int    `form:"page,default=1"`
	Limit  int    `form:"limit,default=12"`
	Search string `form:"search"`
}

func (q *listQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 12
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	q.Search = strings.TrimSpace(q.Search)
}

func (q *listQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

// List returns a page of subscriptions, optionally filtered by tier or status.
func (h *SubscriptionHandler) List(c *gin.Context) {
	var query listQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	query.normalize()
	var (
		tierQ   = strings.TrimSpace(c.Query("tier_id"))
		statusQ = strings.TrimSpace(c.Query("status"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.UserSubscription{})
	if tierQ != "" {
		q = q.Where("tier_id = ?", tierQ)
	}
	if statusQ != "" {
		q = q.Where("status = ?", statusQ)
	}
	if query.Search != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+query.Search+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "user_id")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "stripe_customer_id"),
			pattern,
			pattern,
		)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count subscriptions failed"})
		return
	}
	var rows []models.UserSubscription
	if errFind := q.Preload("Tier").
		Order("created_at DESC").
		Offset(query.offset()).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list subscriptions failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		tierName := ""
		if row.Tier != nil {
			tierName = row.Tier.Name
		}
		out = append(out, gin.H{
			"id":                        row.ID,
			"user_id":                   row.UserID,
			"tier_id":                   row.TierID,
			"tier_name":                 tierName,
			"status":                    row.Status,
			"monthly_usage_count":       row.MonthlyUsageCount,
			"monthly_quota_limit":       row.MonthlyQuotaLimit,
			"use_personal_keys_default": row.UsePersonalKeysDefault,
			"stripe_customer_id":        row.StripeCustomerID,
			"stripe_subscription_id":    row.StripeSubscriptionID,
			"current_period_start":      row.CurrentPeriodStart,
			"current_period_end":        row.CurrentPeriodEnd,
			"cancel_at_period_end":      row.CancelAtPeriodEnd,
			"created_at":                row.CreatedAt,
			"updated_at":                row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"subscriptions": out,
		"total":         total,
		"page":          query.Page,
		"limit":         query.Limit,
	})
}

// ResetUsage zeroes the monthly usage counter of one user.
func (h *SubscriptionHandler) ResetUsage(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	if errReset := h.store.ResetUsage(c.Request.Context(), userID); errReset != nil {
		if errors.Is(errReset, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset usage failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
