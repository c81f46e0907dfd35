package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/http/api/admin/permissions"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testJWT = config.JWTConfig{Secret: "admin-test-secret-with-enough-length", Expiry: time.Hour}

type adminEnv struct {
	router *gin.Engine
	db     *gorm.DB
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(db.BuildSQLiteDSN(filepath.Join(t.TempDir(), "admin.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	require.NoError(t, db.Migrate(conn))

	router := gin.New()
	RegisterAdminRoutes(router, conn, testJWT)
	return &adminEnv{router: router, db: conn}
}

func (e *adminEnv) createAdmin(t *testing.T, username, password string, super bool, perms []string) models.Admin {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	raw, err := permissions.MarshalPermissions(perms)
	require.NoError(t, err)
	admin := models.Admin{
		Username:     username,
		Password:     hash,
		Active:       true,
		IsSuperAdmin: super,
		Permissions:  datatypes.JSON(raw),
	}
	require.NoError(t, e.db.Create(&admin).Error)
	return admin
}

func (e *adminEnv) tokenFor(t *testing.T, admin models.Admin) string {
	t.Helper()
	token, _, err := security.IssueAdminToken(testJWT.Secret, admin.ID, admin.Username, testJWT.Expiry)
	require.NoError(t, err)
	return token
}

func (e *adminEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestLogin(t *testing.T) {
	env := newAdminEnv(t)
	env.createAdmin(t, "root", "s3cret", true, nil)

	rec := env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"root","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"nobody","password":"s3cret"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"root","password":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, true, body["is_super_admin"])

	claims, err := security.ParseAdminToken(testJWT.Secret, token)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Username)

	var stored models.Admin
	require.NoError(t, env.db.Where("username = ?", "root").First(&stored).Error)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLogin_DisabledAdmin(t *testing.T) {
	env := newAdminEnv(t)
	admin := env.createAdmin(t, "ops", "pw", false, nil)
	require.NoError(t, env.db.Model(&models.Admin{}).Where("id = ?", admin.ID).Update("active", false).Error)

	rec := env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"ops","password":"pw"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v0/admin/models", "", env.tokenFor(t, admin))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTOTPEnrollmentAndLogin(t *testing.T) {
	env := newAdminEnv(t)
	admin := env.createAdmin(t, "root", "pw", true, nil)
	token := env.tokenFor(t, admin)

	rec := env.do(t, http.MethodPost, "/v0/admin/mfa/totp/prepare", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	secret, _ := decode(t, rec)["secret"].(string)
	require.NotEmpty(t, secret)

	rec = env.do(t, http.MethodPost, "/v0/admin/mfa/totp/confirm", `{"code":"000000"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/v0/admin/mfa/totp/confirm", `{"code":"`+code+`"}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v0/admin/mfa/status", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["totp_enabled"])

	rec = env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"root","password":"pw"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decode(t, rec)["mfa_required"])

	code, err = totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"root","password":"pw","totp_code":"`+code+`"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	env := newAdminEnv(t)

	rec := env.do(t, http.MethodGet, "/v0/admin/models", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v0/admin/models", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPermissionMiddleware(t *testing.T) {
	env := newAdminEnv(t)
	limited := env.createAdmin(t, "viewer", "pw", false, []string{
		permissions.Key(http.MethodGet, "/v0/admin/models"),
	})
	token := env.tokenFor(t, limited)

	rec := env.do(t, http.MethodGet, "/v0/admin/models", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/models", `{"model_id":"x","provider":"openai"}`, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v0/admin/tiers", "", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v0/admin/mfa/status", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestModelsCRUD(t *testing.T) {
	env := newAdminEnv(t)
	token := env.tokenFor(t, env.createAdmin(t, "root", "pw", true, nil))

	rec := env.do(t, http.MethodPost, "/v0/admin/models", `{"model_id":"llama-3","provider":"nope"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/models",
		`{"model_id":"llama-3","name":"Llama 3","provider":"groq","env_key":"GROQ_API_KEY","is_active":false}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, false, created["is_active"])
	id := int(created["id"].(float64))

	var row models.SupportedModel
	require.NoError(t, env.db.First(&row, id).Error)
	assert.False(t, row.IsActive)
	assert.Equal(t, "groq", row.Provider)

	rec = env.do(t, http.MethodPost, "/v0/admin/models/"+itoa(id)+"/enable", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, env.db.First(&row, id).Error)
	assert.True(t, row.IsActive)

	rec = env.do(t, http.MethodPut, "/v0/admin/models/"+itoa(id), `{"name":"Llama 3 70B","sort_order":9}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Llama 3 70B", decode(t, rec)["name"])

	rec = env.do(t, http.MethodPost, "/v0/admin/models/999/disable", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v0/admin/models?provider=groq", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	list, _ := decode(t, rec)["models"].([]any)
	assert.Len(t, list, 1)
}

func TestTemplatesCRUD(t *testing.T) {
	env := newAdminEnv(t)
	token := env.tokenFor(t, env.createAdmin(t, "root", "pw", true, nil))

	rec := env.do(t, http.MethodPost, "/v0/admin/templates",
		`{"id":"email","name":"Email","structure":"Write about {{topic}}","default_params":[1]}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/templates",
		`{"id":"email","name":"Email","structure":"Write about {{topic}}","default_params":{"tone":"warm"}}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v0/admin/templates",
		`{"id":"email","name":"Email","structure":"x"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/v0/admin/templates/email", `{"is_active":false}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["is_active"])

	rec = env.do(t, http.MethodDelete, "/v0/admin/templates/email", "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/v0/admin/templates/email", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTiersCRUD(t *testing.T) {
	env := newAdminEnv(t)
	token := env.tokenFor(t, env.createAdmin(t, "root", "pw", true, nil))

	rec := env.do(t, http.MethodPost, "/v0/admin/tiers",
		`{"id":"pro","name":"Pro","price_in_cents":900,"stripe_price_id":"price_pro","features":{"prompts_included":500,"byok_enabled":true}}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 500, decode(t, rec)["monthly_quota"])

	var tier models.SubscriptionTier
	require.NoError(t, env.db.Where("id = ?", "pro").First(&tier).Error)
	require.NotNil(t, tier.StripePriceID)
	assert.Equal(t, "price_pro", *tier.StripePriceID)
	assert.True(t, tier.BYOKEnabled())

	rec = env.do(t, http.MethodPut, "/v0/admin/tiers/pro", `{"features":{"prompts_included":1000,"byok_enabled":true}}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, env.db.Where("id = ?", "pro").First(&tier).Error)
	assert.Equal(t, 1000, tier.PromptsIncluded())
	assert.Equal(t, 1000, tier.MonthlyQuota)

	rec = env.do(t, http.MethodPut, "/v0/admin/tiers/free", `{"is_active":false}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v0/admin/tiers/missing", `{"name":"x"}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptionsListAndReset(t *testing.T) {
	env := newAdminEnv(t)
	token := env.tokenFor(t, env.createAdmin(t, "root", "pw", true, nil))

	for _, userID := range []string{"user-a", "user-b"} {
		require.NoError(t, env.db.Create(&models.UserSubscription{
			UserID:            userID,
			TierID:            models.FreeTierID,
			Status:            models.SubscriptionStatusActive,
			MonthlyUsageCount: 7,
			MonthlyQuotaLimit: db.DefaultFreeQuota,
		}).Error)
	}

	rec := env.do(t, http.MethodGet, "/v0/admin/subscriptions?search=USER-A&limit=5", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 5, body["limit"])
	rows, _ := body["subscriptions"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Free", rows[0].(map[string]any)["tier_name"])

	rec = env.do(t, http.MethodPost, "/v0/admin/subscriptions/user-a/reset-usage", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	var sub models.UserSubscription
	require.NoError(t, env.db.Where("user_id = ?", "user-a").First(&sub).Error)
	assert.Equal(t, 0, sub.MonthlyUsageCount)

	rec = env.do(t, http.MethodPost, "/v0/admin/subscriptions/ghost/reset-usage", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookEventsList(t *testing.T) {
	env := newAdminEnv(t)
	token := env.tokenFor(t, env.createAdmin(t, "root", "pw", true, nil))

	now := time.Now().UTC()
	require.NoError(t, env.db.Create(&models.BillingWebhookEvent{
		Provider: "stripe", EventID: "evt_ok", EventType: "customer.subscription.updated", ProcessedAt: &now,
	}).Error)
	require.NoError(t, env.db.Create(&models.BillingWebhookEvent{
		Provider: "stripe", EventID: "evt_bad", EventType: "checkout.session.completed", ProcessedAt: &now,
		ProcessingError: "billing: lookup miss",
	}).Error)

	rec := env.do(t, http.MethodGet, "/v0/admin/webhook-events", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode(t, rec)["total"])

	rec = env.do(t, http.MethodGet, "/v0/admin/webhook-events?failed=true", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
	events, _ := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_bad", events[0].(map[string]any)["event_id"])
}

func TestAdminsManagement(t *testing.T) {
	env := newAdminEnv(t)
	root := env.createAdmin(t, "root", "pw", true, nil)
	token := env.tokenFor(t, root)

	rec := env.do(t, http.MethodPost, "/v0/admin/admins", `{"username":"ops","password":"pw","permissions":["GET /v0/nope"]}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/admins",
		`{"username":"ops","password":"pw","permissions":["GET /v0/admin/tiers"," GET /v0/admin/tiers"]}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, []any{"GET /v0/admin/tiers"}, created["permissions"])
	opsID := int(created["id"].(float64))

	rec = env.do(t, http.MethodPost, "/v0/admin/admins", `{"username":"ops","password":"pw"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/admins/"+itoa(int(root.ID))+"/disable", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/admins/"+itoa(opsID)+"/disable", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"ops","password":"pw"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v0/admin/admins/"+itoa(opsID)+"/enable", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPut, "/v0/admin/admins/"+itoa(opsID)+"/password", `{"password":"new"}`, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/v0/admin/login", `{"username":"ops","password":"new"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v0/admin/permissions", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	defs, _ := decode(t, rec)["permissions"].([]any)
	assert.Len(t, defs, len(permissions.Definitions()))
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
