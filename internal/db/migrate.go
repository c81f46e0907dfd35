package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/promptarchitect/server/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// schemaModels lists every table managed by AutoMigrate, in dependency order.
func schemaModels() []any {
	return []any{
		&models.SubscriptionTier{},
		&models.SupportedModel{},
		&models.SupportedTemplate{},
		&models.UserSubscription{},
		&models.UserAPIKey{},
		&models.UserPrompt{},
		&models.BillingWebhookEvent{},
		&models.Admin{},
	}
}

// migratePostgres applies the schema plus PostgreSQL-only constraints.
func migratePostgres(conn *gorm.DB) error {
	if errAuto := conn.AutoMigrate(schemaModels()...); errAuto != nil {
		return fmt.Errorf("db: auto migrate: %w", errAuto)
	}
	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_user_subscriptions_usage_nonnegative'
			) THEN
				ALTER TABLE user_subscriptions
					ADD CONSTRAINT chk_user_subscriptions_usage_nonnegative CHECK (monthly_usage_count >= 0);
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add usage check constraint: %w", errCheck)
	}
	if errIndex := conn.Exec(
		`CREATE INDEX IF NOT EXISTS idx_user_prompts_user_created ON user_prompts (user_id, created_at DESC)`,
	).Error; errIndex != nil {
		return fmt.Errorf("db: create user_prompts index: %w", errIndex)
	}
	return ensureSeedData(conn)
}

// migrateSQLite applies the schema for local and test databases.
func migrateSQLite(conn *gorm.DB) error {
	if errAuto := conn.AutoMigrate(schemaModels()...); errAuto != nil {
		return fmt.Errorf("db: auto migrate: %w", errAuto)
	}
	if errIndex := conn.Exec(
		`CREATE INDEX IF NOT EXISTS idx_user_prompts_user_created ON user_prompts (user_id, created_at)`,
	).Error; errIndex != nil {
		return fmt.Errorf("db: create user_prompts index: %w", errIndex)
	}
	return ensureSeedData(conn)
}

// ensureSeedData inserts the rows the gateway relies on when they are missing.
func ensureSeedData(conn *gorm.DB) error {
	if errTier := ensureFreeTier(conn); errTier != nil {
		return errTier
	}
	if errModels := ensureDefaultModels(conn); errModels != nil {
		return errModels
	}
	if errTemplates := ensureDefaultTemplates(conn); errTemplates != nil {
		return errTemplates
	}
	return nil
}

// DefaultFreeQuota is the monthly platform-key quota of the seeded free tier.
const DefaultFreeQuota = 50

// ensureFreeTier ensures the free tier exists.
func ensureFreeTier(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.SubscriptionTier{}).Where("id = ?", models.FreeTierID).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: check free tier: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	quota := DefaultFreeQuota
	features, errMarshal := json.Marshal(models.TierFeatures{
		PromptsIncluded: &quota,
		BYOKEnabled:     false,
		TemplateAccess:  "basic",
		VariationsLimit: 1,
	})
	if errMarshal != nil {
		return fmt.Errorf("db: marshal free tier features: %w", errMarshal)
	}

	now := time.Now().UTC()
	tier := models.SubscriptionTier{
		ID:           models.FreeTierID,
		Name:         "Free",
		Description:  "Get started with the platform key",
		MonthlyQuota: quota,
		Currency:     "usd",
		IsActive:     true,
		Features:     datatypes.JSON(features),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := conn.Create(&tier).Error; errCreate != nil {
		return fmt.Errorf("db: create free tier: %w", errCreate)
	}
	return nil
}

// ensureDefaultModels seeds the catalog when it is empty.
func ensureDefaultModels(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.SupportedModel{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: check supported models: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	seeds := []models.SupportedModel{
		{
			ModelID:     "gemini-1.5-flash",
			Name:        "Gemini 1.5 Flash",
			Provider:    "gemini",
			Description: "Fast multimodal model from Google",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent",
			EnvKey:      "GEMINI_API_KEY",
			SortOrder:   1,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ModelID:     "gpt-4o-mini",
			Name:        "GPT-4o mini",
			Provider:    "openai",
			Description: "Small, affordable OpenAI model",
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			EnvKey:      "OPENAI_API_KEY",
			SortOrder:   2,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	if errCreate := conn.Create(&seeds).Error; errCreate != nil {
		return fmt.Errorf("db: create default models: %w", errCreate)
	}
	return nil
}

// ensureDefaultTemplates ensures the general template exists.
func ensureDefaultTemplates(conn *gorm.DB) error {
	var existing models.SupportedTemplate
	if errFind := conn.Where("id = ?", "general").First(&existing).Error; errFind == nil {
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query general template: %w", errFind)
	}

	now := time.Now().UTC()
	template := models.SupportedTemplate{
		ID:          "general",
		Name:        "General",
		Description: "Turns any topic into a structured, production-ready prompt",
		Structure: "You are an expert AI prompt engineer. Transform the topic {{topic}} into a specific, " +
			"detailed and actionable prompt for a generative model. Tone: {{tone}}.",
		DefaultParams: datatypes.JSON([]byte(`{"tone":"professional"}`)),
		TierAccess:    "basic",
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errCreate := conn.Create(&template).Error; errCreate != nil {
		return fmt.Errorf("db: create general template: %w", errCreate)
	}
	return nil
}
