// Package apikeys stores personal provider credentials for bring-your-own-key usage.
package apikeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/provider"
	"github.com/promptarchitect/server/internal/security"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MinKeyLength is the shortest key accepted by Save.
const MinKeyLength = 10

var (
	// ErrInvalidKey reports an empty or too short key.
	ErrInvalidKey = errors.New("apikeys: invalid api key")
	// ErrUnknownProvider reports a provider without an adapter.
	ErrUnknownProvider = errors.New("apikeys: unknown provider")
)

// Service manages encrypted user API keys.
type Service struct {
	db     *gorm.DB
	cipher *security.KeyCipher
}

// NewService constructs a Service.
func NewService(db *gorm.DB, cipher *security.KeyCipher) *Service {
	return &Service{db: db, cipher: cipher}
}

// KeyInfo describes a stored key without revealing it.
type KeyInfo struct {
	Provider  string    `json:"provider"`
	Hint      string    `json:"hint"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Service) ready() error {
	if s == nil || s.db == nil || s.cipher == nil {
		return fmt.Errorf("apikeys: not initialized")
	}
	return nil
}

func normalize(userID, tag string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", fmt.Errorf("apikeys: empty user id")
	}
	tag = provider.NormalizeTag(tag)
	if !provider.IsSupported(tag) {
		return "", "", ErrUnknownProvider
	}
	return userID, tag, nil
}

func associatedData(userID, tag string) string {
	return userID + ":" + tag
}

// Save encrypts and upserts the key for (userID, provider).
func (s *Service) Save(ctx context.Context, userID, providerTag, key string) error {
	if errReady := s.ready(); errReady != nil {
		return errReady
	}
	key = strings.TrimSpace(key)
	if len(key) < MinKeyLength {
		return ErrInvalidKey
	}
	userID, tag, errNormalize := normalize(userID, providerTag)
	if errNormalize != nil {
		return errNormalize
	}

	sealed, errSeal := s.cipher.Seal(key, associatedData(userID, tag))
	if errSeal != nil {
		return fmt.Errorf("apikeys: seal: %w", errSeal)
	}

	now := time.Now().UTC()
	row := models.UserAPIKey{
		UserID:       userID,
		Provider:     tag,
		EncryptedKey: sealed,
		KeyHint:      security.KeyHint(key),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"encrypted_key", "key_hint", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("apikeys: upsert: %w", errUpsert)
	}
	return nil
}

// Delete removes the key for (userID, provider). Missing keys are not an error.
func (s *Service) Delete(ctx context.Context, userID, providerTag string) error {
	if errReady := s.ready(); errReady != nil {
		return errReady
	}
	userID, tag, errNormalize := normalize(userID, providerTag)
	if errNormalize != nil {
		return errNormalize
	}
	if errDelete := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, tag).
		Delete(&models.UserAPIKey{}).Error; errDelete != nil {
		return fmt.Errorf("apikeys: delete: %w", errDelete)
	}
	return nil
}

// Status maps every supported provider to whether the user stored a key for it.
func (s *Service) Status(ctx context.Context, userID string) (map[string]bool, error) {
	keys, errList := s.List(ctx, userID)
	if errList != nil {
		return nil, errList
	}
	out := make(map[string]bool, len(provider.Tags()))
	for _, tag := range provider.Tags() {
		out[tag] = false
	}
	for _, key := range keys {
		out[key.Provider] = true
	}
	return out, nil
}

// List returns the stored keys of a user with hints only.
func (s *Service) List(ctx context.Context, userID string) ([]KeyInfo, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	var rows []models.UserAPIKey
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("provider ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("apikeys: list: %w", errFind)
	}
	out := make([]KeyInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, KeyInfo{Provider: row.Provider, Hint: row.KeyHint, UpdatedAt: row.UpdatedAt})
	}
	return out, nil
}

// Lookup decrypts the user's key for provider.
func (s *Service) Lookup(ctx context.Context, userID, providerTag string) (string, bool, error) {
	if errReady := s.ready(); errReady != nil {
		return "", false, errReady
	}
	userID, tag, errNormalize := normalize(userID, providerTag)
	if errors.Is(errNormalize, ErrUnknownProvider) {
		return "", false, nil
	}
	if errNormalize != nil {
		return "", false, errNormalize
	}

	var row models.UserAPIKey
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, tag).
		Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if errFind != nil {
		return "", false, fmt.Errorf("apikeys: lookup: %w", errFind)
	}

	key, errOpen := s.cipher.Open(row.EncryptedKey, associatedData(userID, tag))
	if errOpen != nil {
		return "", false, fmt.Errorf("apikeys: open %s key: %w", tag, errOpen)
	}
	return key, true, nil
}

// UpdateBYOKDefault stores the user's default personal key preference.
func (s *Service) UpdateBYOKDefault(ctx context.Context, userID string, enabled bool) error {
	if errReady := s.ready(); errReady != nil {
		return errReady
	}
	res := s.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Updates(map[string]any{"use_personal_keys_default": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("apikeys: update byok default: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
