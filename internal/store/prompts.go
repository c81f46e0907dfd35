package store

import (
	"context"
	"fmt"

	"github.com/promptarchitect/server/internal/models"
)

const (
	defaultPromptLimit = 20
	maxPromptLimit     = 100
)

// ListPrompts returns the newest history rows of a user.
func (s *Store) ListPrompts(ctx context.Context, userID string, limit int) ([]models.UserPrompt, error) {
	if errReady := s.ready(); errReady != nil {
		return nil, errReady
	}
	if limit <= 0 {
		limit = defaultPromptLimit
	}
	if limit > maxPromptLimit {
		limit = maxPromptLimit
	}
	var rows []models.UserPrompt
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list prompts: %w", errFind)
	}
	return rows, nil
}
