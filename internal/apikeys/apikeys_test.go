package apikeys

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/models"
	"github.com/promptarchitect/server/internal/security"
	"github.com/promptarchitect/server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	conn, err := db.Open(db.BuildSQLiteDSN(filepath.Join(t.TempDir(), "apikeys-test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	require.NoError(t, db.Migrate(conn))

	cipher, err := security.NewKeyCipher(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return conn, NewService(conn, cipher)
}

func TestSave_EncryptsAndLooksUp(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "user-1", "OpenAI", "  sk-abcdefghijkl  "))

	var row models.UserAPIKey
	require.NoError(t, conn.Where("user_id = ? AND provider = ?", "user-1", "openai").Take(&row).Error)
	assert.NotContains(t, row.EncryptedKey, "sk-abcdefghijkl")
	assert.Equal(t, "ijkl", row.KeyHint)

	key, ok, err := svc.Lookup(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-abcdefghijkl", key)
}

func TestSave_UpsertsPerProvider(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "user-1", "gemini", "first-key-0001"))
	require.NoError(t, svc.Save(ctx, "user-1", "google", "second-key-0002"))

	var count int64
	require.NoError(t, conn.Model(&models.UserAPIKey{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	key, ok, err := svc.Lookup(ctx, "user-1", "gemini")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second-key-0002", key)
}

func TestSave_Validation(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Save(ctx, "user-1", "openai", "short"), ErrInvalidKey)
	assert.ErrorIs(t, svc.Save(ctx, "user-1", "openai", "   "), ErrInvalidKey)
	assert.ErrorIs(t, svc.Save(ctx, "user-1", "anthropic", "sk-abcdefghijkl"), ErrUnknownProvider)
}

func TestDeleteAndStatus(t *testing.T) {
	_, svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "user-1", "openai", "sk-abcdefghijkl"))
	require.NoError(t, svc.Save(ctx, "user-2", "groq", "gsk-abcdefghijkl"))

	status, err := svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, status["openai"])
	assert.False(t, status["gemini"])
	assert.False(t, status["groq"])

	require.NoError(t, svc.Delete(ctx, "user-1", "openai"))
	require.NoError(t, svc.Delete(ctx, "user-1", "openai"))

	status, err = svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, status["openai"])

	_, ok, err := svc.Lookup(ctx, "user-1", "openai")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookup_KeysAreScopedToOwner(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, "user-1", "openai", "sk-abcdefghijkl"))

	// Moving the ciphertext to another user must not decrypt.
	require.NoError(t, conn.Model(&models.UserAPIKey{}).Where("user_id = ?", "user-1").Update("user_id", "user-2").Error)
	_, _, err := svc.Lookup(ctx, "user-2", "openai")
	assert.ErrorIs(t, err, security.ErrCiphertextInvalid)
}

func TestUpdateBYOKDefault(t *testing.T) {
	conn, svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.UpdateBYOKDefault(ctx, "user-1", true), gorm.ErrRecordNotFound)

	_, err := store.New(conn).EnsureSubscription(ctx, "user-1", models.FreeTierID)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateBYOKDefault(ctx, "user-1", true))

	var sub models.UserSubscription
	require.NoError(t, conn.Where("user_id = ?", "user-1").Take(&sub).Error)
	assert.True(t, sub.UsePersonalKeysDefault)
}
