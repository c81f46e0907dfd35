package security

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestKeyCipher_RoundTrip(t *testing.T) {
	cipher, err := NewKeyCipher(testKey())
	require.NoError(t, err)

	sealed, err := cipher.Seal("sk-live-abcdef123456", "user-1:openai")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk-live")

	opened, err := cipher.Open(sealed, "user-1:openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-abcdef123456", opened)
}

func TestKeyCipher_RejectsWrongAssociatedData(t *testing.T) {
	cipher, err := NewKeyCipher(testKey())
	require.NoError(t, err)

	sealed, err := cipher.Seal("sk-live-abcdef123456", "user-1:openai")
	require.NoError(t, err)

	_, err = cipher.Open(sealed, "user-2:openai")
	assert.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestKeyCipher_RejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewKeyCipher(testKey())
	require.NoError(t, err)

	_, err = cipher.Open("not-base64!!", "ad")
	assert.ErrorIs(t, err, ErrCiphertextInvalid)

	_, err = cipher.Open("c2hvcnQ=", "ad")
	assert.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestNewKeyCipher_InvalidLength(t *testing.T) {
	_, err := NewKeyCipher([]byte("short"))
	assert.Error(t, err)
}

func TestKeyHint(t *testing.T) {
	assert.Equal(t, "3456", KeyHint("sk-abcdef123456"))
	assert.Equal(t, "", KeyHint("abc"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestAdminToken_RoundTrip(t *testing.T) {
	token, expiresAt, err := IssueAdminToken("secret", 7, "root", time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := ParseAdminToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.AdminID)
	assert.Equal(t, "root", claims.Username)

	_, err = ParseAdminToken("other-secret", token)
	assert.Error(t, err)
}

func TestAdminToken_Expired(t *testing.T) {
	token, _, err := IssueAdminToken("secret", 7, "root", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAdminToken("secret", token)
	assert.Error(t, err)
}

func TestTOTP_Validate(t *testing.T) {
	enrollment, err := GenerateTOTP("root")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))

	now := time.Now()
	code, err := totp.GenerateCode(enrollment.Secret, now)
	require.NoError(t, err)
	assert.True(t, ValidateTOTP(enrollment.Secret, code, now))
	assert.False(t, ValidateTOTP(enrollment.Secret, "12345", now))
	assert.False(t, ValidateTOTP("", code, now))
}
