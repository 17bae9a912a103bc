package security

import (
	"context"
	"errors"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "correct horse"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, expiresAt, err := issuer.Issue(42, "door")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "door", claims.Username)
	assert.NotEmpty(t, claims.ID)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenIssuer("other-secret", time.Hour).Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer("test-secret", time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

var hexPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestGenerateUniqueHex(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		value, err := GenerateUniqueHex(context.Background(), 16, func(_ context.Context, v string) (bool, error) {
			return seen[v], nil
		})
		require.NoError(t, err)
		assert.Regexp(t, hexPattern, value)
		assert.False(t, seen[value])
		seen[value] = true
	}
}

func TestGenerateUniqueHexRetriesTakenValues(t *testing.T) {
	calls := 0
	value, err := GenerateUniqueHex(context.Background(), 16, func(context.Context, string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.Len(t, value, 16)
	assert.Equal(t, 3, calls)

	_, err = GenerateUniqueHex(context.Background(), 16, func(context.Context, string) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, ErrNoUniqueValue)

	boom := errors.New("db down")
	_, err = GenerateUniqueHex(context.Background(), 16, func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRandomHexOddLength(t *testing.T) {
	value, err := RandomHex(7)
	require.NoError(t, err)
	assert.Len(t, value, 7)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")
	assert.Equal(t, 2, rl.Len())

	rl.idleTTL = -time.Second
	rl.Cleanup()
	assert.Equal(t, 0, rl.Len())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:   "remote addr",
			remote: "192.0.2.1:5555",
			want:   "192.0.2.1",
		},
		{
			name:   "address without port",
			remote: "198.51.100.4",
			want:   "198.51.100.4",
		},
		{
			name:    "forwarded chain ignored",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			remote:  "10.0.0.1:80",
			want:    "10.0.0.1",
		},
		{
			name:    "real ip ignored",
			headers: map[string]string{"X-Real-IP": "198.51.100.4"},
			remote:  "10.0.0.1:80",
			want:    "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/signup", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}
