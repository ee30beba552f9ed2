package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlabs/cortexcache/internal/cortexerr"
)

type fakeVerifier struct {
	identity Identity
	err      error
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (Identity, error) {
	return f.identity, f.err
}

func TestAuthorizer_Authorize(t *testing.T) {
	t.Run("skips resolution entirely when auth isn't required", func(t *testing.T) {
		// Arrange
		a := New(&fakeVerifier{err: errors.New("should not be called")})

		// Act
		_, err := a.Authorize(context.Background(), false, nil)

		// Assert
		assert.NoError(t, err)
	})

	t.Run("fails with Unauthenticated when no token is on the context", func(t *testing.T) {
		a := New(&fakeVerifier{})

		_, err := a.Authorize(context.Background(), true, nil)

		require.Error(t, err)
		assert.Equal(t, cortexerr.KindUnauthenticated, cortexerr.KindOf(err))
	})

	t.Run("fails with Unauthenticated when the verifier rejects the token", func(t *testing.T) {
		a := New(&fakeVerifier{err: errors.New("bad token")})
		ctx := WithToken(context.Background(), "sometoken")

		_, err := a.Authorize(ctx, true, nil)

		require.Error(t, err)
		assert.Equal(t, cortexerr.KindUnauthenticated, cortexerr.KindOf(err))
	})

	t.Run("fails with Unauthorized when a required scope is missing", func(t *testing.T) {
		a := New(&fakeVerifier{identity: Identity{UserID: "u1", Scopes: []string{"read"}}})
		ctx := WithToken(context.Background(), "sometoken")

		_, err := a.Authorize(ctx, true, []string{"read", "write"})

		require.Error(t, err)
		assert.Equal(t, cortexerr.KindUnauthorized, cortexerr.KindOf(err))
	})

	t.Run("succeeds when identity carries every required scope", func(t *testing.T) {
		a := New(&fakeVerifier{identity: Identity{UserID: "u1", Scopes: []string{"read", "write"}}})
		ctx := WithToken(context.Background(), "sometoken")

		identity, err := a.Authorize(ctx, true, []string{"read", "write"})

		require.NoError(t, err)
		assert.Equal(t, "u1", identity.UserID)
	})
}

func TestJWTVerifier_Verify(t *testing.T) {
	t.Run("accepts a validly signed token and extracts scopes", func(t *testing.T) {
		secret := []byte("test-secret")
		claims := jwtClaims{
			UserID: "u42",
			Scopes: []string{"read"},
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(secret)
		require.NoError(t, err)

		v := NewJWTVerifier(secret)
		identity, err := v.Verify(context.Background(), signed)

		require.NoError(t, err)
		assert.Equal(t, "u42", identity.UserID)
		assert.True(t, identity.HasScope("read"))
	})

	t.Run("rejects a token signed with the wrong secret", func(t *testing.T) {
		claims := jwtClaims{UserID: "u42"}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte("wrong-secret"))
		require.NoError(t, err)

		v := NewJWTVerifier([]byte("test-secret"))
		_, err = v.Verify(context.Background(), signed)

		assert.Error(t, err)
	})
}
