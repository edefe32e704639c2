package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-secret-that-is-long-enough-for-testing"
	wrongSecret = "wrong-secret-that-is-long-enough-for-testing"
)

var fixedTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func at(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func signRaw(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tokenLifetime := 60 * time.Minute
	learnerID := uuid.New()
	svc := newHMACJWTService(testSecret, tokenLifetime, at(fixedTime))

	token, err := svc.GenerateToken(context.Background(), learnerID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, learnerID, claims.LearnerID)
	assert.Equal(t, learnerID.String(), claims.Subject)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(tokenLifetime).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	tokenLifetime := 60 * time.Minute
	learnerID := uuid.New()
	issuer := newHMACJWTService(testSecret, tokenLifetime, at(fixedTime))
	validToken, err := issuer.GenerateToken(context.Background(), learnerID)
	require.NoError(t, err)

	expiry := jwt.NewNumericDate(fixedTime.Add(time.Hour))

	tests := []struct {
		name      string
		validator *hmacJWTService
		token     func(t *testing.T) string
		wantErr   error
	}{
		{
			name:      "valid token",
			validator: issuer,
			token:     func(*testing.T) string { return validToken },
		},
		{
			name:      "within clock skew after expiry",
			validator: newHMACJWTService(testSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Minute))),
			token:     func(*testing.T) string { return validToken },
		},
		{
			name:      "expired token",
			validator: newHMACJWTService(testSecret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Hour))),
			token:     func(*testing.T) string { return validToken },
			wantErr:   ErrExpiredToken,
		},
		{
			name:      "not yet valid",
			validator: issuer,
			token: func(t *testing.T) string {
				return signRaw(t, testSecret, jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   learnerID.String(),
					NotBefore: jwt.NewNumericDate(fixedTime.Add(30 * time.Minute)),
					ExpiresAt: expiry,
				}})
			},
			wantErr: ErrTokenNotYetValid,
		},
		{
			name:      "invalid signature",
			validator: newHMACJWTService(wrongSecret, tokenLifetime, at(fixedTime)),
			token:     func(*testing.T) string { return validToken },
			wantErr:   ErrInvalidToken,
		},
		{
			name:      "malformed token",
			validator: issuer,
			token:     func(*testing.T) string { return "this.is.not.a.valid.jwt.token" },
			wantErr:   ErrInvalidToken,
		},
		{
			name:      "missing expiry",
			validator: issuer,
			token: func(t *testing.T) string {
				return signRaw(t, testSecret, jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
					Subject: learnerID.String(),
				}})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name:      "refresh token",
			validator: issuer,
			token: func(t *testing.T) string {
				return signRaw(t, testSecret, jwtCustomClaims{TokenType: "refresh", RegisteredClaims: jwt.RegisteredClaims{
					Subject:   learnerID.String(),
					ExpiresAt: expiry,
				}})
			},
			wantErr: ErrWrongTokenType,
		},
		{
			name:      "subject is not a uuid",
			validator: issuer,
			token: func(t *testing.T) string {
				return signRaw(t, testSecret, jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "learner@example.com",
					ExpiresAt: expiry,
				}})
			},
			wantErr: ErrInvalidSubject,
		},
		{
			name:      "untyped token from the account service",
			validator: issuer,
			token: func(t *testing.T) string {
				return signRaw(t, testSecret, jwtCustomClaims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   learnerID.String(),
					ExpiresAt: expiry,
				}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			claims, err := tt.validator.ValidateToken(context.Background(), tt.token(t))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, learnerID, claims.LearnerID)
		})
	}
}
