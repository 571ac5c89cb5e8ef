package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-bytes-long-xxxxx"

// makeToken creates a signed HS256 JWT from the given secret and claims.
func makeToken(secret string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(secret))
	return signed
}

func TestNewHS256Validator(t *testing.T) {
	_, err := NewHS256Validator("", "")
	require.Error(t, err)

	v, err := NewHS256Validator("my-secret", "lakegov")
	require.NoError(t, err)
	assert.Equal(t, []byte("my-secret"), v.secret)
	assert.Equal(t, "lakegov", v.audience)
}

func TestHS256Validator_Validate(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name     string
		audience string
		token    string
		wantErr  bool
		wantSub  string
		wantIss  string
		wantAud  []string
	}{
		{
			name: "all_claims",
			token: makeToken(testSecret, jwt.MapClaims{
				"sub": "user-123", "iss": "https://auth.example.com", "aud": "lakegov", "role": "ADMIN", "exp": exp,
			}),
			wantSub: "user-123",
			wantIss: "https://auth.example.com",
			wantAud: []string{"lakegov"},
		},
		{
			name:    "subject_only",
			token:   makeToken(testSecret, jwt.MapClaims{"sub": "user-456", "exp": exp}),
			wantSub: "user-456",
		},
		{
			name:     "audience_required",
			audience: "lakegov",
			token:    makeToken(testSecret, jwt.MapClaims{"sub": "user-789", "aud": "other", "exp": exp}),
			wantErr:  true,
		},
		{
			name:     "audience_list",
			audience: "lakegov",
			token:    makeToken(testSecret, jwt.MapClaims{"sub": "user-789", "aud": []string{"other", "lakegov"}, "exp": exp}),
			wantSub:  "user-789",
			wantAud:  []string{"other", "lakegov"},
		},
		{
			name:    "expired",
			token:   makeToken(testSecret, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "wrong_secret",
			token:   makeToken("wrong-secret", jwt.MapClaims{"sub": "u", "exp": exp}),
			wantErr: true,
		},
		{
			name: "rs256_rejected",
			token: func() string {
				key, _ := rsa.GenerateKey(rand.Reader, 2048)
				signed, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "rsa", "exp": exp}).SignedString(key)
				return signed
			}(),
			wantErr: true,
		},
		{name: "malformed", token: "not.a.valid.jwt.token", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := NewHS256Validator(testSecret, tt.audience)
			require.NoError(t, err)

			claims, err := v.Validate(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "token verification failed")
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, claims.Subject)
			assert.Equal(t, tt.wantIss, claims.Issuer)
			assert.Equal(t, tt.wantAud, claims.Audience)
			assert.NotNil(t, claims.Raw)
		})
	}
}

func TestNewOIDCValidatorFromJWKS(t *testing.T) {
	v := NewOIDCValidatorFromJWKS(context.Background(),
		"https://auth.example.com/.well-known/jwks.json", "https://auth.example.com", "lakegov")
	require.NotNil(t, v)
	assert.NotNil(t, v.verifier)

	_, err := v.Validate(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token verification failed")
}
