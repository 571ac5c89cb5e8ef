package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestToken(t *testing.T, token, secret string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestAuthTokenCmd(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantSub    string
		wantClaim  string
		wantRole   string
		wantErr    bool
		errContain string
	}{
		{
			name:      "default viewer role",
			args:      []string{"--subject", "alice", "--secret", "test-secret"},
			wantSub:   "alice",
			wantClaim: "role",
			wantRole:  "VIEWER",
		},
		{
			name:      "engineer lower-case",
			args:      []string{"--subject", "eve", "--secret", "test-secret", "--role", "engineer"},
			wantSub:   "eve",
			wantClaim: "role",
			wantRole:  "ENGINEER",
		},
		{
			name:      "custom role claim",
			args:      []string{"--subject", "ada", "--secret", "test-secret", "--role", "ADMIN", "--role-claim", "lakegov_role"},
			wantSub:   "ada",
			wantClaim: "lakegov_role",
			wantRole:  "ADMIN",
		},
		{
			name:       "unknown role",
			args:       []string{"--subject", "mallory", "--secret", "test-secret", "--role", "ROOT"},
			wantErr:    true,
			errContain: "unknown role",
		},
		{
			name:       "missing subject",
			args:       []string{"--secret", "test-secret"},
			wantErr:    true,
			errContain: "required",
		},
		{
			name:       "missing secret",
			args:       []string{"--subject", "alice"},
			wantErr:    true,
			errContain: "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfig(t)

			var out bytes.Buffer
			cmd := newAuthTokenCmd()
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
				return
			}
			require.NoError(t, err)

			cfg, err := LoadUserConfig()
			require.NoError(t, err)
			p, ok := cfg.Profiles["default"]
			require.True(t, ok)
			assert.Equal(t, strings.TrimSpace(out.String()), p.Token)

			claims := parseTestToken(t, p.Token, "test-secret")
			assert.Equal(t, tt.wantSub, claims["sub"])
			assert.Equal(t, tt.wantRole, claims[tt.wantClaim])
			assert.NotNil(t, claims["iat"])
			assert.NotNil(t, claims["exp"])
			assert.Nil(t, claims["aud"])
		})
	}
}

func TestAuthTokenCmd_SaveToExistingProfile(t *testing.T) {
	isolateConfig(t)

	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "dev",
		Profiles: map[string]Profile{
			"dev": {Host: "http://localhost:8080", Output: "json"},
		},
	}))

	cmd := newAuthTokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--subject", "ada", "--role", "ADMIN", "--secret", "my-secret", "--audience", "lakegov"})
	require.NoError(t, cmd.Execute())

	loaded, err := LoadUserConfig()
	require.NoError(t, err)
	p := loaded.Profiles["dev"]
	assert.Equal(t, "http://localhost:8080", p.Host, "host should be preserved")
	assert.Equal(t, "json", p.Output, "output should be preserved")

	claims := parseTestToken(t, p.Token, "my-secret")
	assert.Equal(t, "ada", claims["sub"])
	assert.Equal(t, "ADMIN", claims["role"])
	assert.Equal(t, "lakegov", claims["aud"])
}

func TestAuthTokenCmd_NoSave(t *testing.T) {
	isolateConfig(t)

	var out bytes.Buffer
	cmd := newAuthTokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "eve", "--secret", "s", "--no-save"})
	require.NoError(t, cmd.Execute())

	assert.NotEmpty(t, strings.TrimSpace(out.String()))
	_, err := LoadUserConfig()
	assert.Error(t, err, "no profile file should be written")
}
