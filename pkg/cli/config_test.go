package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserConfig_ActiveProfile(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"default": {
				Host:   "http://localhost:8080",
				Output: "table",
			},
			"staging": {
				Host:   "https://staging.example.com",
				Output: "json",
			},
		},
	}

	tests := []struct {
		name     string
		override string
		wantHost string
		wantErr  string
	}{
		{
			name:     "uses current profile",
			override: "",
			wantHost: "http://localhost:8080",
		},
		{
			name:     "override to staging",
			override: "staging",
			wantHost: "https://staging.example.com",
		},
		{
			name:     "nonexistent profile returns error",
			override: "nonexistent",
			wantErr:  `profile "nonexistent" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfg.ActiveProfile(tt.override)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, p.Host)
		})
	}
}

func TestUserConfig_ActiveProfile_UnknownCurrent(t *testing.T) {
	cfg := &UserConfig{CurrentProfile: "gone", Profiles: map[string]Profile{}}
	p, err := cfg.ActiveProfile("")
	require.NoError(t, err)
	assert.Equal(t, Profile{}, p)
}

func TestLoadSaveUserConfig(t *testing.T) {
	dir := isolateConfig(t)

	cfg := &UserConfig{
		CurrentProfile: "test",
		Profiles: map[string]Profile{
			"test": {
				Host:  "http://test:8080",
				Token: "tok_test",
			},
		},
	}
	require.NoError(t, SaveUserConfig(cfg))

	configPath := filepath.Join(dir, "govctl", "config.yaml")
	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", loaded.CurrentProfile)
	require.Contains(t, loaded.Profiles, "test")
	assert.Equal(t, "http://test:8080", loaded.Profiles["test"].Host)
	assert.Equal(t, "tok_test", loaded.Profiles["test"].Token)
}

func TestLoadUserConfig_NotFound(t *testing.T) {
	isolateConfig(t)

	_, err := LoadUserConfig()
	require.Error(t, err)
}

func TestLoadUserConfig_Malformed(t *testing.T) {
	isolateConfig(t)
	require.NoError(t, os.MkdirAll(ConfigDir(), 0o700))
	require.NoError(t, os.WriteFile(ConfigPath(), []byte("profiles: [unclosed"), 0o600))

	_, err := LoadUserConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidateHostURL(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		wantErr string
	}{
		{name: "http", host: "http://127.0.0.1:8080"},
		{name: "https with slash", host: "https://gov.example.com/"},
		{name: "missing scheme", host: "localhost:8080", wantErr: "scheme"},
		{name: "empty", host: "  ", wantErr: "cannot be empty"},
		{name: "api prefix", host: "http://localhost:8080/v1", wantErr: "adds /v1"},
		{name: "credentials", host: "http://user:pw@localhost:8080", wantErr: "credentials"},
		{name: "query", host: "http://localhost:8080?x=1", wantErr: "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHostURL(tt.host)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
