package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onnwee/pomodorotteux/crypto"
	"github.com/onnwee/pomodorotteux/errs"
)

func TestNewAppliesDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := New(Params{Channel: "#pariterre", OAuthKey: "abc"})
	req.NoError(err)
	req.Equal("pariterre", cfg.ChannelName)
	req.Equal("pariterre", cfg.Nickname, "nickname defaults to channel")
	req.Equal("oauth:abc", cfg.OAuthKey, "credential gets the oauth: prefix")
	req.Equal(DefaultServerAddress, cfg.ServerAddress)
	req.Equal(DefaultPort, cfg.Port)
	req.Equal(DefaultDatabasePath(), cfg.DatabasePath)
	req.Equal("irc.chat.twitch.tv:6667", cfg.Address())
}

func TestNewKeepsPrefixedCredential(t *testing.T) {
	cfg, err := New(Params{Channel: "c", Nickname: "bot", OAuthKey: "oauth:xyz", Port: 6697})
	require.NoError(t, err)
	require.Equal(t, "oauth:xyz", cfg.OAuthKey)
	require.Equal(t, "bot", cfg.Nickname)
	require.Equal(t, 6697, cfg.Port)
}

func TestNewRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   error
	}{
		{"missing credential", Params{Channel: "c"}, ErrMissingCredential},
		{"blank credential", Params{Channel: "c", OAuthKey: "   "}, ErrMissingCredential},
		{"missing channel", Params{OAuthKey: "k"}, ErrMissingChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params)
			require.ErrorIs(t, err, errs.ErrConfiguration)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(Params{Channel: "c", OAuthKey: "k", Port: 70000})
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestGenerateThenLoad(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "nested", "my_config_file.key")
	db := filepath.Join(t.TempDir(), "database.pomo")

	_, err := Generate(path, Params{Channel: "chan", OAuthKey: "token", DatabasePath: db}, nil)
	req.NoError(err)

	info, err := os.Stat(path)
	req.NoError(err)
	req.Equal(os.FileMode(0o600), info.Mode().Perm())

	// The file is a flat JSON object keyed by the on-disk field names.
	raw, err := os.ReadFile(path)
	req.NoError(err)
	var fields map[string]any
	req.NoError(json.Unmarshal(raw, &fields))
	for _, k := range []string{"nickname", "channel_name", "database_path", "oauth_key", "irc_server_address", "irc_port"} {
		req.Contains(fields, k)
	}

	cfg, err := Load(path)
	req.NoError(err)
	req.Equal("chan", cfg.ChannelName)
	req.Equal("oauth:token", cfg.OAuthKey)
	req.Equal(db, cfg.DatabasePath)
}

func TestLoadLegacyFileWithNullNickname(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.key")
	content := `{"nickname": null, "channel_name": "chan", "database_path": "/tmp/x/db.pomo", "oauth_key": "k", "irc_server_address": "irc.chat.twitch.tv", "irc_port": 6667}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "chan", cfg.Nickname)
	require.Equal(t, "oauth:k", cfg.OAuthKey)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.key"))
	require.ErrorIs(t, err, errs.ErrConfiguration)
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = Load(bad)
	require.ErrorIs(t, err, errs.ErrConfiguration)

	noCred := filepath.Join(dir, "nocred.key")
	require.NoError(t, os.WriteFile(noCred, []byte(`{"channel_name":"c"}`), 0o600))
	_, err = Load(noCred)
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestSealedCredential(t *testing.T) {
	req := require.New(t)
	keyBytes := make([]byte, 32)
	_, err := rand.Read(keyBytes)
	req.NoError(err)
	key := base64.StdEncoding.EncodeToString(keyBytes)
	sealer, err := crypto.NewSealer(key)
	req.NoError(err)

	path := filepath.Join(t.TempDir(), "sealed.key")
	_, err = Generate(path, Params{Channel: "chan", OAuthKey: "secret"}, sealer)
	req.NoError(err)

	raw, err := os.ReadFile(path)
	req.NoError(err)
	req.False(strings.Contains(string(raw), "secret"), "credential must not be stored in clear")

	cfg, err := LoadWithKey(path, key)
	req.NoError(err)
	req.Equal("oauth:secret", cfg.OAuthKey)

	t.Setenv(EncryptionKeyEnv, key)
	cfg, err = Load(path)
	req.NoError(err)
	req.Equal("oauth:secret", cfg.OAuthKey)

	_, err = LoadWithKey(path, "")
	req.True(errors.Is(err, errs.ErrConfiguration))
}

func TestLogValueRedactsCredential(t *testing.T) {
	cfg, err := New(Params{Channel: "chan", OAuthKey: "supersecret"})
	require.NoError(t, err)
	require.NotContains(t, cfg.LogValue().String(), "supersecret")
}

func TestLoadRuntimeDefaults(t *testing.T) {
	for _, k := range []string{"POMODORO_CONFIG", "LOG_LEVEL", "LOG_FORMAT", "IDLE_TIMEOUT", "SWEEP_INTERVAL", "READ_TIMEOUT", "CONNECT_TIMEOUT", "TOMATO_INTERVAL", "HTTP_ADDR", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	rt, err := LoadRuntime()
	require.NoError(t, err)
	require.Equal(t, "my_config_file.key", rt.ConfigPath)
	require.Equal(t, 60*time.Minute, rt.IdleTimeout)
	require.Equal(t, 60*time.Second, rt.SweepInterval)
	require.Equal(t, 5*time.Second, rt.ReadTimeout)
	require.Equal(t, 10*time.Second, rt.ConnectTimeout)
	require.Equal(t, 25*time.Minute, rt.TomatoInterval)
	require.Empty(t, rt.HTTPAddr)
	require.Empty(t, rt.CORSOrigins)
}

func TestLoadRuntimeOverrides(t *testing.T) {
	t.Setenv("IDLE_TIMEOUT", "0s")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,*.obs.local")

	rt, err := LoadRuntime()
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), rt.IdleTimeout)
	require.Equal(t, 15*time.Second, rt.SweepInterval)
	require.Equal(t, ":9090", rt.HTTPAddr)
	require.Equal(t, []string{"http://localhost:3000", "*.obs.local"}, rt.CORSOrigins)

	t.Setenv("SWEEP_INTERVAL", "0s")
	_, err = LoadRuntime()
	require.ErrorIs(t, err, errs.ErrConfiguration)

	t.Setenv("SWEEP_INTERVAL", "not-a-duration")
	_, err = LoadRuntime()
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
