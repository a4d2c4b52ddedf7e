// Package config loads the chat credential record and the runtime settings of the client.
//
// The credential record is a flat JSON file (see Generate) holding the channel identity,
// the OAuth credential, the chat server endpoint and the path of the persisted store. It is
// validated and normalized once at construction and is read-only afterwards.
// Runtime settings (timeouts, logging, status server) come from environment variables; see
// LoadRuntime.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/onnwee/pomodorotteux/crypto"
	"github.com/onnwee/pomodorotteux/errs"
)

const (
	// DefaultServerAddress is the Twitch chat relay.
	DefaultServerAddress = "irc.chat.twitch.tv"
	// DefaultPort is the plaintext IRC port of the relay.
	DefaultPort = 6667
	// CredentialPrefix is prepended to credentials that lack it.
	CredentialPrefix = "oauth:"
	// EncryptionKeyEnv names the variable holding the key for sealed credentials.
	EncryptionKeyEnv = "POMODORO_ENCRYPTION_KEY"
)

// ErrMissingCredential is returned when no oauth_key is configured.
var ErrMissingCredential = errors.New("no oauth_key provided; generate one at https://twitchapps.com/tmi/")

// ErrMissingChannel is returned when no channel_name is configured.
var ErrMissingChannel = errors.New("no channel_name provided")

// Config is the credential record. Field names match the on-disk JSON keys.
type Config struct {
	Nickname      string `json:"nickname"`
	ChannelName   string `json:"channel_name"`
	DatabasePath  string `json:"database_path"`
	OAuthKey      string `json:"oauth_key"`
	ServerAddress string `json:"irc_server_address"`
	Port          int    `json:"irc_port"`
}

// Params are the inputs of New and Generate. Empty fields take their defaults.
type Params struct {
	Channel       string
	Nickname      string
	DatabasePath  string
	OAuthKey      string
	ServerAddress string
	Port          int
}

// New builds a validated, normalized Config.
func New(p Params) (*Config, error) {
	c := &Config{
		Nickname:      p.Nickname,
		ChannelName:   p.Channel,
		DatabasePath:  p.DatabasePath,
		OAuthKey:      p.OAuthKey,
		ServerAddress: p.ServerAddress,
		Port:          p.Port,
	}
	if err := c.normalize(); err != nil {
		return nil, errs.Configuration("config", err)
	}
	return c, nil
}

// DefaultDatabasePath returns ~/.config/Pomodoro/database.pomo, or a relative fallback
// when the home directory cannot be resolved.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "Pomodoro", "database.pomo")
	}
	return filepath.Join(home, ".config", "Pomodoro", "database.pomo")
}

func (c *Config) normalize() error {
	c.ChannelName = strings.TrimPrefix(strings.TrimSpace(c.ChannelName), "#")
	if c.ChannelName == "" {
		return ErrMissingChannel
	}
	if strings.TrimSpace(c.Nickname) == "" {
		c.Nickname = c.ChannelName
	}
	c.OAuthKey = strings.TrimSpace(c.OAuthKey)
	if c.OAuthKey == "" {
		return ErrMissingCredential
	}
	if !strings.HasPrefix(c.OAuthKey, CredentialPrefix) {
		c.OAuthKey = CredentialPrefix + c.OAuthKey
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath()
	}
	if c.ServerAddress == "" {
		c.ServerAddress = DefaultServerAddress
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid irc_port %d", c.Port)
	}
	return nil
}

// Address returns host:port of the chat server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.ServerAddress, strconv.Itoa(c.Port))
}

// LogValue keeps the credential out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("nickname", c.Nickname),
		slog.String("channel", c.ChannelName),
		slog.String("database_path", c.DatabasePath),
		slog.String("server", c.Address()),
	)
}

// Load reads a credential file. Sealed credentials are opened with the key from
// POMODORO_ENCRYPTION_KEY.
func Load(path string) (*Config, error) {
	return LoadWithKey(path, os.Getenv(EncryptionKeyEnv))
}

// LoadWithKey reads a credential file, opening a sealed credential with key.
func LoadWithKey(path, key string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration("read config "+path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errs.Configuration("parse config "+path, err)
	}
	if crypto.IsSealed(c.OAuthKey) {
		sealer, err := crypto.NewSealer(key)
		if err != nil {
			return nil, errs.Configuration("open sealed credential", err)
		}
		plain, err := sealer.Open(c.OAuthKey)
		if err != nil {
			return nil, errs.Configuration("open sealed credential", err)
		}
		c.OAuthKey = plain
	}
	if err := c.normalize(); err != nil {
		return nil, errs.Configuration("validate config "+path, err)
	}
	return &c, nil
}

// Generate writes a credential file at path and returns the normalized record. When sealer
// is non-nil the credential is stored sealed.
func Generate(path string, p Params, sealer *crypto.Sealer) (*Config, error) {
	c, err := New(p)
	if err != nil {
		return nil, err
	}
	onDisk := *c
	if sealer != nil {
		sealed, err := sealer.Seal(c.OAuthKey)
		if err != nil {
			return nil, errs.Configuration("seal credential", err)
		}
		onDisk.OAuthKey = sealed
	}
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return nil, errs.Configuration("encode config", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Configuration("create config dir", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return nil, errs.Configuration("write config "+path, err)
	}
	return c, nil
}

// Runtime holds process settings read from the environment.
type Runtime struct {
	ConfigPath     string        `envconfig:"POMODORO_CONFIG" default:"my_config_file.key"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text"`
	IdleTimeout    time.Duration `envconfig:"IDLE_TIMEOUT" default:"60m"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`
	TomatoInterval time.Duration `envconfig:"TOMATO_INTERVAL" default:"25m"`
	HTTPAddr       string        `envconfig:"HTTP_ADDR"`
	// CORSOrigins restricts which browser origins may read /status; empty allows any.
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// LoadRuntime reads Runtime from the environment.
func LoadRuntime() (*Runtime, error) {
	var rt Runtime
	if err := envconfig.Process("", &rt); err != nil {
		return nil, errs.Configuration("runtime env", err)
	}
	if rt.SweepInterval <= 0 {
		return nil, errs.Configuration("runtime env", fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", rt.SweepInterval))
	}
	if rt.TomatoInterval <= 0 {
		return nil, errs.Configuration("runtime env", fmt.Errorf("TOMATO_INTERVAL must be positive, got %s", rt.TomatoInterval))
	}
	return &rt, nil
}
