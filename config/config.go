// Package config loads the YAML server configuration, following the shape
// of oragono's config.go: a nested document of server, accounts, limits,
// oper, link, and webirc blocks.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerBlock   `yaml:"server"`
	Accounts AccountsBlock `yaml:"accounts"`
	Limits   LimitsBlock   `yaml:"limits"`
	Opers    []OperBlock   `yaml:"opers"`
	Links    []LinkBlock   `yaml:"links"`
	Webirc   []WebircBlock `yaml:"webirc"`
}

// ServerBlock holds top-level network identity and listener settings.
type ServerBlock struct {
	Name     string       `yaml:"name"`
	Network  string       `yaml:"network"`
	MOTD     string       `yaml:"motd-file"`
	Welcome  string       `yaml:"welcome"`
	Listen   []string     `yaml:"listen"`
	TLS      *TLSBlock    `yaml:"tls"`
	SID      string       `yaml:"sid"`
	CaseMap  string       `yaml:"casemapping"`
}

// TLSBlock configures the certificate pair used for TLS listeners.
type TLSBlock struct {
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
}

// AccountsBlock configures NickServ account registration and the SASL
// requirement policy, mirroring oragono's RequireSasl toggle.
type AccountsBlock struct {
	RegistrationEnabled bool     `yaml:"registration-enabled"`
	RequireSasl         bool     `yaml:"require-sasl"`
	SaslMechanisms      []string `yaml:"sasl-mechanisms"`
	BcryptCost          int      `yaml:"bcrypt-cost"`
}

// LimitsBlock configures message/flood limits and the rate-limiter buckets.
type LimitsBlock struct {
	MessagesPerSecond     float64       `yaml:"messages-per-second"`
	CommandsPerSecond     float64       `yaml:"commands-per-second"`
	ConnectionsPerMinute  float64       `yaml:"connections-per-minute"`
	EnableFloodProtection bool          `yaml:"enable-flood-protection"`
	RegistrationTimeout   time.Duration `yaml:"registration-timeout"`
	MaxJoinedChannels     int           `yaml:"max-joined-channels"`
}

// OperBlock describes one network operator account.
type OperBlock struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password-hash"`
	Vhost        string `yaml:"vhost"`
}

// LinkBlock describes one configured S2S peer.
type LinkBlock struct {
	Name         string `yaml:"name"`
	SID          string `yaml:"sid"`
	Address      string `yaml:"address"`
	PasswordHash string `yaml:"password-hash"`
	TLS          bool   `yaml:"tls"`
	Autoconnect  bool   `yaml:"autoconnect"`
}

// WebircBlock describes one trusted WEBIRC gateway.
type WebircBlock struct {
	TrustedSource string `yaml:"trusted-source"`
	PasswordHash  string `yaml:"password-hash"`
}

// Default returns a Config populated with sane standalone-server defaults.
func Default() *Config {
	return &Config{
		Server: ServerBlock{
			Name:    "irc.localhost.net",
			Network: "CorvidNet",
			Listen:  []string{":6667"},
			CaseMap: "ascii",
		},
		Accounts: AccountsBlock{
			RegistrationEnabled: true,
			BcryptCost:          10,
		},
		Limits: LimitsBlock{
			MessagesPerSecond:     5,
			CommandsPerSecond:     10,
			ConnectionsPerMinute:  20,
			EnableFloodProtection: true,
			RegistrationTimeout:   60 * time.Second,
			MaxJoinedChannels:     32,
		},
	}
}

// Load reads and parses a YAML config file at path, applying defaults to
// any block left unset by the document.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := Default()

	if len(c.Server.Listen) == 0 {
		c.Server.Listen = defaults.Server.Listen
	}
	if c.Server.CaseMap == "" {
		c.Server.CaseMap = defaults.Server.CaseMap
	}
	if c.Accounts.BcryptCost == 0 {
		c.Accounts.BcryptCost = defaults.Accounts.BcryptCost
	}
	if c.Limits.MessagesPerSecond == 0 {
		c.Limits.MessagesPerSecond = defaults.Limits.MessagesPerSecond
	}
	if c.Limits.CommandsPerSecond == 0 {
		c.Limits.CommandsPerSecond = defaults.Limits.CommandsPerSecond
	}
	if c.Limits.ConnectionsPerMinute == 0 {
		c.Limits.ConnectionsPerMinute = defaults.Limits.ConnectionsPerMinute
	}
	if c.Limits.RegistrationTimeout == 0 {
		c.Limits.RegistrationTimeout = defaults.Limits.RegistrationTimeout
	}
	if c.Limits.MaxJoinedChannels == 0 {
		c.Limits.MaxJoinedChannels = defaults.Limits.MaxJoinedChannels
	}
}
