// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the authcore configuration
// structure and the logic to load it from flags, environment and file.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/authcore/pkg/authcore/consent/storage"
	"github.com/stacklok/authcore/pkg/authcore/signer"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. AUTHCORE_KMS_KEY_ARN.
	EnvPrefix = "AUTHCORE"

	// FallbackIssuerURL is used when neither issuer URL is configured.
	FallbackIssuerURL = "http://localhost:3000"

	// DefaultServerAddress is the listen address of `authcore serve`.
	DefaultServerAddress = ":8080"

	redacted = "REDACTED"
)

// Config represents the configuration of the authorization core.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Issuer  IssuerConfig  `yaml:"issuer"`
	KMS     KMSConfig     `yaml:"kms"`
	Consent ConsentConfig `yaml:"consent"`
	Server  ServerConfig  `yaml:"server"`
}

// IssuerConfig holds the externally visible base URLs.
type IssuerConfig struct {
	DeploymentURL string `yaml:"deployment_url,omitempty"`
	PublicAppURL  string `yaml:"public_app_url,omitempty"`
}

// KMSConfig selects the managed signing key. An empty KeyARN selects the
// local development signer.
type KMSConfig struct {
	KeyARN   string `yaml:"key_arn,omitempty"`
	KeyID    string `yaml:"key_id,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ConsentConfig configures consent decision persistence.
type ConsentConfig struct {
	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig configures the consent storage backend. The sqlite default
// only suits a single instance; replicated deployments must pick postgres or
// redis so every instance sees the same decisions.
type StorageConfig struct {
	Type          string `yaml:"type"`
	SQLitePath    string `yaml:"sqlite_path,omitempty"`
	PostgresDSN   string `yaml:"postgres_dsn,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	KeyPrefix     string `yaml:"key_prefix,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("consent.storage.type", string(storage.TypeSQLite))
	v.SetDefault("consent.storage.sqlite_path", storage.DefaultSQLitePath)
	v.SetDefault("consent.storage.key_prefix", storage.DefaultKeyPrefix)
	v.SetDefault("server.address", DefaultServerAddress)
}

// NewViper returns a viper instance wired to the AUTHCORE_ environment and,
// when configFile is not empty, to that YAML file.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Debug: v.GetBool("debug"),
		Issuer: IssuerConfig{
			DeploymentURL: v.GetString("issuer.deployment_url"),
			PublicAppURL:  v.GetString("issuer.public_app_url"),
		},
		KMS: KMSConfig{
			KeyARN:   v.GetString("kms.key_arn"),
			KeyID:    v.GetString("kms.key_id"),
			Region:   v.GetString("kms.region"),
			Endpoint: v.GetString("kms.endpoint"),
		},
		Consent: ConsentConfig{
			Storage: StorageConfig{
				Type:          v.GetString("consent.storage.type"),
				SQLitePath:    v.GetString("consent.storage.sqlite_path"),
				PostgresDSN:   v.GetString("consent.storage.postgres_dsn"),
				RedisAddr:     v.GetString("consent.storage.redis_addr"),
				RedisPassword: v.GetString("consent.storage.redis_password"),
				RedisDB:       v.GetInt("consent.storage.redis_db"),
				KeyPrefix:     v.GetString("consent.storage.key_prefix"),
			},
		},
		Server: ServerConfig{
			Address: v.GetString("server.address"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IssuerURL returns the base URL tokens and redirects are issued under:
// the deployment URL, else the public app URL, else FallbackIssuerURL.
func (c *Config) IssuerURL() string {
	for _, u := range []string{c.Issuer.DeploymentURL, c.Issuer.PublicAppURL} {
		if u != "" {
			return strings.TrimRight(u, "/")
		}
	}
	return FallbackIssuerURL
}

// SignerConfig converts the KMS section into a signer configuration.
func (c *Config) SignerConfig() signer.Config {
	return signer.Config{
		KeyARN:       c.KMS.KeyARN,
		KeyID:        c.KMS.KeyID,
		Region:       c.KMS.Region,
		Endpoint:     c.KMS.Endpoint,
		PublicKeyTTL: signer.DefaultPublicKeyTTL,
	}
}

// StorageConfig converts the consent storage section into a storage
// configuration.
func (c *Config) StorageConfig() *storage.Config {
	s := c.Consent.Storage
	return &storage.Config{
		Type:          storage.Type(s.Type),
		SQLitePath:    s.SQLitePath,
		PostgresDSN:   s.PostgresDSN,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		KeyPrefix:     s.KeyPrefix,
	}
}

// Redacted returns the configuration as YAML with credentials masked.
func (c *Config) Redacted() ([]byte, error) {
	out := *c
	if out.Consent.Storage.RedisPassword != "" {
		out.Consent.Storage.RedisPassword = redacted
	}
	if dsn := out.Consent.Storage.PostgresDSN; dsn != "" {
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			out.Consent.Storage.PostgresDSN = u.Redacted()
		} else {
			// keyword/value DSNs may carry a password anywhere
			out.Consent.Storage.PostgresDSN = redacted
		}
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
