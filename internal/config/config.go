package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tenant holds the per-tenant WhatsApp credentials and commerce settings.
// Every field except FlowID is required for the engine to operate; missing
// secrets fail closed at load time instead of silently disabling checks.
type Tenant struct {
	VerifyToken   string `mapstructure:"verify_token"`
	AppSecret     string `mapstructure:"app_secret"`
	AccessToken   string `mapstructure:"access_token"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	PrivateKeyPEM string `mapstructure:"private_key"`
	FlowID        string `mapstructure:"flow_id"`
	IsMultiVendor bool   `mapstructure:"is_multi_vendor"`
	DefaultShop   string `mapstructure:"default_shop"`

	privateKey *rsa.PrivateKey
}

// PrivateKey returns the parsed RSA key used for Flow payload decryption.
func (t *Tenant) PrivateKey() *rsa.PrivateKey {
	return t.privateKey
}

// Config is the full application configuration.
type Config struct {
	Port        string        `mapstructure:"port"`
	GraphAPIURL string        `mapstructure:"graph_api_url"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	DedupeTTL   time.Duration `mapstructure:"dedupe_ttl"`

	// CODEnabled is the platform-level gateway toggle; the shop flag can
	// still disable COD per shop.
	CODEnabled bool `mapstructure:"cod_enabled"`

	CatalogURL string `mapstructure:"catalog_url"`
	PaymentURL string `mapstructure:"payment_url"`
	OrderURL   string `mapstructure:"order_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	EmbeddingModel string `mapstructure:"embedding_model"`

	Tenant Tenant `mapstructure:"tenant"`
}

// Load reads configuration from the environment (SHOPCHAT_ prefix) and an
// optional config.yaml, parses the tenant private key, and validates the
// fields the security boundaries depend on.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("graph_api_url", "https://graph.facebook.com/v19.0")
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("dedupe_ttl", 10*time.Minute)
	v.SetDefault("cod_enabled", true)
	v.SetDefault("embedding_model", "text-embedding-3-small")

	v.SetEnvPrefix("SHOPCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// AutomaticEnv alone does not populate Unmarshal; bind the keys we use.
	for _, key := range []string{
		"port", "graph_api_url", "session_ttl", "dedupe_ttl", "cod_enabled",
		"catalog_url", "payment_url", "order_url",
		"redis_addr", "redis_password", "embedding_model",
		"tenant.verify_token", "tenant.app_secret", "tenant.access_token",
		"tenant.phone_number_id", "tenant.private_key", "tenant.flow_id",
		"tenant.is_multi_vendor", "tenant.default_shop",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Tenant.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (t *Tenant) validate() error {
	if t.VerifyToken == "" {
		return fmt.Errorf("tenant verify_token is not configured")
	}
	if t.AppSecret == "" {
		return fmt.Errorf("tenant app_secret is not configured")
	}
	if t.AccessToken == "" {
		return fmt.Errorf("tenant access_token is not configured")
	}
	if t.PhoneNumberID == "" {
		return fmt.Errorf("tenant phone_number_id is not configured")
	}
	if t.PrivateKeyPEM != "" {
		key, err := ParsePrivateKey(t.PrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("tenant private_key: %w", err)
		}
		t.privateKey = key
	}
	return nil
}

// ParsePrivateKey decodes a PEM-encoded RSA private key in either PKCS#1 or
// PKCS#8 form.
func ParsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}
