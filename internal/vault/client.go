// Package vault reads service secrets (database password, Redis password,
// JWT signing secret) from a KV v2 mount. The client is optional: when
// Vault is disabled, lookups fall through to the values already present in
// the config.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"futures-advisor/config"
	"futures-advisor/internal/logging"
)

// Secret keys the advisor reads from the service secret
const (
	KeyPostgresPassword = "postgres_password"
	KeyRedisPassword    = "redis_password"
	KeyJWTSecret        = "jwt_secret"
	KeyWebhookURL       = "webhook_url"
)

// Client wraps the HashiCorp Vault client for service secrets
type Client struct {
	client *api.Client
	config config.VaultConfig
	logger *logging.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient creates a Vault client. A disabled config returns a client
// whose lookups report not-found instead of erroring.
func NewClient(cfg config.VaultConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("vault")

	if !cfg.Enabled {
		return &Client{
			config: cfg,
			logger: logger,
			cache:  make(map[string]string),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		logger: logger,
		cache:  make(map[string]string),
	}, nil
}

// Enabled reports whether the client talks to a real Vault
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// secretPath builds the KV v2 data path for the service secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

// GetSecret reads one key from the service secret. The whole secret is
// fetched and cached on the first call.
func (c *Client) GetSecret(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return cached, true, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return "", false, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return "", false, fmt.Errorf("failed to read service secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", false, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, fmt.Errorf("invalid secret format at %s", c.secretPath())
	}

	c.mu.Lock()
	for k, v := range data {
		if s, ok := v.(string); ok {
			c.cache[k] = s
		}
	}
	value, found := c.cache[key]
	c.mu.Unlock()

	return value, found, nil
}

// Invalidate drops the cached secret so the next read hits Vault
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]string)
	c.mu.Unlock()
}

// ApplySecrets overlays Vault-held secrets onto the config. Config values
// stay in place when Vault is disabled or a key is absent.
func (c *Client) ApplySecrets(ctx context.Context, cfg *config.Config) error {
	if !c.config.Enabled {
		return nil
	}

	overlays := []struct {
		key string
		dst *string
	}{
		{KeyPostgresPassword, &cfg.DatabaseConfig.Password},
		{KeyRedisPassword, &cfg.RedisConfig.Password},
		{KeyJWTSecret, &cfg.AuthConfig.JWTSecret},
		{KeyWebhookURL, &cfg.NotificationConfig.WebhookURL},
	}
	for _, o := range overlays {
		value, found, err := c.GetSecret(ctx, o.key)
		if err != nil {
			return err
		}
		if found && value != "" {
			*o.dst = value
			c.logger.Debug("secret applied from vault", "key", o.key)
		}
	}
	return nil
}
