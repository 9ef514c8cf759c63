package vault

import (
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/sirupsen/logrus"
)

// Credentials are the API credentials for one exchange account.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Client wraps the Vault API client for exchange credential lookup.
type Client struct {
	client *vault.Client
	logger *logrus.Entry
}

// NewClient connects to Vault. Address and token fall back to the standard
// VAULT_ADDR and VAULT_TOKEN environment variables.
func NewClient(address, token string) (*Client, error) {
	if address == "" {
		address = os.Getenv("VAULT_ADDR")
	}
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if address == "" {
		return nil, fmt.Errorf("vault address not configured")
	}

	cfg := vault.DefaultConfig()
	cfg.Address = address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("vault is not healthy: %w", err)
	}
	if health.Sealed {
		return nil, fmt.Errorf("vault is sealed")
	}

	logger := logrus.WithField("component", "vault")
	logger.WithField("address", address).Info("connected to vault")

	return &Client{client: client, logger: logger}, nil
}

// Credentials reads exchange API credentials from a KV v2 secret path.
func (c *Client) Credentials(path string) (*Credentials, error) {
	secret, err := c.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}

	// KV v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	key, _ := data["api_key"].(string)
	apiSecret, _ := data["api_secret"].(string)
	if key == "" || apiSecret == "" {
		return nil, fmt.Errorf("secret at %s is missing api_key or api_secret", path)
	}

	return &Credentials{APIKey: key, APISecret: apiSecret}, nil
}

// FromEnv loads credentials from BINANCE_API_KEY and BINANCE_API_SECRET,
// the fallback when no Vault is configured. Returns nil when unset.
func FromEnv() *Credentials {
	key := os.Getenv("BINANCE_API_KEY")
	secret := os.Getenv("BINANCE_API_SECRET")
	if key == "" || secret == "" {
		return nil
	}
	return &Credentials{APIKey: key, APISecret: secret}
}
