package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trading-orchestrator/config"
	"trading-orchestrator/internal/database"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// ErrNoCredentials is returned when no API keys are stored for a model and
// exchange environment
var ErrNoCredentials = errors.New("no exchange credentials stored")

// Credentials is decrypted exchange API key material. Never persisted in
// plaintext.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// credentialRepo is the slice of the database repository the store needs
type credentialRepo interface {
	UpsertCredential(ctx context.Context, c *database.ExchangeCredential) error
	GetCredential(ctx context.Context, modelID int64, environment string) (*database.ExchangeCredential, error)
	DeleteCredential(ctx context.Context, modelID int64, environment string) error
}

// Store holds per-model exchange credentials. With Vault enabled keys live in
// the KV engine; otherwise they are secretbox-encrypted and stored in
// PostgreSQL. Decrypted keys are cached in memory either way.
type Store struct {
	cfg    config.VaultConfig
	vault  *api.Client
	cipher *cipher
	repo   credentialRepo
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*Credentials
}

// NewStore creates a credential store. repo may be nil when Vault is enabled.
func NewStore(cfg config.VaultConfig, repo credentialRepo, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		cfg:    cfg,
		repo:   repo,
		logger: logger,
		cache:  make(map[string]*Credentials),
	}

	if cfg.Enabled {
		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = cfg.Address

		if cfg.TLSEnabled && cfg.CACert != "" {
			tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
			if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
				return nil, fmt.Errorf("failed to configure TLS: %w", err)
			}
		}

		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create vault client: %w", err)
		}
		client.SetToken(cfg.Token)
		s.vault = client
		logger.Info().Str("address", cfg.Address).Msg("credential store backed by vault")
		return s, nil
	}

	if cfg.LocalEncryptionKey == "" {
		return nil, errors.New("vault disabled and no local encryption key configured")
	}
	c, err := newCipher(cfg.LocalEncryptionKey)
	if err != nil {
		return nil, err
	}
	s.cipher = c
	logger.Info().Msg("credential store backed by encrypted database rows")
	return s, nil
}

// Put stores credentials for a model and exchange environment
func (s *Store) Put(ctx context.Context, modelID int64, environment string, creds Credentials) error {
	if s.cfg.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"api_key":    creds.APIKey,
				"secret_key": creds.SecretKey,
			},
		}
		if _, err := s.vault.Logical().WriteWithContext(ctx, s.secretPath(modelID, environment), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	} else {
		apiCipher, err := s.cipher.seal([]byte(creds.APIKey))
		if err != nil {
			return err
		}
		secretCipher, err := s.cipher.seal([]byte(creds.SecretKey))
		if err != nil {
			return err
		}
		err = s.repo.UpsertCredential(ctx, &database.ExchangeCredential{
			ModelID:         modelID,
			Environment:     environment,
			APIKeyCipher:    apiCipher,
			SecretKeyCipher: secretCipher,
		})
		if err != nil {
			return fmt.Errorf("failed to store encrypted credentials: %w", err)
		}
	}

	s.mu.Lock()
	s.cache[cacheKey(modelID, environment)] = &creds
	s.mu.Unlock()
	return nil
}

// Get retrieves decrypted credentials for a model and exchange environment
func (s *Store) Get(ctx context.Context, modelID int64, environment string) (*Credentials, error) {
	s.mu.RLock()
	if cached, ok := s.cache[cacheKey(modelID, environment)]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	var creds *Credentials
	if s.cfg.Enabled {
		secret, err := s.vault.Logical().ReadWithContext(ctx, s.secretPath(modelID, environment))
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
		}
		if secret == nil || secret.Data == nil {
			return nil, ErrNoCredentials
		}
		data, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, errors.New("invalid secret format")
		}
		creds = &Credentials{
			APIKey:    getString(data, "api_key"),
			SecretKey: getString(data, "secret_key"),
		}
	} else {
		row, err := s.repo.GetCredential(ctx, modelID, environment)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		if err != nil {
			return nil, err
		}
		apiKey, err := s.cipher.open(row.APIKeyCipher)
		if err != nil {
			return nil, fmt.Errorf("api key: %w", err)
		}
		secretKey, err := s.cipher.open(row.SecretKeyCipher)
		if err != nil {
			return nil, fmt.Errorf("secret key: %w", err)
		}
		creds = &Credentials{APIKey: string(apiKey), SecretKey: string(secretKey)}
	}

	s.mu.Lock()
	s.cache[cacheKey(modelID, environment)] = creds
	s.mu.Unlock()
	return creds, nil
}

// Delete removes credentials for a model and exchange environment
func (s *Store) Delete(ctx context.Context, modelID int64, environment string) error {
	s.mu.Lock()
	delete(s.cache, cacheKey(modelID, environment))
	s.mu.Unlock()

	if s.cfg.Enabled {
		if _, err := s.vault.Logical().DeleteWithContext(ctx, s.metadataPath(modelID, environment)); err != nil {
			return fmt.Errorf("failed to delete credentials from vault: %w", err)
		}
		return nil
	}

	err := s.repo.DeleteCredential(ctx, modelID, environment)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

// Invalidate drops cached credentials for a model so the next Get re-reads
// the backing store
func (s *Store) Invalidate(modelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range []string{database.ExchangeTestnet, database.ExchangeMainnet} {
		delete(s.cache, cacheKey(modelID, env))
	}
}

// Health checks the Vault connection when enabled
func (s *Store) Health(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	health, err := s.vault.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

func (s *Store) secretPath(modelID int64, environment string) string {
	return fmt.Sprintf("%s/data/%s/model-%d/%s", s.cfg.MountPath, s.cfg.SecretPath, modelID, environment)
}

func (s *Store) metadataPath(modelID int64, environment string) string {
	return fmt.Sprintf("%s/metadata/%s/model-%d/%s", s.cfg.MountPath, s.cfg.SecretPath, modelID, environment)
}

func cacheKey(modelID int64, environment string) string {
	return fmt.Sprintf("%d/%s", modelID, environment)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
