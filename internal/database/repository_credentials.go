package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// EXCHANGE CREDENTIALS
// ============================================================================

// UpsertCredential stores or replaces the encrypted API keys for a model and
// exchange environment
func (r *Repository) UpsertCredential(ctx context.Context, c *ExchangeCredential) error {
	query := `
		INSERT INTO exchange_credentials (model_id, environment, api_key_cipher, secret_key_cipher)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_id, environment) DO UPDATE
		SET api_key_cipher = EXCLUDED.api_key_cipher,
		    secret_key_cipher = EXCLUDED.secret_key_cipher,
		    updated_at = NOW()
		RETURNING id, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		c.ModelID, c.Environment, c.APIKeyCipher, c.SecretKeyCipher,
	).Scan(&c.ID, &c.UpdatedAt)
}

// GetCredential retrieves the encrypted API keys for a model and exchange
// environment, or ErrNotFound
func (r *Repository) GetCredential(ctx context.Context, modelID int64, environment string) (*ExchangeCredential, error) {
	query := `
		SELECT id, model_id, environment, api_key_cipher, secret_key_cipher, updated_at
		FROM exchange_credentials
		WHERE model_id = $1 AND environment = $2
	`
	c := &ExchangeCredential{}
	err := r.db.Pool.QueryRow(ctx, query, modelID, environment).Scan(
		&c.ID, &c.ModelID, &c.Environment, &c.APIKeyCipher, &c.SecretKeyCipher, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCredential removes stored API keys for a model and exchange
// environment
func (r *Repository) DeleteCredential(ctx context.Context, modelID int64, environment string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM exchange_credentials WHERE model_id = $1 AND environment = $2`,
		modelID, environment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
