package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/portfolium/internal/model"
)

const identityColumns = `id, account_id, provider, provider_user_id, email, name, username,
	avatar_url, created_at, updated_at`

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_user_id = $2`,
		string(provider), providerUserID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

// FindByAccountAndProvider はアカウントに紐付いた指定プロバイダーのidentityを返す。
func (r *PostgresIdentityRepo) FindByAccountAndProvider(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE account_id = $1 AND provider = $2`,
		accountID, string(provider),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by account: %w", err)
	}
	return identity, nil
}

// ListByAccountID はアカウントに紐付いた全identityを返す。
func (r *PostgresIdentityRepo) ListByAccountID(ctx context.Context, accountID string) ([]model.Identity, error) {
	return listIdentities(ctx, r.db, accountID)
}

func listIdentities(ctx context.Context, q execQuerier, accountID string) ([]model.Identity, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE account_id = $1 ORDER BY created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		var (
			i        model.Identity
			provider string
		)
		if err := rows.Scan(&i.ID, &i.AccountID, &provider, &i.ProviderUserID, &i.Email, &i.Name,
			&i.Username, &i.AvatarURL, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		i.Provider = model.Provider(provider)
		identities = append(identities, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return identities, nil
}

func scanIdentity(row *sql.Row) (*model.Identity, error) {
	i := &model.Identity{}
	var provider string
	if err := row.Scan(&i.ID, &i.AccountID, &provider, &i.ProviderUserID, &i.Email, &i.Name,
		&i.Username, &i.AvatarURL, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.Provider = model.Provider(provider)
	return i, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
