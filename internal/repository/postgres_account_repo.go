package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
)

const accountColumns = `id, display_name, email, password_hash, auth_provider, provider_id,
	github_username, avatar_url, profile_photo_id, profile_photo_url, role,
	last_login_at, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows || isInvalidKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// FindByIDWithIdentities はアカウントを紐付け済みidentities付きで取得する。
func (r *PostgresAccountRepo) FindByIDWithIdentities(ctx context.Context, id string) (*model.Account, error) {
	account, err := r.FindByID(ctx, id)
	if err != nil || account == nil {
		return account, err
	}

	identities, err := listIdentities(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	account.Identities = identities
	return account, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// CreateWithIdentity はアカウントとidentityを同一トランザクションで作成する。
func (r *PostgresAccountRepo) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, display_name, email, auth_provider, provider_id,
			github_username, avatar_url, role, last_login_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.DisplayName, account.Email, string(account.AuthProvider), account.ProviderID,
		nullString(account.GitHubUsername), nullString(account.AvatarURL), string(account.Role),
		account.LastLoginAt, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", translateError(err))
	}

	if err := upsertIdentity(ctx, tx, identity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordLogin はログインメタデータの更新とidentityのupsertを同一トランザクションで行う。
func (r *PostgresAccountRepo) RecordLogin(ctx context.Context, account *model.Account, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts
		 SET auth_provider = $2, provider_id = $3, github_username = $4, avatar_url = $5,
		     last_login_at = $6, updated_at = $7
		 WHERE id = $1`,
		account.ID, string(account.AuthProvider), account.ProviderID,
		nullString(account.GitHubUsername), nullString(account.AvatarURL),
		account.LastLoginAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account login: %w", translateError(err))
	}

	if err := upsertIdentity(ctx, tx, identity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateProfile は表示名・メールアドレス・パスワードハッシュを更新する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET display_name = $2, email = $3, password_hash = $4, updated_at = $5
		 WHERE id = $1`,
		account.ID, account.DisplayName, account.Email, nullString(account.PasswordHash), account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account profile: %w", translateError(err))
	}
	return nil
}

// UpdateProfilePhoto はプロフィール写真の参照を更新する。
func (r *PostgresAccountRepo) UpdateProfilePhoto(ctx context.Context, accountID, photoID, photoURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET profile_photo_id = $2, profile_photo_url = $3, updated_at = now()
		 WHERE id = $1`,
		accountID, nullString(photoID), nullString(photoURL),
	)
	if err != nil {
		return fmt.Errorf("failed to update profile photo: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのアカウントを削除し、orphanBlobKeysを削除待ちキューに積む。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string, orphanBlobKeys []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := enqueueTombstones(ctx, tx, orphanBlobKeys); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// upsertIdentity は (account_id, provider) をキーにidentityを作成または更新する。
// 同じプロバイダーで別のprovider_user_idが届いた場合は既存行を新しいIDへ付け替える。
func upsertIdentity(ctx context.Context, q execQuerier, identity *model.Identity) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO identities (id, account_id, provider, provider_user_id, email, name, username,
			avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (account_id, provider) DO UPDATE
		 SET provider_user_id = EXCLUDED.provider_user_id,
		     email = EXCLUDED.email, name = EXCLUDED.name, username = EXCLUDED.username,
		     avatar_url = EXCLUDED.avatar_url, updated_at = EXCLUDED.updated_at`,
		identity.ID, identity.AccountID, string(identity.Provider), identity.ProviderUserID,
		identity.Email, identity.Name, identity.Username, identity.AvatarURL,
		identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", translateError(err))
	}
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	a := &model.Account{}
	var (
		passwordHash, githubUsername, avatarURL sql.NullString
		photoID, photoURL                       sql.NullString
		provider, role                          string
		lastLogin                               sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.DisplayName, &a.Email, &passwordHash, &provider, &a.ProviderID,
		&githubUsername, &avatarURL, &photoID, &photoURL, &role,
		&lastLogin, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.PasswordHash = passwordHash.String
	a.AuthProvider = model.Provider(provider)
	a.GitHubUsername = githubUsername.String
	a.AvatarURL = avatarURL.String
	a.ProfilePhotoID = photoID.String
	a.ProfilePhotoURL = photoURL.String
	a.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return a, nil
}

// nullString は空文字をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime はnilをNULLとして扱う。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
