package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
	"github.com/lib/pq"
)

const portfolioColumns = `id, account_id, personal_name, personal_position, personal_bio, profile_photo_id,
	settings, contact_email, social_links, resume_file_id, resume_file_name, seo_keywords,
	subdomain, custom_subdomain, is_published, published_at, created_at, updated_at`

// settingsRecord はsettingsカラム（JSONB）の保存形式。
type settingsRecord struct {
	ExperienceSectionEnabled bool `json:"experienceSectionEnabled"`
	BlogsSectionEnabled      bool `json:"blogsSectionEnabled"`
	ResumeEnabled            bool `json:"resumeEnabled"`
	UseProviderAvatar        bool `json:"useProviderAvatar"`
}

// PostgresPortfolioRepo はPostgreSQLを使用したポートフォリオリポジトリ。
type PostgresPortfolioRepo struct {
	db *sql.DB
}

// NewPostgresPortfolioRepo はPostgresPortfolioRepoを生成する。
func NewPostgresPortfolioRepo(db *sql.DB) *PostgresPortfolioRepo {
	return &PostgresPortfolioRepo{db: db}
}

// FindByID は指定IDのポートフォリオを取得する。見つからない場合はnilを返す。
func (r *PostgresPortfolioRepo) FindByID(ctx context.Context, id string) (*model.Portfolio, error) {
	return r.findOne(ctx, "find portfolio by ID",
		`SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id)
}

// FindByAccountID はアカウントのポートフォリオを取得する。見つからない場合はnilを返す。
func (r *PostgresPortfolioRepo) FindByAccountID(ctx context.Context, accountID string) (*model.Portfolio, error) {
	return r.findOne(ctx, "find portfolio by account ID",
		`SELECT `+portfolioColumns+` FROM portfolios WHERE account_id = $1`, accountID)
}

// FindPublishedBySubdomain はsubdomainまたはcustom_subdomainが一致する公開中のポートフォリオを返す。
func (r *PostgresPortfolioRepo) FindPublishedBySubdomain(ctx context.Context, name string) (*model.Portfolio, error) {
	return r.findOne(ctx, "find published portfolio",
		`SELECT `+portfolioColumns+` FROM portfolios
		 WHERE (subdomain = $1 OR custom_subdomain = $1) AND is_published`, name)
}

func (r *PostgresPortfolioRepo) findOne(ctx context.Context, op, query string, args ...any) (*model.Portfolio, error) {
	p, err := scanPortfolio(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows || isInvalidKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return p, nil
}

// CreateWithSubdomain はポートフォリオを作成し、候補から最初に予約できた名前をサブドメインに割り当てる。
// subdomain_claimsの外部キーは遅延評価のため、ポートフォリオ行より先に名前を予約できる。
func (r *PostgresPortfolioRepo) CreateWithSubdomain(ctx context.Context, p *model.Portfolio, candidates []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	claimed := ""
	for _, name := range candidates {
		ok, err := insertClaim(ctx, tx, name, p.ID, "default")
		if err != nil {
			return err
		}
		if ok {
			claimed = name
			break
		}
	}
	if claimed == "" {
		return ErrSubdomainExhausted
	}

	settings, socialLinks, err := encodePortfolioJSON(p)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO portfolios (id, account_id, personal_name, personal_position, personal_bio,
			profile_photo_id, settings, contact_email, social_links, resume_file_id, resume_file_name,
			seo_keywords, subdomain, is_published, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, $14, $15)`,
		p.ID, p.AccountID, p.Personal.Name, p.Personal.Position, p.Personal.Bio,
		p.Personal.ProfilePhotoID, settings, p.Contact.Email, socialLinks,
		p.Resume.FileID, p.Resume.FileName, pq.Array(p.SEOKeywords), claimed,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}

	p.Subdomain = claimed
	return nil
}

// UpdateContent はトップレベルの内容を上書きする。
// プロフィール写真と履歴書の参照はメディア操作でのみ更新するため、ここでは書き換えない。
func (r *PostgresPortfolioRepo) UpdateContent(ctx context.Context, p *model.Portfolio) error {
	settings, socialLinks, err := encodePortfolioJSON(p)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE portfolios
		 SET personal_name = $2, personal_position = $3, personal_bio = $4,
		     settings = $5, contact_email = $6, social_links = $7,
		     seo_keywords = $8, updated_at = $9
		 WHERE id = $1`,
		p.ID, p.Personal.Name, p.Personal.Position, p.Personal.Bio,
		settings, p.Contact.Email, socialLinks,
		pq.Array(p.SEOKeywords), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	return nil
}

// UpdateSettings は表示設定のみを更新する。
func (r *PostgresPortfolioRepo) UpdateSettings(ctx context.Context, portfolioID string, settings model.Settings) error {
	raw, err := json.Marshal(settingsRecord(settings))
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE portfolios SET settings = $2, updated_at = now() WHERE id = $1`,
		portfolioID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

// UpdateResume は履歴書参照を更新する。
func (r *PostgresPortfolioRepo) UpdateResume(ctx context.Context, portfolioID string, resume model.Resume) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE portfolios SET resume_file_id = $2, resume_file_name = $3, updated_at = now() WHERE id = $1`,
		portfolioID, resume.FileID, resume.FileName,
	)
	if err != nil {
		return fmt.Errorf("failed to update resume: %w", err)
	}
	return nil
}

// SetPublication は公開状態を更新し、更新後のポートフォリオを返す。
func (r *PostgresPortfolioRepo) SetPublication(ctx context.Context, accountID string, publishedAt *time.Time) (*model.Portfolio, error) {
	return r.findOne(ctx, "update publication",
		`UPDATE portfolios SET is_published = $2, published_at = $3, updated_at = now()
		 WHERE account_id = $1
		 RETURNING `+portfolioColumns,
		accountID, publishedAt != nil, nullTime(publishedAt))
}

// ClaimCustomSubdomain はカスタムサブドメインを原子的に予約し、旧名を解放する。
// 予約はsubdomain_claimsの主キーによる条件付き挿入で行うため、
// 同じ名前への同時要求のうち成功するのは1件のみ。
func (r *PostgresPortfolioRepo) ClaimCustomSubdomain(ctx context.Context, portfolioID, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT custom_subdomain FROM portfolios WHERE id = $1 FOR UPDATE`,
		portfolioID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to lock portfolio: %w", err)
	}
	if current.Valid && current.String == name {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subdomain_claims WHERE portfolio_id = $1 AND kind = 'custom'`,
		portfolioID,
	); err != nil {
		return fmt.Errorf("failed to release custom subdomain: %w", err)
	}

	ok, err := insertClaim(ctx, tx, name, portfolioID, "custom")
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{Constraint: "subdomain_claims_pkey", Err: fmt.Errorf("subdomain %q is already claimed", name)}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET custom_subdomain = $2, updated_at = now() WHERE id = $1`,
		portfolioID, name,
	); err != nil {
		return fmt.Errorf("failed to update custom subdomain: %w", translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReleaseCustomSubdomain はカスタムサブドメインを解放する。
func (r *PostgresPortfolioRepo) ReleaseCustomSubdomain(ctx context.Context, portfolioID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM subdomain_claims WHERE portfolio_id = $1 AND kind = 'custom'`,
		portfolioID,
	); err != nil {
		return fmt.Errorf("failed to release custom subdomain: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET custom_subdomain = NULL, updated_at = now() WHERE id = $1`,
		portfolioID,
	); err != nil {
		return fmt.Errorf("failed to clear custom subdomain: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListBlobKeys はポートフォリオ配下で参照されているオブジェクトキーを返す。
func (r *PostgresPortfolioRepo) ListBlobKeys(ctx context.Context, portfolioID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT resume_file_id FROM portfolios WHERE id = $1 AND resume_file_id <> ''
		 UNION
		 SELECT image_id FROM projects WHERE portfolio_id = $1 AND image_id <> ''
		 UNION
		 SELECT image_id FROM blogs WHERE portfolio_id = $1 AND image_id <> ''`,
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan blob key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blob keys: %w", err)
	}
	return keys, nil
}

// insertClaim は名前の予約を試み、予約できた場合にtrueを返す。
func insertClaim(ctx context.Context, q execQuerier, name, portfolioID, kind string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO subdomain_claims (name, portfolio_id, kind) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, portfolioID, kind,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim subdomain: %w", translateError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func encodePortfolioJSON(p *model.Portfolio) (settings, socialLinks []byte, err error) {
	settings, err = json.Marshal(settingsRecord(p.Settings))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	links := p.Contact.SocialLinks
	if links == nil {
		links = []model.SocialLink{}
	}
	socialLinks, err = json.Marshal(links)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode social links: %w", err)
	}
	return settings, socialLinks, nil
}

func scanPortfolio(row *sql.Row) (*model.Portfolio, error) {
	p := &model.Portfolio{}
	var (
		settingsRaw, linksRaw []byte
		customSubdomain       sql.NullString
		publishedAt           sql.NullTime
		keywords              []string
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Personal.Name, &p.Personal.Position, &p.Personal.Bio,
		&p.Personal.ProfilePhotoID, &settingsRaw, &p.Contact.Email, &linksRaw,
		&p.Resume.FileID, &p.Resume.FileName, pq.Array(&keywords),
		&p.Subdomain, &customSubdomain, &p.IsPublished, &publishedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	var settings settingsRecord
	if err := json.Unmarshal(settingsRaw, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	p.Settings = model.Settings(settings)
	if err := json.Unmarshal(linksRaw, &p.Contact.SocialLinks); err != nil {
		return nil, fmt.Errorf("failed to decode social links: %w", err)
	}
	p.SEOKeywords = keywords
	p.CustomSubdomain = customSubdomain.String
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	return p, nil
}

// compile-time interface check
var _ PortfolioRepository = (*PostgresPortfolioRepo)(nil)
