package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/portfolium/internal/model"
)

const blogColumns = `id, blog_id, portfolio_id, title, content, url, image_id, image_url,
	sort_order, created_at, updated_at`

// PostgresBlogRepo はPostgreSQLを使用したブログ記事リポジトリ。
type PostgresBlogRepo struct {
	db *sql.DB
}

// NewPostgresBlogRepo はPostgresBlogRepoを生成する。
func NewPostgresBlogRepo(db *sql.DB) *PostgresBlogRepo {
	return &PostgresBlogRepo{db: db}
}

// FindByBlogID は公開IDでブログ記事を取得する。見つからない場合はnilを返す。
func (r *PostgresBlogRepo) FindByBlogID(ctx context.Context, blogID string) (*model.Blog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+blogColumns+` FROM blogs WHERE blog_id = $1`, blogID)
	if isInvalidKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find blog: %w", err)
	}
	list, err := scanBlogs(rows)
	if isInvalidKey(err) {
		return nil, nil
	}
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListByPortfolioID はsort_order昇順、同順位は作成順でブログ記事を返す。
func (r *PostgresBlogRepo) ListByPortfolioID(ctx context.Context, portfolioID string) ([]*model.Blog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+blogColumns+` FROM blogs WHERE portfolio_id = $1 ORDER BY sort_order, seq`,
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blogs: %w", err)
	}
	return scanBlogs(rows)
}

// Create はブログ記事を作成する。
func (r *PostgresBlogRepo) Create(ctx context.Context, b *model.Blog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO blogs (id, blog_id, portfolio_id, title, content, url, image_id, image_url,
			sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.BlogID, b.PortfolioID, b.Title, b.Content, b.URL, b.ImageID, b.ImageURL,
		b.Order, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert blog: %w", translateError(err))
	}
	return nil
}

// Update はportfolio_idが一致する場合のみブログ記事を更新する。
func (r *PostgresBlogRepo) Update(ctx context.Context, b *model.Blog) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE blogs
		 SET title = $3, content = $4, url = $5, image_id = $6, image_url = $7,
		     sort_order = $8, updated_at = $9
		 WHERE blog_id = $1 AND portfolio_id = $2`,
		b.BlogID, b.PortfolioID, b.Title, b.Content, b.URL, b.ImageID, b.ImageURL,
		b.Order, b.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update blog: %w", err)
	}
	return affectedOne(result)
}

// Delete はportfolio_idが一致する場合のみブログ記事を削除する。
func (r *PostgresBlogRepo) Delete(ctx context.Context, blogID, portfolioID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM blogs WHERE blog_id = $1 AND portfolio_id = $2`, blogID, portfolioID)
	if err != nil {
		return false, fmt.Errorf("failed to delete blog: %w", err)
	}
	return affectedOne(result)
}

func scanBlogs(rows *sql.Rows) ([]*model.Blog, error) {
	defer rows.Close()

	list := []*model.Blog{}
	for rows.Next() {
		b := &model.Blog{}
		if err := rows.Scan(&b.ID, &b.BlogID, &b.PortfolioID, &b.Title, &b.Content, &b.URL,
			&b.ImageID, &b.ImageURL, &b.Order, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blog: %w", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blogs: %w", err)
	}
	return list, nil
}

// compile-time interface check
var _ BlogRepository = (*PostgresBlogRepo)(nil)
