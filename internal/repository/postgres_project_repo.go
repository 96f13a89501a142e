package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/portfolium/internal/model"
	"github.com/lib/pq"
)

const projectColumns = `id, portfolio_id, title, description, technologies, live_url, repo_url,
	image_id, image_url, sort_order, created_at, updated_at`

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if isInvalidKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	list, err := scanProjects(rows)
	if isInvalidKey(err) {
		return nil, nil
	}
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListByPortfolioID はsort_order昇順、同順位は作成順でプロジェクトを返す。
func (r *PostgresProjectRepo) ListByPortfolioID(ctx context.Context, portfolioID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE portfolio_id = $1 ORDER BY sort_order, seq`,
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return scanProjects(rows)
}

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, p *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, portfolio_id, title, description, technologies, live_url, repo_url,
			image_id, image_url, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.PortfolioID, p.Title, p.Description, pq.Array(nonNilStrings(p.Technologies)),
		p.LiveURL, p.RepoURL, p.ImageID, p.ImageURL, p.Order, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// Update はportfolio_idが一致する場合のみプロジェクトを更新する。画像参照は変更しない。
func (r *PostgresProjectRepo) Update(ctx context.Context, p *model.Project) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects
		 SET title = $3, description = $4, technologies = $5, live_url = $6, repo_url = $7,
		     sort_order = $8, updated_at = $9
		 WHERE id = $1 AND portfolio_id = $2`,
		p.ID, p.PortfolioID, p.Title, p.Description, pq.Array(nonNilStrings(p.Technologies)),
		p.LiveURL, p.RepoURL, p.Order, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update project: %w", err)
	}
	return affectedOne(result)
}

// UpdateImage は画像参照のみを更新する。
func (r *PostgresProjectRepo) UpdateImage(ctx context.Context, id, portfolioID, imageID, imageURL string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET image_id = $3, image_url = $4, updated_at = now()
		 WHERE id = $1 AND portfolio_id = $2`,
		id, portfolioID, imageID, imageURL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update project image: %w", err)
	}
	return affectedOne(result)
}

// Delete はportfolio_idが一致する場合のみプロジェクトを削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id, portfolioID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1 AND portfolio_id = $2`, id, portfolioID)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	return affectedOne(result)
}

func scanProjects(rows *sql.Rows) ([]*model.Project, error) {
	defer rows.Close()

	list := []*model.Project{}
	for rows.Next() {
		p := &model.Project{}
		var technologies []string
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Title, &p.Description, pq.Array(&technologies),
			&p.LiveURL, &p.RepoURL, &p.ImageID, &p.ImageURL, &p.Order, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Technologies = technologies
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return list, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
