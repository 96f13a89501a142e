package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/portfolium/internal/model"
)

const experienceColumns = `id, portfolio_id, title, start_date, end_date, is_current_position,
	description, sort_order, created_at, updated_at`

// PostgresExperienceRepo はPostgreSQLを使用した職歴リポジトリ。
type PostgresExperienceRepo struct {
	db *sql.DB
}

// NewPostgresExperienceRepo はPostgresExperienceRepoを生成する。
func NewPostgresExperienceRepo(db *sql.DB) *PostgresExperienceRepo {
	return &PostgresExperienceRepo{db: db}
}

// FindByID は指定IDの職歴を取得する。見つからない場合はnilを返す。
func (r *PostgresExperienceRepo) FindByID(ctx context.Context, id string) (*model.Experience, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE id = $1`, id)
	if isInvalidKey(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find experience: %w", err)
	}
	list, err := scanExperiences(rows)
	if isInvalidKey(err) {
		return nil, nil
	}
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListByPortfolioID はsort_order昇順、同順位は作成順で職歴を返す。
func (r *PostgresExperienceRepo) ListByPortfolioID(ctx context.Context, portfolioID string) ([]*model.Experience, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE portfolio_id = $1 ORDER BY sort_order, seq`,
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiences: %w", err)
	}
	return scanExperiences(rows)
}

// Create は職歴を作成する。
func (r *PostgresExperienceRepo) Create(ctx context.Context, e *model.Experience) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO experiences (id, portfolio_id, title, start_date, end_date, is_current_position,
			description, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PortfolioID, e.Title, e.StartDate, nullTime(e.EndDate), e.IsCurrentPosition,
		e.Description, e.Order, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experience: %w", err)
	}
	return nil
}

// Update はportfolio_idが一致する場合のみ職歴を更新する。
func (r *PostgresExperienceRepo) Update(ctx context.Context, e *model.Experience) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE experiences
		 SET title = $3, start_date = $4, end_date = $5, is_current_position = $6,
		     description = $7, sort_order = $8, updated_at = $9
		 WHERE id = $1 AND portfolio_id = $2`,
		e.ID, e.PortfolioID, e.Title, e.StartDate, nullTime(e.EndDate), e.IsCurrentPosition,
		e.Description, e.Order, e.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update experience: %w", err)
	}
	return affectedOne(result)
}

// Delete はportfolio_idが一致する場合のみ職歴を削除する。
func (r *PostgresExperienceRepo) Delete(ctx context.Context, id, portfolioID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM experiences WHERE id = $1 AND portfolio_id = $2`, id, portfolioID)
	if err != nil {
		return false, fmt.Errorf("failed to delete experience: %w", err)
	}
	return affectedOne(result)
}

func scanExperiences(rows *sql.Rows) ([]*model.Experience, error) {
	defer rows.Close()

	list := []*model.Experience{}
	for rows.Next() {
		e := &model.Experience{}
		var endDate sql.NullTime
		if err := rows.Scan(&e.ID, &e.PortfolioID, &e.Title, &e.StartDate, &endDate,
			&e.IsCurrentPosition, &e.Description, &e.Order, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan experience: %w", err)
		}
		if endDate.Valid {
			t := endDate.Time
			e.EndDate = &t
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate experiences: %w", err)
	}
	return list, nil
}

// affectedOne は更新・削除件数が1件以上かどうかを返す。
func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ExperienceRepository = (*PostgresExperienceRepo)(nil)
