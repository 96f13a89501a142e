package portfolio

import (
	"context"
	"fmt"

	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

// Verified は所有者確認済みの子要素とその親ポートフォリオ。
// Kindに対応するフィールドのみが埋まる。
type Verified struct {
	Portfolio  *model.Portfolio
	Experience *model.Experience
	Project    *model.Project
	Blog       *model.Blog
}

// Guard は子要素の操作前に所有者を確認する。
type Guard struct {
	portfolioRepo  repository.PortfolioRepository
	experienceRepo repository.ExperienceRepository
	projectRepo    repository.ProjectRepository
	blogRepo       repository.BlogRepository
}

// NewGuard はGuardを生成する。
func NewGuard(
	portfolioRepo repository.PortfolioRepository,
	experienceRepo repository.ExperienceRepository,
	projectRepo repository.ProjectRepository,
	blogRepo repository.BlogRepository,
) *Guard {
	return &Guard{
		portfolioRepo:  portfolioRepo,
		experienceRepo: experienceRepo,
		projectRepo:    projectRepo,
		blogRepo:       blogRepo,
	}
}

// Verify は子要素refがaccountIDのポートフォリオに属することを確認する。
// 子要素または親が存在しない場合はNotFound、親が他アカウントのものであればForbiddenを返す。
// ブログはblogIdで、その他は内部IDで参照する。
func (g *Guard) Verify(ctx context.Context, accountID string, kind model.ChildKind, ref string) (*Verified, error) {
	v := &Verified{}
	var portfolioID string

	switch kind {
	case model.ChildKindExperience:
		e, err := g.experienceRepo.FindByID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to find experience: %w", err)
		}
		if e == nil {
			return nil, model.NewChildNotFoundError(kind, ref)
		}
		v.Experience, portfolioID = e, e.PortfolioID
	case model.ChildKindProject:
		p, err := g.projectRepo.FindByID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to find project: %w", err)
		}
		if p == nil {
			return nil, model.NewChildNotFoundError(kind, ref)
		}
		v.Project, portfolioID = p, p.PortfolioID
	case model.ChildKindBlog:
		b, err := g.blogRepo.FindByBlogID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to find blog: %w", err)
		}
		if b == nil {
			return nil, model.NewChildNotFoundError(kind, ref)
		}
		v.Blog, portfolioID = b, b.PortfolioID
	default:
		return nil, model.NewValidationError("kind", fmt.Sprintf("サポートされていない種別です: %s", kind))
	}

	parent, err := g.portfolioRepo.FindByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	if parent == nil {
		return nil, model.NewChildNotFoundError(kind, ref)
	}
	if parent.AccountID != accountID {
		return nil, model.NewNotOwnerError(kind)
	}
	v.Portfolio = parent
	return v, nil
}
