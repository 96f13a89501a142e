package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

// Publish はポートフォリオを公開する。公開済みの場合は公開日時を更新する。
func (s *Service) Publish(ctx context.Context, accountID string) (*model.PublicationStatus, error) {
	now := s.now().UTC()
	return s.setPublication(ctx, accountID, &now)
}

// Unpublish はポートフォリオを非公開にする。非公開の場合も成功する。
func (s *Service) Unpublish(ctx context.Context, accountID string) (*model.PublicationStatus, error) {
	return s.setPublication(ctx, accountID, nil)
}

func (s *Service) setPublication(ctx context.Context, accountID string, publishedAt *time.Time) (*model.PublicationStatus, error) {
	p, err := s.portfolioRepo.SetPublication(ctx, accountID, publishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update publication: %w", err)
	}
	if p == nil {
		return nil, model.NewPortfolioNotFoundError()
	}

	s.metrics.RecordPublishTransition(p.IsPublished)
	s.invalidate(ctx, p)

	slog.Info("公開状態を変更しました",
		slog.String("account_id", accountID),
		slog.String("portfolio_id", p.ID),
		slog.Bool("is_published", p.IsPublished),
	)
	return publicationStatus(p), nil
}

// Status は公開状態とサブドメインを返す。
func (s *Service) Status(ctx context.Context, accountID string) (*model.PublicationStatus, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return publicationStatus(p), nil
}

// ClaimCustomSubdomain はカスタムサブドメインを予約する。空文字の場合は解放する。
// 他のポートフォリオがデフォルトまたはカスタムとして保持している名前はConflictとなる。
func (s *Service) ClaimCustomSubdomain(ctx context.Context, accountID, desired string) (*model.PublicationStatus, error) {
	name := NormalizeSubdomain(desired)

	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// 旧名のキャッシュも破棄するため、変更前の名前を控える
	previous := p.SubdomainNames()

	if name == "" {
		if p.CustomSubdomain == "" {
			return publicationStatus(p), nil
		}
		if err := s.portfolioRepo.ReleaseCustomSubdomain(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("failed to release custom subdomain: %w", err)
		}
		p.CustomSubdomain = ""
		s.cache.Invalidate(ctx, previous...)
		return publicationStatus(p), nil
	}

	if err := ValidateSubdomain(name); err != nil {
		return nil, err
	}
	if name == p.Subdomain {
		return nil, model.NewInvalidSubdomainError("デフォルトサブドメインと同じ名前は指定できません")
	}

	if err := s.portfolioRepo.ClaimCustomSubdomain(ctx, p.ID, name); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.RecordSubdomainConflict()
			return nil, model.NewSubdomainTakenError(name)
		}
		return nil, fmt.Errorf("failed to claim custom subdomain: %w", err)
	}
	p.CustomSubdomain = name
	s.cache.Invalidate(ctx, previous...)

	slog.Info("カスタムサブドメインを設定しました",
		slog.String("account_id", accountID),
		slog.String("subdomain", name),
	)
	return publicationStatus(p), nil
}

func publicationStatus(p *model.Portfolio) *model.PublicationStatus {
	return &model.PublicationStatus{
		IsPublished:     p.IsPublished,
		PublishedAt:     p.PublishedAt,
		Subdomain:       p.Subdomain,
		CustomSubdomain: p.CustomSubdomain,
	}
}
