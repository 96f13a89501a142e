// Package portfolio はポートフォリオ集約の編集・公開・公開ページ参照を提供する。
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hitoshi/portfolium/internal/metrics"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
	"github.com/hitoshi/portfolium/internal/security"
)

// Service はポートフォリオ集約のユースケースを提供する。
type Service struct {
	portfolioRepo  repository.PortfolioRepository
	experienceRepo repository.ExperienceRepository
	projectRepo    repository.ProjectRepository
	blogRepo       repository.BlogRepository
	guard          *Guard
	sanitizer      security.ContentSanitizer
	cache          PublicCache
	metrics        metrics.MetricsCollector
	validate       *validator.Validate
	now            func() time.Time
}

// NewService はServiceを生成する。cacheとcollectorはnilの場合に無効化される。
func NewService(
	portfolioRepo repository.PortfolioRepository,
	experienceRepo repository.ExperienceRepository,
	projectRepo repository.ProjectRepository,
	blogRepo repository.BlogRepository,
	sanitizer security.ContentSanitizer,
	cache PublicCache,
	collector metrics.MetricsCollector,
) *Service {
	if cache == nil {
		cache = NoopPublicCache{}
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		portfolioRepo:  portfolioRepo,
		experienceRepo: experienceRepo,
		projectRepo:    projectRepo,
		blogRepo:       blogRepo,
		guard:          NewGuard(portfolioRepo, experienceRepo, projectRepo, blogRepo),
		sanitizer:      sanitizer,
		cache:          cache,
		metrics:        collector,
		validate:       newValidator(),
		now:            time.Now,
	}
}

// GetAggregate はアカウントのポートフォリオを子要素一覧付きで返す。
func (s *Service) GetAggregate(ctx context.Context, accountID string) (*model.Aggregate, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.loadChildren(ctx, p)
}

// ReplaceAggregate はトップレベルの内容を検証して上書きする。
// ポートフォリオが未作成の場合はデフォルトサブドメインを割り当てて作成する。
// 子要素・サブドメイン・公開状態は変更しない。
func (s *Service) ReplaceAggregate(ctx context.Context, accountID string, input AggregateInput) (*model.Aggregate, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	existing, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}

	var p *model.Portfolio
	if existing == nil {
		p = &model.Portfolio{Settings: model.DefaultSettings()}
	} else {
		p = existing
	}

	if err := s.applySections(p, SectionsInput(input), true); err != nil {
		return nil, err
	}

	if existing == nil {
		p, err = s.create(ctx, accountID, p)
		if err != nil {
			return nil, err
		}
	} else if err := s.update(ctx, p); err != nil {
		return nil, err
	}

	return s.loadChildren(ctx, p)
}

// PatchSections は指定されたトップレベルセクションのみを置き換える。
// ポートフォリオが未作成の場合、personalとcontactの両方が指定されていれば作成する。
func (s *Service) PatchSections(ctx context.Context, accountID string, input SectionsInput) (*model.Aggregate, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	p, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	if p == nil {
		if input.Personal == nil || input.Contact == nil {
			return nil, model.NewPortfolioNotFoundError()
		}
		return s.ReplaceAggregate(ctx, accountID, AggregateInput(input))
	}

	if err := s.applySections(p, input, false); err != nil {
		return nil, err
	}
	if err := s.update(ctx, p); err != nil {
		return nil, err
	}
	return s.loadChildren(ctx, p)
}

// PatchSettings は表示設定のみを部分更新する。
func (s *Service) PatchSettings(ctx context.Context, accountID string, input SettingsInput) (*model.Portfolio, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}

	p.Settings = model.SettingsPatch(input).Apply(p.Settings)
	if err := s.portfolioRepo.UpdateSettings(ctx, p.ID, p.Settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	s.invalidate(ctx, p)
	return p, nil
}

// applySections は入力をポートフォリオに反映する。
// replaceがtrueの場合、省略されたsettings・seoは既定値に戻す。
// プロフィール写真と履歴書の参照は保持する。
func (s *Service) applySections(p *model.Portfolio, input SectionsInput, replace bool) error {
	if input.Personal != nil {
		personal, err := s.buildPersonal(*input.Personal)
		if err != nil {
			return err
		}
		personal.ProfilePhotoID = p.Personal.ProfilePhotoID
		p.Personal = personal
	}

	switch {
	case input.Settings != nil && replace:
		p.Settings = model.SettingsPatch(*input.Settings).Apply(model.DefaultSettings())
	case input.Settings != nil:
		p.Settings = model.SettingsPatch(*input.Settings).Apply(p.Settings)
	case replace:
		p.Settings = model.DefaultSettings()
	}

	if input.Contact != nil {
		contact, err := s.buildContact(*input.Contact)
		if err != nil {
			return err
		}
		p.Contact = contact
	}

	switch {
	case input.SEO != nil:
		p.SEOKeywords = normalizeKeywords(input.SEO.Keywords)
	case replace:
		p.SEOKeywords = []string{}
	}
	return nil
}

func (s *Service) buildPersonal(in PersonalInput) (model.Personal, error) {
	personal := model.Personal{
		Name:     s.sanitizer.StripTags(in.Name),
		Position: s.sanitizer.StripTags(in.Position),
		Bio:      s.sanitizer.StripTags(in.Bio),
	}
	switch {
	case personal.Name == "":
		return model.Personal{}, model.NewValidationError("personal.name", "必須項目です")
	case personal.Position == "":
		return model.Personal{}, model.NewValidationError("personal.position", "必須項目です")
	case personal.Bio == "":
		return model.Personal{}, model.NewValidationError("personal.bio", "必須項目です")
	}
	if err := checkStoredLength("personal.name", personal.Name, maxShortTextLength); err != nil {
		return model.Personal{}, err
	}
	if err := checkStoredLength("personal.position", personal.Position, maxShortTextLength); err != nil {
		return model.Personal{}, err
	}
	return personal, nil
}

func (s *Service) buildContact(in ContactInput) (model.Contact, error) {
	contact := model.Contact{
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		SocialLinks: make([]model.SocialLink, 0, len(in.SocialLinks)),
	}
	for i, link := range in.SocialLinks {
		url := normalizeURL(link.URL)
		if err := s.validate.Var(url, "http_url"); err != nil {
			return model.Contact{}, model.NewValidationError(
				fmt.Sprintf("contact.socialLinks[%d].url", i), "URLの形式が正しくありません")
		}
		contact.SocialLinks = append(contact.SocialLinks, model.SocialLink{
			Platform: link.Platform,
			URL:      url,
			Label:    s.sanitizer.StripTags(link.Label),
		})
	}
	return contact, nil
}

// normalizeKeywords は空白を除去し、空要素と重複を取り除く。
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// create はポートフォリオを新規作成する。
// 同一アカウントの同時作成で先を越された場合は、作成済みのポートフォリオに内容を書き込む。
func (s *Service) create(ctx context.Context, accountID string, p *model.Portfolio) (*model.Portfolio, error) {
	now := s.now()
	p.ID = uuid.NewString()
	p.AccountID = accountID
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.SEOKeywords == nil {
		p.SEOKeywords = []string{}
	}

	candidates := DefaultSubdomainCandidates(p.Personal.Name)
	err := s.portfolioRepo.CreateWithSubdomain(ctx, p, candidates)
	switch {
	case err == nil:
		slog.Info("ポートフォリオを作成しました",
			slog.String("account_id", accountID),
			slog.String("portfolio_id", p.ID),
			slog.String("subdomain", p.Subdomain),
		)
		return p, nil
	case errors.Is(err, repository.ErrSubdomainExhausted):
		return nil, model.NewSubdomainTakenError(candidates[0])
	case errors.Is(err, repository.ErrConflict):
		winner, findErr := s.portfolioRepo.FindByAccountID(ctx, accountID)
		if findErr != nil {
			return nil, fmt.Errorf("failed to find portfolio: %w", findErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("failed to create portfolio: %w", err)
		}
		winner.Personal = p.Personal
		winner.Settings = p.Settings
		winner.Contact = p.Contact
		winner.Resume = p.Resume
		winner.SEOKeywords = p.SEOKeywords
		if err := s.update(ctx, winner); err != nil {
			return nil, err
		}
		return winner, nil
	default:
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
}

func (s *Service) update(ctx context.Context, p *model.Portfolio) error {
	p.UpdatedAt = s.now()
	if err := s.portfolioRepo.UpdateContent(ctx, p); err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	s.invalidate(ctx, p)
	return nil
}

// requirePortfolio はアカウントのポートフォリオを返す。未作成の場合はNotFound。
func (s *Service) requirePortfolio(ctx context.Context, accountID string) (*model.Portfolio, error) {
	p, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	if p == nil {
		return nil, model.NewPortfolioNotFoundError()
	}
	return p, nil
}

// loadChildren はportfolio_idから子要素一覧を導出して集約を組み立てる。
func (s *Service) loadChildren(ctx context.Context, p *model.Portfolio) (*model.Aggregate, error) {
	experiences, err := s.experienceRepo.ListByPortfolioID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiences: %w", err)
	}
	projects, err := s.projectRepo.ListByPortfolioID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	blogs, err := s.blogRepo.ListByPortfolioID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blogs: %w", err)
	}
	return &model.Aggregate{
		Portfolio:   p,
		Experiences: experiences,
		Projects:    projects,
		Blogs:       blogs,
	}, nil
}

// invalidate はポートフォリオが保持する全名前の公開キャッシュを破棄する。
func (s *Service) invalidate(ctx context.Context, p *model.Portfolio) {
	s.cache.Invalidate(ctx, p.SubdomainNames()...)
}

// Invalidate はアカウントのポートフォリオの公開キャッシュを破棄する。
// メディア操作など、このパッケージ外でポートフォリオ内容が変わった場合に使う。
func (s *Service) Invalidate(ctx context.Context, accountID string) {
	p, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil || p == nil {
		return
	}
	s.invalidate(ctx, p)
}
