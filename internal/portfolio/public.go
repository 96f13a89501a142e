package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
)

// PublicPortfolio は公開ページ用のポートフォリオ表現。
// 子要素の一覧は全件を表示順で埋め込み、ページングしない。
type PublicPortfolio struct {
	Subdomain       string             `json:"subdomain"`
	CustomSubdomain string             `json:"customSubdomain,omitempty"`
	Personal        PublicPersonal     `json:"personal"`
	Contact         PublicContact      `json:"contact"`
	Settings        PublicSettings     `json:"settings"`
	Resume          *PublicResume      `json:"resume,omitempty"`
	SEO             PublicSEO          `json:"seo"`
	Experiences     []PublicExperience `json:"experiences"`
	Projects        []PublicProject    `json:"projects"`
	Blogs           []PublicBlog       `json:"blogs"`
	PublishedAt     *time.Time         `json:"publishedAt,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// PublicPersonal は公開ページの個人情報。
type PublicPersonal struct {
	Name           string `json:"name"`
	Position       string `json:"position"`
	Bio            string `json:"bio"`
	ProfilePhotoID string `json:"profilePhotoId,omitempty"`
}

// PublicContact は公開ページの連絡先。
type PublicContact struct {
	Email       string             `json:"email"`
	SocialLinks []model.SocialLink `json:"socialLinks"`
}

// PublicSettings は公開ページの表示設定。
type PublicSettings struct {
	ExperienceSectionEnabled bool `json:"experienceSectionEnabled"`
	BlogsSectionEnabled      bool `json:"blogsSectionEnabled"`
	ResumeEnabled            bool `json:"resumeEnabled"`
	UseProviderAvatar        bool `json:"useProviderAvatar"`
}

// PublicResume は公開ページの履歴書参照。
type PublicResume struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

// PublicSEO は公開ページのSEO情報。
type PublicSEO struct {
	Keywords []string `json:"keywords"`
}

// PublicExperience は公開ページの職歴。
type PublicExperience struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	IsCurrentPosition bool       `json:"isCurrentPosition"`
	Description       string     `json:"description"`
	Order             int        `json:"order"`
}

// PublicProject は公開ページのプロジェクト。
type PublicProject struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	LiveURL      string   `json:"liveUrl,omitempty"`
	RepoURL      string   `json:"repoUrl,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Order        int      `json:"order"`
}

// PublicBlog は公開ページのブログ記事。
type PublicBlog struct {
	BlogID    string    `json:"blogId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublicView はsubdomainまたはcustomSubdomainに一致する公開中のポートフォリオを返す。
// 未公開のポートフォリオはどちらの名前でも参照できない。
func (s *Service) PublicView(ctx context.Context, name string) (*PublicPortfolio, error) {
	name = NormalizeSubdomain(name)

	if cached, ok := s.cache.Get(ctx, name); ok {
		s.metrics.RecordPublicLookup(true)
		return cached, nil
	}

	p, err := s.portfolioRepo.FindPublishedBySubdomain(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find published portfolio: %w", err)
	}
	if p == nil {
		s.metrics.RecordPublicLookup(false)
		return nil, model.NewPublicPortfolioNotFoundError(name)
	}

	agg, err := s.loadChildren(ctx, p)
	if err != nil {
		return nil, err
	}

	view := toPublicPortfolio(agg)
	s.cache.Set(ctx, name, view)
	s.metrics.RecordPublicLookup(true)

	slog.Debug("public portfolio served from database",
		slog.String("subdomain", name),
		slog.String("portfolio_id", p.ID),
	)
	return view, nil
}

func toPublicPortfolio(agg *model.Aggregate) *PublicPortfolio {
	p := agg.Portfolio
	links := p.Contact.SocialLinks
	if links == nil {
		links = []model.SocialLink{}
	}
	keywords := p.SEOKeywords
	if keywords == nil {
		keywords = []string{}
	}

	view := &PublicPortfolio{
		Subdomain:       p.Subdomain,
		CustomSubdomain: p.CustomSubdomain,
		Personal: PublicPersonal{
			Name:           p.Personal.Name,
			Position:       p.Personal.Position,
			Bio:            p.Personal.Bio,
			ProfilePhotoID: p.Personal.ProfilePhotoID,
		},
		Contact:     PublicContact{Email: p.Contact.Email, SocialLinks: links},
		Settings:    PublicSettings(p.Settings),
		SEO:         PublicSEO{Keywords: keywords},
		Experiences: make([]PublicExperience, 0, len(agg.Experiences)),
		Projects:    make([]PublicProject, 0, len(agg.Projects)),
		Blogs:       make([]PublicBlog, 0, len(agg.Blogs)),
		PublishedAt: p.PublishedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Settings.ResumeEnabled && p.Resume.FileID != "" {
		view.Resume = &PublicResume{FileID: p.Resume.FileID, FileName: p.Resume.FileName}
	}

	for _, e := range agg.Experiences {
		view.Experiences = append(view.Experiences, PublicExperience{
			ID:                e.ID,
			Title:             e.Title,
			StartDate:         e.StartDate,
			EndDate:           e.EndDate,
			IsCurrentPosition: e.IsCurrentPosition,
			Description:       e.Description,
			Order:             e.Order,
		})
	}
	for _, pr := range agg.Projects {
		view.Projects = append(view.Projects, PublicProject{
			ID:           pr.ID,
			Title:        pr.Title,
			Description:  pr.Description,
			Technologies: pr.Technologies,
			LiveURL:      pr.LiveURL,
			RepoURL:      pr.RepoURL,
			ImageURL:     pr.ImageURL,
			Order:        pr.Order,
		})
	}
	for _, b := range agg.Blogs {
		view.Blogs = append(view.Blogs, PublicBlog{
			BlogID:    b.BlogID,
			Title:     b.Title,
			Content:   b.Content,
			URL:       b.URL,
			ImageURL:  b.ImageURL,
			Order:     b.Order,
			CreatedAt: b.CreatedAt,
		})
	}
	return view
}
