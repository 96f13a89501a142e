package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/portfolio"
)

// PortfolioServiceInterface はポートフォリオ編集ハンドラーが必要とするサービスインターフェース。
type PortfolioServiceInterface interface {
	GetAggregate(ctx context.Context, accountID string) (*model.Aggregate, error)
	ReplaceAggregate(ctx context.Context, accountID string, input portfolio.AggregateInput) (*model.Aggregate, error)
	PatchSections(ctx context.Context, accountID string, input portfolio.SectionsInput) (*model.Aggregate, error)
	PatchSettings(ctx context.Context, accountID string, input portfolio.SettingsInput) (*model.Portfolio, error)

	ListExperiences(ctx context.Context, accountID string) ([]*model.Experience, error)
	AddExperience(ctx context.Context, accountID string, input portfolio.ExperienceInput) (*model.Experience, error)
	UpdateExperience(ctx context.Context, accountID, id string, input portfolio.ExperienceInput) (*model.Experience, error)

	ListProjects(ctx context.Context, accountID string) ([]*model.Project, error)
	AddProject(ctx context.Context, accountID string, input portfolio.ProjectInput) (*model.Project, error)
	UpdateProject(ctx context.Context, accountID, id string, input portfolio.ProjectInput) (*model.Project, error)

	ListBlogs(ctx context.Context, accountID string) ([]*model.Blog, error)
	AddBlog(ctx context.Context, accountID string, input portfolio.BlogInput) (*model.Blog, error)
	UpdateBlog(ctx context.Context, accountID, blogID string, input portfolio.BlogInput) (*model.Blog, error)

	RemoveChild(ctx context.Context, accountID string, kind model.ChildKind, ref string) error
}

// PortfolioHandler はポートフォリオ編集のHTTPハンドラー。
type PortfolioHandler struct {
	service PortfolioServiceInterface
}

// NewPortfolioHandler はPortfolioHandlerを生成する。
func NewPortfolioHandler(service PortfolioServiceInterface) *PortfolioHandler {
	return &PortfolioHandler{service: service}
}

// Get はログイン中アカウントのポートフォリオを子要素付きで返す。
// GET /api/portfolio
func (h *PortfolioHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	agg, err := h.service.GetAggregate(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAggregateResponse(agg))
}

// Replace はポートフォリオ全体を上書きする。存在しない場合は作成する。
// PUT /api/portfolio
func (h *PortfolioHandler) Replace(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.AggregateInput
	if !decodeJSON(w, r, &input) {
		return
	}

	agg, err := h.service.ReplaceAggregate(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAggregateResponse(agg))
}

// Patch は指定されたトップレベルセクションのみを置き換える。
// PATCH /api/portfolio
func (h *PortfolioHandler) Patch(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.SectionsInput
	if !decodeJSON(w, r, &input) {
		return
	}

	agg, err := h.service.PatchSections(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAggregateResponse(agg))
}

// UpdateSettings は表示設定を部分更新する。
// PUT /api/portfolio/settings
func (h *PortfolioHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.SettingsInput
	if !decodeJSON(w, r, &input) {
		return
	}

	p, err := h.service.PatchSettings(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toSettingsResponse(p.Settings))
}

// --- 職歴 ---

// ListExperiences は職歴一覧を返す。
// GET /api/portfolio/experience
func (h *PortfolioHandler) ListExperiences(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListExperiences(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(list, toExperienceResponse))
}

// AddExperience は職歴を追加する。
// POST /api/portfolio/experience
func (h *PortfolioHandler) AddExperience(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.ExperienceInput
	if !decodeJSON(w, r, &input) {
		return
	}

	e, err := h.service.AddExperience(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toExperienceResponse(e))
}

// UpdateExperience は職歴を更新する。
// PUT /api/portfolio/experience/{id}
func (h *PortfolioHandler) UpdateExperience(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.ExperienceInput
	if !decodeJSON(w, r, &input) {
		return
	}

	e, err := h.service.UpdateExperience(r.Context(), accountID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toExperienceResponse(e))
}

// --- プロジェクト ---

// ListProjects はプロジェクト一覧を返す。
// GET /api/portfolio/projects
func (h *PortfolioHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListProjects(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(list, toProjectResponse))
}

// AddProject はプロジェクトを追加する。
// POST /api/portfolio/projects
func (h *PortfolioHandler) AddProject(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.ProjectInput
	if !decodeJSON(w, r, &input) {
		return
	}

	p, err := h.service.AddProject(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toProjectResponse(p))
}

// UpdateProject はプロジェクトを更新する。
// PUT /api/portfolio/projects/{id}
func (h *PortfolioHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.ProjectInput
	if !decodeJSON(w, r, &input) {
		return
	}

	p, err := h.service.UpdateProject(r.Context(), accountID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toProjectResponse(p))
}

// --- ブログ ---

// ListBlogs はブログ記事一覧を返す。
// GET /api/portfolio/blogs
func (h *PortfolioHandler) ListBlogs(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListBlogs(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, mapSlice(list, toBlogResponse))
}

// AddBlog はブログ記事を追加する。
// POST /api/portfolio/blogs
func (h *PortfolioHandler) AddBlog(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.BlogInput
	if !decodeJSON(w, r, &input) {
		return
	}

	b, err := h.service.AddBlog(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toBlogResponse(b))
}

// UpdateBlog はブログ記事を公開IDで更新する。
// PUT /api/portfolio/blogs/{blogId}
func (h *PortfolioHandler) UpdateBlog(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var input portfolio.BlogInput
	if !decodeJSON(w, r, &input) {
		return
	}

	b, err := h.service.UpdateBlog(r.Context(), accountID, chi.URLParam(r, "blogId"), input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBlogResponse(b))
}

// RemoveChild は種別ごとの子要素削除ハンドラーを返す。
// DELETE /api/portfolio/{experience|projects|blogs}/{param}
func (h *PortfolioHandler) RemoveChild(kind model.ChildKind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := requireAccountID(w, r)
		if !ok {
			return
		}

		if err := h.service.RemoveChild(r.Context(), accountID, kind, chi.URLParam(r, param)); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- レスポンス型 ---

type personalResponse struct {
	Name           string `json:"name"`
	Position       string `json:"position"`
	Bio            string `json:"bio"`
	ProfilePhotoID string `json:"profilePhotoId,omitempty"`
}

type contactResponse struct {
	Email       string             `json:"email"`
	SocialLinks []model.SocialLink `json:"socialLinks"`
}

type settingsResponse struct {
	ExperienceSectionEnabled bool `json:"experienceSectionEnabled"`
	BlogsSectionEnabled      bool `json:"blogsSectionEnabled"`
	ResumeEnabled            bool `json:"resumeEnabled"`
	UseProviderAvatar        bool `json:"useProviderAvatar"`
}

type resumeResponse struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

type seoResponse struct {
	Keywords []string `json:"keywords"`
}

// aggregateResponse は編集画面向けのポートフォリオ全体のレスポンス。
type aggregateResponse struct {
	ID              string               `json:"id"`
	Subdomain       string               `json:"subdomain"`
	CustomSubdomain string               `json:"customSubdomain,omitempty"`
	IsPublished     bool                 `json:"isPublished"`
	PublishedAt     *time.Time           `json:"publishedAt,omitempty"`
	Personal        personalResponse     `json:"personal"`
	Contact         contactResponse      `json:"contact"`
	Settings        settingsResponse     `json:"settings"`
	Resume          resumeResponse       `json:"resume"`
	SEO             seoResponse          `json:"seo"`
	Experiences     []experienceResponse `json:"experiences"`
	Projects        []projectResponse    `json:"projects"`
	Blogs           []blogResponse       `json:"blogs"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

type experienceResponse struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	IsCurrentPosition bool       `json:"isCurrentPosition"`
	Description       string     `json:"description"`
	Order             int        `json:"order"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type projectResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Technologies []string  `json:"technologies"`
	LiveURL      string    `json:"liveUrl,omitempty"`
	RepoURL      string    `json:"repoUrl,omitempty"`
	ImageID      string    `json:"imageId,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Order        int       `json:"order"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type blogResponse struct {
	BlogID    string    `json:"blogId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url,omitempty"`
	ImageID   string    `json:"imageId,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAggregateResponse(agg *model.Aggregate) aggregateResponse {
	p := agg.Portfolio
	links := p.Contact.SocialLinks
	if links == nil {
		links = []model.SocialLink{}
	}
	keywords := p.SEOKeywords
	if keywords == nil {
		keywords = []string{}
	}
	return aggregateResponse{
		ID:              p.ID,
		Subdomain:       p.Subdomain,
		CustomSubdomain: p.CustomSubdomain,
		IsPublished:     p.IsPublished,
		PublishedAt:     p.PublishedAt,
		Personal: personalResponse{
			Name:           p.Personal.Name,
			Position:       p.Personal.Position,
			Bio:            p.Personal.Bio,
			ProfilePhotoID: p.Personal.ProfilePhotoID,
		},
		Contact:     contactResponse{Email: p.Contact.Email, SocialLinks: links},
		Settings:    toSettingsResponse(p.Settings),
		Resume:      resumeResponse{FileID: p.Resume.FileID, FileName: p.Resume.FileName},
		SEO:         seoResponse{Keywords: keywords},
		Experiences: mapSlice(agg.Experiences, toExperienceResponse),
		Projects:    mapSlice(agg.Projects, toProjectResponse),
		Blogs:       mapSlice(agg.Blogs, toBlogResponse),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toSettingsResponse(s model.Settings) settingsResponse {
	return settingsResponse(s)
}

func toExperienceResponse(e *model.Experience) experienceResponse {
	return experienceResponse{
		ID:                e.ID,
		Title:             e.Title,
		StartDate:         e.StartDate,
		EndDate:           e.EndDate,
		IsCurrentPosition: e.IsCurrentPosition,
		Description:       e.Description,
		Order:             e.Order,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toProjectResponse(p *model.Project) projectResponse {
	tech := p.Technologies
	if tech == nil {
		tech = []string{}
	}
	return projectResponse{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Technologies: tech,
		LiveURL:      p.LiveURL,
		RepoURL:      p.RepoURL,
		ImageID:      p.ImageID,
		ImageURL:     p.ImageURL,
		Order:        p.Order,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toBlogResponse(b *model.Blog) blogResponse {
	return blogResponse{
		BlogID:    b.BlogID,
		Title:     b.Title,
		Content:   b.Content,
		URL:       b.URL,
		ImageID:   b.ImageID,
		ImageURL:  b.ImageURL,
		Order:     b.Order,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// mapSlice はスライスの各要素を変換する。nilの場合も空スライスを返す。
func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
