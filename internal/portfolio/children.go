package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/portfolium/internal/model"
)

// ListExperiences はアカウントの職歴を表示順で返す。
func (s *Service) ListExperiences(ctx context.Context, accountID string) ([]*model.Experience, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	experiences, err := s.experienceRepo.ListByPortfolioID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiences: %w", err)
	}
	return experiences, nil
}

// AddExperience は職歴を追加する。
func (s *Service) AddExperience(ctx context.Context, accountID string, input ExperienceInput) (*model.Experience, error) {
	e, err := s.buildExperience(input)
	if err != nil {
		return nil, err
	}
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e.ID = uuid.NewString()
	e.PortfolioID = p.ID
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.experienceRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create experience: %w", err)
	}
	s.invalidate(ctx, p)
	return e, nil
}

// UpdateExperience は職歴を更新する。所属ポートフォリオは変わらない。
func (s *Service) UpdateExperience(ctx context.Context, accountID, id string, input ExperienceInput) (*model.Experience, error) {
	e, err := s.buildExperience(input)
	if err != nil {
		return nil, err
	}
	v, err := s.guard.Verify(ctx, accountID, model.ChildKindExperience, id)
	if err != nil {
		return nil, err
	}

	e.ID = v.Experience.ID
	e.PortfolioID = v.Experience.PortfolioID
	e.CreatedAt = v.Experience.CreatedAt
	e.UpdatedAt = s.now()
	ok, err := s.experienceRepo.Update(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("failed to update experience: %w", err)
	}
	if !ok {
		return nil, model.NewChildNotFoundError(model.ChildKindExperience, id)
	}
	s.invalidate(ctx, v.Portfolio)
	return e, nil
}

func (s *Service) buildExperience(input ExperienceInput) (*model.Experience, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}
	start, err := parseDate("startDate", input.StartDate)
	if err != nil {
		return nil, err
	}

	e := &model.Experience{
		Title:             s.sanitizer.StripTags(input.Title),
		StartDate:         start,
		IsCurrentPosition: input.IsCurrentPosition,
		Description:       s.sanitizer.StripTags(input.Description),
		Order:             input.Order,
	}
	if e.Title == "" {
		return nil, model.NewValidationError("title", "必須項目です")
	}
	if err := checkStoredLength("title", e.Title, maxShortTextLength); err != nil {
		return nil, err
	}

	// 現職の場合、終了日は指定されていても無視する
	if !input.IsCurrentPosition && input.EndDate != nil && strings.TrimSpace(*input.EndDate) != "" {
		end, err := parseDate("endDate", *input.EndDate)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, model.NewValidationError("endDate", "開始日より前の日付は指定できません")
		}
		e.EndDate = &end
	}
	return e, nil
}

// ListProjects はアカウントのプロジェクトを表示順で返す。
func (s *Service) ListProjects(ctx context.Context, accountID string) ([]*model.Project, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	projects, err := s.projectRepo.ListByPortfolioID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// AddProject はプロジェクトを追加する。画像はメディアのアップロードで別途設定する。
func (s *Service) AddProject(ctx context.Context, accountID string, input ProjectInput) (*model.Project, error) {
	pr, err := s.buildProject(input)
	if err != nil {
		return nil, err
	}
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	pr.ID = uuid.NewString()
	pr.PortfolioID = p.ID
	pr.CreatedAt = now
	pr.UpdatedAt = now
	if err := s.projectRepo.Create(ctx, pr); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.invalidate(ctx, p)
	return pr, nil
}

// UpdateProject はプロジェクトを更新する。画像参照は保持する。
func (s *Service) UpdateProject(ctx context.Context, accountID, id string, input ProjectInput) (*model.Project, error) {
	pr, err := s.buildProject(input)
	if err != nil {
		return nil, err
	}
	v, err := s.guard.Verify(ctx, accountID, model.ChildKindProject, id)
	if err != nil {
		return nil, err
	}

	pr.ID = v.Project.ID
	pr.PortfolioID = v.Project.PortfolioID
	pr.ImageID = v.Project.ImageID
	pr.ImageURL = v.Project.ImageURL
	pr.CreatedAt = v.Project.CreatedAt
	pr.UpdatedAt = s.now()
	ok, err := s.projectRepo.Update(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if !ok {
		return nil, model.NewChildNotFoundError(model.ChildKindProject, id)
	}
	s.invalidate(ctx, v.Portfolio)
	return pr, nil
}

func (s *Service) buildProject(input ProjectInput) (*model.Project, error) {
	input.LiveURL = normalizeURL(input.LiveURL)
	input.RepoURL = normalizeURL(input.RepoURL)
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	pr := &model.Project{
		Title:        s.sanitizer.StripTags(input.Title),
		Description:  s.sanitizer.StripTags(input.Description),
		Technologies: normalizeKeywords(input.Technologies),
		LiveURL:      input.LiveURL,
		RepoURL:      input.RepoURL,
		Order:        input.Order,
	}
	if pr.Title == "" {
		return nil, model.NewValidationError("title", "必須項目です")
	}
	if err := checkStoredLength("title", pr.Title, maxShortTextLength); err != nil {
		return nil, err
	}
	if pr.Description == "" {
		return nil, model.NewValidationError("description", "必須項目です")
	}
	return pr, nil
}

// ListBlogs はアカウントのブログ記事を表示順で返す。
func (s *Service) ListBlogs(ctx context.Context, accountID string) ([]*model.Blog, error) {
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	blogs, err := s.blogRepo.ListByPortfolioID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blogs: %w", err)
	}
	return blogs, nil
}

// AddBlog はブログ記事を追加し、公開用のblogIdを採番する。
func (s *Service) AddBlog(ctx context.Context, accountID string, input BlogInput) (*model.Blog, error) {
	b, err := s.buildBlog(input)
	if err != nil {
		return nil, err
	}
	p, err := s.requirePortfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b.ID = uuid.NewString()
	b.BlogID = uuid.NewString()
	b.PortfolioID = p.ID
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := s.blogRepo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create blog: %w", err)
	}
	s.invalidate(ctx, p)
	return b, nil
}

// UpdateBlog はblogIdで指定したブログ記事を更新する。
func (s *Service) UpdateBlog(ctx context.Context, accountID, blogID string, input BlogInput) (*model.Blog, error) {
	b, err := s.buildBlog(input)
	if err != nil {
		return nil, err
	}
	v, err := s.guard.Verify(ctx, accountID, model.ChildKindBlog, blogID)
	if err != nil {
		return nil, err
	}

	b.ID = v.Blog.ID
	b.BlogID = v.Blog.BlogID
	b.ImageID = v.Blog.ImageID
	b.PortfolioID = v.Blog.PortfolioID
	b.CreatedAt = v.Blog.CreatedAt
	b.UpdatedAt = s.now()
	ok, err := s.blogRepo.Update(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to update blog: %w", err)
	}
	if !ok {
		return nil, model.NewChildNotFoundError(model.ChildKindBlog, blogID)
	}
	s.invalidate(ctx, v.Portfolio)
	return b, nil
}

func (s *Service) buildBlog(input BlogInput) (*model.Blog, error) {
	input.URL = normalizeURL(input.URL)
	input.ImageURL = normalizeURL(input.ImageURL)
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	content := input.Content
	if strings.TrimSpace(content) == "" {
		content = input.Description
	}
	b := &model.Blog{
		Title:    s.sanitizer.StripTags(input.Title),
		Content:  strings.TrimSpace(s.sanitizer.SanitizeHTML(content)),
		URL:      input.URL,
		ImageURL: input.ImageURL,
		Order:    input.Order,
	}
	if b.Title == "" {
		return nil, model.NewValidationError("title", "必須項目です")
	}
	if err := checkStoredLength("title", b.Title, maxShortTextLength); err != nil {
		return nil, err
	}
	if b.Content == "" {
		return nil, model.NewValidationError("content", "必須項目です")
	}
	return b, nil
}

// RemoveChild は所有者を確認してから子要素を削除する。
// ブログはblogIdで、その他は内部IDで指定する。
func (s *Service) RemoveChild(ctx context.Context, accountID string, kind model.ChildKind, ref string) error {
	v, err := s.guard.Verify(ctx, accountID, kind, ref)
	if err != nil {
		return err
	}

	var ok bool
	switch kind {
	case model.ChildKindExperience:
		ok, err = s.experienceRepo.Delete(ctx, ref, v.Portfolio.ID)
	case model.ChildKindProject:
		ok, err = s.projectRepo.Delete(ctx, ref, v.Portfolio.ID)
	case model.ChildKindBlog:
		ok, err = s.blogRepo.Delete(ctx, ref, v.Portfolio.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if !ok {
		return model.NewChildNotFoundError(kind, ref)
	}

	slog.Info("子要素を削除しました",
		slog.String("account_id", accountID),
		slog.String("kind", string(kind)),
		slog.String("ref", ref),
	)
	s.invalidate(ctx, v.Portfolio)
	return nil
}
