package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/portfolium/internal/account"
	"github.com/hitoshi/portfolium/internal/auth"
	"github.com/hitoshi/portfolium/internal/media"
	"github.com/hitoshi/portfolium/internal/middleware"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/portfolio"
)

// --- モック定義 ---

type mockAuthService struct {
	loginURLFn       func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code string) (*auth.LoginResult, error)
}

func (m *mockAuthService) LoginURL(provider, state string) (string, error) {
	if m.loginURLFn != nil {
		return m.loginURLFn(provider, state)
	}
	return "https://idp.example.com/authorize?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string) (*auth.LoginResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code)
	}
	return nil, model.NewAuthenticationFailedError()
}

type mockAccountService struct {
	getFn      func(ctx context.Context, accountID string) (*model.Account, error)
	updateFn   func(ctx context.Context, accountID string, update account.ProfileUpdate) (*model.Account, error)
	withdrawFn func(ctx context.Context, accountID string) error
}

func (m *mockAccountService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, accountID)
	}
	return nil, model.NewAccountNotFoundError()
}

func (m *mockAccountService) UpdateProfile(ctx context.Context, accountID string, update account.ProfileUpdate) (*model.Account, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, accountID, update)
	}
	return nil, model.NewAccountNotFoundError()
}

func (m *mockAccountService) Withdraw(ctx context.Context, accountID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, accountID)
	}
	return nil
}

// mockPortfolioService はPortfolioServiceInterfaceのモック。
// 関数が未設定のメソッドはPORTFOLIO_NOT_FOUNDを返す。
type mockPortfolioService struct {
	getAggregateFn     func(ctx context.Context, accountID string) (*model.Aggregate, error)
	replaceAggregateFn func(ctx context.Context, accountID string, input portfolio.AggregateInput) (*model.Aggregate, error)
	patchSectionsFn    func(ctx context.Context, accountID string, input portfolio.SectionsInput) (*model.Aggregate, error)
	patchSettingsFn    func(ctx context.Context, accountID string, input portfolio.SettingsInput) (*model.Portfolio, error)

	addExperienceFn    func(ctx context.Context, accountID string, input portfolio.ExperienceInput) (*model.Experience, error)
	updateExperienceFn func(ctx context.Context, accountID, id string, input portfolio.ExperienceInput) (*model.Experience, error)
	listProjectsFn     func(ctx context.Context, accountID string) ([]*model.Project, error)
	updateProjectFn    func(ctx context.Context, accountID, id string, input portfolio.ProjectInput) (*model.Project, error)
	addBlogFn          func(ctx context.Context, accountID string, input portfolio.BlogInput) (*model.Blog, error)
	updateBlogFn       func(ctx context.Context, accountID, blogID string, input portfolio.BlogInput) (*model.Blog, error)
	removeChildFn      func(ctx context.Context, accountID string, kind model.ChildKind, ref string) error
}

func (m *mockPortfolioService) GetAggregate(ctx context.Context, accountID string) (*model.Aggregate, error) {
	if m.getAggregateFn != nil {
		return m.getAggregateFn(ctx, accountID)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) ReplaceAggregate(ctx context.Context, accountID string, input portfolio.AggregateInput) (*model.Aggregate, error) {
	if m.replaceAggregateFn != nil {
		return m.replaceAggregateFn(ctx, accountID, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) PatchSections(ctx context.Context, accountID string, input portfolio.SectionsInput) (*model.Aggregate, error) {
	if m.patchSectionsFn != nil {
		return m.patchSectionsFn(ctx, accountID, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) PatchSettings(ctx context.Context, accountID string, input portfolio.SettingsInput) (*model.Portfolio, error) {
	if m.patchSettingsFn != nil {
		return m.patchSettingsFn(ctx, accountID, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) ListExperiences(_ context.Context, _ string) ([]*model.Experience, error) {
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) AddExperience(ctx context.Context, accountID string, input portfolio.ExperienceInput) (*model.Experience, error) {
	if m.addExperienceFn != nil {
		return m.addExperienceFn(ctx, accountID, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) UpdateExperience(ctx context.Context, accountID, id string, input portfolio.ExperienceInput) (*model.Experience, error) {
	if m.updateExperienceFn != nil {
		return m.updateExperienceFn(ctx, accountID, id, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) ListProjects(ctx context.Context, accountID string) ([]*model.Project, error) {
	if m.listProjectsFn != nil {
		return m.listProjectsFn(ctx, accountID)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) AddProject(_ context.Context, _ string, _ portfolio.ProjectInput) (*model.Project, error) {
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) UpdateProject(ctx context.Context, accountID, id string, input portfolio.ProjectInput) (*model.Project, error) {
	if m.updateProjectFn != nil {
		return m.updateProjectFn(ctx, accountID, id, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) ListBlogs(_ context.Context, _ string) ([]*model.Blog, error) {
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) AddBlog(ctx context.Context, accountID string, input portfolio.BlogInput) (*model.Blog, error) {
	if m.addBlogFn != nil {
		return m.addBlogFn(ctx, accountID, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) UpdateBlog(ctx context.Context, accountID, blogID string, input portfolio.BlogInput) (*model.Blog, error) {
	if m.updateBlogFn != nil {
		return m.updateBlogFn(ctx, accountID, blogID, input)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPortfolioService) RemoveChild(ctx context.Context, accountID string, kind model.ChildKind, ref string) error {
	if m.removeChildFn != nil {
		return m.removeChildFn(ctx, accountID, kind, ref)
	}
	return nil
}

type mockPublishService struct {
	statusFn     func(ctx context.Context, accountID string) (*model.PublicationStatus, error)
	publishFn    func(ctx context.Context, accountID string) (*model.PublicationStatus, error)
	unpublishFn  func(ctx context.Context, accountID string) (*model.PublicationStatus, error)
	claimFn      func(ctx context.Context, accountID, desired string) (*model.PublicationStatus, error)
	publicViewFn func(ctx context.Context, name string) (*portfolio.PublicPortfolio, error)
}

func (m *mockPublishService) Status(ctx context.Context, accountID string) (*model.PublicationStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, accountID)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPublishService) Publish(ctx context.Context, accountID string) (*model.PublicationStatus, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, accountID)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPublishService) Unpublish(ctx context.Context, accountID string) (*model.PublicationStatus, error) {
	if m.unpublishFn != nil {
		return m.unpublishFn(ctx, accountID)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPublishService) ClaimCustomSubdomain(ctx context.Context, accountID, desired string) (*model.PublicationStatus, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, accountID, desired)
	}
	return nil, model.NewPortfolioNotFoundError()
}

func (m *mockPublishService) PublicView(ctx context.Context, name string) (*portfolio.PublicPortfolio, error) {
	if m.publicViewFn != nil {
		return m.publicViewFn(ctx, name)
	}
	return nil, model.NewPublicPortfolioNotFoundError(name)
}

type mockMediaService struct {
	maxBytes           int64
	uploadPhotoFn      func(ctx context.Context, accountID string, up media.Upload) (*media.Ref, error)
	profilePhotoFn     func(ctx context.Context, accountID string) (*media.Ref, error)
	deletePhotoFn      func(ctx context.Context, accountID string) error
	uploadProjectFn    func(ctx context.Context, accountID, projectID string, up media.Upload) (*media.Ref, error)
	deleteProjectFn    func(ctx context.Context, accountID, projectID string) error
	uploadResumeFn     func(ctx context.Context, accountID string, up media.Upload) (*model.Resume, error)
	resumeURLFn        func(ctx context.Context, accountID string) (*media.SignedURL, error)
	deleteResumeFn     func(ctx context.Context, accountID string) error
	openPublicResumeFn func(ctx context.Context, accountID, fileName string) (*media.Object, error)
}

func (m *mockMediaService) MaxBytes() int64 {
	if m.maxBytes > 0 {
		return m.maxBytes
	}
	return media.DefaultMaxUploadBytes
}

func (m *mockMediaService) UploadProfilePhoto(ctx context.Context, accountID string, up media.Upload) (*media.Ref, error) {
	if m.uploadPhotoFn != nil {
		return m.uploadPhotoFn(ctx, accountID, up)
	}
	return nil, model.NewStorageNotConfiguredError()
}

func (m *mockMediaService) ProfilePhoto(ctx context.Context, accountID string) (*media.Ref, error) {
	if m.profilePhotoFn != nil {
		return m.profilePhotoFn(ctx, accountID)
	}
	return nil, model.NewMediaNotFoundError("")
}

func (m *mockMediaService) DeleteProfilePhoto(ctx context.Context, accountID string) error {
	if m.deletePhotoFn != nil {
		return m.deletePhotoFn(ctx, accountID)
	}
	return nil
}

func (m *mockMediaService) UploadProjectImage(ctx context.Context, accountID, projectID string, up media.Upload) (*media.Ref, error) {
	if m.uploadProjectFn != nil {
		return m.uploadProjectFn(ctx, accountID, projectID, up)
	}
	return nil, model.NewStorageNotConfiguredError()
}

func (m *mockMediaService) DeleteProjectImage(ctx context.Context, accountID, projectID string) error {
	if m.deleteProjectFn != nil {
		return m.deleteProjectFn(ctx, accountID, projectID)
	}
	return nil
}

func (m *mockMediaService) UploadResume(ctx context.Context, accountID string, up media.Upload) (*model.Resume, error) {
	if m.uploadResumeFn != nil {
		return m.uploadResumeFn(ctx, accountID, up)
	}
	return nil, model.NewStorageNotConfiguredError()
}

func (m *mockMediaService) ResumeURL(ctx context.Context, accountID string) (*media.SignedURL, error) {
	if m.resumeURLFn != nil {
		return m.resumeURLFn(ctx, accountID)
	}
	return nil, model.NewMediaNotFoundError("")
}

func (m *mockMediaService) DeleteResume(ctx context.Context, accountID string) error {
	if m.deleteResumeFn != nil {
		return m.deleteResumeFn(ctx, accountID)
	}
	return nil
}

func (m *mockMediaService) OpenPublicResume(ctx context.Context, accountID, fileName string) (*media.Object, error) {
	if m.openPublicResumeFn != nil {
		return m.openPublicResumeFn(ctx, accountID, fileName)
	}
	return nil, model.NewMediaNotFoundError(fileName)
}

// --- compile-time interface checks ---
var (
	_ AuthServiceInterface      = (*mockAuthService)(nil)
	_ AccountServiceInterface   = (*mockAccountService)(nil)
	_ PortfolioServiceInterface = (*mockPortfolioService)(nil)
	_ PublishServiceInterface   = (*mockPublishService)(nil)
	_ MediaServiceInterface     = (*mockMediaService)(nil)
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにアカウントIDを注入するヘルパー。
func withUserID(r *http.Request, accountID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), accountID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// envelope は成功レスポンスのデコード先。
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return env
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error: %v\nbody: %s", err, w.Body.String())
	}
	return body
}
