package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

func assertAPIError(t *testing.T, err error, code, field string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
	if field != "" && apiErr.Field != field {
		t.Errorf("Field = %q, want %q", apiErr.Field, field)
	}
}

// TestReplaceAggregate_FirstWriteCreatesPortfolio は初回書き込みでポートフォリオとデフォルトサブドメインが作成されることを検証する。
func TestReplaceAggregate_FirstWriteCreatesPortfolio(t *testing.T) {
	env := newTestEnv()

	agg, err := env.svc.ReplaceAggregate(context.Background(), "acc-1", validAggregateInput("Taro Yamada"))
	if err != nil {
		t.Fatalf("ReplaceAggregate() error = %v", err)
	}

	p := agg.Portfolio
	if p.ID == "" || p.AccountID != "acc-1" {
		t.Errorf("ID = %q, AccountID = %q", p.ID, p.AccountID)
	}
	if p.Subdomain != "taro-yamada" {
		t.Errorf("Subdomain = %q, want %q", p.Subdomain, "taro-yamada")
	}
	if p.IsPublished {
		t.Error("new portfolio should be a draft")
	}
	if p.Settings != model.DefaultSettings() {
		t.Errorf("Settings = %+v, want defaults", p.Settings)
	}
	if p.Contact.Email != "taro@example.com" {
		t.Errorf("Email = %q, want lowercased", p.Contact.Email)
	}
	if len(p.Contact.SocialLinks) != 1 || p.Contact.SocialLinks[0].URL != "https://github.com/taro" {
		t.Errorf("SocialLinks = %+v, want normalized https url", p.Contact.SocialLinks)
	}
	if len(agg.Experiences) != 0 || len(agg.Projects) != 0 || len(agg.Blogs) != 0 {
		t.Error("new portfolio should have no children")
	}
	if env.store.claims["taro-yamada"] != p.ID {
		t.Error("default subdomain was not claimed in the namespace")
	}
}

// TestReplaceAggregate_OverwritesTopLevelOnly は上書き時にサブドメイン・公開状態・子要素が保持されることを検証する。
func TestReplaceAggregate_OverwritesTopLevelOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created := env.mustCreate(t, "acc-1", "Taro Yamada")

	if _, err := env.svc.AddProject(ctx, "acc-1", ProjectInput{Title: "feed", Description: "RSS reader"}); err != nil {
		t.Fatalf("AddProject() error = %v", err)
	}
	if _, err := env.svc.Publish(ctx, "acc-1"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	disabled := false
	input := validAggregateInput("Jiro Suzuki")
	input.Settings = &SettingsInput{BlogsSectionEnabled: &disabled}
	input.SEO = &SEOInput{Keywords: []string{" go ", "postgres", "go", ""}}

	agg, err := env.svc.ReplaceAggregate(ctx, "acc-1", input)
	if err != nil {
		t.Fatalf("ReplaceAggregate() error = %v", err)
	}

	p := agg.Portfolio
	if p.ID != created.ID || p.Subdomain != created.Subdomain {
		t.Errorf("identity changed: id %q -> %q, subdomain %q -> %q", created.ID, p.ID, created.Subdomain, p.Subdomain)
	}
	if !p.IsPublished {
		t.Error("publication state must not change on overwrite")
	}
	if p.Personal.Name != "Jiro Suzuki" {
		t.Errorf("Personal.Name = %q", p.Personal.Name)
	}
	if p.Settings.BlogsSectionEnabled || !p.Settings.ExperienceSectionEnabled {
		t.Errorf("Settings = %+v", p.Settings)
	}
	if !slices.Equal(p.SEOKeywords, []string{"go", "postgres"}) {
		t.Errorf("SEOKeywords = %v, want [go postgres]", p.SEOKeywords)
	}
	if len(agg.Projects) != 1 {
		t.Errorf("Projects = %d, want 1", len(agg.Projects))
	}
	if !slices.Contains(env.cache.invalidated, created.Subdomain) {
		t.Errorf("invalidated = %v, want %q", env.cache.invalidated, created.Subdomain)
	}
}

// TestReplaceAggregate_DefaultSubdomainCollision は同名の別アカウントに別のサブドメインが割り当てられることを検証する。
func TestReplaceAggregate_DefaultSubdomainCollision(t *testing.T) {
	env := newTestEnv()
	first := env.mustCreate(t, "acc-1", "Taro Yamada")
	second := env.mustCreate(t, "acc-2", "Taro Yamada")

	if first.Subdomain == second.Subdomain {
		t.Fatalf("both portfolios got %q", first.Subdomain)
	}
	if !strings.HasPrefix(second.Subdomain, "taro-yamada-") {
		t.Errorf("second subdomain = %q, want taro-yamada-xxxxxx", second.Subdomain)
	}
}

// TestReplaceAggregate_Validation は入力検証エラーがJSONパスのフィールド名で報告されることを検証する。
func TestReplaceAggregate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(in *AggregateInput)
		wantField string
	}{
		{name: "personal欠落", mutate: func(in *AggregateInput) { in.Personal = nil }, wantField: "personal"},
		{name: "contact欠落", mutate: func(in *AggregateInput) { in.Contact = nil }, wantField: "contact"},
		{name: "名前が空", mutate: func(in *AggregateInput) { in.Personal.Name = "" }, wantField: "personal.name"},
		{name: "自己紹介がタグのみ", mutate: func(in *AggregateInput) { in.Personal.Bio = "<b></b>" }, wantField: "personal.bio"},
		{name: "メール形式", mutate: func(in *AggregateInput) { in.Contact.Email = "not-an-email" }, wantField: "contact.email"},
		{
			name:      "未対応のプラットフォーム",
			mutate:    func(in *AggregateInput) { in.Contact.SocialLinks[0].Platform = "myspace" },
			wantField: "contact.socialLinks[0].platform",
		},
		{
			name:      "http以外のURL",
			mutate:    func(in *AggregateInput) { in.Contact.SocialLinks[0].URL = "ftp://example.com/taro" },
			wantField: "contact.socialLinks[0].url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			input := validAggregateInput("Taro")
			tt.mutate(&input)

			_, err := env.svc.ReplaceAggregate(context.Background(), "acc-1", input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertAPIError(t, err, model.ErrCodeInvalidField, tt.wantField)
			if len(env.store.portfolios) != 0 {
				t.Error("nothing should be persisted on validation failure")
			}
		})
	}
}

// racingPortfolioRepo は初回のFindByAccountIDだけ未作成を返し、同時作成の競合を再現する。
type racingPortfolioRepo struct {
	*memPortfolioRepo
	calls int
}

func (r *racingPortfolioRepo) FindByAccountID(ctx context.Context, accountID string) (*model.Portfolio, error) {
	r.calls++
	if r.calls == 1 {
		return nil, nil
	}
	return r.memPortfolioRepo.FindByAccountID(ctx, accountID)
}

// TestReplaceAggregate_ConcurrentCreateFallsBackToUpdate は同一アカウントの同時作成で負けた側が既存ポートフォリオを更新することを検証する。
func TestReplaceAggregate_ConcurrentCreateFallsBackToUpdate(t *testing.T) {
	env := newTestEnv()
	env.store.portfolios["p-winner"] = &model.Portfolio{ID: "p-winner", AccountID: "acc-1", Subdomain: "winner"}
	env.store.claims["winner"] = "p-winner"
	env.store.createErr = &repository.ConflictError{Constraint: "portfolios_account_unique"}

	repo := &racingPortfolioRepo{memPortfolioRepo: &memPortfolioRepo{st: env.store}}
	svc := NewService(repo, &memExperienceRepo{st: env.store}, &memProjectRepo{st: env.store}, &memBlogRepo{st: env.store},
		env.svc.sanitizer, env.cache, env.metrics)

	agg, err := svc.ReplaceAggregate(context.Background(), "acc-1", validAggregateInput("Taro"))
	if err != nil {
		t.Fatalf("ReplaceAggregate() error = %v", err)
	}
	if agg.Portfolio.ID != "p-winner" || agg.Portfolio.Subdomain != "winner" {
		t.Errorf("portfolio = %s/%s, want p-winner/winner", agg.Portfolio.ID, agg.Portfolio.Subdomain)
	}
	if env.store.portfolios["p-winner"].Personal.Name != "Taro" {
		t.Error("content was not written to the existing portfolio")
	}
}

// TestReplaceAggregate_SubdomainExhausted は全候補が使用済みの場合にSUBDOMAIN_TAKENとなることを検証する。
func TestReplaceAggregate_SubdomainExhausted(t *testing.T) {
	env := newTestEnv()
	env.store.createErr = repository.ErrSubdomainExhausted

	_, err := env.svc.ReplaceAggregate(context.Background(), "acc-1", validAggregateInput("Taro"))
	assertAPIError(t, err, model.ErrCodeSubdomainTaken, "")
}

func TestGetAggregate_NotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.GetAggregate(context.Background(), "acc-unknown")
	assertAPIError(t, err, model.ErrCodePortfolioNotFound, "")
}

// TestPatchSettings_MergesOnlyProvidedFields は指定した設定項目のみが変更されることを検証する。
func TestPatchSettings_MergesOnlyProvidedFields(t *testing.T) {
	env := newTestEnv()
	env.mustCreate(t, "acc-1", "Taro")

	enabled := true
	p, err := env.svc.PatchSettings(context.Background(), "acc-1", SettingsInput{UseProviderAvatar: &enabled})
	if err != nil {
		t.Fatalf("PatchSettings() error = %v", err)
	}

	want := model.DefaultSettings()
	want.UseProviderAvatar = true
	if p.Settings != want {
		t.Errorf("Settings = %+v, want %+v", p.Settings, want)
	}
	if env.store.portfolios[p.ID].Settings != want {
		t.Error("settings were not persisted")
	}
}

// TestPatchSections_ReplacesOnlyProvidedSections は指定したセクションのみが置き換わることを検証する。
func TestPatchSections_ReplacesOnlyProvidedSections(t *testing.T) {
	env := newTestEnv()
	created := env.mustCreate(t, "acc-1", "Taro")

	agg, err := env.svc.PatchSections(context.Background(), "acc-1", SectionsInput{
		SEO: &SEOInput{Keywords: []string{"portfolio"}},
	})
	if err != nil {
		t.Fatalf("PatchSections() error = %v", err)
	}
	if agg.Portfolio.Personal != created.Personal {
		t.Errorf("Personal changed: %+v", agg.Portfolio.Personal)
	}
	if !slices.Equal(agg.Portfolio.SEOKeywords, []string{"portfolio"}) {
		t.Errorf("SEOKeywords = %v", agg.Portfolio.SEOKeywords)
	}
}

func TestPatchSections_WithoutPortfolio(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.PatchSections(ctx, "acc-1", SectionsInput{SEO: &SEOInput{Keywords: []string{"go"}}})
	assertAPIError(t, err, model.ErrCodePortfolioNotFound, "")

	in := validAggregateInput("Taro")
	agg, err := env.svc.PatchSections(ctx, "acc-1", SectionsInput{Personal: in.Personal, Contact: in.Contact})
	if err != nil {
		t.Fatalf("PatchSections() error = %v", err)
	}
	if agg.Portfolio.Subdomain != "taro" {
		t.Errorf("Subdomain = %q, want %q", agg.Portfolio.Subdomain, "taro")
	}
}

// TestReplaceAggregate_IgnoresClientBlobKeys はリクエストに含まれたオブジェクトキーで
// 履歴書・プロフィール写真の参照が書き換わらないことを検証する。
func TestReplaceAggregate_IgnoresClientBlobKeys(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created := env.mustCreate(t, "acc-1", "Taro Yamada")
	stored := env.store.portfolios[created.ID]
	stored.Resume = model.Resume{FileID: "acc-1/resume/cv.pdf", FileName: "cv.pdf"}
	stored.Personal.ProfilePhotoID = "acc-1/profile/me.png"

	body := `{
		"personal": {"name": "Taro", "position": "Engineer", "bio": "hi", "profilePhotoId": "acc-victim/profile/x.png"},
		"contact": {"email": "taro@example.com"},
		"resume": {"fileId": "other/resume/x.pdf", "fileName": "x.pdf"}
	}`
	var input AggregateInput
	if err := json.Unmarshal([]byte(body), &input); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if _, err := env.svc.ReplaceAggregate(ctx, "acc-1", input); err != nil {
		t.Fatalf("ReplaceAggregate() error = %v", err)
	}

	var sections SectionsInput
	if err := json.Unmarshal([]byte(body), &sections); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if _, err := env.svc.PatchSections(ctx, "acc-1", sections); err != nil {
		t.Fatalf("PatchSections() error = %v", err)
	}

	got := env.store.portfolios[created.ID]
	if got.Resume.FileID != "acc-1/resume/cv.pdf" || got.Resume.FileName != "cv.pdf" {
		t.Errorf("Resume = %+v, want stored resume kept", got.Resume)
	}
	if got.Personal.ProfilePhotoID != "acc-1/profile/me.png" {
		t.Errorf("ProfilePhotoID = %q, want stored photo kept", got.Personal.ProfilePhotoID)
	}
	if got.Personal.Name != "Taro" {
		t.Errorf("Personal.Name = %q, want updated", got.Personal.Name)
	}
}
