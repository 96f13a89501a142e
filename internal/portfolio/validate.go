package portfolio

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/portfolium/internal/model"
)

// PersonalInput はpersonalブロックの入力。
type PersonalInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Position string `json:"position" validate:"required,max=100"`
	Bio      string `json:"bio" validate:"required,max=2000"`
}

// SettingsInput は表示設定の入力。省略したフィールドは変更しない。
type SettingsInput struct {
	ExperienceSectionEnabled *bool `json:"experienceSectionEnabled"`
	BlogsSectionEnabled      *bool `json:"blogsSectionEnabled"`
	ResumeEnabled            *bool `json:"resumeEnabled"`
	UseProviderAvatar        *bool `json:"useProviderAvatar"`
}

// SocialLinkInput はSNSリンクの入力。
type SocialLinkInput struct {
	Platform string `json:"platform" validate:"required,social_platform"`
	URL      string `json:"url" validate:"required,max=2048"`
	Label    string `json:"label" validate:"max=100"`
}

// ContactInput は連絡先ブロックの入力。
type ContactInput struct {
	Email       string            `json:"email" validate:"required,email"`
	SocialLinks []SocialLinkInput `json:"socialLinks" validate:"max=20,dive"`
}

// SEOInput はSEO設定の入力。
type SEOInput struct {
	Keywords []string `json:"keywords" validate:"max=30,dive,max=50"`
}

// AggregateInput はポートフォリオ全体の上書き入力。
// personalとcontactは必須で、settings・seoは省略時に既定値となる。
// プロフィール写真と履歴書の参照はメディアAPIだけが設定するため入力に含めない。
type AggregateInput struct {
	Personal *PersonalInput `json:"personal" validate:"required"`
	Settings *SettingsInput `json:"settings"`
	Contact  *ContactInput  `json:"contact" validate:"required"`
	SEO      *SEOInput      `json:"seo"`
}

// SectionsInput はトップレベルセクションの部分更新入力。指定されたセクションのみ置き換える。
type SectionsInput struct {
	Personal *PersonalInput `json:"personal"`
	Settings *SettingsInput `json:"settings"`
	Contact  *ContactInput  `json:"contact"`
	SEO      *SEOInput      `json:"seo"`
}

// ExperienceInput は職歴の入力。日付は "2006-01-02" またはRFC3339。
type ExperienceInput struct {
	Title             string  `json:"title" validate:"required,max=100"`
	StartDate         string  `json:"startDate" validate:"required"`
	EndDate           *string `json:"endDate"`
	IsCurrentPosition bool    `json:"isCurrentPosition"`
	Description       string  `json:"description" validate:"max=5000"`
	Order             int     `json:"order"`
}

// ProjectInput はプロジェクトの入力。
type ProjectInput struct {
	Title        string   `json:"title" validate:"required,max=100"`
	Description  string   `json:"description" validate:"required,max=5000"`
	Technologies []string `json:"technologies" validate:"max=30,dive,max=50"`
	LiveURL      string   `json:"liveUrl" validate:"omitempty,http_url,max=2048"`
	RepoURL      string   `json:"repoUrl" validate:"omitempty,http_url,max=2048"`
	Order        int      `json:"order"`
}

// BlogInput はブログ記事の入力。contentが空の場合はdescriptionを本文として扱う。
type BlogInput struct {
	Title       string `json:"title" validate:"required,max=100"`
	Content     string `json:"content" validate:"max=100000"`
	Description string `json:"description" validate:"max=100000"`
	URL         string `json:"url" validate:"omitempty,http_url,max=2048"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,http_url,max=2048"`
	Order       int    `json:"order"`
}

// maxShortTextLength は名前・肩書き・タイトルの最大文字数（VARCHAR(100)列）。
const maxShortTextLength = 100

// checkStoredLength は無害化後の保存値が列の文字数上限に収まることを確認する。
func checkStoredLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return model.NewValidationError(field, fmt.Sprintf("%d文字以内で入力してください", limit))
	}
	return nil
}

// newValidator はJSONフィールド名でエラーを報告するvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("social_platform", func(fl validator.FieldLevel) bool {
		return model.IsSocialPlatform(fl.Field().String())
	})
	return v
}

// validateStruct は入力を検証し、最初の違反を検証エラーに変換する。
func (s *Service) validateStruct(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0])
	}
	return model.NewInvalidRequestError()
}

// fieldError はvalidatorのFieldErrorを検証エラーに変換する。
// フィールド名はトップレベル構造体名を除いたJSONパス（例: contact.socialLinks[0].url）。
func fieldError(fe validator.FieldError) *model.APIError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var reason string
	switch fe.Tag() {
	case "required":
		reason = "必須項目です"
	case "max":
		reason = fmt.Sprintf("%sを超えています", fe.Param())
	case "email":
		reason = "メールアドレスの形式が正しくありません"
	case "http_url":
		reason = "URLの形式が正しくありません"
	case "social_platform":
		reason = "サポートされていないプラットフォームです"
	default:
		reason = fmt.Sprintf("%s制約に違反しています", fe.Tag())
	}
	return model.NewValidationError(field, reason)
}

// parseDate は "2006-01-02" またはRFC3339形式の日付を解析する。
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, model.NewValidationError(field, "日付の形式が正しくありません")
}

// normalizeURL はスキームのないURLにhttpsを補う。
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}
