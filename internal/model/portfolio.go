package model

import (
	"slices"
	"time"
)

// Portfolio はアカウントごとに1件だけ存在するポートフォリオ集約のルート。
// 子要素（職歴・プロジェクト・ブログ）は portfolio_id で紐付き、読み出し時に導出される。
type Portfolio struct {
	ID              string
	AccountID       string
	Personal        Personal
	Settings        Settings
	Contact         Contact
	Resume          Resume
	SEOKeywords     []string
	Subdomain       string
	CustomSubdomain string // 未設定の場合は空
	IsPublished     bool
	PublishedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubdomainNames はこのポートフォリオが名前空間上で保持している名前を返す。
func (p *Portfolio) SubdomainNames() []string {
	names := []string{p.Subdomain}
	if p.CustomSubdomain != "" {
		names = append(names, p.CustomSubdomain)
	}
	return names
}

// Personal はプロフィールの個人情報ブロック。
type Personal struct {
	Name           string
	Position       string
	Bio            string
	ProfilePhotoID string
}

// Settings はセクションの表示設定。
type Settings struct {
	ExperienceSectionEnabled bool
	BlogsSectionEnabled      bool
	ResumeEnabled            bool
	UseProviderAvatar        bool
}

// DefaultSettings は新規ポートフォリオの表示設定を返す。
func DefaultSettings() Settings {
	return Settings{
		ExperienceSectionEnabled: true,
		BlogsSectionEnabled:      true,
		ResumeEnabled:            true,
		UseProviderAvatar:        false,
	}
}

// SettingsPatch は表示設定の部分更新。nilのフィールドは変更しない。
type SettingsPatch struct {
	ExperienceSectionEnabled *bool
	BlogsSectionEnabled      *bool
	ResumeEnabled            *bool
	UseProviderAvatar        *bool
}

// Apply はパッチを適用した設定を返す。
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.ExperienceSectionEnabled != nil {
		s.ExperienceSectionEnabled = *p.ExperienceSectionEnabled
	}
	if p.BlogsSectionEnabled != nil {
		s.BlogsSectionEnabled = *p.BlogsSectionEnabled
	}
	if p.ResumeEnabled != nil {
		s.ResumeEnabled = *p.ResumeEnabled
	}
	if p.UseProviderAvatar != nil {
		s.UseProviderAvatar = *p.UseProviderAvatar
	}
	return s
}

// Contact は連絡先ブロック。
type Contact struct {
	Email       string
	SocialLinks []SocialLink
}

// SocialLink はSNS等へのリンク。
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Label    string `json:"label,omitempty"`
}

// SocialPlatforms はSocialLink.Platformに指定可能な値。
var SocialPlatforms = []string{
	"github", "linkedin", "twitter", "facebook", "instagram", "youtube",
	"dribbble", "behance", "medium", "dev", "stackoverflow", "other",
}

// IsSocialPlatform は指定可能なプラットフォームかどうかを返す。
func IsSocialPlatform(platform string) bool {
	return slices.Contains(SocialPlatforms, platform)
}

// Resume は履歴書ファイルへの参照。FileIDはBlobStoreのキー。
type Resume struct {
	FileID   string
	FileName string
}

// Aggregate はポートフォリオと順序付き子要素一覧をまとめた読み出しモデル。
type Aggregate struct {
	Portfolio   *Portfolio
	Experiences []*Experience
	Projects    []*Project
	Blogs       []*Blog
}

// PublicationStatus は公開状態の読み出しモデル。
type PublicationStatus struct {
	IsPublished     bool
	PublishedAt     *time.Time
	Subdomain       string
	CustomSubdomain string
}
