package model

import "time"

// ChildKind はポートフォリオ子要素の種別を表す。
type ChildKind string

const (
	ChildKindExperience ChildKind = "experience"
	ChildKindProject    ChildKind = "project"
	ChildKindBlog       ChildKind = "blog"
)

// Valid はサポート対象の種別かどうかを返す。
func (k ChildKind) Valid() bool {
	switch k {
	case ChildKindExperience, ChildKindProject, ChildKindBlog:
		return true
	}
	return false
}

// Experience は職歴を表す。
// IsCurrentPosition が true の場合 EndDate は常に nil。
type Experience struct {
	ID                string
	PortfolioID       string
	Title             string
	StartDate         time.Time
	EndDate           *time.Time
	IsCurrentPosition bool
	Description       string
	Order             int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Project は制作物を表す。
type Project struct {
	ID           string
	PortfolioID  string
	Title        string
	Description  string
	Technologies []string
	LiveURL      string
	RepoURL      string
	ImageID      string
	ImageURL     string
	Order        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Blog はブログ記事を表す。
// BlogID は外部公開用の識別子で、内部IDとは別に採番される。
type Blog struct {
	ID          string
	BlogID      string
	PortfolioID string
	Title       string
	Content     string // サニタイズ済みHTML
	URL         string
	ImageID     string
	ImageURL    string
	Order       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
