// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Provider は外部IdPの種別を表す。
type Provider string

const (
	// ProviderGitHub はGitHub OAuthを表す。
	ProviderGitHub Provider = "github"
	// ProviderGoogle はGoogle OAuthを表す。
	ProviderGoogle Provider = "google"
)

// Valid はサポート対象のプロバイダーかどうかを返す。
func (p Provider) Valid() bool {
	return p == ProviderGitHub || p == ProviderGoogle
}

// Role はアカウントの権限を表す。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account はサービス利用者の正規アカウントを表す。
// 複数のIdPでログインしても、検証済みメールアドレスが同じであれば1つのAccountに集約される。
type Account struct {
	ID              string
	DisplayName     string
	Email           string
	PasswordHash    string // パスワード未設定の場合は空
	AuthProvider    Provider
	ProviderID      string // AuthProviderにおける外部ID
	GitHubUsername  string
	AvatarURL       string
	ProfilePhotoID  string
	ProfilePhotoURL string
	Role            Role
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Identities は紐付け済みIdPの一覧。FindByIDWithIdentities でのみ埋まる。
	Identities []Identity
}

// HasPassword はパスワードが設定済みかどうかを返す。
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// Identity は外部IdPとの紐付け情報を表す。
// (Provider, ProviderUserID) は一意で、1アカウントにつき1プロバイダー1件まで。
type Identity struct {
	ID             string
	AccountID      string
	Provider       Provider
	ProviderUserID string
	Email          string
	Name           string
	Username       string
	AvatarURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExternalIdentity はOAuthコールバックで得られた外部IdPの主張を表す。
type ExternalIdentity struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Username       string
	AvatarURL      string
}

// OwnsBlobKey はkeyがアカウント専用のプレフィックス {accountID}/ 配下にあるかを返す。
// ストレージ上のオブジェクトはすべてこのプレフィックスで保存される。
func OwnsBlobKey(accountID, key string) bool {
	if accountID == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, accountID+"/")
}
