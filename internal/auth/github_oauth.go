package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hitoshi/portfolium/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPIURL = "https://api.github.com"

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	APIURL   string
}

// GitHubOAuthProvider はGitHub OAuthによる認証を提供する。
type GitHubOAuthProvider struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	endpoint := github.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}
	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = defaultGitHubAPIURL
	}

	return &GitHubOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiURL:     apiURL,
		httpClient: http.DefaultClient,
	}
}

// Name はプロバイダー種別を返す。
func (p *GitHubOAuthProvider) Name() model.Provider {
	return model.ProviderGitHub
}

// LoginURL はGitHub OAuthの認証URLを生成する。
func (p *GitHubOAuthProvider) LoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// メールアドレスは/user/emailsのprimaryを採用し、その検証状態を返す。
func (p *GitHubOAuthProvider) Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	var user githubUser
	if err := getJSON(ctx, p.httpClient, p.apiURL+"/user", token.AccessToken, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}

	var emails []githubEmail
	if err := getJSON(ctx, p.httpClient, p.apiURL+"/user/emails", token.AccessToken, &emails); err != nil {
		return nil, fmt.Errorf("failed to fetch user emails: %w", err)
	}
	email, verified := primaryEmail(emails)

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &model.ExternalIdentity{
		Provider:       model.ProviderGitHub,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		EmailVerified:  verified,
		Name:           name,
		Username:       user.Login,
		AvatarURL:      user.AvatarURL,
	}, nil
}

// primaryEmail はprimaryのメールアドレスを返す。primaryがなければ先頭を返す。
func primaryEmail(emails []githubEmail) (string, bool) {
	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, emails[0].Verified
	}
	return "", false
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
