// Package auth はOAuthログイン、外部identityのアカウント解決、アクセストークン発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/portfolium/internal/model"
)

// LoginResult はOAuthコールバック処理の結果。
type LoginResult struct {
	Token   string
	Account *model.Account
	IsNew   bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers map[model.Provider]OAuthProvider
	resolver  *Resolver
	tokens    *TokenIssuer
}

// NewService はServiceを生成する。providersには設定済みのプロバイダーのみを渡す。
func NewService(resolver *Resolver, tokens *TokenIssuer, providers ...OAuthProvider) *Service {
	m := make(map[model.Provider]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		providers: m,
		resolver:  resolver,
		tokens:    tokens,
	}
}

// LoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) LoginURL(provider, state string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	return p.LoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、アクセストークンを発行する。
// 外部IdPとの通信や永続化に失敗した場合は部分的なアカウントを残さず認証失敗とする。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*LoginResult, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}

	ext, err := p.Exchange(ctx, code)
	if err != nil {
		slog.Error("oauth exchange failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAuthenticationFailedError()
	}

	account, isNew, err := s.resolver.Resolve(ctx, ext)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		slog.Error("identity resolution failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAuthenticationFailedError()
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &LoginResult{Token: token, Account: account, IsNew: isNew}, nil
}

// VerifyToken はアクセストークンを検証し、クレームを返す。
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

func (s *Service) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[model.Provider(name)]
	if !ok {
		return nil, model.NewUnsupportedProviderError(name)
	}
	return p, nil
}

// GenerateState はCSRF対策用のランダムなstate値を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
