// Package account はアカウント設定の参照・更新と退会処理を提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/portfolium/internal/auth"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

// MaxDisplayNameLength は表示名の最大文字数。
const MaxDisplayNameLength = 50

// PortfolioReader は退会時に削除対象のポートフォリオを調べるためのインターフェース。
type PortfolioReader interface {
	FindByAccountID(ctx context.Context, accountID string) (*model.Portfolio, error)
	ListBlobKeys(ctx context.Context, portfolioID string) ([]string, error)
}

// CacheInvalidator は公開ページキャッシュの無効化インターフェース。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, names ...string)
}

// ProfileUpdate はアカウント設定の更新内容。nilのフィールドは変更しない。
type ProfileUpdate struct {
	DisplayName *string
	Email       *string
	Password    *string
}

// Service はアカウント管理のサービス層。
type Service struct {
	accountRepo   repository.AccountRepository
	portfolioRepo PortfolioReader
	cache         CacheInvalidator
	validate      *validator.Validate
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accountRepo repository.AccountRepository, portfolioRepo PortfolioReader, cache CacheInvalidator) *Service {
	return &Service{
		accountRepo:   accountRepo,
		portfolioRepo: portfolioRepo,
		cache:         cache,
		validate:      validator.New(),
	}
}

// Get はアカウントを紐付け済みidentities付きで取得する。
func (s *Service) Get(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByIDWithIdentities(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// UpdateProfile は表示名・メールアドレス・パスワードを更新する。
// メールアドレスが他のアカウントで使われている場合は EMAIL_TAKEN を返す。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}

	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return nil, model.NewValidationError("displayName", "表示名は必須です")
		}
		if utf8.RuneCountInString(name) > MaxDisplayNameLength {
			return nil, model.NewValidationError("displayName", fmt.Sprintf("表示名は%d文字以内で指定してください", MaxDisplayNameLength))
		}
		account.DisplayName = name
	}

	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		if err := s.validate.Var(email, "required,email"); err != nil {
			return nil, model.NewValidationError("email", "メールアドレスの形式が正しくありません")
		}
		account.Email = email
	}

	if update.Password != nil {
		hash, err := auth.HashPassword(*update.Password)
		switch {
		case errors.Is(err, auth.ErrPasswordTooShort):
			return nil, model.NewValidationError("password", fmt.Sprintf("パスワードは%d文字以上で指定してください", auth.MinPasswordLength))
		case errors.Is(err, auth.ErrPasswordTooLong):
			return nil, model.NewValidationError("password", fmt.Sprintf("パスワードは%dバイト以内で指定してください", auth.MaxPasswordBytes))
		case err != nil:
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
		account.PasswordHash = hash
	}

	account.UpdatedAt = time.Now()
	if err := s.accountRepo.UpdateProfile(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("アカウントの更新に失敗しました: %w", err)
	}

	return account, nil
}

// Withdraw はアカウントの退会処理を実行する。
// portfolios, identities, 子要素, subdomain_claims はCASCADE削除される。
// ストレージ上のファイルは削除待ちキューに積み、ワーカーが後から削除する。
func (s *Service) Withdraw(ctx context.Context, accountID string) error {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewAccountNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.String("account_id", accountID))

	var candidates []string
	if account.ProfilePhotoID != "" {
		candidates = append(candidates, account.ProfilePhotoID)
	}

	portfolio, err := s.portfolioRepo.FindByAccountID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("ポートフォリオの取得に失敗しました: %w", err)
	}
	if portfolio != nil {
		keys, err := s.portfolioRepo.ListBlobKeys(ctx, portfolio.ID)
		if err != nil {
			return fmt.Errorf("ファイル一覧の取得に失敗しました: %w", err)
		}
		candidates = append(candidates, keys...)
	}

	// 自アカウントのプレフィックス外のキーは他者のオブジェクトなので削除しない
	orphans := make([]string, 0, len(candidates))
	for _, key := range candidates {
		if !model.OwnsBlobKey(accountID, key) {
			slog.Warn("所有外のオブジェクトキーを削除対象から除外しました",
				slog.String("account_id", accountID),
				slog.String("key", key),
			)
			continue
		}
		orphans = append(orphans, key)
	}

	if err := s.accountRepo.DeleteByID(ctx, accountID, orphans); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	if portfolio != nil && s.cache != nil {
		s.cache.Invalidate(ctx, portfolio.SubdomainNames()...)
	}

	slog.Info("退会処理が完了しました",
		slog.String("account_id", accountID),
		slog.Int("orphan_blobs", len(orphans)),
	)
	return nil
}
