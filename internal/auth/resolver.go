package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/portfolium/internal/metrics"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

// Resolver は外部IdPの主張を正規アカウントに解決する。
//
// 解決順序はプロバイダーに依存しない:
//  1. (provider, provider_user_id) でidentityを検索する
//  2. 見つからなければ検証済みメールアドレス（大文字小文字を区別しない）でアカウントを検索する
//  3. どちらも見つからなければアカウントとidentityを同一トランザクションで作成する
type Resolver struct {
	accountRepo repository.AccountRepository
	identRepo   repository.IdentityRepository
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(
	accountRepo repository.AccountRepository,
	identRepo repository.IdentityRepository,
	collector metrics.MetricsCollector,
) *Resolver {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Resolver{
		accountRepo: accountRepo,
		identRepo:   identRepo,
		metrics:     collector,
		now:         time.Now,
	}
}

// Resolve は外部IdPの主張からアカウントを解決する。
// 新規作成した場合はisNew=trueを返す。
// 一意制約違反（同時ログインの競合）の場合は一度だけ解決をやり直す。
func (r *Resolver) Resolve(ctx context.Context, ext *model.ExternalIdentity) (account *model.Account, isNew bool, err error) {
	if !ext.Provider.Valid() {
		return nil, false, model.NewUnsupportedProviderError(string(ext.Provider))
	}
	if ext.ProviderUserID == "" {
		return nil, false, fmt.Errorf("empty provider user id from %s", ext.Provider)
	}
	if ext.Email == "" || !ext.EmailVerified {
		r.metrics.RecordIdentityResolution(string(ext.Provider), metrics.ResolutionRejected)
		return nil, false, model.NewEmailNotVerifiedError(ext.Provider)
	}

	account, outcome, err := r.resolveOnce(ctx, ext)
	if errors.Is(err, repository.ErrConflict) {
		slog.Warn("identity resolution raced, retrying",
			slog.String("provider", string(ext.Provider)),
			slog.String("error", err.Error()),
		)
		account, outcome, err = r.resolveOnce(ctx, ext)
	}
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			r.metrics.RecordIdentityResolution(string(ext.Provider), metrics.ResolutionRejected)
		} else {
			r.metrics.RecordIdentityResolution(string(ext.Provider), metrics.ResolutionFailed)
		}
		return nil, false, err
	}

	r.metrics.RecordIdentityResolution(string(ext.Provider), outcome)
	return account, outcome == metrics.ResolutionCreated, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, ext *model.ExternalIdentity) (*model.Account, string, error) {
	identity, err := r.identRepo.FindByProviderAndProviderUserID(ctx, ext.Provider, ext.ProviderUserID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		account, err := r.accountRepo.FindByID(ctx, identity.AccountID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to find account: %w", err)
		}
		if account == nil {
			return nil, "", fmt.Errorf("identity %s references missing account %s", identity.ID, identity.AccountID)
		}
		if err := r.recordLogin(ctx, account, identity.ID, ext); err != nil {
			return nil, "", err
		}
		return account, metrics.ResolutionLinked, nil
	}

	account, err := r.accountRepo.FindByEmail(ctx, ext.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find account by email: %w", err)
	}

	if account != nil {
		linked, err := r.identRepo.FindByAccountAndProvider(ctx, account.ID, ext.Provider)
		if err != nil {
			return nil, "", fmt.Errorf("failed to find linked identity: %w", err)
		}
		identityID := uuid.New().String()
		if linked != nil {
			identityID = linked.ID
			// 同じプロバイダーの別IDはメール一致を根拠に新しいIDへ付け替える
			if linked.ProviderUserID != ext.ProviderUserID {
				slog.Info("identity re-pointed to new provider user id",
					slog.String("account_id", account.ID),
					slog.String("provider", string(ext.Provider)),
				)
				if account.AuthProvider == ext.Provider && account.ProviderID == linked.ProviderUserID {
					account.ProviderID = ext.ProviderUserID
				}
			}
		}
		if err := r.recordLogin(ctx, account, identityID, ext); err != nil {
			return nil, "", err
		}
		slog.Info("identity merged into existing account",
			slog.String("account_id", account.ID),
			slog.String("provider", string(ext.Provider)),
		)
		return account, metrics.ResolutionMerged, nil
	}

	account, err = r.create(ctx, ext)
	if err != nil {
		return nil, "", err
	}
	return account, metrics.ResolutionCreated, nil
}

// recordLogin はログインメタデータを更新し、identityをupsertする。
// authProvider・providerId・avatarUrlは未設定の場合のみ埋める。
func (r *Resolver) recordLogin(ctx context.Context, account *model.Account, identityID string, ext *model.ExternalIdentity) error {
	now := r.now()
	account.LastLoginAt = &now
	account.UpdatedAt = now
	if ext.Provider == model.ProviderGitHub && ext.Username != "" {
		account.GitHubUsername = ext.Username
	}
	if account.AuthProvider == "" {
		account.AuthProvider = ext.Provider
	}
	if account.ProviderID == "" {
		account.ProviderID = ext.ProviderUserID
	}
	if account.AvatarURL == "" {
		account.AvatarURL = ext.AvatarURL
	}

	identity := newIdentity(identityID, account.ID, ext, now)
	if err := r.accountRepo.RecordLogin(ctx, account, identity); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// create はアカウントとidentityを作成する。
func (r *Resolver) create(ctx context.Context, ext *model.ExternalIdentity) (*model.Account, error) {
	now := r.now()
	account := &model.Account{
		ID:           uuid.New().String(),
		DisplayName:  displayName(ext),
		Email:        ext.Email,
		AuthProvider: ext.Provider,
		ProviderID:   ext.ProviderUserID,
		AvatarURL:    ext.AvatarURL,
		Role:         model.RoleUser,
		LastLoginAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ext.Provider == model.ProviderGitHub {
		account.GitHubUsername = ext.Username
	}

	identity := newIdentity(uuid.New().String(), account.ID, ext, now)
	if err := r.accountRepo.CreateWithIdentity(ctx, account, identity); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("new account created",
		slog.String("account_id", account.ID),
		slog.String("provider", string(ext.Provider)),
	)
	return account, nil
}

func newIdentity(id, accountID string, ext *model.ExternalIdentity, now time.Time) *model.Identity {
	return &model.Identity{
		ID:             id,
		AccountID:      accountID,
		Provider:       ext.Provider,
		ProviderUserID: ext.ProviderUserID,
		Email:          ext.Email,
		Name:           ext.Name,
		Username:       ext.Username,
		AvatarURL:      ext.AvatarURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// displayName は表示名を name → username → メールのローカル部 の順で決める。
func displayName(ext *model.ExternalIdentity) string {
	if ext.Name != "" {
		return ext.Name
	}
	if ext.Username != "" {
		return ext.Username
	}
	local, _, _ := strings.Cut(ext.Email, "@")
	return local
}
