package auth

import (
	"context"
	"time"

	"github.com/hitoshi/portfolium/internal/metrics"
	"github.com/hitoshi/portfolium/internal/model"
	"github.com/hitoshi/portfolium/internal/repository"
)

// --- モック定義 ---

type mockAccountRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.Account, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.Account, error)
	createWithIdentityFn func(ctx context.Context, account *model.Account, identity *model.Identity) error
	recordLoginFn        func(ctx context.Context, account *model.Account, identity *model.Identity) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByIDWithIdentities(ctx context.Context, id string) (*model.Account, error) {
	return m.FindByID(ctx, id)
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAccountRepo) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, account, identity)
	}
	return nil
}

func (m *mockAccountRepo) RecordLogin(ctx context.Context, account *model.Account, identity *model.Identity) error {
	if m.recordLoginFn != nil {
		return m.recordLoginFn(ctx, account, identity)
	}
	return nil
}

func (m *mockAccountRepo) UpdateProfile(_ context.Context, _ *model.Account) error {
	return nil
}

func (m *mockAccountRepo) UpdateProfilePhoto(_ context.Context, _, _, _ string) error {
	return nil
}

func (m *mockAccountRepo) DeleteByID(_ context.Context, _ string, _ []string) error {
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn           func(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error)
	findByAccountAndProviderFn func(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) FindByAccountAndProvider(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error) {
	if m.findByAccountAndProviderFn != nil {
		return m.findByAccountAndProviderFn(ctx, accountID, provider)
	}
	return nil, nil
}

func (m *mockIdentityRepo) ListByAccountID(_ context.Context, _ string) ([]model.Identity, error) {
	return nil, nil
}

type mockOAuthProvider struct {
	name       model.Provider
	loginURLFn func(state string) string
	exchangeFn func(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

func (m *mockOAuthProvider) Name() model.Provider {
	return m.name
}

func (m *mockOAuthProvider) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return nil, nil
}

// mockMetrics はidentity解決の結果を記録するモック。
type mockMetrics struct {
	outcomes []string
}

func (m *mockMetrics) RecordIdentityResolution(_, outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}
func (m *mockMetrics) RecordPublishTransition(bool) {}
func (m *mockMetrics) RecordSubdomainConflict() {}
func (m *mockMetrics) RecordPublicLookup(bool) {}
func (m *mockMetrics) RecordHTTPStatus(int) {}
func (m *mockMetrics) RecordBlobSweep(int, int, time.Duration) {}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
var _ metrics.MetricsCollector = (*mockMetrics)(nil)
