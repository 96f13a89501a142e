// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/portfolium/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByIDWithIdentities はアカウントを紐付け済みidentities付きで取得する。
	// 見つからない場合はnilを返す。
	FindByIDWithIdentities(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// CreateWithIdentity はアカウントとidentityを同一トランザクションで作成する。
	// 一意制約違反の場合は *ConflictError を返す。
	CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error

	// RecordLogin はログイン時のメタデータ更新とidentityのupsertを同一トランザクションで行う。
	// identityの (account_id, provider) が既存の場合はprovider_user_id以外を更新する。
	RecordLogin(ctx context.Context, account *model.Account, identity *model.Identity) error

	// UpdateProfile は表示名・メールアドレス・パスワードハッシュを更新する。
	UpdateProfile(ctx context.Context, account *model.Account) error

	// UpdateProfilePhoto はプロフィール写真の参照を更新する。空文字で解除する。
	UpdateProfilePhoto(ctx context.Context, accountID, photoID, photoURL string) error

	// DeleteByID は指定IDのアカウントを削除し、orphanBlobKeysを削除待ちキューに積む。
	// 両操作は同一トランザクションで実行される。
	// portfolios、identities、子要素、subdomain_claimsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string, orphanBlobKeys []string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error)

	// FindByAccountAndProvider はアカウントに紐付いた指定プロバイダーのidentityを返す。
	// 見つからない場合はnilを返す。
	FindByAccountAndProvider(ctx context.Context, accountID string, provider model.Provider) (*model.Identity, error)

	// ListByAccountID はアカウントに紐付いた全identityを返す。
	ListByAccountID(ctx context.Context, accountID string) ([]model.Identity, error)
}

// PortfolioRepository はポートフォリオ集約ルートの永続化インターフェース。
type PortfolioRepository interface {
	// FindByID は指定IDのポートフォリオを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Portfolio, error)

	// FindByAccountID はアカウントのポートフォリオを取得する。見つからない場合はnilを返す。
	FindByAccountID(ctx context.Context, accountID string) (*model.Portfolio, error)

	// FindPublishedBySubdomain はsubdomainまたはcustom_subdomainが一致する公開中のポートフォリオを返す。
	// 見つからない、または未公開の場合はnilを返す。
	FindPublishedBySubdomain(ctx context.Context, name string) (*model.Portfolio, error)

	// CreateWithSubdomain はポートフォリオを作成し、候補の中から最初に予約できた名前を
	// デフォルトサブドメインとして割り当てる。割り当てた名前はp.Subdomainに設定される。
	// 全候補が使用済みの場合は ErrSubdomainExhausted を返す。
	CreateWithSubdomain(ctx context.Context, p *model.Portfolio, candidates []string) error

	// UpdateContent はトップレベルの内容（personal, settings, contact, resume, seo）を上書きする。
	// サブドメインと公開状態は変更しない。
	UpdateContent(ctx context.Context, p *model.Portfolio) error

	// UpdateSettings は表示設定のみを更新する。
	UpdateSettings(ctx context.Context, portfolioID string, settings model.Settings) error

	// UpdateResume は履歴書参照を更新する。
	UpdateResume(ctx context.Context, portfolioID string, resume model.Resume) error

	// SetPublication は公開状態を更新し、更新後のポートフォリオを返す。
	// publishedAtがnilの場合は非公開にする。ポートフォリオが存在しない場合はnilを返す。
	SetPublication(ctx context.Context, accountID string, publishedAt *time.Time) (*model.Portfolio, error)

	// ClaimCustomSubdomain はカスタムサブドメインを原子的に予約し、旧名を解放する。
	// 他のポートフォリオがsubdomainまたはcustom_subdomainとして保持している場合は ErrConflict を返す。
	ClaimCustomSubdomain(ctx context.Context, portfolioID, name string) error

	// ReleaseCustomSubdomain はカスタムサブドメインを解放する。
	ReleaseCustomSubdomain(ctx context.Context, portfolioID string) error

	// ListBlobKeys はポートフォリオ配下で参照されているオブジェクトキーを返す。
	ListBlobKeys(ctx context.Context, portfolioID string) ([]string, error)
}

// ExperienceRepository は職歴の永続化インターフェース。
type ExperienceRepository interface {
	// FindByID は指定IDの職歴を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Experience, error)
	// ListByPortfolioID はsort_order昇順、同順位は作成順で職歴を返す。
	ListByPortfolioID(ctx context.Context, portfolioID string) ([]*model.Experience, error)
	Create(ctx context.Context, e *model.Experience) error
	// Update はportfolio_idが一致する場合のみ更新する。更新件数0の場合はfalseを返す。
	Update(ctx context.Context, e *model.Experience) (bool, error)
	// Delete はportfolio_idが一致する場合のみ削除する。削除件数0の場合はfalseを返す。
	Delete(ctx context.Context, id, portfolioID string) (bool, error)
}

// ProjectRepository はプロジェクトの永続化インターフェース。
type ProjectRepository interface {
	FindByID(ctx context.Context, id string) (*model.Project, error)
	ListByPortfolioID(ctx context.Context, portfolioID string) ([]*model.Project, error)
	Create(ctx context.Context, p *model.Project) error
	Update(ctx context.Context, p *model.Project) (bool, error)
	// UpdateImage は画像参照のみを更新する。空文字で解除する。
	UpdateImage(ctx context.Context, id, portfolioID, imageID, imageURL string) (bool, error)
	Delete(ctx context.Context, id, portfolioID string) (bool, error)
}

// BlogRepository はブログ記事の永続化インターフェース。
// 外部からは公開ID（blog_id）で参照される。
type BlogRepository interface {
	// FindByBlogID は公開IDでブログ記事を取得する。見つからない場合はnilを返す。
	FindByBlogID(ctx context.Context, blogID string) (*model.Blog, error)
	ListByPortfolioID(ctx context.Context, portfolioID string) ([]*model.Blog, error)
	Create(ctx context.Context, b *model.Blog) error
	Update(ctx context.Context, b *model.Blog) (bool, error)
	Delete(ctx context.Context, blogID, portfolioID string) (bool, error)
}

// BlobTombstone は削除待ちのオブジェクトキーを表す。
type BlobTombstone struct {
	ID        int64
	BlobKey   string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// BlobTombstoneRepository は削除待ちオブジェクトキューの永続化インターフェース。
type BlobTombstoneRepository interface {
	// Enqueue はキーを削除待ちキューに積む。既に積まれているキーは無視する。
	Enqueue(ctx context.Context, keys []string) error
	// ListPending は試行回数がmaxAttempts未満のエントリを古い順にlimit件返す。
	ListPending(ctx context.Context, limit, maxAttempts int) ([]BlobTombstone, error)
	// Delete はエントリを削除する。
	Delete(ctx context.Context, id int64) error
	// MarkFailed は試行回数を加算し、エラー内容を記録する。
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// execQuerier は *sql.DB と *sql.Tx の共通部分。
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
