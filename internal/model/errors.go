package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Category はエラー種別（validation, not_found, forbidden, conflict, upstream, auth, rate_limit）で、
// HTTPステータスの決定に使われる。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // エラー種別
	Action   string // ユーザー向け対処方法
	Field    string // 検証エラーの対象フィールド（validationのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラー種別
const (
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryForbidden  = "forbidden"
	CategoryConflict   = "conflict"
	CategoryUpstream   = "upstream"
	CategoryAuth       = "auth"
	CategoryRateLimit  = "rate_limit"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidField          = "INVALID_FIELD"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	ErrCodePortfolioNotFound     = "PORTFOLIO_NOT_FOUND"
	ErrCodeChildNotFound         = "CHILD_NOT_FOUND"
	ErrCodeNotOwner              = "NOT_OWNER"
	ErrCodeSubdomainTaken        = "SUBDOMAIN_TAKEN"
	ErrCodeInvalidSubdomain      = "INVALID_SUBDOMAIN"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
	ErrCodeUnsupportedProvider   = "UNSUPPORTED_PROVIDER"
	ErrCodeMediaNotFound         = "MEDIA_NOT_FOUND"
	ErrCodeUnsupportedMediaType  = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeFileTooLarge          = "FILE_TOO_LARGE"
	ErrCodeBlobStoreFailed       = "BLOB_STORE_FAILED"
	ErrCodeStorageNotConfigured  = "STORAGE_NOT_CONFIGURED"
	ErrCodeUpstreamFailure       = "UPSTREAM_FAILURE"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeAuthenticationFailure = "AUTHENTICATION_FAILED"
	ErrCodeRateLimited           = "RATE_LIMITED"
)

// NewValidationError はフィールド検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidField,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: CategoryValidation,
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウントが見つかりません。",
		Category: CategoryNotFound,
		Action:   "ログインし直してください。",
	}
}

// NewPortfolioNotFoundError はポートフォリオが見つからない場合のエラーを生成する。
func NewPortfolioNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePortfolioNotFound,
		Message:  "ポートフォリオが見つかりません。",
		Category: CategoryNotFound,
		Action:   "ポートフォリオを作成してください。",
	}
}

// NewPublicPortfolioNotFoundError は公開ポートフォリオが見つからない場合のエラーを生成する。
// 未公開と存在しないケースを区別しない。
func NewPublicPortfolioNotFoundError(subdomain string) *APIError {
	return &APIError{
		Code:     ErrCodePortfolioNotFound,
		Message:  fmt.Sprintf("ポートフォリオが見つからないか、公開されていません: %s", subdomain),
		Category: CategoryNotFound,
		Action:   "URLを確認してください。",
	}
}

// NewChildNotFoundError は子要素が見つからない場合のエラーを生成する。
func NewChildNotFoundError(kind ChildKind, ref string) *APIError {
	return &APIError{
		Code:     ErrCodeChildNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, ref),
		Category: CategoryNotFound,
		Action:   "IDを確認してください。",
	}
}

// NewNotOwnerError は他アカウントのリソースを操作しようとした場合のエラーを生成する。
func NewNotOwnerError(kind ChildKind) *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  fmt.Sprintf("この%sを操作する権限がありません。", kind),
		Category: CategoryForbidden,
		Action:   "自分のポートフォリオの項目のみ操作できます。",
	}
}

// NewSubdomainTakenError はサブドメインが既に使用されている場合のエラーを生成する。
func NewSubdomainTakenError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeSubdomainTaken,
		Message:  fmt.Sprintf("サブドメインは既に使用されています: %s", name),
		Category: CategoryConflict,
		Action:   "別のサブドメインを指定してください。",
	}
}

// NewInvalidSubdomainError はサブドメインの形式が不正な場合のエラーを生成する。
func NewInvalidSubdomainError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSubdomain,
		Message:  fmt.Sprintf("無効なサブドメインです: %s", reason),
		Category: CategoryValidation,
		Action:   "英小文字・数字・ハイフンのみ、3〜63文字で指定してください。",
		Field:    "customSubdomain",
	}
}

// NewEmailTakenError はメールアドレスが他のアカウントで使用されている場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に使用されています。",
		Category: CategoryConflict,
		Action:   "別のメールアドレスを指定してください。",
		Field:    "email",
	}
}

// NewEmailNotVerifiedError はIdPのメールアドレスが未検証の場合のエラーを生成する。
func NewEmailNotVerifiedError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  fmt.Sprintf("%sのメールアドレスが検証されていません。", provider),
		Category: CategoryAuth,
		Action:   "IdP側でメールアドレスを検証してから再度ログインしてください。",
	}
}

// NewUnsupportedProviderError はサポート外のIdPが指定された場合のエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("サポートされていない認証プロバイダーです: %s", provider),
		Category: CategoryValidation,
		Action:   "GitHubまたはGoogleでログインしてください。",
	}
}

// NewMediaNotFoundError はメディアが見つからない場合のエラーを生成する。
func NewMediaNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeMediaNotFound,
		Message:  fmt.Sprintf("指定されたファイルが見つかりません: %s", key),
		Category: CategoryNotFound,
		Action:   "ファイルIDを確認してください。",
	}
}

// NewMediaForbiddenError は他アカウントのメディアへのアクセスエラーを生成する。
func NewMediaForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  "このファイルにアクセスする権限がありません。",
		Category: CategoryForbidden,
		Action:   "自分がアップロードしたファイルのみ操作できます。",
	}
}

// NewUnsupportedMediaTypeError は許可されていないファイル形式のエラーを生成する。
func NewUnsupportedMediaTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedMediaType,
		Message:  fmt.Sprintf("サポートされていないファイル形式です: %s", contentType),
		Category: CategoryValidation,
		Action:   "画像はJPEG/PNG/GIF/WebP、履歴書はPDFでアップロードしてください。",
		Field:    "file",
	}
}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", limit),
		Category: CategoryValidation,
		Action:   "ファイルサイズを小さくしてから再度アップロードしてください。",
		Field:    "file",
	}
}

// NewBlobStoreError はオブジェクトストレージの操作失敗エラーを生成する。
func NewBlobStoreError() *APIError {
	return &APIError{
		Code:     ErrCodeBlobStoreFailed,
		Message:  "ファイルストレージの操作に失敗しました。",
		Category: CategoryUpstream,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStorageNotConfiguredError はオブジェクトストレージが未設定の場合のエラーを生成する。
func NewStorageNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageNotConfigured,
		Message:  "ファイルストレージが設定されていません。",
		Category: CategoryUpstream,
		Action:   "管理者に連絡してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewAuthenticationFailedError はOAuthコールバック処理の失敗エラーを生成する。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailure,
		Message:  "認証に失敗しました。",
		Category: CategoryAuth,
		Action:   "もう一度ログインしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: CategoryRateLimit,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
