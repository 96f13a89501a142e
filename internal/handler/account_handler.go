package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/portfolium/internal/account"
	"github.com/hitoshi/portfolium/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Get(ctx context.Context, accountID string) (*model.Account, error)
	UpdateProfile(ctx context.Context, accountID string, update account.ProfileUpdate) (*model.Account, error)
	Withdraw(ctx context.Context, accountID string) error
}

// AccountHandler はログイン中アカウントのHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// updateAccountRequest はアカウント更新リクエストのボディ。
type updateAccountRequest struct {
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
}

type identityResponse struct {
	Provider  string `json:"provider"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// accountResponse はアカウント情報のAPIレスポンス。パスワードハッシュは含めない。
type accountResponse struct {
	ID              string             `json:"id"`
	DisplayName     string             `json:"displayName"`
	Email           string             `json:"email"`
	AuthProvider    string             `json:"authProvider"`
	GitHubUsername  string             `json:"githubUsername,omitempty"`
	AvatarURL       string             `json:"avatarUrl,omitempty"`
	ProfilePhotoURL string             `json:"profilePhotoUrl,omitempty"`
	Role            string             `json:"role"`
	HasPassword     bool               `json:"hasPassword"`
	Identities      []identityResponse `json:"identities"`
	LastLoginAt     *time.Time         `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// Me はログイン中のアカウント情報を返す。
// GET /api/auth/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	acc, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountResponse(acc))
}

// UpdateMe は表示名・メールアドレス・パスワードを更新する。
// PUT /api/auth/me
func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req updateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.service.UpdateProfile(r.Context(), accountID, account.ProfileUpdate{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toAccountResponse(acc))
}

// DeleteMe は退会処理を行う。
// DELETE /api/auth/me
func (h *AccountHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), accountID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeMessage(w, "アカウントを削除しました")
}

func toAccountResponse(a *model.Account) accountResponse {
	identities := make([]identityResponse, 0, len(a.Identities))
	for _, id := range a.Identities {
		identities = append(identities, identityResponse{
			Provider:  string(id.Provider),
			Email:     id.Email,
			Username:  id.Username,
			AvatarURL: id.AvatarURL,
		})
	}
	return accountResponse{
		ID:              a.ID,
		DisplayName:     a.DisplayName,
		Email:           a.Email,
		AuthProvider:    string(a.AuthProvider),
		GitHubUsername:  a.GitHubUsername,
		AvatarURL:       a.AvatarURL,
		ProfilePhotoURL: a.ProfilePhotoURL,
		Role:            string(a.Role),
		HasPassword:     a.HasPassword(),
		Identities:      identities,
		LastLoginAt:     a.LastLoginAt,
		CreatedAt:       a.CreatedAt,
	}
}
