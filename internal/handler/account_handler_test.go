package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/portfolium/internal/account"
	"github.com/hitoshi/portfolium/internal/model"
)

func sampleAccount() *model.Account {
	return &model.Account{
		ID:           "acc-1",
		DisplayName:  "Taro",
		Email:        "taro@example.com",
		PasswordHash: "$2a$10$hash",
		AuthProvider: model.ProviderGitHub,
		Role:         model.RoleUser,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Identities: []model.Identity{
			{Provider: model.ProviderGitHub, Username: "taro"},
			{Provider: model.ProviderGoogle, Email: "taro@example.com"},
		},
	}
}

func TestAccountHandler_Me(t *testing.T) {
	svc := &mockAccountService{
		getFn: func(ctx context.Context, accountID string) (*model.Account, error) {
			if accountID != "acc-1" {
				t.Errorf("accountID = %q", accountID)
			}
			return sampleAccount(), nil
		},
	}
	h := NewAccountHandler(svc)

	w := httptest.NewRecorder()
	h.Me(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "acc-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	env := decodeEnvelope(t, w)
	var got accountResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if got.DisplayName != "Taro" || !got.HasPassword || len(got.Identities) != 2 {
		t.Errorf("response = %+v", got)
	}
	// パスワードハッシュは出力しない
	if strings.Contains(string(env.Data), "$2a$") {
		t.Error("password hash must not be exposed")
	}
}

func TestAccountHandler_Me_Unauthorized(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{})

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAccountHandler_UpdateMe(t *testing.T) {
	var got account.ProfileUpdate
	svc := &mockAccountService{
		updateFn: func(ctx context.Context, accountID string, update account.ProfileUpdate) (*model.Account, error) {
			got = update
			a := sampleAccount()
			a.DisplayName = *update.DisplayName
			return a, nil
		},
	}
	h := NewAccountHandler(svc)

	req := withUserID(jsonRequest(http.MethodPut, "/api/auth/me", `{"displayName":"Hanako"}`), "acc-1")
	w := httptest.NewRecorder()
	h.UpdateMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.DisplayName == nil || *got.DisplayName != "Hanako" {
		t.Errorf("displayName = %v", got.DisplayName)
	}
	// 指定していない項目はnilのまま渡す
	if got.Email != nil || got.Password != nil {
		t.Errorf("unexpected fields: email=%v password=%v", got.Email, got.Password)
	}
}

func TestAccountHandler_UpdateMe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"不正なJSON", `{`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"メール重複", `{"email":"x@example.com"}`, model.NewEmailTakenError(), http.StatusConflict, model.ErrCodeEmailTaken},
		{"検証エラー", `{"displayName":""}`, model.NewValidationError("displayName", "表示名は必須です"), http.StatusBadRequest, model.ErrCodeInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAccountService{
				updateFn: func(ctx context.Context, accountID string, update account.ProfileUpdate) (*model.Account, error) {
					return nil, tt.err
				},
			}
			h := NewAccountHandler(svc)

			w := httptest.NewRecorder()
			h.UpdateMe(w, withUserID(jsonRequest(http.MethodPut, "/api/auth/me", tt.body), "acc-1"))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAccountHandler_DeleteMe(t *testing.T) {
	called := false
	svc := &mockAccountService{
		withdrawFn: func(ctx context.Context, accountID string) error {
			called = accountID == "acc-1"
			return nil
		},
	}
	h := NewAccountHandler(svc)

	w := httptest.NewRecorder()
	h.DeleteMe(w, withUserID(httptest.NewRequest(http.MethodDelete, "/api/auth/me", nil), "acc-1"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !called {
		t.Error("expected Withdraw to be called with acc-1")
	}
}

func TestAccountHandler_DeleteMe_NotFound(t *testing.T) {
	svc := &mockAccountService{
		withdrawFn: func(ctx context.Context, accountID string) error {
			return model.NewAccountNotFoundError()
		},
	}
	h := NewAccountHandler(svc)

	w := httptest.NewRecorder()
	h.DeleteMe(w, withUserID(httptest.NewRequest(http.MethodDelete, "/api/auth/me", nil), "acc-1"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
